package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"

	"github.com/safeshell/safeshell/internal/errx"
)

var rootCmd = &cobra.Command{
	Use:   "safeshell",
	Short: "Run shell code under a permission-negotiated sandbox",
	Long: `safeshell executes shell scripts inside a sandboxed subprocess with an
explicit capability set derived from the project configuration. Blocked
commands and paths become pending requests that a human resolves with the
retry commands.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	rootCmd.PersistentFlags().String("project", "", "Project root (default: discovered from the working directory)")
	rootCmd.PersistentFlags().String("session", "", "Session id for session-scoped permissions")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable debug logging")
}

// environment is the process environment surface consumed at startup.
// The session id selects the session permission tier; the script hash
// and id are injected during retries for traceability.
type environment struct {
	SessionID   string `envconfig:"SESSION_ID"`
	ProjectRoot string `envconfig:"PROJECT_ROOT"`
	ScriptHash  string `envconfig:"SCRIPT_HASH"`
	ScriptID    string `envconfig:"SCRIPT_ID"`
}

func loadEnvironment() (environment, error) {
	var env environment
	if err := envconfig.Process("safeshell", &env); err != nil {
		return env, errx.Wrap(ErrLoadEnvironment, err)
	}
	return env, nil
}

// exitCodeError carries a child's exit code (or a deliberate non-zero
// exit) out of a RunE without printing anything.
type exitCodeError struct {
	code int
}

func (e exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// exitWithCode returns nil for a zero code so successful runs do not
// trip the error path.
func exitWithCode(code int) error {
	if code == 0 {
		return nil
	}
	return exitCodeError{code: code}
}

// contextWithSignal cancels the context on SIGINT/SIGTERM so a spawn in
// flight gets killed and reaped before the CLI exits.
func contextWithSignal(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
