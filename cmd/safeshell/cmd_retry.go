package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/safeshell/safeshell/internal/errx"
	"github.com/safeshell/safeshell/pkg/api"
	"github.com/safeshell/safeshell/pkg/store"
	"github.com/safeshell/safeshell/pkg/violation"
)

var retryCmd = &cobra.Command{
	Use:   "retry <id> <choice>",
	Short: "Resolve a pending command request and re-execute",
	Long: `Resolve a pending command-permission request. Choices:

  1    allow once (nothing is persisted)
  2    allow always (written to the project permission file)
  3    allow for this session
  4    deny

On deny the exit code is 0; on re-execution the child's exit code is
propagated; any resolution failure exits 1.`,
	Args: cobra.ExactArgs(2),
	RunE: runRetry,
}

var retryPathCmd = &cobra.Command{
	Use:   "retry-path <id> <choice>",
	Short: "Resolve a pending path request and re-execute",
	Long: `Resolve a pending path-permission request. Choices match
^(r|w|rw)([1-3])(d?)$ — access kind, scope (1 once, 2 session,
3 always), optional d to grant the whole directory — or "deny"/"4".`,
	Args: cobra.ExactArgs(2),
	RunE: runRetryPath,
}

func init() {
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(retryPathCmd)
}

func runRetry(cmd *cobra.Command, args []string) error {
	app, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	id := args[0]
	req, err := app.ledger.ReadCommand(id)
	if err != nil {
		return err
	}
	if req == nil {
		return errx.With(ErrUnknownPending, ": %s", id)
	}

	choice, err := violation.ParseCommandChoice(args[1])
	if err != nil {
		return err
	}
	if choice.Deny {
		_ = app.ledger.Delete(id, api.PendingKindCommand)
		fmt.Fprintf(os.Stderr, "Denied: %v\n", req.Commands)
		return nil
	}

	grants := &api.Grants{AllowedCommands: req.Commands}
	timeout := time.Duration(req.TimeoutMS) * time.Millisecond
	return app.resolveAndRerun(cmd, resolution{
		id:         id,
		kind:       api.PendingKindCommand,
		scope:      choice.Scope,
		grants:     grants,
		scriptHash: req.ScriptHash,
		cwd:        req.Cwd,
		timeout:    timeout,
		background: req.Background,
	})
}

func runRetryPath(cmd *cobra.Command, args []string) error {
	app, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	id := args[0]
	req, err := app.ledger.ReadPath(id)
	if err != nil {
		return err
	}
	if req == nil {
		return errx.With(ErrUnknownPending, ": %s", id)
	}

	choice, err := violation.ParsePathChoice(args[1])
	if err != nil {
		return err
	}
	if choice.Deny {
		_ = app.ledger.Delete(id, api.PendingKindPath)
		fmt.Fprintf(os.Stderr, "Denied: %s access to %s\n", req.Operation, req.Path)
		return nil
	}

	return app.resolveAndRerun(cmd, resolution{
		id:         id,
		kind:       api.PendingKindPath,
		scope:      choice.Scope,
		grants:     choice.Grants(req),
		scriptHash: req.ScriptHash,
		cwd:        req.Cwd,
	})
}

// resolution is a granted pending request, ready for re-execution.
type resolution struct {
	id         string
	kind       api.PendingKind
	scope      store.Scope
	grants     *api.Grants
	scriptHash string
	cwd        string
	timeout    time.Duration
	background bool
}

// resolveAndRerun promotes the grant into the chosen tier, rebuilds the
// effective configuration with the grant layered on top (the only place
// an allow-once grant ever lives), and re-executes the cached script.
func (a *app) resolveAndRerun(cmd *cobra.Command, res resolution) error {
	if err := a.store.Promote(res.scope, a.sessionID, res.grants); err != nil {
		// The grant still applies to this run through the derived config.
		a.logger.Warn("grant not persisted", "scope", res.scope, "error", err)
	}

	// The pending request is consumed up front: a retry settles it even
	// when the re-execution cannot proceed.
	if err := a.ledger.Delete(res.id, res.kind); err != nil {
		a.logger.Warn("pending request not deleted", "id", res.id, "error", err)
	}

	script, err := a.loadCachedScript(res.scriptHash)
	if err != nil {
		return err
	}

	derived := store.ApplyGrants(a.store.EffectiveConfig(a.cfg, a.sessionID), res.grants)
	if res.cwd != "" {
		a.cwd = res.cwd
	}

	ctx, cancel := contextWithSignal(cmd.Context())
	defer cancel()

	code, err := a.execute(ctx, script, execOptions{
		Timeout:    res.timeout,
		Background: res.background,
		Runner:     viper.GetString("run.runner"),
		Config:     derived,
	})
	if err != nil {
		return err
	}
	return exitWithCode(code)
}
