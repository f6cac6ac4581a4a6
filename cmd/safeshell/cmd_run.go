package main

import (
	"github.com/kballard/go-shellquote"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var runCmd = &cobra.Command{
	Use:   "run [flags] -- <command...>",
	Short: "Run a command or script under the sandbox",
	Long: `Run a command under the sandbox pipeline: the script is scanned for the
commands it invokes, every one is checked against the permission
configuration, and only then is the sandboxed subprocess launched with a
capability set derived from the same configuration.

A single argument is treated as a full script; multiple arguments are
quoted and joined into one command line.`,
	Example: `  safeshell run -- git status
  safeshell run 'make build 2>&1 | tail -20'
  safeshell run --timeout 5m -- ./scripts/migrate.sh`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().Duration("timeout", 0, "Execution deadline (default from config)")
	runCmd.Flags().Bool("background", false, "Mark the job as a background job")
	runCmd.Flags().String("runner", "", "Sandbox runner binary (default "+defaultRunner+")")

	viper.BindPFlag("run.timeout", runCmd.Flags().Lookup("timeout"))
	viper.BindPFlag("run.background", runCmd.Flags().Lookup("background"))
	viper.BindPFlag("run.runner", runCmd.Flags().Lookup("runner"))

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	app, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	script := args[0]
	if len(args) > 1 {
		script = shellquote.Join(args...)
	}

	timeout, _ := cmd.Flags().GetDuration("timeout")
	background, _ := cmd.Flags().GetBool("background")
	runner, _ := cmd.Flags().GetString("runner")
	if runner == "" {
		runner = viper.GetString("run.runner")
	}

	ctx, cancel := contextWithSignal(cmd.Context())
	defer cancel()

	code, err := app.execute(ctx, script, execOptions{
		Timeout:    timeout,
		Background: background,
		Runner:     runner,
	})
	if err != nil {
		return err
	}
	return exitWithCode(code)
}
