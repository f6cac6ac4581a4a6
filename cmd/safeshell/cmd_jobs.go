package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Show recent sandbox executions",
	Long: `Show recent executions recorded in the audit trail, scoped to the
current session unless --all is given.`,
	RunE: runJobs,
}

func init() {
	jobsCmd.Flags().Int("limit", 20, "Maximum number of executions to show")
	jobsCmd.Flags().Bool("all", false, "Show executions across all sessions")
	rootCmd.AddCommand(jobsCmd)
}

func runJobs(cmd *cobra.Command, args []string) error {
	app, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	all, _ := cmd.Flags().GetBool("all")

	sessionID := app.sessionID
	if all {
		sessionID = ""
	}
	executions, err := app.audit.Recent(sessionID, limit)
	if err != nil {
		return err
	}
	if len(executions) == 0 {
		fmt.Println("No recorded executions")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tSESSION\tEXIT\tDURATION\tVIOLATION\tCOMMAND")
	for _, e := range executions {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
			e.CreatedAt.Local().Format(time.DateTime),
			truncate(e.SessionID, 12),
			e.ExitCode,
			e.Duration.Round(time.Millisecond),
			e.Violation,
			truncate(e.Command, 60),
		)
	}
	return w.Flush()
}

// truncate shortens s to at most n runes, never splitting a multi-byte
// character.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
