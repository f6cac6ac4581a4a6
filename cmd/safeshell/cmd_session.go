package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/safeshell/safeshell/internal/errx"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage session-scoped permission state",
}

var sessionEndCmd = &cobra.Command{
	Use:   "end [id]",
	Short: "End a session, discarding its session-scoped grants",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSessionEnd,
}

var sessionCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove stale session grants and pending requests",
	RunE:  runSessionCleanup,
}

func init() {
	sessionCleanupCmd.Flags().Duration("max-age", 0, "Age after which session and pending files are stale (default 4h)")
	sessionCmd.AddCommand(sessionEndCmd)
	sessionCmd.AddCommand(sessionCleanupCmd)
	rootCmd.AddCommand(sessionCmd)
}

func runSessionEnd(cmd *cobra.Command, args []string) error {
	app, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	id := app.sessionID
	if len(args) == 1 {
		id = args[0]
	}
	if id == "" {
		return errx.With(ErrEndSession, ": no session id given and none in the environment")
	}

	if err := app.store.DeleteSession(id); err != nil {
		return errx.Wrap(ErrEndSession, err)
	}
	fmt.Printf("Ended session %s\n", id)
	return nil
}

func runSessionCleanup(cmd *cobra.Command, args []string) error {
	app, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	maxAge, _ := cmd.Flags().GetDuration("max-age")
	removed, err := app.store.CleanupStale(maxAge)
	if err != nil {
		return errx.Wrap(ErrCleanupSessions, err)
	}
	fmt.Printf("Removed %d stale file(s)\n", removed)
	return nil
}
