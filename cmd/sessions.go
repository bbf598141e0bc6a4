package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/campushq/advisor/internal/app"
)

var (
	sessionsLimit int
	sessionsPurge bool
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recent advising sessions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runSessions(cmd)
	},
}

func init() {
	sessionsCmd.Flags().IntVar(&sessionsLimit, "limit", 20, "maximum sessions to list")
	sessionsCmd.Flags().BoolVar(&sessionsPurge, "purge", false, "evict idle sessions instead of listing")
	rootCmd.AddCommand(sessionsCmd)
}

func runSessions(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := app.Setup(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			a.Logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	if sessionsPurge {
		evicted, err := a.Sessions.EvictIdle(ctx, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("evicting idle sessions: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "evicted %d idle sessions\n", evicted)
		return nil
	}

	sessions, err := a.Sessions.List(ctx, sessionsLimit)
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tLAST ACTIVE\tINTEREST")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			s.ID,
			s.CreatedAt.Format("2006-01-02 15:04"),
			s.LastActive.Format("2006-01-02 15:04"),
			s.Profile["primary_interest"],
		)
	}
	return w.Flush()
}
