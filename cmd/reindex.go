package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/campushq/advisor/internal/app"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the catalog index from the configured sources",
	Long: `Reindex fetches the catalog sources, chunks and embeds their content,
and atomically replaces the active index generation. Queries keep being
served from the previous generation until the new one is complete; a
failed rebuild leaves the previous index untouched.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runReindex(cmd)
	},
}

func init() {
	rootCmd.AddCommand(reindexCmd)
}

func runReindex(cmd *cobra.Command) error {
	if err := requireAPIKey(); err != nil {
		return err
	}
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

	stats, err := a.Pipeline.Run(ctx)
	if err != nil {
		return fmt.Errorf("rebuilding index: %w", err)
	}

	fmt.Printf("indexed %d chunks from %d documents\n", stats.Chunks, stats.Documents)
	return nil
}
