// Package cmd contains the advisor CLI commands.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/campushq/advisor/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "advisor",
	Short: "College advisor query engine",
	Long: `Advisor routes student questions to topic specialists (admissions,
academics, financial aid), augments them with passages retrieved from an
indexed college catalog, and aggregates the answers.

Run "advisor serve" to start the HTTP API, "advisor reindex" to rebuild
the catalog index, or "advisor ask" for a one-off question.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file (default: ./advisor.yaml if present)")
}

// loadConfig loads configuration honoring the --config flag.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// requireAPIKey gives a friendly setup hint when the Gemini key is
// missing, before any component tries to use it.
func requireAPIKey() error {
	if os.Getenv("GEMINI_API_KEY") != "" || os.Getenv("GOOGLE_API_KEY") != "" {
		return nil
	}
	fmt.Fprintln(os.Stderr, "Error: GEMINI_API_KEY environment variable not set")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Advisor needs a Gemini API key for embeddings and answers:")
	fmt.Fprintln(os.Stderr, "  export GEMINI_API_KEY=your-api-key")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Get a key at: https://ai.google.dev/")
	return fmt.Errorf("GEMINI_API_KEY not set")
}
