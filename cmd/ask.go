package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/campushq/advisor/internal/app"
	"github.com/campushq/advisor/internal/domain"
)

var (
	askSessionID string
	askTopic     string
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask the advisor a single question",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAsk(cmd, strings.Join(args, " "))
	},
}

func init() {
	askCmd.Flags().StringVar(&askSessionID, "session", "", "continue an existing session")
	askCmd.Flags().StringVar(&askTopic, "topic", "", "force a topic (admissions, academics, financial-aid, general)")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, question string) error {
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

	resp, err := a.Router.Answer(ctx, domain.Query{
		Text:      question,
		SessionID: askSessionID,
		Topic:     askTopic,
	})
	if err != nil {
		return err
	}

	fmt.Println(resp.AnswerText)
	fmt.Println()
	fmt.Printf("session: %s\n", resp.SessionID)
	if len(resp.DegradedDomains) > 0 {
		names := make([]string, len(resp.DegradedDomains))
		for i, d := range resp.DegradedDomains {
			names[i] = string(d)
		}
		fmt.Fprintf(os.Stderr, "warning: no answer from: %s\n", strings.Join(names, ", "))
	}
	return nil
}
