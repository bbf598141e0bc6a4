// Package answer adapts the Genkit text-generation surface to the
// completion contract the specialists expect.
package answer

import (
	"context"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"google.golang.org/genai"

	"github.com/campushq/advisor/internal/domain"
)

// GenkitCompleter produces answers through a Genkit-registered Gemini
// model. It is stateless and safe for concurrent use.
type GenkitCompleter struct {
	g           *genkit.Genkit
	model       string
	temperature float32
}

// NewGenkitCompleter creates a completer for model (a bare model name,
// for example "gemini-2.5-flash").
func NewGenkitCompleter(g *genkit.Genkit, model string, temperature float32) *GenkitCompleter {
	return &GenkitCompleter{g: g, model: model, temperature: temperature}
}

// Complete generates free text for prompt. The passages are already
// embedded in the prompt by the caller; maxTokens caps the output size.
func (c *GenkitCompleter) Complete(ctx context.Context, prompt string, _ []domain.RetrievalResult, maxTokens int) (string, error) {
	resp, err := genkit.Generate(ctx, c.g,
		ai.WithModelName(modelRef(c.model)),
		ai.WithPrompt(prompt),
		ai.WithConfig(&genai.GenerateContentConfig{
			MaxOutputTokens: int32(maxTokens),
			Temperature:     genai.Ptr(c.temperature),
		}),
	)
	if err != nil {
		return "", fmt.Errorf("generating answer: %w", err)
	}
	return resp.Text(), nil
}

func modelRef(model string) string {
	if strings.Contains(model, "/") {
		return model
	}
	return "googleai/" + model
}
