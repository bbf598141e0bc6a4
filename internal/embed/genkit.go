package embed

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
)

// genkitEmbedder adapts a genkit ai.Embedder to the package's Embedder
// interface.
type genkitEmbedder struct {
	embedder ai.Embedder
}

func (g *genkitEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := g.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText(text, nil)},
	})
	if err != nil {
		return nil, fmt.Errorf("embed failed: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return resp.Embeddings[0].Embedding, nil
}

// GenkitLoader returns a Loader that resolves the named Gemini embedder
// from an initialized genkit instance. Resolution is deferred to first use
// so processes that never retrieve skip it entirely.
func GenkitLoader(g *genkit.Genkit, model string) Loader {
	return func(_ context.Context) (Embedder, error) {
		e := googlegenai.GoogleAIEmbedder(g, model)
		if e == nil {
			return nil, fmt.Errorf("embedder %q not found", model)
		}
		return &genkitEmbedder{embedder: e}, nil
	}
}
