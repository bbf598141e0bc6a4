package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/campushq/advisor/internal/index"
)

// embedWorkers bounds concurrent embedding calls during a rebuild.
const embedWorkers = 4

// Embedder produces chunk embeddings. *embed.Provider satisfies this.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Index receives the rebuilt chunk set. Both index implementations
// satisfy this.
type Index interface {
	Rebuild(ctx context.Context, chunks []index.Chunk) error
}

// Stats summarizes one rebuild run.
type Stats struct {
	Documents int
	Chunks    int
}

// Pipeline runs the full ingest flow: fetch documents from every source,
// chunk them, embed every chunk, and atomically replace the index
// generation. Rebuilding is the only operation that writes the index and
// it is always explicit; nothing in the query path ever triggers it.
type Pipeline struct {
	sources  []Source
	chunker  Chunker
	embedder Embedder
	index    Index
	logger   *slog.Logger
}

// NewPipeline assembles a rebuild pipeline.
func NewPipeline(sources []Source, embedder Embedder, idx Index, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{sources: sources, embedder: embedder, index: idx, logger: logger}
}

// Run executes one rebuild. Any failure (a source fetch, an embedding, a
// rejected generation) leaves the previously active generation serving.
func (p *Pipeline) Run(ctx context.Context) (Stats, error) {
	ctx, span := otel.Tracer("advisor/ingest").Start(ctx, "ingest.run")
	defer span.End()

	var stats Stats
	var chunks []index.Chunk
	for _, source := range p.sources {
		docs, err := source.Fetch(ctx)
		if err != nil {
			span.RecordError(err)
			return stats, fmt.Errorf("fetching from %s: %w", source.Name(), err)
		}
		stats.Documents += len(docs)

		for _, doc := range docs {
			chunks = append(chunks, p.chunker.Chunk(doc)...)
		}
		p.logger.Info("fetched source", "source", source.Name(), "documents", len(docs))
	}
	stats.Chunks = len(chunks)

	if err := p.embedAll(ctx, chunks); err != nil {
		span.RecordError(err)
		return stats, err
	}

	if err := p.index.Rebuild(ctx, chunks); err != nil {
		span.RecordError(err)
		return stats, fmt.Errorf("rebuilding index: %w", err)
	}

	span.SetAttributes(attribute.Int("chunks", stats.Chunks))
	p.logger.Info("index rebuilt", "documents", stats.Documents, "chunks", stats.Chunks)
	return stats, nil
}

// embedAll fills in chunk embeddings with a small worker pool. The first
// error cancels the remaining work.
func (p *Pipeline) embedAll(ctx context.Context, chunks []index.Chunk) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan int)
	errs := make(chan error, embedWorkers)

	var wg sync.WaitGroup
	for range embedWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				vec, err := p.embedder.Embed(ctx, chunks[i].Text)
				if err != nil {
					errs <- fmt.Errorf("embedding chunk %s: %w", chunks[i].ID, err)
					cancel()
					return
				}
				chunks[i].Embedding = vec
			}
		}()
	}

feed:
	for i := range chunks {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	close(errs)

	if err := <-errs; err != nil {
		return err
	}
	return ctx.Err()
}
