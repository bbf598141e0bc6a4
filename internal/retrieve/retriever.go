// Package retrieve turns a query string into ranked passages from the
// vector index.
//
// The pipeline embeds the query, runs a vector search, and ranks the
// hits. Two degraded outcomes are distinguished:
//
//   - An empty index (or scope) returns an empty slice with a nil
//     error. There is no fallback to scanning source documents; that
//     path cost multi-second latencies.
//   - embed.ErrUnavailable: the embedding backend could not serve the
//     call. Surfaced as an error so the caller can mark the domain
//     degraded.
package retrieve

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/campushq/advisor/internal/domain"
	"github.com/campushq/advisor/internal/index"
)

// DefaultTopK is used when the caller passes k <= 0.
const DefaultTopK = 5

// embeddingCacheSize bounds the query-embedding LRU. Student queries
// repeat heavily (same program names, same cost questions), so a small
// cache saves most embedding round-trips.
const embeddingCacheSize = 512

// Index is the vector index as seen by the retriever.
type Index interface {
	Search(ctx context.Context, vector []float32, k int, scope string) ([]index.Hit, error)
	Count(ctx context.Context, scope string) (int, error)
}

// Embedder produces query vectors. *embed.Provider satisfies this.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Retriever retrieves top-k passages for a query within a scope.
// Safe for concurrent use.
type Retriever struct {
	index    Index
	embedder Embedder
	cache    *lru.Cache[string, []float32]
	timeout  time.Duration
	logger   *slog.Logger
	tracer   trace.Tracer

	emptyOnce sync.Once
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithTimeout bounds each Retrieve call (embedding plus search).
// Default is 10s.
func WithTimeout(d time.Duration) Option {
	return func(r *Retriever) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// New creates a Retriever over idx and embedder.
func New(idx Index, embedder Embedder, logger *slog.Logger, opts ...Option) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	cache, err := lru.New[string, []float32](embeddingCacheSize)
	if err != nil {
		// Only reachable with a non-positive size constant.
		panic(fmt.Sprintf("creating embedding cache: %v", err))
	}

	r := &Retriever{
		index:    idx,
		embedder: embedder,
		cache:    cache,
		timeout:  10 * time.Second,
		logger:   logger,
		tracer:   otel.Tracer("advisor/retrieve"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve returns at most k ranked passages for queryText within scope.
// Scores are sorted descending; ranks are 0-based and contiguous. An empty
// result with a nil error means the index had nothing in scope; callers
// must not treat it as a failure. Embedding failures return embed.ErrUnavailable
// wrapped.
func (r *Retriever) Retrieve(ctx context.Context, queryText, scope string, k int) ([]domain.RetrievalResult, error) {
	if k <= 0 {
		k = DefaultTopK
	}
	if scope == "" {
		scope = domain.ScopeAll
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	ctx, span := r.tracer.Start(ctx, "retrieve",
		trace.WithAttributes(
			attribute.String("scope", scope),
			attribute.Int("k", k),
		))
	defer span.End()

	vector, err := r.queryVector(ctx, queryText)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	hits, err := r.index.Search(ctx, vector, k, scope)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("index search: %w", err)
	}

	if len(hits) == 0 {
		// An empty result is valid. If the index was never built this
		// fires once per process as a hint; reindexing stays an
		// explicit, operator-driven action.
		r.emptyOnce.Do(func() {
			r.logger.Warn("retrieval found no matches; if the index was never built, run an explicit reindex",
				"scope", scope)
		})
		span.SetAttributes(attribute.Int("results", 0))
		return nil, nil
	}

	results := make([]domain.RetrievalResult, len(hits))
	for i, h := range hits {
		results[i] = domain.RetrievalResult{
			ChunkID: h.Chunk.ID,
			Text:    h.Chunk.Text,
			Score:   h.Similarity,
			Rank:    i,
		}
	}

	span.SetAttributes(attribute.Int("results", len(results)))
	r.logger.Debug("retrieved passages", "scope", scope, "count", len(results))
	return results, nil
}

// queryVector embeds queryText, reusing a cached vector when the same
// query was embedded before.
func (r *Retriever) queryVector(ctx context.Context, queryText string) ([]float32, error) {
	if vec, ok := r.cache.Get(queryText); ok {
		return vec, nil
	}

	vec, err := r.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	r.cache.Add(queryText, vec)
	return vec, nil
}
