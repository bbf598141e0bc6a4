// Package app assembles the advisor engine: configuration, logging,
// tracing, storage, the embedding provider, the specialists, and the
// router, with one cleanup path tearing everything down in reverse.
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campushq/advisor/internal/config"
	"github.com/campushq/advisor/internal/embed"
	"github.com/campushq/advisor/internal/index"
	"github.com/campushq/advisor/internal/ingest"
	"github.com/campushq/advisor/internal/router"
	"github.com/campushq/advisor/internal/session"
)

// VectorIndex is the full index surface the application wires together.
// Both the in-memory and the PostgreSQL index satisfy it.
type VectorIndex interface {
	Upsert(ctx context.Context, batch []index.Chunk) error
	Rebuild(ctx context.Context, chunks []index.Chunk) error
	Search(ctx context.Context, vector []float32, k int, scope string) ([]index.Hit, error)
	Count(ctx context.Context, scope string) (int, error)
}

// App holds every initialized component. Construct with Setup, release
// with Close.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Genkit     *genkit.Genkit
	Pool       *pgxpool.Pool // nil when running on the in-memory stores
	Index      VectorIndex
	Embeddings *embed.Provider
	Sessions   session.Store
	Router     *router.Router
	Pipeline   *ingest.Pipeline

	sweeper  *session.Sweeper
	cleanups []func(context.Context) error
}

// onClose registers a cleanup. Cleanups run in reverse order.
func (a *App) onClose(fn func(context.Context) error) {
	a.cleanups = append(a.cleanups, fn)
}

// Close releases all resources in reverse initialization order.
func (a *App) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var firstErr error
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		if err := a.cleanups[i](ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.cleanups = nil
	return firstErr
}
