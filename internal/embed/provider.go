// Package embed provides the embedding capability behind the retriever.
//
// The underlying model is expensive to construct and not every process
// lifetime needs it (a served process that never retrieves should not pay
// for it), so Provider loads its backend lazily on the first Embed call.
// Concurrent first calls block behind one guarded initialization; exactly
// one load happens no matter how many callers race.
//
// A backend that cannot be loaded or answer degrades the caller, it never
// crashes it: every failure surfaces as ErrUnavailable and retrieval
// continues without results.
package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// ErrUnavailable indicates the embedding backend could not be loaded or
// could not produce a vector. Callers treat this as "retrieval degraded",
// not as a fatal error.
var ErrUnavailable = errors.New("embedding backend unavailable")

// Embedder turns text into a fixed-length vector. Consumer-side interface;
// production backends adapt genkit's ai.Embedder (see genkit.go), tests
// use EmbedderFunc.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbedderFunc adapts a function to the Embedder interface.
type EmbedderFunc func(ctx context.Context, text string) ([]float32, error)

// Embed calls f.
func (f EmbedderFunc) Embed(ctx context.Context, text string) ([]float32, error) {
	return f(ctx, text)
}

// Loader constructs the backend on first use. It may block (model download,
// plugin lookup) and may fail; a failed load is retried on a later call.
type Loader func(ctx context.Context) (Embedder, error)

// Provider is the lazily-initialized embedding provider.
// Safe for concurrent use.
type Provider struct {
	loader  Loader
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	backend Embedder
	loads   atomic.Int64
}

// NewProvider creates a Provider around loader. timeout bounds every Embed
// call including a first-call load; zero means 10s.
func NewProvider(loader Loader, timeout time.Duration, logger *slog.Logger) *Provider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		loader:  loader,
		timeout: timeout,
		logger:  logger,
	}
}

// Embed returns the L2-normalized embedding of text. The first call loads
// the backend; failures of the load or the embed call return
// ErrUnavailable (wrapped) so callers degrade instead of aborting.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	backend, err := p.ensureBackend(ctx)
	if err != nil {
		return nil, err
	}

	vec, err := backend.Embed(ctx, text)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: embed call failed: %v", ErrUnavailable, err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: backend returned empty vector", ErrUnavailable)
	}

	normalize(vec)
	return vec, nil
}

// LoadCount reports how many times the loader has run. Exposed so tests
// can observe that concurrent first calls converge to one initialization.
func (p *Provider) LoadCount() int64 {
	return p.loads.Load()
}

// ensureBackend returns the loaded backend, loading it under the lock on
// first use. Racing callers block here and reuse the single result. A load
// failure leaves the backend unset so a later call can retry.
func (p *Provider) ensureBackend(ctx context.Context) (Embedder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.backend != nil {
		return p.backend, nil
	}

	p.loads.Add(1)
	p.logger.Info("loading embedding backend (first use)")

	backend, err := p.loader(ctx)
	if err != nil {
		p.logger.Error("embedding backend load failed", "error", err)
		return nil, fmt.Errorf("%w: load failed: %v", ErrUnavailable, err)
	}
	if backend == nil {
		return nil, fmt.Errorf("%w: loader returned nil backend", ErrUnavailable)
	}

	p.backend = backend
	p.logger.Info("embedding backend loaded")
	return backend, nil
}

// normalize scales v to unit length in place. Normalized vectors make
// inner product and cosine similarity rank identically.
func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
}
