package index

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
)

// generation is one immutable snapshot of the index contents. Readers grab
// the pointer once and never see a partially-built set.
type generation struct {
	seq    uint64
	chunks []Chunk // sorted by ID for deterministic iteration
}

// Memory is the in-process vector index: brute-force cosine over
// normalized embeddings, with copy-on-write generations behind an atomic
// pointer. Writers serialize on a mutex; readers are lock-free.
//
// Memory is safe for concurrent use.
type Memory struct {
	logger *slog.Logger

	mu  sync.Mutex // guards generation replacement
	gen atomic.Pointer[generation]
}

// NewMemory creates an empty in-memory index.
func NewMemory(logger *slog.Logger) *Memory {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Memory{logger: logger}
	m.gen.Store(&generation{})
	return m
}

// Upsert adds or replaces chunks by ID. The new set becomes visible as a
// whole; concurrent readers keep their snapshot.
func (m *Memory) Upsert(_ context.Context, batch []Chunk) error {
	if len(batch) == 0 {
		return nil
	}
	if err := validateChunks(batch); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.gen.Load()
	merged := make(map[string]Chunk, len(cur.chunks)+len(batch))
	for _, c := range cur.chunks {
		merged[c.ID] = c
	}
	for _, c := range batch {
		merged[c.ID] = c
	}

	next := &generation{seq: cur.seq, chunks: sortedChunks(merged)}
	m.gen.Store(next)

	m.logger.Debug("upserted chunks", "batch", len(batch), "total", len(next.chunks))
	return nil
}

// Rebuild atomically replaces the active generation with chunks. Readers
// in flight observe either the fully-old or the fully-new set.
func (m *Memory) Rebuild(_ context.Context, chunks []Chunk) error {
	if err := validateChunks(chunks); err != nil {
		return fmt.Errorf("%w: %v", ErrRebuildFailed, err)
	}

	byID := make(map[string]Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c // last write wins, deterministic for a fixed input order
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.gen.Load()
	next := &generation{seq: cur.seq + 1, chunks: sortedChunks(byID)}
	m.gen.Store(next)

	m.logger.Info("index rebuilt", "generation", next.seq, "chunks", len(next.chunks))
	return nil
}

// Search returns at most k hits matching scope, ordered by descending
// similarity with ties broken by chunk ID. An empty index yields an empty
// slice.
func (m *Memory) Search(ctx context.Context, vector []float32, k int, scope string) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	gen := m.gen.Load()

	hits := make([]Hit, 0, k)
	for _, c := range gen.chunks {
		if !matchesScope(c, scope) {
			continue
		}
		if len(c.Embedding) != len(vector) {
			return nil, fmt.Errorf("%w: chunk %s has dim %d, query has %d",
				ErrDimensionMismatch, c.ID, len(c.Embedding), len(vector))
		}
		hits = append(hits, Hit{Chunk: c, Similarity: dot(c.Embedding, vector)})
	}

	slices.SortStableFunc(hits, func(a, b Hit) int {
		if c := cmp.Compare(b.Similarity, a.Similarity); c != 0 {
			return c
		}
		return cmp.Compare(a.Chunk.ID, b.Chunk.ID)
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Count returns the number of chunks matching scope.
func (m *Memory) Count(_ context.Context, scope string) (int, error) {
	gen := m.gen.Load()
	if scope == "" || scope == "all" {
		return len(gen.chunks), nil
	}
	n := 0
	for _, c := range gen.chunks {
		if matchesScope(c, scope) {
			n++
		}
	}
	return n, nil
}

// Generation reports the rebuild sequence number of the currently active
// snapshot. Zero means the index has never been rebuilt.
func (m *Memory) Generation() uint64 {
	return m.gen.Load().seq
}

func validateChunks(chunks []Chunk) error {
	dim := -1
	for _, c := range chunks {
		if c.ID == "" {
			return fmt.Errorf("chunk with empty ID")
		}
		if len(c.Embedding) == 0 {
			return fmt.Errorf("chunk %s has no embedding", c.ID)
		}
		if dim == -1 {
			dim = len(c.Embedding)
		} else if len(c.Embedding) != dim {
			return fmt.Errorf("%w: chunk %s has dim %d, expected %d",
				ErrDimensionMismatch, c.ID, len(c.Embedding), dim)
		}
	}
	return nil
}

func sortedChunks(byID map[string]Chunk) []Chunk {
	out := make([]Chunk, 0, len(byID))
	for _, c := range byID {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b Chunk) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// dot computes the inner product; with normalized vectors this equals
// cosine similarity.
func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
