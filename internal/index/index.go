// Package index implements the vector index holding embedded document
// chunks.
//
// Two implementations share the same contract:
//
//   - Memory: brute-force cosine over an immutable in-process generation,
//     swapped atomically on rebuild. Optionally snapshotted to disk so a
//     restart does not require re-embedding.
//   - Postgres: pgvector-backed, with a generation column and an active
//     generation pointer flipped in one transaction.
//
// Both guarantee the generation invariant: a search never observes chunks
// from two different rebuilds. Rebuild is all-or-nothing from the reader's
// point of view; a failed rebuild keeps the previous generation serving.
//
// An empty index is a valid state: Search returns an empty slice, not an
// error.
package index

import "errors"

// MetadataTopic is the metadata key carrying the scope tag used by
// Search's scope filter.
const MetadataTopic = "topic"

// ErrRebuildFailed indicates a rebuild was rejected; the previously active
// generation is still serving.
var ErrRebuildFailed = errors.New("index rebuild failed")

// ErrDimensionMismatch indicates a chunk or query vector does not match
// the index's embedding dimension.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Chunk is one indexed document fragment. Created at indexing time and
// immutable afterwards; a rebuild replaces the whole set.
type Chunk struct {
	ID         string            `json:"id"`
	DocumentID string            `json:"document_id"`
	Ordinal    int               `json:"ordinal"`
	Text       string            `json:"text"`
	Embedding  []float32         `json:"embedding"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Topic returns the chunk's scope tag, or "" when untagged.
func (c Chunk) Topic() string {
	return c.Metadata[MetadataTopic]
}

// Hit is one search match with its cosine similarity (higher = closer).
type Hit struct {
	Chunk      Chunk
	Similarity float32
}

// matchesScope reports whether a chunk is eligible under the scope filter.
// The "all" scope (or an empty one) matches everything.
func matchesScope(c Chunk, scope string) bool {
	if scope == "" || scope == "all" {
		return true
	}
	return c.Topic() == scope
}
