package index

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/campushq/advisor/internal/log"
)

func chunk(id, topic string, vec ...float32) Chunk {
	return Chunk{
		ID:         id,
		DocumentID: "catalog",
		Text:       "text of " + id,
		Embedding:  vec,
		Metadata:   map[string]string{MetadataTopic: topic},
	}
}

func seeded(t *testing.T) *Memory {
	t.Helper()
	m := NewMemory(log.NewNop())
	err := m.Rebuild(context.Background(), []Chunk{
		chunk("a", "admissions", 1, 0),
		chunk("b", "academics", 0, 1),
		chunk("c", "admissions", 0.8, 0.6),
		chunk("d", "financial-aid", 0.6, 0.8),
	})
	if err != nil {
		t.Fatalf("seed rebuild: %v", err)
	}
	return m
}

func TestSearchOrdersByDescendingSimilarity(t *testing.T) {
	m := seeded(t)

	hits, err := m.Search(context.Background(), []float32{1, 0}, 10, "all")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 4 {
		t.Fatalf("got %d hits, want 4", len(hits))
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Similarity > hits[i-1].Similarity {
			t.Errorf("hits not sorted descending at %d: %f > %f",
				i, hits[i].Similarity, hits[i-1].Similarity)
		}
	}
	if hits[0].Chunk.ID != "a" {
		t.Errorf("best hit = %s, want a", hits[0].Chunk.ID)
	}
}

func TestSearchTiesBreakByChunkID(t *testing.T) {
	m := NewMemory(log.NewNop())
	// Identical vectors: similarity ties across all three.
	err := m.Rebuild(context.Background(), []Chunk{
		chunk("z", "admissions", 1, 0),
		chunk("a", "admissions", 1, 0),
		chunk("m", "admissions", 1, 0),
	})
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	hits, err := m.Search(context.Background(), []float32{1, 0}, 3, "all")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	got := []string{hits[0].Chunk.ID, hits[1].Chunk.ID, hits[2].Chunk.ID}
	want := []string{"a", "m", "z"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("tie order = %v, want %v", got, want)
		}
	}
}

func TestSearchScopeFilter(t *testing.T) {
	m := seeded(t)

	hits, err := m.Search(context.Background(), []float32{1, 0}, 10, "admissions")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, h := range hits {
		if h.Chunk.Topic() != "admissions" {
			t.Errorf("chunk %s leaked through scope filter (topic %s)",
				h.Chunk.ID, h.Chunk.Topic())
		}
	}
	if len(hits) != 2 {
		t.Errorf("got %d admissions hits, want 2", len(hits))
	}
}

func TestSearchEmptyIndexReturnsEmpty(t *testing.T) {
	m := NewMemory(log.NewNop())
	hits, err := m.Search(context.Background(), []float32{1, 0}, 5, "all")
	if err != nil {
		t.Fatalf("empty index must not error, got %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("got %d hits from empty index", len(hits))
	}
}

func TestUpsertReplacesByID(t *testing.T) {
	m := seeded(t)

	replaced := chunk("a", "admissions", 0, 1)
	replaced.Text = "updated"
	if err := m.Upsert(context.Background(), []Chunk{replaced}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	hits, err := m.Search(context.Background(), []float32{0, 1}, 1, "all")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if hits[0].Chunk.ID != "a" || hits[0].Chunk.Text != "updated" {
		t.Errorf("upsert did not replace chunk: %+v", hits[0].Chunk)
	}

	n, _ := m.Count(context.Background(), "all")
	if n != 4 {
		t.Errorf("Count = %d after replace, want 4", n)
	}
}

func TestRebuildIsIdempotent(t *testing.T) {
	source := []Chunk{
		chunk("a", "admissions", 1, 0),
		chunk("b", "academics", 0, 1),
	}
	m := NewMemory(log.NewNop())

	if err := m.Rebuild(context.Background(), source); err != nil {
		t.Fatalf("first rebuild: %v", err)
	}
	first, err := m.Search(context.Background(), []float32{0.7, 0.7}, 5, "all")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if err := m.Rebuild(context.Background(), source); err != nil {
		t.Fatalf("second rebuild: %v", err)
	}
	second, err := m.Search(context.Background(), []float32{0.7, 0.7}, 5, "all")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("result count changed across identical rebuilds: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Chunk.ID != second[i].Chunk.ID || first[i].Similarity != second[i].Similarity {
			t.Errorf("ranking changed at %d: %v vs %v", i, first[i], second[i])
		}
	}
}

func TestRebuildRejectsInvalidChunksKeepsOldGeneration(t *testing.T) {
	m := seeded(t)
	before := m.Generation()

	err := m.Rebuild(context.Background(), []Chunk{{ID: "bad"}}) // no embedding
	if !errors.Is(err, ErrRebuildFailed) {
		t.Fatalf("error = %v, want ErrRebuildFailed", err)
	}
	if m.Generation() != before {
		t.Error("failed rebuild advanced the generation")
	}
	if n, _ := m.Count(context.Background(), "all"); n != 4 {
		t.Errorf("old generation lost: count = %d", n)
	}
}

func TestRebuildNeverExposesMixedGenerations(t *testing.T) {
	m := NewMemory(log.NewNop())

	genChunks := func(gen int) []Chunk {
		chunks := make([]Chunk, 8)
		for i := range chunks {
			chunks[i] = Chunk{
				ID:        fmt.Sprintf("c%d", i),
				Text:      "t",
				Embedding: []float32{1, 0},
				Metadata:  map[string]string{"gen": fmt.Sprintf("%d", gen), MetadataTopic: "all"},
			}
		}
		return chunks
	}
	if err := m.Rebuild(context.Background(), genChunks(0)); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	done := make(chan struct{})
	writerDone := make(chan struct{})

	// Writer rebuilds continuously with fresh generation markers.
	go func() {
		defer close(writerDone)
		for gen := 1; ; gen++ {
			select {
			case <-done:
				return
			default:
			}
			if err := m.Rebuild(ctx, genChunks(gen)); err != nil {
				t.Errorf("rebuild: %v", err)
				return
			}
		}
	}()

	// Readers must always observe a uniform generation marker.
	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				hits, err := m.Search(ctx, []float32{1, 0}, 8, "")
				if err != nil {
					t.Errorf("search: %v", err)
					return
				}
				if len(hits) == 0 {
					continue
				}
				want := hits[0].Chunk.Metadata["gen"]
				for _, h := range hits {
					if h.Chunk.Metadata["gen"] != want {
						t.Errorf("mixed generations in one read: %s vs %s",
							h.Chunk.Metadata["gen"], want)
						return
					}
				}
			}
		}()
	}

	wg.Wait()
	close(done)
	<-writerDone
}

func TestSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.json")

	m := seeded(t)
	if err := m.SaveSnapshot(path); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	restored := NewMemory(log.NewNop())
	if err := restored.LoadSnapshot(path); err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}

	if restored.Generation() != m.Generation() {
		t.Errorf("generation = %d, want %d", restored.Generation(), m.Generation())
	}

	want, _ := m.Search(context.Background(), []float32{1, 0}, 10, "all")
	got, err := restored.Search(context.Background(), []float32{1, 0}, 10, "all")
	if err != nil {
		t.Fatalf("Search after restore: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("restored index has %d hits, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Chunk.ID != want[i].Chunk.ID {
			t.Errorf("restored ranking differs at %d: %s vs %s",
				i, got[i].Chunk.ID, want[i].Chunk.ID)
		}
	}
}

func TestLoadSnapshotMissingFileIsEmpty(t *testing.T) {
	m := NewMemory(log.NewNop())
	if err := m.LoadSnapshot(filepath.Join(t.TempDir(), "absent.json")); err != nil {
		t.Fatalf("missing snapshot must not error: %v", err)
	}
	if n, _ := m.Count(context.Background(), "all"); n != 0 {
		t.Errorf("index not empty after missing snapshot load")
	}
}
