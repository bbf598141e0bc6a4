package retrieve

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/campushq/advisor/internal/domain"
	"github.com/campushq/advisor/internal/embed"
	"github.com/campushq/advisor/internal/index"
	"github.com/campushq/advisor/internal/log"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubIndex struct {
	hits      []index.Hit
	err       error
	lastScope string
	lastK     int
	calls     int
}

func (s *stubIndex) Search(_ context.Context, _ []float32, k int, scope string) ([]index.Hit, error) {
	s.calls++
	s.lastScope = scope
	s.lastK = k
	return s.hits, s.err
}

func (s *stubIndex) Count(context.Context, string) (int, error) {
	return len(s.hits), nil
}

type stubEmbedder struct {
	vec   []float32
	err   error
	calls int
}

func (s *stubEmbedder) Embed(context.Context, string) ([]float32, error) {
	s.calls++
	return s.vec, s.err
}

func hit(id, text string, sim float32) index.Hit {
	return index.Hit{
		Chunk:      index.Chunk{ID: id, Text: text, Embedding: []float32{1, 0}},
		Similarity: sim,
	}
}

func TestRetrieveAssignsContiguousRanks(t *testing.T) {
	idx := &stubIndex{hits: []index.Hit{
		hit("c1", "tuition is due in august", 0.91),
		hit("c2", "aid applications open in october", 0.74),
		hit("c3", "payment plans are available", 0.52),
	}}
	r := New(idx, &stubEmbedder{vec: []float32{1, 0}}, log.NewNop())

	results, err := r.Retrieve(context.Background(), "when is tuition due", "financial-aid", 3)
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i, res := range results {
		assert.Equal(t, i, res.Rank)
	}
	assert.Equal(t, "c1", results[0].ChunkID)
	assert.InDelta(t, 0.91, results[0].Score, 1e-6)
	assert.Equal(t, "financial-aid", idx.lastScope)
}

func TestRetrieveEmptyIndexIsNotAnError(t *testing.T) {
	r := New(&stubIndex{}, &stubEmbedder{vec: []float32{1, 0}}, log.NewNop())

	results, err := r.Retrieve(context.Background(), "welding program", "academics", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetrieveEmbedderUnavailable(t *testing.T) {
	idx := &stubIndex{hits: []index.Hit{hit("c1", "x", 0.9)}}
	r := New(idx, &stubEmbedder{err: embed.ErrUnavailable}, log.NewNop())

	results, err := r.Retrieve(context.Background(), "anything", "", 5)
	require.ErrorIs(t, err, embed.ErrUnavailable)
	assert.Nil(t, results)
	assert.Zero(t, idx.calls, "search must not run without a query vector")
}

func TestRetrieveSearchErrorPropagates(t *testing.T) {
	wantErr := errors.New("connection reset")
	r := New(&stubIndex{err: wantErr}, &stubEmbedder{vec: []float32{1, 0}}, log.NewNop())

	_, err := r.Retrieve(context.Background(), "anything", "", 5)
	require.ErrorIs(t, err, wantErr)
}

func TestRetrieveDefaultsTopKAndScope(t *testing.T) {
	idx := &stubIndex{}
	r := New(idx, &stubEmbedder{vec: []float32{1, 0}}, log.NewNop())

	_, err := r.Retrieve(context.Background(), "anything", "", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultTopK, idx.lastK)
	assert.Equal(t, domain.ScopeAll, idx.lastScope)
}

func TestRetrieveCachesQueryEmbeddings(t *testing.T) {
	emb := &stubEmbedder{vec: []float32{1, 0}}
	r := New(&stubIndex{}, emb, log.NewNop())

	for range 3 {
		_, err := r.Retrieve(context.Background(), "same question", "", 5)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, emb.calls)

	_, err := r.Retrieve(context.Background(), "different question", "", 5)
	require.NoError(t, err)
	assert.Equal(t, 2, emb.calls)
}
