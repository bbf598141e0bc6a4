package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campushq/advisor/internal/index"
)

func sentence(word string, n int) string {
	return strings.TrimSpace(strings.Repeat(word+" ", n)) + "."
}

func TestChunkSkipsNearEmptyPages(t *testing.T) {
	doc := Document{
		ID: "catalog",
		Pages: []Page{
			{Number: 1, Text: "Cover"},
			{Number: 2, Text: sentence("tuition and fees are due before the semester starts", 5)},
		},
	}

	chunks := Chunker{}.Chunk(doc)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.Equal(t, "2", c.Metadata["page"])
	}
}

func TestChunkDropsSmallFragments(t *testing.T) {
	doc := Document{
		ID:    "catalog",
		Pages: []Page{{Number: 1, Text: strings.Repeat("x", minPageChars) + ". Short tail."}},
	}

	chunks := Chunker{}.Chunk(doc)
	for _, c := range chunks {
		assert.GreaterOrEqual(t, len(c.Text), minChunkChars)
	}
}

func TestChunkBoundsChunkSize(t *testing.T) {
	var b strings.Builder
	for range 40 {
		b.WriteString(sentence("the welding program includes hands on shop instruction", 3))
		b.WriteString(" ")
	}
	doc := Document{ID: "catalog", Pages: []Page{{Number: 3, Text: b.String()}}}

	chunks := Chunker{}.Chunk(doc)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c.Text), maxChunkChars)
	}
}

func TestChunkIDsAreDeterministic(t *testing.T) {
	doc := Document{
		ID: "catalog-2026",
		Pages: []Page{
			{Number: 1, Text: sentence("admission requirements include a completed application", 6)},
			{Number: 2, Text: sentence("tuition for the program is charged per credit", 6)},
		},
	}

	first := Chunker{}.Chunk(doc)
	second := Chunker{}.Chunk(doc)
	require.Equal(t, len(first), len(second))

	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Contains(t, first[i].ID, "catalog-2026:")
	}
}

func TestChunkTagsTopics(t *testing.T) {
	doc := Document{
		ID: "catalog",
		Pages: []Page{
			{Number: 1, Text: sentence("tuition fees scholarships and payment plans for students", 4)},
			{Number: 2, Text: sentence("campus parking is available in the north lot every day", 4)},
		},
	}

	chunks := Chunker{}.Chunk(doc)
	require.Len(t, chunks, 2)
	assert.Equal(t, "financial-aid", chunks[0].Metadata[index.MetadataTopic])
	assert.Equal(t, "general", chunks[1].Metadata[index.MetadataTopic])
}

func TestSplitSentencesKeepsOversizedSentenceWhole(t *testing.T) {
	long := strings.Repeat("word ", 300) // well over maxChunkChars, no periods
	parts := splitSentences(long)
	require.Len(t, parts, 1)
}
