// Package ingest turns catalog documents into embedded chunks and feeds
// them to the vector index as one atomic rebuild.
package ingest

import (
	"fmt"
	"strings"

	"github.com/campushq/advisor/internal/domain"
	"github.com/campushq/advisor/internal/index"
	"github.com/campushq/advisor/internal/router"
)

const (
	// minPageChars skips mostly empty pages (covers, dividers).
	minPageChars = 50

	// maxChunkChars is the target chunk size. Sentences accumulate until
	// adding the next one would cross this limit.
	maxChunkChars = 1000

	// minChunkChars drops fragments too small to retrieve usefully.
	minChunkChars = 100
)

// Page is one page or section of a source document.
type Page struct {
	Number int
	Text   string
}

// Document is one catalog source document ready for chunking.
type Document struct {
	ID    string
	Pages []Page
}

// Chunker splits documents into index chunks. Chunk IDs are derived from
// document ID, page number, and position, so re-chunking the same source
// yields the same ID set.
type Chunker struct{}

// Chunk splits doc into chunks with topic metadata. Pages below
// minPageChars are skipped entirely; fragments below minChunkChars are
// dropped.
func (Chunker) Chunk(doc Document) []index.Chunk {
	var chunks []index.Chunk
	for _, page := range doc.Pages {
		text := strings.TrimSpace(page.Text)
		if len(text) < minPageChars {
			continue
		}

		ordinal := 0
		for _, part := range splitSentences(text) {
			if len(part) < minChunkChars {
				continue
			}
			chunks = append(chunks, index.Chunk{
				ID:         fmt.Sprintf("%s:%d:%d", doc.ID, page.Number, ordinal),
				DocumentID: doc.ID,
				Ordinal:    ordinal,
				Text:       part,
				Metadata: map[string]string{
					index.MetadataTopic: chunkTopic(part),
					"page":              fmt.Sprint(page.Number),
				},
			})
			ordinal++
		}
	}
	return chunks
}

// splitSentences accumulates sentences into parts of at most
// maxChunkChars. A single sentence longer than the limit becomes its own
// part rather than being cut mid-sentence.
func splitSentences(text string) []string {
	sentences := strings.Split(text, ". ")

	var parts []string
	var current strings.Builder
	for _, sentence := range sentences {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		if !strings.HasSuffix(sentence, ".") {
			sentence += "."
		}

		if current.Len() > 0 && current.Len()+len(sentence)+1 > maxChunkChars {
			parts = append(parts, strings.TrimSpace(current.String()))
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(sentence)
	}
	if current.Len() > 0 {
		parts = append(parts, strings.TrimSpace(current.String()))
	}
	return parts
}

// chunkTopic tags a chunk with the domain its text scores highest on,
// reusing the routing keyword table so indexing and querying agree on
// what belongs to which office.
func chunkTopic(text string) string {
	decision := router.Classify(domain.Query{Text: text})
	return string(decision.Domains[0])
}
