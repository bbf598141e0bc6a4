package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Source supplies catalog documents for indexing.
type Source interface {
	// Name identifies the source in logs and stats.
	Name() string

	// Fetch returns the documents this source currently provides.
	Fetch(ctx context.Context) ([]Document, error)
}

// FileSource reads catalog documents from a directory of .md and .txt
// files, typically a converted PDF catalog. Each file is one document;
// form feeds separate pages, a file without them is a single page.
type FileSource struct {
	dir string
}

// NewFileSource creates a source over dir.
func NewFileSource(dir string) *FileSource {
	return &FileSource{dir: dir}
}

func (s *FileSource) Name() string { return "files:" + s.dir }

func (s *FileSource) Fetch(ctx context.Context) ([]Document, error) {
	var docs []Document
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".md" && ext != ".txt" {
			return nil
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}

		rel, err := filepath.Rel(s.dir, path)
		if err != nil {
			rel = filepath.Base(path)
		}
		docs = append(docs, fileDocument(rel, string(raw)))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", s.dir, err)
	}
	return docs, nil
}

// fileDocument builds a Document from file content. The document ID is
// the relative path without its extension, slashes folded to dashes.
func fileDocument(rel, content string) Document {
	id := strings.TrimSuffix(rel, filepath.Ext(rel))
	id = strings.ReplaceAll(filepath.ToSlash(id), "/", "-")

	doc := Document{ID: id}
	for i, pageText := range strings.Split(content, "\f") {
		doc.Pages = append(doc.Pages, Page{Number: i + 1, Text: pageText})
	}
	return doc
}
