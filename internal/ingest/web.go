package ingest

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/gocolly/colly/v2"
)

// defaultMaxPages bounds a catalog crawl so a misconfigured start URL
// cannot walk an entire site.
const defaultMaxPages = 200

// CatalogSource crawls an institutional catalog site and extracts the
// readable text of each page. Each crawled URL becomes one single-page
// document.
type CatalogSource struct {
	startURL string
	domain   string
	maxPages int
	logger   *slog.Logger
}

// NewCatalogSource creates a crawler rooted at startURL, restricted to
// allowedDomain.
func NewCatalogSource(startURL, allowedDomain string, logger *slog.Logger) *CatalogSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogSource{
		startURL: startURL,
		domain:   allowedDomain,
		maxPages: defaultMaxPages,
		logger:   logger,
	}
}

func (s *CatalogSource) Name() string { return "catalog:" + s.domain }

func (s *CatalogSource) Fetch(ctx context.Context) ([]Document, error) {
	c := colly.NewCollector(
		colly.AllowedDomains(s.domain),
		colly.MaxDepth(3),
	)

	var docs []Document
	seen := make(map[string]bool)

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil || len(docs) >= s.maxPages {
			r.Abort()
		}
	})

	c.OnHTML("a[href]", func(e *colly.HTMLElement) {
		link := e.Request.AbsoluteURL(e.Attr("href"))
		if link != "" && !seen[link] {
			seen[link] = true
			_ = e.Request.Visit(link)
		}
	})

	c.OnResponse(func(r *colly.Response) {
		if !strings.Contains(r.Headers.Get("Content-Type"), "text/html") {
			return
		}

		text := s.extractText(r.Body, r.Request.URL)
		if text == "" {
			return
		}
		docs = append(docs, Document{
			ID:    urlDocumentID(r.Request.URL.Path),
			Pages: []Page{{Number: 1, Text: text}},
		})
	})

	c.OnError(func(r *colly.Response, err error) {
		s.logger.Warn("catalog page fetch failed", "url", r.Request.URL.String(), "error", err)
	})

	if err := c.Visit(s.startURL); err != nil {
		return nil, fmt.Errorf("crawling %s: %w", s.startURL, err)
	}
	c.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.logger.Info("catalog crawl finished", "pages", len(docs))
	return docs, nil
}

// extractText pulls the main article text from an HTML page. Readability
// extraction comes first; pages it rejects (index pages, thin layouts)
// fall back to the text of the main content element.
func (s *CatalogSource) extractText(body []byte, pageURL *url.URL) string {
	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		return strings.TrimSpace(article.TextContent)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		s.logger.Warn("parsing catalog page", "url", pageURL.String(), "error", err)
		return ""
	}
	return strings.TrimSpace(doc.Find("main, article, body").First().Text())
}

// urlDocumentID turns a URL path into a stable document ID.
func urlDocumentID(path string) string {
	id := strings.Trim(path, "/")
	if id == "" {
		return "index"
	}
	id = strings.TrimSuffix(id, ".html")
	return strings.ReplaceAll(id, "/", "-")
}
