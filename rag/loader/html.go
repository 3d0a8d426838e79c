package loader

import (
	"context"
	"fmt"
	"os"

	"github.com/PuerkitoBio/goquery"
	"github.com/smallnest/adaptiverag/rag"
)

// LoadHTML extracts the visible text of an HTML page. Script, style and
// navigation elements are dropped; the page title is kept as metadata.
func LoadHTML(_ context.Context, path string) ([]rag.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html %s: %w", path, err)
	}

	md := metadata(path, "html")
	if title := normalize(doc.Find("title").First().Text()); title != "" {
		md["title"] = title
	}

	doc.Find("script, style, noscript, nav, head").Remove()
	doc.Find("p, div, li, h1, h2, h3, h4, h5, h6, br, tr, section, article").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	return []rag.Document{{
		Source:   path,
		Text:     normalize(doc.Text()),
		Metadata: md,
	}}, nil
}
