package loader

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/smallnest/adaptiverag/rag"
	"github.com/tmc/langchaingo/documentloaders"
)

// LoadPDF extracts one document per non-empty page.
func LoadPDF(ctx context.Context, path string) ([]rag.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file %s: %w", path, err)
	}

	pages, err := documentloaders.NewPDF(f, info.Size()).Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pdf %s: %w", path, err)
	}

	docs := make([]rag.Document, 0, len(pages))
	for i, p := range pages {
		text := strings.TrimSpace(p.PageContent)
		if text == "" {
			continue
		}
		md := metadata(path, "pdf")
		md["page"] = i + 1
		if n, ok := p.Metadata["total_pages"]; ok {
			md["total_pages"] = n
		}
		docs = append(docs, rag.Document{Source: path, Text: text, Metadata: md})
	}
	return docs, nil
}
