package loader

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fumiama/go-docx"
	"github.com/smallnest/adaptiverag/rag"
)

// LoadDOCX loads a Word document as one document. Paragraphs are separated
// by blank lines; tables are rendered as markdown.
func LoadDOCX(_ context.Context, path string) ([]rag.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file %s: %w", path, err)
	}

	doc, err := docx.Parse(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to parse docx %s: %w", path, err)
	}

	var blocks []string
	for _, item := range doc.Document.Body.Items {
		var text string
		switch it := item.(type) {
		case *docx.Paragraph:
			text = it.String()
		case *docx.Table:
			text = it.String()
		}
		if strings.TrimSpace(text) != "" {
			blocks = append(blocks, text)
		}
	}

	return []rag.Document{{
		Source:   path,
		Text:     normalize(strings.Join(blocks, "\n\n")),
		Metadata: metadata(path, "docx"),
	}}, nil
}
