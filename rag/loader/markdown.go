package loader

import (
	"context"
	"fmt"
	"html"
	"os"

	"github.com/gomarkdown/markdown"
	"github.com/microcosm-cc/bluemonday"
	"github.com/smallnest/adaptiverag/rag"
)

// LoadMarkdown renders markdown to HTML and strips every tag, so chunks
// carry prose rather than markup.
func LoadMarkdown(_ context.Context, path string) ([]rag.Document, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}

	rendered := markdown.ToHTML(markdown.NormalizeNewlines(src), nil, nil)
	text := html.UnescapeString(bluemonday.StrictPolicy().Sanitize(string(rendered)))

	return []rag.Document{{
		Source:   path,
		Text:     normalize(text),
		Metadata: metadata(path, "markdown"),
	}}, nil
}
