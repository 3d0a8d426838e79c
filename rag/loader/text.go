package loader

import (
	"context"
	"fmt"
	"os"
	"unicode/utf8"

	"github.com/smallnest/adaptiverag/rag"
)

// LoadText loads a UTF-8 text file as one document.
func LoadText(_ context.Context, path string) ([]rag.Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	if !utf8.Valid(content) {
		return nil, fmt.Errorf("file %s is not valid UTF-8", path)
	}
	return []rag.Document{{
		Source:   path,
		Text:     string(content),
		Metadata: metadata(path, "text"),
	}}, nil
}
