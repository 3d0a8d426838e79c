// Package loader turns files into rag.Documents.
package loader

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/smallnest/adaptiverag/rag"
)

// ErrUnsupported is returned by ForFile for extensions without a loader.
var ErrUnsupported = errors.New("unsupported document type")

// Loader loads documents from a single file.
type Loader interface {
	Load(ctx context.Context, path string) ([]rag.Document, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, path string) ([]rag.Document, error)

// Load implements Loader.
func (f LoaderFunc) Load(ctx context.Context, path string) ([]rag.Document, error) {
	return f(ctx, path)
}

var byExtension = map[string]Loader{
	".txt":      LoaderFunc(LoadText),
	".text":     LoaderFunc(LoadText),
	".pdf":      LoaderFunc(LoadPDF),
	".md":       LoaderFunc(LoadMarkdown),
	".markdown": LoaderFunc(LoadMarkdown),
	".html":     LoaderFunc(LoadHTML),
	".htm":      LoaderFunc(LoadHTML),
	".docx":     LoaderFunc(LoadDOCX),
}

// ForFile picks a loader by file extension.
func ForFile(path string) (Loader, error) {
	if l, ok := byExtension[strings.ToLower(filepath.Ext(path))]; ok {
		return l, nil
	}
	return nil, ErrUnsupported
}

// Supported reports whether ForFile has a loader for path.
func Supported(path string) bool {
	_, err := ForFile(path)
	return err == nil
}

func metadata(path, kind string) map[string]any {
	return map[string]any{
		"source": path,
		"type":   kind,
	}
}

// normalize trims lines and collapses runs of blank lines.
func normalize(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, l := range lines {
		l = strings.Join(strings.Fields(l), " ")
		if l == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, l)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
