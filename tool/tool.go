// Package tool exposes knowledge-base search, web search and a calculator
// as langchaingo tools, and the web search client used by the agent.
package tool

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/smallnest/adaptiverag/config"
	"github.com/tmc/langchaingo/tools"
)

// ErrNotConfigured is returned when a tool lacks required credentials. It
// wraps config.ErrConfiguration.
var ErrNotConfigured = fmt.Errorf("%w: tool not configured", config.ErrConfiguration)

// WebResult is one web search snippet.
type WebResult struct {
	Title   string  `json:"title"`
	Content string  `json:"content"`
	URL     string  `json:"url"`
	Score   float64 `json:"score,omitempty"`
}

// WebSearcher queries a web search API.
type WebSearcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]WebResult, error)
}

// FormatWebResults renders results for a model or a terminal.
func FormatWebResults(results []WebResult) string {
	if len(results) == 0 {
		return "No results found"
	}
	parts := make([]string, len(results))
	for i, r := range results {
		title := r.Title
		if title == "" {
			title = "No title"
		}
		content := r.Content
		if content == "" {
			content = "No content"
		}
		parts[i] = fmt.Sprintf("Title: %s\nContent: %s\nURL: %s", title, content, r.URL)
	}
	return strings.Join(parts, "\n\n")
}

// Registry holds tools by name.
type Registry struct {
	tools map[string]tools.Tool
}

// NewRegistry creates a registry holding ts.
func NewRegistry(ts ...tools.Tool) *Registry {
	r := &Registry{tools: make(map[string]tools.Tool, len(ts))}
	for _, t := range ts {
		r.Register(t)
	}
	return r
}

// Register adds or replaces t.
func (r *Registry) Register(t tools.Tool) {
	r.tools[t.Name()] = t
}

// Get returns the tool called name.
func (r *Registry) Get(name string) (tools.Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns registered tool names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Call runs the named tool.
func (r *Registry) Call(ctx context.Context, name, input string) (string, error) {
	t, ok := r.tools[name]
	if !ok {
		return "", fmt.Errorf("unknown tool %q", name)
	}
	return t.Call(ctx, input)
}
