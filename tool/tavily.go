package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
)

// TavilySearch is a tool that uses the Tavily Search API to search the web.
type TavilySearch struct {
	APIKey     string
	BaseURL    string
	Topic      string
	MaxResults int
	HTTPClient *http.Client
}

type TavilyOption func(*TavilySearch)

// WithTavilyBaseURL sets the base URL for the Tavily API.
func WithTavilyBaseURL(baseURL string) TavilyOption {
	return func(t *TavilySearch) {
		t.BaseURL = baseURL
	}
}

// WithTavilyTopic sets the search topic ("general" or "news").
func WithTavilyTopic(topic string) TavilyOption {
	return func(t *TavilySearch) {
		t.Topic = topic
	}
}

// WithTavilyMaxResults sets the default number of results used by Call.
func WithTavilyMaxResults(n int) TavilyOption {
	return func(t *TavilySearch) {
		if n > 0 {
			t.MaxResults = n
		}
	}
}

// WithTavilyHTTPClient sets the HTTP client.
func WithTavilyHTTPClient(c *http.Client) TavilyOption {
	return func(t *TavilySearch) {
		t.HTTPClient = c
	}
}

// NewTavilySearch creates a new TavilySearch tool.
// If apiKey is empty, it tries to read from TAVILY_API_KEY environment variable.
func NewTavilySearch(apiKey string, opts ...TavilyOption) (*TavilySearch, error) {
	if apiKey == "" {
		apiKey = os.Getenv("TAVILY_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: TAVILY_API_KEY not set", ErrNotConfigured)
	}

	t := &TavilySearch{
		APIKey:     apiKey,
		BaseURL:    "https://api.tavily.com/search",
		Topic:      "general",
		MaxResults: 3,
		HTTPClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Name returns the name of the tool.
func (t *TavilySearch) Name() string {
	return "web_search"
}

// Description returns the description of the tool.
func (t *TavilySearch) Description() string {
	return "Up-to-date web information via Tavily. Input should be a search query."
}

type tavilyRequest struct {
	Query      string `json:"query"`
	Topic      string `json:"topic"`
	MaxResults int    `json:"max_results"`
}

type tavilyResponse struct {
	Results []WebResult `json:"results"`
}

// Search queries Tavily for at most maxResults results.
func (t *TavilySearch) Search(ctx context.Context, query string, maxResults int) ([]WebResult, error) {
	if maxResults <= 0 {
		maxResults = t.MaxResults
	}
	body, err := json.Marshal(tavilyRequest{Query: query, Topic: t.Topic, MaxResults: maxResults})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.APIKey)

	resp, err := t.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: tavily rejected the api key (status %d)", ErrNotConfigured, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("tavily api returned status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(out.Results) > maxResults {
		out.Results = out.Results[:maxResults]
	}
	return out.Results, nil
}

// Call executes the search and formats the results.
func (t *TavilySearch) Call(ctx context.Context, input string) (string, error) {
	results, err := t.Search(ctx, input, t.MaxResults)
	if err != nil {
		return "", err
	}
	return FormatWebResults(results), nil
}
