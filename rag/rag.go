// Package rag holds the retrieval side of adaptiverag: document chunks,
// embedders, the vector store contract and query-time retrieval.
package rag

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrDimensionMismatch is returned when vectors of different sizes are compared or stored together.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrInvalidK is returned when a search asks for a non-positive number of results.
	ErrInvalidK = errors.New("k must be positive")
)

// Document is the output of a loader: extracted text plus metadata.
type Document struct {
	Source   string
	Text     string
	Metadata map[string]any
}

// Chunk is a bounded span of a source document and the unit of retrieval.
// Chunks are immutable once stored.
type Chunk struct {
	ID        string
	Text      string
	Embedding []float32
	Source    string
	Index     int
	// Page is 1-based, zero when the source has no pages.
	Page     int
	Metadata map[string]any
}

// ChunkID returns the deterministic id of the index-th chunk of source.
func ChunkID(source string, index int) string {
	return fmt.Sprintf("%s#%d", source, index)
}

// SearchResult pairs a chunk with its similarity to the query.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// Stats summarizes the contents of a vector store.
type Stats struct {
	TotalChunks int
	BySource    map[string]int
	Dimension   int
}

// Embedder turns text into vectors. Ingestion and query time must use the
// same embedder so that vectors are comparable.
type Embedder interface {
	EmbedDocument(ctx context.Context, text string) ([]float32, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	GetDimension() int
}

// VectorStore owns the collection of embedded chunks.
//
// Search may be called concurrently. Ingest and Reset take exclusive access.
type VectorStore interface {
	// Search returns up to k chunks ordered by descending score, ties in
	// insertion order.
	Search(ctx context.Context, query []float32, k int) ([]SearchResult, error)

	// Ingest stores chunks. For every source present in chunks, previously
	// stored chunks of that source are replaced.
	Ingest(ctx context.Context, chunks []Chunk) error

	// DeleteSource removes every chunk of source. Deleting an unknown
	// source is not an error.
	DeleteSource(ctx context.Context, source string) error

	// Reset drops the whole collection.
	Reset(ctx context.Context) error

	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// Retriever embeds a query and returns the top K chunks.
type Retriever struct {
	Embedder Embedder
	Store    VectorStore
	TopK     int
}

// NewRetriever creates a Retriever. topK <= 0 defaults to 3.
func NewRetriever(embedder Embedder, store VectorStore, topK int) *Retriever {
	if topK <= 0 {
		topK = 3
	}
	return &Retriever{Embedder: embedder, Store: store, TopK: topK}
}

// Retrieve returns the best matching chunks for query. An empty store yields
// an empty slice and no error.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]SearchResult, error) {
	vec, err := r.Embedder.EmbedDocument(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	results, err := r.Store.Search(ctx, vec, r.TopK)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	if results == nil {
		results = []SearchResult{}
	}
	return results, nil
}
