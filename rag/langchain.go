package rag

import (
	"context"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/tmc/langchaingo/embeddings"
)

// googleAIBatchSize is the most texts the Gemini batch endpoint takes per call.
const googleAIBatchSize = 100

// LangChainEmbedder serves Embedder from a langchaingo embeddings.Embedder.
// Every reply is checked for one non-empty vector per text, all of the same
// dimension, before it reaches the vector store.
type LangChainEmbedder struct {
	embedder  embeddings.Embedder
	dimension atomic.Int64
}

// NewLangChainEmbedder wraps e.
func NewLangChainEmbedder(e embeddings.Embedder) *LangChainEmbedder {
	return &LangChainEmbedder{embedder: e}
}

// NewGoogleAIEmbedder embeds with the default embedding model of client,
// typically a *googleai.GoogleAI.
func NewGoogleAIEmbedder(client embeddings.EmbedderClient) (*LangChainEmbedder, error) {
	e, err := embeddings.NewEmbedder(client, embeddings.WithBatchSize(googleAIBatchSize))
	if err != nil {
		return nil, fmt.Errorf("create gemini embedder: %w", err)
	}
	return NewLangChainEmbedder(e), nil
}

// EmbedDocument embeds a single text.
func (l *LangChainEmbedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	vecs, err := l.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedDocuments embeds texts, preserving order. texts is not modified.
func (l *LangChainEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := l.embedder.EmbedDocuments(ctx, slices.Clone(texts))
	if err != nil {
		return nil, fmt.Errorf("embed documents: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embed documents: got %d vectors for %d inputs", len(vecs), len(texts))
	}
	dim := len(vecs[0])
	for i, v := range vecs {
		if len(v) == 0 {
			return nil, fmt.Errorf("embed documents: empty vector for input %d", i)
		}
		if len(v) != dim {
			return nil, fmt.Errorf("%w: input %d has %d, input 0 has %d", ErrDimensionMismatch, i, len(v), dim)
		}
	}
	l.dimension.Store(int64(dim))
	return vecs, nil
}

// GetDimension returns the size of the last vectors returned, zero before the first call.
func (l *LangChainEmbedder) GetDimension() int {
	return int(l.dimension.Load())
}
