// Package store provides rag.VectorStore implementations.
package store

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/smallnest/adaptiverag/rag"
)

// InMemoryVectorStore keeps chunks in insertion order and scores them by
// cosine similarity. Searches share a read lock; ingestion is exclusive.
type InMemoryVectorStore struct {
	mu     sync.RWMutex
	chunks []rag.Chunk
	dim    int
}

var _ rag.VectorStore = (*InMemoryVectorStore)(nil)

// NewInMemoryVectorStore creates an empty store.
func NewInMemoryVectorStore() *InMemoryVectorStore {
	return &InMemoryVectorStore{}
}

// Search returns up to k results ordered by descending score. Equal scores
// keep insertion order.
func (s *InMemoryVectorStore) Search(ctx context.Context, query []float32, k int) ([]rag.SearchResult, error) {
	if k <= 0 {
		return nil, rag.ErrInvalidK
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.chunks) == 0 {
		return []rag.SearchResult{}, nil
	}
	if len(query) != s.dim {
		return nil, fmt.Errorf("%w: query has %d, store has %d", rag.ErrDimensionMismatch, len(query), s.dim)
	}

	results := make([]rag.SearchResult, len(s.chunks))
	for i, c := range s.chunks {
		score, err := rag.CosineSimilarity(query, c.Embedding)
		if err != nil {
			return nil, err
		}
		results[i] = rag.SearchResult{Chunk: c, Score: score}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if k > len(results) {
		k = len(results)
	}
	out := make([]rag.SearchResult, k)
	for i := range out {
		out[i] = rag.SearchResult{Chunk: cloneChunk(results[i].Chunk), Score: results[i].Score}
	}
	return out, nil
}

// Ingest replaces the chunks of every source present in chunks.
func (s *InMemoryVectorStore) Ingest(ctx context.Context, chunks []rag.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ingestLocked(chunks)
}

func (s *InMemoryVectorStore) ingestLocked(chunks []rag.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	dim := len(chunks[0].Embedding)
	sources := map[string]bool{}
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			return fmt.Errorf("chunk %s has no embedding", c.ID)
		}
		if len(c.Embedding) != dim {
			return fmt.Errorf("%w: chunk %s has %d, batch has %d", rag.ErrDimensionMismatch, c.ID, len(c.Embedding), dim)
		}
		sources[c.Source] = true
	}

	kept := slices.DeleteFunc(slices.Clone(s.chunks), func(c rag.Chunk) bool {
		return sources[c.Source]
	})
	if len(kept) > 0 && s.dim != dim {
		return fmt.Errorf("%w: batch has %d, store has %d", rag.ErrDimensionMismatch, dim, s.dim)
	}

	for _, c := range chunks {
		kept = append(kept, cloneChunk(c))
	}
	s.chunks = kept
	s.dim = dim
	return nil
}

// DeleteSource drops the chunks of source.
func (s *InMemoryVectorStore) DeleteSource(ctx context.Context, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteLocked(source)
	return nil
}

func (s *InMemoryVectorStore) deleteLocked(source string) {
	s.chunks = slices.DeleteFunc(slices.Clone(s.chunks), func(c rag.Chunk) bool {
		return c.Source == source
	})
	if len(s.chunks) == 0 {
		s.chunks = nil
		s.dim = 0
	}
}

// Reset drops every chunk.
func (s *InMemoryVectorStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = nil
	s.dim = 0
	return nil
}

// Stats returns chunk counts overall and per source.
func (s *InMemoryVectorStore) Stats(ctx context.Context) (rag.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := rag.Stats{TotalChunks: len(s.chunks), BySource: map[string]int{}, Dimension: s.dim}
	for _, c := range s.chunks {
		st.BySource[c.Source]++
	}
	return st, nil
}

// Close is a no-op.
func (s *InMemoryVectorStore) Close() error { return nil }

func cloneChunk(c rag.Chunk) rag.Chunk {
	c.Embedding = slices.Clone(c.Embedding)
	if c.Metadata != nil {
		c.Metadata = maps.Clone(c.Metadata)
	}
	return c
}
