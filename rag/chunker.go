package rag

import (
	"fmt"
	"maps"

	"github.com/tmc/langchaingo/textsplitter"
)

// Chunker splits documents into overlapping chunks using langchaingo's
// recursive character splitter.
type Chunker struct {
	splitter textsplitter.RecursiveCharacter
}

// NewChunker creates a Chunker with the given size and overlap in characters.
func NewChunker(size, overlap int) *Chunker {
	return &Chunker{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
		),
	}
}

// Split chunks docs in order. Chunk indexes run across all docs of the same
// source so that multi-page sources get unique, stable ids.
func (c *Chunker) Split(docs []Document) ([]Chunk, error) {
	var chunks []Chunk
	next := map[string]int{}
	for _, doc := range docs {
		parts, err := c.splitter.SplitText(doc.Text)
		if err != nil {
			return nil, fmt.Errorf("split %s: %w", doc.Source, err)
		}
		page, _ := doc.Metadata["page"].(int)
		for _, part := range parts {
			idx := next[doc.Source]
			next[doc.Source]++
			md := make(map[string]any, len(doc.Metadata))
			maps.Copy(md, doc.Metadata)
			chunks = append(chunks, Chunk{
				ID:       ChunkID(doc.Source, idx),
				Text:     part,
				Source:   doc.Source,
				Index:    idx,
				Page:     page,
				Metadata: md,
			})
		}
	}
	return chunks, nil
}
