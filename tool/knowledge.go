package tool

import (
	"context"
	"strings"

	"github.com/smallnest/adaptiverag/rag"
)

// KnowledgeBase searches the local vector store.
type KnowledgeBase struct {
	Retriever *rag.Retriever
}

// NewKnowledgeBase creates the knowledge base tool.
func NewKnowledgeBase(r *rag.Retriever) *KnowledgeBase {
	return &KnowledgeBase{Retriever: r}
}

// Name returns the name of the tool.
func (k *KnowledgeBase) Name() string { return "rag_search" }

// Description returns the description of the tool.
func (k *KnowledgeBase) Description() string {
	return "Top matching chunks from the local knowledge base (empty if none)."
}

// Call returns the matching chunk texts separated by blank lines.
func (k *KnowledgeBase) Call(ctx context.Context, input string) (string, error) {
	results, err := k.Retriever.Retrieve(ctx, input)
	if err != nil {
		return "", err
	}
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Chunk.Text
	}
	return strings.Join(texts, "\n\n"), nil
}
