package llm

import (
	"context"
	"fmt"

	"github.com/smallnest/adaptiverag/config"
	"github.com/tmc/langchaingo/llms/googleai"
)

// geminiMaxTokens leaves room for the thinking tokens gemini-2.5 models
// spend before the visible answer.
const geminiMaxTokens = 8192

// NewGoogleAIModel builds a Gemini client serving cfg.ChatModel and
// cfg.EmbedModel. Callers must Close it.
func NewGoogleAIModel(ctx context.Context, cfg *config.Config) (*googleai.GoogleAI, error) {
	if cfg.GoogleAPIKey == "" {
		return nil, fmt.Errorf("%w: GOOGLE_API_KEY is required", config.ErrConfiguration)
	}
	model, err := googleai.New(ctx,
		googleai.WithAPIKey(cfg.GoogleAPIKey),
		googleai.WithDefaultModel(cfg.ChatModel),
		googleai.WithDefaultEmbeddingModel(cfg.EmbedModel),
		googleai.WithDefaultMaxTokens(geminiMaxTokens),
	)
	if err != nil {
		if model != nil {
			model.Close()
		}
		return nil, fmt.Errorf("%w: %w", ErrLLM, err)
	}
	return model, nil
}
