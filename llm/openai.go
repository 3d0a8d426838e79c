package llm

import (
	"fmt"

	"github.com/smallnest/adaptiverag/config"
	"github.com/tmc/langchaingo/llms/openai"
)

// NewOpenAIModel builds the chat model named in cfg.
func NewOpenAIModel(cfg *config.Config) (*openai.LLM, error) {
	if cfg.OpenAIKey == "" {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY is required", config.ErrConfiguration)
	}
	opts := []openai.Option{
		openai.WithToken(cfg.OpenAIKey),
		openai.WithModel(cfg.ChatModel),
	}
	if cfg.OpenAIBaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.OpenAIBaseURL))
	}
	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLLM, err)
	}
	return model, nil
}
