// Package llm adapts langchaingo chat models to the narrow completion
// contract used by the agent, and decodes JSON structured output.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

var (
	// ErrLLM wraps any failure reported by the underlying model provider.
	ErrLLM = errors.New("llm call failed")

	// ErrInvalidStructuredOutput means the model reply did not satisfy the requested schema.
	ErrInvalidStructuredOutput = errors.New("invalid structured output")
)

// Completer produces a single text completion for a list of messages.
type Completer interface {
	Complete(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (string, error)
}

// LangChainCompleter implements Completer on top of a langchaingo llms.Model.
type LangChainCompleter struct {
	Model llms.Model
}

// NewLangChainCompleter wraps model.
func NewLangChainCompleter(model llms.Model) *LangChainCompleter {
	return &LangChainCompleter{Model: model}
}

// Complete calls GenerateContent and returns the first choice.
func (c *LangChainCompleter) Complete(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (string, error) {
	resp, err := c.Model.GenerateContent(ctx, messages, options...)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrLLM, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty response", ErrLLM)
	}
	return resp.Choices[0].Content, nil
}

// Validator is implemented by structured outputs that check their own
// required fields after decoding.
type Validator interface {
	Validate() error
}

// CompleteJSON asks the model for a JSON object and decodes it into out.
// If out implements Validator, it must pass validation.
func CompleteJSON(ctx context.Context, c Completer, messages []llms.MessageContent, out any, options ...llms.CallOption) error {
	opts := append([]llms.CallOption{llms.WithJSONMode()}, options...)
	raw, err := c.Complete(ctx, messages, opts...)
	if err != nil {
		return err
	}
	return DecodeJSON(raw, out)
}

// DecodeJSON decodes a model reply into out. Markdown code fences around the
// object are tolerated; anything else that is not a single JSON object is not.
func DecodeJSON(raw string, out any) error {
	body := stripFences(raw)
	if body == "" {
		return fmt.Errorf("%w: empty reply", ErrInvalidStructuredOutput)
	}
	if err := json.Unmarshal([]byte(body), out); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidStructuredOutput, err)
	}
	if v, ok := out.(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidStructuredOutput, err)
		}
	}
	return nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// System, Human and AI build single-text messages.
func System(text string) llms.MessageContent { return llms.TextParts(llms.ChatMessageTypeSystem, text) }
func Human(text string) llms.MessageContent  { return llms.TextParts(llms.ChatMessageTypeHuman, text) }
func AI(text string) llms.MessageContent     { return llms.TextParts(llms.ChatMessageTypeAI, text) }
