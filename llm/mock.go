package llm

import (
	"context"
	"errors"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

// Call records one request seen by a MockModel.
type Call struct {
	Messages []llms.MessageContent
	Options  llms.CallOptions
}

// MockModel is a scripted llms.Model for tests. Each request is answered by
// Respond, which sees the messages and resolved call options.
type MockModel struct {
	Respond func(call Call) (string, error)

	mu    sync.Mutex
	calls []Call
}

var _ llms.Model = (*MockModel)(nil)

// GenerateContent implements llms.Model.
func (m *MockModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	var opts llms.CallOptions
	for _, o := range options {
		o(&opts)
	}
	call := Call{Messages: messages, Options: opts}

	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()

	if m.Respond == nil {
		return nil, errors.New("mock model has no script")
	}
	text, err := m.Respond(call)
	if err != nil {
		return nil, err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: text}}}, nil
}

// Call implements llms.Model.
func (m *MockModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

// Calls returns a copy of every request seen so far.
func (m *MockModel) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// TextOf concatenates the text parts of a message.
func TextOf(msg llms.MessageContent) string {
	var s string
	for _, p := range msg.Parts {
		if t, ok := p.(llms.TextContent); ok {
			s += t.Text
		}
	}
	return s
}
