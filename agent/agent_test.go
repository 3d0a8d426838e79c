package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/smallnest/adaptiverag/config"
	"github.com/smallnest/adaptiverag/graph"
	"github.com/smallnest/adaptiverag/llm"
	"github.com/smallnest/adaptiverag/log"
	"github.com/smallnest/adaptiverag/rag"
	"github.com/smallnest/adaptiverag/rag/ingest"
	vectorstore "github.com/smallnest/adaptiverag/rag/store"
	"github.com/smallnest/adaptiverag/store"
	"github.com/smallnest/adaptiverag/store/memory"
	"github.com/smallnest/adaptiverag/tool"
)

// script answers each model call according to the system prompt it carries.
type script struct {
	route  func() (string, error)
	judge  func() (string, error)
	answer func(prompt string) (string, error)
	direct func() (string, error)
}

func (s script) respond(call llm.Call) (string, error) {
	system := llm.TextOf(call.Messages[0])
	switch {
	case strings.HasPrefix(system, routerPrompt):
		return s.route()
	case strings.HasPrefix(system, judgePrompt):
		if s.judge == nil {
			return "", errors.New("judge was not expected")
		}
		return s.judge()
	case strings.HasPrefix(system, answerPrompt):
		return s.answer(system)
	case strings.HasPrefix(system, directPrompt):
		if s.direct == nil {
			return "", errors.New("direct reply was not expected")
		}
		return s.direct()
	}
	return "", fmt.Errorf("unexpected prompt %q", system)
}

func fixed(text string) func() (string, error) {
	return func() (string, error) { return text, nil }
}

type fakeSearcher struct {
	mu      sync.Mutex
	results []tool.WebResult
	err     error
	queries []string
}

func (f *fakeSearcher) Search(_ context.Context, query string, maxResults int) ([]tool.WebResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.results) > maxResults {
		return f.results[:maxResults], nil
	}
	return f.results, nil
}

func (f *fakeSearcher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

type completerFunc func(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (string, error)

func (f completerFunc) Complete(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (string, error) {
	return f(ctx, messages, options...)
}

type fixture struct {
	model   *llm.MockModel
	web     *fakeSearcher
	threads *memory.ThreadStore
	agent   *Agent
}

func newFixture(t *testing.T, s script, docs []rag.Document, opts ...Option) *fixture {
	t.Helper()
	ctx := context.Background()

	embedder := rag.NewMockEmbedder(64)
	vs := vectorstore.NewInMemoryVectorStore()
	if len(docs) > 0 {
		_, err := ingest.NewIndexer(embedder, vs, 500, 50).IndexDocuments(ctx, docs)
		require.NoError(t, err)
	}

	f := &fixture{
		model:   &llm.MockModel{Respond: s.respond},
		web:     &fakeSearcher{},
		threads: memory.NewThreadStore(),
	}
	all := append([]Option{
		WithRetriever(rag.NewRetriever(embedder, vs, 3)),
		WithWebSearch(f.web),
		WithThreadStore(f.threads),
		WithLogger(log.NoOpLogger{}),
	}, opts...)

	a, err := New(llm.NewLangChainCompleter(f.model), all...)
	require.NoError(t, err)
	f.agent = a
	return f
}

var langGraphDocs = []rag.Document{{
	Source: "langgraph.txt",
	Text:   "LangGraph is a library for building stateful multi-agent applications with LLMs as graphs of nodes.",
}}

func TestTurn_SmallTalkIsAnsweredByRouter(t *testing.T) {
	f := newFixture(t, script{
		route: fixed(`{"route": "end", "reply": "Hello! How can I help you today?"}`),
	}, nil)

	s, err := f.agent.Turn(context.Background(), "t1", "Hi there")
	require.NoError(t, err)

	assert.Equal(t, RouteEnd, s.Route)
	assert.Equal(t, PhaseAnswered, s.Phase)
	assert.Equal(t, "Hello! How can I help you today?", s.Answer())
	assert.Nil(t, s.RetrievedContext)
	assert.Nil(t, s.SearchResults)
	assert.Len(t, f.model.Calls(), 1)
	assert.Zero(t, f.web.calls())

	h, err := f.agent.History(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, h, 2)
	assert.Equal(t, store.RoleUser, h[0].Role)
	assert.Equal(t, "Hi there", h[0].Content)
	assert.Equal(t, store.RoleAssistant, h[1].Role)
}

func TestTurn_EndRouteWithoutReplyCallsModel(t *testing.T) {
	f := newFixture(t, script{
		route:  fixed(`{"route": "end"}`),
		direct: fixed("You're welcome!"),
	}, nil)

	got, err := f.agent.RunTurn(context.Background(), "t1", "thanks")
	require.NoError(t, err)
	assert.Equal(t, "You're welcome!", got)
	assert.Len(t, f.model.Calls(), 2)
}

func TestTurn_SufficientKnowledgeSkipsWebSearch(t *testing.T) {
	f := newFixture(t, script{
		route: fixed(`{"route": "rag"}`),
		judge: fixed(`{"sufficient": true, "reason": "the context defines LangGraph"}`),
		answer: func(prompt string) (string, error) {
			return "LangGraph is a library for stateful multi-agent LLM applications.", nil
		},
	}, langGraphDocs)

	s, err := f.agent.Turn(context.Background(), "t1", "What is LangGraph?")
	require.NoError(t, err)

	assert.Equal(t, RouteRAG, s.Route)
	require.NotEmpty(t, s.RetrievedContext)
	assert.Equal(t, "langgraph.txt", s.RetrievedContext[0].Source)
	require.NotNil(t, s.Judgment)
	assert.True(t, s.Judgment.Sufficient)
	assert.False(t, s.Judgment.FastPath)
	assert.Nil(t, s.SearchResults)
	assert.Zero(t, f.web.calls())
	assert.Contains(t, s.Answer(), "LangGraph")

	calls := f.model.Calls()
	require.Len(t, calls, 3)
	answerSystem := llm.TextOf(calls[2].Messages[0])
	assert.Contains(t, answerSystem, "Knowledge Base Information:")
	assert.Contains(t, answerSystem, "stateful multi-agent")
	assert.NotContains(t, answerSystem, "Web Search Results:")
}

func TestTurn_EmptyKnowledgeBaseFallsBackToWeb(t *testing.T) {
	f := newFixture(t, script{
		route: fixed(`{"route": "rag"}`),
		answer: func(prompt string) (string, error) {
			return "It will be sunny in Paris.", nil
		},
	}, nil)
	f.web.results = []tool.WebResult{
		{Title: "Paris forecast", Content: "Sunny, 24C", URL: "https://weather.example/paris"},
	}

	s, err := f.agent.Turn(context.Background(), "t1", "What's the weather in Paris?")
	require.NoError(t, err)

	assert.Empty(t, s.RetrievedContext)
	require.NotNil(t, s.Judgment)
	assert.False(t, s.Judgment.Sufficient)
	assert.True(t, s.Judgment.FastPath)
	assert.Equal(t, []string{"What's the weather in Paris?"}, f.web.queries)
	require.Len(t, s.SearchResults, 1)
	assert.False(t, s.SearchDegraded)

	calls := f.model.Calls()
	require.Len(t, calls, 2, "fast path must not call the judge")
	answerSystem := llm.TextOf(calls[1].Messages[0])
	assert.Contains(t, answerSystem, "Web Search Results:")
	assert.Contains(t, answerSystem, "Paris forecast")
	assert.NotContains(t, answerSystem, "Knowledge Base Information:")
}

func TestTurn_JudgeFastPathDisabled(t *testing.T) {
	f := newFixture(t, script{
		route:  fixed(`{"route": "rag"}`),
		judge:  fixed(`{"sufficient": false, "reason": "nothing retrieved"}`),
		answer: func(string) (string, error) { return "ok", nil },
	}, nil, WithJudgeFastPath(false))

	s, err := f.agent.Turn(context.Background(), "t1", "anything")
	require.NoError(t, err)
	assert.False(t, s.Judgment.FastPath)
	assert.Len(t, f.model.Calls(), 3)
	assert.Equal(t, 1, f.web.calls())
}

func TestTurn_InsufficientKnowledgeSearchesWeb(t *testing.T) {
	f := newFixture(t, script{
		route:  fixed(`{"route": "rag"}`),
		judge:  fixed(`{"sufficient": false, "reason": "off topic"}`),
		answer: func(string) (string, error) { return "combined answer", nil },
	}, langGraphDocs)
	f.web.results = []tool.WebResult{{Title: "a"}, {Title: "b"}, {Title: "c"}, {Title: "d"}}

	s, err := f.agent.Turn(context.Background(), "t1", "Who maintains LangGraph today?")
	require.NoError(t, err)
	assert.Len(t, s.SearchResults, DefaultSearchMaxResults)

	calls := f.model.Calls()
	answerSystem := llm.TextOf(calls[len(calls)-1].Messages[0])
	assert.Contains(t, answerSystem, "Knowledge Base Information:")
	assert.Contains(t, answerSystem, "Web Search Results:")
}

func TestTurn_GeneralQuestionHasNoContext(t *testing.T) {
	f := newFixture(t, script{
		route: fixed(`{"route": "answer"}`),
		answer: func(prompt string) (string, error) {
			return "Paris.", nil
		},
	}, langGraphDocs)

	s, err := f.agent.Turn(context.Background(), "t1", "What is the capital of France?")
	require.NoError(t, err)
	assert.Nil(t, s.RetrievedContext)
	assert.Nil(t, s.Judgment)
	assert.Nil(t, s.SearchResults)

	calls := f.model.Calls()
	require.Len(t, calls, 2)
	assert.Contains(t, llm.TextOf(calls[1].Messages[0]), noContext)
}

func TestTurn_WebFailureDegrades(t *testing.T) {
	for name, web := range map[string]*fakeSearcher{
		"error":      {err: errors.New("connection reset")},
		"no results": {},
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, script{
				route:  fixed(`{"route": "rag"}`),
				answer: func(string) (string, error) { return "I could not find that.", nil },
			}, nil)
			f.web.err, f.web.results = web.err, web.results

			s, err := f.agent.Turn(context.Background(), "t1", "obscure question")
			require.NoError(t, err)
			assert.True(t, s.SearchDegraded)
			assert.NotNil(t, s.SearchResults)
			assert.Empty(t, s.SearchResults)

			calls := f.model.Calls()
			assert.Contains(t, llm.TextOf(calls[len(calls)-1].Messages[0]), "No results found")
		})
	}
}

func TestTurn_NoWebSearcherDegrades(t *testing.T) {
	f := newFixture(t, script{
		route:  fixed(`{"route": "rag"}`),
		answer: func(string) (string, error) { return "unknown", nil },
	}, nil, WithWebSearch(nil))

	s, err := f.agent.Turn(context.Background(), "t1", "question")
	require.NoError(t, err)
	assert.True(t, s.SearchDegraded)
}

func TestTurn_WebConfigurationErrorAborts(t *testing.T) {
	f := newFixture(t, script{
		route:  fixed(`{"route": "rag"}`),
		answer: func(string) (string, error) { return "unreachable", nil },
	}, nil)
	f.web.err = tool.ErrNotConfigured

	_, err := f.agent.Turn(context.Background(), "t1", "question")
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrConfiguration)

	var te *TurnError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, NodeWebSearch, te.Node)

	h, err := f.agent.History(context.Background(), "t1")
	require.NoError(t, err)
	assert.Empty(t, h)
}

func TestTurn_RouterFailsClosed(t *testing.T) {
	replies := map[string]string{
		"not json":       "I think this is a rag question",
		"unknown label":  `{"route": "search"}`,
		"wrong case":     `{"route": "RAG"}`,
		"missing route":  `{"reply": "hi"}`,
		"empty response": "",
	}
	for name, reply := range replies {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, script{route: fixed(reply)}, nil)

			_, err := f.agent.Turn(context.Background(), "t1", "Hello")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrRouting)

			_, err = f.threads.Load(context.Background(), "t1")
			assert.ErrorIs(t, err, store.ErrThreadNotFound)
		})
	}
}

func TestTurn_RouterModelError(t *testing.T) {
	f := newFixture(t, script{
		route: func() (string, error) { return "", errors.New("429 too many requests") },
	}, nil)

	_, err := f.agent.Turn(context.Background(), "t1", "Hello")
	assert.ErrorIs(t, err, ErrRouting)
	assert.ErrorIs(t, err, llm.ErrLLM)
}

func TestTurn_JudgeFailsClosed(t *testing.T) {
	f := newFixture(t, script{
		route: fixed(`{"route": "rag"}`),
		judge: fixed(`{"reason": "looks fine"}`),
	}, langGraphDocs)

	_, err := f.agent.Turn(context.Background(), "t1", "What is LangGraph?")
	assert.ErrorIs(t, err, ErrJudgment)
	assert.ErrorIs(t, err, llm.ErrInvalidStructuredOutput)
	assert.Zero(t, f.web.calls())
}

func TestTurn_RetrievalError(t *testing.T) {
	f := newFixture(t, script{route: fixed(`{"route": "rag"}`)}, nil, WithRetriever(nil))

	_, err := f.agent.Turn(context.Background(), "t1", "What is LangGraph?")
	assert.ErrorIs(t, err, ErrRetrieval)
}

func TestTurn_AnswerFailureLeavesHistoryUnchanged(t *testing.T) {
	fail := false
	f := newFixture(t, script{
		route: fixed(`{"route": "answer"}`),
		answer: func(string) (string, error) {
			if fail {
				return "", errors.New("upstream unavailable")
			}
			return "first answer", nil
		},
	}, nil)
	ctx := context.Background()

	_, err := f.agent.Turn(ctx, "t1", "first question")
	require.NoError(t, err)

	fail = true
	_, err = f.agent.Turn(ctx, "t1", "second question")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAnswer)

	var te *TurnError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, NodeAnswer, te.Node)

	h, err := f.agent.History(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, h, 2)
	assert.Equal(t, "first answer", h[1].Content)
}

func TestTurn_EmptyAnswerIsAnError(t *testing.T) {
	f := newFixture(t, script{
		route:  fixed(`{"route": "answer"}`),
		answer: func(string) (string, error) { return "   ", nil },
	}, nil)

	_, err := f.agent.Turn(context.Background(), "t1", "question")
	assert.ErrorIs(t, err, ErrAnswer)
}

func TestTurn_HistoryCarriesAcrossTurns(t *testing.T) {
	f := newFixture(t, script{
		route:  fixed(`{"route": "answer"}`),
		answer: func(string) (string, error) { return "noted", nil },
	}, nil)
	ctx := context.Background()

	for _, q := range []string{"My name is Ada.", "What is my name?"} {
		_, err := f.agent.Turn(ctx, "t1", q)
		require.NoError(t, err)
	}

	calls := f.model.Calls()
	last := calls[len(calls)-1]
	// system prompt plus user, assistant, user
	require.Len(t, last.Messages, 4)
	assert.Equal(t, "My name is Ada.", llm.TextOf(last.Messages[1]))
	assert.Equal(t, llms.ChatMessageTypeAI, last.Messages[2].Role)

	t1, err := f.threads.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, t1.Messages, 4)
	assert.Equal(t, 2, t1.Version)
}

func TestTurn_Temperatures(t *testing.T) {
	f := newFixture(t, script{
		route:  fixed(`{"route": "rag"}`),
		judge:  fixed(`{"sufficient": true, "reason": "ok"}`),
		answer: func(string) (string, error) { return "ok", nil },
	}, langGraphDocs, WithTemperatures(0, 0.3))

	_, err := f.agent.Turn(context.Background(), "t1", "What is LangGraph?")
	require.NoError(t, err)

	calls := f.model.Calls()
	require.Len(t, calls, 3)
	assert.Zero(t, calls[0].Options.Temperature)
	assert.True(t, calls[0].Options.JSONMode)
	assert.True(t, calls[1].Options.JSONMode)
	assert.InDelta(t, 0.3, calls[2].Options.Temperature, 1e-9)
	assert.False(t, calls[2].Options.JSONMode)
}

func TestTurn_InvalidInput(t *testing.T) {
	f := newFixture(t, script{route: fixed(`{"route": "end", "reply": "hi"}`)}, nil)

	_, err := f.agent.Turn(context.Background(), "t1", "   ")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.agent.Turn(context.Background(), "", "hello")
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Empty(t, f.model.Calls())
}

func TestTurn_Timeout(t *testing.T) {
	slow := completerFunc(func(ctx context.Context, _ []llms.MessageContent, _ ...llms.CallOption) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	a, err := New(slow, WithLogger(log.NoOpLogger{}), WithTurnTimeout(20*time.Millisecond))
	require.NoError(t, err)

	_, err = a.Turn(context.Background(), "t1", "hello")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, ErrRouting)
}

func TestTurn_WaitingForThreadHonorsContext(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	stuck := completerFunc(func(context.Context, []llms.MessageContent, ...llms.CallOption) (string, error) {
		once.Do(func() { close(entered) })
		<-release
		return `{"route": "end", "reply": "Hello!"}`, nil
	})
	a, err := New(stuck, WithLogger(log.NoOpLogger{}))
	require.NoError(t, err)

	first := make(chan error, 1)
	go func() {
		_, err := a.Turn(context.Background(), "t1", "hello")
		first <- err
	}()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = a.Turn(ctx, "t1", "are you there?")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, ErrTurnAborted)
	assert.Less(t, time.Since(start), 2*time.Second)

	close(release)
	require.NoError(t, <-first)

	h, err := a.History(context.Background(), "t1")
	require.NoError(t, err)
	assert.Len(t, h, 2)
}

func TestTurn_ConcurrentThreads(t *testing.T) {
	f := newFixture(t, script{
		route:  fixed(`{"route": "answer"}`),
		answer: func(string) (string, error) { return "ok", nil },
	}, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 8; i++ {
		for j := 0; j < 5; j++ {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				_, err := f.agent.Turn(ctx, id, "question")
				errs <- err
			}(fmt.Sprintf("thread-%d", i))
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	ids, err := f.threads.List(ctx)
	require.NoError(t, err)
	require.Len(t, ids, 8)
	for _, id := range ids {
		h, err := f.agent.History(ctx, id)
		require.NoError(t, err)
		assert.Len(t, h, 10, id)
	}
}

func TestStream_EndsWithAnswer(t *testing.T) {
	f := newFixture(t, script{
		route:  fixed(`{"route": "rag"}`),
		answer: func(string) (string, error) { return "streamed", nil },
	}, nil)
	f.web.results = []tool.WebResult{{Title: "x", Content: "y", URL: "https://x.example"}}

	var events []Event
	for ev := range f.agent.Stream(context.Background(), "t1", "question") {
		events = append(events, ev)
	}
	require.NotEmpty(t, events)

	last := events[len(events)-1]
	assert.Equal(t, EventAnswer, last.Type)
	assert.Equal(t, "streamed", last.Data)

	var ended []string
	for _, ev := range events[:len(events)-1] {
		assert.NotEqual(t, EventAnswer, ev.Type)
		assert.NotEqual(t, EventError, ev.Type)
		if ev.Type == EventNodeEnd {
			ended = append(ended, ev.Node)
		}
	}
	assert.Equal(t, []string{NodeRouter, NodeRAG, NodeJudge, NodeWebSearch, NodeAnswer}, ended)
	assert.Equal(t, EventNodeStart, events[0].Type)
	assert.Equal(t, NodeRouter, events[0].Node)
}

func TestStream_EndsWithError(t *testing.T) {
	f := newFixture(t, script{route: fixed("garbage")}, nil)

	var events []Event
	for ev := range f.agent.Stream(context.Background(), "t1", "question") {
		events = append(events, ev)
	}
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, EventError, last.Type)
	assert.ErrorIs(t, last.Err, ErrRouting)
}

func TestListenerSeesEveryNode(t *testing.T) {
	var mu sync.Mutex
	var started []string
	listener := graph.NodeListenerFunc(func(_ context.Context, ev graph.NodeEvent, node string, _ any, _ error) {
		if ev == graph.NodeEventStart {
			mu.Lock()
			started = append(started, node)
			mu.Unlock()
		}
	})
	f := newFixture(t, script{route: fixed(`{"route": "end", "reply": "hey"}`)}, nil, WithListener(listener))

	_, err := f.agent.Turn(context.Background(), "t1", "hey")
	require.NoError(t, err)
	assert.Equal(t, []string{NodeRouter, NodeDirectReply}, started)
}

func TestHistory_UnknownThread(t *testing.T) {
	f := newFixture(t, script{}, nil)
	h, err := f.agent.History(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, h)
}

func TestNew_RequiresCompleter(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestNewThreadID(t *testing.T) {
	a, b := NewThreadID(), NewThreadID()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}
