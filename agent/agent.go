// Package agent implements the adaptive retrieval-augmented conversation
// loop: a router classifies each turn, knowledge-base lookups are judged for
// sufficiency, and web search fills the gap before the final answer.
//
// The loop is a compiled graph.StateGraph over State:
//
//	router --end--> direct_reply --> END
//	router --answer--> answer --> END
//	router --rag--> rag_lookup --> judge --sufficient--> answer
//	                                     --insufficient--> web_search --> answer
//
// Each turn loads its thread, runs the graph and saves the thread only when
// exactly one assistant message was produced. Failed turns leave the stored
// history untouched.
package agent

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/smallnest/adaptiverag/graph"
	"github.com/smallnest/adaptiverag/llm"
	"github.com/smallnest/adaptiverag/log"
	"github.com/smallnest/adaptiverag/rag"
	"github.com/smallnest/adaptiverag/store"
	"github.com/smallnest/adaptiverag/store/memory"
	"github.com/smallnest/adaptiverag/tool"
)

// Defaults applied by New.
const (
	DefaultSearchMaxResults  = 3
	DefaultAnswerTemperature = 0.7
)

// Agent runs conversation turns. It is safe for concurrent use; turns on
// the same thread are serialized, turns on different threads are not.
type Agent struct {
	completer llm.Completer
	retriever *rag.Retriever
	web       tool.WebSearcher
	threads   store.ThreadStore
	logger    log.Logger
	listeners []graph.NodeListener

	routerTemperature float64
	answerTemperature float64
	searchMaxResults  int
	judgeFastPath     bool
	turnTimeout       time.Duration

	runnable *graph.StateRunnable[State]
	locks    *keyedMutex
}

// Option configures an Agent.
type Option func(*Agent)

// WithRetriever sets the knowledge-base retriever used on the rag route.
func WithRetriever(r *rag.Retriever) Option {
	return func(a *Agent) { a.retriever = r }
}

// WithWebSearch sets the web search fallback. Without one, insufficient
// context is answered with an empty, degraded search result.
func WithWebSearch(w tool.WebSearcher) Option {
	return func(a *Agent) { a.web = w }
}

// WithThreadStore sets where threads are persisted. Defaults to memory.
func WithThreadStore(s store.ThreadStore) Option {
	return func(a *Agent) { a.threads = s }
}

// WithLogger sets the logger. Defaults to the package default logger.
func WithLogger(l log.Logger) Option {
	return func(a *Agent) { a.logger = l }
}

// WithListener adds a node listener to every turn.
func WithListener(l graph.NodeListener) Option {
	return func(a *Agent) { a.listeners = append(a.listeners, l) }
}

// WithTemperatures sets the sampling temperature of the router and judge
// calls and of the reply calls.
func WithTemperatures(router, answer float64) Option {
	return func(a *Agent) {
		a.routerTemperature = router
		a.answerTemperature = answer
	}
}

// WithSearchMaxResults caps the number of web results given to the answer.
func WithSearchMaxResults(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.searchMaxResults = n
		}
	}
}

// WithJudgeFastPath controls whether an empty retrieval is judged
// insufficient without calling the model. Enabled by default.
func WithJudgeFastPath(enabled bool) Option {
	return func(a *Agent) { a.judgeFastPath = enabled }
}

// WithTurnTimeout bounds each turn. Zero means no limit beyond the caller's context.
func WithTurnTimeout(d time.Duration) Option {
	return func(a *Agent) { a.turnTimeout = d }
}

// New builds an agent and compiles its graph.
func New(completer llm.Completer, opts ...Option) (*Agent, error) {
	if completer == nil {
		return nil, errors.New("agent: completer is required")
	}
	a := &Agent{
		completer:         completer,
		answerTemperature: DefaultAnswerTemperature,
		searchMaxResults:  DefaultSearchMaxResults,
		judgeFastPath:     true,
		locks:             newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.threads == nil {
		a.threads = memory.NewThreadStore()
	}
	a.logger = log.OrDefault(a.logger)
	a.listeners = append([]graph.NodeListener{traceListener(a.logger)}, a.listeners...)

	runnable, err := a.buildGraph().Compile()
	if err != nil {
		return nil, fmt.Errorf("agent: compile graph: %w", err)
	}
	a.runnable = runnable
	return a, nil
}

func (a *Agent) buildGraph() *graph.StateGraph[State] {
	g := graph.NewStateGraph[State]()
	g.AddNode(NodeRouter, "Classify the turn as end, rag or answer", a.routeNode)
	g.AddNode(NodeDirectReply, "Reply without any lookup", a.directReplyNode)
	g.AddNode(NodeRAG, "Retrieve top-k chunks from the knowledge base", a.ragNode)
	g.AddNode(NodeJudge, "Judge whether the retrieved context is sufficient", a.judgeNode)
	g.AddNode(NodeWebSearch, "Search the web for missing context", a.webSearchNode)
	g.AddNode(NodeAnswer, "Write the final answer from the gathered context", a.answerNode)

	g.SetEntryPoint(NodeRouter)
	g.AddConditionalEdges(NodeRouter, routeCondition, map[string]string{
		string(RouteEnd):    NodeDirectReply,
		string(RouteRAG):    NodeRAG,
		string(RouteAnswer): NodeAnswer,
	})
	g.AddEdge(NodeRAG, NodeJudge)
	g.AddConditionalEdges(NodeJudge, judgeCondition, map[string]string{
		LabelSufficient:   NodeAnswer,
		LabelInsufficient: NodeWebSearch,
	})
	g.AddEdge(NodeWebSearch, NodeAnswer)
	g.AddEdge(NodeAnswer, graph.END)
	g.AddEdge(NodeDirectReply, graph.END)
	return g
}

// Graph returns the compiled conversation graph.
func (a *Agent) Graph() *graph.StateGraph[State] {
	return a.runnable.Graph()
}

// Threads returns the thread store the agent persists to.
func (a *Agent) Threads() store.ThreadStore {
	return a.threads
}

// NewThreadID returns a fresh random thread id.
func NewThreadID() string {
	return uuid.NewString()
}

// Turn appends message to the thread, runs the graph and persists the
// result. On error the stored thread is unchanged and the returned error is
// a *TurnError.
func (a *Agent) Turn(ctx context.Context, threadID, message string) (*State, error) {
	return a.turn(ctx, threadID, message, nil)
}

// RunTurn is Turn returning only the assistant reply.
func (a *Agent) RunTurn(ctx context.Context, threadID, message string) (string, error) {
	s, err := a.Turn(ctx, threadID, message)
	if err != nil {
		return "", err
	}
	return s.Answer(), nil
}

func (a *Agent) turn(ctx context.Context, threadID, message string, extra []graph.NodeListener) (*State, error) {
	if strings.TrimSpace(message) == "" {
		return nil, &TurnError{Node: "input", Kind: ErrInvalidInput, Err: errors.New("message is empty")}
	}
	if threadID == "" {
		return nil, &TurnError{Node: "input", Kind: ErrInvalidInput, Err: errors.New("thread id is required")}
	}
	if a.turnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.turnTimeout)
		defer cancel()
	}

	unlock, err := a.locks.Lock(ctx, threadID)
	if err != nil {
		return nil, &TurnError{Node: "lock", Kind: ErrTurnAborted, Err: err}
	}
	defer unlock()

	thread, err := a.threads.Load(ctx, threadID)
	if errors.Is(err, store.ErrThreadNotFound) {
		thread = store.NewThread(threadID)
	} else if err != nil {
		return nil, &TurnError{Node: "load", Kind: ErrPersistence, Err: err}
	}

	initial := State{
		ThreadID: threadID,
		Messages: append(slices.Clone(thread.Messages), store.Message{
			Role:      store.RoleUser,
			Content:   message,
			Timestamp: time.Now().UTC(),
		}),
		Phase: PhaseStart,
	}

	a.logger.Debug("thread %s: turn started (%d prior messages)", threadID, len(thread.Messages))
	cfg := &graph.Config{Listeners: append(slices.Clone(a.listeners), extra...)}
	final, err := a.runnable.InvokeWithConfig(ctx, initial, cfg)
	if err != nil {
		a.logger.Error("thread %s: turn failed: %v", threadID, err)
		var te *TurnError
		if errors.As(err, &te) {
			return nil, te
		}
		return nil, &TurnError{Node: "graph", Kind: ErrTurnAborted, Err: err}
	}

	if len(final.Messages) != len(initial.Messages)+1 || final.Answer() == "" || final.Phase != PhaseAnswered {
		return nil, &TurnError{Node: NodeAnswer, Kind: ErrAnswer,
			Err: fmt.Errorf("turn ended in phase %s with %d new messages", final.Phase, len(final.Messages)-len(initial.Messages))}
	}

	thread.Messages = final.Messages
	if err := a.threads.Save(ctx, thread); err != nil {
		return nil, &TurnError{Node: "save", Kind: ErrPersistence, Err: err}
	}
	a.logger.Debug("thread %s: saved version %d", threadID, thread.Version)
	return &final, nil
}

func traceListener(logger log.Logger) graph.NodeListener {
	return graph.NodeListenerFunc(func(_ context.Context, event graph.NodeEvent, node string, state any, err error) {
		s, _ := state.(State)
		switch event {
		case graph.NodeEventStart:
			logger.Debug("thread %s: entering %s in phase %s", s.ThreadID, node, s.Phase)
		case graph.NodeEventError:
			logger.Debug("thread %s: %s failed: %v", s.ThreadID, node, err)
		}
	})
}

// History returns the stored messages of a thread, empty if it does not exist.
func (a *Agent) History(ctx context.Context, threadID string) ([]store.Message, error) {
	t, err := a.threads.Load(ctx, threadID)
	if errors.Is(err, store.ErrThreadNotFound) {
		return []store.Message{}, nil
	}
	if err != nil {
		return nil, err
	}
	return t.Messages, nil
}
