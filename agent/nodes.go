package agent

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/smallnest/adaptiverag/config"
	"github.com/smallnest/adaptiverag/llm"
	"github.com/smallnest/adaptiverag/store"
	"github.com/smallnest/adaptiverag/tool"
)

var (
	errNoKnowledgeBase = errors.New("no knowledge base configured")
	errEmptyReply      = errors.New("model returned an empty reply")
)

// advance moves s along the transition table after node produced it.
func advance(s State, node string) (State, error) {
	next, err := Advance(s.Phase, node)
	if err != nil {
		return s, &TurnError{Node: node, Kind: ErrTurnAborted, Err: err}
	}
	s.Phase = next
	return s, nil
}

func (a *Agent) routeNode(ctx context.Context, s State) (State, error) {
	var d RouteDecision
	err := llm.CompleteJSON(ctx, a.completer, withSystem(routerPrompt, s.Messages), &d,
		llms.WithTemperature(a.routerTemperature))
	if err != nil {
		return s, &TurnError{Node: NodeRouter, Kind: ErrRouting, Err: err}
	}
	s.Route = d.Route
	if d.Route == RouteEnd {
		s.EndReply = strings.TrimSpace(d.Reply)
	}
	a.logger.Info("thread %s: routed to %s", s.ThreadID, s.Route)
	return advance(s, NodeRouter)
}

func (a *Agent) directReplyNode(ctx context.Context, s State) (State, error) {
	reply := s.EndReply
	if reply == "" {
		out, err := a.completer.Complete(ctx, withSystem(directPrompt, s.Messages),
			llms.WithTemperature(a.answerTemperature))
		if err != nil {
			return s, &TurnError{Node: NodeDirectReply, Kind: ErrAnswer, Err: err}
		}
		reply = strings.TrimSpace(out)
	}
	if reply == "" {
		return s, &TurnError{Node: NodeDirectReply, Kind: ErrAnswer, Err: errEmptyReply}
	}
	s.Messages = append(s.Messages, assistantMessage(reply))
	return advance(s, NodeDirectReply)
}

func (a *Agent) ragNode(ctx context.Context, s State) (State, error) {
	if a.retriever == nil {
		return s, &TurnError{Node: NodeRAG, Kind: ErrRetrieval, Err: errNoKnowledgeBase}
	}
	results, err := a.retriever.Retrieve(ctx, s.LatestQuery())
	if err != nil {
		return s, &TurnError{Node: NodeRAG, Kind: ErrRetrieval, Err: err}
	}
	s.RetrievedContext = make([]ContextChunk, 0, len(results))
	for _, r := range results {
		s.RetrievedContext = append(s.RetrievedContext, ContextChunk{
			Text:   r.Chunk.Text,
			Source: r.Chunk.Source,
			Index:  r.Chunk.Index,
			Page:   r.Chunk.Page,
			Score:  r.Score,
		})
	}
	a.logger.Info("thread %s: retrieved %d chunks", s.ThreadID, len(results))
	return advance(s, NodeRAG)
}

func (a *Agent) judgeNode(ctx context.Context, s State) (State, error) {
	if len(s.RetrievedContext) == 0 && a.judgeFastPath {
		s.Judgment = &Judgment{Sufficient: false, Reason: "knowledge base returned no documents", FastPath: true}
		a.logger.Info("thread %s: empty retrieval, skipping judge", s.ThreadID)
		return advance(s, NodeJudge)
	}

	var j SufficiencyJudgment
	err := llm.CompleteJSON(ctx, a.completer, judgeRequest(s.LatestQuery(), s.RetrievedContext), &j,
		llms.WithTemperature(a.routerTemperature))
	if err != nil {
		return s, &TurnError{Node: NodeJudge, Kind: ErrJudgment, Err: err}
	}
	s.Judgment = &Judgment{Sufficient: *j.Sufficient, Reason: j.Reason}
	a.logger.Info("thread %s: context sufficient=%t (%s)", s.ThreadID, *j.Sufficient, j.Reason)
	return advance(s, NodeJudge)
}

// webSearchNode never fails the turn for transport or provider errors: the
// answer node runs with an empty result set instead. A missing or rejected
// credential is a configuration problem and does abort.
func (a *Agent) webSearchNode(ctx context.Context, s State) (State, error) {
	if a.web == nil {
		a.logger.Warn("thread %s: web search unavailable, answering without it", s.ThreadID)
		s.SearchResults, s.SearchDegraded = []tool.WebResult{}, true
		return advance(s, NodeWebSearch)
	}

	results, err := a.web.Search(ctx, s.LatestQuery(), a.searchMaxResults)
	switch {
	case errors.Is(err, config.ErrConfiguration):
		return s, &TurnError{Node: NodeWebSearch, Kind: config.ErrConfiguration, Err: err}
	case err != nil:
		a.logger.Warn("thread %s: web search failed: %v", s.ThreadID, err)
		s.SearchResults, s.SearchDegraded = []tool.WebResult{}, true
	case len(results) == 0:
		a.logger.Warn("thread %s: web search returned no results", s.ThreadID)
		s.SearchResults, s.SearchDegraded = []tool.WebResult{}, true
	default:
		if len(results) > a.searchMaxResults {
			results = results[:a.searchMaxResults]
		}
		s.SearchResults = results
		a.logger.Info("thread %s: web search returned %d results", s.ThreadID, len(results))
	}
	return advance(s, NodeWebSearch)
}

func (a *Agent) answerNode(ctx context.Context, s State) (State, error) {
	out, err := a.completer.Complete(ctx, answerRequest(s), llms.WithTemperature(a.answerTemperature))
	if err != nil {
		return s, &TurnError{Node: NodeAnswer, Kind: ErrAnswer, Err: err}
	}
	reply := strings.TrimSpace(out)
	if reply == "" {
		return s, &TurnError{Node: NodeAnswer, Kind: ErrAnswer, Err: errEmptyReply}
	}
	s.Messages = append(s.Messages, assistantMessage(reply))
	return advance(s, NodeAnswer)
}

func assistantMessage(content string) store.Message {
	return store.Message{Role: store.RoleAssistant, Content: content, Timestamp: time.Now().UTC()}
}

func routeCondition(_ context.Context, s State) string {
	return string(s.Route)
}

func judgeCondition(_ context.Context, s State) string {
	if s.Judgment != nil && s.Judgment.Sufficient {
		return LabelSufficient
	}
	return LabelInsufficient
}
