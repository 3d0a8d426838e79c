package agent

import (
	"github.com/smallnest/adaptiverag/store"
	"github.com/smallnest/adaptiverag/tool"
)

// Route is the router's classification of a turn.
type Route string

const (
	// RouteEnd is small talk that needs no information.
	RouteEnd Route = "end"
	// RouteRAG needs a lookup in the local knowledge base.
	RouteRAG Route = "rag"
	// RouteAnswer is answerable from model knowledge alone.
	RouteAnswer Route = "answer"
)

// Routes lists every valid route.
func Routes() []Route {
	return []Route{RouteEnd, RouteRAG, RouteAnswer}
}

// Valid reports whether r is one of the fixed route labels.
func (r Route) Valid() bool {
	switch r {
	case RouteEnd, RouteRAG, RouteAnswer:
		return true
	}
	return false
}

// ContextChunk is a retrieved knowledge-base chunk as seen by the prompts.
type ContextChunk struct {
	Text   string  `json:"text"`
	Source string  `json:"source"`
	Index  int     `json:"index"`
	Page   int     `json:"page,omitempty"`
	Score  float64 `json:"score"`
}

// Judgment is the verdict on whether retrieved context answers the query.
type Judgment struct {
	Sufficient bool   `json:"sufficient"`
	Reason     string `json:"reason,omitempty"`
	// FastPath is set when the verdict was reached without a model call.
	FastPath bool `json:"fast_path,omitempty"`
}

// State is threaded through every node of one turn.
//
// Route decides which of the later fields are populated: RetrievedContext and
// Judgment only on the rag route, SearchResults only when the judge found the
// context insufficient. A nil slice means the producing node never ran; an
// empty one means it ran and found nothing.
type State struct {
	ThreadID string          `json:"thread_id"`
	Messages []store.Message `json:"messages"`

	Route Route `json:"route,omitempty"`
	// EndReply is the router's own reply on the end route, if it gave one.
	EndReply string `json:"end_reply,omitempty"`

	RetrievedContext []ContextChunk   `json:"retrieved_context,omitempty"`
	Judgment         *Judgment        `json:"judgment,omitempty"`
	SearchResults    []tool.WebResult `json:"search_results,omitempty"`
	// SearchDegraded is set when web search failed or returned nothing.
	SearchDegraded bool `json:"search_degraded,omitempty"`

	Phase Phase `json:"phase"`
}

// LatestQuery returns the content of the last user message.
func (s State) LatestQuery() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == store.RoleUser {
			return s.Messages[i].Content
		}
	}
	return ""
}

// Answer returns the content of the last message if the assistant wrote it.
func (s State) Answer() string {
	if n := len(s.Messages); n > 0 && s.Messages[n-1].Role == store.RoleAssistant {
		return s.Messages[n-1].Content
	}
	return ""
}
