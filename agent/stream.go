package agent

import (
	"context"
	"fmt"

	"github.com/smallnest/adaptiverag/graph"
)

// EventType labels a streamed turn event.
type EventType string

const (
	EventNodeStart EventType = "node_start"
	EventNodeEnd   EventType = "node_end"
	EventAnswer    EventType = "answer"
	EventError     EventType = "error"
)

// Event is one step of a streamed turn.
type Event struct {
	Type EventType
	Node string
	// Data carries a short node summary, the answer text or the error text.
	Data string
	Err  error
}

const streamBuffer = 32

// Stream runs a turn in the background and reports node progress on the
// returned channel. The channel always ends with exactly one EventAnswer or
// EventError and is then closed. Progress events are dropped rather than
// block if the reader falls behind.
func (a *Agent) Stream(ctx context.Context, threadID, message string) <-chan Event {
	ch := make(chan Event, streamBuffer)

	// One slot stays free for the final event.
	progress := func(ev Event) {
		if len(ch) < cap(ch)-1 {
			ch <- ev
		}
	}

	listener := graph.NodeListenerFunc(func(_ context.Context, event graph.NodeEvent, node string, state any, _ error) {
		switch event {
		case graph.NodeEventStart:
			progress(Event{Type: EventNodeStart, Node: node})
		case graph.NodeEventComplete:
			s, _ := state.(State)
			progress(Event{Type: EventNodeEnd, Node: node, Data: summarize(node, s)})
		}
	})

	go func() {
		defer close(ch)
		s, err := a.turn(ctx, threadID, message, []graph.NodeListener{listener})
		if err != nil {
			ch <- Event{Type: EventError, Data: err.Error(), Err: err}
			return
		}
		ch <- Event{Type: EventAnswer, Data: s.Answer()}
	}()
	return ch
}

func summarize(node string, s State) string {
	switch node {
	case NodeRouter:
		return "route=" + string(s.Route)
	case NodeRAG:
		return fmt.Sprintf("%d chunks", len(s.RetrievedContext))
	case NodeJudge:
		if s.Judgment == nil {
			return ""
		}
		if s.Judgment.Sufficient {
			return LabelSufficient
		}
		return LabelInsufficient
	case NodeWebSearch:
		if s.SearchDegraded {
			return "degraded"
		}
		return fmt.Sprintf("%d results", len(s.SearchResults))
	}
	return ""
}
