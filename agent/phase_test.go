package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/adaptiverag/graph"
	"github.com/smallnest/adaptiverag/tool"
)

func phasesAfter(node string) map[Phase]bool {
	out := map[Phase]bool{}
	for _, t := range TransitionTable() {
		if t.Node == node {
			out[t.To] = true
		}
	}
	return out
}

func TestTransitionTableMatchesGraph(t *testing.T) {
	f := newFixture(t, script{}, nil)
	g := f.agent.Graph()

	reachable := g.Reachable()
	for _, n := range g.Nodes() {
		assert.True(t, reachable[n], "node %s unreachable", n)
	}
	assert.True(t, reachable[graph.END])

	_, err := Advance(PhaseStart, NodeRouter)
	require.NoError(t, err)

	for _, tr := range g.Transitions() {
		from := phasesAfter(tr.From)
		require.NotEmpty(t, from, "node %s has no phase", tr.From)

		if tr.To == graph.END {
			assert.Equal(t, map[Phase]bool{PhaseAnswered: true}, from, "%s ends before answering", tr.From)
			continue
		}

		matched := false
		for _, row := range TransitionTable() {
			if row.Node == tr.To && row.Guard == tr.Label && from[row.From] {
				matched = true
			}
		}
		assert.True(t, matched, "edge %s -%s-> %s has no table row", tr.From, tr.Label, tr.To)
	}
}

func TestAdvanceRejectsIllegalSteps(t *testing.T) {
	cases := []struct {
		from Phase
		node string
	}{
		{PhaseStart, NodeAnswer},
		{PhaseRouted, NodeJudge},
		{PhaseRetrieved, NodeWebSearch},
		{PhaseAnswered, NodeAnswer},
		{PhaseSearched, NodeWebSearch},
	}
	for _, c := range cases {
		_, err := Advance(c.from, c.node)
		assert.ErrorIs(t, err, ErrIllegalTransition, "%s in %s", c.node, c.from)
	}
}

func TestEveryRouteAndVerdictAnswers(t *testing.T) {
	for _, route := range Routes() {
		for _, sufficient := range []bool{true, false} {
			verdict := `{"sufficient": false, "reason": "no"}`
			if sufficient {
				verdict = `{"sufficient": true, "reason": "yes"}`
			}
			f := newFixture(t, script{
				route:  fixed(`{"route": "` + string(route) + `", "reply": "hi"}`),
				judge:  fixed(verdict),
				answer: func(string) (string, error) { return "done", nil },
			}, langGraphDocs)
			f.web.results = []tool.WebResult{{Title: "r"}}

			s, err := f.agent.Turn(context.Background(), "t", "What is LangGraph?")
			require.NoError(t, err, "route %s sufficient %t", route, sufficient)
			assert.Equal(t, PhaseAnswered, s.Phase)
			assert.NotEmpty(t, s.Answer())

			searched := route == RouteRAG && !sufficient
			assert.Equal(t, searched, s.SearchResults != nil, "route %s sufficient %t", route, sufficient)
			assert.Equal(t, route == RouteRAG, s.Judgment != nil)
		}
	}
}

func TestDrawMermaid(t *testing.T) {
	f := newFixture(t, script{}, nil)
	out := f.agent.Graph().DrawMermaid()

	assert.Contains(t, out, "START --> router")
	assert.Contains(t, out, "router -.->|rag| rag_lookup")
	assert.Contains(t, out, "judge -.->|insufficient| web_search")
	assert.Contains(t, out, "web_search --> answer")
}
