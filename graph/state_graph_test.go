package graph_test

import (
	"context"
	"errors"
	"testing"

	"github.com/smallnest/adaptiverag/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counter struct {
	Path  []string
	Count int
}

func step(name string) func(context.Context, counter) (counter, error) {
	return func(_ context.Context, s counter) (counter, error) {
		s.Path = append(s.Path, name)
		s.Count++
		return s, nil
	}
}

func branching() *graph.StateGraph[counter] {
	g := graph.NewStateGraph[counter]()
	g.AddNode("start", "start", step("start"))
	g.AddNode("low", "low", step("low"))
	g.AddNode("high", "high", step("high"))
	g.SetEntryPoint("start")
	g.AddConditionalEdges("start", func(_ context.Context, s counter) string {
		if s.Count > 5 {
			return "high"
		}
		return "low"
	}, map[string]string{"low": "low", "high": "high"})
	g.AddEdge("low", graph.END)
	g.AddEdge("high", graph.END)
	return g
}

func TestInvoke_ConditionalRouting(t *testing.T) {
	t.Parallel()

	app, err := branching().Compile()
	require.NoError(t, err)

	out, err := app.Invoke(context.Background(), counter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "low"}, out.Path)

	out, err = app.Invoke(context.Background(), counter{Count: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "high"}, out.Path)
}

func TestCompile_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		build func() *graph.StateGraph[counter]
		want  error
	}{
		{
			name: "missing entry point",
			build: func() *graph.StateGraph[counter] {
				g := graph.NewStateGraph[counter]()
				g.AddNode("a", "a", step("a"))
				g.AddEdge("a", graph.END)
				return g
			},
			want: graph.ErrEntryPointNotSet,
		},
		{
			name: "unknown edge target",
			build: func() *graph.StateGraph[counter] {
				g := graph.NewStateGraph[counter]()
				g.AddNode("a", "a", step("a"))
				g.SetEntryPoint("a")
				g.AddEdge("a", "nowhere")
				return g
			},
			want: graph.ErrNodeNotFound,
		},
		{
			name: "dead end",
			build: func() *graph.StateGraph[counter] {
				g := graph.NewStateGraph[counter]()
				g.AddNode("a", "a", step("a"))
				g.AddNode("b", "b", step("b"))
				g.SetEntryPoint("a")
				g.AddEdge("a", "b")
				return g
			},
			want: graph.ErrNoOutgoingEdge,
		},
		{
			name: "two routes from one node",
			build: func() *graph.StateGraph[counter] {
				g := graph.NewStateGraph[counter]()
				g.AddNode("a", "a", step("a"))
				g.SetEntryPoint("a")
				g.AddEdge("a", graph.END)
				g.AddConditionalEdges("a", func(context.Context, counter) string { return "x" },
					map[string]string{"x": graph.END})
				return g
			},
			want: graph.ErrDuplicateRoute,
		},
		{
			name: "path map to unknown node",
			build: func() *graph.StateGraph[counter] {
				g := graph.NewStateGraph[counter]()
				g.AddNode("a", "a", step("a"))
				g.SetEntryPoint("a")
				g.AddConditionalEdges("a", func(context.Context, counter) string { return "x" },
					map[string]string{"x": "ghost"})
				return g
			},
			want: graph.ErrNodeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build().Compile()
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestInvoke_InvalidRouteLabel(t *testing.T) {
	t.Parallel()

	g := graph.NewStateGraph[counter]()
	g.AddNode("a", "a", step("a"))
	g.SetEntryPoint("a")
	g.AddConditionalEdges("a", func(context.Context, counter) string { return "maybe" },
		map[string]string{"yes": graph.END})

	app, err := g.Compile()
	require.NoError(t, err)

	_, err = app.Invoke(context.Background(), counter{})
	assert.ErrorIs(t, err, graph.ErrInvalidRoute)
}

func TestInvoke_NodeErrorKeepsLastState(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	g := graph.NewStateGraph[counter]()
	g.AddNode("a", "a", step("a"))
	g.AddNode("b", "b", func(context.Context, counter) (counter, error) {
		return counter{}, boom
	})
	g.SetEntryPoint("a")
	g.AddEdge("a", "b")
	g.AddEdge("b", graph.END)

	app, err := g.Compile()
	require.NoError(t, err)

	var events []graph.NodeEvent
	out, err := app.InvokeWithConfig(context.Background(), counter{}, &graph.Config{
		Listeners: []graph.NodeListener{graph.NodeListenerFunc(
			func(_ context.Context, ev graph.NodeEvent, node string, _ any, _ error) {
				events = append(events, ev)
			})},
	})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "error in node b")
	assert.Equal(t, []string{"a"}, out.Path)
	assert.Equal(t, []graph.NodeEvent{
		graph.NodeEventStart, graph.NodeEventComplete,
		graph.NodeEventStart, graph.NodeEventError,
	}, events)
}

func TestInvoke_RecursionLimit(t *testing.T) {
	t.Parallel()

	g := graph.NewStateGraph[counter]()
	g.AddNode("loop", "loop", step("loop"))
	g.SetEntryPoint("loop")
	g.AddEdge("loop", "loop")

	app, err := g.Compile()
	require.NoError(t, err)

	out, err := app.InvokeWithConfig(context.Background(), counter{}, &graph.Config{RecursionLimit: 4})
	assert.ErrorIs(t, err, graph.ErrRecursionLimit)
	assert.Equal(t, 4, out.Count)
}

func TestInvoke_CancelledContext(t *testing.T) {
	t.Parallel()

	app, err := branching().Compile()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = app.Invoke(ctx, counter{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTransitionsAndReachability(t *testing.T) {
	t.Parallel()

	g := branching()
	g.AddNode("orphan", "orphan", step("orphan"))
	g.AddEdge("orphan", graph.END)

	assert.Equal(t, []graph.Transition{
		{From: "low", To: graph.END},
		{From: "high", To: graph.END},
		{From: "orphan", To: graph.END},
		{From: "start", Label: "high", To: "high"},
		{From: "start", Label: "low", To: "low"},
	}, g.Transitions())

	reach := g.Reachable()
	assert.True(t, reach["low"])
	assert.True(t, reach[graph.END])
	assert.False(t, reach["orphan"])
	assert.Equal(t, []string{"start", "low", "high", "orphan"}, g.Nodes())
}

func TestDrawMermaid(t *testing.T) {
	t.Parallel()

	out := branching().DrawMermaid()
	assert.Contains(t, out, "flowchart TD")
	assert.Contains(t, out, "START --> start")
	assert.Contains(t, out, "start -.->|high| high")
	assert.Contains(t, out, "low --> END")
}
