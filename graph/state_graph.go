package graph

import (
	"context"
	"fmt"
	"slices"
	"sort"
)

// StateGraph represents a generic state-based graph.
//
//	g := graph.NewStateGraph[MyState]()
//	g.AddNode("classify", "Pick a route", classify)
//	g.AddConditionalEdges("classify", pick, map[string]string{"a": "handleA", "b": graph.END})
type StateGraph[S any] struct {
	nodes            map[string]Node[S]
	order            []string
	edges            []Edge
	conditionalEdges map[string]conditionalEdge[S]
	entryPoint       string
}

// NewStateGraph creates a new, empty StateGraph.
func NewStateGraph[S any]() *StateGraph[S] {
	return &StateGraph[S]{
		nodes:            make(map[string]Node[S]),
		conditionalEdges: make(map[string]conditionalEdge[S]),
	}
}

// AddNode adds a new node to the state graph with the given name, description and function.
func (g *StateGraph[S]) AddNode(name string, description string, fn func(ctx context.Context, state S) (S, error)) {
	if _, ok := g.nodes[name]; !ok {
		g.order = append(g.order, name)
	}
	g.nodes[name] = Node[S]{
		Name:        name,
		Description: description,
		Function:    fn,
	}
}

// AddEdge adds a new edge to the state graph between the "from" and "to" nodes.
func (g *StateGraph[S]) AddEdge(from, to string) {
	g.edges = append(g.edges, Edge{From: from, To: to})
}

// AddConditionalEdges routes from a node by evaluating condition and looking the
// result up in pathMap. Labels missing from pathMap fail the invocation.
func (g *StateGraph[S]) AddConditionalEdges(from string, condition Condition[S], pathMap map[string]string) {
	pm := make(map[string]string, len(pathMap))
	for k, v := range pathMap {
		pm[k] = v
	}
	g.conditionalEdges[from] = conditionalEdge[S]{condition: condition, pathMap: pm}
}

// SetEntryPoint sets the entry point node name for the state graph.
func (g *StateGraph[S]) SetEntryPoint(name string) {
	g.entryPoint = name
}

// Nodes returns node names in insertion order.
func (g *StateGraph[S]) Nodes() []string {
	return slices.Clone(g.order)
}

// Transitions lists every static hop, fixed edges first, then conditional
// routes sorted by source and label.
func (g *StateGraph[S]) Transitions() []Transition {
	out := make([]Transition, 0, len(g.edges)+len(g.conditionalEdges))
	for _, e := range g.edges {
		out = append(out, Transition{From: e.From, To: e.To})
	}
	froms := make([]string, 0, len(g.conditionalEdges))
	for from := range g.conditionalEdges {
		froms = append(froms, from)
	}
	sort.Strings(froms)
	for _, from := range froms {
		pm := g.conditionalEdges[from].pathMap
		labels := make([]string, 0, len(pm))
		for l := range pm {
			labels = append(labels, l)
		}
		sort.Strings(labels)
		for _, l := range labels {
			out = append(out, Transition{From: from, Label: l, To: pm[l]})
		}
	}
	return out
}

// Reachable returns the set of nodes reachable from the entry point, END included.
func (g *StateGraph[S]) Reachable() map[string]bool {
	seen := map[string]bool{}
	if g.entryPoint == "" {
		return seen
	}
	adj := map[string][]string{}
	for _, t := range g.Transitions() {
		adj[t.From] = append(adj[t.From], t.To)
	}
	queue := []string{g.entryPoint}
	seen[g.entryPoint] = true
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, next := range adj[n] {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return seen
}

func (g *StateGraph[S]) validate() error {
	if g.entryPoint == "" {
		return ErrEntryPointNotSet
	}
	if _, ok := g.nodes[g.entryPoint]; !ok {
		return fmt.Errorf("%w: entry point %s", ErrNodeNotFound, g.entryPoint)
	}

	exists := func(name string) bool {
		_, ok := g.nodes[name]
		return ok || name == END
	}

	routes := map[string]int{}
	for _, e := range g.edges {
		if _, ok := g.nodes[e.From]; !ok {
			return fmt.Errorf("%w: edge source %s", ErrNodeNotFound, e.From)
		}
		if !exists(e.To) {
			return fmt.Errorf("%w: edge target %s", ErrNodeNotFound, e.To)
		}
		routes[e.From]++
	}
	for from, ce := range g.conditionalEdges {
		if _, ok := g.nodes[from]; !ok {
			return fmt.Errorf("%w: conditional edge source %s", ErrNodeNotFound, from)
		}
		if len(ce.pathMap) == 0 {
			return fmt.Errorf("%w: %s has an empty path map", ErrNoOutgoingEdge, from)
		}
		for label, to := range ce.pathMap {
			if !exists(to) {
				return fmt.Errorf("%w: %s routes %q to %s", ErrNodeNotFound, from, label, to)
			}
		}
		routes[from]++
	}
	for _, name := range g.order {
		switch routes[name] {
		case 0:
			return fmt.Errorf("%w: %s", ErrNoOutgoingEdge, name)
		case 1:
		default:
			return fmt.Errorf("%w: %s", ErrDuplicateRoute, name)
		}
	}
	return nil
}

// Compile validates the graph and returns a runnable.
func (g *StateGraph[S]) Compile() (*StateRunnable[S], error) {
	if err := g.validate(); err != nil {
		return nil, err
	}
	return &StateRunnable[S]{graph: g}, nil
}

// StateRunnable represents a compiled state graph.
type StateRunnable[S any] struct {
	graph *StateGraph[S]
}

// Graph returns the graph this runnable was compiled from.
func (r *StateRunnable[S]) Graph() *StateGraph[S] {
	return r.graph
}

// Invoke executes the compiled state graph with the given input state.
func (r *StateRunnable[S]) Invoke(ctx context.Context, initialState S) (S, error) {
	return r.InvokeWithConfig(ctx, initialState, nil)
}

// InvokeWithConfig runs nodes one at a time from the entry point until END.
// On failure it returns the last successfully produced state with the error.
func (r *StateRunnable[S]) InvokeWithConfig(ctx context.Context, initialState S, config *Config) (S, error) {
	var listeners []NodeListener
	limit := DefaultRecursionLimit
	if config != nil {
		listeners = config.Listeners
		if config.RecursionLimit > 0 {
			limit = config.RecursionLimit
		}
	}

	state := initialState
	current := r.graph.entryPoint
	for steps := 0; current != END; steps++ {
		if steps >= limit {
			return state, fmt.Errorf("%w: %d steps", ErrRecursionLimit, limit)
		}
		if err := ctx.Err(); err != nil {
			return state, err
		}

		node, ok := r.graph.nodes[current]
		if !ok {
			return state, fmt.Errorf("%w: %s", ErrNodeNotFound, current)
		}

		notify(ctx, listeners, NodeEventStart, current, state, nil)
		next, err := node.Function(ctx, state)
		if err != nil {
			notify(ctx, listeners, NodeEventError, current, state, err)
			return state, fmt.Errorf("error in node %s: %w", current, err)
		}
		state = next
		notify(ctx, listeners, NodeEventComplete, current, state, nil)

		current, err = r.next(ctx, current, state)
		if err != nil {
			return state, err
		}
	}
	return state, nil
}

func (r *StateRunnable[S]) next(ctx context.Context, from string, state S) (string, error) {
	if ce, ok := r.graph.conditionalEdges[from]; ok {
		label := ce.condition(ctx, state)
		to, ok := ce.pathMap[label]
		if !ok {
			return "", fmt.Errorf("%w: %s returned %q", ErrInvalidRoute, from, label)
		}
		return to, nil
	}
	for _, e := range r.graph.edges {
		if e.From == from {
			return e.To, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNoOutgoingEdge, from)
}
