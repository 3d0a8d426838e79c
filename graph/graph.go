// Package graph provides a small typed state-machine runtime.
//
// A StateGraph is a set of named nodes, each a function from state to state,
// connected by fixed edges or by conditional edges whose labels are resolved
// through an explicit path map. Compile validates the wiring once so that an
// unroutable label is caught before any request runs.
package graph

import (
	"context"
	"errors"
)

// END is a special constant used to represent the end node in the graph.
const END = "END"

// DefaultRecursionLimit bounds the number of node executions per invocation.
const DefaultRecursionLimit = 25

var (
	// ErrEntryPointNotSet is returned when the entry point of the graph is not set.
	ErrEntryPointNotSet = errors.New("entry point not set")

	// ErrNodeNotFound is returned when a node is not found in the graph.
	ErrNodeNotFound = errors.New("node not found")

	// ErrNoOutgoingEdge is returned when no outgoing edge is found for a node.
	ErrNoOutgoingEdge = errors.New("no outgoing edge found for node")

	// ErrDuplicateRoute is returned when a node has more than one outgoing route.
	ErrDuplicateRoute = errors.New("node has more than one outgoing route")

	// ErrInvalidRoute is returned when a condition yields a label missing from its path map.
	ErrInvalidRoute = errors.New("condition returned a label outside its path map")

	// ErrRecursionLimit is returned when an invocation exceeds its step budget.
	ErrRecursionLimit = errors.New("recursion limit reached")
)

// Node represents a typed node in the graph.
type Node[S any] struct {
	// Name is the unique identifier for the node.
	Name string

	// Description describes the functionality of the node.
	Description string

	// Function receives the current state and returns the updated one.
	Function func(ctx context.Context, state S) (S, error)
}

// Edge represents an unconditional edge in the graph.
type Edge struct {
	From string
	To   string
}

// Condition selects a route label from the current state.
type Condition[S any] func(ctx context.Context, state S) string

type conditionalEdge[S any] struct {
	condition Condition[S]
	pathMap   map[string]string
}

// Transition is one statically known hop. Label is empty for fixed edges.
type Transition struct {
	From  string
	Label string
	To    string
}

// Config carries per-invocation options.
type Config struct {
	// Listeners receive node lifecycle events in registration order.
	Listeners []NodeListener

	// RecursionLimit caps node executions. Zero means DefaultRecursionLimit.
	RecursionLimit int
}
