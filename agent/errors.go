package agent

import (
	"errors"
	"fmt"
)

var (
	// ErrRouting means the router produced no valid label or its model call failed.
	ErrRouting = errors.New("routing failed")

	// ErrRetrieval means embedding the query or searching the vector store failed.
	ErrRetrieval = errors.New("retrieval failed")

	// ErrJudgment means the sufficiency judge produced no valid verdict.
	ErrJudgment = errors.New("sufficiency judgment failed")

	// ErrAnswer means the final reply could not be produced.
	ErrAnswer = errors.New("answer failed")

	// ErrPersistence means the thread could not be loaded or saved.
	ErrPersistence = errors.New("thread persistence failed")

	// ErrTurnAborted means the turn stopped outside any node, e.g. on timeout.
	ErrTurnAborted = errors.New("turn aborted")

	// ErrInvalidInput is returned for a blank message or thread id.
	ErrInvalidInput = errors.New("invalid turn input")
)

// TurnError reports a failed turn: which step failed, the failure kind and
// the underlying cause. errors.Is matches both Kind and anything in Err.
type TurnError struct {
	Node string
	Kind error
	Err  error
}

func (e *TurnError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Node, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Node, e.Kind, e.Err)
}

func (e *TurnError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
