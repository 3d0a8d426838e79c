package agent

import (
	"errors"
	"fmt"
)

// Phase is the position of a turn in the state machine.
type Phase string

const (
	PhaseStart     Phase = "start"
	PhaseRouted    Phase = "routed"
	PhaseRetrieved Phase = "retrieved"
	PhaseJudged    Phase = "judged"
	PhaseSearched  Phase = "searched"
	PhaseAnswered  Phase = "answered"
)

// Node names.
const (
	NodeRouter      = "router"
	NodeDirectReply = "direct_reply"
	NodeRAG         = "rag_lookup"
	NodeJudge       = "judge"
	NodeWebSearch   = "web_search"
	NodeAnswer      = "answer"
)

// Branch labels used by the conditional edges.
const (
	LabelSufficient   = "sufficient"
	LabelInsufficient = "insufficient"
)

// ErrIllegalTransition means a node ran in a phase the table does not allow.
var ErrIllegalTransition = errors.New("illegal phase transition")

// PhaseTransition is one row of the turn state machine: running Node in
// phase From moves the turn to To. Guard names the branch label that selects
// Node, empty for unconditional steps.
type PhaseTransition struct {
	From  Phase
	Node  string
	Guard string
	To    Phase
}

var transitionTable = []PhaseTransition{
	{From: PhaseStart, Node: NodeRouter, To: PhaseRouted},
	{From: PhaseRouted, Node: NodeDirectReply, Guard: string(RouteEnd), To: PhaseAnswered},
	{From: PhaseRouted, Node: NodeAnswer, Guard: string(RouteAnswer), To: PhaseAnswered},
	{From: PhaseRouted, Node: NodeRAG, Guard: string(RouteRAG), To: PhaseRetrieved},
	{From: PhaseRetrieved, Node: NodeJudge, To: PhaseJudged},
	{From: PhaseJudged, Node: NodeAnswer, Guard: LabelSufficient, To: PhaseAnswered},
	{From: PhaseJudged, Node: NodeWebSearch, Guard: LabelInsufficient, To: PhaseSearched},
	{From: PhaseSearched, Node: NodeAnswer, To: PhaseAnswered},
}

// TransitionTable returns a copy of the state machine.
func TransitionTable() []PhaseTransition {
	out := make([]PhaseTransition, len(transitionTable))
	copy(out, transitionTable)
	return out
}

// Advance returns the phase reached by running node in phase from.
func Advance(from Phase, node string) (Phase, error) {
	for _, t := range transitionTable {
		if t.From == from && t.Node == node {
			return t.To, nil
		}
	}
	return from, fmt.Errorf("%w: %s cannot run in phase %s", ErrIllegalTransition, node, from)
}
