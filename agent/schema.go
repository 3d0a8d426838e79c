package agent

import (
	"errors"
	"fmt"
)

// RouteDecision is the router's structured output.
type RouteDecision struct {
	Route Route `json:"route"`
	// Reply is an optional ready-made answer, honoured only for RouteEnd.
	Reply string `json:"reply,omitempty"`
}

// Validate rejects anything but an exact route label.
func (d *RouteDecision) Validate() error {
	if d.Route == "" {
		return errors.New("route is required")
	}
	if !d.Route.Valid() {
		return fmt.Errorf("route %q is not one of end, rag, answer", d.Route)
	}
	return nil
}

// SufficiencyJudgment is the judge's structured output.
type SufficiencyJudgment struct {
	Sufficient *bool  `json:"sufficient"`
	Reason     string `json:"reason"`
}

// Validate requires an explicit boolean verdict.
func (j *SufficiencyJudgment) Validate() error {
	if j.Sufficient == nil {
		return errors.New("sufficient is required")
	}
	return nil
}
