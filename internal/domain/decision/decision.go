// Package decision defines the routing decision domain entities.
package decision

import (
	"errors"
	"fmt"
)

// ToolID identifies one of the backend tools a query can be routed to.
type ToolID string

const (
	// ToolSearch is the live web search tool.
	ToolSearch ToolID = "f1"
	// ToolKnowledge is the retrieval-augmented knowledge base tool.
	ToolKnowledge ToolID = "f2"
	// ToolCompute is the constrained math/computation tool.
	ToolCompute ToolID = "f3"
	// ToolResponder is the general-purpose language-model responder.
	ToolResponder ToolID = "llm"

	// ToolHybrid is a placeholder accepted on input only; it dispatches as ToolSearch.
	ToolHybrid ToolID = "hybrid"
)

// Known reports whether id is one of the four dispatchable tools.
func Known(id ToolID) bool {
	switch id {
	case ToolSearch, ToolKnowledge, ToolCompute, ToolResponder:
		return true
	}
	return false
}

// Resolve maps input-only placeholders to a dispatchable tool.
func Resolve(id ToolID) ToolID {
	if id == ToolHybrid {
		return ToolSearch
	}
	return id
}

// PlanStep is one unit of a multi-step plan. Steps execute in order and may
// reference earlier step outputs through QueryTemplate placeholders.
type PlanStep struct {
	ID         string   `json:"id"`
	Query      string   `json:"q"`
	Tool       ToolID   `json:"tool"`
	Confidence float64  `json:"confidence"`
	Reasons    []string `json:"reasons,omitempty"`

	// NeedsContext marks a step whose query depends on prior step output.
	// With a QueryTemplate the query is produced by placeholder substitution;
	// without one it is rewritten from the accumulated context.
	NeedsContext  bool   `json:"needs_context,omitempty"`
	QueryTemplate string `json:"q_template,omitempty"`
}

// Decision is the outcome of routing one query: the chosen tool, how sure the
// router is, why, advisory slots for the tool, and an optional multi-step plan.
type Decision struct {
	Target     ToolID            `json:"target"`
	Confidence float64           `json:"confidence"`
	Reasons    []string          `json:"reasons"`
	Slots      map[string]string `json:"slots,omitempty"`
	Plan       []PlanStep        `json:"plan,omitempty"`
}

// Validate checks the decision invariants: a known (or placeholder) target,
// confidence in [0,1], and a non-empty plan of known tools when present.
func (d *Decision) Validate() error {
	if !Known(d.Target) && d.Target != ToolHybrid {
		return fmt.Errorf("unknown target tool %q", d.Target)
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("confidence %v out of range", d.Confidence)
	}
	if d.Plan != nil && len(d.Plan) == 0 {
		return errors.New("plan present but empty")
	}
	for i := range d.Plan {
		if !Known(d.Plan[i].Tool) {
			return fmt.Errorf("plan step %d: unknown tool %q", i, d.Plan[i].Tool)
		}
	}
	return nil
}

// Primary returns the plan step with the highest confidence, ties broken by
// original order. ok is false when the plan is empty.
func Primary(plan []PlanStep) (step PlanStep, ok bool) {
	if len(plan) == 0 {
		return PlanStep{}, false
	}
	best := 0
	for i := 1; i < len(plan); i++ {
		if plan[i].Confidence > plan[best].Confidence {
			best = i
		}
	}
	return plan[best], true
}
