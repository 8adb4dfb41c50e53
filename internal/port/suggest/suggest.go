// Package suggest defines the suggestion-source port: a language model asked
// to pick a tool for a query, or to decompose it into sub-questions.
package suggest

import (
	"context"

	"github.com/queryhub/queryhub/internal/domain/decision"
)

// Mode distinguishes a single-target suggestion from a decomposition.
type Mode string

const (
	ModeSingle Mode = "single"
	ModeMulti  Mode = "multi"
)

// Segment is one sub-question of a multi-segment decomposition.
type Segment struct {
	ID            string          `json:"id"`
	Query         string          `json:"q"`
	Tool          decision.ToolID `json:"tool"`
	Confidence    float64         `json:"confidence"`
	Reasons       []string        `json:"reasons,omitempty"`
	NeedsContext  bool            `json:"needs_context,omitempty"`
	QueryTemplate string          `json:"q_template,omitempty"`
}

// Suggestion is a parsed, validated model suggestion. Target/Confidence are
// set for single mode; Segments for multi mode.
type Suggestion struct {
	Mode       Mode            `json:"mode"`
	Target     decision.ToolID `json:"target,omitempty"`
	Confidence float64         `json:"confidence,omitempty"`
	Reasons    []string        `json:"reasons,omitempty"`
	Segments   []Segment       `json:"segments,omitempty"`
}

// Source obtains routing suggestions and query rewrites from a language
// model. Implementations must never return Go errors to the router: any
// parsing or communication failure yields nil (Suggest) or the unmodified
// sub-query (Rewrite).
type Source interface {
	// Suggest asks for a tool suggestion for q. nil means "no usable suggestion".
	Suggest(ctx context.Context, q string) *Suggestion

	// Rewrite derives a standalone search query for subQuery from the
	// serialized step context. On any failure it returns subQuery unchanged.
	Rewrite(ctx context.Context, contextJSON, subQuery string) string
}
