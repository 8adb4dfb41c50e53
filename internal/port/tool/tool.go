// Package tool defines the tool port (handler contract) and the startup-time registry.
package tool

import (
	"context"

	"github.com/queryhub/queryhub/internal/domain/decision"
)

// Request is the payload handed to a tool. Fields beyond Query are optional
// and tool-specific; handlers read only what they understand.
type Request struct {
	Query string            `json:"q"`
	K     int               `json:"k,omitempty"`
	Slots map[string]string `json:"slots,omitempty"`

	// Knowledge-base fields.
	KBID     string `json:"kb_id,omitempty"`
	TopK     int    `json:"top_k,omitempty"`
	Generate *bool  `json:"gen,omitempty"`

	// Computation fields.
	Code    string `json:"code,omitempty"`
	Codegen *bool  `json:"codegen,omitempty"`

	// Responder fields.
	SystemPrompt string `json:"system_prompt,omitempty"`
}

// Item is one ranked result entry.
type Item struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score,omitempty"`
}

// Result is what every tool returns. A tool never fails with a Go error for
// user-input or upstream problems; it reports them in Error with empty Items.
type Result struct {
	Feature decision.ToolID `json:"feature"`
	Items   []Item          `json:"items"`
	Text    string          `json:"text,omitempty"`
	Value   any             `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`

	// Tool-specific extras.
	KBID    string `json:"kb_id,omitempty"`
	Answer  string `json:"answer,omitempty"`
	Code    string `json:"code,omitempty"`
	Codegen string `json:"codegen,omitempty"`
}

// Handler is the capability contract every tool implements.
type Handler interface {
	// ID returns the tool identifier this handler serves.
	ID() decision.ToolID

	// Handle processes a request. It must not return errors through panics;
	// failures are reported in Result.Error.
	Handle(ctx context.Context, req Request) Result
}
