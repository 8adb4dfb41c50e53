// Package decisionlog defines the port for recording routing decisions.
package decisionlog

import (
	"context"
	"time"

	"github.com/queryhub/queryhub/internal/domain/decision"
)

// Entry is one recorded routing decision.
type Entry struct {
	RequestID  string          `json:"request_id"`
	Query      string          `json:"query"`
	Target     decision.ToolID `json:"target"`
	Confidence float64         `json:"confidence"`
	Reasons    []string        `json:"reasons"`
	PlanSteps  int             `json:"plan_steps"`
	Duration   time.Duration   `json:"duration"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Recorder persists routing decisions for later inspection. Recording is
// best-effort; callers log failures and continue.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}
