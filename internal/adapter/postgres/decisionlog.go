package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/queryhub/queryhub/internal/port/decisionlog"
)

// DecisionLog implements decisionlog.Recorder using PostgreSQL (append-only).
type DecisionLog struct {
	pool *pgxpool.Pool
}

// NewDecisionLog creates a recorder backed by the given connection pool.
func NewDecisionLog(pool *pgxpool.Pool) *DecisionLog {
	return &DecisionLog{pool: pool}
}

// Record inserts one routing decision into the decision_log table.
func (s *DecisionLog) Record(ctx context.Context, e decisionlog.Entry) error {
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO decision_log (request_id, query, target, confidence, reasons, plan_steps, duration_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.RequestID, e.Query, string(e.Target), e.Confidence, e.Reasons, e.PlanSteps,
		e.Duration.Milliseconds(), created)
	if err != nil {
		return fmt.Errorf("record decision: %w", err)
	}
	return nil
}

// Recent returns the latest n decisions, newest first.
func (s *DecisionLog) Recent(ctx context.Context, n int) ([]decisionlog.Entry, error) {
	if n <= 0 {
		n = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT request_id, query, target, confidence, reasons, plan_steps, duration_ms, created_at
		 FROM decision_log ORDER BY created_at DESC LIMIT $1`, n)
	if err != nil {
		return nil, fmt.Errorf("load recent decisions: %w", err)
	}
	defer rows.Close()

	var entries []decisionlog.Entry
	for rows.Next() {
		var e decisionlog.Entry
		var durationMS int64
		if err := rows.Scan(&e.RequestID, &e.Query, &e.Target, &e.Confidence, &e.Reasons,
			&e.PlanSteps, &durationMS, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		e.Duration = time.Duration(durationMS) * time.Millisecond
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
