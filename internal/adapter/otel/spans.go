package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "queryhub"

// StartRouteSpan starts a span covering intent routing for one query.
func StartRouteSpan(ctx context.Context, requestID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "route",
		trace.WithAttributes(
			attribute.String("request.id", requestID),
		),
	)
}

// StartToolSpan starts a span for one tool invocation.
func StartToolSpan(ctx context.Context, tool, stepID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "tool",
		trace.WithAttributes(
			attribute.String("tool.id", tool),
			attribute.String("step.id", stepID),
		),
	)
}

// StartPlanSpan starts a span covering a multi-step plan execution.
func StartPlanSpan(ctx context.Context, requestID string, steps int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "plan",
		trace.WithAttributes(
			attribute.String("request.id", requestID),
			attribute.Int("plan.steps", steps),
		),
	)
}
