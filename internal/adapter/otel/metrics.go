package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "queryhub"

// Metrics holds all QueryHub metric instruments.
type Metrics struct {
	RequestsRouted metric.Int64Counter
	PlansExecuted  metric.Int64Counter
	PlanFallbacks  metric.Int64Counter
	ToolCalls      metric.Int64Counter
	ToolFailures   metric.Int64Counter
	SuggestHits    metric.Int64Counter
	AnswerDuration metric.Float64Histogram
	ProbeTopScore  metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.RequestsRouted, err = meter.Int64Counter("queryhub.requests.routed",
		metric.WithDescription("Number of queries routed, by target tool"))
	if err != nil {
		return nil, err
	}

	m.PlansExecuted, err = meter.Int64Counter("queryhub.plans.executed",
		metric.WithDescription("Number of multi-step plans executed"))
	if err != nil {
		return nil, err
	}

	m.PlanFallbacks, err = meter.Int64Counter("queryhub.plans.fallbacks",
		metric.WithDescription("Number of plans abandoned for single dispatch"))
	if err != nil {
		return nil, err
	}

	m.ToolCalls, err = meter.Int64Counter("queryhub.toolcalls",
		metric.WithDescription("Number of tool invocations"))
	if err != nil {
		return nil, err
	}

	m.ToolFailures, err = meter.Int64Counter("queryhub.toolcalls.failed",
		metric.WithDescription("Number of failed tool invocations"))
	if err != nil {
		return nil, err
	}

	m.SuggestHits, err = meter.Int64Counter("queryhub.suggest.cache_hits",
		metric.WithDescription("Routing suggestions served from cache"))
	if err != nil {
		return nil, err
	}

	m.AnswerDuration, err = meter.Float64Histogram("queryhub.answer.duration_seconds",
		metric.WithDescription("End-to-end answer latency in seconds"))
	if err != nil {
		return nil, err
	}

	m.ProbeTopScore, err = meter.Float64Histogram("queryhub.kb.probe_score",
		metric.WithDescription("Top similarity score from knowledge base probes"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
