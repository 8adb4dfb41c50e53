package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	otelx "github.com/queryhub/queryhub/internal/adapter/otel"
	"github.com/queryhub/queryhub/internal/domain"
	"github.com/queryhub/queryhub/internal/domain/decision"
	"github.com/queryhub/queryhub/internal/logger"
	"github.com/queryhub/queryhub/internal/port/decisionlog"
	"github.com/queryhub/queryhub/internal/port/suggest"
	"github.com/queryhub/queryhub/internal/port/tool"
)

// StepInput is the effective input of one executed plan step.
type StepInput struct {
	Query string `json:"q"`
}

// StepRecord is the trace of one executed plan step.
type StepRecord struct {
	ID     string          `json:"id"`
	Tool   decision.ToolID `json:"tool"`
	Input  StepInput       `json:"input"`
	Output tool.Result     `json:"output"`
}

// Answer is the complete outcome for one query.
type Answer struct {
	Query        string
	Decision     decision.Decision
	Primary      decision.ToolID
	PrimaryItems []tool.Item
	Steps        []StepRecord
	Err          string
}

// stepContext is what one finished step contributes to later templates.
type stepContext struct {
	Ans  any    `json:"ans"`
	Text string `json:"text"`
}

var templateToken = regexp.MustCompile(`\{([^}]+)\}`)

// Orchestrator routes a query and executes the resulting decision: either a
// single tool dispatch or an ordered multi-step plan with context threading
// between steps.
type Orchestrator struct {
	router   *Router
	registry *tool.Registry
	source   suggest.Source
	recorder decisionlog.Recorder
	metrics  *otelx.Metrics
	logger   *slog.Logger
}

// NewOrchestrator creates an orchestrator. recorder and metrics may be nil.
func NewOrchestrator(router *Router, registry *tool.Registry, source suggest.Source,
	recorder decisionlog.Recorder, metrics *otelx.Metrics, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		router:   router,
		registry: registry,
		source:   source,
		recorder: recorder,
		metrics:  metrics,
		logger:   log,
	}
}

// Answer routes q and runs the chosen tool or plan. mode overrides routing
// when it names a tool; "auto" or empty means route normally. req carries
// caller-supplied tool options forwarded into every dispatch.
func (o *Orchestrator) Answer(ctx context.Context, q, mode string, req tool.Request) Answer {
	start := time.Now()
	requestID := logger.RequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	ctx, span := otelx.StartRouteSpan(ctx, requestID)
	var d decision.Decision
	if mode != "" && mode != "auto" {
		d = decision.Decision{
			Target:     decision.ToolID(mode),
			Confidence: 1.0,
			Reasons:    []string{},
			Slots:      map[string]string{},
		}
	} else {
		d = o.router.Route(ctx, q)
	}
	span.End()

	target := decision.Resolve(d.Target)
	o.logger.Info("routed",
		"request_id", requestID,
		"target", target,
		"confidence", d.Confidence,
		"reasons", d.Reasons,
		"plan_steps", len(d.Plan))

	var ans Answer
	if len(d.Plan) > 0 {
		var err error
		ans, err = o.executePlan(ctx, q, requestID, d, target, req)
		if err != nil {
			// A broken plan falls back to plain single dispatch; the
			// partial trace is discarded.
			o.logger.Warn("plan execution failed, falling back to single dispatch",
				"request_id", requestID, "error", err)
			if o.metrics != nil {
				o.count(ctx, o.metrics.PlanFallbacks, "tool", string(target))
			}
			ans = o.single(ctx, q, d, target, req)
		} else if o.metrics != nil {
			o.count(ctx, o.metrics.PlansExecuted, "tool", string(ans.Primary))
		}
	} else {
		ans = o.single(ctx, q, d, target, req)
	}

	elapsed := time.Since(start)
	if o.metrics != nil {
		o.count(ctx, o.metrics.RequestsRouted, "tool", string(ans.Primary))
		o.metrics.AnswerDuration.Record(ctx, elapsed.Seconds(),
			metric.WithAttributes(attribute.String("tool", string(ans.Primary))))
	}
	o.record(ctx, decisionlog.Entry{
		RequestID:  requestID,
		Query:      q,
		Target:     ans.Primary,
		Confidence: d.Confidence,
		Reasons:    d.Reasons,
		PlanSteps:  len(d.Plan),
		Duration:   elapsed,
	})
	return ans
}

// single dispatches the query to one tool.
func (o *Orchestrator) single(ctx context.Context, q string, d decision.Decision, target decision.ToolID, req tool.Request) Answer {
	req.Query = q
	if req.Slots == nil {
		req.Slots = d.Slots
	}
	out := o.dispatch(ctx, target, "", req)
	return Answer{
		Query:        q,
		Decision:     d,
		Primary:      target,
		PrimaryItems: itemsOrEmpty(out.Items),
		Err:          out.Error,
	}
}

// executePlan runs plan steps in order, threading each step's answer into
// later templates. It fails fast when a step names an unregistered tool so
// the caller can fall back to single dispatch. A handler panic mid-plan is
// converted into the same error return, so the caller still gets a result.
func (o *Orchestrator) executePlan(ctx context.Context, q, requestID string, d decision.Decision, target decision.ToolID, req tool.Request) (ans Answer, err error) {
	defer func() {
		if r := recover(); r != nil {
			ans = Answer{}
			err = fmt.Errorf("plan step panicked: %v", r)
		}
	}()

	for _, step := range d.Plan {
		if !o.registry.Known(decision.Resolve(step.Tool)) {
			return Answer{}, fmt.Errorf("plan step %s: %w: %q", step.ID, domain.ErrToolUnknown, step.Tool)
		}
	}

	ctx, span := otelx.StartPlanSpan(ctx, requestID, len(d.Plan))
	defer span.End()

	primaryTool := target
	if primary, ok := decision.Primary(d.Plan); ok {
		primaryTool = decision.Resolve(primary.Tool)
	}

	stepCtx := make(map[string]stepContext, len(d.Plan))
	steps := make([]StepRecord, 0, len(d.Plan))
	var last tool.Result

	for i, step := range d.Plan {
		sid := step.ID
		if sid == "" {
			sid = fmt.Sprintf("s%d", i+1)
		}
		stepTool := decision.Resolve(step.Tool)
		stepQ := step.Query
		if stepQ == "" {
			stepQ = q
		}

		switch {
		case step.NeedsContext && step.QueryTemplate != "":
			stepQ = resolveTemplate(step.QueryTemplate, stepCtx)
		case step.NeedsContext:
			stepQ = o.rewrite(ctx, stepCtx, stepQ)
		}

		stepReq := o.stepRequest(stepTool, stepQ, d, req)
		out := o.dispatch(ctx, stepTool, sid, stepReq)
		last = out

		stepCtx[sid] = stepContext{Ans: out.Value, Text: out.Text}
		steps = append(steps, StepRecord{
			ID:     sid,
			Tool:   stepTool,
			Input:  StepInput{Query: stepQ},
			Output: out,
		})
	}

	primaryItems := []tool.Item{}
	for _, rec := range steps {
		if rec.Tool == primaryTool {
			primaryItems = itemsOrEmpty(rec.Output.Items)
			break
		}
	}

	return Answer{
		Query:        q,
		Decision:     d,
		Primary:      primaryTool,
		PrimaryItems: primaryItems,
		Steps:        steps,
		Err:          last.Error,
	}, nil
}

// stepRequest builds the per-step payload, carrying over only the caller
// options the step's tool understands.
func (o *Orchestrator) stepRequest(stepTool decision.ToolID, stepQ string, d decision.Decision, req tool.Request) tool.Request {
	out := tool.Request{Query: stepQ}
	switch stepTool {
	case decision.ToolSearch:
		out.K = req.K
		out.Slots = d.Slots
	case decision.ToolKnowledge:
		out.KBID = req.KBID
		out.TopK = req.TopK
		out.Generate = req.Generate
	case decision.ToolCompute:
		out.Code = req.Code
		out.Codegen = req.Codegen
	case decision.ToolResponder:
		out.SystemPrompt = req.SystemPrompt
	}
	return out
}

func (o *Orchestrator) dispatch(ctx context.Context, target decision.ToolID, stepID string, req tool.Request) tool.Result {
	ctx, span := otelx.StartToolSpan(ctx, string(target), stepID)
	defer span.End()

	out := o.registry.Dispatch(ctx, target, req)
	if o.metrics != nil {
		o.count(ctx, o.metrics.ToolCalls, "tool", string(target))
		if out.Error != "" {
			o.count(ctx, o.metrics.ToolFailures, "tool", string(target))
		}
	}
	return out
}

// rewrite asks the model to turn a context-dependent sub-question into a
// standalone query. Failures keep the sub-question unchanged.
func (o *Orchestrator) rewrite(ctx context.Context, stepCtx map[string]stepContext, subQuery string) string {
	ctxJSON, err := json.Marshal(stepCtx)
	if err != nil {
		return subQuery
	}
	return o.source.Rewrite(ctx, string(ctxJSON), subQuery)
}

// resolveTemplate substitutes {sid.var} tokens with values from earlier
// steps. Unresolvable tokens stay verbatim so a bad template degrades to a
// literal query rather than an error.
func resolveTemplate(tmpl string, stepCtx map[string]stepContext) string {
	return templateToken.ReplaceAllStringFunc(tmpl, func(token string) string {
		key := token[1 : len(token)-1]
		dot := -1
		for i, r := range key {
			if r == '.' {
				dot = i
				break
			}
		}
		if dot < 0 {
			return token
		}
		sid, field := key[:dot], key[dot+1:]
		sc, ok := stepCtx[sid]
		if !ok {
			return token
		}
		switch field {
		case "ans":
			if sc.Ans == nil {
				return token
			}
			return fmt.Sprint(sc.Ans)
		case "text":
			if sc.Text == "" {
				return token
			}
			return sc.Text
		default:
			return token
		}
	})
}

func (o *Orchestrator) record(ctx context.Context, e decisionlog.Entry) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.Record(ctx, e); err != nil {
		o.logger.Warn("decision log write failed", "request_id", e.RequestID, "error", err)
	}
}

func (o *Orchestrator) count(ctx context.Context, c metric.Int64Counter, kvs ...string) {
	attrs := make([]attribute.KeyValue, 0, len(kvs)/2)
	for i := 0; i+1 < len(kvs); i += 2 {
		attrs = append(attrs, attribute.String(kvs[i], kvs[i+1]))
	}
	c.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func itemsOrEmpty(items []tool.Item) []tool.Item {
	if items == nil {
		return []tool.Item{}
	}
	return items
}
