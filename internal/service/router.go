package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/queryhub/queryhub/internal/domain/decision"
	"github.com/queryhub/queryhub/internal/domain/signal"
	"github.com/queryhub/queryhub/internal/port/retrieval"
	"github.com/queryhub/queryhub/internal/port/suggest"
)

// suggestionFloor is the model confidence below which the suggestion is
// discarded and the rule decision wins.
const suggestionFloor = 0.6

// Router merges three evidence sources into one routing decision: explicit
// tool directives in the query, the rule lexicon, and the routing model's
// suggestion. Rules always re-validate the model so a confident but wrong
// suggestion cannot override a strong lexical signal.
type Router struct {
	prober    retrieval.Prober
	source    suggest.Source
	threshold float64
	logger    *slog.Logger
}

// NewRouter creates a router. threshold is the knowledge base probe score at
// or above which the knowledge base is considered a strong signal.
func NewRouter(prober retrieval.Prober, source suggest.Source, threshold float64, logger *slog.Logger) *Router {
	return &Router{prober: prober, source: source, threshold: threshold, logger: logger}
}

// Route decides which tool should answer q.
func (r *Router) Route(ctx context.Context, q string) decision.Decision {
	// Explicit directives win over everything else.
	if exp := signal.DetectExplicit(q); exp != nil {
		d := decision.Decision{
			Target:     exp.Tool,
			Confidence: 0.98,
			Reasons:    []string{exp.Reason},
			Slots:      map[string]string{},
		}
		if exp.Tool == decision.ToolSearch {
			d.Slots = signal.ExtractSlots(q)
		}
		return d
	}

	webSignal := signal.Web(q)
	mathSignal := signal.Math(q)
	kbHint := signal.KBHint(q)
	kbReady, kbScore := r.prober.Probe(ctx, q, "")
	strongKB := kbReady && kbScore >= r.threshold

	sug := r.source.Suggest(ctx, q)
	if sug == nil {
		return r.byRules(q, webSignal, mathSignal, strongKB, kbHint, kbScore)
	}

	var plan []decision.PlanStep
	var target decision.ToolID
	var conf float64
	var reasons []string

	if sug.Mode == suggest.ModeMulti && len(sug.Segments) > 0 {
		plan = r.validatePlan(sug.Segments)
		primary, _ := decision.Primary(plan)
		target = primary.Tool
		conf = primary.Confidence
		reasons = append([]string{"llm:multi-primary"}, primary.Reasons...)
	} else {
		target = sug.Target
		conf = sug.Confidence
		reasons = append([]string{}, sug.Reasons...)
	}

	if conf < suggestionFloor {
		d := r.byRules(q, webSignal, mathSignal, strongKB, kbHint, kbScore)
		d.Reasons = append(d.Reasons, "rule:override-llm-lowconf")
		d.Plan = plan
		return d
	}

	d := r.reconcile(q, target, conf, reasons, webSignal, mathSignal, strongKB, kbHint, kbScore)
	d.Plan = plan
	return d
}

// byRules is the pure-lexicon decision, used when no usable suggestion
// exists. Precedence: greeting, generative preference, math, web, strong
// knowledge base, knowledge base hint, then the general responder.
func (r *Router) byRules(q string, webSignal, mathSignal, strongKB, kbHint bool, kbScore float64) decision.Decision {
	empty := map[string]string{}
	switch {
	case signal.Greeting(q):
		return decision.Decision{Target: decision.ToolResponder, Confidence: 0.9, Reasons: []string{"greet"}, Slots: empty}
	case signal.PreferResponder(q):
		return decision.Decision{Target: decision.ToolResponder, Confidence: 0.85, Reasons: []string{"gen"}, Slots: empty}
	case mathSignal:
		return decision.Decision{Target: decision.ToolCompute, Confidence: 0.85, Reasons: []string{"math"}, Slots: empty}
	case webSignal:
		return decision.Decision{Target: decision.ToolSearch, Confidence: 0.85, Reasons: signal.WebReasons(q), Slots: signal.ExtractSlots(q)}
	case strongKB:
		return decision.Decision{Target: decision.ToolKnowledge, Confidence: 0.85, Reasons: []string{kbReason(kbScore)}, Slots: empty}
	case kbHint:
		return decision.Decision{Target: decision.ToolKnowledge, Confidence: 0.75, Reasons: []string{"kb-hint"}, Slots: empty}
	default:
		return decision.Decision{Target: decision.ToolResponder, Confidence: 0.7, Reasons: []string{"default-llm"}, Slots: empty}
	}
}

// validatePlan re-checks each suggested segment against the rule lexicon.
// Retrieval segments whose sub-question is generative are rerouted to the
// responder.
func (r *Router) validatePlan(segments []suggest.Segment) []decision.PlanStep {
	plan := make([]decision.PlanStep, 0, len(segments))
	for _, seg := range segments {
		tool := seg.Tool
		reasons := append([]string{}, seg.Reasons...)
		if (tool == decision.ToolSearch || tool == decision.ToolKnowledge) && signal.PreferResponder(seg.Query) {
			tool = decision.ToolResponder
			reasons = append(reasons, "rule:prefer-llm-gen")
		}
		plan = append(plan, decision.PlanStep{
			ID:            seg.ID,
			Query:         seg.Query,
			Tool:          tool,
			Confidence:    seg.Confidence,
			Reasons:       reasons,
			NeedsContext:  seg.NeedsContext,
			QueryTemplate: seg.QueryTemplate,
		})
	}
	return plan
}

// reconcile weighs the model's target against the lexical signals. Agreement
// raises confidence; disagreement with a strong signal reroutes.
func (r *Router) reconcile(q string, target decision.ToolID, conf float64, reasons []string,
	webSignal, mathSignal, strongKB, kbHint bool, kbScore float64) decision.Decision {

	empty := map[string]string{}
	kbReasons := func() []string {
		if strongKB {
			return append(reasons, kbReason(kbScore))
		}
		return append(reasons, "kb-hint")
	}

	switch target {
	case decision.ToolSearch:
		switch {
		case webSignal:
			return decision.Decision{Target: decision.ToolSearch, Confidence: maxFloat(conf, 0.9), Reasons: append(reasons, "rule:web"), Slots: signal.ExtractSlots(q)}
		case mathSignal:
			return decision.Decision{Target: decision.ToolCompute, Confidence: 0.85, Reasons: append(reasons, "rule:math"), Slots: empty}
		case strongKB || kbHint:
			return decision.Decision{Target: decision.ToolKnowledge, Confidence: 0.8, Reasons: kbReasons(), Slots: empty}
		default:
			return decision.Decision{Target: decision.ToolSearch, Confidence: conf, Reasons: reasons, Slots: signal.ExtractSlots(q)}
		}

	case decision.ToolKnowledge:
		switch {
		case strongKB:
			return decision.Decision{Target: decision.ToolKnowledge, Confidence: maxFloat(conf, 0.9), Reasons: append(reasons, kbReason(kbScore)), Slots: empty}
		case webSignal:
			return decision.Decision{Target: decision.ToolSearch, Confidence: 0.85, Reasons: append(reasons, "rule:web"), Slots: signal.ExtractSlots(q)}
		case mathSignal:
			return decision.Decision{Target: decision.ToolCompute, Confidence: 0.85, Reasons: append(reasons, "rule:math"), Slots: empty}
		case kbHint:
			return decision.Decision{Target: decision.ToolKnowledge, Confidence: maxFloat(conf, 0.8), Reasons: append(reasons, "kb-hint"), Slots: empty}
		default:
			return decision.Decision{Target: decision.ToolKnowledge, Confidence: conf, Reasons: reasons, Slots: empty}
		}

	case decision.ToolCompute:
		switch {
		case mathSignal:
			return decision.Decision{Target: decision.ToolCompute, Confidence: maxFloat(conf, 0.9), Reasons: append(reasons, "rule:math"), Slots: empty}
		case webSignal:
			return decision.Decision{Target: decision.ToolSearch, Confidence: 0.85, Reasons: append(reasons, "rule:web"), Slots: signal.ExtractSlots(q)}
		case strongKB || kbHint:
			return decision.Decision{Target: decision.ToolKnowledge, Confidence: 0.8, Reasons: kbReasons(), Slots: empty}
		default:
			return decision.Decision{Target: decision.ToolCompute, Confidence: conf, Reasons: reasons, Slots: empty}
		}

	default: // responder
		// Greetings and short small talk with no strong signal stay with
		// the responder so a chatty knowledge base cannot hijack them.
		if signal.Greeting(q) || (signal.Short(q) && !webSignal && !mathSignal && !kbHint) {
			tag := "short"
			if signal.Greeting(q) {
				tag = "greet"
			}
			return decision.Decision{Target: decision.ToolResponder, Confidence: maxFloat(conf, 0.85), Reasons: append(reasons, tag), Slots: empty}
		}
		switch {
		case webSignal:
			return decision.Decision{Target: decision.ToolSearch, Confidence: 0.85, Reasons: append(reasons, "rule:web"), Slots: signal.ExtractSlots(q)}
		case mathSignal:
			return decision.Decision{Target: decision.ToolCompute, Confidence: 0.85, Reasons: append(reasons, "rule:math"), Slots: empty}
		case strongKB || kbHint:
			return decision.Decision{Target: decision.ToolKnowledge, Confidence: 0.8, Reasons: kbReasons(), Slots: empty}
		default:
			return decision.Decision{Target: decision.ToolResponder, Confidence: maxFloat(conf, 0.7), Reasons: reasons, Slots: empty}
		}
	}
}

func kbReason(score float64) string {
	return fmt.Sprintf("kb:score=%.3f", score)
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
