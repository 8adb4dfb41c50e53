package service

import (
	"context"
	"log/slog"
	"testing"

	"github.com/queryhub/queryhub/internal/domain/decision"
	"github.com/queryhub/queryhub/internal/port/suggest"
)

type fakeProber struct {
	ready bool
	score float64
}

func (f fakeProber) Probe(context.Context, string, string) (bool, float64) {
	return f.ready, f.score
}

type fakeSource struct {
	sug      *suggest.Suggestion
	rewrite  string
	suggests int
}

func (f *fakeSource) Suggest(context.Context, string) *suggest.Suggestion {
	f.suggests++
	return f.sug
}

func (f *fakeSource) Rewrite(_ context.Context, _ string, sub string) string {
	if f.rewrite != "" {
		return f.rewrite
	}
	return sub
}

func testRouter(prober fakeProber, sug *suggest.Suggestion) *Router {
	return NewRouter(prober, &fakeSource{sug: sug}, 0.35, slog.Default())
}

func hasReason(reasons []string, want string) bool {
	for _, r := range reasons {
		if r == want {
			return true
		}
	}
	return false
}

func TestRouteExplicitDirectiveWins(t *testing.T) {
	// A confident contrary suggestion must not even be consulted.
	r := testRouter(fakeProber{}, &suggest.Suggestion{
		Mode: suggest.ModeSingle, Target: decision.ToolSearch, Confidence: 0.95,
	})
	d := r.Route(context.Background(), "用知识库查一下产品手册")
	if d.Target != decision.ToolKnowledge {
		t.Fatalf("target = %s, want f2", d.Target)
	}
	if d.Confidence != 0.98 {
		t.Errorf("confidence = %v", d.Confidence)
	}
	if !hasReason(d.Reasons, "explicit:f2") {
		t.Errorf("reasons = %v", d.Reasons)
	}
}

func TestRouteWeatherByRules(t *testing.T) {
	r := testRouter(fakeProber{}, nil)
	d := r.Route(context.Background(), "上海天气")
	if d.Target != decision.ToolSearch {
		t.Fatalf("target = %s, want f1", d.Target)
	}
	if d.Confidence != 0.85 {
		t.Errorf("confidence = %v", d.Confidence)
	}
	if !hasReason(d.Reasons, "weather") {
		t.Errorf("reasons = %v", d.Reasons)
	}
	if d.Slots["location"] != "上海" {
		t.Errorf("slots = %v", d.Slots)
	}
	if d.Slots["provider"] != "metaso" {
		t.Errorf("slots = %v", d.Slots)
	}
}

func TestRouteGreetingByRules(t *testing.T) {
	r := testRouter(fakeProber{ready: true, score: 0.9}, nil)
	d := r.Route(context.Background(), "你好")
	if d.Target != decision.ToolResponder {
		t.Fatalf("target = %s, want llm", d.Target)
	}
	if d.Confidence != 0.9 || !hasReason(d.Reasons, "greet") {
		t.Errorf("decision = %+v", d)
	}
}

func TestRouteLowConfidenceSuggestionDiscarded(t *testing.T) {
	r := testRouter(fakeProber{}, &suggest.Suggestion{
		Mode: suggest.ModeSingle, Target: decision.ToolSearch, Confidence: 0.3,
	})
	d := r.Route(context.Background(), "这是什么东西")
	if d.Target != decision.ToolResponder {
		t.Fatalf("target = %s, want llm", d.Target)
	}
	if !hasReason(d.Reasons, "default-llm") || !hasReason(d.Reasons, "rule:override-llm-lowconf") {
		t.Errorf("reasons = %v", d.Reasons)
	}
}

func TestRouteSuggestionAgreesWithWebSignal(t *testing.T) {
	r := testRouter(fakeProber{}, &suggest.Suggestion{
		Mode: suggest.ModeSingle, Target: decision.ToolSearch, Confidence: 0.7,
	})
	d := r.Route(context.Background(), "明天北京天气")
	if d.Target != decision.ToolSearch {
		t.Fatalf("target = %s, want f1", d.Target)
	}
	if d.Confidence != 0.9 {
		t.Errorf("confidence = %v, want raised to 0.9", d.Confidence)
	}
	if !hasReason(d.Reasons, "rule:web") {
		t.Errorf("reasons = %v", d.Reasons)
	}
	if d.Slots["when"] != "明天" {
		t.Errorf("slots = %v", d.Slots)
	}
}

func TestRouteStrongKBOverridesSearchSuggestion(t *testing.T) {
	r := testRouter(fakeProber{ready: true, score: 0.8}, &suggest.Suggestion{
		Mode: suggest.ModeSingle, Target: decision.ToolSearch, Confidence: 0.7,
	})
	d := r.Route(context.Background(), "公司的报销流程是怎样的")
	if d.Target != decision.ToolKnowledge {
		t.Fatalf("target = %s, want f2", d.Target)
	}
	if d.Confidence != 0.8 {
		t.Errorf("confidence = %v", d.Confidence)
	}
	if !hasReason(d.Reasons, "kb:score=0.800") {
		t.Errorf("reasons = %v", d.Reasons)
	}
}

func TestRouteMultiPlanPrimary(t *testing.T) {
	r := testRouter(fakeProber{}, &suggest.Suggestion{
		Mode: suggest.ModeMulti,
		Segments: []suggest.Segment{
			{ID: "s1", Query: "北京今天气温", Tool: decision.ToolSearch, Confidence: 0.9},
			{ID: "s2", Query: "气温乘以2", Tool: decision.ToolCompute, Confidence: 0.8,
				NeedsContext: true, QueryTemplate: "{s1.ans}*2"},
		},
	})
	d := r.Route(context.Background(), "北京今天气温乘以2是多少")
	if d.Target != decision.ToolSearch {
		t.Fatalf("target = %s, want f1", d.Target)
	}
	if d.Confidence != 0.9 {
		t.Errorf("confidence = %v", d.Confidence)
	}
	if !hasReason(d.Reasons, "llm:multi-primary") || !hasReason(d.Reasons, "rule:web") {
		t.Errorf("reasons = %v", d.Reasons)
	}
	if len(d.Plan) != 2 {
		t.Fatalf("plan kept %d steps, want 2", len(d.Plan))
	}
	if d.Plan[1].QueryTemplate != "{s1.ans}*2" || !d.Plan[1].NeedsContext {
		t.Errorf("plan step lost template: %+v", d.Plan[1])
	}
}

func TestRoutePlanSegmentReroutedToResponder(t *testing.T) {
	r := testRouter(fakeProber{}, &suggest.Suggestion{
		Mode: suggest.ModeMulti,
		Segments: []suggest.Segment{
			{ID: "s1", Query: "写一首关于春天的诗", Tool: decision.ToolSearch, Confidence: 0.9},
		},
	})
	d := r.Route(context.Background(), "写一首关于春天的诗")
	if len(d.Plan) != 1 {
		t.Fatalf("plan has %d steps", len(d.Plan))
	}
	if d.Plan[0].Tool != decision.ToolResponder {
		t.Errorf("segment tool = %s, want llm", d.Plan[0].Tool)
	}
	if !hasReason(d.Plan[0].Reasons, "rule:prefer-llm-gen") {
		t.Errorf("segment reasons = %v", d.Plan[0].Reasons)
	}
	if d.Target != decision.ToolResponder {
		t.Errorf("target = %s, want llm", d.Target)
	}
}

func TestRouteShortQueryStaysWithResponder(t *testing.T) {
	r := testRouter(fakeProber{ready: true, score: 0.9}, &suggest.Suggestion{
		Mode: suggest.ModeSingle, Target: decision.ToolResponder, Confidence: 0.65,
	})
	d := r.Route(context.Background(), "谢谢你")
	if d.Target != decision.ToolResponder {
		t.Fatalf("target = %s, want llm", d.Target)
	}
	if d.Confidence != 0.85 || !hasReason(d.Reasons, "short") {
		t.Errorf("decision = %+v", d)
	}
}

func TestRouteNoSuggestionKBHint(t *testing.T) {
	r := testRouter(fakeProber{ready: true, score: 0.1}, nil)
	d := r.Route(context.Background(), "帮我找下项目文档")
	if d.Target != decision.ToolKnowledge {
		t.Fatalf("target = %s, want f2", d.Target)
	}
	if d.Confidence != 0.75 || !hasReason(d.Reasons, "kb-hint") {
		t.Errorf("decision = %+v", d)
	}
}
