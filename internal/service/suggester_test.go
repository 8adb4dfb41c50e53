package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/queryhub/queryhub/internal/adapter/llm"
	otelx "github.com/queryhub/queryhub/internal/adapter/otel"
	"github.com/queryhub/queryhub/internal/adapter/ristretto"
	"github.com/queryhub/queryhub/internal/config"
	"github.com/queryhub/queryhub/internal/domain/decision"
	"github.com/queryhub/queryhub/internal/port/suggest"
)

func TestParseSuggestionSingle(t *testing.T) {
	sug := parseSuggestion(`{"mode":"single","target":"F1","confidence":0.8,"reasons":["realtime"]}`)
	if sug == nil {
		t.Fatal("expected a suggestion")
	}
	if sug.Mode != suggest.ModeSingle || sug.Target != decision.ToolSearch || sug.Confidence != 0.8 {
		t.Errorf("suggestion = %+v", sug)
	}
}

func TestParseSuggestionFenced(t *testing.T) {
	sug := parseSuggestion("以下是路由：\n```json\n{\"mode\":\"single\",\"target\":\"llm\",\"confidence\":0.7}\n```\n")
	if sug == nil || sug.Target != decision.ToolResponder {
		t.Fatalf("suggestion = %+v", sug)
	}
}

func TestParseSuggestionMultiFiltersUnknownTools(t *testing.T) {
	sug := parseSuggestion(`{"mode":"multi","segments":[
		{"q":"天气","tool":"f1","confidence":0.9},
		{"q":"胡闹","tool":"f9","confidence":0.9},
		{"q":"算数","tool":"f3","confidence":0.8}
	]}`)
	if sug == nil {
		t.Fatal("expected a suggestion")
	}
	if len(sug.Segments) != 2 {
		t.Fatalf("segments = %d, want unknown tool dropped", len(sug.Segments))
	}
	if sug.Segments[0].ID != "s1" || sug.Segments[1].Tool != decision.ToolCompute {
		t.Errorf("segments = %+v", sug.Segments)
	}
}

func TestParseSuggestionRejectsGarbage(t *testing.T) {
	for _, in := range []string{
		"not json at all",
		`{"mode":"single","target":"f9","confidence":0.9}`,
		`{"mode":"multi","segments":[{"q":"x","tool":"f9"}]}`,
		`{"mode":"single","target":"hybrid","confidence":0.9}`,
	} {
		if sug := parseSuggestion(in); sug != nil {
			t.Errorf("parseSuggestion(%q) = %+v, want nil", in, sug)
		}
	}
}

func TestStripFences(t *testing.T) {
	cases := map[string]string{
		"plain":                         "plain",
		"```json\n{\"a\":1}\n```":       `{"a":1}`,
		"```\n{\"a\":1}\n```":           `{"a":1}`,
		"前言\n```json\n{\"a\":1}\n```后记": `{"a":1}`,
	}
	for in, want := range cases {
		if got := StripFences(in); got != want {
			t.Errorf("StripFences(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSuggestCachesPerQuery(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{
					"role":    "assistant",
					"content": `{"mode":"single","target":"f1","confidence":0.8,"reasons":["realtime"]}`,
				}},
			},
		})
	}))
	defer srv.Close()

	client := llm.NewClient(config.LLM{
		BaseURL: srv.URL, APIKey: "k", Model: "m", RouteModel: "rm", Timeout: 2 * time.Second,
	})
	cache, err := ristretto.New(1<<20, time.Minute)
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	defer cache.Close()

	s := NewSuggester(client, cache, 2*time.Second, slog.Default())
	if sug := s.Suggest(context.Background(), "今天的新闻"); sug == nil || sug.Target != decision.ToolSearch {
		t.Fatalf("suggestion = %+v", sug)
	}
	cache.Wait()
	if sug := s.Suggest(context.Background(), "今天的新闻"); sug == nil {
		t.Fatal("expected cached suggestion")
	}
	if calls != 1 {
		t.Errorf("upstream calls = %d, want 1", calls)
	}
}

func TestSuggestCacheHitRecordsMetric(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	metrics, err := otelx.NewMetrics()
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{
					"role":    "assistant",
					"content": `{"mode":"single","target":"llm","confidence":0.9,"reasons":[]}`,
				}},
			},
		})
	}))
	defer srv.Close()

	client := llm.NewClient(config.LLM{
		BaseURL: srv.URL, APIKey: "k", Model: "m", Timeout: 2 * time.Second,
	})
	cache, err := ristretto.New(1<<20, time.Minute)
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	defer cache.Close()

	s := NewSuggester(client, cache, 2*time.Second, slog.Default())
	s.SetMetrics(metrics)

	if sug := s.Suggest(context.Background(), "讲个笑话"); sug == nil {
		t.Fatal("first suggest failed")
	}
	cache.Wait()
	if sug := s.Suggest(context.Background(), "讲个笑话"); sug == nil {
		t.Fatal("second suggest failed")
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	var hits int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "queryhub.suggest.cache_hits" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("unexpected data type %T", m.Data)
			}
			for _, dp := range sum.DataPoints {
				hits += dp.Value
			}
		}
	}
	if hits != 1 {
		t.Errorf("cache hits recorded = %d, want 1", hits)
	}
}

func TestSuggestUnavailableModelReturnsNil(t *testing.T) {
	client := llm.NewClient(config.LLM{Model: "m"})
	s := NewSuggester(client, nil, time.Second, slog.Default())
	if sug := s.Suggest(context.Background(), "任意问题"); sug != nil {
		t.Fatalf("suggestion = %+v, want nil without credentials", sug)
	}
}
