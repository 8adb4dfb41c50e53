package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/queryhub/queryhub/internal/adapter/llm"
	otelx "github.com/queryhub/queryhub/internal/adapter/otel"
	"github.com/queryhub/queryhub/internal/adapter/ristretto"
	"github.com/queryhub/queryhub/internal/domain/decision"
	"github.com/queryhub/queryhub/internal/port/suggest"
)

const routePrompt = `你是工具路由器，只输出 JSON。
工具：f1=联网搜索；f2=知识库；f3=数学计算；llm=纯对话/创作/解释。
若问题包含多个子问，返回 multi：{"mode":"multi","segments":[{id,q,tool,confidence,reasons,needs_context?,q_template?}],"confidence":..,"reasons":[]};
否则返回 single：{"mode":"single","target":"f1|f2|f3|llm","confidence":..,"reasons":[]}。
注意：不需要外部事实的定义/解释/总结/一句话描述/推荐/建议/写作（诗歌/故事/文案等）优先选择 llm；需要实时/新闻/天气等才选 f1；数学求解选 f3；企业内文档选 f2。`

const rewritePrompt = `你是查询改写器。给定上下文变量与子问题，请输出一个可直接用于中文搜索的简洁查询词。
只输出查询词本身，不要解释、不要换行。`

// Suggester asks the routing model for a tool suggestion and caches the
// answer per query. It implements suggest.Source: model failures surface as
// a nil suggestion, never as an error, so routing always proceeds.
type Suggester struct {
	client  *llm.Client
	cache   *ristretto.SuggestionCache
	timeout time.Duration
	metrics *otelx.Metrics
	logger  *slog.Logger
}

// NewSuggester creates a suggestion source. cache may be nil to disable caching.
func NewSuggester(client *llm.Client, cache *ristretto.SuggestionCache, timeout time.Duration, logger *slog.Logger) *Suggester {
	if timeout == 0 {
		timeout = 8 * time.Second
	}
	return &Suggester{client: client, cache: cache, timeout: timeout, logger: logger}
}

// SetMetrics attaches metric instruments; nil disables instrumentation.
func (s *Suggester) SetMetrics(m *otelx.Metrics) {
	s.metrics = m
}

// Suggest returns the model's routing suggestion for q, or nil when the
// model is unavailable or returns something unusable.
func (s *Suggester) Suggest(ctx context.Context, q string) *suggest.Suggestion {
	if s.cache != nil {
		if cached, ok := s.cache.Get(q); ok {
			if s.metrics != nil {
				s.metrics.SuggestHits.Add(ctx, 1)
			}
			return cached
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	content, err := s.client.ChatRoute(ctx, []llm.Message{
		{Role: "system", Content: routePrompt},
		{Role: "user", Content: fmt.Sprintf("根据问题选择工具并可拆分子问：%s", q)},
	})
	if err != nil {
		s.logger.Debug("routing model unavailable", "error", err)
		return nil
	}

	sug := parseSuggestion(content)
	if sug == nil {
		s.logger.Debug("routing model output unusable", "content", truncateForLog(content))
		return nil
	}
	if s.cache != nil {
		s.cache.Put(q, sug)
	}
	return sug
}

// Rewrite condenses a context-dependent sub-question into a standalone
// search query. Failures fall back to the sub-question unchanged.
func (s *Suggester) Rewrite(ctx context.Context, contextJSON, subQuery string) string {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	content, err := s.client.Chat(ctx, []llm.Message{
		{Role: "system", Content: rewritePrompt},
		{Role: "user", Content: fmt.Sprintf("上下文: %s\n子问题: %s\n输出查询词：", contextJSON, subQuery)},
	})
	if err != nil {
		return subQuery
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return subQuery
	}
	return content
}

// parseSuggestion turns raw model output into a validated suggestion.
// Unknown tools in segments are dropped; an unknown single target rejects
// the whole suggestion.
func parseSuggestion(content string) *suggest.Suggestion {
	s := StripFences(content)

	var obj struct {
		Mode       string  `json:"mode"`
		Target     string  `json:"target"`
		Confidence float64 `json:"confidence"`
		Reasons    []any   `json:"reasons"`
		Segments   []struct {
			ID            string  `json:"id"`
			Q             string  `json:"q"`
			Tool          string  `json:"tool"`
			Confidence    float64 `json:"confidence"`
			Reasons       []any   `json:"reasons"`
			NeedsContext  bool    `json:"needs_context"`
			QueryTemplate string  `json:"q_template"`
		} `json:"segments"`
	}
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil
	}

	mode := strings.ToLower(obj.Mode)
	if mode == string(suggest.ModeMulti) && len(obj.Segments) > 0 {
		segs := make([]suggest.Segment, 0, len(obj.Segments))
		for i, seg := range obj.Segments {
			tool := decision.ToolID(strings.ToLower(seg.Tool))
			if !decision.Known(tool) || tool == decision.ToolHybrid {
				continue
			}
			id := seg.ID
			if id == "" {
				id = fmt.Sprintf("s%d", i+1)
			}
			segs = append(segs, suggest.Segment{
				ID:            id,
				Query:         seg.Q,
				Tool:          tool,
				Confidence:    seg.Confidence,
				Reasons:       toStrings(seg.Reasons),
				NeedsContext:  seg.NeedsContext,
				QueryTemplate: seg.QueryTemplate,
			})
		}
		if len(segs) == 0 {
			return nil
		}
		return &suggest.Suggestion{
			Mode:       suggest.ModeMulti,
			Confidence: obj.Confidence,
			Reasons:    toStrings(obj.Reasons),
			Segments:   segs,
		}
	}

	target := decision.ToolID(strings.ToLower(obj.Target))
	if !decision.Known(target) || target == decision.ToolHybrid {
		return nil
	}
	return &suggest.Suggestion{
		Mode:       suggest.ModeSingle,
		Target:     target,
		Confidence: obj.Confidence,
		Reasons:    toStrings(obj.Reasons),
	}
}

// StripFences removes a surrounding markdown code fence, tolerating a
// leading language tag, so fenced JSON parses cleanly.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, "```") {
		return s
	}
	parts := strings.Split(s, "```")
	if len(parts) < 3 {
		return s
	}
	body := parts[1]
	trimmed := strings.TrimLeft(body, " \t")
	lower := strings.ToLower(trimmed)
	for _, tag := range []string{"json", "python", "go"} {
		if strings.HasPrefix(lower, tag) {
			if i := strings.IndexByte(trimmed, '\n'); i >= 0 {
				return strings.TrimSpace(trimmed[i+1:])
			}
			return ""
		}
	}
	return strings.TrimSpace(body)
}

func toStrings(in []any) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		out = append(out, fmt.Sprint(v))
	}
	return out
}

func truncateForLog(s string) string {
	if len(s) <= 160 {
		return s
	}
	return s[:160]
}
