// Package knowledge implements the f2 tool: retrieval over the local
// knowledge base with optional model-generated answers grounded in the
// recalled chunks.
package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/queryhub/queryhub/internal/adapter/kbindex"
	"github.com/queryhub/queryhub/internal/adapter/llm"
	"github.com/queryhub/queryhub/internal/config"
	"github.com/queryhub/queryhub/internal/domain"
	"github.com/queryhub/queryhub/internal/domain/decision"
	"github.com/queryhub/queryhub/internal/port/retrieval"
	"github.com/queryhub/queryhub/internal/port/tool"
)

// IndexProvider loans out the loaded index for a knowledge base.
type IndexProvider interface {
	Index(kbID string) (*kbindex.Index, error)
}

// Generator produces a chat completion; *llm.Client satisfies it.
type Generator interface {
	Chat(ctx context.Context, messages []llm.Message) (string, error)
}

// Tool answers questions from the knowledge base.
type Tool struct {
	provider IndexProvider
	gen      Generator
	kbID     string
	topK     int
	logger   *slog.Logger
}

// New creates the knowledge tool. gen may be nil to disable answer generation.
func New(provider IndexProvider, gen Generator, cfg config.KB, logger *slog.Logger) *Tool {
	topK := cfg.TopK
	if topK <= 0 {
		topK = 5
	}
	return &Tool{provider: provider, gen: gen, kbID: cfg.RouteKBID, topK: topK, logger: logger}
}

// ID implements tool.Handler.
func (t *Tool) ID() decision.ToolID { return decision.ToolKnowledge }

// Handle recalls the top chunks for the question and, unless generation is
// disabled, asks the model for an answer grounded in them. A generation
// failure keeps the recalled chunks and notes the failure in the answer.
func (t *Tool) Handle(ctx context.Context, req tool.Request) tool.Result {
	q := strings.TrimSpace(req.Query)
	if q == "" {
		return tool.Result{Feature: t.ID(), Items: []tool.Item{}, Error: domain.ErrMissingQuery.Error()}
	}

	kbID := req.KBID
	if kbID == "" {
		kbID = t.kbID
	}
	topK := req.TopK
	if topK <= 0 {
		topK = t.topK
	}
	generate := req.Generate == nil || *req.Generate

	ix, err := t.provider.Index(kbID)
	if err != nil {
		return tool.Result{
			Feature: t.ID(),
			KBID:    kbID,
			Items:   []tool.Item{},
			Error:   fmt.Sprintf("index not ready for kb=%s: %v", kbID, err),
		}
	}

	hits, err := ix.Query(ctx, q, topK)
	if err != nil {
		return tool.Result{
			Feature: t.ID(),
			KBID:    kbID,
			Items:   []tool.Item{},
			Error:   fmt.Sprintf("kb query failed: %v", err),
		}
	}

	items := make([]tool.Item, 0, len(hits))
	for _, h := range hits {
		items = append(items, tool.Item{Title: h.Source, Snippet: h.Text, Score: h.Score})
	}

	out := tool.Result{Feature: t.ID(), KBID: kbID, Items: items}
	if generate && len(hits) > 0 && t.gen != nil {
		out.Answer = t.answer(ctx, q, hits)
	}
	return out
}

func (t *Tool) answer(ctx context.Context, q string, hits []retrieval.Hit) string {
	var b strings.Builder
	for i, h := range hits {
		fmt.Fprintf(&b, "【摘录%d】%s\n\n", i+1, h.Text)
	}
	prompt := fmt.Sprintf("基于以下资料回答：\n%s\n问题：%s\n请用中文给出简明、可信的答案。若资料不足，请明确说明。", b.String(), q)

	text, err := t.gen.Chat(ctx, []llm.Message{
		{Role: "system", Content: "你是一个中文智能助手，请用简洁中文回答。"},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		t.logger.Warn("kb answer generation failed", "error", err)
		return fmt.Sprintf("(生成失败，仅返回召回片段) %v", err)
	}
	return strings.TrimSpace(text)
}
