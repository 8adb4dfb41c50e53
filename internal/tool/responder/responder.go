// Package responder implements the llm tool: direct chat answers for
// conversation, writing and explanation queries that need no external facts.
package responder

import (
	"context"
	"log/slog"
	"strings"

	"github.com/queryhub/queryhub/internal/adapter/llm"
	"github.com/queryhub/queryhub/internal/domain"
	"github.com/queryhub/queryhub/internal/domain/decision"
	"github.com/queryhub/queryhub/internal/port/tool"
)

const defaultSystemPrompt = "你是一个中文智能助手，请用简洁中文回答。"

// Generator produces a chat completion; *llm.Client satisfies it.
type Generator interface {
	Chat(ctx context.Context, messages []llm.Message) (string, error)
}

// Tool answers directly with the model.
type Tool struct {
	gen    Generator
	logger *slog.Logger
}

// New creates the responder tool.
func New(gen Generator, logger *slog.Logger) *Tool {
	return &Tool{gen: gen, logger: logger}
}

// ID implements tool.Handler.
func (t *Tool) ID() decision.ToolID { return decision.ToolResponder }

// Handle sends the question to the model with an optional custom system
// prompt. Model failures come back in the error field with empty items.
func (t *Tool) Handle(ctx context.Context, req tool.Request) tool.Result {
	q := strings.TrimSpace(req.Query)
	if q == "" {
		return tool.Result{Feature: t.ID(), Items: []tool.Item{}, Error: domain.ErrMissingQuery.Error()}
	}

	sysPrompt := req.SystemPrompt
	if sysPrompt == "" {
		sysPrompt = defaultSystemPrompt
	}

	text, err := t.gen.Chat(ctx, []llm.Message{
		{Role: "system", Content: sysPrompt},
		{Role: "user", Content: q},
	})
	if err != nil {
		t.logger.Warn("responder generation failed", "error", err)
		return tool.Result{Feature: t.ID(), Items: []tool.Item{}, Error: err.Error()}
	}
	text = strings.TrimSpace(text)

	return tool.Result{
		Feature: t.ID(),
		Text:    text,
		Items:   []tool.Item{{Title: "LLM Answer", Snippet: text}},
	}
}
