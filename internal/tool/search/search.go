// Package search implements the f1 tool: web search through the Metaso
// provider. The original question is used as-is, results are deduplicated
// and provider errors pass through in the result body.
package search

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/queryhub/queryhub/internal/adapter/metaso"
	"github.com/queryhub/queryhub/internal/domain"
	"github.com/queryhub/queryhub/internal/domain/decision"
	"github.com/queryhub/queryhub/internal/domain/signal"
	"github.com/queryhub/queryhub/internal/port/tool"
)

const defaultK = 5

// Tool performs web searches.
type Tool struct {
	client *metaso.Client
	logger *slog.Logger
}

// New creates the search tool.
func New(client *metaso.Client, logger *slog.Logger) *Tool {
	return &Tool{client: client, logger: logger}
}

// ID implements tool.Handler.
func (t *Tool) ID() decision.ToolID { return decision.ToolSearch }

// Handle runs the search. Only a small set of slot keys pass through to the
// provider; everything else keeps provider defaults.
func (t *Tool) Handle(ctx context.Context, req tool.Request) tool.Result {
	q := strings.TrimSpace(req.Query)
	if q == "" {
		return tool.Result{Feature: t.ID(), Items: []tool.Item{}, Error: domain.ErrMissingQuery.Error()}
	}

	provider := strings.ToLower(req.Slots["provider"])
	if provider == "" {
		provider = signal.SearchProvider
	}
	if provider != signal.SearchProvider {
		return tool.Result{Feature: t.ID(), Items: []tool.Item{}, Error: "unsupported provider: " + provider}
	}

	k := req.K
	if k <= 0 {
		k = defaultK
	}

	items, err := t.client.Search(ctx, q, k, optionsFromSlots(req.Slots))
	if err != nil {
		t.logger.Warn("web search failed", "error", err)
		return tool.Result{Feature: t.ID(), Items: []tool.Item{}, Error: err.Error()}
	}

	return tool.Result{Feature: t.ID(), Items: dedup(items)}
}

// optionsFromSlots maps the passthrough slot keys onto provider options.
func optionsFromSlots(slots map[string]string) metaso.Options {
	var opts metaso.Options
	if v, ok := slots["scope"]; ok {
		opts.Scope = v
	}
	if v, ok := slots["page"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Page = n
		} else {
			opts.Page = 1
		}
	}
	opts.IncludeSummary = slotBool(slots, "includeSummary")
	opts.IncludeRawContent = slotBool(slots, "includeRawContent")
	opts.ConciseSnippet = slotBool(slots, "conciseSnippet")
	return opts
}

func slotBool(slots map[string]string, key string) bool {
	v, ok := slots[key]
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

// dedup drops repeated results, keyed by URL and falling back to title.
func dedup(items []metaso.Item) []tool.Item {
	seen := make(map[string]bool, len(items))
	out := make([]tool.Item, 0, len(items))
	for _, it := range items {
		key := it.URL
		if key == "" {
			key = it.Title
		}
		if key != "" && seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, tool.Item{Title: it.Title, URL: it.URL, Snippet: it.Snippet})
	}
	return out
}
