// Package metaso provides an HTTP client for the Metaso web search v1 API.
package metaso

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/queryhub/queryhub/internal/config"
	"github.com/queryhub/queryhub/internal/resilience"
)

// ErrNotConfigured indicates the METASO_API_KEY is missing.
var ErrNotConfigured = errors.New("metaso: api key not configured")

const searchPath = "/api/v1/search"

// Item is one normalized search hit.
type Item struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Options are the optional provider knobs a caller may pass through.
type Options struct {
	Scope             string
	Page              int // sent only when > 0
	IncludeSummary    bool
	IncludeRawContent bool
	ConciseSnippet    bool
}

// Client talks to the Metaso search API.
type Client struct {
	baseURL    string
	apiKey     string
	scope      string
	size       int
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewClient creates a Metaso client from the Search config section.
func NewClient(cfg config.Search) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 12 * time.Second
	}
	scope := cfg.Scope
	if scope == "" {
		scope = "webpage"
	}
	size := cfg.Size
	if size == 0 {
		size = 5
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		scope:      scope,
		size:       size,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// Search runs one query and returns at most k normalized items.
func (c *Client) Search(ctx context.Context, q string, k int, opts Options) ([]Item, error) {
	if c.apiKey == "" {
		return nil, ErrNotConfigured
	}
	if k <= 0 {
		k = c.size
	}
	scope := opts.Scope
	if scope == "" {
		scope = c.scope
	}

	payload := map[string]any{
		"q":                 q,
		"scope":             scope,
		"size":              k,
		"includeSummary":    opts.IncludeSummary,
		"includeRawContent": opts.IncludeRawContent,
		"conciseSnippet":    opts.ConciseSnippet,
	}
	if opts.Page > 0 {
		payload["page"] = opts.Page
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	var items []Item
	call := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+searchPath, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("metaso HTTP %d: %s", resp.StatusCode, truncate(string(data), 200))
		}

		var obj any
		if err := json.Unmarshal(data, &obj); err != nil {
			return fmt.Errorf("metaso returned non-JSON: %s", truncate(string(data), 200))
		}

		// Some upstream errors come back with status 200 and a non-zero errCode.
		if m, ok := obj.(map[string]any); ok {
			if code, present := m["errCode"]; present {
				if s := fmt.Sprint(code); s != "" && s != "0" {
					return fmt.Errorf("metaso API error %s: %v", s, m["errMsg"])
				}
			}
		}

		items = normalizeItems(obj)
		if len(items) > k {
			items = items[:k]
		}
		return nil
	}

	if c.breaker != nil {
		err = c.breaker.Execute(call)
	} else {
		err = call()
	}
	if err != nil {
		return nil, err
	}
	return items, nil
}

// normalizeItems digs the result list out of the known container keys and
// maps entries onto title/url/snippet, tolerating the several field spellings
// the API has used.
func normalizeItems(obj any) []Item {
	raw := findList(obj)
	out := make([]Item, 0, len(raw))
	for _, entry := range raw {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		title := firstString(m, "title", "name", "rawTitle", "headline", "pageTitle")
		url := firstString(m, "url", "link", "sourceUrl", "pageUrl", "href")
		snippet := firstString(m, "snippet", "summary", "content", "abstract", "description")
		if title != "" && url != "" {
			out = append(out, Item{Title: title, URL: url, Snippet: snippet})
		}
	}
	return out
}

func findList(node any) []any {
	switch v := node.(type) {
	case []any:
		return v
	case map[string]any:
		for _, key := range []string{"items", "list", "docs", "documents", "webpages"} {
			if lst, ok := v[key].([]any); ok {
				return lst
			}
		}
		for _, key := range []string{"results", "data", "result"} {
			if inner, ok := v[key]; ok {
				if lst := findList(inner); lst != nil {
					return lst
				}
			}
		}
	}
	return nil
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
