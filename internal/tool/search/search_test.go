package search

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/queryhub/queryhub/internal/adapter/metaso"
	"github.com/queryhub/queryhub/internal/config"
	"github.com/queryhub/queryhub/internal/port/tool"
)

func newTool(url string) *Tool {
	client := metaso.NewClient(config.Search{
		BaseURL: url, APIKey: "k", Size: 5, Timeout: 2 * time.Second,
	})
	return New(client, slog.Default())
}

func TestHandleDedupsResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{"title": "A", "url": "https://a.example", "snippet": "x"},
				{"title": "A again", "url": "https://a.example", "snippet": "y"},
				{"title": "B", "url": "https://b.example", "snippet": "z"},
			},
		})
	}))
	defer srv.Close()

	out := newTool(srv.URL).Handle(context.Background(), tool.Request{Query: "golang"})
	if out.Error != "" {
		t.Fatalf("error: %s", out.Error)
	}
	if len(out.Items) != 2 {
		t.Fatalf("items = %d, want duplicate URL dropped", len(out.Items))
	}
}

func TestHandleMissingQuery(t *testing.T) {
	out := newTool("http://unused").Handle(context.Background(), tool.Request{})
	if out.Error != "missing q" {
		t.Errorf("error = %q", out.Error)
	}
}

func TestHandleUnsupportedProvider(t *testing.T) {
	out := newTool("http://unused").Handle(context.Background(), tool.Request{
		Query: "q", Slots: map[string]string{"provider": "bing"},
	})
	if out.Error != "unsupported provider: bing" {
		t.Errorf("error = %q", out.Error)
	}
}

func TestHandleProviderErrorPassesThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"errCode": 2005, "errMsg": "invalid key"})
	}))
	defer srv.Close()

	out := newTool(srv.URL).Handle(context.Background(), tool.Request{Query: "q"})
	if out.Error == "" {
		t.Fatal("expected provider error in result")
	}
	if out.Items == nil || len(out.Items) != 0 {
		t.Errorf("items must be empty on error, got %v", out.Items)
	}
}

func TestHandleSlotPassthrough(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(map[string]any{"items": []any{}})
	}))
	defer srv.Close()

	newTool(srv.URL).Handle(context.Background(), tool.Request{
		Query: "q",
		Slots: map[string]string{"scope": "news", "page": "2", "includeSummary": "true"},
	})
	if got["scope"] != "news" {
		t.Errorf("scope = %v", got["scope"])
	}
	if got["page"] != 2.0 {
		t.Errorf("page = %v", got["page"])
	}
	if got["includeSummary"] != true {
		t.Errorf("includeSummary = %v", got["includeSummary"])
	}
}
