package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/queryhub/queryhub/internal/config"
	"github.com/queryhub/queryhub/internal/resilience"
)

func newChatServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		resp := map[string]any{
			"choices": []map[string]any{{
				"message": map[string]string{"role": "assistant", "content": content},
			}},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp) //nolint:errcheck // test code
	}))
}

func testConfig(baseURL string) config.LLM {
	return config.LLM{
		BaseURL:        baseURL,
		APIKey:         "test-key",
		Model:          "test-model",
		EmbeddingModel: "test-embed",
	}
}

func TestChat(t *testing.T) {
	srv := newChatServer(t, "pong")
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	got, err := c.Chat(context.Background(), []Message{{Role: "user", Content: "ping"}})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got != "pong" {
		t.Errorf("Chat = %q, want pong", got)
	}
}

func TestChatHonorsConfiguredTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	defer close(release)

	cfg := testConfig(srv.URL)
	cfg.Timeout = 50 * time.Millisecond
	c := NewClient(cfg)

	start := time.Now()
	_, err := c.Chat(context.Background(), []Message{{Role: "user", Content: "ping"}})
	if err == nil {
		t.Fatal("Chat succeeded against a stalled upstream, want timeout error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Chat took %v, want the 50ms client timeout to cut it off", elapsed)
	}
}

func TestChatNotConfigured(t *testing.T) {
	c := NewClient(config.LLM{Model: "m"})
	_, err := c.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}})
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
}

func TestEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			http.NotFound(w, r)
			return
		}
		resp := map[string]any{
			"data": []map[string]any{
				{"embedding": []float32{0.1, 0.2}, "index": 0},
				{"embedding": []float32{0.3, 0.4}, "index": 1},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp) //nolint:errcheck // test code
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	vecs, err := c.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 2 || len(vecs[0]) != 2 {
		t.Errorf("unexpected vectors: %v", vecs)
	}
}

func TestBreakerRejectsAfterRepeatedFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	c.SetBreaker(resilience.NewBreaker(2, 0))

	for range 2 {
		_, _ = c.Chat(context.Background(), []Message{{Role: "user", Content: "x"}})
	}
	// The third call may be rejected without reaching the server; either way
	// it must fail rather than hang.
	if _, err := c.Chat(context.Background(), []Message{{Role: "user", Content: "x"}}); err == nil {
		t.Error("expected error after repeated upstream failures")
	}
}
