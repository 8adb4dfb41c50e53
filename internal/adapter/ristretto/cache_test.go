package ristretto

import (
	"testing"
	"time"

	"github.com/queryhub/queryhub/internal/domain/decision"
	"github.com/queryhub/queryhub/internal/port/suggest"
)

func TestPutGet(t *testing.T) {
	sc, err := New(1<<20, time.Minute)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer sc.Close()

	s := &suggest.Suggestion{Mode: suggest.ModeSingle, Target: decision.ToolSearch, Confidence: 0.8}
	sc.Put("今天上海天气", s)
	sc.Wait()

	got, ok := sc.Get("今天上海天气")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.Target != decision.ToolSearch {
		t.Errorf("target = %s", got.Target)
	}

	// Key is normalized, so surrounding whitespace and case do not matter.
	if _, ok := sc.Get("  今天上海天气  "); !ok {
		t.Error("expected hit for trimmed key")
	}
}

func TestNilNotCached(t *testing.T) {
	sc, err := New(1<<20, time.Minute)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer sc.Close()

	sc.Put("q", nil)
	sc.Wait()
	if _, ok := sc.Get("q"); ok {
		t.Fatal("nil suggestion must not be cached")
	}
}
