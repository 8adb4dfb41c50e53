package tool

import (
	"context"
	"testing"

	"github.com/queryhub/queryhub/internal/domain/decision"
)

type stubHandler struct {
	id decision.ToolID
}

func (s *stubHandler) ID() decision.ToolID { return s.id }

func (s *stubHandler) Handle(_ context.Context, req Request) Result {
	return Result{Feature: s.id, Text: "handled " + req.Query, Items: []Item{}}
}

func TestRegistryDispatch(t *testing.T) {
	reg, err := NewRegistry(&stubHandler{id: decision.ToolSearch}, &stubHandler{id: decision.ToolResponder})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	res := reg.Dispatch(context.Background(), decision.ToolSearch, Request{Query: "hi"})
	if res.Feature != decision.ToolSearch || res.Text != "handled hi" {
		t.Errorf("unexpected result: %+v", res)
	}

	res = reg.Dispatch(context.Background(), decision.ToolCompute, Request{Query: "hi"})
	if res.Error == "" {
		t.Error("expected error result for unregistered tool")
	}
	if res.Items == nil || len(res.Items) != 0 {
		t.Errorf("unknown tool result must carry empty items, got %v", res.Items)
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(&stubHandler{id: decision.ToolSearch}, &stubHandler{id: decision.ToolSearch})
	if err == nil {
		t.Error("expected error for duplicate registration")
	}
}

func TestRegistryRejectsUnknownID(t *testing.T) {
	_, err := NewRegistry(&stubHandler{id: "bogus"})
	if err == nil {
		t.Error("expected error for unknown tool id")
	}
}
