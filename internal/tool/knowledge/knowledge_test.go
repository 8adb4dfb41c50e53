package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/queryhub/queryhub/internal/adapter/kbindex"
	"github.com/queryhub/queryhub/internal/adapter/llm"
	"github.com/queryhub/queryhub/internal/config"
	"github.com/queryhub/queryhub/internal/port/tool"
)

type fixedEmbedder struct{}

func (fixedEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, 4)
		for _, r := range t {
			v[int(r)%4]++
		}
		out[i] = v
	}
	return out, nil
}

type fakeGen struct {
	reply string
	err   error
	seen  []string
}

func (f *fakeGen) Chat(_ context.Context, msgs []llm.Message) (string, error) {
	f.seen = append(f.seen, msgs[len(msgs)-1].Content)
	return f.reply, f.err
}

type dirProvider struct {
	root string
}

func (p dirProvider) Index(kbID string) (*kbindex.Index, error) {
	return kbindex.Load(p.root, kbID, fixedEmbedder{})
}

func buildIndex(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	records := []kbindex.Record{
		{Text: "差旅报销需在出差结束后七日内提交。", Source: "policy.txt", Type: "txt"},
		{Text: "年假每年十五天。", Source: "policy.txt", Type: "txt", Chunk: 1},
	}
	if err := kbindex.Build(context.Background(), root, "default", records, fixedEmbedder{}); err != nil {
		t.Fatalf("build: %v", err)
	}
	return root
}

func kbCfg() config.KB {
	return config.KB{RouteKBID: "default", TopK: 5}
}

func TestHandleRecallAndGenerate(t *testing.T) {
	root := buildIndex(t)
	gen := &fakeGen{reply: "差旅报销需在七日内提交。"}
	k := New(dirProvider{root}, gen, kbCfg(), slog.Default())

	out := k.Handle(context.Background(), tool.Request{Query: "差旅报销需在出差结束后七日内提交。"})
	if out.Error != "" {
		t.Fatalf("error: %s", out.Error)
	}
	if out.KBID != "default" {
		t.Errorf("kb_id = %s", out.KBID)
	}
	if len(out.Items) == 0 || out.Items[0].Title != "policy.txt" {
		t.Fatalf("items = %+v", out.Items)
	}
	if out.Answer != "差旅报销需在七日内提交。" {
		t.Errorf("answer = %q", out.Answer)
	}
	if len(gen.seen) != 1 || !strings.Contains(gen.seen[0], "【摘录1】") {
		t.Errorf("generation prompt = %v", gen.seen)
	}
}

func TestHandleGenerationDisabled(t *testing.T) {
	root := buildIndex(t)
	gen := &fakeGen{reply: "should not be called"}
	k := New(dirProvider{root}, gen, kbCfg(), slog.Default())

	off := false
	out := k.Handle(context.Background(), tool.Request{Query: "年假多少天", Generate: &off})
	if out.Answer != "" {
		t.Errorf("answer = %q, want generation skipped", out.Answer)
	}
	if len(gen.seen) != 0 {
		t.Error("generator was called despite gen=false")
	}
}

func TestHandleGenerationFailureKeepsHits(t *testing.T) {
	root := buildIndex(t)
	gen := &fakeGen{err: fmt.Errorf("model down")}
	k := New(dirProvider{root}, gen, kbCfg(), slog.Default())

	out := k.Handle(context.Background(), tool.Request{Query: "年假多少天"})
	if out.Error != "" {
		t.Fatalf("generation failure must not fail the tool: %s", out.Error)
	}
	if len(out.Items) == 0 {
		t.Fatal("recalled chunks lost")
	}
	if !strings.HasPrefix(out.Answer, "(生成失败，仅返回召回片段)") {
		t.Errorf("answer = %q", out.Answer)
	}
}

func TestHandleIndexNotReady(t *testing.T) {
	k := New(dirProvider{t.TempDir()}, nil, kbCfg(), slog.Default())
	out := k.Handle(context.Background(), tool.Request{Query: "任何问题"})
	if !strings.HasPrefix(out.Error, "index not ready for kb=default") {
		t.Errorf("error = %q", out.Error)
	}
}

func TestHandleMissingQuery(t *testing.T) {
	k := New(dirProvider{t.TempDir()}, nil, kbCfg(), slog.Default())
	out := k.Handle(context.Background(), tool.Request{})
	if out.Error != "missing q" {
		t.Errorf("error = %q", out.Error)
	}
}
