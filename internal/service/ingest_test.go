package service

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/queryhub/queryhub/internal/config"
)

func TestChunkText(t *testing.T) {
	chunks := ChunkText("第一句。第二句！第三句？", 400)
	if len(chunks) != 1 {
		t.Fatalf("short text should stay one chunk, got %d", len(chunks))
	}

	long := strings.Repeat("这是一个比较长的句子。", 100)
	chunks = ChunkText(long, 400)
	if len(chunks) < 2 {
		t.Fatalf("long text should split, got %d chunks", len(chunks))
	}
	for i, c := range chunks {
		if n := len([]rune(c)); n > 400 {
			t.Errorf("chunk %d has %d runes", i, n)
		}
		if !strings.HasSuffix(c, "。") {
			t.Errorf("chunk %d does not end on a sentence boundary", i)
		}
	}

	if got := ChunkText("   \n\t  ", 400); got != nil {
		t.Errorf("whitespace-only input produced %v", got)
	}

	// A single oversized sentence still becomes its own chunk.
	huge := strings.Repeat("字", 900) + "。"
	chunks = ChunkText(huge, 400)
	if len(chunks) != 1 {
		t.Errorf("oversized sentence split into %d chunks", len(chunks))
	}
}

func TestRebuildAndStatus(t *testing.T) {
	root := t.TempDir()
	rawDir := filepath.Join(root, "default", "raw")
	if err := os.MkdirAll(rawDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(rawDir, "hr.txt"), []byte("报销流程说明。休假制度。"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(rawDir, "notes.md"), []byte("# 会议纪要\n项目进展正常。"), 0o644); err != nil {
		t.Fatal(err)
	}
	// Unsupported extensions are ignored.
	if err := os.WriteFile(filepath.Join(rawDir, "photo.png"), []byte{0x89, 0x50}, 0o644); err != nil {
		t.Fatal(err)
	}

	svc := NewIngestService(config.KB{Root: root, RouteKBID: "default"}, &countingEmbedder{}, slog.Default())

	res := svc.Rebuild(context.Background(), "default")
	if !res.Built {
		t.Fatalf("rebuild failed: %s", res.Error)
	}
	if res.Chunks == 0 {
		t.Fatal("no chunks indexed")
	}

	st := svc.Status("default")
	if !st.RawExists || !st.IndexExists {
		t.Fatalf("status = %+v", st)
	}
	if st.Files != 3 {
		t.Errorf("files = %d, want 3", st.Files)
	}
	if st.Chunks != res.Chunks {
		t.Errorf("status chunks = %d, rebuild reported %d", st.Chunks, res.Chunks)
	}
	if st.Sources != 2 {
		t.Errorf("sources = %d, want 2", st.Sources)
	}
	if st.LastBuilt == "" {
		t.Error("last_built missing after build")
	}
}

func TestRebuildMissingRawDir(t *testing.T) {
	svc := NewIngestService(config.KB{Root: t.TempDir()}, &countingEmbedder{}, slog.Default())
	res := svc.Rebuild(context.Background(), "absent")
	if res.Built || res.Error == "" {
		t.Fatalf("result = %+v, want an error", res)
	}
}

func TestRebuildEmptyRawDir(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "empty", "raw"), 0o755); err != nil {
		t.Fatal(err)
	}
	svc := NewIngestService(config.KB{Root: root}, &countingEmbedder{}, slog.Default())
	res := svc.Rebuild(context.Background(), "empty")
	if res.Built || res.Error != "no chunks in raw dir" {
		t.Fatalf("result = %+v", res)
	}
}
