package service

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/queryhub/queryhub/internal/adapter/kbindex"
	"github.com/queryhub/queryhub/internal/config"
	"github.com/queryhub/queryhub/internal/port/retrieval"
)

// chunkLimit is the approximate chunk size in runes.
const chunkLimit = 400

var whitespaceRun = regexp.MustCompile(`\s+`)

// sentence-final punctuation that ends a chunk segment
var sentenceEnd = map[rune]bool{
	'。': true, '！': true, '？': true, '!': true, '?': true, '；': true, ';': true,
}

// IngestService rebuilds knowledge base indexes from raw documents. Plain
// text and markdown files under <root>/<kbID>/raw are chunked by sentence
// and embedded.
type IngestService struct {
	root     string
	embedder retrieval.Embedder
	logger   *slog.Logger
}

// NewIngestService creates an ingest service over the knowledge base root.
func NewIngestService(cfg config.KB, embedder retrieval.Embedder, logger *slog.Logger) *IngestService {
	return &IngestService{root: cfg.Root, embedder: embedder, logger: logger}
}

// RebuildResult reports the outcome of one index rebuild.
type RebuildResult struct {
	KBID     string `json:"kb_id"`
	Built    bool   `json:"built"`
	Chunks   int    `json:"chunks,omitempty"`
	IndexDir string `json:"index_dir,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Status describes the current state of a knowledge base.
type Status struct {
	KBID        string `json:"kb_id"`
	RawDir      string `json:"raw_dir"`
	IndexDir    string `json:"index_dir"`
	RawExists   bool   `json:"raw_exists"`
	IndexExists bool   `json:"index_exists"`
	Files       int    `json:"files"`
	Chunks      int    `json:"chunks"`
	Sources     int    `json:"sources"`
	LastBuilt   string `json:"last_built,omitempty"`
}

func (s *IngestService) rawDir(kbID string) string {
	return filepath.Join(s.root, kbID, "raw")
}

// Rebuild walks the raw directory, chunks every supported file and writes a
// fresh index. Failures come back in the result, not as Go errors, so the
// HTTP layer can return them as a normal JSON body.
func (s *IngestService) Rebuild(ctx context.Context, kbID string) RebuildResult {
	rawDir := s.rawDir(kbID)
	metaPath, _ := kbindex.Paths(s.root, kbID)
	indexDir := filepath.Dir(metaPath)

	if _, err := os.Stat(rawDir); err != nil {
		return RebuildResult{KBID: kbID, Built: false, Error: fmt.Sprintf("raw dir not found: %s", rawDir)}
	}

	records, err := s.collect(rawDir)
	if err != nil {
		return RebuildResult{KBID: kbID, Built: false, Error: err.Error()}
	}
	if len(records) == 0 {
		return RebuildResult{KBID: kbID, Built: false, Error: "no chunks in raw dir"}
	}

	if err := kbindex.Build(ctx, s.root, kbID, records, s.embedder); err != nil {
		s.logger.Error("index rebuild failed", "kb_id", kbID, "error", err)
		return RebuildResult{KBID: kbID, Built: false, Error: fmt.Sprintf("index build failed: %v", err), IndexDir: indexDir}
	}

	s.logger.Info("index rebuilt", "kb_id", kbID, "chunks", len(records))
	return RebuildResult{KBID: kbID, Built: true, Chunks: len(records), IndexDir: indexDir}
}

// collect loads and chunks every .txt and .md file under dir.
func (s *IngestService) collect(dir string) ([]kbindex.Record, error) {
	var records []kbindex.Record
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".txt" && ext != ".md" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		typ := strings.TrimPrefix(ext, ".")
		for i, chunk := range ChunkText(string(data), chunkLimit) {
			records = append(records, kbindex.Record{
				Text:   chunk,
				Source: path,
				Type:   typ,
				Chunk:  i,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Status reports whether the knowledge base has raw files and a built index,
// with chunk and source counts taken from the meta file.
func (s *IngestService) Status(kbID string) Status {
	rawDir := s.rawDir(kbID)
	metaPath, vecPath := kbindex.Paths(s.root, kbID)

	st := Status{
		KBID:     kbID,
		RawDir:   rawDir,
		IndexDir: filepath.Dir(metaPath),
	}
	if _, err := os.Stat(rawDir); err == nil {
		st.RawExists = true
		_ = filepath.WalkDir(rawDir, func(path string, d fs.DirEntry, err error) error {
			if err == nil && !d.IsDir() {
				st.Files++
			}
			return nil
		})
	}

	metaInfo, metaErr := os.Stat(metaPath)
	_, vecErr := os.Stat(vecPath)
	st.IndexExists = metaErr == nil && vecErr == nil
	if metaErr != nil {
		return st
	}

	sources := map[string]struct{}{}
	if f, err := os.Open(metaPath); err == nil {
		sc := bufio.NewScanner(f)
		sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for sc.Scan() {
			if len(sc.Bytes()) == 0 {
				continue
			}
			st.Chunks++
			var r kbindex.Record
			if json.Unmarshal(sc.Bytes(), &r) == nil && r.Source != "" {
				sources[r.Source] = struct{}{}
			}
		}
		_ = f.Close()
	}
	st.Sources = len(sources)
	st.LastBuilt = metaInfo.ModTime().Format(time.DateTime)
	return st
}

// ChunkText splits text into sentence-aligned chunks of at most maxLen
// runes. Whitespace runs collapse to single spaces first. A single sentence
// longer than maxLen becomes its own chunk.
func ChunkText(text string, maxLen int) []string {
	text = strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
	if text == "" {
		return nil
	}

	var sentences []string
	var cur strings.Builder
	for _, r := range text {
		cur.WriteRune(r)
		if sentenceEnd[r] {
			sentences = append(sentences, cur.String())
			cur.Reset()
		}
	}
	if cur.Len() > 0 {
		sentences = append(sentences, cur.String())
	}

	var out []string
	var buf strings.Builder
	bufRunes := 0
	for _, sent := range sentences {
		n := len([]rune(sent))
		if bufRunes+n <= maxLen {
			buf.WriteString(sent)
			bufRunes += n
			continue
		}
		if buf.Len() > 0 {
			out = append(out, strings.TrimSpace(buf.String()))
			buf.Reset()
		}
		buf.WriteString(sent)
		bufRunes = n
	}
	if buf.Len() > 0 {
		out = append(out, strings.TrimSpace(buf.String()))
	}
	return out
}
