// Package kbindex stores and queries per-knowledge-base vector indexes on
// disk. An index is a pair of files under <root>/<kbID>/index/: meta.jsonl
// with one chunk record per line, and vectors.bin holding the matching
// L2-normalized embedding matrix.
package kbindex

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/queryhub/queryhub/internal/port/retrieval"
)

const (
	metaFile   = "meta.jsonl"
	vectorFile = "vectors.bin"
)

// Record is one indexed chunk.
type Record struct {
	Text   string `json:"text"`
	Source string `json:"source"`
	Type   string `json:"type"`
	Chunk  int    `json:"chunk"`
}

// Paths returns the meta and vector file paths for a knowledge base.
func Paths(root, kbID string) (meta, vectors string) {
	dir := filepath.Join(root, kbID, "index")
	return filepath.Join(dir, metaFile), filepath.Join(dir, vectorFile)
}

// ModTimes reports the current mtimes of the two index files. A zero time
// means the file does not exist.
func ModTimes(root, kbID string) (meta, vectors time.Time) {
	metaPath, vecPath := Paths(root, kbID)
	if fi, err := os.Stat(metaPath); err == nil {
		meta = fi.ModTime()
	}
	if fi, err := os.Stat(vecPath); err == nil {
		vectors = fi.ModTime()
	}
	return meta, vectors
}

// Index is an in-memory view of one knowledge base, queried by exhaustive
// cosine scan. Vectors are normalized at build time so cosine similarity
// reduces to a dot product.
type Index struct {
	records  []Record
	vectors  [][]float32
	dim      int
	embedder retrieval.Embedder
}

// Load reads a knowledge base index from disk.
func Load(root, kbID string, embedder retrieval.Embedder) (*Index, error) {
	metaPath, vecPath := Paths(root, kbID)

	records, err := readMeta(metaPath)
	if err != nil {
		return nil, err
	}
	vectors, dim, err := readVectors(vecPath)
	if err != nil {
		return nil, err
	}
	if len(records) != len(vectors) {
		return nil, fmt.Errorf("kbindex %s: %d records but %d vectors", kbID, len(records), len(vectors))
	}
	return &Index{records: records, vectors: vectors, dim: dim, embedder: embedder}, nil
}

// Build embeds the given records and writes a fresh index, replacing any
// existing files. Writes go through temp files so a crash mid-build never
// leaves a torn index.
func Build(ctx context.Context, root, kbID string, records []Record, embedder retrieval.Embedder) error {
	if len(records) == 0 {
		return fmt.Errorf("kbindex %s: nothing to index", kbID)
	}
	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = r.Text
	}
	vectors, err := embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed %d chunks: %w", len(records), err)
	}
	if len(vectors) != len(records) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(records))
	}
	for i := range vectors {
		normalize(vectors[i])
	}

	metaPath, vecPath := Paths(root, kbID)
	if err := os.MkdirAll(filepath.Dir(metaPath), 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	if err := writeMeta(metaPath, records); err != nil {
		return err
	}
	return writeVectors(vecPath, vectors)
}

// Size reports the number of indexed chunks.
func (ix *Index) Size() int {
	return len(ix.records)
}

// Query embeds the text and returns the topK most similar chunks, best
// first. Scores are cosine similarities in [-1, 1].
func (ix *Index) Query(ctx context.Context, text string, topK int) ([]retrieval.Hit, error) {
	if topK <= 0 {
		topK = 1
	}
	vecs, err := ix.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for one query", len(vecs))
	}
	q := vecs[0]
	normalize(q)

	hits := make([]retrieval.Hit, 0, len(ix.records))
	for i, v := range ix.vectors {
		hits = append(hits, retrieval.Hit{
			Score:  dot(q, v),
			Text:   ix.records[i].Text,
			Source: ix.records[i].Source,
			Type:   ix.records[i].Type,
		})
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].Score > hits[b].Score })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func readMeta(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open meta: %w", err)
	}
	defer func() { _ = f.Close() }()

	var records []Record
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var r Record
		if err := json.Unmarshal(line, &r); err != nil {
			return nil, fmt.Errorf("parse meta line %d: %w", len(records)+1, err)
		}
		records = append(records, r)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read meta: %w", err)
	}
	return records, nil
}

func writeMeta(path string, records []Record) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create meta: %w", err)
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			_ = f.Close()
			return fmt.Errorf("write meta: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush meta: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close meta: %w", err)
	}
	return os.Rename(tmp, path)
}

func readVectors(path string) ([][]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open vectors: %w", err)
	}
	defer func() { _ = f.Close() }()

	r := bufio.NewReader(f)
	var header [2]uint32
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, 0, fmt.Errorf("read vector header: %w", err)
	}
	dim, count := int(header[0]), int(header[1])
	if dim <= 0 || dim > 1<<16 {
		return nil, 0, fmt.Errorf("vector file has bad dimension %d", dim)
	}

	vectors := make([][]float32, count)
	for i := range vectors {
		v := make([]float32, dim)
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return nil, 0, fmt.Errorf("read vector %d: %w", i, err)
		}
		vectors[i] = v
	}
	return vectors, dim, nil
}

func writeVectors(path string, vectors [][]float32) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create vectors: %w", err)
	}
	w := bufio.NewWriter(f)
	header := [2]uint32{uint32(len(vectors[0])), uint32(len(vectors))}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		_ = f.Close()
		return fmt.Errorf("write vector header: %w", err)
	}
	for i, v := range vectors {
		if len(v) != int(header[0]) {
			_ = f.Close()
			return fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), header[0])
		}
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			_ = f.Close()
			return fmt.Errorf("write vector %d: %w", i, err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush vectors: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close vectors: %w", err)
	}
	return os.Rename(tmp, path)
}

func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
