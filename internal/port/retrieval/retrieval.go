// Package retrieval defines the retrieval-index and embedding ports.
package retrieval

import "context"

// Hit is one nearest-neighbor match from the index.
type Hit struct {
	Score  float64 `json:"score"`
	Text   string  `json:"text"`
	Source string  `json:"source"`
	Type   string  `json:"type"`
}

// Index is a loaded, queryable knowledge-base index.
type Index interface {
	// Query returns up to topK hits ordered by descending similarity.
	Query(ctx context.Context, text string, topK int) ([]Hit, error)
}

// Prober estimates knowledge-base relevance for routing. ready=false means
// "no usable index", which callers treat the same as "no knowledge base
// configured"; Probe never returns an error.
type Prober interface {
	Probe(ctx context.Context, q, kbID string) (ready bool, score float64)
}

// Embedder turns texts into dense vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
