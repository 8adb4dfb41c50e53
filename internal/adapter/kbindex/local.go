//go:build fastembed

package kbindex

import (
	"context"
	"fmt"
	"runtime"

	fastembed "github.com/anush008/fastembed-go"
)

// LocalEmbedder embeds text on-device with an ONNX model, so a knowledge
// base can be built and queried without the remote embeddings API.
type LocalEmbedder struct {
	model *fastembed.FlagEmbedding
	batch int
}

// NewLocalEmbedder loads the default ONNX embedding model, caching weights
// under cacheDir.
func NewLocalEmbedder(cacheDir string) (*LocalEmbedder, error) {
	model, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:    fastembed.BGESmallENV15,
		CacheDir: cacheDir,
	})
	if err != nil {
		return nil, fmt.Errorf("load local embedding model: %w", err)
	}
	batch := 64
	if cap := 4 * runtime.GOMAXPROCS(0); batch > cap {
		batch = cap
	}
	return &LocalEmbedder{model: model, batch: batch}, nil
}

// Embed implements retrieval.Embedder.
func (e *LocalEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out, err := e.model.PassageEmbed(texts, e.batch)
	if err != nil {
		return nil, fmt.Errorf("local embed: %w", err)
	}
	return out, nil
}

// Close releases the ONNX session.
func (e *LocalEmbedder) Close() error {
	if e.model != nil {
		e.model.Destroy()
	}
	return nil
}
