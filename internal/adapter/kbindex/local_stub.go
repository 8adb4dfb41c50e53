//go:build !fastembed

package kbindex

import (
	"context"
	"fmt"
)

// LocalEmbedder is unavailable in this build.
type LocalEmbedder struct{}

func NewLocalEmbedder(string) (*LocalEmbedder, error) {
	return nil, fmt.Errorf("local embedding not included; rebuild with -tags fastembed")
}

func (*LocalEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return nil, fmt.Errorf("local embedding not included; rebuild with -tags fastembed")
}

func (*LocalEmbedder) Close() error { return nil }
