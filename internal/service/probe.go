package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/queryhub/queryhub/internal/adapter/kbindex"
	otelx "github.com/queryhub/queryhub/internal/adapter/otel"
	"github.com/queryhub/queryhub/internal/config"
	"github.com/queryhub/queryhub/internal/domain"
	"github.com/queryhub/queryhub/internal/port/retrieval"
)

// probeEntry is the cached in-memory index for one knowledge base, together
// with the file mtimes it was loaded from.
type probeEntry struct {
	kbID   string
	index  *kbindex.Index
	metaMt time.Time
	vecMt  time.Time
}

// ProbeCache answers "does the knowledge base know about this query" cheaply
// during routing. It keeps one loaded index in memory and reloads it only
// when the on-disk files change. All failures degrade to (false, 0) so a
// broken index never blocks routing.
type ProbeCache struct {
	root     string
	kbID     string
	embedder retrieval.Embedder
	metrics  *otelx.Metrics
	logger   *slog.Logger

	mu    sync.Mutex
	entry *probeEntry
	group singleflight.Group
}

// NewProbeCache creates a probe cache over the configured knowledge base root.
func NewProbeCache(cfg config.KB, embedder retrieval.Embedder, logger *slog.Logger) *ProbeCache {
	return &ProbeCache{
		root:     cfg.Root,
		kbID:     cfg.RouteKBID,
		embedder: embedder,
		logger:   logger,
	}
}

// SetMetrics attaches metric instruments; nil disables instrumentation.
func (p *ProbeCache) SetMetrics(m *otelx.Metrics) {
	p.metrics = m
}

// Probe reports whether the knowledge base is available and the best
// similarity score for the query. kbID falls back to the configured route
// knowledge base when empty.
func (p *ProbeCache) Probe(ctx context.Context, q, kbID string) (bool, float64) {
	if kbID == "" {
		kbID = p.kbID
	}
	metaMt, vecMt := kbindex.ModTimes(p.root, kbID)
	if metaMt.IsZero() || vecMt.IsZero() {
		return false, 0
	}

	ix, err := p.index(kbID, metaMt, vecMt)
	if err != nil {
		p.logger.Warn("kb probe load failed", "kb_id", kbID, "error", err)
		return false, 0
	}

	hits, err := ix.Query(ctx, q, 1)
	if err != nil {
		p.logger.Warn("kb probe query failed", "kb_id", kbID, "error", err)
		return false, 0
	}
	if len(hits) == 0 {
		return true, 0
	}
	if p.metrics != nil {
		p.metrics.ProbeTopScore.Record(ctx, hits[0].Score)
	}
	return true, hits[0].Score
}

// index returns the cached index, reloading it when the knowledge base or
// the file mtimes differ from what is cached. Concurrent reloads of the
// same knowledge base are collapsed into one.
func (p *ProbeCache) index(kbID string, metaMt, vecMt time.Time) (*kbindex.Index, error) {
	p.mu.Lock()
	e := p.entry
	p.mu.Unlock()

	if e != nil && e.kbID == kbID && e.metaMt.Equal(metaMt) && e.vecMt.Equal(vecMt) {
		return e.index, nil
	}

	v, err, _ := p.group.Do(kbID, func() (any, error) {
		ix, err := kbindex.Load(p.root, kbID, p.embedder)
		if err != nil {
			return nil, err
		}
		entry := &probeEntry{kbID: kbID, index: ix, metaMt: metaMt, vecMt: vecMt}
		p.mu.Lock()
		p.entry = entry
		p.mu.Unlock()
		return ix, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*kbindex.Index), nil
}

// Index exposes the loaded index for the given knowledge base, loading it if
// needed. Used by the knowledge tool so probing and answering share one copy.
func (p *ProbeCache) Index(kbID string) (*kbindex.Index, error) {
	if kbID == "" {
		kbID = p.kbID
	}
	metaMt, vecMt := kbindex.ModTimes(p.root, kbID)
	if metaMt.IsZero() || vecMt.IsZero() {
		return nil, domain.ErrIndexNotReady
	}
	return p.index(kbID, metaMt, vecMt)
}
