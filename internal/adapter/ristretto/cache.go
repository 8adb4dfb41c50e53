// Package ristretto caches model routing suggestions in process, keyed by
// the normalized query, so repeated questions skip the routing model call.
package ristretto

import (
	"strings"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/queryhub/queryhub/internal/port/suggest"
)

// SuggestionCache is a TTL-bounded in-process cache of routing suggestions.
type SuggestionCache struct {
	c   *ristretto.Cache[string, *suggest.Suggestion]
	ttl time.Duration
}

// New creates a suggestion cache. maxCostBytes bounds the total estimated
// size of cached suggestions.
func New(maxCostBytes int64, ttl time.Duration) (*SuggestionCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, *suggest.Suggestion]{
		NumCounters: maxCostBytes / 100 * 10, // ~10x expected items
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &SuggestionCache{c: c, ttl: ttl}, nil
}

func key(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

// Get returns the cached suggestion for a query, if any.
func (sc *SuggestionCache) Get(query string) (*suggest.Suggestion, bool) {
	return sc.c.Get(key(query))
}

// Put stores a suggestion under the query with the cache TTL. Nil
// suggestions are not cached so a transient model failure can retry.
func (sc *SuggestionCache) Put(query string, s *suggest.Suggestion) {
	if s == nil {
		return
	}
	cost := int64(len(query) + 64)
	for _, seg := range s.Segments {
		cost += int64(len(seg.Query) + len(seg.QueryTemplate) + 32)
	}
	sc.c.SetWithTTL(key(query), s, cost, sc.ttl)
}

// Wait blocks until buffered writes are applied. Used by tests.
func (sc *SuggestionCache) Wait() {
	sc.c.Wait()
}

// Close releases cache resources.
func (sc *SuggestionCache) Close() {
	sc.c.Close()
}
