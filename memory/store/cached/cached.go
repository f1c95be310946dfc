// Package cached wraps any memory.Store with a ristretto read-through
// cache for query results. Recall queries repeat heavily within a
// session ("what's my..." variants), and the underlying store round-trip
// dominates recall latency.
package cached

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/dgraph-io/ristretto"

	"github.com/novamind/engram/core"
	"github.com/novamind/engram/memory"
)

// CachedStore is a read-through cache over an inner Store. Upserts pass
// through and drop the whole cache: recall correctness beats cache
// warmth, and upserts are rare next to queries.
type CachedStore struct {
	inner memory.Store
	cache *ristretto.Cache
}

// New wraps inner with a cache bounded to maxEntries query results.
func New(inner memory.Store, maxEntries int64) (*CachedStore, error) {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	// Entries are charged a unit cost, so MaxCost counts entries.
	// Ristretto's internal per-entry overhead must not count against it
	// or small caches admit nothing.
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        maxEntries * 10,
		MaxCost:            maxEntries,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}
	return &CachedStore{inner: inner, cache: cache}, nil
}

// Upsert passes through and invalidates all cached query results.
func (s *CachedStore) Upsert(ctx context.Context, fact *core.Fact) (memory.StoreKey, error) {
	key, err := s.inner.Upsert(ctx, fact)
	if err != nil {
		return key, err
	}
	s.cache.Clear()
	return key, nil
}

// Query serves repeated queries from cache; misses go to the inner store.
func (s *CachedStore) Query(ctx context.Context, text string, filters memory.QueryFilters, topK int) ([]memory.ScoredFact, error) {
	key := queryKey(text, filters, topK)
	if v, ok := s.cache.Get(key); ok {
		if facts, ok := v.([]memory.ScoredFact); ok {
			log.Printf("[CACHE] hit for query %q", text)
			return facts, nil
		}
	}

	facts, err := s.inner.Query(ctx, text, filters, topK)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, facts, 1)
	return facts, nil
}

// Wait blocks until buffered cache admissions are applied. Ristretto
// applies Sets asynchronously; callers that need read-your-write cache
// behavior (tests, mostly) call this between Set and Get.
func (s *CachedStore) Wait() {
	s.cache.Wait()
}

// Close releases the cache and the inner store.
func (s *CachedStore) Close() error {
	s.cache.Close()
	return s.inner.Close()
}

func queryKey(text string, filters memory.QueryFilters, topK int) string {
	types := make([]string, 0, len(filters.FactTypes))
	for _, t := range filters.FactTypes {
		types = append(types, string(t))
	}
	return fmt.Sprintf("%s|%s|%s|%s|%d",
		text, filters.SubjectID, filters.SessionID, strings.Join(types, ","), topK)
}
