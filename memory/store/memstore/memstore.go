// Package memstore is the in-process reference implementation of the
// memory.Store interface, used by tests and local development. It ranks
// by cosine similarity over vectors from an injected embedder and
// deduplicates exactly on (subject_id, content).
package memstore

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/novamind/engram/core"
	"github.com/novamind/engram/memory"
)

type entry struct {
	key       memory.StoreKey
	fact      *core.Fact
	embedding []float32
}

// MemStore keeps every fact in memory. Safe for concurrent use; the
// store is a shared resource across sessions and takes its own locks.
type MemStore struct {
	embedder memory.Embedder

	mu      sync.RWMutex
	entries []*entry
	byDedup map[string]*entry
}

// New creates a store over the given embedder.
func New(embedder memory.Embedder) *MemStore {
	return &MemStore{
		embedder: embedder,
		byDedup:  make(map[string]*entry),
	}
}

// Upsert persists a fact. Re-upserting an identical (subject_id, content)
// pair returns the existing key without storing a second copy.
func (s *MemStore) Upsert(ctx context.Context, fact *core.Fact) (memory.StoreKey, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", memory.ErrStoreUnavailable, err)
	}

	dedupKey := fact.DedupKey()
	s.mu.RLock()
	existing, ok := s.byDedup[dedupKey]
	s.mu.RUnlock()
	if ok {
		log.Printf("[MEMSTORE] dedup hit for subject=%s, returning existing key", fact.SubjectID)
		return existing.key, nil
	}

	embedding, err := s.embedder.Embed(ctx, fact.Content)
	if err != nil {
		return "", fmt.Errorf("embed fact: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Re-check under the write lock.
	if existing, ok := s.byDedup[dedupKey]; ok {
		return existing.key, nil
	}
	e := &entry{
		key:       memory.StoreKey(uuid.New().String()),
		fact:      fact,
		embedding: embedding,
	}
	s.entries = append(s.entries, e)
	s.byDedup[dedupKey] = e
	log.Printf("[MEMSTORE] stored fact type=%s subject=%s", fact.Type, fact.SubjectID)
	return e.key, nil
}

// Query ranks stored facts against the text by cosine similarity.
// Newest-first ordering among equal scores gives latest-wins resolution
// for contradictory facts.
func (s *MemStore) Query(ctx context.Context, text string, filters memory.QueryFilters, topK int) ([]memory.ScoredFact, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", memory.ErrStoreUnavailable, err)
	}
	if topK <= 0 {
		topK = 10
	}

	queryVec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	now := time.Now()
	s.mu.RLock()
	candidates := make([]memory.ScoredFact, 0, len(s.entries))
	for _, e := range s.entries {
		f := e.fact
		if filters.SubjectID != "" && f.SubjectID != filters.SubjectID {
			continue
		}
		if filters.SessionID != "" && f.SessionID != filters.SessionID {
			continue
		}
		if !filters.WantsType(f.Type) || f.Expired(now) {
			continue
		}
		candidates = append(candidates, memory.ScoredFact{
			Fact:  f,
			Score: cosine(queryVec, e.embedding),
		})
	}
	s.mu.RUnlock()

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Fact.CreatedAt.After(candidates[j].Fact.CreatedAt)
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates, nil
}

// Len reports the number of distinct facts held.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close releases nothing; the store lives in memory.
func (s *MemStore) Close() error {
	return nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
