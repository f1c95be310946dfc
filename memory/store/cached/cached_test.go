package cached_test

import (
	"context"
	"testing"
	"time"

	"github.com/novamind/engram/core"
	"github.com/novamind/engram/memory"
	"github.com/novamind/engram/memory/store/cached"
)

// countingStore records how many queries reach the inner store.
type countingStore struct {
	queries int
	upserts int
}

func (s *countingStore) Upsert(ctx context.Context, fact *core.Fact) (memory.StoreKey, error) {
	s.upserts++
	return memory.StoreKey(fact.ID), nil
}

func (s *countingStore) Query(ctx context.Context, text string, filters memory.QueryFilters, topK int) ([]memory.ScoredFact, error) {
	s.queries++
	fact := core.NewFact(core.FactTypePreference, "The user's favorite color is blue.", &core.ConversationTurn{
		SubjectID: filters.SubjectID,
		Timestamp: time.Now(),
	})
	return []memory.ScoredFact{{Fact: fact, Score: 0.95}}, nil
}

func (s *countingStore) Close() error { return nil }

func TestCachedStore_RepeatedQueryServedFromCache(t *testing.T) {
	inner := &countingStore{}
	store, err := cached.New(inner, 16)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()
	filters := memory.QueryFilters{SubjectID: "alex_123"}

	first, err := store.Query(ctx, "What's my favorite color?", filters, 10)
	if err != nil {
		t.Fatal(err)
	}
	store.Wait()

	second, err := store.Query(ctx, "What's my favorite color?", filters, 10)
	if err != nil {
		t.Fatal(err)
	}
	if inner.queries != 1 {
		t.Errorf("inner store queried %d times, want 1", inner.queries)
	}
	if len(first) != len(second) || first[0].Fact.Content != second[0].Fact.Content {
		t.Error("cached result differs from original")
	}
}

func TestCachedStore_DistinctQueriesMiss(t *testing.T) {
	inner := &countingStore{}
	store, err := cached.New(inner, 16)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()

	store.Query(ctx, "What's my favorite color?", memory.QueryFilters{SubjectID: "alex_123"}, 10)
	store.Wait()
	store.Query(ctx, "What's my favorite color?", memory.QueryFilters{SubjectID: "sam_456"}, 10)
	store.Wait()
	store.Query(ctx, "What's my favorite color?", memory.QueryFilters{SubjectID: "alex_123"}, 5)

	if inner.queries != 3 {
		t.Errorf("inner store queried %d times, want 3 (different cache keys)", inner.queries)
	}
}

// A cache sized to a handful of entries must still admit them: the cost
// accounting counts entries, not entries plus bookkeeping overhead.
func TestCachedStore_TinyCapacityStillAdmits(t *testing.T) {
	inner := &countingStore{}
	store, err := cached.New(inner, 1)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()
	filters := memory.QueryFilters{SubjectID: "alex_123"}

	if _, err := store.Query(ctx, "What's my favorite color?", filters, 10); err != nil {
		t.Fatal(err)
	}
	store.Wait()
	if _, err := store.Query(ctx, "What's my favorite color?", filters, 10); err != nil {
		t.Fatal(err)
	}
	if inner.queries != 1 {
		t.Errorf("inner store queried %d times, want 1: entry was never admitted", inner.queries)
	}
}

// An upsert makes any previously cached result stale, so it drops the
// whole cache.
func TestCachedStore_UpsertInvalidates(t *testing.T) {
	inner := &countingStore{}
	store, err := cached.New(inner, 16)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()
	filters := memory.QueryFilters{SubjectID: "alex_123"}

	store.Query(ctx, "What's my favorite color?", filters, 10)
	store.Wait()

	fact := core.NewFact(core.FactTypePreference, "The user's favorite color is green.", &core.ConversationTurn{
		SubjectID: "alex_123",
		Timestamp: time.Now(),
	})
	if _, err := store.Upsert(ctx, fact); err != nil {
		t.Fatal(err)
	}
	if inner.upserts != 1 {
		t.Errorf("upsert did not pass through: %d", inner.upserts)
	}

	store.Query(ctx, "What's my favorite color?", filters, 10)
	if inner.queries != 2 {
		t.Errorf("inner store queried %d times, want 2 after invalidation", inner.queries)
	}
}
