package memstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/novamind/engram/core"
	"github.com/novamind/engram/memory"
	"github.com/novamind/engram/memory/embedder/mock"
	"github.com/novamind/engram/memory/store/memstore"
)

func factFor(subject, content string, t core.FactType) *core.Fact {
	return core.NewFact(t, content, &core.ConversationTurn{
		SubjectID: subject,
		SessionID: "session1",
		Timestamp: time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC),
	})
}

func TestUpsert_IdempotentOnSubjectAndContent(t *testing.T) {
	store := memstore.New(mock.New(64))
	ctx := context.Background()

	a := factFor("alex_123", "The user's favorite color is blue.", core.FactTypePreference)
	b := factFor("alex_123", "The user's favorite color is blue.", core.FactTypePreference)

	keyA, err := store.Upsert(ctx, a)
	if err != nil {
		t.Fatal(err)
	}
	keyB, err := store.Upsert(ctx, b)
	if err != nil {
		t.Fatal(err)
	}
	if keyA != keyB {
		t.Errorf("second upsert returned new key %s, want %s", keyB, keyA)
	}
	if store.Len() != 1 {
		t.Errorf("store holds %d facts, want 1", store.Len())
	}

	facts, err := store.Query(ctx, "favorite color", memory.QueryFilters{SubjectID: "alex_123"}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(facts) != 1 {
		t.Errorf("query returned %d facts, want 1 distinct", len(facts))
	}
}

func TestQuery_ExactContentRanksFirst(t *testing.T) {
	store := memstore.New(mock.New(64))
	ctx := context.Background()

	target := "The user's favorite color is blue."
	for _, content := range []string{
		target,
		"The user lives in Lisbon.",
		"The user and the agent agreed to book the flight first.",
	} {
		if _, err := store.Upsert(ctx, factFor("alex_123", content, core.FactTypeUserInfo)); err != nil {
			t.Fatal(err)
		}
	}

	facts, err := store.Query(ctx, target, memory.QueryFilters{}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(facts) != 3 {
		t.Fatalf("got %d facts, want 3", len(facts))
	}
	if facts[0].Fact.Content != target {
		t.Errorf("top result = %q, want the exact match", facts[0].Fact.Content)
	}
	if facts[0].Score < facts[1].Score {
		t.Error("results not in descending score order")
	}
}

func TestQuery_SubjectIsolation(t *testing.T) {
	store := memstore.New(mock.New(64))
	ctx := context.Background()

	store.Upsert(ctx, factFor("alex_123", "The user's favorite color is blue.", core.FactTypePreference))
	store.Upsert(ctx, factFor("sam_456", "The user's favorite color is green.", core.FactTypePreference))

	facts, err := store.Query(ctx, "favorite color", memory.QueryFilters{SubjectID: "alex_123"}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(facts) != 1 {
		t.Fatalf("got %d facts, want 1", len(facts))
	}
	if facts[0].Fact.SubjectID != "alex_123" {
		t.Errorf("leaked fact for subject %s", facts[0].Fact.SubjectID)
	}
}

func TestQuery_TypeFilter(t *testing.T) {
	store := memstore.New(mock.New(64))
	ctx := context.Background()

	store.Upsert(ctx, factFor("alex_123", "The user's favorite color is blue.", core.FactTypePreference))
	store.Upsert(ctx, factFor("alex_123", "The user lives in Lisbon.", core.FactTypeUserInfo))

	facts, err := store.Query(ctx, "anything", memory.QueryFilters{
		SubjectID: "alex_123",
		FactTypes: []core.FactType{core.FactTypeUserInfo},
	}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(facts) != 1 || facts[0].Fact.Type != core.FactTypeUserInfo {
		t.Errorf("type filter not applied: %+v", facts)
	}
}

func TestQuery_ExcludesExpired(t *testing.T) {
	store := memstore.New(mock.New(64))
	ctx := context.Background()

	expired := factFor("alex_123", "The user's trial ends this month.", core.FactTypeUserInfo)
	expired.ExpiresAt = time.Now().Add(-time.Hour)
	store.Upsert(ctx, expired)
	store.Upsert(ctx, factFor("alex_123", "The user lives in Lisbon.", core.FactTypeUserInfo))

	facts, err := store.Query(ctx, "anything", memory.QueryFilters{SubjectID: "alex_123"}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(facts) != 1 {
		t.Fatalf("got %d facts, want 1", len(facts))
	}
	if facts[0].Fact.Content != "The user lives in Lisbon." {
		t.Errorf("expired fact leaked: %q", facts[0].Fact.Content)
	}
}

// Equal-relevance contradictions resolve newest-first, so the latest
// version of a fact wins at read time.
func TestQuery_LatestWinsOnEqualScore(t *testing.T) {
	store := memstore.New(mock.New(64))
	ctx := context.Background()

	content := "The user's favorite color is blue."
	older := factFor("alex_123", content, core.FactTypePreference)
	newer := factFor("sam_456", content, core.FactTypePreference)
	newer.CreatedAt = older.CreatedAt.Add(time.Hour)

	store.Upsert(ctx, older)
	store.Upsert(ctx, newer)

	facts, err := store.Query(ctx, content, memory.QueryFilters{}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(facts) != 2 {
		t.Fatalf("got %d facts, want 2", len(facts))
	}
	if !facts[0].Fact.CreatedAt.After(facts[1].Fact.CreatedAt) {
		t.Error("equal-score results must order newest first")
	}
}

func TestStore_CancelledContext(t *testing.T) {
	store := memstore.New(mock.New(64))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.Upsert(ctx, factFor("alex_123", "The user lives in Lisbon.", core.FactTypeUserInfo)); !errors.Is(err, memory.ErrStoreUnavailable) {
		t.Errorf("upsert err = %v, want ErrStoreUnavailable", err)
	}
	if _, err := store.Query(ctx, "anything", memory.QueryFilters{}, 10); !errors.Is(err, memory.ErrStoreUnavailable) {
		t.Errorf("query err = %v, want ErrStoreUnavailable", err)
	}
}
