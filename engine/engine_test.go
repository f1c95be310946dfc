package engine_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/novamind/engram/core"
	"github.com/novamind/engram/engine"
	"github.com/novamind/engram/memory"
	"github.com/novamind/engram/memory/embedder/mock"
	"github.com/novamind/engram/memory/store/memstore"
)

// scriptedPlanner returns canned responses and records the payloads it saw.
type scriptedPlanner struct {
	responses []string
	calls     int
	payloads  []*memory.PromptPayload
	err       error
}

func (p *scriptedPlanner) Plan(ctx context.Context, payload *memory.PromptPayload) (string, error) {
	p.payloads = append(p.payloads, payload)
	if p.err != nil {
		return "", p.err
	}
	resp := "Okay."
	if p.calls < len(p.responses) {
		resp = p.responses[p.calls]
	}
	p.calls++
	return resp, nil
}

func turnAt(seq int, user string) *core.ConversationTurn {
	return &core.ConversationTurn{
		UserUtterance:  user,
		SubjectID:      "alex_123",
		SessionID:      "session1",
		Timestamp:      time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC).Add(time.Duration(seq) * time.Minute),
		SequenceNumber: seq,
	}
}

// A preference stated in one turn is persisted, then recalled and placed
// into the prompt when a later turn asks about it.
func TestEngine_StoreThenRecallAcrossTurns(t *testing.T) {
	store := memstore.New(mock.New(64))
	planner := &scriptedPlanner{responses: []string{"Noted!", "Your favorite color is blue."}}
	eng := engine.NewEngine(planner, store, nil)
	ctx := context.Background()

	turn1 := turnAt(1, "My favorite color is blue.")
	out1, err := eng.Run(ctx, turn1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out1.WriteReason != core.ReasonExplicitPreference {
		t.Fatalf("turn 1 write reason = %s, want %s", out1.WriteReason, core.ReasonExplicitPreference)
	}
	if len(out1.Written) != 1 || out1.Written[0].Content != "The user's favorite color is blue." {
		t.Fatalf("turn 1 wrote %+v", out1.Written)
	}
	if store.Len() != 1 {
		t.Fatalf("store holds %d facts, want 1", store.Len())
	}

	history := []*core.ConversationTurn{turn1.WithAgentResponse(out1.Text)}
	out2, err := eng.Run(ctx, turnAt(2, "What's my favorite color?"), history)
	if err != nil {
		t.Fatal(err)
	}
	if out2.Recalled.Empty() {
		t.Fatal("turn 2 should recall the stored preference")
	}
	payload := planner.payloads[1]
	if !strings.Contains(payload.RecalledBlock, "[PREFERENCE]: The user's favorite color is blue.") {
		t.Errorf("recalled block missing the fact:\n%s", payload.RecalledBlock)
	}
	if out2.Text != "Your favorite color is blue." {
		t.Errorf("turn 2 text = %q", out2.Text)
	}
}

func TestEngine_OrdinaryTurnWritesNothing(t *testing.T) {
	store := memstore.New(mock.New(64))
	eng := engine.NewEngine(&scriptedPlanner{}, store, nil)

	out, err := eng.Run(context.Background(), turnAt(1, "Tell me a joke."), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Written) != 0 || store.Len() != 0 {
		t.Errorf("ordinary turn persisted facts: %+v", out.Written)
	}
}

// slowStore blocks queries until the context is cancelled.
type slowStore struct {
	*memstore.MemStore
}

func (s *slowStore) Query(ctx context.Context, text string, filters memory.QueryFilters, topK int) ([]memory.ScoredFact, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestEngine_SlowRecallDoesNotBlockTurn(t *testing.T) {
	store := &slowStore{memstore.New(mock.New(64))}
	planner := &scriptedPlanner{responses: []string{"I don't have that yet, what is it?"}}
	eng := engine.NewEngine(planner, store, &memory.Config{StoreTimeout: 10 * time.Millisecond})

	out, err := eng.Run(context.Background(), turnAt(1, "What's my favorite color?"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if !out.Recalled.Empty() {
		t.Error("timed-out recall should yield an empty set")
	}
	if planner.calls != 1 {
		t.Error("planner must still run after recall degradation")
	}
	if planner.payloads[0].RecalledBlock != "" {
		t.Errorf("payload carries a block after degraded recall: %q", planner.payloads[0].RecalledBlock)
	}
}

func TestEngine_BudgetExceededPropagates(t *testing.T) {
	eng := engine.NewEngine(&scriptedPlanner{}, memstore.New(mock.New(64)), &memory.Config{PromptBudget: 10})

	_, err := eng.Run(context.Background(), turnAt(1, "This utterance is longer than ten characters."), nil)
	if !errors.Is(err, memory.ErrBudgetExceeded) {
		t.Errorf("err = %v, want ErrBudgetExceeded", err)
	}
}

func TestEngine_PlannerErrorPropagates(t *testing.T) {
	planner := &scriptedPlanner{err: errors.New("api down")}
	eng := engine.NewEngine(planner, memstore.New(mock.New(64)), nil)

	if _, err := eng.Run(context.Background(), turnAt(1, "hello there"), nil); err == nil {
		t.Error("planner failure must propagate")
	}
}

// failingStore rejects upserts until healed.
type failingStore struct {
	*memstore.MemStore
	healed bool
}

func (s *failingStore) Upsert(ctx context.Context, fact *core.Fact) (memory.StoreKey, error) {
	if !s.healed {
		return "", memory.ErrStoreUnavailable
	}
	return s.MemStore.Upsert(ctx, fact)
}

// A failed write is queued and retried on the next turn once the store
// recovers; the failing turn itself still completes.
func TestEngine_FailedWriteRetriesNextTurn(t *testing.T) {
	store := &failingStore{MemStore: memstore.New(mock.New(64))}
	eng := engine.NewEngine(&scriptedPlanner{}, store, nil)
	ctx := context.Background()

	out, err := eng.Run(ctx, turnAt(1, "My favorite color is blue."), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Written) != 0 {
		t.Errorf("failed upsert reported as written: %+v", out.Written)
	}
	if eng.PendingWrites() != 1 {
		t.Fatalf("pending writes = %d, want 1", eng.PendingWrites())
	}

	store.healed = true
	out, err = eng.Run(ctx, turnAt(2, "Tell me a joke."), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Written) != 1 || out.Written[0].Content != "The user's favorite color is blue." {
		t.Errorf("retry did not persist the queued fact: %+v", out.Written)
	}
	if eng.PendingWrites() != 0 {
		t.Errorf("pending writes = %d after retry, want 0", eng.PendingWrites())
	}
	if store.Len() != 1 {
		t.Errorf("store holds %d facts, want 1", store.Len())
	}
}
