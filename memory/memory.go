package memory

import (
	"context"

	"github.com/novamind/engram/core"
)

// StoreKey is the opaque physical key a store assigns to a persisted fact.
// Logical identity for dedup purposes is (subject_id, content); the
// physical key is store-specific.
type StoreKey string

// ScoredFact pairs a recalled fact with the store's relevance score.
// The score is a monotonic ranking signal in a store-defined range, never
// a calibrated probability.
type ScoredFact struct {
	Fact  *core.Fact
	Score float64
}

// RecalledMemorySet is the ordered (relevance-descending) result of one
// recall decision, tagged with the query that produced it. It lives for
// the current turn only: the assembler consumes it and it is discarded.
type RecalledMemorySet struct {
	Query string
	Facts []ScoredFact
}

// Empty reports whether recall produced nothing usable.
func (r *RecalledMemorySet) Empty() bool {
	return r == nil || len(r.Facts) == 0
}

// QueryFilters narrows a store query. Zero-valued fields do not filter.
type QueryFilters struct {
	// SubjectID scopes results to one user's facts.
	SubjectID string

	// SessionID optionally scopes results to one session.
	SessionID string

	// FactTypes optionally restricts the categories returned.
	FactTypes []core.FactType
}

// WantsType reports whether the filter admits the given fact type.
func (f QueryFilters) WantsType(t core.FactType) bool {
	if len(f.FactTypes) == 0 {
		return true
	}
	for _, ft := range f.FactTypes {
		if ft == t {
			return true
		}
	}
	return false
}

// Store is the capability boundary to the vector database.
// Implementations: MemStore (in-process reference), ChromemStore
// (embedded chromem-go), CachedStore (ristretto read-through wrapper).
//
// Upsert must be idempotent on identical (subject_id, content) pairs
// within the implementation's dedup window. Callers do not assume
// exact-dedup across windows and must tolerate near-duplicates at read
// time. Both operations honor context cancellation and may fail; the
// decision core degrades rather than propagating store errors.
type Store interface {
	// Upsert persists a fact and returns its physical key.
	Upsert(ctx context.Context, fact *core.Fact) (StoreKey, error)

	// Query runs a similarity search over fact content and returns
	// results ranked by descending relevance, at most topK of them.
	Query(ctx context.Context, text string, filters QueryFilters, topK int) ([]ScoredFact, error)

	// Close releases resources.
	Close() error
}

// Embedder converts text to vector embeddings. It is an implementation
// detail of stores; the decision core never touches vectors.
// Implementations: mock (testing), onnx (local MiniLM).
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// Judgment is a trigger classifier's verdict on a single turn. The write
// and recall signals are independent: a turn may set both, neither, or
// only one.
type Judgment struct {
	// Write indicates the turn carries something worth persisting.
	Write bool

	// Reason is set when Write is true.
	Reason core.TriggerReason

	// Recall indicates answering the turn needs long-term memory.
	Recall bool

	// Ambiguous marks a weak write signal. The gate suppresses ambiguous
	// writes unless configured otherwise: a missed write loses one fact,
	// a spurious write pollutes the store permanently.
	Ambiguous bool
}

// TriggerClassifier detects memory triggers in a turn. The decision logic
// in WriteGate and RecallRouter is fixed; the detection mechanism is
// pluggable so it can be tested independent of any specific detector.
// Implementations: RuleClassifier (default), classifier/claude (LLM judge).
type TriggerClassifier interface {
	Classify(ctx context.Context, turn *core.ConversationTurn, history []*core.ConversationTurn) (Judgment, error)
}
