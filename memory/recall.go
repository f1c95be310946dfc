package memory

import (
	"context"
	"log"
	"strings"

	"github.com/novamind/engram/core"
)

// RecallRouter decides, per incoming user turn, whether long-term memory
// must be queried, and with what filters. Recall is a pure read-side
// decision, independent of the write gate. When it fires, the router
// issues exactly one store query per turn to bound latency.
type RecallRouter struct {
	classifier TriggerClassifier
	store      Store
	config     *Config
}

// NewRecallRouter builds a router over the given store. A nil classifier
// gets the rule-based default.
func NewRecallRouter(classifier TriggerClassifier, store Store, config *Config) *RecallRouter {
	if classifier == nil {
		classifier = NewRuleClassifier()
	}
	return &RecallRouter{classifier: classifier, store: store, config: config.withDefaults()}
}

// ShouldRecall reports whether the turn needs long-term context, and the
// filters that would scope the query. Classifier failures degrade to
// "no recall".
func (r *RecallRouter) ShouldRecall(ctx context.Context, turn *core.ConversationTurn) (bool, QueryFilters) {
	j, err := r.classifier.Classify(ctx, turn, nil)
	if err != nil {
		log.Printf("[RECALL] classifier failed, skipping recall: %v", err)
		return false, QueryFilters{}
	}
	if !j.Recall {
		return false, QueryFilters{}
	}
	return true, r.filtersFor(turn)
}

// Recall runs the full read-side decision: zero or one store query,
// bounded by the configured timeout. Store failures degrade to an empty
// set: the turn proceeds with whatever context is available, and the
// prompt block is simply omitted.
func (r *RecallRouter) Recall(ctx context.Context, turn *core.ConversationTurn) *RecalledMemorySet {
	ok, filters := r.ShouldRecall(ctx, turn)
	if !ok {
		return &RecalledMemorySet{Query: turn.UserUtterance}
	}

	qctx, cancel := context.WithTimeout(ctx, r.config.StoreTimeout)
	defer cancel()

	facts, err := r.store.Query(qctx, turn.UserUtterance, filters, r.config.RecallTopK)
	if err != nil {
		log.Printf("[RECALL] store query failed, degrading to empty result: %v", err)
		return &RecalledMemorySet{Query: turn.UserUtterance}
	}

	log.Printf("[RECALL] retrieved %d facts for query %q", len(facts), truncateLog(turn.UserUtterance, 50))
	return &RecalledMemorySet{Query: turn.UserUtterance, Facts: facts}
}

// filtersFor narrows the query by subject and, when the utterance names a
// category clearly, by fact type. An unrecognized topic queries all types.
func (r *RecallRouter) filtersFor(turn *core.ConversationTurn) QueryFilters {
	f := QueryFilters{SubjectID: turn.SubjectID}
	u := strings.ToLower(turn.UserUtterance)
	switch {
	case strings.Contains(u, "plan") || strings.Contains(u, "agreed") || strings.Contains(u, "next step"):
		f.FactTypes = []core.FactType{core.FactTypeConfirmedPlan}
	case strings.Contains(u, "favorite") || strings.Contains(u, "favourite") || strings.Contains(u, "prefer") || strings.Contains(u, "like"):
		f.FactTypes = []core.FactType{core.FactTypePreference}
	case strings.Contains(u, "my name") || strings.Contains(u, "who am i") || strings.Contains(u, "where do i"):
		f.FactTypes = []core.FactType{core.FactTypeUserInfo}
	}
	return f
}

// truncateLog shortens text for log lines.
func truncateLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
