package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FactType categorizes a fact for retrieval filtering. The set is open
// (user code may define new types), but a value must stay stable for the
// lifetime of the store once facts carry it.
type FactType string

const (
	// FactTypePreference marks durable likes, dislikes, and habits.
	FactTypePreference FactType = "PREFERENCE"

	// FactTypeUserInfo marks stable identity facts (name, location, role).
	FactTypeUserInfo FactType = "USER_INFO"

	// FactTypeConfirmedPlan marks multi-step objectives both parties
	// agreed on.
	FactTypeConfirmedPlan FactType = "CONFIRMED_PLAN"
)

// TriggerReason explains why the write gate decided a turn is worth
// persisting.
type TriggerReason string

const (
	// ReasonFactConfirmation: the user affirmed a previously stated or
	// agent-proposed fact.
	ReasonFactConfirmation TriggerReason = "FACT_CONFIRMATION"

	// ReasonExplicitPreference: the user stated a durable preference or
	// intent, as opposed to a one-off request.
	ReasonExplicitPreference TriggerReason = "EXPLICIT_PREFERENCE"

	// ReasonPlanAgreement: user and agent converged on a multi-step
	// objective within the visible history window.
	ReasonPlanAgreement TriggerReason = "PLAN_AGREEMENT"
)

// Fact is an atomic, self-contained statement derived from conversation.
// A fact is immutable once persisted: corrections are new facts that may
// point at the superseded key, never in-place edits, because the stored
// embedding is a function of the content at write time.
type Fact struct {
	// ID is an opaque identifier assigned at creation.
	ID string

	// Type is the retrieval category.
	Type FactType

	// Content is a single natural-language sentence. It must hold one
	// proposition and be interpretable without the source turn.
	Content string

	// SubjectID is the user the fact is about. (SubjectID, Content) is
	// the logical identity used for deduplication.
	SubjectID string

	// SessionID is the session the fact was extracted from.
	SessionID string

	// CreatedAt is taken from the source turn's envelope.
	CreatedAt time.Time

	// Confidence is an optional extraction confidence in [0,1].
	// Zero means unset.
	Confidence float64

	// ExpiresAt optionally bounds the fact's useful lifetime.
	// Zero means no expiry.
	ExpiresAt time.Time

	// Supersedes optionally holds the store key of an earlier fact this
	// one corrects. Resolution between contradictory facts is otherwise
	// latest-wins at query time.
	Supersedes string
}

// NewFact builds a fact with metadata taken deterministically from the
// turn's envelope.
func NewFact(t FactType, content string, turn *ConversationTurn) *Fact {
	return &Fact{
		ID:        uuid.New().String(),
		Type:      t,
		Content:   content,
		SubjectID: turn.SubjectID,
		SessionID: turn.SessionID,
		CreatedAt: turn.Timestamp,
	}
}

// DedupKey returns the logical identity used for idempotent upserts.
func (f *Fact) DedupKey() string {
	return f.SubjectID + "\x00" + NormalizeContent(f.Content)
}

// Expired reports whether the fact has outlived its expiry.
func (f *Fact) Expired(now time.Time) bool {
	return !f.ExpiresAt.IsZero() && now.After(f.ExpiresAt)
}

// Validate checks the atomicity and self-containment invariants. It is
// called before a fact leaves the extractor; a fact that fails here is
// dropped, never persisted.
func (f *Fact) Validate() error {
	content := strings.TrimSpace(f.Content)
	if content == "" {
		return fmt.Errorf("empty content")
	}
	if f.Type == "" {
		return fmt.Errorf("missing fact type")
	}
	if f.SubjectID == "" {
		return fmt.Errorf("missing subject id")
	}
	if !strings.HasSuffix(content, ".") {
		return fmt.Errorf("content is not a complete sentence: %q", content)
	}
	// One proposition per fact: a second sentence means the extractor
	// failed to decompose.
	if i := strings.IndexAny(content[:len(content)-1], ".!?"); i >= 0 {
		return fmt.Errorf("content holds more than one sentence: %q", content)
	}
	if p, ok := danglingPronoun(content); ok {
		return fmt.Errorf("unresolved pronoun %q in %q", p, content)
	}
	return nil
}

// pronouns that cannot be resolved once the fact is read in isolation.
var unresolvedPronouns = map[string]bool{
	"it": true, "this": true, "that": true, "these": true, "those": true,
	"he": true, "she": true, "they": true, "him": true, "her": true,
	"them": true, "his": true, "hers": true, "their": true, "theirs": true,
	"i": true, "me": true, "my": true, "mine": true, "we": true, "us": true,
	"our": true, "you": true, "your": true,
}

// danglingPronoun scans for a token that would dangle when the sentence is
// read without the source turn.
func danglingPronoun(content string) (string, bool) {
	for _, w := range strings.Fields(content) {
		w = strings.ToLower(strings.Trim(w, ".,!?;:\"'"))
		if unresolvedPronouns[w] {
			return w, true
		}
	}
	return "", false
}

// NormalizeContent lowercases and collapses whitespace/punctuation so
// trivially re-worded copies of the same sentence compare equal.
func NormalizeContent(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimRight(s, ".!? ")
	return strings.Join(strings.Fields(s), " ")
}
