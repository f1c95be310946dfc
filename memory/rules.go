package memory

import (
	"context"

	"github.com/novamind/engram/core"
)

// RuleClassifier is the default, dependency-free trigger detector. It
// encodes the trigger rubric as substring rules; the LLM-backed detector
// in classifier/claude is a drop-in replacement behind the same
// interface.
type RuleClassifier struct {
	// HistoryWindow is how many trailing turns are scanned for the
	// cross-turn signals (agent proposals, confirmable statements).
	HistoryWindow int
}

// NewRuleClassifier returns a classifier with a 3-turn history window.
func NewRuleClassifier() *RuleClassifier {
	return &RuleClassifier{HistoryWindow: 3}
}

// Classify evaluates the write and recall trigger rules for one turn.
// It never returns an error; the rule set has no failure mode.
func (c *RuleClassifier) Classify(ctx context.Context, turn *core.ConversationTurn, history []*core.ConversationTurn) (Judgment, error) {
	var j Judgment

	user := turn.UserUtterance
	if user == "" || isSmallTalk(user) {
		return j, nil
	}

	j.Recall = c.recallTriggered(user)

	// Write triggers, most specific first. Ordinary factual Q&A and
	// single-sided proposals fire nothing.
	switch {
	case statesDurablePreference(user):
		j.Write = true
		j.Reason = core.ReasonExplicitPreference
	case c.planAgreed(turn, history):
		j.Write = true
		j.Reason = core.ReasonPlanAgreement
	case c.confirmsFact(turn, history):
		j.Write = true
		j.Reason = core.ReasonFactConfirmation
	}

	if j.Write && isHedged(user) {
		j.Ambiguous = true
	}
	return j, nil
}

// recallTriggered fires on query-type utterances and on mentions of
// entities plausibly recorded in long-term memory.
func (c *RuleClassifier) recallTriggered(user string) bool {
	if hasAny(normalizeUtterance(user), recallMarkers) {
		return true
	}
	return looksLikeQuery(user)
}

// planAgreed requires consensus: an affirmative user signal plus an
// agent-side proposal, either in this turn or within the history window.
// A single-sided proposal never fires.
func (c *RuleClassifier) planAgreed(turn *core.ConversationTurn, history []*core.ConversationTurn) bool {
	if !userAffirms(turn.UserUtterance) {
		return false
	}
	if agentProposesPlan(turn.AgentUtterance) {
		return true
	}
	for _, t := range c.window(history) {
		if agentProposesPlan(t.AgentUtterance) {
			return true
		}
	}
	return false
}

// confirmsFact fires when the user affirms something the agent actually
// stated: a bare "yes" with no prior agent utterance confirms nothing.
func (c *RuleClassifier) confirmsFact(turn *core.ConversationTurn, history []*core.ConversationTurn) bool {
	if !userAffirms(turn.UserUtterance) {
		return false
	}
	for _, t := range c.window(history) {
		if t.AgentUtterance != "" {
			return true
		}
	}
	return false
}

func (c *RuleClassifier) window(history []*core.ConversationTurn) []*core.ConversationTurn {
	n := c.HistoryWindow
	if n <= 0 {
		n = 3
	}
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}
