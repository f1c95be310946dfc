package memory

import (
	"context"
	"log"

	"github.com/novamind/engram/core"
)

// WriteGate decides, per turn, whether fact extraction should run at all.
// Detection is delegated to a TriggerClassifier; the gate owns the parts
// that must hold regardless of detector: the ambiguity tie-break and the
// both-sides invariant for plan agreement.
type WriteGate struct {
	classifier TriggerClassifier
	config     *Config
}

// NewWriteGate builds a gate around the given detector. A nil classifier
// gets the rule-based default.
func NewWriteGate(classifier TriggerClassifier, config *Config) *WriteGate {
	if classifier == nil {
		classifier = NewRuleClassifier()
	}
	return &WriteGate{classifier: classifier, config: config.withDefaults()}
}

// ShouldWrite reports whether the turn should be extracted and, if so,
// why. The turn is expected to carry the agent utterance already, since
// confirmation and plan-agreement triggers may depend on the agent's own
// words. Classifier failures degrade to "no write": a missed write loses
// one fact, a spurious one pollutes the store permanently.
func (g *WriteGate) ShouldWrite(ctx context.Context, turn *core.ConversationTurn, history []*core.ConversationTurn) (bool, core.TriggerReason) {
	j, err := g.classifier.Classify(ctx, turn, history)
	if err != nil {
		log.Printf("[GATE] classifier failed, skipping write: %v", err)
		return false, ""
	}
	if !j.Write {
		return false, ""
	}
	if j.Ambiguous && !g.config.WriteOnAmbiguous {
		log.Printf("[GATE] ambiguous %s trigger suppressed (tie-break: prefer missed write)", j.Reason)
		return false, ""
	}

	// Plan agreement requires consensus visible in the evaluated window,
	// whatever the detector claims: an affirmative user signal AND an
	// agent-side proposal.
	if j.Reason == core.ReasonPlanAgreement && !planConsensus(turn, history) {
		log.Printf("[GATE] plan-agreement trigger without two-sided consensus, suppressed")
		return false, ""
	}

	log.Printf("[GATE] write triggered: %s", j.Reason)
	return true, j.Reason
}

// planConsensus checks both sides of a claimed plan agreement: a plan
// proposal on one side and an affirmative on the other, within the turn
// plus a 3-turn trailing window.
func planConsensus(turn *core.ConversationTurn, history []*core.ConversationTurn) bool {
	agentProposed := agentProposesPlan(turn.AgentUtterance)
	if !agentProposed {
		start := len(history) - 3
		if start < 0 {
			start = 0
		}
		for _, t := range history[start:] {
			if agentProposesPlan(t.AgentUtterance) {
				agentProposed = true
				break
			}
		}
	}
	if userAffirms(turn.UserUtterance) && agentProposed {
		return true
	}
	// The mirror case: the user laid out the plan and the agent agreed.
	return agentProposesPlan(turn.UserUtterance) && userAffirms(turn.AgentUtterance)
}
