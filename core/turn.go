package core

import "time"

// ConversationTurn is one user/agent exchange as seen by the memory
// subsystem. The caller owns it; the subsystem only reads it. The agent
// utterance is empty until the planner has produced a response for the
// turn, so write-side decisions that depend on the agent's own words
// (plan agreement, confirmation) are evaluated on a copy taken after
// planning.
type ConversationTurn struct {
	// UserUtterance is the raw user message for this turn.
	UserUtterance string

	// AgentUtterance is the agent's response, if already produced.
	AgentUtterance string

	// SubjectID identifies the user the turn belongs to.
	SubjectID string

	// SessionID identifies the conversation session.
	SessionID string

	// Timestamp is when the user utterance arrived.
	Timestamp time.Time

	// SequenceNumber is the turn's position within the session.
	SequenceNumber int
}

// WithAgentResponse returns a copy of the turn with the agent utterance
// filled in. The original turn is left untouched.
func (t *ConversationTurn) WithAgentResponse(text string) *ConversationTurn {
	c := *t
	c.AgentUtterance = text
	return &c
}
