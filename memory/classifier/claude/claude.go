// Package claude implements memory.TriggerClassifier with a secondary
// model call: a small Claude prompt judges whether a turn warrants a
// memory write, a recall, both, or neither. It trades latency and cost
// for much better trigger precision than the rule set.
package claude

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/novamind/engram/core"
	"github.com/novamind/engram/memory"
)

const judgeSystemPrompt = `You are a memory operation judge for a conversational agent.
Given the latest exchange, answer with ONLY a comma-separated list of zero or more of these labels and nothing else:

- save_preference: the user stated a durable preference or identity fact (not a one-off request)
- save_confirmation: the user affirmed a fact previously stated by either party
- save_plan: user and agent have both agreed on a multi-step objective
- recall: answering requires facts from earlier conversations
- ambiguous: add this label if your save_* judgment is uncertain

If nothing applies, answer exactly: none`

// Classifier judges trigger decisions with a Claude call.
type Classifier struct {
	client *anthropic.Client
	model  anthropic.Model
}

// New creates a classifier. An empty model defaults to Claude Haiku; the
// judgment is a short classification, not reasoning work.
func New(client *anthropic.Client, model string) *Classifier {
	if model == "" {
		model = "claude-3-5-haiku-latest"
	}
	return &Classifier{client: client, model: anthropic.Model(model)}
}

// Classify asks the model for a judgment. Any API or parse failure
// returns the error; the gate and router treat that as "do nothing",
// which is the original degradation the tie-break policy wants.
func (c *Classifier) Classify(ctx context.Context, turn *core.ConversationTurn, history []*core.ConversationTurn) (memory.Judgment, error) {
	var b strings.Builder
	start := len(history) - 3
	if start < 0 {
		start = 0
	}
	for _, t := range history[start:] {
		fmt.Fprintf(&b, "User: %s\n", t.UserUtterance)
		if t.AgentUtterance != "" {
			fmt.Fprintf(&b, "Agent: %s\n", t.AgentUtterance)
		}
	}
	fmt.Fprintf(&b, "User: %s\n", turn.UserUtterance)
	if turn.AgentUtterance != "" {
		fmt.Fprintf(&b, "Agent: %s\n", turn.AgentUtterance)
	}

	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 32,
		System: []anthropic.TextBlockParam{
			{Text: judgeSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(b.String())),
		},
	})
	if err != nil {
		return memory.Judgment{}, fmt.Errorf("judge call: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return parseJudgment(text), nil
}

// parseJudgment maps the model's label list onto a Judgment. Unknown
// labels are ignored rather than failing the turn.
func parseJudgment(text string) memory.Judgment {
	var j memory.Judgment
	for _, label := range strings.Split(strings.ToLower(strings.TrimSpace(text)), ",") {
		switch strings.TrimSpace(label) {
		case "save_preference":
			j.Write = true
			j.Reason = core.ReasonExplicitPreference
		case "save_confirmation":
			j.Write = true
			j.Reason = core.ReasonFactConfirmation
		case "save_plan":
			j.Write = true
			j.Reason = core.ReasonPlanAgreement
		case "recall":
			j.Recall = true
		case "ambiguous":
			j.Ambiguous = true
		}
	}
	return j
}
