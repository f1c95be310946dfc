package engine

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/novamind/engram/memory"
)

// DefaultSystemPrompt frames how the planner should treat recalled
// memory. A missing memory is answered with a clarifying question, never
// false certainty, and store internals are never surfaced to the user.
const DefaultSystemPrompt = `You are a helpful assistant with long-term memory.

Facts recalled from earlier conversations appear in a <recalled_memory> block before the user's message. Treat them as background knowledge about the user.

GUIDELINES:
- Use recalled facts naturally; do not quote the block or mention the memory system
- If the user asks about something you have no recalled fact for, ask a clarifying question instead of guessing
- Never expose internal errors or storage details in your response`

// ClaudePlanner implements Planner over the Anthropic API.
type ClaudePlanner struct {
	client       *anthropic.Client
	model        anthropic.Model
	maxTokens    int64
	systemPrompt string

	// StreamCallback, when set, receives response chunks as they arrive
	// and a final call with done=true.
	StreamCallback func(chunk string, done bool)
}

// NewClaudePlanner creates a planner. Empty model and zero maxTokens take
// defaults.
func NewClaudePlanner(client *anthropic.Client, model string, maxTokens int64) *ClaudePlanner {
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	if maxTokens == 0 {
		maxTokens = 4096
	}
	return &ClaudePlanner{
		client:       client,
		model:        anthropic.Model(model),
		maxTokens:    maxTokens,
		systemPrompt: DefaultSystemPrompt,
	}
}

// WithSystemPrompt overrides the default system prompt.
func (p *ClaudePlanner) WithSystemPrompt(prompt string) *ClaudePlanner {
	p.systemPrompt = prompt
	return p
}

// Plan sends the assembled payload and returns the response text.
func (p *ClaudePlanner) Plan(ctx context.Context, payload *memory.PromptPayload) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: p.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: p.systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(payload.Render())),
		},
	}

	var resp *anthropic.Message
	var err error
	if p.StreamCallback != nil {
		resp, err = p.planStreaming(ctx, params)
	} else {
		resp, err = p.client.Messages.New(ctx, params)
	}
	if err != nil {
		return "", fmt.Errorf("claude api: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text, nil
}

// planStreaming accumulates the streamed response while forwarding text
// deltas to the callback.
func (p *ClaudePlanner) planStreaming(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	stream := p.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			// Accumulation errors are non-fatal; keep streaming.
			continue
		}
		switch evt := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			switch delta := evt.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				p.StreamCallback(delta.Text, false)
			}
		case anthropic.MessageStopEvent:
			p.StreamCallback("", true)
		}
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}
	return &message, nil
}
