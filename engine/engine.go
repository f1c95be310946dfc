// Package engine runs the per-turn memory pipeline:
//
//	IDLE → RECALL_DECISION → (QUERY → MERGE | SKIP) → PLAN →
//	WRITE_DECISION → (EXTRACT → PERSIST | SKIP) → IDLE
//
// Recall completes (or is skipped) before the planner is invoked; the
// write decision is evaluated only after the planner's response is known,
// since plan-agreement and confirmation triggers may depend on the
// agent's own utterance. Store failures on either side degrade; the
// agent always answers with whatever context is available.
package engine

import (
	"context"
	"fmt"
	"log"

	"github.com/novamind/engram/core"
	"github.com/novamind/engram/memory"
)

// Planner consumes the assembled prompt payload and produces the agent's
// response. It is an external collaborator: the pipeline treats it as a
// black box. ClaudePlanner is the SDK-provided implementation.
type Planner interface {
	Plan(ctx context.Context, payload *memory.PromptPayload) (string, error)
}

// maxPendingWrites bounds the failed-write retry queue. Beyond this,
// oldest facts are dropped: write degradation is explicitly lossy.
const maxPendingWrites = 32

// Engine wires the decision core around a store and a planner. It holds
// no cross-turn state except the optional retry queue; conversation
// history stays with the caller.
type Engine struct {
	planner   Planner
	store     memory.Store
	gate      *memory.WriteGate
	router    *memory.RecallRouter
	extractor *memory.FactExtractor
	assembler *memory.ContextAssembler
	config    *memory.Config

	pending []*core.Fact
}

// Option configures the engine.
type Option func(*Engine)

// WithClassifier swaps the trigger detector used by both the write gate
// and the recall router.
func WithClassifier(c memory.TriggerClassifier) Option {
	return func(e *Engine) {
		e.gate = memory.NewWriteGate(c, e.config)
		e.router = memory.NewRecallRouter(c, e.store, e.config)
	}
}

// NewEngine creates a pipeline over the given planner and store. A nil
// config takes defaults; the default trigger detector is the rule
// classifier.
func NewEngine(planner Planner, store memory.Store, config *memory.Config, opts ...Option) *Engine {
	if config == nil {
		config = memory.DefaultConfig
	}
	e := &Engine{
		planner:   planner,
		store:     store,
		extractor: memory.NewFactExtractor(),
		assembler: memory.NewContextAssembler(config),
		config:    config,
	}
	e.gate = memory.NewWriteGate(nil, config)
	e.router = memory.NewRecallRouter(nil, store, config)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Output is the result of one turn through the pipeline.
type Output struct {
	// Text is the planner's response.
	Text string

	// Recalled is the memory set merged into the prompt (possibly empty).
	Recalled *memory.RecalledMemorySet

	// Payload is the assembled prompt that was handed to the planner.
	Payload *memory.PromptPayload

	// WriteReason is set when the write gate fired.
	WriteReason core.TriggerReason

	// Written holds the facts persisted this turn.
	Written []*core.Fact
}

// Run processes one conversation turn end to end. The caller owns the
// turn and the history; both are only read. The only errors that
// propagate are planner failures and ErrBudgetExceeded: a prompt budget
// that cannot fit the current utterance is a configuration error, not
// something to silently truncate.
func (e *Engine) Run(ctx context.Context, turn *core.ConversationTurn, history []*core.ConversationTurn) (*Output, error) {
	// RECALL_DECISION → QUERY | SKIP. Degrades internally to an empty
	// set; never blocks the turn.
	recalled := e.router.Recall(ctx, turn)

	// MERGE.
	payload, err := e.assembler.Assemble(history, recalled, turn.UserUtterance, e.config.PromptBudget)
	if err != nil {
		return nil, fmt.Errorf("assemble prompt: %w", err)
	}

	// PLAN.
	text, err := e.planner.Plan(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("planner: %w", err)
	}

	out := &Output{
		Text:     text,
		Recalled: recalled,
		Payload:  payload,
	}

	// WRITE_DECISION → EXTRACT → PERSIST | SKIP, evaluated on the turn
	// with the agent's own utterance filled in.
	evaluated := turn.WithAgentResponse(text)
	write, reason := e.gate.ShouldWrite(ctx, evaluated, history)

	var facts []*core.Fact
	if write {
		out.WriteReason = reason
		facts = e.extractor.Extract(evaluated, reason)
	}
	out.Written = e.persist(ctx, facts)
	return out, nil
}

// persist upserts extracted facts plus any queued retries, each under the
// store timeout. Failures are absorbed: logged, and re-queued when retry
// is enabled.
func (e *Engine) persist(ctx context.Context, facts []*core.Fact) []*core.Fact {
	queue := append(e.pending, facts...)
	e.pending = nil
	if len(queue) == 0 {
		return nil
	}

	timeout := e.config.StoreTimeout
	if timeout <= 0 {
		timeout = memory.DefaultConfig.StoreTimeout
	}

	var written []*core.Fact
	for _, fact := range queue {
		uctx, cancel := context.WithTimeout(ctx, timeout)
		key, err := e.store.Upsert(uctx, fact)
		cancel()
		if err != nil {
			log.Printf("[ENGINE] upsert failed for fact type=%s: %v", fact.Type, err)
			if e.config.RetryFailedWrites {
				e.pending = append(e.pending, fact)
				if len(e.pending) > maxPendingWrites {
					log.Printf("[ENGINE] retry queue full, dropping oldest fact")
					e.pending = e.pending[len(e.pending)-maxPendingWrites:]
				}
			}
			continue
		}
		log.Printf("[ENGINE] persisted fact type=%s key=%s", fact.Type, key)
		written = append(written, fact)
	}
	return written
}

// PendingWrites reports how many facts await retry.
func (e *Engine) PendingWrites() int {
	return len(e.pending)
}
