package memory

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/novamind/engram/core"
)

// Prompt-integration delimiters. The block is a serialization convention
// over a RecalledMemorySet, not a control-flow mechanism; RenderBlock is
// a pure function and is tested independently of retrieval.
const (
	recalledBlockOpen  = "<recalled_memory>"
	recalledBlockClose = "</recalled_memory>"
)

// PromptPayload is the bounded structure handed to the planner: trimmed
// short-term context, a delimited block of recalled facts, and the
// current user utterance.
type PromptPayload struct {
	ShortTermContext string
	RecalledBlock    string
	CurrentUtterance string
}

// Render joins the payload sections, the recalled block sitting
// immediately before the current utterance. Empty sections are omitted
// entirely; an empty recall never renders as an empty tag.
func (p *PromptPayload) Render() string {
	parts := make([]string, 0, 3)
	for _, s := range []string{p.ShortTermContext, p.RecalledBlock, p.CurrentUtterance} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}

// ContextAssembler merges short-term context with recalled facts under a
// character budget. Output is deterministic given identical inputs.
type ContextAssembler struct {
	config *Config
}

// NewContextAssembler builds an assembler.
func NewContextAssembler(config *Config) *ContextAssembler {
	return &ContextAssembler{config: config.withDefaults()}
}

// Assemble builds the prompt payload. Truncation favors recency for
// short-term context and relevance rank for recalled facts; the current
// user utterance has unconditional priority and is never dropped: if it
// alone exceeds the budget, ErrBudgetExceeded is returned and the turn
// fails as a configuration error rather than being silently truncated.
func (a *ContextAssembler) Assemble(shortTerm []*core.ConversationTurn, recalled *RecalledMemorySet, current string, budget int) (*PromptPayload, error) {
	if budget <= 0 {
		budget = a.config.PromptBudget
	}
	// Reserve the section separators up front so Render can never
	// overshoot.
	const sep = len("\n\n")
	if len(current) > budget {
		return nil, fmt.Errorf("%w: utterance %d chars, budget %d", ErrBudgetExceeded, len(current), budget)
	}

	payload := &PromptPayload{CurrentUtterance: current}
	remaining := budget - len(current) - 2*sep
	if remaining <= 0 {
		return payload, nil
	}

	// Short-term context gets half of what is left; recalled facts take
	// the rest plus anything short-term did not use.
	payload.ShortTermContext = a.renderShortTerm(shortTerm, remaining/2)
	recalledBudget := remaining - len(payload.ShortTermContext)
	payload.RecalledBlock = RenderBlock(DedupFacts(recalled), recalledBudget)

	if got := len(payload.Render()); got > budget {
		// Unreachable with the reservations above; kept as a hard stop on
		// the invariant.
		return nil, fmt.Errorf("%w: assembled %d chars, budget %d", ErrBudgetExceeded, got, budget)
	}
	return payload, nil
}

// renderShortTerm renders trailing turns under subBudget. The newest
// ShortTermTrimThreshold turns stay verbatim; older ones collapse into a
// one-line digest. Oldest content is dropped first when over budget.
func (a *ContextAssembler) renderShortTerm(turns []*core.ConversationTurn, subBudget int) string {
	if len(turns) == 0 || subBudget <= 0 {
		return ""
	}

	verbatimFrom := len(turns) - a.config.ShortTermTrimThreshold
	if verbatimFrom < 0 {
		verbatimFrom = 0
	}

	var digest []string
	for _, t := range turns[:verbatimFrom] {
		if topic := firstClause(t.UserUtterance); topic != "" {
			digest = append(digest, topic)
		}
	}

	var lines []string
	for _, t := range turns[verbatimFrom:] {
		lines = append(lines, renderTurn(t))
	}

	render := func() string {
		var parts []string
		if len(digest) > 0 {
			parts = append(parts, "Earlier in this conversation: "+strings.Join(digest, "; ")+".")
		}
		parts = append(parts, lines...)
		return strings.Join(parts, "\n")
	}

	// Trim oldest-first: digest entries go before verbatim turns.
	out := render()
	for len(out) > subBudget {
		switch {
		case len(digest) > 0:
			digest = digest[1:]
		case len(lines) > 1:
			lines = lines[1:]
		default:
			return ""
		}
		out = render()
	}
	return out
}

func renderTurn(t *core.ConversationTurn) string {
	line := "User: " + t.UserUtterance
	if t.AgentUtterance != "" {
		line += "\nAgent: " + t.AgentUtterance
	}
	return line
}

// firstClause takes the head of an utterance for the digest line.
func firstClause(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, ".!?,;"); i > 0 {
		s = s[:i]
	}
	if len(s) > 60 {
		s = s[:60]
	}
	return strings.TrimSpace(s)
}

// DedupFacts removes near-identical recalled facts (same fact type and
// near-identical content), keeping the higher-relevance instance, and
// returns the set ordered by descending relevance. Ties break on content
// so output is deterministic.
func DedupFacts(recalled *RecalledMemorySet) []ScoredFact {
	if recalled.Empty() {
		return nil
	}
	facts := make([]ScoredFact, len(recalled.Facts))
	copy(facts, recalled.Facts)
	sort.SliceStable(facts, func(i, j int) bool {
		if facts[i].Score != facts[j].Score {
			return facts[i].Score > facts[j].Score
		}
		return facts[i].Fact.Content < facts[j].Fact.Content
	})

	var kept []ScoredFact
	for _, sf := range facts {
		dup := false
		for _, k := range kept {
			if k.Fact.Type == sf.Fact.Type && nearIdentical(k.Fact.Content, sf.Fact.Content) {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, sf)
		}
	}
	if d := len(facts) - len(kept); d > 0 {
		log.Printf("[ASSEMBLE] dropped %d near-duplicate facts", d)
	}
	return kept
}

// RenderBlock serializes ranked facts into the delimited prompt block,
// one "[FACT_TYPE]: content" line each, dropping lowest-relevance facts
// first until the block fits subBudget. Zero surviving facts render
// nothing at all.
func RenderBlock(facts []ScoredFact, subBudget int) string {
	for len(facts) > 0 {
		lines := make([]string, 0, len(facts)+2)
		lines = append(lines, recalledBlockOpen)
		for _, sf := range facts {
			lines = append(lines, fmt.Sprintf("[%s]: %s", sf.Fact.Type, sf.Fact.Content))
		}
		lines = append(lines, recalledBlockClose)
		block := strings.Join(lines, "\n")
		if len(block) <= subBudget {
			return block
		}
		facts = facts[:len(facts)-1]
	}
	return ""
}

// Scaffolding words carry no propositional content and are ignored when
// comparing facts.
var dedupStopwords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true,
	"was": true, "were": true, "of": true, "to": true, "in": true,
	"on": true, "for": true, "and": true, "or": true, "that": true,
	"user": true, "user's": true, "users": true, "agent": true,
	"their": true, "with": true,
}

// Verbs alone don't make two facts the same ("likes blue" vs "likes
// green" share only the verb).
var dedupVerbs = map[string]bool{
	"like": true, "likes": true, "love": true, "loves": true,
	"prefer": true, "prefers": true, "enjoy": true, "enjoys": true,
	"hate": true, "hates": true, "dislike": true, "dislikes": true,
	"want": true, "wants": true, "need": true, "needs": true,
	"use": true, "uses": true, "live": true, "lives": true,
	"work": true, "works": true, "has": true, "have": true,
	"agreed": true, "goes": true,
}

// nearIdentical reports whether two sentences state the same thing:
// normalized-equal, or, after dropping scaffolding words, overlapping
// on at least half the smaller token set, including at least one
// non-verb content token.
func nearIdentical(a, b string) bool {
	na, nb := core.NormalizeContent(a), core.NormalizeContent(b)
	if na == nb {
		return true
	}
	ta, tb := contentTokens(na), contentTokens(nb)
	if len(ta) == 0 || len(tb) == 0 {
		return false
	}
	inter := 0
	sharedNoun := false
	for w := range ta {
		if tb[w] {
			inter++
			if !dedupVerbs[w] {
				sharedNoun = true
			}
		}
	}
	min := len(ta)
	if len(tb) < min {
		min = len(tb)
	}
	return sharedNoun && float64(inter)/float64(min) >= 0.5
}

func contentTokens(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(s) {
		w = strings.Trim(w, ".,!?;:'\"")
		if w == "" || dedupStopwords[w] {
			continue
		}
		set[w] = true
	}
	return set
}
