package memory

import (
	"log"
	"strings"

	"github.com/novamind/engram/core"
)

// FactExtractor converts a triggered conversational turn into zero or
// more atomic fact candidates. Every emitted fact is one self-contained
// sentence: first-person references are rewritten to "the user" before
// emission, because the stored embedding is a function of the content and
// a dangling pronoun poisons retrieval forever. A turn the rules cannot
// rewrite cleanly yields an empty result; extraction failure is
// non-fatal and logged, never raised.
type FactExtractor struct{}

// NewFactExtractor returns the rule-based extractor.
func NewFactExtractor() *FactExtractor {
	return &FactExtractor{}
}

// Extract derives facts from the turn for the given trigger reason.
// A turn carrying two independent facts decomposes into two facts, never
// one compound sentence. Metadata comes deterministically from the turn's
// envelope.
func (e *FactExtractor) Extract(turn *core.ConversationTurn, reason core.TriggerReason) []*core.Fact {
	var candidates []candidate

	switch reason {
	case core.ReasonPlanAgreement:
		candidates = e.planCandidates(turn)
	case core.ReasonFactConfirmation:
		candidates = e.confirmationCandidates(turn)
	default:
		candidates = e.statementCandidates(turn.UserUtterance)
	}

	seen := make(map[string]bool)
	var facts []*core.Fact
	for _, c := range candidates {
		fact := core.NewFact(c.factType, c.content, turn)
		if err := fact.Validate(); err != nil {
			log.Printf("[EXTRACT] dropping malformed candidate: %v", err)
			continue
		}
		key := core.NormalizeContent(fact.Content)
		if seen[key] {
			continue
		}
		seen[key] = true
		facts = append(facts, fact)
	}

	if len(facts) == 0 {
		log.Printf("[EXTRACT] no well-formed fact derived from turn %d (reason=%s)", turn.SequenceNumber, reason)
	}
	return facts
}

type candidate struct {
	factType core.FactType
	content  string
}

// statementCandidates decomposes the utterance into sentences and
// independent "and I ..." clauses, then rewrites each first-person clause
// into a third-person sentence.
func (e *FactExtractor) statementCandidates(utterance string) []candidate {
	var out []candidate
	for _, sentence := range splitSentences(utterance) {
		for _, clause := range splitClauses(sentence) {
			if c, ok := rewriteFirstPerson(clause); ok {
				out = append(out, c)
			}
		}
	}
	return out
}

// confirmationCandidates handles "yes, <restatement>" turns. When the
// user restates the fact, the restatement is extracted directly; when the
// affirmation is bare, the agent's preceding statement in the same turn
// is rewritten from second person.
func (e *FactExtractor) confirmationCandidates(turn *core.ConversationTurn) []candidate {
	rest := stripAffirmation(turn.UserUtterance)
	if rest != "" {
		if out := e.statementCandidates(rest); len(out) > 0 {
			return out
		}
	}
	var out []candidate
	for _, sentence := range splitSentences(turn.AgentUtterance) {
		if c, ok := rewriteSecondPerson(sentence); ok {
			out = append(out, c)
		}
	}
	return out
}

// planCandidates extracts the agreed objective. The proposal sentence is
// located on either side of the exchange and reduced to its clause.
func (e *FactExtractor) planCandidates(turn *core.ConversationTurn) []candidate {
	for _, source := range []string{turn.AgentUtterance, turn.UserUtterance} {
		for _, sentence := range splitSentences(source) {
			if clause, ok := planClause(sentence); ok {
				return []candidate{{
					factType: core.FactTypeConfirmedPlan,
					content:  "The user and the agent agreed to " + clause + ".",
				}}
			}
		}
	}
	return nil
}

// splitSentences breaks text on terminal punctuation.
func splitSentences(text string) []string {
	var out []string
	var b strings.Builder
	for _, r := range text {
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if s := strings.TrimSpace(b.String()); s != "" {
				out = append(out, s)
			}
			b.Reset()
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		out = append(out, s)
	}
	return out
}

// splitClauses separates compound first-person statements: "I like blue
// and I dislike green" is two independent facts.
func splitClauses(sentence string) []string {
	lower := strings.ToLower(sentence)
	for _, sep := range []string{", and i ", " and i ", ", i "} {
		if i := strings.Index(lower, sep); i >= 0 {
			first := strings.TrimSpace(sentence[:i])
			second := "I " + strings.TrimSpace(sentence[i+len(sep):])
			return append(splitClauses(first), splitClauses(second)...)
		}
	}
	return []string{sentence}
}

// firstPersonVerbs maps the recognized statement verbs to a fact type.
var firstPersonVerbs = map[string]core.FactType{
	"like": core.FactTypePreference, "love": core.FactTypePreference,
	"prefer": core.FactTypePreference, "enjoy": core.FactTypePreference,
	"hate": core.FactTypePreference, "dislike": core.FactTypePreference,
	"live": core.FactTypeUserInfo, "work": core.FactTypeUserInfo,
	"speak": core.FactTypeUserInfo, "have": core.FactTypeUserInfo,
	"use": core.FactTypePreference, "drink": core.FactTypePreference,
	"eat": core.FactTypePreference, "play": core.FactTypePreference,
	"want": core.FactTypePreference, "need": core.FactTypePreference,
}

// rewriteFirstPerson turns a first-person clause into a self-contained
// third-person sentence, or reports that no rule matched.
func rewriteFirstPerson(clause string) (candidate, bool) {
	s := strings.TrimSpace(clause)
	s = strings.TrimRight(s, ".!?")
	lower := strings.ToLower(s)

	type prefixRule struct {
		prefix   string
		rewrite  string
		factType core.FactType
	}
	rules := []prefixRule{
		{"my favorite ", "The user's favorite ", core.FactTypePreference},
		{"my favourite ", "The user's favourite ", core.FactTypePreference},
		{"my name is ", "The user's name is ", core.FactTypeUserInfo},
		{"call me ", "The user goes by ", core.FactTypeUserInfo},
		{"i am ", "The user is ", core.FactTypeUserInfo},
		{"i'm ", "The user is ", core.FactTypeUserInfo},
	}
	for _, r := range rules {
		if strings.HasPrefix(lower, r.prefix) {
			rest := strings.TrimSpace(s[len(r.prefix):])
			if rest == "" {
				return candidate{}, false
			}
			return candidate{r.factType, r.rewrite + rest + "."}, true
		}
	}

	// "I <verb> ..." and "I always/never <verb> ..." statements.
	words := strings.Fields(s)
	if len(words) >= 3 && strings.EqualFold(words[0], "i") {
		adverb := ""
		verbIdx := 1
		if strings.EqualFold(words[1], "always") || strings.EqualFold(words[1], "never") {
			adverb = strings.ToLower(words[1]) + " "
			verbIdx = 2
			if len(words) < 4 {
				return candidate{}, false
			}
		}
		verb := strings.ToLower(words[verbIdx])
		ftype, ok := firstPersonVerbs[verb]
		if !ok {
			return candidate{}, false
		}
		if adverb != "" {
			ftype = core.FactTypePreference
		}
		rest := strings.Join(words[verbIdx+1:], " ")
		return candidate{ftype, "The user " + adverb + thirdPerson(verb) + " " + rest + "."}, true
	}

	return candidate{}, false
}

// rewriteSecondPerson turns an agent statement about the user ("you said
// your favorite color is blue") into third person.
func rewriteSecondPerson(sentence string) (candidate, bool) {
	s := strings.TrimSpace(strings.TrimRight(sentence, ".!?"))
	lower := strings.ToLower(s)

	// Peel confirmation framing the agent tends to use.
	for _, lead := range []string{"so ", "just to confirm, ", "to confirm, ", "you said ", "you mentioned ", "you told me "} {
		if strings.HasPrefix(lower, lead) {
			s = strings.TrimSpace(s[len(lead):])
			lower = strings.ToLower(s)
		}
	}

	type rule struct {
		prefix   string
		rewrite  string
		factType core.FactType
	}
	rules := []rule{
		{"your favorite ", "The user's favorite ", core.FactTypePreference},
		{"your favourite ", "The user's favourite ", core.FactTypePreference},
		{"your name is ", "The user's name is ", core.FactTypeUserInfo},
		{"you are ", "The user is ", core.FactTypeUserInfo},
		{"you're ", "The user is ", core.FactTypeUserInfo},
		{"you like ", "The user likes ", core.FactTypePreference},
		{"you prefer ", "The user prefers ", core.FactTypePreference},
		{"you live ", "The user lives ", core.FactTypeUserInfo},
		{"you work ", "The user works ", core.FactTypeUserInfo},
	}
	for _, r := range rules {
		if strings.HasPrefix(lower, r.prefix) {
			rest := strings.TrimSpace(s[len(r.prefix):])
			if rest == "" {
				return candidate{}, false
			}
			return candidate{r.factType, r.rewrite + rest + "."}, true
		}
	}
	return candidate{}, false
}

// planClause reduces a proposal sentence to the objective clause.
func planClause(sentence string) (string, bool) {
	s := strings.TrimSpace(strings.TrimRight(sentence, ".!?"))
	lower := strings.ToLower(s)
	leads := []string{
		"let's ", "let us ", "we can ", "we could ", "we will ", "we'll ",
		"how about we ", "i suggest we ", "i propose we ", "shall we ",
		"the plan is to ", "here's the plan: ", "so the plan is to ",
	}
	for _, lead := range leads {
		if strings.HasPrefix(lower, lead) {
			clause := strings.TrimSpace(s[len(lead):])
			if clause == "" {
				return "", false
			}
			// The clause must stand alone; second-person possessives
			// become the user's.
			clause = strings.ReplaceAll(clause, "your ", "the user's ")
			clause = strings.ReplaceAll(clause, "Your ", "The user's ")
			return lowerFirst(clause), true
		}
	}
	return "", false
}

// stripAffirmation removes a leading affirmation token so the
// restatement behind it can be extracted.
func stripAffirmation(utterance string) string {
	s := strings.TrimSpace(utterance)
	lower := strings.ToLower(s)
	for _, a := range []string{"yes", "yep", "yeah", "correct", "exactly", "right", "that's right", "confirmed"} {
		for _, sep := range []string{", ", ". ", "! ", " - ", " "} {
			if strings.HasPrefix(lower, a+sep) {
				return strings.TrimSpace(s[len(a+sep):])
			}
		}
		if lower == a || lower == a+"." || lower == a+"!" {
			return ""
		}
	}
	return s
}

// thirdPerson conjugates a first-person verb for "the user".
func thirdPerson(verb string) string {
	switch verb {
	case "have":
		return "has"
	case "am":
		return "is"
	case "do":
		return "does"
	case "go":
		return "goes"
	}
	switch {
	case strings.HasSuffix(verb, "s"), strings.HasSuffix(verb, "sh"),
		strings.HasSuffix(verb, "ch"), strings.HasSuffix(verb, "x"),
		strings.HasSuffix(verb, "o"):
		return verb + "es"
	case len(verb) > 1 && strings.HasSuffix(verb, "y") && !isVowel(verb[len(verb)-2]):
		return verb[:len(verb)-1] + "ies"
	default:
		return verb + "s"
	}
}

func isVowel(b byte) bool {
	switch b {
	case 'a', 'e', 'i', 'o', 'u':
		return true
	}
	return false
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
