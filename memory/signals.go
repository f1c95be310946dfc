package memory

import "strings"

// Utterance-level signal detection shared by the rule classifier and the
// gate's plan-agreement invariant check. All matching is lowercase
// substring/prefix based; precision over recall, per the tie-break policy.

var preferenceMarkers = []string{
	"my favorite", "my favourite", "i like ", "i love ", "i prefer ",
	"i enjoy ", "i hate ", "i dislike ", "i always ", "i never ",
	"my name is ", "call me ", "i live ", "i work ", "i am allergic",
	"i'm allergic", "i am a ", "i'm a ", "i am an ", "i'm an ",
}

var affirmations = []string{
	"yes", "yep", "yeah", "correct", "exactly", "right", "that's right",
	"that is right", "confirmed", "sounds good", "sounds great", "agreed",
	"let's do it", "let's do that", "perfect", "deal", "works for me",
	"ok let's", "okay let's",
}

var planProposalMarkers = []string{
	"let's ", "we can ", "we could ", "we will ", "we'll ", "i suggest",
	"i propose", "how about we", "shall we", "here's the plan",
	"the plan is", "plan:", "step 1", "first,", "first we",
}

var recallMarkers = []string{
	"remember", "last time", "you said", "we discussed", "we talked about",
	"earlier you", "what's my", "what is my", "what did i", "do i ",
	"did i ", "my favorite", "my favourite", "my name", "my plan",
	"my preference", "as usual", "like before",
}

var questionLeads = []string{
	"what", "who", "when", "where", "which", "why", "how", "do you",
	"did you", "can you tell", "could you tell", "am i", "was i",
}

// A transient imperative is a one-off request, not a durable preference:
// "make this blue" writes nothing even though it mentions a color.
var imperativeLeads = []string{
	"make ", "set ", "change ", "turn ", "use ", "add ", "remove ",
	"delete ", "update ", "rename ", "move ", "show ", "give ",
	"please make ", "please set ", "please change ", "please use ",
}

// Hedged statements are treated as ambiguous write signals.
var hedges = []string{
	"maybe", "i think", "i guess", "probably", "might", "not sure",
	"perhaps", "kind of", "sort of",
}

var smallTalk = []string{
	"hi", "hello", "hey", "thanks", "thank you", "how are you",
	"good morning", "good night", "bye", "goodbye", "ok", "okay",
}

func hasAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

func hasAnyPrefix(s string, markers []string) bool {
	for _, m := range markers {
		if strings.HasPrefix(s, m) {
			return true
		}
	}
	return false
}

func normalizeUtterance(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// statesDurablePreference reports whether the utterance states a durable
// preference or identity fact rather than a transient request.
func statesDurablePreference(s string) bool {
	s = normalizeUtterance(s)
	if hasAnyPrefix(s, imperativeLeads) {
		return false
	}
	return hasAny(s, preferenceMarkers)
}

// userAffirms reports whether the user-side utterance carries an
// affirmative signal.
func userAffirms(s string) bool {
	s = normalizeUtterance(s)
	for _, a := range affirmations {
		if s == a || strings.HasPrefix(s, a+",") || strings.HasPrefix(s, a+".") ||
			strings.HasPrefix(s, a+"!") || strings.HasPrefix(s, a+" ") {
			return true
		}
	}
	return false
}

// agentProposesPlan reports whether the agent-side utterance proposes a
// multi-step objective.
func agentProposesPlan(s string) bool {
	return hasAny(normalizeUtterance(s), planProposalMarkers)
}

// isSmallTalk reports whether the utterance is greeting/filler with no
// memory value.
func isSmallTalk(s string) bool {
	s = strings.TrimRight(normalizeUtterance(s), ".!?")
	for _, t := range smallTalk {
		if s == t {
			return true
		}
	}
	return false
}

// isHedged reports a weak, qualified statement.
func isHedged(s string) bool {
	return hasAny(normalizeUtterance(s), hedges)
}

// Tokens that tie a question to the conversation's participants.
var participantTokens = map[string]bool{
	"i": true, "me": true, "my": true, "mine": true, "we": true,
	"us": true, "our": true, "you": true, "your": true,
}

// looksLikeQuery reports whether the utterance asks for information that
// long-term memory could hold. A general-knowledge question ("what's the
// capital of France?") needs no historical context; only questions about
// the participants do.
func looksLikeQuery(s string) bool {
	trimmed := normalizeUtterance(s)
	if !strings.HasSuffix(trimmed, "?") && !hasAnyPrefix(trimmed, questionLeads) {
		return false
	}
	return mentionsParticipant(trimmed)
}

func mentionsParticipant(s string) bool {
	for _, w := range strings.Fields(s) {
		if participantTokens[strings.Trim(w, ".,!?;:'\"")] {
			return true
		}
	}
	return false
}
