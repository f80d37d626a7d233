package assemble

import (
	"strings"
	"unicode"
)

// continuationSpan is how many tokens after the anchor verb stay in the
// setup half. The verb plus this span gives the setup enough of the
// predicate to read as an open-ended completion prompt.
const continuationSpan = 3

// minLeadTokens is how many leading tokens are passed over before verb
// anchoring starts. Verbs inside the first few tokens usually sit in a
// subordinate opener rather than the main clause.
const minLeadTokens = 6

// verbLexicon holds base forms and irregular inflections of common
// verbs. Regular -s, -ed and -ing inflections are recognized by suffix,
// so only bases and irregulars are listed.
var verbLexicon = makeSet(
	// be, have, do and the modals
	"be", "am", "is", "are", "was", "were", "been", "being",
	"have", "has", "had", "do", "does", "did",
	"can", "could", "will", "would", "shall", "should", "may", "might", "must",
	// frequent irregulars, base and past
	"say", "said", "make", "made", "go", "went", "take", "took",
	"come", "came", "see", "saw", "know", "knew", "get", "got",
	"give", "gave", "find", "found", "think", "thought", "tell", "told",
	"become", "became", "show", "leave", "left", "feel", "felt",
	"put", "bring", "brought", "begin", "began", "keep", "kept",
	"hold", "held", "write", "wrote", "stand", "stood", "hear", "heard",
	"let", "mean", "meant", "set", "meet", "met", "run", "ran",
	"pay", "paid", "sit", "sat", "speak", "spoke", "lead", "led",
	"read", "grow", "grew", "lose", "lost", "fall", "fell",
	"send", "sent", "build", "built", "break", "broke", "spend", "spent",
	"cut", "rise", "rose", "drive", "drove", "buy", "bought",
	"wear", "wore", "choose", "chose",
	// frequent regular bases
	"use", "remain", "seem", "provide", "convert", "produce", "generate",
	"store", "supply", "cost", "argue", "report", "claim", "state",
	"describe", "cover", "include", "require", "consume", "deliver",
	"expand", "reduce", "increase", "operate", "offer", "cause",
	"create", "allow", "add", "change", "turn", "start", "help", "need",
	"want", "work", "call", "move", "play", "live", "believe", "happen",
)

func makeSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// SplitAtVerb splits a sentence into a setup half and a continuation
// half at the first verb-anchored break point: the first verb-like
// token past the lead-in (falling back to the first one anywhere),
// skipping tokens inside parentheses and title-case tokens, with the
// break placed after the verb and its following span. Returns ok only
// when both halves are non-empty.
func SplitAtVerb(sentence string) (setup, continuation string, ok bool) {
	tokens := strings.Fields(sentence)
	if len(tokens) == 0 {
		return sentence, "", false
	}
	bracketed := bracketedTokens(tokens)

	verbIdx := -1
	for i, tok := range tokens {
		if i >= minLeadTokens && isAnchorVerb(tok, bracketed[i]) {
			verbIdx = i
			break
		}
	}
	if verbIdx == -1 {
		for i, tok := range tokens {
			if isAnchorVerb(tok, bracketed[i]) {
				verbIdx = i
				break
			}
		}
	}
	if verbIdx == -1 {
		return sentence, "", false
	}

	split := verbIdx + continuationSpan + 1
	if split >= len(tokens) {
		return sentence, "", false
	}
	return strings.Join(tokens[:split], " "), strings.Join(tokens[split:], " "), true
}

// bracketedTokens marks tokens that sit inside parentheses. A token
// that opens a group counts as inside it.
func bracketedTokens(tokens []string) []bool {
	in := make([]bool, len(tokens))
	depth := 0
	for i, tok := range tokens {
		if depth > 0 || strings.HasPrefix(tok, "(") {
			in[i] = true
		}
		depth += strings.Count(tok, "(") - strings.Count(tok, ")")
		if depth < 0 {
			depth = 0
		}
	}
	return in
}

func isAnchorVerb(token string, bracketed bool) bool {
	if bracketed {
		return false
	}
	word := strings.TrimFunc(token, func(r rune) bool { return !unicode.IsLetter(r) })
	if word == "" || isTitleCase(word) {
		return false
	}
	return isVerbLike(strings.ToLower(word))
}

// isVerbLike classifies a lowercase word as a verb: either a lexicon
// hit, a regular -ed or -ing inflection, or a third-person -s or -es
// inflection of a lexicon base.
func isVerbLike(w string) bool {
	if _, ok := verbLexicon[w]; ok {
		return true
	}
	if len(w) >= 4 && strings.HasSuffix(w, "ed") {
		return true
	}
	if len(w) >= 5 && strings.HasSuffix(w, "ing") {
		return true
	}
	if len(w) >= 4 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") {
		if _, ok := verbLexicon[strings.TrimSuffix(w, "s")]; ok {
			return true
		}
		if strings.HasSuffix(w, "es") {
			if _, ok := verbLexicon[strings.TrimSuffix(w, "es")]; ok {
				return true
			}
		}
	}
	return false
}

// isTitleCase reports whether the word looks like a proper noun: an
// uppercase first letter with no uppercase letters after it.
func isTitleCase(word string) bool {
	for i, r := range word {
		if i == 0 {
			if !unicode.IsUpper(r) {
				return false
			}
			continue
		}
		if unicode.IsUpper(r) {
			return false
		}
	}
	return word != ""
}
