package branching

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"saged/internal/descriptor"
)

// compiledRule is one descriptor entry with its match pattern built.
type compiledRule struct {
	re          *regexp.Regexp
	replacement string
}

// compileRules turns a descriptor set's entries into match rules.
// Matching is case-insensitive and whole-word: the keyword is quoted
// and fenced with word boundaries, so "solar" never fires inside
// "solarium". Multi-word keywords match as whole phrases.
func compileRules(entries []descriptor.Entry) []compiledRule {
	rules := make([]compiledRule, 0, len(entries))
	for _, e := range entries {
		if e.Keyword == "" {
			continue
		}
		re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(e.Keyword) + `\b`)
		rules = append(rules, compiledRule{re: re, replacement: e.Replacement})
	}
	return rules
}

type span struct {
	start, end int
	text       string
}

// applyRules rewrites text under the substitution policy: rules claim
// spans in list order, the first rule to claim a span wins, and claimed
// spans are never re-matched because all matching runs against the
// original text. Returns the rewritten text and the number of spans
// substituted.
func applyRules(text string, rules []compiledRule) (string, int) {
	var spans []span
	for _, rule := range rules {
		for _, loc := range rule.re.FindAllStringIndex(text, -1) {
			if overlapsClaimed(spans, loc[0], loc[1]) {
				continue
			}
			matched := text[loc[0]:loc[1]]
			spans = append(spans, span{start: loc[0], end: loc[1], text: carryCase(matched, rule.replacement)})
		}
	}
	if len(spans) == 0 {
		return text, 0
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, s := range spans {
		b.WriteString(text[last:s.start])
		b.WriteString(s.text)
		last = s.end
	}
	b.WriteString(text[last:])
	return b.String(), len(spans)
}

func overlapsClaimed(spans []span, start, end int) bool {
	for _, s := range spans {
		if start < s.end && end > s.start {
			return true
		}
	}
	return false
}

// carryCase copies the matched span's leading capitalization onto the
// replacement, so a sentence-initial match stays sentence-initial.
func carryCase(matched, replacement string) string {
	if matched == "" || replacement == "" {
		return replacement
	}
	first, _ := utf8.DecodeRuneInString(matched)
	if !unicode.IsUpper(first) {
		return replacement
	}
	r, size := utf8.DecodeRuneInString(replacement)
	return string(unicode.ToUpper(r)) + replacement[size:]
}
