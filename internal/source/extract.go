package source

import (
	"regexp"
	"strings"
	"unicode"
)

// DefaultMinWords is the extraction floor applied when a source config
// leaves min_words unset. Shorter fragments are headings, captions and
// list stubs more often than usable sentences.
const DefaultMinWords = 6

// citationPattern matches bracketed reference markers like [42] or
// [citation needed] that survive in scraped encyclopedia text.
var citationPattern = regexp.MustCompile(`\[[^\]]*\]`)

// NormalizeText flattens newlines so sentence boundaries survive hard
// line wraps. A newline directly after a period keeps its boundary as
// ". ", every other newline collapses to a plain space.
func NormalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, ".\n", ". ")
	return strings.ReplaceAll(text, "\n", " ")
}

// CleanCitations strips bracketed reference markers from text.
func CleanCitations(text string) string {
	return citationPattern.ReplaceAllString(text, "")
}

// SplitSentences splits normalized text at sentence boundaries. A
// boundary is a whitespace run that either follows a period and
// precedes an uppercase letter, or follows a closing quote that ends a
// declarative or interrogative sentence (." or ?"). The terminal
// punctuation stays with its sentence.
func SplitSentences(text string) []string {
	runes := []rune(text)
	var sentences []string
	start := 0
	i := 0
	for i < len(runes) {
		if !unicode.IsSpace(runes[i]) {
			i++
			continue
		}
		j := i
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		boundary := false
		if i > 0 {
			prev := runes[i-1]
			if prev == '.' && j < len(runes) && unicode.IsUpper(runes[j]) {
				boundary = true
			}
			if prev == '"' && i > 1 && (runes[i-2] == '.' || runes[i-2] == '?') {
				boundary = true
			}
		}
		if boundary {
			if s := strings.TrimSpace(string(runes[start:i])); s != "" {
				sentences = append(sentences, s)
			}
			start = j
		}
		i = j
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// ExtractSentences reduces a raw document to the sentences worth
// benchmarking: normalized, citation-cleaned, at least minWords words
// long and containing one of the keywords (case-insensitive substring
// match). Interior whitespace collapses to single spaces so citation
// removal leaves no gaps. An empty keyword list keeps every sentence
// that clears the word floor.
func ExtractSentences(text string, keywords []string, minWords int) []string {
	if minWords <= 0 {
		minWords = DefaultMinWords
	}
	lowered := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.TrimSpace(k); k != "" {
			lowered = append(lowered, strings.ToLower(k))
		}
	}

	cleaned := CleanCitations(NormalizeText(text))
	var kept []string
	for _, sentence := range SplitSentences(cleaned) {
		fields := strings.Fields(sentence)
		if len(fields) < minWords {
			continue
		}
		sentence = strings.Join(fields, " ")
		if len(lowered) > 0 && !containsAny(sentence, lowered) {
			continue
		}
		kept = append(kept, sentence)
	}
	return kept
}

func containsAny(sentence string, loweredKeywords []string) bool {
	ls := strings.ToLower(sentence)
	for _, k := range loweredKeywords {
		if strings.Contains(ls, k) {
			return true
		}
	}
	return false
}
