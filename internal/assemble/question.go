package assemble

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"saged/internal/logging"
)

// DefaultQuestionRetries is how many model rewrites are attempted
// before falling back to deterministic inversion.
const DefaultQuestionRetries = 2

// auxiliaries are the tokens subject-auxiliary inversion can front.
var auxiliaries = makeSet(
	"is", "are", "was", "were", "am",
	"has", "have", "had",
	"do", "does", "did",
	"can", "could", "will", "would", "shall", "should", "may", "might", "must",
)

// InvertToQuestion rewrites a declarative sentence into a yes/no
// question by fronting its first auxiliary. Tokens are only reordered,
// never dropped or rewritten, so the sentence's words all survive.
// Returns ok false when the sentence has no auxiliary to front or
// already starts with one.
func InvertToQuestion(sentence string) (string, bool) {
	tokens := strings.Fields(sentence)
	auxIdx := -1
	for i, tok := range tokens {
		if _, ok := auxiliaries[strings.ToLower(tok)]; ok {
			auxIdx = i
			break
		}
	}
	if auxIdx <= 0 {
		return sentence, false
	}

	subject := tokens[:auxIdx]
	rest := append([]string{}, tokens[auxIdx+1:]...)
	if len(rest) == 0 {
		return sentence, false
	}
	last := strings.TrimRight(rest[len(rest)-1], ".")
	if last == "" {
		rest = rest[:len(rest)-1]
		if len(rest) == 0 {
			return sentence, false
		}
		last = rest[len(rest)-1]
	}
	rest[len(rest)-1] = last + "?"

	parts := make([]string, 0, len(tokens)+1)
	parts = append(parts, capitalize(tokens[auxIdx]))
	parts = append(parts, subject...)
	parts = append(parts, rest...)
	return strings.Join(parts, " "), true
}

func capitalize(word string) string {
	r, size := utf8.DecodeRuneInString(word)
	if r == utf8.RuneError {
		return word
	}
	return string(unicode.ToUpper(r)) + word[size:]
}

// rewriteAsQuestion asks the language model for a question that the
// sentence answers, keeping the keyword present. Each attempt that
// errors, answers NO, drops the keyword or fails to end in a question
// mark is discarded.
func (t *Transformer) rewriteAsQuestion(ctx context.Context, sentence, keyword string) (string, error) {
	attempts := t.cfg.LLMRetries
	if attempts <= 0 {
		attempts = DefaultQuestionRetries
	}

	prompt := questionPrompt(sentence, keyword)
	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		answer, err := t.client.Complete(ctx, prompt)
		if err != nil {
			lastErr = err
			continue
		}
		answer = strings.TrimSpace(strings.Trim(strings.TrimSpace(answer), `"`))
		if answer == "" || strings.EqualFold(answer, "NO") {
			lastErr = fmt.Errorf("model declined to write a question")
			continue
		}
		if !strings.HasSuffix(answer, "?") {
			lastErr = fmt.Errorf("rewrite is not a question: %q", answer)
			continue
		}
		if keyword != "" && !containsFold(answer, keyword) {
			lastErr = fmt.Errorf("rewrite dropped the keyword %q", keyword)
			continue
		}
		logging.AssembleDebug("Question rewrite accepted on attempt %d", i+1)
		return answer, nil
	}
	return "", fmt.Errorf("no usable question after %d attempts: %w", attempts, lastErr)
}

func questionPrompt(sentence, keyword string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Write a question such that the sentence '''%s''' is an accurate answer to it.", sentence)
	if keyword != "" {
		fmt.Fprintf(&sb, " The question must mention '%s' at least once.", keyword)
	}
	sb.WriteString(" Keep the question generic: no names, dates or details that belong only to this particular sentence.")
	sb.WriteString(" If you cannot write such a question, output NO.")
	sb.WriteString(" Otherwise output the question alone with no notes, quotes or extra lines.")
	return sb.String()
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
