// Package keywords expands a concept into the keyword list that drives
// sentence filtering and root keyword detection. The concept term is
// always the first keyword; the rest come from the configured method:
// a manual list, embedding similarity against the source vocabulary, or
// repeated language model inquiries.
package keywords

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"saged/internal/config"
	"saged/internal/embedding"
	"saged/internal/llm"
	"saged/internal/logging"
)

// Method names accepted in a keyword config.
const (
	MethodManual    = "manual"
	MethodEmbedding = "embedding"
	MethodLLM       = "llm"
)

// DefaultKeywordNumber is how many expanded keywords to keep when the
// config leaves keyword_number unset.
const DefaultKeywordNumber = 7

// vocabularyHeadroom widens the first similarity cut so that redundant
// longer forms can be dropped before the final keyword count is taken.
const vocabularyHeadroom = 20

var wordPattern = regexp.MustCompile(`\w+`)

// Finder produces keyword lists. Both collaborators are optional: the
// comparer is needed only for the embedding method and similarity
// ranking, the client only for the llm method.
type Finder struct {
	llmClient llm.Client
	comparer  *embedding.Comparer
}

// NewFinder returns a Finder over the given collaborators, either of
// which may be nil.
func NewFinder(llmClient llm.Client, comparer *embedding.Comparer) *Finder {
	return &Finder{llmClient: llmClient, comparer: comparer}
}

// Find returns the keywords for concept. The result always starts with
// the concept itself and contains no case-insensitive duplicates. When
// the config does not require expansion the concept is the whole list.
// The sentences are the candidate vocabulary for the embedding method
// and are ignored by the others.
func (f *Finder) Find(ctx context.Context, concept, domain string, cfg config.KeywordConfig, sentences []string) ([]string, error) {
	concept = strings.TrimSpace(concept)
	if concept == "" {
		return nil, fmt.Errorf("empty concept")
	}
	if !cfg.Require {
		return []string{concept}, nil
	}

	n := cfg.KeywordNumber
	if n <= 0 {
		n = DefaultKeywordNumber
	}

	var (
		expanded []string
		err      error
	)
	switch cfg.Method {
	case "", MethodManual:
		expanded = cfg.Manual
	case MethodEmbedding:
		expanded, err = f.expandByEmbedding(ctx, concept, n, sentences)
	case MethodLLM:
		expanded, err = f.expandByInquiries(ctx, concept, domain, n, cfg.LLMRuns)
	default:
		return nil, fmt.Errorf("unsupported keyword method: %s", cfg.Method)
	}
	if err != nil {
		return nil, err
	}

	keywords := prepend(concept, expanded)
	logging.Keywords("Resolved %d keywords for %s via %s", len(keywords), concept, cfg.Method)
	return keywords, nil
}

// expandByEmbedding ranks the source vocabulary by embedding distance
// to the concept and keeps the n closest terms, dropping redundant
// longer forms first.
func (f *Finder) expandByEmbedding(ctx context.Context, concept string, n int, sentences []string) ([]string, error) {
	if f.comparer == nil {
		return nil, fmt.Errorf("embedding keyword expansion requires an embedding engine")
	}
	vocab := Vocabulary(sentences)
	if len(vocab) == 0 {
		return nil, fmt.Errorf("no candidate vocabulary for %s", concept)
	}

	timer := logging.StartTimer(logging.CategoryKeywords, "embedding expansion")
	defer timer.Stop()

	// Rank twice as many candidates as needed so the non-containing
	// filter has something left to cut from.
	matches, err := f.comparer.TopK(ctx, strings.ToLower(concept), vocab, n*2+vocabularyHeadroom)
	if err != nil {
		return nil, fmt.Errorf("ranking vocabulary for %s: %w", concept, err)
	}

	ranked := make([]string, 0, len(matches))
	for _, m := range matches {
		ranked = append(ranked, m.Term)
	}
	keep := NonContaining(ranked)

	var out []string
	for _, term := range ranked {
		if len(out) >= n {
			break
		}
		if keep[term] && !strings.EqualFold(term, concept) {
			out = append(out, term)
		}
	}
	return out, nil
}

// Vocabulary returns the sorted unique lowercase tokens of the
// sentences. Sorting keeps downstream embedding calls and rankings
// deterministic for the same input.
func Vocabulary(sentences []string) []string {
	seen := make(map[string]struct{})
	for _, s := range sentences {
		for _, tok := range wordPattern.FindAllString(strings.ToLower(s), -1) {
			seen[tok] = struct{}{}
		}
	}
	vocab := make([]string, 0, len(seen))
	for tok := range seen {
		vocab = append(vocab, tok)
	}
	sort.Strings(vocab)
	return vocab
}

// NonContaining reports which terms to keep after dropping every term
// that contains another candidate as a substring. A sentence matching
// the longer form already matches the shorter one, so the longer form
// adds nothing to filtering. Comparison is case-insensitive and the
// shortest form of each family wins.
func NonContaining(terms []string) map[string]bool {
	bySize := make([]string, len(terms))
	copy(bySize, terms)
	sort.Slice(bySize, func(i, j int) bool {
		if len(bySize[i]) != len(bySize[j]) {
			return len(bySize[i]) < len(bySize[j])
		}
		return bySize[i] < bySize[j]
	})

	keep := make(map[string]bool, len(terms))
	for _, t := range bySize {
		lt := strings.ToLower(t)
		contained := false
		for k := range keep {
			if strings.Contains(lt, strings.ToLower(k)) {
				contained = true
				break
			}
		}
		if !contained {
			keep[t] = true
		}
	}
	return keep
}

// prepend puts the concept first and appends the expanded keywords,
// dropping blanks and case-insensitive duplicates in order.
func prepend(concept string, keywords []string) []string {
	out := []string{concept}
	seen := map[string]bool{strings.ToLower(concept): true}
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		lk := strings.ToLower(k)
		if seen[lk] {
			continue
		}
		seen[lk] = true
		out = append(out, k)
	}
	return out
}
