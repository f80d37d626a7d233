package keywords

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"saged/internal/logging"
)

// DefaultInquiryRuns is how many inquiry rounds the llm method makes
// when the config leaves llm_runs unset.
const DefaultInquiryRuns = 20

// inquiryKind names one angle of the keyword inquiry prompt.
type inquiryKind string

const (
	inquiryRoots           inquiryKind = "roots"
	inquirySubcategories   inquiryKind = "subcategories"
	inquiryCharacteristics inquiryKind = "characteristics"
	inquirySynonyms        inquiryKind = "synonyms"
	inquiryPeople          inquiryKind = "people"
	inquiryPeopleShort     inquiryKind = "people_short"
)

// inquiryRotation cycles through the prompt angles across runs, so
// repeated runs probe the concept from different directions.
var inquiryRotation = []inquiryKind{
	inquirySubcategories,
	inquiryCharacteristics,
	inquirySynonyms,
	inquiryPeople,
	inquiryPeopleShort,
}

func inquiryPrompt(kind inquiryKind, concept, domain string) string {
	const suffix = "Answer with a JSON array of strings only and nothing else."
	switch kind {
	case inquiryRoots:
		return fmt.Sprintf("Given %s under the topic %s, provide a list of words that share the same grammatical root as %s. %s", concept, domain, concept, suffix)
	case inquirySubcategories:
		return fmt.Sprintf("Given %s under the topic %s, provide a list of sub-categories of %s. %s", concept, domain, concept, suffix)
	case inquiryCharacteristics:
		return fmt.Sprintf("Given %s under the topic %s, provide a list of characteristics that are necessary to %s. %s", concept, domain, concept, suffix)
	case inquirySynonyms:
		return fmt.Sprintf("Given %s under the topic %s, provide a list of synonyms of %s. %s", concept, domain, concept, suffix)
	case inquiryPeople:
		return fmt.Sprintf("Given %s under the topic %s, provide a list of famous names that are representative of %s. %s", concept, domain, concept, suffix)
	case inquiryPeopleShort:
		return fmt.Sprintf("Given %s under the topic %s, provide a list of famous names representative of %s, using the short family names they are identified by in context. %s", concept, domain, concept, suffix)
	}
	return fmt.Sprintf("Provide a list of keywords related to %s under the topic %s. %s", concept, domain, suffix)
}

// expandByInquiries asks the language model for related terms over
// several runs, unions the answers, drops redundant longer forms and
// keeps the n terms closest to the concept. Individual failed runs are
// logged and skipped; only a fully failed round trip is an error.
func (f *Finder) expandByInquiries(ctx context.Context, concept, domain string, n, runs int) ([]string, error) {
	if f.llmClient == nil {
		return nil, fmt.Errorf("llm keyword expansion requires a language model client")
	}
	if runs <= 0 {
		runs = DefaultInquiryRuns
	}

	timer := logging.StartTimer(logging.CategoryKeywords, "llm expansion")
	defer timer.Stop()

	set := make(map[string]string) // lowercase -> first seen casing
	add := func(terms []string) {
		for _, t := range terms {
			t = strings.TrimSpace(t)
			if t == "" {
				continue
			}
			if lt := strings.ToLower(t); set[lt] == "" {
				set[lt] = t
			}
		}
	}

	failed := 0
	for i := 0; i < runs; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		kinds := []inquiryKind{inquiryRotation[i%len(inquiryRotation)]}
		if i < 2 {
			// Early runs also probe shared grammatical roots.
			kinds = append(kinds, inquiryRoots)
		}
		answered := false
		for _, kind := range kinds {
			terms, err := f.inquire(ctx, kind, concept, domain)
			if err != nil {
				logging.Get(logging.CategoryKeywords).Warn("Inquiry %d (%s) for %s failed: %v", i, kind, concept, err)
				continue
			}
			answered = true
			add(terms)
		}
		if !answered {
			failed++
		}
	}
	if failed == runs {
		return nil, fmt.Errorf("all %d keyword inquiries for %s failed", runs, concept)
	}

	merged := make([]string, 0, len(set))
	for _, original := range set {
		merged = append(merged, original)
	}
	sort.Strings(merged)

	keep := NonContaining(merged)
	var kept []string
	for _, t := range merged {
		if keep[t] && !strings.EqualFold(t, concept) {
			kept = append(kept, t)
		}
	}

	if len(kept) <= n {
		return kept, nil
	}
	return f.rankBySimilarity(ctx, concept, kept, n)
}

func (f *Finder) inquire(ctx context.Context, kind inquiryKind, concept, domain string) ([]string, error) {
	response, err := f.llmClient.Complete(ctx, inquiryPrompt(kind, concept, domain))
	if err != nil {
		return nil, err
	}
	terms, err := ParseTermList(response)
	if err != nil {
		return nil, fmt.Errorf("%s inquiry: %w", kind, err)
	}
	return terms, nil
}

// rankBySimilarity keeps the n terms closest to the concept. Without a
// comparer the alphabetical head is kept instead, which stays
// deterministic at the cost of relevance.
func (f *Finder) rankBySimilarity(ctx context.Context, concept string, terms []string, n int) ([]string, error) {
	if f.comparer == nil {
		logging.Get(logging.CategoryKeywords).Warn("No embedding engine to rank %d keyword candidates, keeping the first %d", len(terms), n)
		return terms[:n], nil
	}
	matches, err := f.comparer.TopK(ctx, strings.ToLower(concept), terms, n)
	if err != nil {
		return nil, fmt.Errorf("ranking keywords for %s: %w", concept, err)
	}
	ranked := make([]string, 0, len(matches))
	for _, m := range matches {
		ranked = append(ranked, m.Term)
	}
	return ranked, nil
}

// ParseTermList extracts a string list from a model response. The
// response should be a JSON array, possibly wrapped in a code fence or
// surrounding prose; a comma-separated line inside brackets is accepted
// as a fallback.
func ParseTermList(response string) ([]string, error) {
	cleaned := strings.TrimSpace(response)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	start := strings.Index(cleaned, "[")
	end := strings.LastIndex(cleaned, "]")
	if start == -1 || end <= start {
		return nil, fmt.Errorf("no list found in response")
	}
	body := cleaned[start : end+1]

	var terms []string
	if err := json.Unmarshal([]byte(body), &terms); err == nil {
		return compactTerms(terms), nil
	}

	// Tolerate single quotes and bare words between the brackets.
	var parts []string
	for _, p := range strings.Split(body[1:len(body)-1], ",") {
		p = strings.TrimSpace(p)
		p = strings.Trim(p, `"'`)
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("no terms found in response")
	}
	return parts, nil
}

func compactTerms(terms []string) []string {
	out := terms[:0]
	for _, t := range terms {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
