package branching

import (
	"testing"

	"saged/internal/descriptor"
)

func rules(entries ...descriptor.Entry) []compiledRule {
	return compileRules(entries)
}

func TestApplyRulesMatchesWholeWordsOnly(t *testing.T) {
	got, hits := applyRules(
		"Solar panels absorb solar energy while the solarium stays warm.",
		rules(descriptor.Entry{Keyword: "solar", Replacement: "wind"}),
	)

	want := "Wind panels absorb wind energy while the solarium stays warm."
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if hits != 2 {
		t.Errorf("hits = %d, want 2 (solarium must not match)", hits)
	}
}

func TestApplyRulesEarlierRuleWinsOverlappingSpans(t *testing.T) {
	got, hits := applyRules(
		"Solar energy is cheap. Solar is cheap.",
		rules(
			descriptor.Entry{Keyword: "solar energy", Replacement: "wind power"},
			descriptor.Entry{Keyword: "solar", Replacement: "wind"},
		),
	)

	want := "Wind power is cheap. Wind is cheap."
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if hits != 2 {
		t.Errorf("hits = %d, want 2", hits)
	}
}

func TestApplyRulesNeverRematchesSubstitutedText(t *testing.T) {
	// coal -> solar runs first; the freshly written "Solar" must not be
	// picked up by the later solar -> wind rule.
	got, _ := applyRules(
		"Coal beats solar.",
		rules(
			descriptor.Entry{Keyword: "coal", Replacement: "solar"},
			descriptor.Entry{Keyword: "solar", Replacement: "wind"},
		),
	)

	want := "Solar beats wind."
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestApplyRulesCarriesLeadingCapitalization(t *testing.T) {
	cases := []struct {
		name        string
		text        string
		replacement string
		want        string
	}{
		{"sentence initial", "Solar is booming.", "wind", "Wind is booming."},
		{"mid sentence", "All solar is booming.", "wind", "All wind is booming."},
		{"multi-word replacement", "Solar is booming.", "wind power", "Wind power is booming."},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, _ := applyRules(tc.text, rules(descriptor.Entry{Keyword: "solar", Replacement: tc.replacement}))
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestApplyRulesNoMatchReturnsOriginal(t *testing.T) {
	text := "Coal plants are closing."
	got, hits := applyRules(text, rules(descriptor.Entry{Keyword: "solar", Replacement: "wind"}))
	if got != text || hits != 0 {
		t.Errorf("got %q (%d hits), want the untouched input", got, hits)
	}
}

func TestApplyRulesMultiWordKeyword(t *testing.T) {
	got, hits := applyRules(
		"Rooftop solar panels spread fast.",
		rules(descriptor.Entry{Keyword: "solar panels", Replacement: "wind turbines"}),
	)
	if got != "Rooftop wind turbines spread fast." || hits != 1 {
		t.Errorf("got %q (%d hits)", got, hits)
	}
}

func TestCarryCase(t *testing.T) {
	cases := []struct {
		matched, replacement, want string
	}{
		{"Solar", "wind", "Wind"},
		{"solar", "wind", "wind"},
		{"solar", "Wind", "Wind"},
		{"", "wind", "wind"},
		{"Solar", "", ""},
	}
	for _, tc := range cases {
		if got := carryCase(tc.matched, tc.replacement); got != tc.want {
			t.Errorf("carryCase(%q, %q) = %q, want %q", tc.matched, tc.replacement, got, tc.want)
		}
	}
}
