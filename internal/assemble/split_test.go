package assemble

import "testing"

func TestSplitAtVerb(t *testing.T) {
	tests := []struct {
		name     string
		sentence string
		setup    string
		cont     string
		ok       bool
	}{
		{
			name:     "anchors on the first verb past the lead-in",
			sentence: "The regional utility said solar farms generate cheap power during summer.",
			setup:    "The regional utility said solar farms generate cheap power during",
			cont:     "summer.",
			ok:       true,
		},
		{
			name:     "falls back to an early verb when none follows the lead-in",
			sentence: "Solar panels convert sunlight into electricity for thousands of homes nearby.",
			setup:    "Solar panels convert sunlight into electricity",
			cont:     "for thousands of homes nearby.",
			ok:       true,
		},
		{
			name:     "skips verbs inside parentheses",
			sentence: "Solar energy (still growing fast) remains the cheapest new power source today.",
			setup:    "Solar energy (still growing fast) remains the cheapest new",
			cont:     "power source today.",
			ok:       true,
		},
		{
			name:     "verb too close to the end leaves the sentence whole",
			sentence: "Short sentences never split because the verb sits near the end.",
			ok:       false,
		},
		{
			name:     "no verb at all",
			sentence: "Beautiful blue mountains without any action words whatsoever.",
			ok:       false,
		},
		{
			name:     "title-case tokens are not verbs",
			sentence: "Rising Costs Took Everyone By Surprise",
			ok:       false,
		},
		{
			name:     "empty sentence",
			sentence: "",
			ok:       false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setup, cont, ok := SplitAtVerb(tt.sentence)
			if ok != tt.ok {
				t.Fatalf("SplitAtVerb(%q) ok = %v, want %v", tt.sentence, ok, tt.ok)
			}
			if !ok {
				return
			}
			if setup != tt.setup {
				t.Errorf("setup = %q, want %q", setup, tt.setup)
			}
			if cont != tt.cont {
				t.Errorf("continuation = %q, want %q", cont, tt.cont)
			}
		})
	}
}

func TestSplitHalvesRebuildTheSentence(t *testing.T) {
	sentence := "The regional utility said solar farms generate cheap power during summer."
	setup, cont, ok := SplitAtVerb(sentence)
	if !ok {
		t.Fatal("expected a split")
	}
	if rebuilt := setup + " " + cont; rebuilt != sentence {
		t.Errorf("halves do not rebuild the sentence: %q", rebuilt)
	}
}

func TestIsVerbLike(t *testing.T) {
	verbs := []string{"is", "said", "convert", "converts", "produces", "argued", "using", "remains"}
	for _, w := range verbs {
		if !isVerbLike(w) {
			t.Errorf("isVerbLike(%q) = false, want true", w)
		}
	}
	nonVerbs := []string{"solar", "panels", "glass", "electricity", "the", ""}
	for _, w := range nonVerbs {
		if isVerbLike(w) {
			t.Errorf("isVerbLike(%q) = true, want false", w)
		}
	}
}

func TestBracketedTokens(t *testing.T) {
	got := bracketedTokens([]string{"solar", "(PV)", "arrays", "(are", "cheap)", "now"})
	want := []bool{false, true, false, true, true, false}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d bracketed = %v, want %v", i, got[i], want[i])
		}
	}
}
