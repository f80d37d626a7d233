package config

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saged/internal/benchmark"
)

func sharedForResolverTests() SharedConfig {
	return SharedConfig{
		Keywords: KeywordConfig{
			Require:       true,
			Method:        "embedding",
			KeywordNumber: 7,
			Manual:        []string{"seed"},
			LLMRuns:       20,
		},
		Source: SourceConfig{
			Provider:     "files",
			Paths:        []string{"corpus/"},
			MinWords:     6,
			MaxSentences: 50,
		},
		Prompt: PromptConfig{
			Method:     "split_sentences",
			UseLLM:     false,
			LLMRetries: 2,
		},
	}
}

// With no overrides, every concept's effective config equals the shared
// config exactly.
func TestResolveNoOverridesEqualsShared(t *testing.T) {
	dc := &DomainConfig{
		Domain:   "energy",
		Concepts: []string{"solar", "wind", "hydro"},
		Shared:   sharedForResolverTests(),
	}

	resolved, err := NewResolver().Resolve(dc)
	require.NoError(t, err)
	require.Len(t, resolved, 3)

	for _, concept := range dc.Concepts {
		eff, ok := resolved[concept]
		require.True(t, ok, "missing concept %s", concept)
		assert.Equal(t, concept, eff.Concept)

		if diff := cmp.Diff(dc.Shared.Keywords, eff.Keywords); diff != "" {
			t.Errorf("keywords mismatch for %s (-shared +effective):\n%s", concept, diff)
		}
		if diff := cmp.Diff(dc.Shared.Source, eff.Source); diff != "" {
			t.Errorf("source mismatch for %s (-shared +effective):\n%s", concept, diff)
		}
		if diff := cmp.Diff(dc.Shared.Prompt, eff.Prompt); diff != "" {
			t.Errorf("prompt mismatch for %s (-shared +effective):\n%s", concept, diff)
		}
	}
}

// An override that sets a single leaf leaves every sibling leaf at the
// shared default: this is a deep merge, not replace-whole-object.
func TestResolveSingleLeafOverridePreservesSiblings(t *testing.T) {
	method := "questions"
	dc := &DomainConfig{
		Domain:   "energy",
		Concepts: []string{"solar", "wind"},
		Shared:   sharedForResolverTests(),
		ConceptOverrides: map[string]ConceptOverride{
			"solar": {Prompt: &PromptOverride{Method: &method}},
		},
	}

	resolved, err := NewResolver().Resolve(dc)
	require.NoError(t, err)

	solar := resolved["solar"]
	assert.Equal(t, "questions", solar.Prompt.Method, "overridden leaf")
	assert.Equal(t, dc.Shared.Prompt.UseLLM, solar.Prompt.UseLLM, "sibling leaf inherited")
	assert.Equal(t, dc.Shared.Prompt.LLMRetries, solar.Prompt.LLMRetries, "sibling leaf inherited")

	// Sections the override never mentioned are untouched
	if diff := cmp.Diff(dc.Shared.Keywords, solar.Keywords); diff != "" {
		t.Errorf("keywords should be fully inherited:\n%s", diff)
	}
	if diff := cmp.Diff(dc.Shared.Source, solar.Source); diff != "" {
		t.Errorf("source should be fully inherited:\n%s", diff)
	}

	// The concept without an override is untouched
	wind := resolved["wind"]
	assert.Equal(t, "split_sentences", wind.Prompt.Method)
}

func TestResolveExplicitZeroOverride(t *testing.T) {
	// A pointer leaf set to the zero value is an override, not inheritance
	off := false
	zero := 0
	dc := &DomainConfig{
		Domain:   "energy",
		Concepts: []string{"solar"},
		Shared:   sharedForResolverTests(),
		ConceptOverrides: map[string]ConceptOverride{
			"solar": {
				Keywords: &KeywordOverride{Require: &off},
				Source:   &SourceOverride{MaxSentences: &zero},
			},
		},
	}

	resolved, err := NewResolver().Resolve(dc)
	require.NoError(t, err)

	solar := resolved["solar"]
	assert.False(t, solar.Keywords.Require)
	assert.Equal(t, 0, solar.Source.MaxSentences)
	// Siblings intact
	assert.Equal(t, "embedding", solar.Keywords.Method)
	assert.Equal(t, []string{"corpus/"}, solar.Source.Paths)
}

func TestResolveSliceOverrideReplacesWhole(t *testing.T) {
	dc := &DomainConfig{
		Domain:   "energy",
		Concepts: []string{"solar"},
		Shared:   sharedForResolverTests(),
		ConceptOverrides: map[string]ConceptOverride{
			"solar": {
				Keywords: &KeywordOverride{Manual: []string{"photovoltaic", "pv"}},
			},
		},
	}

	resolved, err := NewResolver().Resolve(dc)
	require.NoError(t, err)
	assert.Equal(t, []string{"photovoltaic", "pv"}, resolved["solar"].Keywords.Manual)
}

func TestResolveDoesNotAliasSharedSlices(t *testing.T) {
	dc := &DomainConfig{
		Domain:   "energy",
		Concepts: []string{"solar", "wind"},
		Shared:   sharedForResolverTests(),
	}

	resolved, err := NewResolver().Resolve(dc)
	require.NoError(t, err)

	// Mutating one concept's copy must not leak into another's
	solar := resolved["solar"]
	solar.Keywords.Manual[0] = "tampered"
	assert.Equal(t, "seed", resolved["wind"].Keywords.Manual[0])
	assert.Equal(t, "seed", dc.Shared.Keywords.Manual[0])
}

func TestResolveInvalidConfigFailsPreFlight(t *testing.T) {
	dc := &DomainConfig{
		Domain:   "",
		Concepts: []string{"solar"},
	}

	_, err := NewResolver().Resolve(dc)
	require.Error(t, err)
	assert.Equal(t, benchmark.KindConfigValidation, benchmark.KindOf(err))
}
