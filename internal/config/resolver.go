package config

import (
	"saged/internal/logging"
)

// EffectiveConceptConfig is one concept's configuration after merging
// shared defaults with that concept's override.
type EffectiveConceptConfig struct {
	Concept  string        `json:"concept"`
	Keywords KeywordConfig `json:"keywords"`
	Source   SourceConfig  `json:"source"`
	Prompt   PromptConfig  `json:"prompt"`
}

// Resolver merges shared and concept-specific configuration. The merge
// is per leaf: an override field replaces exactly the leaf it names,
// siblings inherit from shared unchanged.
type Resolver struct{}

// NewResolver creates a config resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve validates the domain config and produces the effective
// configuration for every concept, in no particular map order.
// Fails with a config validation error before any concept work starts.
func (r *Resolver) Resolve(dc *DomainConfig) (map[string]EffectiveConceptConfig, error) {
	if err := dc.Validate(); err != nil {
		return nil, err
	}

	resolved := make(map[string]EffectiveConceptConfig, len(dc.Concepts))
	for _, concept := range dc.Concepts {
		eff := EffectiveConceptConfig{
			Concept:  concept,
			Keywords: copyKeywords(dc.Shared.Keywords),
			Source:   copySource(dc.Shared.Source),
			Prompt:   dc.Shared.Prompt,
		}

		if ov, ok := dc.ConceptOverrides[concept]; ok {
			applyKeywordOverride(&eff.Keywords, ov.Keywords)
			applySourceOverride(&eff.Source, ov.Source)
			applyPromptOverride(&eff.Prompt, ov.Prompt)
			logging.ConfigDebug("concept %s: override applied", concept)
		}

		resolved[concept] = eff
	}

	logging.Config("resolved %d concept configs for domain %s", len(resolved), dc.Domain)
	return resolved, nil
}

// copyKeywords clones the shared keyword config so concept-level slice
// mutations never alias the shared slices.
func copyKeywords(kc KeywordConfig) KeywordConfig {
	kc.Manual = copyStrings(kc.Manual)
	return kc
}

func copySource(sc SourceConfig) SourceConfig {
	sc.Paths = copyStrings(sc.Paths)
	sc.Sentences = copyStrings(sc.Sentences)
	return sc
}

func copyStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

func applyKeywordOverride(kc *KeywordConfig, ov *KeywordOverride) {
	if ov == nil {
		return
	}
	if ov.Require != nil {
		kc.Require = *ov.Require
	}
	if ov.Method != nil {
		kc.Method = *ov.Method
	}
	if ov.KeywordNumber != nil {
		kc.KeywordNumber = *ov.KeywordNumber
	}
	if ov.Manual != nil {
		kc.Manual = copyStrings(ov.Manual)
	}
	if ov.LLMRuns != nil {
		kc.LLMRuns = *ov.LLMRuns
	}
}

func applySourceOverride(sc *SourceConfig, ov *SourceOverride) {
	if ov == nil {
		return
	}
	if ov.Provider != nil {
		sc.Provider = *ov.Provider
	}
	if ov.Paths != nil {
		sc.Paths = copyStrings(ov.Paths)
	}
	if ov.Sentences != nil {
		sc.Sentences = copyStrings(ov.Sentences)
	}
	if ov.MinWords != nil {
		sc.MinWords = *ov.MinWords
	}
	if ov.MaxSentences != nil {
		sc.MaxSentences = *ov.MaxSentences
	}
}

func applyPromptOverride(pc *PromptConfig, ov *PromptOverride) {
	if ov == nil {
		return
	}
	if ov.Method != nil {
		pc.Method = *ov.Method
	}
	if ov.UseLLM != nil {
		pc.UseLLM = *ov.UseLLM
	}
	if ov.LLMRetries != nil {
		pc.LLMRetries = *ov.LLMRetries
	}
}
