package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"saged/internal/benchmark"
)

// DomainConfig is the wire contract for one benchmark build request:
// a domain, its concepts, shared settings, per-concept overrides, and
// optional branching. Accepted as YAML or JSON (YAML is a superset).
type DomainConfig struct {
	Domain             string                     `yaml:"domain" json:"domain"`
	Concepts           []string                   `yaml:"concepts" json:"concepts"`
	Shared             SharedConfig               `yaml:"shared_config" json:"shared_config"`
	ConceptOverrides   map[string]ConceptOverride `yaml:"concept_overrides,omitempty" json:"concept_overrides,omitempty"`
	Branching          *BranchingConfig           `yaml:"branching_config,omitempty" json:"branching_config,omitempty"`
	MaxBenchmarkLength int                        `yaml:"max_benchmark_length" json:"max_benchmark_length"` // 0 = unlimited
}

// SharedConfig holds domain-wide defaults, inherited by every concept
// unless overridden.
type SharedConfig struct {
	Keywords KeywordConfig `yaml:"keywords" json:"keywords"`
	Source   SourceConfig  `yaml:"source" json:"source"`
	Prompt   PromptConfig  `yaml:"prompt" json:"prompt"`
}

// KeywordConfig controls how a concept's keyword list is produced.
type KeywordConfig struct {
	Require       bool     `yaml:"require" json:"require"`               // Expand beyond the concept term itself
	Method        string   `yaml:"method" json:"method"`                 // manual, embedding, llm
	KeywordNumber int      `yaml:"keyword_number" json:"keyword_number"` // How many keywords to keep
	Manual        []string `yaml:"manual,omitempty" json:"manual,omitempty"`
	LLMRuns       int      `yaml:"llm_runs" json:"llm_runs"` // Inquiry repetitions for the llm method
}

// SourceConfig controls where a concept's sentences come from.
type SourceConfig struct {
	Provider     string   `yaml:"provider" json:"provider"` // static, files
	Paths        []string `yaml:"paths,omitempty" json:"paths,omitempty"`
	Sentences    []string `yaml:"sentences,omitempty" json:"sentences,omitempty"` // Inline text for the static provider
	MinWords     int      `yaml:"min_words" json:"min_words"`                     // Sentence extraction floor
	MaxSentences int      `yaml:"max_sentences" json:"max_sentences"`             // 0 = unlimited
}

// PromptConfig controls sentence-to-prompt transformation.
type PromptConfig struct {
	Method     string `yaml:"method" json:"method"` // split_sentences, questions
	UseLLM     bool   `yaml:"use_llm" json:"use_llm"`
	LLMRetries int    `yaml:"llm_retries" json:"llm_retries"` // Rewrites attempted before falling back
}

// ConceptOverride is a partial config layered over SharedConfig for one
// concept. Pointer leaves distinguish "absent, inherit" from an explicit
// zero value. Slice leaves replace the shared slice when non-nil.
type ConceptOverride struct {
	Keywords *KeywordOverride `yaml:"keywords,omitempty" json:"keywords,omitempty"`
	Source   *SourceOverride  `yaml:"source,omitempty" json:"source,omitempty"`
	Prompt   *PromptOverride  `yaml:"prompt,omitempty" json:"prompt,omitempty"`
}

// KeywordOverride overrides individual KeywordConfig leaves.
type KeywordOverride struct {
	Require       *bool    `yaml:"require,omitempty" json:"require,omitempty"`
	Method        *string  `yaml:"method,omitempty" json:"method,omitempty"`
	KeywordNumber *int     `yaml:"keyword_number,omitempty" json:"keyword_number,omitempty"`
	Manual        []string `yaml:"manual,omitempty" json:"manual,omitempty"`
	LLMRuns       *int     `yaml:"llm_runs,omitempty" json:"llm_runs,omitempty"`
}

// SourceOverride overrides individual SourceConfig leaves.
type SourceOverride struct {
	Provider     *string  `yaml:"provider,omitempty" json:"provider,omitempty"`
	Paths        []string `yaml:"paths,omitempty" json:"paths,omitempty"`
	Sentences    []string `yaml:"sentences,omitempty" json:"sentences,omitempty"`
	MinWords     *int     `yaml:"min_words,omitempty" json:"min_words,omitempty"`
	MaxSentences *int     `yaml:"max_sentences,omitempty" json:"max_sentences,omitempty"`
}

// PromptOverride overrides individual PromptConfig leaves.
type PromptOverride struct {
	Method     *string `yaml:"method,omitempty" json:"method,omitempty"`
	UseLLM     *bool   `yaml:"use_llm,omitempty" json:"use_llm,omitempty"`
	LLMRetries *int    `yaml:"llm_retries,omitempty" json:"llm_retries,omitempty"`
}

// BranchingConfig controls counterfactual branching. A nil
// BranchingConfig on the DomainConfig disables branching entirely.
type BranchingConfig struct {
	Pairs               string           `yaml:"branching_pairs" json:"branching_pairs"` // all, not_all
	Direction           string           `yaml:"direction" json:"direction"`             // forward, backward, both
	DescriptorRequire   bool             `yaml:"replacement_descriptor_require" json:"replacement_descriptor_require"`
	DescriptorThreshold Threshold        `yaml:"descriptor_threshold" json:"descriptor_threshold"`
	DescriptorDistance  string           `yaml:"descriptor_distance" json:"descriptor_distance"` // cosine, euclidean
	KeepBaseline        bool             `yaml:"counterfactual_baseline" json:"counterfactual_baseline"`
	Descriptors         []DescriptorSpec `yaml:"replacement_descriptors,omitempty" json:"replacement_descriptors,omitempty"`
	DescriptorFiles     []string         `yaml:"descriptor_files,omitempty" json:"descriptor_files,omitempty"`
}

// DescriptorSpec is the wire form of one stem->branch replacement rule
// set. Pair order is substitution order.
type DescriptorSpec struct {
	Stem   string            `yaml:"stem" json:"stem"`
	Branch string            `yaml:"branch" json:"branch"`
	Pairs  []ReplacementPair `yaml:"pairs" json:"pairs"`
}

// ReplacementPair maps one keyword to its counterfactual replacement.
type ReplacementPair struct {
	Original    string `yaml:"original" json:"original"`
	Replacement string `yaml:"replacement" json:"replacement"`
}

// Threshold is a descriptor distance bound: either a literal number or
// the symbolic value "Auto", which derives a per-pair bound from the
// distances of that pair's manual replacements.
type Threshold struct {
	Auto  bool
	Value float64
	set   bool
}

// NewThreshold returns a literal threshold.
func NewThreshold(v float64) Threshold {
	return Threshold{Value: v, set: true}
}

// NewAutoThreshold returns the symbolic Auto threshold.
func NewAutoThreshold() Threshold {
	return Threshold{Auto: true, set: true}
}

// IsSet reports whether the threshold was explicitly configured.
func (t Threshold) IsSet() bool {
	return t.set
}

// String renders the threshold the way the wire format spells it.
func (t Threshold) String() string {
	if t.Auto {
		return "Auto"
	}
	return strconv.FormatFloat(t.Value, 'g', -1, 64)
}

// UnmarshalYAML accepts a number or the string "Auto" (any case).
func (t *Threshold) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("descriptor_threshold must be a number or \"Auto\", got %s", value.Tag)
	}
	if strings.EqualFold(value.Value, "auto") {
		*t = NewAutoThreshold()
		return nil
	}
	v, err := strconv.ParseFloat(value.Value, 64)
	if err != nil {
		return fmt.Errorf("descriptor_threshold must be a number or \"Auto\", got %q", value.Value)
	}
	*t = NewThreshold(v)
	return nil
}

// MarshalYAML renders Auto as the string "Auto" and literals as numbers.
func (t Threshold) MarshalYAML() (interface{}, error) {
	if t.Auto {
		return "Auto", nil
	}
	return t.Value, nil
}

// UnmarshalJSON accepts a number or the string "Auto" (any case).
func (t *Threshold) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if strings.EqualFold(s, "auto") {
			*t = NewAutoThreshold()
			return nil
		}
		return fmt.Errorf("descriptor_threshold must be a number or \"Auto\", got %q", s)
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("descriptor_threshold must be a number or \"Auto\": %w", err)
	}
	*t = NewThreshold(v)
	return nil
}

// MarshalJSON renders Auto as the string "Auto" and literals as numbers.
func (t Threshold) MarshalJSON() ([]byte, error) {
	if t.Auto {
		return json.Marshal("Auto")
	}
	return json.Marshal(t.Value)
}

// LoadDomainConfig reads a build request from a YAML or JSON file,
// applies defaults, and validates it.
func LoadDomainConfig(path string) (*DomainConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read domain config: %w", err)
	}

	dc := &DomainConfig{}
	if err := yaml.Unmarshal(data, dc); err != nil {
		return nil, fmt.Errorf("failed to parse domain config: %w", err)
	}

	dc.ApplyDefaults()
	if err := dc.Validate(); err != nil {
		return nil, err
	}

	return dc, nil
}

// ApplyDefaults fills zero-valued fields with their defaults.
// Idempotent; called at the wire boundary so that resolution sees a
// complete shared config.
func (dc *DomainConfig) ApplyDefaults() {
	kw := &dc.Shared.Keywords
	if kw.Method == "" {
		kw.Method = "embedding"
	}
	if kw.KeywordNumber == 0 {
		kw.KeywordNumber = 7
	}
	if kw.LLMRuns == 0 {
		kw.LLMRuns = 20
	}

	src := &dc.Shared.Source
	if src.Provider == "" {
		if len(src.Paths) > 0 {
			src.Provider = "files"
		} else {
			src.Provider = "static"
		}
	}
	if src.MinWords == 0 {
		src.MinWords = 6
	}

	pr := &dc.Shared.Prompt
	if pr.Method == "" {
		pr.Method = string(benchmark.MethodSplitSentences)
	}
	if pr.LLMRetries == 0 {
		pr.LLMRetries = 2
	}

	if dc.Branching != nil {
		br := dc.Branching
		if br.Pairs == "" {
			br.Pairs = "not_all"
		}
		if br.Direction == "" {
			br.Direction = string(benchmark.DirectionForward)
		}
		if br.DescriptorDistance == "" {
			br.DescriptorDistance = "cosine"
		}
		if !br.DescriptorThreshold.IsSet() {
			br.DescriptorThreshold = NewAutoThreshold()
		}
	}
}

// Validate checks the structural invariants of the build request.
// All failures are benchmark.KindConfigValidation: fatal and pre-flight,
// surfaced before any concept work starts.
func (dc *DomainConfig) Validate() error {
	if dc.Domain == "" {
		return benchmark.NewConfigValidationError("domain must not be empty")
	}
	if len(dc.Concepts) == 0 {
		return benchmark.NewConfigValidationError("concepts must not be empty")
	}

	seen := make(map[string]bool, len(dc.Concepts))
	for _, c := range dc.Concepts {
		if c == "" {
			return benchmark.NewConfigValidationError("concept names must not be empty")
		}
		if seen[c] {
			return benchmark.NewConfigValidationError("duplicate concept %q", c)
		}
		seen[c] = true
	}

	for name := range dc.ConceptOverrides {
		if !seen[name] {
			return benchmark.NewConfigValidationError("concept_overrides references unknown concept %q", name)
		}
	}

	if dc.MaxBenchmarkLength < 0 {
		return benchmark.NewConfigValidationError("max_benchmark_length must not be negative: %d", dc.MaxBenchmarkLength)
	}

	if m := dc.Shared.Prompt.Method; m != "" && !benchmark.PromptMethod(m).Valid() {
		return benchmark.NewConfigValidationError("unknown prompt method %q", m)
	}
	if m := dc.Shared.Keywords.Method; m != "" && m != "manual" && m != "embedding" && m != "llm" {
		return benchmark.NewConfigValidationError("unknown keyword method %q", m)
	}
	if p := dc.Shared.Source.Provider; p != "" && p != "static" && p != "files" {
		return benchmark.NewConfigValidationError("unknown source provider %q", p)
	}

	for name, ov := range dc.ConceptOverrides {
		if ov.Prompt != nil && ov.Prompt.Method != nil && !benchmark.PromptMethod(*ov.Prompt.Method).Valid() {
			return benchmark.NewConfigValidationError("concept %q: unknown prompt method %q", name, *ov.Prompt.Method)
		}
		if ov.Keywords != nil && ov.Keywords.Method != nil {
			if m := *ov.Keywords.Method; m != "manual" && m != "embedding" && m != "llm" {
				return benchmark.NewConfigValidationError("concept %q: unknown keyword method %q", name, m)
			}
		}
		if ov.Source != nil && ov.Source.Provider != nil {
			if p := *ov.Source.Provider; p != "static" && p != "files" {
				return benchmark.NewConfigValidationError("concept %q: unknown source provider %q", name, p)
			}
		}
	}

	if dc.Branching != nil {
		br := dc.Branching
		if br.Pairs != "" && br.Pairs != "all" && br.Pairs != "not_all" {
			return benchmark.NewConfigValidationError("branching_pairs must be \"all\" or \"not_all\", got %q", br.Pairs)
		}
		if br.Direction != "" && !benchmark.Direction(br.Direction).Valid() {
			return benchmark.NewConfigValidationError("unknown branching direction %q", br.Direction)
		}
		if d := br.DescriptorDistance; d != "" && d != "cosine" && d != "euclidean" {
			return benchmark.NewConfigValidationError("unknown descriptor distance %q", d)
		}
		if !br.DescriptorThreshold.Auto && br.DescriptorThreshold.Value < 0 {
			return benchmark.NewConfigValidationError("descriptor_threshold must not be negative: %v", br.DescriptorThreshold.Value)
		}
		for i, spec := range br.Descriptors {
			if spec.Stem == "" || spec.Branch == "" {
				return benchmark.NewConfigValidationError("replacement_descriptors[%d]: stem and branch must not be empty", i)
			}
			if spec.Stem == spec.Branch {
				return benchmark.NewConfigValidationError("replacement_descriptors[%d]: stem and branch must differ (%q)", i, spec.Stem)
			}
			if !seen[spec.Stem] {
				return benchmark.NewConfigValidationError("replacement_descriptors[%d]: stem %q is not a domain concept", i, spec.Stem)
			}
			if !seen[spec.Branch] {
				return benchmark.NewConfigValidationError("replacement_descriptors[%d]: branch %q is not a domain concept", i, spec.Branch)
			}
			for j, pair := range spec.Pairs {
				if pair.Original == "" {
					return benchmark.NewConfigValidationError("replacement_descriptors[%d].pairs[%d]: original must not be empty", i, j)
				}
				if pair.Replacement == "" {
					return benchmark.NewConfigValidationError("replacement_descriptors[%d].pairs[%d]: replacement must not be empty", i, j)
				}
			}
		}
	}

	return nil
}
