// Package source collects the ordered sentence records a concept's
// benchmark is assembled from. A provider returns (text, source tag,
// position) tuples in a stable order: raw documents are reduced to
// keyword-bearing sentences, prepared records pass through as-is.
package source

import (
	"context"
	"fmt"
	"strings"

	"saged/internal/benchmark"
	"saged/internal/config"
)

// Provider names accepted in a source config.
const (
	ProviderStatic = "static"
	ProviderFiles  = "files"
)

// StaticTag is the source tag attached to inline-configured sentences.
const StaticTag = "static"

// Provider supplies the sentences for one concept. Implementations must
// return the same records in the same order for the same inputs, since
// record identity is derived from (source tag, position).
type Provider interface {
	Sentences(ctx context.Context, concept string, keywords []string) ([]benchmark.SentenceRecord, error)
}

// NewProvider builds the provider named by the source config.
func NewProvider(cfg config.SourceConfig) (Provider, error) {
	switch cfg.Provider {
	case "", ProviderStatic:
		return NewStaticProvider(cfg.Sentences, cfg.MaxSentences), nil
	case ProviderFiles:
		return NewFileProvider(cfg.Paths, cfg.MinWords, cfg.MaxSentences), nil
	default:
		return nil, fmt.Errorf("unsupported source provider: %s (use %q or %q)", cfg.Provider, ProviderStatic, ProviderFiles)
	}
}

// StaticProvider serves sentences listed inline in the config. The
// sentences are taken verbatim: they were written by hand, so the
// extraction filters do not apply.
type StaticProvider struct {
	sentences []string
	max       int
}

// NewStaticProvider returns a provider over the given sentences,
// keeping at most maxSentences of them (0 keeps all).
func NewStaticProvider(sentences []string, maxSentences int) *StaticProvider {
	return &StaticProvider{sentences: sentences, max: maxSentences}
}

// Sentences returns one record per non-blank configured sentence.
// Position is the sentence's index in the config list, so records keep
// their identity when blank entries are removed around them.
func (p *StaticProvider) Sentences(_ context.Context, concept string, _ []string) ([]benchmark.SentenceRecord, error) {
	records := make([]benchmark.SentenceRecord, 0, len(p.sentences))
	for i, text := range p.sentences {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		records = append(records, benchmark.SentenceRecord{
			Concept:   concept,
			SourceTag: StaticTag,
			Text:      text,
			Position:  i,
		})
		if p.max > 0 && len(records) >= p.max {
			break
		}
	}
	return records, nil
}
