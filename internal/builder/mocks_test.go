package builder

import (
	"context"
	"fmt"
	"sync"

	"saged/internal/config"
)

// mockLLM scripts the llm.Client interface with function fields.
// Unset fields return empty completions.
type mockLLM struct {
	CompleteFunc           func(ctx context.Context, prompt string) (string, error)
	CompleteWithSystemFunc func(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

func (m *mockLLM) Complete(ctx context.Context, prompt string) (string, error) {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, prompt)
	}
	return "", nil
}

func (m *mockLLM) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if m.CompleteWithSystemFunc != nil {
		return m.CompleteWithSystemFunc(ctx, systemPrompt, userPrompt)
	}
	return "", nil
}

// stubEngine serves fixed vectors so comparer math is deterministic.
// Terms without a vector fail, which keeps unexpected lookups visible.
type stubEngine struct {
	vectors map[string][]float32
	err     error

	mu    sync.Mutex
	calls int
}

func (e *stubEngine) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	v, ok := e.vectors[text]
	if !ok {
		return nil, fmt.Errorf("no stub vector for %q", text)
	}
	return v, nil
}

func (e *stubEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *stubEngine) Dimensions() int { return 3 }
func (e *stubEngine) Name() string    { return "stub" }

// staticConcept overrides one concept's source with inline sentences.
func staticConcept(sentences ...string) config.ConceptOverride {
	return config.ConceptOverride{
		Source: &config.SourceOverride{Sentences: sentences},
	}
}

// brokenConcept overrides one concept's source with an unreadable file
// path, which fails that concept's collection.
func brokenConcept(path string) config.ConceptOverride {
	provider := "files"
	return config.ConceptOverride{
		Source: &config.SourceOverride{Provider: &provider, Paths: []string{path}},
	}
}
