package keywords

import (
	"context"
	"fmt"
)

// mockLLMClient implements llm.Client with pluggable behavior.
type mockLLMClient struct {
	CompleteFunc func(ctx context.Context, prompt string) (string, error)
	calls        int
}

func (m *mockLLMClient) Complete(ctx context.Context, prompt string) (string, error) {
	m.calls++
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, prompt)
	}
	return "[]", nil
}

func (m *mockLLMClient) CompleteWithSystem(ctx context.Context, _, prompt string) (string, error) {
	return m.Complete(ctx, prompt)
}

// stubEngine serves fixed vectors so comparer behavior is predictable.
type stubEngine struct {
	vectors map[string][]float32
}

func (e *stubEngine) Embed(_ context.Context, text string) ([]float32, error) {
	v, ok := e.vectors[text]
	if !ok {
		return nil, fmt.Errorf("no vector for %q", text)
	}
	return v, nil
}

func (e *stubEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (e *stubEngine) Dimensions() int { return 2 }

func (e *stubEngine) Name() string { return "stub" }
