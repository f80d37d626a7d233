// Package assemble turns source sentences into benchmark prompts.
//
// Two methods are supported: split_sentences cuts each sentence at a
// verb-anchored break point into a setup half and a continuation half,
// and questions rewrites each sentence as a keyword-preserving question,
// by subject-auxiliary inversion or optionally through a language model
// with the inversion as fallback. Output order follows sentence order
// and truncation is deterministic, so the same sentences always produce
// the same prompts.
package assemble

import (
	"context"
	"fmt"

	"saged/internal/benchmark"
	"saged/internal/config"
	"saged/internal/llm"
	"saged/internal/logging"
)

// Transformer converts sentences into prompt records. The client is
// optional and only consulted for the questions method with use_llm set.
type Transformer struct {
	cfg    config.PromptConfig
	client llm.Client
}

// NewTransformer returns a Transformer for the given prompt config.
func NewTransformer(cfg config.PromptConfig, client llm.Client) *Transformer {
	return &Transformer{cfg: cfg, client: client}
}

// Assemble transforms sentences in order into prompt records, stopping
// once maxPrompts records exist (0 = unlimited). The truncation point
// depends only on sentence order, so reruns over the same input
// truncate identically.
func (t *Transformer) Assemble(ctx context.Context, sentences []benchmark.SentenceRecord, keywords []string, maxPrompts int) ([]benchmark.PromptRecord, error) {
	timer := logging.StartTimer(logging.CategoryAssemble, "assemble prompts")
	defer timer.Stop()

	var prompts []benchmark.PromptRecord
	for _, sentence := range sentences {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if maxPrompts > 0 && len(prompts) >= maxPrompts {
			logging.Assemble("Prompt cap %d reached, dropping remaining sentences", maxPrompts)
			break
		}
		records, err := t.Transform(ctx, sentence, keywords)
		if err != nil {
			return nil, err
		}
		prompts = append(prompts, records...)
	}
	if maxPrompts > 0 && len(prompts) > maxPrompts {
		prompts = prompts[:maxPrompts]
	}

	logging.Assemble("Assembled %d prompts from %d sentences", len(prompts), len(sentences))
	return prompts, nil
}

// Transform converts one sentence into prompt records: two for a split
// sentence, one otherwise.
func (t *Transformer) Transform(ctx context.Context, sentence benchmark.SentenceRecord, keywords []string) ([]benchmark.PromptRecord, error) {
	method := benchmark.PromptMethod(t.cfg.Method)
	if method == "" {
		method = benchmark.MethodSplitSentences
	}
	if !method.Valid() {
		return nil, fmt.Errorf("unsupported prompt method: %s", t.cfg.Method)
	}

	root := rootKeyword(sentence.Text, keywords)
	switch method {
	case benchmark.MethodSplitSentences:
		return t.splitRecords(sentence, root), nil
	default:
		return t.questionRecords(ctx, sentence, root)
	}
}

func (t *Transformer) splitRecords(sentence benchmark.SentenceRecord, root string) []benchmark.PromptRecord {
	sid := sentence.ID()
	setup, continuation, ok := SplitAtVerb(sentence.Text)
	if !ok {
		return []benchmark.PromptRecord{t.record(sentence, sid, 0, sentence.Text, root)}
	}
	return []benchmark.PromptRecord{
		t.record(sentence, sid, 0, setup, root),
		t.record(sentence, sid, 1, continuation, root),
	}
}

func (t *Transformer) questionRecords(ctx context.Context, sentence benchmark.SentenceRecord, root string) ([]benchmark.PromptRecord, error) {
	sid := sentence.ID()
	text := ""
	if t.cfg.UseLLM && t.client != nil {
		rewritten, err := t.rewriteAsQuestion(ctx, sentence.Text, root)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logging.Get(logging.CategoryAssemble).Warn("Falling back to inversion for %s: %v", sid, err)
		} else {
			text = rewritten
		}
	}
	if text == "" {
		inverted, ok := InvertToQuestion(sentence.Text)
		if ok && (root == "" || containsFold(inverted, root)) {
			text = inverted
		} else {
			// No keyword-preserving question exists, keep the
			// sentence verbatim.
			text = sentence.Text
		}
	}
	return []benchmark.PromptRecord{t.record(sentence, sid, 0, text, root)}, nil
}

func (t *Transformer) record(sentence benchmark.SentenceRecord, sid string, part int, text, root string) benchmark.PromptRecord {
	return benchmark.PromptRecord{
		ID:               benchmark.PromptID(sentence.Concept, sid, part),
		Concept:          sentence.Concept,
		SourceTag:        sentence.SourceTag,
		Text:             text,
		RootKeyword:      keepIfContained(root, text),
		OriginSentenceID: sid,
	}
}

// rootKeyword returns the first keyword, in list order, that the
// sentence contains. List order is priority order: the concept term
// itself is listed first, so it wins when present.
func rootKeyword(text string, keywords []string) string {
	for _, k := range keywords {
		if k != "" && containsFold(text, k) {
			return k
		}
	}
	return ""
}

func keepIfContained(root, text string) string {
	if root != "" && containsFold(text, root) {
		return root
	}
	return ""
}
