package translator

import (
	"fmt"

	"github.com/subauto/subauto/internal/llm"
	"github.com/subauto/subauto/internal/retry"
	"github.com/subauto/subauto/internal/styletag"
	"github.com/subauto/subauto/internal/subtitle"
)

// BatchResult is the outcome of translating one batch.
type BatchResult struct {
	Lines            []IndexedText // restored, ready to persist
	PromptTokens     int
	CompletionTokens int
}

// BatchTranslator sends one batch through the model and reassembles styled
// text afterwards.
type BatchTranslator struct {
	provider llm.Provider
	engine   *retry.Engine
	codec    *styletag.Codec
	prompts  *PromptBuilder

	sourceLang string
	targetLang string
}

func NewBatchTranslator(provider llm.Provider, engine *retry.Engine, prompts *PromptBuilder, sourceLang, targetLang string) *BatchTranslator {
	return &BatchTranslator{
		provider:   provider,
		engine:     engine,
		codec:      styletag.NewCodec(),
		prompts:    prompts,
		sourceLang: sourceLang,
		targetLang: targetLang,
	}
}

// Translate runs one batch: strip override tags, prompt the model under the
// retry policy, parse the reply, restore the tags. A partial reply is
// accepted; lines the model skipped stay untranslated.
func (t *BatchTranslator) Translate(
	model string,
	lines []subtitle.Line,
	contextLines []string,
	onRetry func(attempt int, delay float64, message string),
	cancelCheck func() bool,
) (*BatchResult, error) {
	prepared := make([]IndexedText, 0, len(lines))
	metas := make(map[int]styletag.Metadata, len(lines))
	for _, line := range lines {
		text, meta := t.codec.Prepare(line.Text, line.Style)
		metas[line.Index] = meta
		prepared = append(prepared, IndexedText{Index: line.Index, Text: text})
	}

	prompt := t.prompts.Build(t.sourceLang, t.targetLang, contextLines, prepared)

	response, err := t.engine.Execute(func() (string, error) {
		return t.provider.GenerateContent(model, prompt)
	}, onRetry, cancelCheck)
	if err != nil {
		return nil, err
	}

	expected := make(map[int]struct{}, len(lines))
	for _, line := range lines {
		expected[line.Index] = struct{}{}
	}

	parsed := ParseResponse(response, expected)
	if len(parsed) == 0 {
		return nil, fmt.Errorf("model returned no usable lines for a batch of %d", len(lines))
	}

	restored := make([]IndexedText, 0, len(parsed))
	for _, item := range parsed {
		restored = append(restored, IndexedText{
			Index: item.Index,
			Text:  t.codec.Restore(item.Text, metas[item.Index]),
		})
	}

	// Rough estimate at 4 bytes per token for providers that don't report
	// usage.
	return &BatchResult{
		Lines:            restored,
		PromptTokens:     len(prompt) / 4,
		CompletionTokens: len(response) / 4,
	}, nil
}
