package translator

import (
	"fmt"
	"strings"
)

// PromptStyle selects the instruction set the model receives.
type PromptStyle string

const (
	StyleStandard PromptStyle = "standard"
	StyleAnime    PromptStyle = "anime"
)

const baseRules = `You are a professional subtitle translator. Translate the numbered subtitle lines from %s to %s.

Rules:
- Keep the [N] marker at the start of every output line, with the same number as the input line.
- Produce exactly one output entry per numbered input line, in any order.
- Preserve any <<STYLE_N>> placeholders exactly as written. Do not translate, move or remove them.
- Keep translations natural and short enough to read as subtitles.
- Output only the translated lines, nothing else.
`

const animeRules = `- Keep Japanese honorifics (-san, -kun, -chan, -sama, senpai) attached to names untranslated.
- Preserve the register of the dialogue: casual speech stays casual, formal stays formal.
`

// PromptBuilder assembles the request sent to the model for one batch.
type PromptBuilder struct {
	style PromptStyle
}

func NewPromptBuilder(style PromptStyle) *PromptBuilder {
	if style == "" {
		style = StyleStandard
	}
	return &PromptBuilder{style: style}
}

// Build renders the prompt: rules, then rolling context marked [PREV], then
// the numbered batch lines.
func (b *PromptBuilder) Build(sourceLang, targetLang string, contextLines []string, batch []IndexedText) string {
	if sourceLang == "" {
		sourceLang = "the detected source language"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, baseRules, sourceLang, targetLang)
	if b.style == StyleAnime {
		sb.WriteString(animeRules)
	}

	if len(contextLines) > 0 {
		sb.WriteString("\nPreceding dialogue, for context only. Do not translate or output it:\n")
		for _, line := range contextLines {
			fmt.Fprintf(&sb, "[PREV] %s\n", line)
		}
	}

	sb.WriteString("\nLines to translate:\n")
	for _, line := range batch {
		fmt.Fprintf(&sb, "[%d] %s\n", line.Index, line.Text)
	}
	return sb.String()
}
