package styletag

import (
	"fmt"
	"regexp"
	"strings"
)

// Metadata carries everything needed to restore a prepared line after
// translation. It is produced by Prepare and must be kept 1:1 with the line.
// Complex marks lines skipped for positional markup rather than style name.
type Metadata struct {
	Skip       bool
	Original   string
	PrefixTags string
	Inline     map[string]string // placeholder -> original tag group
	Complex    bool
}

// Styles whose lines are never sent to the model. Typesetting, songs and
// cards carry meaning through placement, not dialogue.
var skipStyles = map[string]struct{}{
	"sign":    {},
	"signs":   {},
	"op":      {},
	"ed":      {},
	"opening": {},
	"ending":  {},
	"title":   {},
	"card":    {},
	"note":    {},
	"notes":   {},
	"karaoke": {},
}

// Tags that pin a line to screen coordinates. Lines carrying them are signs.
var positionalMarkers = []string{`\pos(`, `\move(`, `\org(`, `\clip(`}

var (
	prefixTagsRe = regexp.MustCompile(`^(?:\{[^}]*\})+`)
	inlineTagRe  = regexp.MustCompile(`\{\\[^}]+\}`)
)

const placeholderFormat = "<<STYLE_%d>>"

// Codec extracts ASS/SSA override tags from a line before translation and
// restores them afterwards.
type Codec struct{}

func NewCodec() *Codec {
	return &Codec{}
}

// ShouldSkip reports whether a line must bypass translation entirely, either
// because of its style name or because it carries positional markup.
func (c *Codec) ShouldSkip(styleName, text string) bool {
	if _, ok := skipStyles[strings.ToLower(styleName)]; ok {
		return true
	}
	return hasPositionalMarker(text)
}

func hasPositionalMarker(text string) bool {
	for _, marker := range positionalMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// Prepare strips override tags from text, returning the clean text to send to
// the model and the metadata needed to reassemble the original markup.
func (c *Codec) Prepare(text, styleName string) (string, Metadata) {
	if c.ShouldSkip(styleName, text) {
		return text, Metadata{Skip: true, Original: text, Complex: hasPositionalMarker(text)}
	}

	prefixTags := prefixTagsRe.FindString(text)
	remaining := text[len(prefixTags):]

	locs := inlineTagRe.FindAllStringIndex(remaining, -1)
	if len(locs) == 0 {
		return remaining, Metadata{
			Original:   text,
			PrefixTags: prefixTags,
			Inline:     map[string]string{},
		}
	}

	// Build the tag-free text, remembering where each tag sat in it.
	type inlineTag struct {
		pos int
		tag string
	}
	tags := make([]inlineTag, 0, len(locs))
	var clean strings.Builder
	last := 0
	for _, loc := range locs {
		clean.WriteString(remaining[last:loc[0]])
		tags = append(tags, inlineTag{pos: clean.Len(), tag: remaining[loc[0]:loc[1]]})
		last = loc[1]
	}
	clean.WriteString(remaining[last:])

	// Insert placeholders right-to-left so earlier insertions don't shift
	// the recorded offsets of later ones.
	prepared := clean.String()
	inline := make(map[string]string, len(tags))
	for i := len(tags) - 1; i >= 0; i-- {
		placeholder := fmt.Sprintf(placeholderFormat, i)
		inline[placeholder] = tags[i].tag
		prepared = prepared[:tags[i].pos] + placeholder + prepared[tags[i].pos:]
	}

	return prepared, Metadata{
		Original:   text,
		PrefixTags: prefixTags,
		Inline:     inline,
	}
}

// Restore substitutes placeholders back to their tag groups and reattaches
// the leading tag run. Skipped lines come back verbatim.
func (c *Codec) Restore(translated string, meta Metadata) string {
	if meta.Skip {
		return meta.Original
	}

	result := translated
	for placeholder, tag := range meta.Inline {
		result = strings.ReplaceAll(result, placeholder, tag)
	}

	return meta.PrefixTags + result
}
