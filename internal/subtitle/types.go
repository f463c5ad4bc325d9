package subtitle

import (
	"time"

	"golang.org/x/text/language"
)

// Reader is the interface for reading subtitle files
type Reader interface {
	Read() (*File, error)
}

// Writer is the interface for writing subtitle files
type Writer interface {
	Write(path string, subtitle *File) error
}

// Line represents a single subtitle line. Index is the stable identity used
// everywhere downstream; it is never positional.
type Line struct {
	Index          int
	StartTime      time.Duration
	EndTime        time.Duration
	Text           string
	Style          string // ASS style name; empty for SRT
	TranslatedText string

	// DialoguePrefix is everything of an ASS Dialogue line before the text
	// field. Preserved verbatim so writing back does not lose layers,
	// margins or effects.
	DialoguePrefix string
}

// File represents a parsed subtitle file.
type File struct {
	Lines    []Line
	Language language.Tag
	Format   string // "SRT" or "ASS"
	Path     string

	// Header holds the raw ASS sections preceding [Events], including the
	// Events Format line. Empty for SRT.
	Header string
}
