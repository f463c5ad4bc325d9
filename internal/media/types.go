package media

import "strings"

// Track describes one subtitle track embedded in a media container.
type Track struct {
	ID       int
	Codec    string
	Language string
	Name     string
	Default  bool
	Forced   bool
}

// Extension maps the track codec to the subtitle file extension it extracts
// to. Unknown codecs default to .srt.
func (t Track) Extension() string {
	switch {
	case strings.Contains(t.Codec, "ASS"), strings.Contains(t.Codec, "SSA"):
		return ".ass"
	default:
		return ".srt"
	}
}

type Operator interface {
	ListSubtitleTracks() ([]Track, error)
	ExtractTrack(trackID int, toDir string, name string) (string, error)
	MergeSubtitle(subtitlePath string, outputPath string, language string, trackName string) error
}

func NewOperator(
	mediaPath string,
) Operator {
	return NewMkvtoolnix(mediaPath)
}
