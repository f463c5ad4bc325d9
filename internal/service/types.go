package service

import (
	"time"
)

var subtitleExts = []string{".srt", ".ass", ".ssa"}

var mediaExts = []string{".mkv", ".mp4", ".avi", ".mov", ".webm"}

// JobRequest describes one translation job. InputPath may be a subtitle file
// or a media container; for containers TrackID selects the subtitle track,
// with -1 meaning auto.
type JobRequest struct {
	InputPath  string
	TrackID    int
	OutputPath string
	// MergeBack remuxes the translated subtitle into a new container next
	// to the source. Only meaningful when InputPath is a container.
	MergeBack bool
}

// JobResult summarizes a finished job.
type JobResult struct {
	OutputFile       string
	TotalLines       int
	TranslatedLines  int
	FailedBatches    int
	PromptTokens     int
	CompletionTokens int
	Status           string
	Duration         time.Duration
}
