package session

import (
	"time"
)

// Translation is one completed line, keyed by the stable subtitle index.
type Translation struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// State is the persisted progress of a translation session. It is written
// wholesale after every batch and read once at start-up to decide whether to
// resume. Exactly one running job owns writes; everyone else reads snapshots.
type State struct {
	// File identification
	SourceFile        string `json:"source_file"`
	SourceFingerprint string `json:"source_file_hash"`
	TrackID           int    `json:"track_id"`

	// Translation settings
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`
	ModelName  string `json:"model_name"`

	// Progress tracking. CompletedTranslations holds each index at most
	// once; its length never exceeds TotalLines.
	TotalLines            int           `json:"total_lines"`
	CompletedTranslations []Translation `json:"completed_translations"`
	CurrentBatchIndex     int           `json:"current_batch_index"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Token tracking
	PromptTokensUsed     int `json:"prompt_tokens_used"`
	CompletionTokensUsed int `json:"completion_tokens_used"`
}

// ProgressPercent reports completion as a percentage.
func (s *State) ProgressPercent() float64 {
	if s.TotalLines == 0 {
		return 0
	}
	return float64(len(s.CompletedTranslations)) / float64(s.TotalLines) * 100
}

// LinesRemaining reports how many lines still need translation.
func (s *State) LinesRemaining() int {
	return s.TotalLines - len(s.CompletedTranslations)
}

// CompletedIndices returns the set of line indices already translated.
func (s *State) CompletedIndices() map[int]struct{} {
	ret := make(map[int]struct{}, len(s.CompletedTranslations))
	for _, t := range s.CompletedTranslations {
		ret[t.Index] = struct{}{}
	}
	return ret
}

func (s *State) clone() *State {
	if s == nil {
		return nil
	}
	tmp := *s
	tmp.CompletedTranslations = append([]Translation(nil), s.CompletedTranslations...)
	return &tmp
}
