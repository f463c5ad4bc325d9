package translator

import "sync/atomic"

// IndexedText pairs a subtitle line index with its text.
type IndexedText struct {
	Index int
	Text  string
}

// Status of a translation job. Transitions only move forward except for
// RUNNING <-> PAUSED.
type Status string

const (
	StatusInit      Status = "INIT"
	StatusRunning   Status = "RUNNING"
	StatusPaused    Status = "PAUSED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
	StatusFailed    Status = "FAILED"
)

// Batch outcomes surfaced through progress events.
const (
	OutcomeSuccess         = "success"
	OutcomeSuccessFallback = "success (fallback)"
	OutcomeFailed          = "failed"
	OutcomeSkipped         = "skipped"
	OutcomeRetrying        = "retrying"
)

// ProgressEvent reports batch-level progress to whoever is watching the job.
// The token counts are a running snapshot of the whole job, not the batch.
type ProgressEvent struct {
	BatchIndex       int
	TotalBatches     int
	CompletedLines   int
	TotalLines       int
	Outcome          string
	Message          string
	PromptTokens     int
	CompletionTokens int
}

// TokenUsage accumulates token counts for a job. Written by the batch loop,
// read concurrently by status displays.
type TokenUsage struct {
	prompt     atomic.Int64
	completion atomic.Int64
}

func (u *TokenUsage) Add(prompt, completion int) {
	u.prompt.Add(int64(prompt))
	u.completion.Add(int64(completion))
}

func (u *TokenUsage) Prompt() int     { return int(u.prompt.Load()) }
func (u *TokenUsage) Completion() int { return int(u.completion.Load()) }
func (u *TokenUsage) Total() int      { return u.Prompt() + u.Completion() }
