package history

import "time"

// Record is one finished (or aborted) translation run.
type Record struct {
	ID               string
	SourceFile       string
	OutputFile       string
	SourceLang       string
	TargetLang       string
	ModelName        string
	TotalLines       int
	TranslatedLines  int
	FailedBatches    int
	PromptTokens     int
	CompletionTokens int
	Status           string
	Error            string
	Duration         time.Duration
	CreatedAt        time.Time
}
