package translator

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subauto/subauto/internal/llm"
	"github.com/subauto/subauto/internal/retry"
	"github.com/subauto/subauto/internal/session"
	"github.com/subauto/subauto/internal/subtitle"
)

func testFile(t *testing.T, lines ...subtitle.Line) *subtitle.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "episode.srt")
	require.NoError(t, os.WriteFile(path, []byte("subtitle source bytes"), 0o644))
	return &subtitle.File{Path: path, Format: "SRT", Lines: lines}
}

func dialogueLines(n int) []subtitle.Line {
	lines := make([]subtitle.Line, 0, n)
	for i := 1; i <= n; i++ {
		lines = append(lines, subtitle.Line{Index: i, Text: fmt.Sprintf("Line %d", i), Style: "Default"})
	}
	return lines
}

type orchestratorFixture struct {
	orch     *Orchestrator
	provider *scriptedProvider
	store    *session.Store
	events   *eventLog
}

type eventLog struct {
	mu     sync.Mutex
	events []ProgressEvent
}

func (l *eventLog) record(e ProgressEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) outcomes() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.Outcome)
	}
	return out
}

func (l *eventLog) all() []ProgressEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ProgressEvent(nil), l.events...)
}

func newFixture(t *testing.T, provider *scriptedProvider, validate bool) *orchestratorFixture {
	t.Helper()

	manager := llm.NewManager(provider, "primary")
	if validate {
		ok, msg := manager.Validate()
		require.True(t, ok, msg)
	}
	require.True(t, manager.Select("primary"))

	bt := NewBatchTranslator(provider, fastEngine(), NewPromptBuilder(StyleStandard), "en", "id")
	store := session.NewStore(t.TempDir())
	orch := NewOrchestrator(manager, bt, store, NewFallbackRouter(DefaultFallbackConfig()), Options{
		BatchSize:         2,
		ContextLines:      3,
		InterBatchDelay:   time.Millisecond,
		PausePollInterval: 5 * time.Millisecond,
	})

	events := &eventLog{}
	orch.OnProgress(events.record)

	return &orchestratorFixture{orch: orch, provider: provider, store: store, events: events}
}

func TestRun_TranslatesAllBatches(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, &scriptedProvider{respond: echoTranslate("ID:")}, false)
	file := testFile(t, dialogueLines(5)...)

	require.NoError(t, fx.orch.Run(file, "en", "id"))

	assert.Equal(t, StatusCompleted, fx.orch.Status())
	for _, line := range file.Lines {
		assert.Equal(t, "ID:"+line.Text, line.TranslatedText)
	}
	assert.Equal(t, []string{OutcomeSuccess, OutcomeSuccess, OutcomeSuccess}, fx.events.outcomes())
	assert.Positive(t, fx.orch.Tokens().Total())
	// Progress is cleared on completion.
	assert.Nil(t, fx.store.Load())
}

func TestRun_SkipsTypesetLines(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, &scriptedProvider{respond: echoTranslate("ID:")}, false)
	file := testFile(t,
		subtitle.Line{Index: 1, Text: "Hello", Style: "Default"},
		subtitle.Line{Index: 2, Text: `{\pos(640,120)}STATION`, Style: "Default"},
		subtitle.Line{Index: 3, Text: "Lyrics", Style: "Karaoke"},
	)

	require.NoError(t, fx.orch.Run(file, "en", "id"))

	assert.Equal(t, "ID:Hello", file.Lines[0].TranslatedText)
	assert.Equal(t, `{\pos(640,120)}STATION`, file.Lines[1].TranslatedText)
	assert.Equal(t, "Lyrics", file.Lines[2].TranslatedText)

	for _, prompt := range fx.provider.calledPrompts {
		assert.NotContains(t, prompt, "STATION")
		assert.NotContains(t, prompt, "Lyrics")
	}
}

func TestRun_ResumeSkipsCompletedBatches(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, &scriptedProvider{respond: echoTranslate("ID:")}, false)
	file := testFile(t, dialogueLines(4)...)

	// A previous run already finished the first batch.
	fx.store.Create(file.Path, 0, 4, "en", "id", "primary")
	fx.store.UpdateProgress([]session.Translation{
		{Index: 1, Text: "SEED:Line 1"},
		{Index: 2, Text: "SEED:Line 2"},
	}, 0, 10, 5)

	require.NoError(t, fx.orch.Run(file, "en", "id"))

	// Seeded lines keep their stored text; only the second batch hits the
	// provider.
	assert.Equal(t, "SEED:Line 1", file.Lines[0].TranslatedText)
	assert.Equal(t, "SEED:Line 2", file.Lines[1].TranslatedText)
	assert.Equal(t, "ID:Line 3", file.Lines[2].TranslatedText)
	require.Len(t, fx.provider.calledPrompts, 1)
	assert.NotContains(t, fx.provider.calledPrompts[0], "[1] Line 1")
	assert.Equal(t, []string{OutcomeSkipped, OutcomeSuccess}, fx.events.outcomes())
}

func TestRun_ProgressEventsCarryTokenSnapshot(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, &scriptedProvider{respond: echoTranslate("ID:")}, false)
	file := testFile(t, dialogueLines(5)...)

	require.NoError(t, fx.orch.Run(file, "en", "id"))

	events := fx.events.all()
	require.Len(t, events, 3)

	// Each event carries the running job totals, so they never decrease.
	prev := 0
	for _, e := range events {
		assert.Positive(t, e.PromptTokens)
		assert.Positive(t, e.CompletionTokens)
		total := e.PromptTokens + e.CompletionTokens
		assert.GreaterOrEqual(t, total, prev)
		prev = total
	}
	assert.Equal(t, fx.orch.Tokens().Total(), prev)
}

func TestRun_ResumeSeedsTokenCounters(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, &scriptedProvider{respond: echoTranslate("ID:")}, false)
	file := testFile(t, dialogueLines(4)...)

	// The interrupted run already spent 1500 tokens on the first batch.
	fx.store.Create(file.Path, 0, 4, "en", "id", "primary")
	fx.store.UpdateProgress([]session.Translation{
		{Index: 1, Text: "SEED:Line 1"},
		{Index: 2, Text: "SEED:Line 2"},
	}, 0, 1000, 500)

	require.NoError(t, fx.orch.Run(file, "en", "id"))

	assert.GreaterOrEqual(t, fx.orch.Tokens().Prompt(), 1000)
	assert.GreaterOrEqual(t, fx.orch.Tokens().Completion(), 500)
	assert.GreaterOrEqual(t, fx.orch.Tokens().Total(), 1500)
}

func TestRun_PersistsTrackID(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{respond: echoTranslate("ID:")}
	manager := llm.NewManager(provider, "primary")
	require.True(t, manager.Select("primary"))
	bt := NewBatchTranslator(provider, fastEngine(), NewPromptBuilder(StyleStandard), "en", "id")
	store := session.NewStore(t.TempDir())
	orch := NewOrchestrator(manager, bt, store, NewFallbackRouter(DefaultFallbackConfig()), Options{
		BatchSize:       2,
		InterBatchDelay: time.Millisecond,
		TrackID:         3,
	})

	// Cancelling before the first batch leaves the freshly created state
	// on disk for inspection.
	orch.Cancel()
	require.ErrorIs(t, orch.Run(testFile(t, dialogueLines(2)...), "en", "id"), retry.ErrCancelled)

	state := store.Load()
	require.NotNil(t, state)
	assert.Equal(t, 3, state.TrackID)
}

func TestRun_FailedBatchKeepsOriginals(t *testing.T) {
	t.Parallel()

	var calls int
	provider := &scriptedProvider{respond: func(model, prompt string) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("invalid request body")
		}
		return echoTranslate("ID:")(model, prompt)
	}}
	fx := newFixture(t, provider, false)
	file := testFile(t, dialogueLines(4)...)

	require.NoError(t, fx.orch.Run(file, "en", "id"))

	assert.Equal(t, StatusCompleted, fx.orch.Status())
	// The failed batch stays untranslated so the writer falls back to the
	// original text; the job still finishes.
	assert.Empty(t, file.Lines[0].TranslatedText)
	assert.Empty(t, file.Lines[1].TranslatedText)
	assert.Equal(t, "ID:Line 3", file.Lines[2].TranslatedText)
	assert.Equal(t, []string{OutcomeFailed, OutcomeSuccess}, fx.events.outcomes())
}

func TestRun_PolicyViolationFallsBack(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{
		models: []llm.ModelInfo{
			{Name: "primary"},
			{Name: "amazon/bedrock-titan"},
			{Name: "openai/gpt-4o-mini"},
		},
	}
	provider.respond = func(model, prompt string) (string, error) {
		if model == "primary" {
			return "", &llm.PolicyViolationError{Model: model, Message: "flagged by moderation"}
		}
		return echoTranslate("FB:")(model, prompt)
	}
	fx := newFixture(t, provider, true)
	file := testFile(t, dialogueLines(4)...)

	require.NoError(t, fx.orch.Run(file, "en", "id"))

	assert.Equal(t, "FB:Line 1", file.Lines[0].TranslatedText)
	assert.Equal(t, []string{OutcomeSuccessFallback, OutcomeSuccess}, fx.events.outcomes())

	// Batch 1: primary refused, openai fallback answered. Batch 2 goes
	// straight to the fallback.
	assert.Equal(t, []string{"primary", "openai/gpt-4o-mini", "openai/gpt-4o-mini"}, fx.provider.calls())
}

func TestRun_PolicyViolationNoFallbackFailsBatch(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{
		models: []llm.ModelInfo{{Name: "primary"}, {Name: "amazon/bedrock-titan"}},
	}
	provider.respond = func(model, prompt string) (string, error) {
		return "", &llm.PolicyViolationError{Model: model, Message: "flagged by moderation"}
	}
	fx := newFixture(t, provider, true)
	file := testFile(t, dialogueLines(2)...)

	require.NoError(t, fx.orch.Run(file, "en", "id"))

	assert.Empty(t, file.Lines[0].TranslatedText)
	assert.Equal(t, []string{OutcomeFailed}, fx.events.outcomes())
}

func TestRun_CancelBeforeFirstBatch(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, &scriptedProvider{respond: echoTranslate("ID:")}, false)
	file := testFile(t, dialogueLines(4)...)

	fx.orch.Cancel()
	err := fx.orch.Run(file, "en", "id")

	require.ErrorIs(t, err, retry.ErrCancelled)
	assert.Equal(t, StatusCancelled, fx.orch.Status())
	assert.Empty(t, fx.provider.calls())
	// Progress is retained for a later resume.
	assert.NotNil(t, fx.store.Load())
}

func TestRun_PauseAndResume(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, &scriptedProvider{respond: echoTranslate("ID:")}, false)
	file := testFile(t, dialogueLines(4)...)

	fx.orch.Pause()
	done := make(chan error, 1)
	go func() { done <- fx.orch.Run(file, "en", "id") }()

	require.Eventually(t, func() bool {
		return fx.orch.Status() == StatusPaused
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, fx.provider.calls())

	fx.orch.Resume()
	require.NoError(t, <-done)
	assert.Equal(t, StatusCompleted, fx.orch.Status())
	assert.Equal(t, "ID:Line 4", file.Lines[3].TranslatedText)
}

func TestRun_NoModelSelected(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{respond: echoTranslate("ID:")}
	manager := llm.NewManager(provider, "")
	bt := NewBatchTranslator(provider, fastEngine(), NewPromptBuilder(StyleStandard), "en", "id")
	orch := NewOrchestrator(manager, bt, session.NewStore(t.TempDir()), NewFallbackRouter(DefaultFallbackConfig()), DefaultOptions())

	err := orch.Run(testFile(t, dialogueLines(1)...), "en", "id")
	assert.Error(t, err)
	assert.Equal(t, StatusFailed, orch.Status())
}
