package translator

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/subauto/subauto/internal/llm"
	"github.com/subauto/subauto/internal/retry"
	"github.com/subauto/subauto/internal/session"
	"github.com/subauto/subauto/internal/styletag"
	"github.com/subauto/subauto/internal/subtitle"
	"github.com/subauto/subauto/pkg/log"
)

// Options tune the batch loop. TrackID identifies the container track the
// lines came from and is only persisted with the session.
type Options struct {
	BatchSize         int
	ContextLines      int
	InterBatchDelay   time.Duration
	PausePollInterval time.Duration
	TrackID           int
}

func DefaultOptions() Options {
	return Options{
		BatchSize:         25,
		ContextLines:      3,
		InterBatchDelay:   1500 * time.Millisecond,
		PausePollInterval: 500 * time.Millisecond,
	}
}

// Orchestrator drives a subtitle file through batched translation: resume
// from saved progress, pause/cancel handling, policy-violation fallback and
// progress reporting. One orchestrator runs one job.
type Orchestrator struct {
	manager  *llm.Manager
	batch    *BatchTranslator
	store    *session.Store
	fallback *FallbackRouter
	codec    *styletag.Codec
	opts     Options

	mu     sync.Mutex
	status Status

	paused    atomic.Bool
	cancelled atomic.Bool

	tokens     TokenUsage
	progressFn func(ProgressEvent)
}

func NewOrchestrator(manager *llm.Manager, batch *BatchTranslator, store *session.Store, router *FallbackRouter, opts Options) *Orchestrator {
	def := DefaultOptions()
	if opts.BatchSize <= 0 {
		opts.BatchSize = def.BatchSize
	}
	if opts.ContextLines <= 0 {
		opts.ContextLines = def.ContextLines
	}
	if opts.InterBatchDelay <= 0 {
		opts.InterBatchDelay = def.InterBatchDelay
	}
	if opts.PausePollInterval <= 0 {
		opts.PausePollInterval = def.PausePollInterval
	}
	return &Orchestrator{
		manager:  manager,
		batch:    batch,
		store:    store,
		fallback: router,
		codec:    styletag.NewCodec(),
		opts:     opts,
		status:   StatusInit,
	}
}

// OnProgress registers the progress callback. Set it before Run.
func (o *Orchestrator) OnProgress(fn func(ProgressEvent)) {
	o.progressFn = fn
}

func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

func (o *Orchestrator) setStatus(s Status) {
	o.mu.Lock()
	o.status = s
	o.mu.Unlock()
}

// Pause requests a stop at the next batch boundary. The in-flight batch
// always finishes first.
func (o *Orchestrator) Pause() { o.paused.Store(true) }

func (o *Orchestrator) Resume() { o.paused.Store(false) }

// Cancel requests termination. Honored at batch boundaries and inside
// backoff waits; saved progress is kept so the job can resume later.
func (o *Orchestrator) Cancel() { o.cancelled.Store(true) }

func (o *Orchestrator) Tokens() *TokenUsage { return &o.tokens }

// Run translates the file in place, filling TranslatedText on each line.
// Returns retry.ErrCancelled when cancelled; saved progress is cleared only
// on completion.
func (o *Orchestrator) Run(file *subtitle.File, sourceLang, targetLang string) error {
	o.setStatus(StatusInit)

	model := o.manager.SelectedModel()
	if model == "" {
		o.setStatus(StatusFailed)
		return errors.New("no model selected")
	}

	// Typeset lines pass through untouched and are never sent to the model.
	translatable := make([]*subtitle.Line, 0, len(file.Lines))
	for i := range file.Lines {
		line := &file.Lines[i]
		if o.codec.ShouldSkip(line.Style, line.Text) {
			line.TranslatedText = line.Text
			continue
		}
		translatable = append(translatable, line)
	}

	byIndex := make(map[int]*subtitle.Line, len(translatable))
	for _, line := range translatable {
		byIndex[line.Index] = line
	}

	completed := make(map[int]struct{})
	if o.store.HasResumableState(file.Path) {
		state := o.store.Current()
		for _, t := range state.CompletedTranslations {
			if line, ok := byIndex[t.Index]; ok {
				line.TranslatedText = t.Text
				completed[t.Index] = struct{}{}
			}
		}
		// Tokens spent before the restart still count toward the job.
		o.tokens.Add(state.PromptTokensUsed, state.CompletionTokensUsed)
		log.Info("Resuming session: %d/%d lines already translated", len(completed), len(translatable))
	} else {
		o.store.Create(file.Path, o.opts.TrackID, len(translatable), sourceLang, targetLang, model)
	}

	totalBatches := (len(translatable) + o.opts.BatchSize - 1) / o.opts.BatchSize
	o.setStatus(StatusRunning)

	var context []string
	for batchIdx := 0; batchIdx*o.opts.BatchSize < len(translatable); batchIdx++ {
		if err := o.waitIfPaused(); err != nil {
			o.setStatus(StatusCancelled)
			return err
		}

		start := batchIdx * o.opts.BatchSize
		end := min(start+o.opts.BatchSize, len(translatable))
		batchLines := translatable[start:end]

		pending := make([]subtitle.Line, 0, len(batchLines))
		for _, line := range batchLines {
			if _, done := completed[line.Index]; !done {
				pending = append(pending, *line)
			}
		}

		if len(pending) == 0 {
			context = o.advanceContext(context, batchLines)
			o.emit(batchIdx, totalBatches, len(completed), len(translatable), OutcomeSkipped, "batch already translated")
			continue
		}

		result, usedModel, outcome, err := o.translateBatch(model, pending, context, batchIdx, totalBatches, len(completed), len(translatable))
		switch {
		case errors.Is(err, retry.ErrCancelled):
			o.setStatus(StatusCancelled)
			return err
		case err != nil:
			// One bad batch must not sink the job: the originals stay in
			// place and the loop moves on.
			log.Error("Batch %d/%d failed, keeping original text: %v", batchIdx+1, totalBatches, err)
			o.emit(batchIdx, totalBatches, len(completed), len(translatable), OutcomeFailed, err.Error())
		default:
			model = usedModel
			for _, item := range result.Lines {
				if line, ok := byIndex[item.Index]; ok {
					line.TranslatedText = item.Text
					completed[item.Index] = struct{}{}
				}
			}
			o.tokens.Add(result.PromptTokens, result.CompletionTokens)

			translations := make([]session.Translation, 0, len(result.Lines))
			for _, item := range result.Lines {
				translations = append(translations, session.Translation{Index: item.Index, Text: item.Text})
			}
			o.store.UpdateProgress(translations, batchIdx, result.PromptTokens, result.CompletionTokens)
			o.emit(batchIdx, totalBatches, len(completed), len(translatable), outcome, "")
		}

		context = o.advanceContext(context, batchLines)

		if end < len(translatable) {
			if err := o.sleepBetweenBatches(); err != nil {
				o.setStatus(StatusCancelled)
				return err
			}
		}
	}

	o.setStatus(StatusCompleted)
	o.store.Clear()
	log.Info("Translation finished: %d/%d lines, ~%d tokens", len(completed), len(translatable), o.tokens.Total())
	return nil
}

// translateBatch runs one batch, resubmitting once to a fallback model after
// a content policy refusal. Returns the model that produced the result so a
// successful fallback sticks for the rest of the job.
func (o *Orchestrator) translateBatch(
	model string,
	pending []subtitle.Line,
	context []string,
	batchIdx, totalBatches, done, total int,
) (*BatchResult, string, string, error) {
	onRetry := func(attempt int, delay float64, message string) {
		o.emit(batchIdx, totalBatches, done, total, OutcomeRetrying,
			fmt.Sprintf("attempt %d, waiting %.1fs: %s", attempt, delay, message))
	}
	cancelCheck := func() bool { return o.cancelled.Load() }

	result, err := o.batch.Translate(model, pending, context, onRetry, cancelCheck)
	if err == nil {
		return result, model, OutcomeSuccess, nil
	}

	var violation *llm.PolicyViolationError
	if !errors.As(err, &violation) {
		return nil, model, OutcomeFailed, err
	}

	o.fallback.MarkViolated(model)
	alt, ok := o.fallback.Pick(o.manager.AvailableModels(), model)
	if !ok {
		return nil, model, OutcomeFailed, fmt.Errorf("no fallback model available: %w", err)
	}

	log.Warn("Model %s refused the batch, retrying once with %s", model, alt)
	result, err = o.batch.Translate(alt, pending, context, onRetry, cancelCheck)
	if err != nil {
		if v := new(llm.PolicyViolationError); errors.As(err, &v) {
			o.fallback.MarkViolated(alt)
		}
		return nil, model, OutcomeFailed, err
	}
	return result, alt, OutcomeSuccessFallback, nil
}

// waitIfPaused blocks while the job is paused, polling so a cancel during a
// pause is still honored.
func (o *Orchestrator) waitIfPaused() error {
	if o.cancelled.Load() {
		return retry.ErrCancelled
	}
	if !o.paused.Load() {
		return nil
	}

	o.setStatus(StatusPaused)
	log.Info("Translation paused")
	for o.paused.Load() {
		if o.cancelled.Load() {
			return retry.ErrCancelled
		}
		time.Sleep(o.opts.PausePollInterval)
	}
	log.Info("Translation resumed")
	o.setStatus(StatusRunning)
	return nil
}

// sleepBetweenBatches spaces out provider requests, in short ticks so a
// cancel doesn't wait out the full delay.
func (o *Orchestrator) sleepBetweenBatches() error {
	remaining := o.opts.InterBatchDelay
	for remaining > 0 {
		if o.cancelled.Load() {
			return retry.ErrCancelled
		}
		tick := 100 * time.Millisecond
		if remaining < tick {
			tick = remaining
		}
		time.Sleep(tick)
		remaining -= tick
	}
	return nil
}

// advanceContext appends the batch's final texts to the rolling context
// window, keeping only the most recent lines.
func (o *Orchestrator) advanceContext(context []string, batch []*subtitle.Line) []string {
	for _, line := range batch {
		text := line.TranslatedText
		if text == "" {
			text = line.Text
		}
		context = append(context, text)
	}
	if len(context) > o.opts.ContextLines {
		context = context[len(context)-o.opts.ContextLines:]
	}
	return context
}

func (o *Orchestrator) emit(batchIdx, totalBatches, done, total int, outcome, message string) {
	if o.progressFn == nil {
		return
	}
	o.progressFn(ProgressEvent{
		BatchIndex:       batchIdx,
		TotalBatches:     totalBatches,
		CompletedLines:   done,
		TotalLines:       total,
		Outcome:          outcome,
		Message:          message,
		PromptTokens:     o.tokens.Prompt(),
		CompletionTokens: o.tokens.Completion(),
	})
}
