package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/subauto/subauto/internal/config"
	"github.com/subauto/subauto/internal/history"
	"github.com/subauto/subauto/internal/llm"
	"github.com/subauto/subauto/internal/media"
	"github.com/subauto/subauto/internal/retry"
	"github.com/subauto/subauto/internal/session"
	"github.com/subauto/subauto/internal/subtitle"
	"github.com/subauto/subauto/internal/translator"
	"github.com/subauto/subauto/pkg/file"
	"github.com/subauto/subauto/pkg/log"
)

// Service wires configuration, the model backend and the media tooling into
// runnable translation jobs.
type Service struct {
	cfg     *config.Config
	history *history.SQLiteStore

	newOperator func(mediaPath string) media.Operator
}

func New(cfg *config.Config, historyStore *history.SQLiteStore) *Service {
	return &Service{
		cfg:         cfg,
		history:     historyStore,
		newOperator: media.NewOperator,
	}
}

// RunJob executes one translation end to end: resolve the subtitle, run the
// batch loop, write the output file and record the run.
func (s *Service) RunJob(ctx context.Context, req JobRequest) (*JobResult, error) {
	started := time.Now()

	subPath, trackID, err := s.resolveSubtitlePath(req)
	if err != nil {
		return nil, err
	}

	sub, err := subtitle.NewReader(subPath).Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read subtitle file %s: %w", subPath, err)
	}

	sourceLang := s.cfg.Translate.SourceLanguage
	if sourceLang == language.Und {
		sourceLang = sub.Language
	}
	targetLang := s.cfg.Translate.TargetLanguage

	provider, err := NewProvider(s.cfg)
	if err != nil {
		return nil, err
	}
	manager := llm.NewManager(provider, s.cfg.LLM.Model)
	if ok, msg := manager.Validate(); !ok {
		return nil, fmt.Errorf("provider validation failed: %s", msg)
	}
	log.Info("Using model %s", manager.SelectedModel())

	orch, failedBatches := s.newOrchestrator(provider, manager, sourceLang, targetLang, trackID)

	// A cancelled context (e.g. SIGINT) stops the job at the next safe
	// point; progress stays on disk for a later resume.
	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	go func() {
		<-watchCtx.Done()
		orch.Cancel()
	}()

	runErr := orch.Run(sub, sourceLang.String(), targetLang.String())
	stopWatch()

	outputPath := req.OutputPath
	if outputPath == "" {
		outputPath = deriveOutputPath(subPath, targetLang)
	}

	result := &JobResult{
		OutputFile:       outputPath,
		TotalLines:       len(sub.Lines),
		TranslatedLines:  countTranslated(sub.Lines),
		FailedBatches:    *failedBatches,
		PromptTokens:     orch.Tokens().Prompt(),
		CompletionTokens: orch.Tokens().Completion(),
		Status:           string(orch.Status()),
		Duration:         time.Since(started),
	}

	if runErr == nil {
		if err := subtitle.NewWriter().Write(outputPath, sub); err != nil {
			runErr = fmt.Errorf("failed to write output file: %w", err)
			result.Status = string(translator.StatusFailed)
		}
	}

	if runErr == nil && req.MergeBack && req.InputPath != subPath {
		if err := s.mergeBack(req.InputPath, outputPath, targetLang); err != nil {
			log.Error("Failed to merge subtitle into container: %v", err)
		}
	}

	s.recordHistory(ctx, req, subPath, sourceLang, targetLang, manager.SelectedModel(), result, runErr)

	if runErr != nil {
		return result, runErr
	}
	log.Info("Job finished: %s (%d/%d lines, %d failed batches)",
		outputPath, result.TranslatedLines, result.TotalLines, result.FailedBatches)
	return result, nil
}

// newOrchestrator assembles the batch pipeline. The returned counter is
// incremented by the progress hook for every failed batch.
func (s *Service) newOrchestrator(provider llm.Provider, manager *llm.Manager, sourceLang, targetLang language.Tag, trackID int) (*translator.Orchestrator, *int) {
	engine := retry.NewEngine(retry.Config{
		MaxRetries:         s.cfg.Retry.MaxRetries,
		InitialDelay:       s.cfg.Retry.InitialDelay,
		MaxDelay:           s.cfg.Retry.MaxDelay,
		ExponentialBase:    2.0,
		Jitter:             true,
		RetryOnRateLimit:   true,
		RetryOnServerError: true,
	})

	prompts := translator.NewPromptBuilder(translator.PromptStyle(s.cfg.Translate.PromptStyle))
	batch := translator.NewBatchTranslator(provider, engine, prompts,
		languageName(sourceLang), languageName(targetLang))

	fallbackCfg := translator.DefaultFallbackConfig()
	fallbackCfg.FallbackModel = s.cfg.LLM.FallbackModel

	orch := translator.NewOrchestrator(
		manager,
		batch,
		session.NewStore(s.cfg.StateDir()),
		translator.NewFallbackRouter(fallbackCfg),
		translator.Options{
			BatchSize:    s.cfg.Translate.BatchSize,
			ContextLines: s.cfg.Translate.ContextLines,
			TrackID:      trackID,
		},
	)

	failedBatches := new(int)
	orch.OnProgress(func(e translator.ProgressEvent) {
		switch e.Outcome {
		case translator.OutcomeFailed:
			*failedBatches++
			log.Warn("Batch %d/%d failed: %s", e.BatchIndex+1, e.TotalBatches, e.Message)
		case translator.OutcomeRetrying:
			log.Info("Batch %d/%d: %s", e.BatchIndex+1, e.TotalBatches, e.Message)
		default:
			log.Info("Batch %d/%d (%s): %d/%d lines done",
				e.BatchIndex+1, e.TotalBatches, e.Outcome, e.CompletedLines, e.TotalLines)
		}
	})
	return orch, failedBatches
}

// NewProvider builds the configured model backend.
func NewProvider(cfg *config.Config) (llm.Provider, error) {
	switch cfg.LLM.Provider {
	case "openrouter":
		return llm.NewOpenRouterProvider(llm.OpenRouterConfig{
			APIKey:  cfg.LLM.APIKey,
			APIURL:  cfg.LLM.APIURL,
			Timeout: cfg.LLM.Timeout,
			SiteURL: cfg.LLM.SiteURL,
			AppName: cfg.LLM.AppName,
		}), nil
	case "ollama":
		return llm.NewOllamaProvider(cfg.LLM.APIURL), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.LLM.Provider)
	}
}

// resolveSubtitlePath returns a subtitle file for the request, extracting a
// track first when the input is a media container. The returned track ID is
// 0 for a plain subtitle file.
func (s *Service) resolveSubtitlePath(req JobRequest) (string, int, error) {
	ext := strings.ToLower(filepath.Ext(req.InputPath))
	if slices.Contains(subtitleExts, ext) {
		return req.InputPath, 0, nil
	}
	if !slices.Contains(mediaExts, ext) {
		return "", 0, fmt.Errorf("unsupported input file: %s", req.InputPath)
	}

	op := s.newOperator(req.InputPath)
	tracks, err := op.ListSubtitleTracks()
	if err != nil {
		return "", 0, fmt.Errorf("failed to list subtitle tracks of %s: %w", req.InputPath, err)
	}

	track, err := pickTrack(tracks, req.TrackID, s.cfg.Translate.SourceLanguage)
	if err != nil {
		return "", 0, err
	}
	log.Info("Extracting subtitle track %d (%s, %s) from %s", track.ID, track.Language, track.Codec, req.InputPath)

	name := fmt.Sprintf("%s.track%d%s", file.StripExt(req.InputPath), track.ID, track.Extension())
	output, err := op.ExtractTrack(track.ID, filepath.Dir(req.InputPath), name)
	if err != nil {
		return "", 0, fmt.Errorf("failed to extract subtitle track: %w", err)
	}
	return output, track.ID, nil
}

func (s *Service) mergeBack(containerPath, subtitlePath string, targetLang language.Tag) error {
	merged := filepath.Join(
		filepath.Dir(containerPath),
		file.StripExt(containerPath)+".merged"+filepath.Ext(containerPath),
	)
	trackName := languageName(targetLang) + " (AI)"
	return s.newOperator(containerPath).MergeSubtitle(subtitlePath, merged, targetLang.String(), trackName)
}

func (s *Service) recordHistory(
	ctx context.Context,
	req JobRequest,
	subPath string,
	sourceLang, targetLang language.Tag,
	model string,
	result *JobResult,
	runErr error,
) {
	if s.history == nil {
		return
	}
	record := history.Record{
		SourceFile:       subPath,
		OutputFile:       result.OutputFile,
		SourceLang:       sourceLang.String(),
		TargetLang:       targetLang.String(),
		ModelName:        model,
		TotalLines:       result.TotalLines,
		TranslatedLines:  result.TranslatedLines,
		FailedBatches:    result.FailedBatches,
		PromptTokens:     result.PromptTokens,
		CompletionTokens: result.CompletionTokens,
		Status:           result.Status,
		Duration:         result.Duration,
	}
	if runErr != nil && !errors.Is(runErr, retry.ErrCancelled) {
		record.Error = runErr.Error()
	}
	if _, err := s.history.Insert(ctx, record); err != nil {
		log.Warn("Failed to record job history: %v", err)
	}
}

// pickTrack selects the subtitle track to extract: the explicit ID when
// requested, otherwise a source language match, the default track or the
// first one.
func pickTrack(tracks []media.Track, requested int, source language.Tag) (media.Track, error) {
	if len(tracks) == 0 {
		return media.Track{}, fmt.Errorf("no subtitle tracks found")
	}
	if requested >= 0 {
		for _, t := range tracks {
			if t.ID == requested {
				return t, nil
			}
		}
		return media.Track{}, fmt.Errorf("subtitle track %d not found", requested)
	}
	if source != language.Und {
		for _, t := range tracks {
			if matchesLanguage(t.Language, source) {
				return t, nil
			}
		}
	}
	for _, t := range tracks {
		if t.Default {
			return t, nil
		}
	}
	return tracks[0], nil
}

// matchesLanguage compares a container language code (usually ISO 639-2,
// e.g. "eng") against a BCP 47 tag by base language.
func matchesLanguage(code string, tag language.Tag) bool {
	parsed, err := language.Parse(code)
	if err != nil {
		return false
	}
	parsedBase, _ := parsed.Base()
	tagBase, _ := tag.Base()
	return parsedBase == tagBase
}

// deriveOutputPath inserts the target language before the extension:
// "show.srt" -> "show.id.srt".
func deriveOutputPath(subPath string, target language.Tag) string {
	return filepath.Join(
		filepath.Dir(subPath),
		file.StripExt(subPath)+"."+target.String()+filepath.Ext(subPath),
	)
}

// languageName renders a tag as an English language name for prompts and
// track titles.
func languageName(tag language.Tag) string {
	if tag == language.Und {
		return ""
	}
	return display.English.Languages().Name(tag)
}

func countTranslated(lines []subtitle.Line) int {
	n := 0
	for _, line := range lines {
		if line.TranslatedText != "" {
			n++
		}
	}
	return n
}
