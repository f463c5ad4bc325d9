package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/subauto/subauto/pkg/file"
	"github.com/subauto/subauto/pkg/icron"
	"github.com/subauto/subauto/pkg/log"
)

// WatchService periodically scans the configured directories and translates
// subtitle files that appeared since the last scan.
type WatchService struct {
	svc             *Service
	cronExpr        string
	cron            *cron.Cron
	lastTriggerTime time.Time
}

func NewWatchService(
	svc *Service,
	c *cron.Cron,
) *WatchService {
	return &WatchService{
		svc:      svc,
		cronExpr: svc.cfg.System.CronExpr,
		cron:     c,
	}
}

var singleflightGroup singleflight.Group

// Schedule registers the scan on the cron runner. Overlapping triggers
// collapse into one run.
func (w *WatchService) Schedule(
	ctx context.Context,
) error {
	log.Info("Run WatchService with schedule %s", w.cronExpr)

	runFunc := func() {
		_, _, _ = singleflightGroup.Do("scan", func() (any, error) {
			for _, dir := range w.svc.cfg.System.WatchDirs {
				log.Info("Scanning dir %s", dir)
				if err := w.scan(ctx, dir); err != nil {
					log.Error("Failed to scan dir %s: %v", dir, err)
				}
			}
			w.lastTriggerTime = time.Now()
			return nil, nil
		})
	}
	_, err := w.cron.AddFunc(w.cronExpr, runFunc)
	return err
}

func (w *WatchService) scan(
	ctx context.Context,
	dir string,
) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return fmt.Errorf("directory %s does not exist", dir)
	}

	startTime, err := w.startTime()
	if err != nil {
		return fmt.Errorf("failed to get start time: %w", err)
	}
	log.Info("Searching for subtitle files modified after %v", startTime)

	recentFiles, err := file.FindRecentAfter(dir, startTime)
	if err != nil {
		return fmt.Errorf("failed to find recent files: %w", err)
	}

	for _, path := range recentFiles {
		ext := strings.ToLower(filepath.Ext(path))
		if !slices.Contains(subtitleExts, ext) {
			continue
		}
		if w.alreadyTranslated(path) {
			continue
		}

		log.Info("Translating %s", path)
		if _, err := w.svc.RunJob(ctx, JobRequest{InputPath: path, TrackID: -1}); err != nil {
			log.Error("Failed to translate %s: %v", path, err)
		}
	}
	return nil
}

// alreadyTranslated reports whether the file is itself an output of a
// previous run or already has one next to it.
func (w *WatchService) alreadyTranslated(path string) bool {
	target := w.svc.cfg.Translate.TargetLanguage

	if strings.HasSuffix(file.StripExt(path), "."+target.String()) {
		return true
	}
	_, err := os.Stat(deriveOutputPath(path, target))
	return err == nil
}

// startTime picks where the scan window begins. On the first run it falls
// back to the previous cron trigger, capped at one week back.
func (w *WatchService) startTime() (time.Time, error) {
	if w.lastTriggerTime.IsZero() {
		cronSchedule, err := icron.GetTriggerInfo(w.cronExpr, time.Now())
		if err != nil {
			return time.Time{}, fmt.Errorf("failed to get cron schedule: %w", err)
		}

		if time.Now().Add(-24 * time.Hour).Before(cronSchedule.Last) {
			return time.Now().Add(-24 * 7 * time.Hour), nil
		}
		return cronSchedule.Last, nil
	}

	return w.lastTriggerTime, nil
}
