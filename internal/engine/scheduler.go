package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ScheduleConfig controls periodic sync runs.
type ScheduleConfig struct {
	Interval time.Duration
	// MaxRuns stops the scheduler after that many passes; zero means
	// run until the context is canceled.
	MaxRuns int
}

// RunScheduled ingests the inbox and syncs pending URLs on a fixed
// interval. The first pass runs immediately. Returns nil on a clean
// stop (context canceled or MaxRuns reached).
func (e *Engine) RunScheduled(ctx context.Context, cfg ScheduleConfig) error {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Minute
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	runs := 0
	for {
		e.runPass(ctx)
		runs++
		if cfg.MaxRuns > 0 && runs >= cfg.MaxRuns {
			e.logger.Info("scheduler finished", zap.Int("runs", runs))
			return nil
		}

		select {
		case <-ctx.Done():
			e.logger.Info("scheduler stopping", zap.Int("runs", runs))
			return nil
		case <-ticker.C:
		}
	}
}

// WatchInbox blocks watching the inbox file and triggers a pass on
// every write. Changes are debounced so an editor's save burst runs one
// sync, not five.
func (e *Engine) WatchInbox(ctx context.Context) error {
	if e.inbox == nil {
		return fmt.Errorf("no inbox configured")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory, not the file: editors replace files by
	// rename, which drops a watch on the file itself.
	if err := watcher.Add(e.inbox.Dir()); err != nil {
		return fmt.Errorf("watch inbox dir: %w", err)
	}

	const debounce = 2 * time.Second
	var timer *time.Timer
	fire := make(chan struct{}, 1)

	e.logger.Info("watching inbox", zap.String("path", e.inbox.Path()))
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-watcher.Errors:
			e.logger.Warn("watcher error", zap.Error(err))
		case event := <-watcher.Events:
			if event.Name != e.inbox.Path() {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case <-fire:
			e.runPass(ctx)
		}
	}
}

// runPass is one ingest-then-sync cycle. Errors are logged, not
// returned: a failed pass must not kill the schedule.
func (e *Engine) runPass(ctx context.Context) {
	if _, err := e.IngestInbox(ctx); err != nil {
		e.logger.Warn("inbox ingestion failed", zap.Error(err))
	}
	results, err := e.Sync(ctx)
	if err != nil {
		e.logger.Warn("sync pass failed", zap.Error(err))
		return
	}
	var synced, missed int
	for _, r := range results {
		if r.Err != nil {
			missed++
		} else {
			synced++
		}
	}
	if len(results) > 0 {
		e.logger.Info("sync pass finished",
			zap.Int("synced", synced), zap.Int("missed", missed))
	}
}
