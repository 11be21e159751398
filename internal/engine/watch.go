package engine

import (
	"context"
	"time"

	"github.com/finnctl/finnctl/pkg/config"
	"github.com/finnctl/finnctl/pkg/logger"
)

// WatchOptions tune Watch
type WatchOptions struct {
	Debounce time.Duration
	// OnReconcile is called after each reload attempt; used by the CLI to print progress
	OnReconcile func(regenerated bool, err error)
}

// Watch keeps the environment build script in sync with the configuration file
// until ctx is cancelled. Reloads are handled one at a time.
func (e *Engine) Watch(ctx context.Context, opts WatchOptions) error {
	if _, err := e.Reconcile(ctx); err != nil {
		return err
	}

	rm := config.NewReloadManager(e.configPath, e.logger)
	if opts.Debounce > 0 {
		rm.SetDebouncePeriod(opts.Debounce)
	}
	rm.Prime(e.Document().Fingerprint())

	rm.AddCallback(func(doc *config.Document, err error) {
		if err != nil {
			// Keep the last good configuration until the file is fixed
			e.logger.Warn("Ignoring invalid configuration", logger.WithError(err))
			e.report(opts, false, err)
			return
		}

		if err := e.apply(doc); err != nil {
			e.logger.Error("Failed to apply configuration", logger.WithError(err))
			e.report(opts, false, err)
			return
		}

		regenerated, err := e.Reconcile(ctx)
		if err != nil {
			e.logger.Error("Failed to regenerate build script", logger.WithError(err))
		}
		e.report(opts, regenerated, err)
	})

	group, gctx := NewSafeGroup(ctx, e.logger)
	group.Go("config-watcher", func() error {
		return rm.Watch(gctx)
	})

	e.logger.Info("Watching configuration", logger.WithField("path", e.configPath))
	return group.Wait()
}

func (e *Engine) report(opts WatchOptions, regenerated bool, err error) {
	if opts.OnReconcile != nil {
		opts.OnReconcile(regenerated, err)
	}
}
