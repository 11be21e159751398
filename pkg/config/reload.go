package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/finnctl/finnctl/pkg/logger"
	"github.com/finnctl/finnctl/pkg/types"
	"github.com/fsnotify/fsnotify"
)

// ReloadCallback is called with the newly loaded document, or an error
type ReloadCallback func(*Document, error)

// ReloadManager watches the configuration file and reloads it when its content changes
type ReloadManager struct {
	configPath      string
	logger          logger.Logger
	callbacks       []ReloadCallback
	debouncePeriod  time.Duration
	lastFingerprint types.Fingerprint
	primed          bool
	mu              sync.Mutex
}

// NewReloadManager creates a new configuration reload manager
func NewReloadManager(configPath string, log logger.Logger) *ReloadManager {
	return &ReloadManager{
		configPath:     configPath,
		logger:         logger.OrNop(log),
		debouncePeriod: 500 * time.Millisecond,
	}
}

// AddCallback adds a reload callback. Callbacks run sequentially on the watch goroutine.
func (rm *ReloadManager) AddCallback(callback ReloadCallback) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.callbacks = append(rm.callbacks, callback)
}

// SetDebouncePeriod sets the debounce period for file change events
func (rm *ReloadManager) SetDebouncePeriod(period time.Duration) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.debouncePeriod = period
}

// Prime records the fingerprint already acted upon, so an unchanged file is not reported
func (rm *ReloadManager) Prime(fp types.Fingerprint) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.lastFingerprint = fp
	rm.primed = true
}

// Watch blocks until ctx is cancelled, reloading the configuration after each settled change
func (rm *ReloadManager) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory; editors replace files by rename
	configDir := filepath.Dir(rm.configPath)
	if err := watcher.Add(configDir); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	rm.logger.Debug("Started watching configuration file",
		logger.WithField("path", rm.configPath))

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			rm.logger.Debug("Stopped watching configuration file")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !rm.isConfigFileEvent(event.Name) {
				continue
			}
			rm.logger.Debug("Configuration file event received",
				logger.WithField("event", event.String()))

			if timer != nil {
				timer.Stop()
			}
			rm.mu.Lock()
			timer = time.NewTimer(rm.debouncePeriod)
			rm.mu.Unlock()
			fire = timer.C

		case <-fire:
			fire = nil
			rm.handleConfigChange()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			rm.logger.Error("Configuration file watcher error", logger.WithError(err))
			rm.notifyCallbacks(nil, err)
		}
	}
}

// TriggerReload reloads immediately, bypassing the watcher
func (rm *ReloadManager) TriggerReload() {
	rm.handleConfigChange()
}

func (rm *ReloadManager) isConfigFileEvent(eventPath string) bool {
	return filepath.Base(eventPath) == filepath.Base(rm.configPath)
}

func (rm *ReloadManager) handleConfigChange() {
	if _, err := os.Stat(rm.configPath); errors.Is(err, fs.ErrNotExist) {
		// Editors often remove then recreate; the create event reloads
		rm.logger.Debug("Configuration file currently absent", logger.WithField("path", rm.configPath))
		return
	}

	doc, err := Load(rm.configPath)
	if err != nil {
		rm.logger.Error("Failed to reload configuration", logger.WithError(err))
		rm.notifyCallbacks(nil, err)
		return
	}

	fp := doc.Fingerprint()
	rm.mu.Lock()
	if rm.primed && fp == rm.lastFingerprint {
		rm.mu.Unlock()
		rm.logger.Debug("Configuration content unchanged, skipping reload")
		return
	}
	rm.lastFingerprint = fp
	rm.primed = true
	rm.mu.Unlock()

	rm.logger.Info("Configuration reloaded", logger.WithField("fingerprint", fp.String()[:12]))
	rm.notifyCallbacks(doc, nil)
}

func (rm *ReloadManager) notifyCallbacks(doc *Document, err error) {
	rm.mu.Lock()
	callbacks := make([]ReloadCallback, len(rm.callbacks))
	copy(callbacks, rm.callbacks)
	rm.mu.Unlock()

	for _, cb := range callbacks {
		rm.invoke(cb, doc, err)
	}
}

func (rm *ReloadManager) invoke(cb ReloadCallback, doc *Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			rm.logger.Error("Reload callback panic recovered", logger.WithField("panic", r))
		}
	}()
	cb(doc, err)
}
