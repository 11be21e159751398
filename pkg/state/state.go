// Package state persists the configuration fingerprint and per-project run history
package state

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/finnctl/finnctl/pkg/logger"
	"github.com/finnctl/finnctl/pkg/types"
	"github.com/finnctl/finnctl/pkg/utils"
)

const lockRetryDelay = 100 * time.Millisecond

// ChangeDetector decides whether generated scripts are stale relative to the configuration.
// It is the only reader and writer of the fingerprint state file.
type ChangeDetector struct {
	statePath string
	lock      *flock.Flock
	logger    logger.Logger
}

// NewChangeDetector creates a change detector keeping its state file in workdir
func NewChangeDetector(workdir string, log logger.Logger) *ChangeDetector {
	statePath := filepath.Join(workdir, types.FingerprintFile)
	return &ChangeDetector{
		statePath: statePath,
		lock:      flock.New(statePath + ".lock"),
		logger:    logger.OrNop(log),
	}
}

// StatePath returns the location of the fingerprint file
func (cd *ChangeDetector) StatePath() string {
	return cd.statePath
}

// IsOutdated reports whether fp differs from the persisted fingerprint.
// A missing or unreadable state file counts as outdated.
func (cd *ChangeDetector) IsOutdated(fp types.Fingerprint) bool {
	data, err := os.ReadFile(cd.statePath)
	if err != nil {
		if !os.IsNotExist(err) {
			cd.logger.Warn("Failed to read fingerprint file, treating configuration as outdated",
				logger.WithError(err))
		}
		return true
	}

	persisted, err := types.ParseFingerprint(string(data))
	if err != nil {
		cd.logger.Warn("Corrupt fingerprint file, treating configuration as outdated",
			logger.WithError(err))
		return true
	}
	return persisted != fp
}

// Reconcile runs regenerate and then persists fp, but only when the configuration is outdated.
// It reports whether regeneration happened. A failed regeneration leaves the state file untouched.
func (cd *ChangeDetector) Reconcile(ctx context.Context, fp types.Fingerprint, regenerate func() error) (bool, error) {
	unlock, err := cd.acquire(ctx)
	if err != nil {
		return false, err
	}
	defer unlock()

	if !cd.IsOutdated(fp) {
		cd.logger.Debug("Configuration unchanged", logger.WithField("fingerprint", short(fp)))
		return false, nil
	}

	cd.logger.Info("Detected outdated configuration. Re-instantiating build scripts now.")
	if err := cd.regenerate(fp, regenerate); err != nil {
		return false, err
	}
	return true, nil
}

// Force runs regenerate unconditionally and persists fp
func (cd *ChangeDetector) Force(ctx context.Context, fp types.Fingerprint, regenerate func() error) error {
	unlock, err := cd.acquire(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	return cd.regenerate(fp, regenerate)
}

func (cd *ChangeDetector) regenerate(fp types.Fingerprint, regenerate func() error) error {
	if err := regenerate(); err != nil {
		return err
	}
	if err := utils.WriteFileAtomic(cd.statePath, []byte(fp.String()), 0644); err != nil {
		return fmt.Errorf("failed to persist configuration fingerprint: %w", err)
	}
	cd.logger.Debug("Persisted configuration fingerprint", logger.WithField("fingerprint", short(fp)))
	return nil
}

// acquire takes the advisory lock guarding the state file across processes
func (cd *ChangeDetector) acquire(ctx context.Context) (func(), error) {
	locked, err := cd.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", cd.lock.Path(), err)
	}
	if !locked {
		return nil, fmt.Errorf("failed to lock %s", cd.lock.Path())
	}
	return func() {
		if err := cd.lock.Unlock(); err != nil {
			cd.logger.Debug("Failed to release state lock", logger.WithError(err))
		}
	}, nil
}

func short(fp types.Fingerprint) string {
	return fp.String()[:12]
}
