package project

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/finnctl/finnctl/pkg/types"
)

// Locker hands out advisory per-project locks shared by every finnctl process
// working in the same directory. Locks are not held across invocations.
type Locker struct {
	dir string
}

// NewLocker creates a lock registry under workdir
func NewLocker(workdir string) *Locker {
	return &Locker{dir: filepath.Join(workdir, types.DataDir, "locks")}
}

// TryLock takes the lock for name without waiting.
// It fails with ErrProjectBusy when another process holds it.
func (l *Locker) TryLock(name string) (func(), error) {
	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	lock := flock.New(filepath.Join(l.dir, name+".lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock project %s: %w", name, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", types.ErrProjectBusy, name)
	}
	return func() { _ = lock.Unlock() }, nil
}
