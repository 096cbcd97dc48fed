// Package lock provides the single-flight guard for orchestration runs: a
// lock file holding the owner's pid, with a liveness check so a crashed run
// never wedges future runs.
package lock

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/nightlyone/lockfile"
)

// ErrHeld is returned by TryAcquire when a live process already owns the
// lock. This is an expected outcome under frequent polling, not an error to
// alarm on.
var ErrHeld = errors.New("run lock held by a live process")

// RunLock is an advisory, non-blocking file lock. Acquisition writes the
// owning pid; a stale file left by a dead owner is taken over, not honored.
type RunLock struct {
	lf lockfile.Lockfile
}

// New builds a RunLock at path. The path must be absolute for the liveness
// check to work across working directories, so a relative path is resolved
// first.
func New(path string) (*RunLock, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve lock path: %w", err)
	}
	lf, err := lockfile.New(abs)
	if err != nil {
		return nil, fmt.Errorf("init lock file: %w", err)
	}
	return &RunLock{lf: lf}, nil
}

// TryAcquire attempts to take the lock without blocking. A held lock with a
// live owner yields ErrHeld; a stale lock from a dead owner is removed and
// acquired.
func (l *RunLock) TryAcquire() error {
	err := l.lf.TryLock()
	if err == nil {
		return nil
	}
	if errors.Is(err, lockfile.ErrBusy) || errors.Is(err, lockfile.ErrNotExist) {
		// ErrNotExist surfaces when the holder unlinked the file mid-check;
		// treat it like contention and let the next tick retry.
		return ErrHeld
	}
	return fmt.Errorf("acquire run lock: %w", err)
}

// Release drops the lock. Safe to defer; releasing a lock that was never
// acquired reports an error that callers may ignore.
func (l *RunLock) Release() error {
	if err := l.lf.Unlock(); err != nil {
		return fmt.Errorf("release run lock: %w", err)
	}
	return nil
}

// Owner returns the pid of the current live holder, or an error when the
// lock is free or stale. It exists for logging and tests; acquisition logic
// never needs it directly.
func (l *RunLock) Owner() (int, error) {
	p, err := l.lf.GetOwner()
	if err != nil {
		return 0, err
	}
	return p.Pid, nil
}
