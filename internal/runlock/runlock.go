// Package runlock serializes cache updates across process invocations.
//
// sshd may spawn one syncer per inbound authentication attempt, so several
// invocations can race on the same cache files. The lock is host-local and
// non-blocking: a second invocation finding the lock held is redundant, not
// wrong, and exits cleanly.
package runlock

import (
	"errors"
	"fmt"

	"github.com/gofrs/flock"
)

// ErrBusy reports that another invocation holds the lock. Callers treat it
// as a benign no-op, not a failure.
var ErrBusy = errors.New("cache update already in progress")

type Lock struct {
	fl *flock.Flock
}

// Acquire takes the exclusive lock at path without waiting. The caller must
// Release on every exit path of the guarded section; the process can be
// long-lived (schedule mode), so release is not left to process exit.
func Acquire(path string) (*Lock, error) {
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	if !ok {
		return nil, ErrBusy
	}
	return &Lock{fl: fl}, nil
}

func (l *Lock) Release() error {
	return l.fl.Unlock()
}
