package storage

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/himanishpuri/AcousticSync/pkg/utils"
)

var ErrSessionBusy = errors.New("session is in use by another process")

// SessionLock guards one session against concurrent runs from separate
// processes sharing the same database.
type SessionLock struct {
	path string
	lock *flock.Flock
}

// LockSession takes a non-blocking file lock for the session under dir.
func LockSession(dir, sessionID string) (*SessionLock, error) {
	if err := utils.MakeDir(dir); err != nil {
		return nil, fmt.Errorf("creating lock dir: %w", err)
	}
	path := filepath.Join(dir, sessionID+".lock")
	l := flock.New(path)
	ok, err := l.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionBusy, sessionID)
	}
	return &SessionLock{path: path, lock: l}, nil
}

func (l *SessionLock) Path() string {
	return l.path
}

func (l *SessionLock) Unlock() error {
	if l == nil || l.lock == nil {
		return nil
	}
	return l.lock.Unlock()
}
