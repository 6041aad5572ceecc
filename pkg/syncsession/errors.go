package syncsession

import (
	"errors"
	"fmt"
)

var (
	// ErrNotRun is returned when an operation needs a previous SyncResult.
	ErrNotRun = errors.New("session has not produced a result yet")
	// ErrUnknownClip is returned when an anchor names a clip id the session does not hold.
	ErrUnknownClip = errors.New("unknown clip id")
	// ErrSameClip is returned when both anchor ends name the same clip.
	ErrSameClip = errors.New("anchor clips must differ")
	// ErrSameDevice is returned when both anchor clips belong to one device.
	ErrSameDevice = errors.New("anchor clips must belong to different devices")
	// ErrInvalidAnchor is returned for anchor requests missing required fields.
	ErrInvalidAnchor = errors.New("invalid anchor request")
	// ErrCancelled wraps the context error of an aborted run.
	ErrCancelled = errors.New("sync run cancelled")
	// ErrInvalidTimecode matches every *InvalidTimecodeError via errors.Is.
	ErrInvalidTimecode = errors.New("invalid timecode")
)

// InvalidTimecodeError reports a timecode string that failed validation.
type InvalidTimecodeError struct {
	Value  string
	Reason string
}

func (e *InvalidTimecodeError) Error() string {
	return fmt.Sprintf("invalid timecode %q: %s", e.Value, e.Reason)
}

func (e *InvalidTimecodeError) Is(target error) bool {
	return target == ErrInvalidTimecode
}

func cancelled(err error) error {
	return fmt.Errorf("%w: %w", ErrCancelled, err)
}
