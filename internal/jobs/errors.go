package jobs

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound reports an unknown job identifier.
	ErrNotFound = errors.New("job not found")
	// ErrInvalidTransition reports a mutation attempt on a terminal job.
	ErrInvalidTransition = errors.New("job is already in a terminal state")
	// ErrCapacity reports that the store refuses new jobs.
	ErrCapacity = errors.New("too many active jobs")
)

// DownloadError carries the human-readable cause of a failed extraction.
type DownloadError struct {
	Reason string
	Cause  error
}

func (e *DownloadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("download failed: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("download failed: %s", e.Reason)
}

func (e *DownloadError) Unwrap() error {
	return e.Cause
}

func NewDownloadError(reason string, cause error) *DownloadError {
	return &DownloadError{Reason: reason, Cause: cause}
}
