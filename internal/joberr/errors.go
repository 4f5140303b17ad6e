// Package joberr defines the error taxonomy of the transcription pipeline.
// Handlers map these to HTTP error codes; workers use them to decide whether
// a failure is the caller's fault or a pipeline fault.
package joberr

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrJobNotFound is returned when a job id does not exist (or is not
	// visible to the caller).
	ErrJobNotFound = errors.New("job not found")

	// ErrConflict is returned by the admission gate when the owner already
	// has a job in PENDING or PROCESSING.
	ErrConflict = errors.New("owner already has an active job")

	// ErrNotReady is returned when minutes are requested before a usable
	// transcript exists.
	ErrNotReady = errors.New("transcript not ready")
)

// IllegalTransitionError reports a job lifecycle operation that is not legal
// from the job's current status, e.g. cancelling a COMPLETED job.
type IllegalTransitionError struct {
	From string
	To   string
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal status transition %s -> %s", e.From, e.To)
}

// SegmentationError reports that the source audio could not be split.
// It is unrecoverable and fails the job immediately.
type SegmentationError struct {
	Source string
	Stderr string
	Err    error
}

func (e *SegmentationError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("segmentation of %s failed: %v: %s", e.Source, e.Err, e.Stderr)
	}
	return fmt.Sprintf("segmentation of %s failed: %v", e.Source, e.Err)
}

func (e *SegmentationError) Unwrap() error { return e.Err }

// UploadError reports a failure while pushing a segment to the remote service.
type UploadError struct {
	Op  string
	Err error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("remote upload failed during %s: %v", e.Op, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// ActivationError reports that the remote artifact reached a failed state
// while waiting for it to become usable.
type ActivationError struct {
	FileName string
	State    string
}

func (e *ActivationError) Error() string {
	return fmt.Sprintf("remote file %s entered state %s", e.FileName, e.State)
}

// ActivationTimeoutError reports that the remote artifact did not become
// usable within the configured wait ceiling.
type ActivationTimeoutError struct {
	FileName string
	Waited   time.Duration
}

func (e *ActivationTimeoutError) Error() string {
	return fmt.Sprintf("remote file %s not active after %v", e.FileName, e.Waited)
}

// SafetyBlockedError reports a generation response with no candidates,
// which the remote service produces when content is safety-filtered.
type SafetyBlockedError struct {
	Detail string
}

func (e *SafetyBlockedError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("generation returned no candidates: %s", e.Detail)
	}
	return "generation returned no candidates"
}
