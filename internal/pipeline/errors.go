package pipeline

import (
	"errors"
	"fmt"
	"time"
)

// Stage identifies which part of the pipeline produced an error.
type Stage string

const (
	StageValidate   Stage = "validate"
	StageTranscode  Stage = "transcode"
	StageTranscribe Stage = "transcribe"
	StageRespond    Stage = "respond"
	StageSynthesize Stage = "synthesize"
)

// ValidationError reports a rejected input. It is never retried and maps to a
// client-error response.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid input: %v", e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// TranscodeError reports a failed audio format conversion after retries were
// exhausted.
type TranscodeError struct {
	Attempts int
	Err      error
}

func (e *TranscodeError) Error() string {
	return fmt.Sprintf("transcode failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *TranscodeError) Unwrap() error { return e.Err }

// RemoteServiceError reports a remote backend failure after retries were
// exhausted, tagged with the stage that failed.
type RemoteServiceError struct {
	Stage    Stage
	Attempts int
	Err      error
}

func (e *RemoteServiceError) Error() string {
	return fmt.Sprintf("%s stage failed after %d attempts: %v", e.Stage, e.Attempts, e.Err)
}

func (e *RemoteServiceError) Unwrap() error { return e.Err }

// SessionError reports unexpected internal session state. It is fatal for the
// request and never retried.
type SessionError struct {
	SessionID string
	Err       error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session %s: %v", e.SessionID, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// TimeoutError reports that a pipeline run exceeded its total time budget.
// It is distinct from RemoteServiceError so callers can tell a slow pipeline
// from a broken backend.
type TimeoutError struct {
	Stage   Stage
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("pipeline exceeded %s budget during %s stage", e.Timeout, e.Stage)
}

// IsClientError reports whether err should be surfaced as a caller mistake
// rather than a backend failure.
func IsClientError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
