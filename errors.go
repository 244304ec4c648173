package main

import (
	"errors"
	"fmt"
)

// ErrorKind identifies the pipeline stage that rejected a job. The trigger
// infrastructure branches on the kind instead of matching error strings.
type ErrorKind string

const (
	InvalidTriggerPayload ErrorKind = "InvalidTriggerPayload"
	MissingConfiguration  ErrorKind = "MissingConfiguration"
	SourceFetchFailed     ErrorKind = "SourceFetchFailed"
	CorruptDocument       ErrorKind = "CorruptDocument"
	PageRenderFailed      ErrorKind = "PageRenderFailed"
	OutputUploadFailed    ErrorKind = "OutputUploadFailed"
	NotificationFailed    ErrorKind = "NotificationFailed"
)

// JobError is a typed, fatal invocation failure. None of these are retried
// internally; the caller re-runs the whole job or gives up.
type JobError struct {
	Kind  ErrorKind
	JobID string
	Err   error
}

func (e *JobError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: job %s", e.Kind, e.JobID)
	}
	return fmt.Sprintf("%s: job %s: %v", e.Kind, e.JobID, e.Err)
}

func (e *JobError) Unwrap() error { return e.Err }

func jobErr(kind ErrorKind, jobID string, err error) *JobError {
	if jobID == "" {
		jobID = "unknown"
	}
	return &JobError{Kind: kind, JobID: jobID, Err: err}
}

// KindOf extracts the failure kind, or "" for untyped errors.
func KindOf(err error) ErrorKind {
	var je *JobError
	if errors.As(err, &je) {
		return je.Kind
	}
	return ""
}
