package domain

import "errors"

// Sentinel errors for the job pipeline and retrieval path. Handlers map these
// to HTTP status codes with errors.Is; the scheduler records their reason
// strings in Job.Error.
var (
	// ErrCapacityExceeded is returned by Submit when the number of
	// non-terminal jobs has reached the admission ceiling.
	ErrCapacityExceeded = errors.New("job capacity exceeded")

	// ErrNotFound covers unknown job IDs and empty-store lookups.
	ErrNotFound = errors.New("not found")

	// ErrTranscriptionTimeout means the ASR task did not finish within the
	// polling budget.
	ErrTranscriptionTimeout = errors.New("transcription timed out")

	// ErrTranscriptionRejected means the ASR service refused or failed the
	// task, e.g. unintelligible or malformed audio.
	ErrTranscriptionRejected = errors.New("transcription rejected")

	// ErrSummaryUnavailable marks a failed summarization. It is non-fatal:
	// the job still completes with an empty summary.
	ErrSummaryUnavailable = errors.New("summary unavailable")

	// ErrWriteFailure means the transcript was produced but could not be
	// persisted. It is fatal to the job and deliberately distinct from
	// transcription errors so operators can tell "recognition failed" from
	// "recognized but not saved".
	ErrWriteFailure = errors.New("log write failure")

	// ErrNoLogsAvailable is returned by query answering when the store holds
	// no entries at all.
	ErrNoLogsAvailable = errors.New("no logs available")
)

// Terminal failure reason strings recorded in Job.Error.
const (
	ReasonCancelled             = "cancelled"
	ReasonUploadFailed          = "upload failed"
	ReasonTranscriptionTimeout  = "transcription timeout"
	ReasonTranscriptionRejected = "transcription rejected"
	ReasonWriteFailure          = "write failure"
)
