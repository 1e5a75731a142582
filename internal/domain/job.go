package domain

import "time"

// JobState represents the lifecycle stage of a voice log job.
// Transitions are strictly forward: Pending → Uploading → Transcribing →
// Summarizing → Completed, with Failed reachable from any non-terminal state.
type JobState string

const (
	JobStatePending      JobState = "pending"
	JobStateUploading    JobState = "uploading"
	JobStateTranscribing JobState = "transcribing"
	JobStateSummarizing  JobState = "summarizing"
	JobStateCompleted    JobState = "completed"
	JobStateFailed       JobState = "failed"
)

// Terminal reports whether the state admits no further transitions.
func (s JobState) Terminal() bool {
	return s == JobStateCompleted || s == JobStateFailed
}

// Progress milestones per state. Progress within a state moves between its
// floor and the next state's floor, and never decreases while the job is alive.
const (
	ProgressPending      = 0
	ProgressUploading    = 5
	ProgressTranscribing = 20
	ProgressSummarizing  = 90
	ProgressCompleted    = 100
)

// Job is one admitted audio-processing request. It lives in the scheduler's
// registry only; the durable artifact of a successful job is a LogEntry.
// All fields are owned by the scheduler — observers get JobSnapshot copies.
type Job struct {
	ID          string
	SourceName  string // original upload filename
	SourceKey   string // object storage key holding the audio payload
	State       JobState
	Progress    int
	Transcript  string
	Summary     string
	SummaryNote string // non-fatal summarization failure annotation
	Error       string // terminal failure reason, set only in Failed
	LogFilename string // filename of the appended LogEntry, set on completion
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Snapshot returns a point-in-time value copy of the job.
func (j *Job) Snapshot() *JobSnapshot {
	return &JobSnapshot{
		ID:          j.ID,
		SourceName:  j.SourceName,
		State:       j.State,
		Progress:    j.Progress,
		Transcript:  j.Transcript,
		Summary:     j.Summary,
		SummaryNote: j.SummaryNote,
		Error:       j.Error,
		LogFilename: j.LogFilename,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}
}

// JobSnapshot is the read-only view of a job handed to callers. Fields are
// consistent with each other as of a single registry read.
type JobSnapshot struct {
	ID          string    `json:"id"`
	SourceName  string    `json:"source_name"`
	State       JobState  `json:"state"`
	Progress    int       `json:"progress"`
	Transcript  string    `json:"transcript,omitempty"`
	Summary     string    `json:"summary,omitempty"`
	SummaryNote string    `json:"summary_note,omitempty"`
	Error       string    `json:"error,omitempty"`
	LogFilename string    `json:"log_filename,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
