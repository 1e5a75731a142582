package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/voicelog/internal/domain"
	"github.com/timmy/voicelog/internal/logger"
	"github.com/timmy/voicelog/internal/storage"
)

const (
	defaultMaxActiveJobs = 3
	defaultPollInitial   = 5 * time.Second
	defaultPollMax       = 30 * time.Second
	defaultPollBudget    = 5 * time.Minute
	defaultPresignExpiry = 30 * time.Minute
)

// LogAppender is the write side of the log store used on job completion.
type LogAppender interface {
	Append(ctx context.Context, entry *domain.LogEntry) error
}

// Indexer incorporates a persisted entry into the query index.
type Indexer interface {
	Index(ctx context.Context, entry *domain.LogEntry) error
}

// SchedulerOptions configures admission and polling behavior.
type SchedulerOptions struct {
	MaxActiveJobs      int           // admission ceiling on non-terminal jobs
	PollInitial        time.Duration // first ASR poll interval
	PollMax            time.Duration // ceiling for the geometric poll backoff
	PollBudget         time.Duration // wall-clock budget for the whole poll loop
	PresignExpiry      time.Duration // validity of the audio URL handed to the ASR
	DefaultSummaryType string
}

func (o *SchedulerOptions) withDefaults() SchedulerOptions {
	opts := SchedulerOptions{}
	if o != nil {
		opts = *o
	}
	if opts.MaxActiveJobs <= 0 {
		opts.MaxActiveJobs = defaultMaxActiveJobs
	}
	if opts.PollInitial <= 0 {
		opts.PollInitial = defaultPollInitial
	}
	if opts.PollMax < opts.PollInitial {
		opts.PollMax = defaultPollMax
	}
	if opts.PollBudget <= 0 {
		opts.PollBudget = defaultPollBudget
	}
	if opts.PresignExpiry <= 0 {
		opts.PresignExpiry = defaultPresignExpiry
	}
	return opts
}

// SubmitRequest carries one audio payload into the pipeline.
type SubmitRequest struct {
	SourceName  string
	ContentType string
	Audio       []byte
	SummaryType string // optional; empty uses the scheduler default
}

// jobTrack pairs a registry job with its pipeline cancel function.
type jobTrack struct {
	job    *domain.Job
	cancel context.CancelFunc
}

// JobScheduler admits audio jobs under a concurrency ceiling and drives
// each one through upload, transcription, summarization, and persistence.
// Jobs live in an in-memory registry; the durable artifact of a successful
// job is the LogEntry it appends. All job state is owned by the scheduler,
// and observers only ever receive snapshots.
type JobScheduler struct {
	objectStorage storage.ObjectStorage
	transcriber   Transcriber
	summarizer    Summarizer
	logStore      LogAppender
	index         Indexer // optional; nil skips indexing
	opts          SchedulerOptions

	mu   sync.Mutex
	jobs map[string]*jobTrack
	wg   sync.WaitGroup
}

// NewJobScheduler creates a new job scheduler.
// Parameters:
//   - objectStorage: destination for uploaded audio.
//   - transcriber: async speech recognition client.
//   - summarizer: summary generation client.
//   - logStore: append-only store for completed jobs.
//   - index: query index to notify on completion; may be nil.
//   - opts: scheduling options; nil or zero fields use defaults.
// Returns:
//   - *JobScheduler: initialized scheduler.
func NewJobScheduler(
	objectStorage storage.ObjectStorage,
	transcriber Transcriber,
	summarizer Summarizer,
	logStore LogAppender,
	index Indexer,
	opts *SchedulerOptions,
) *JobScheduler {
	return &JobScheduler{
		objectStorage: objectStorage,
		transcriber:   transcriber,
		summarizer:    summarizer,
		logStore:      logStore,
		index:         index,
		opts:          opts.withDefaults(),
		jobs:          make(map[string]*jobTrack),
	}
}

// Submit admits a new job and starts its pipeline asynchronously.
// Parameters:
//   - ctx: context for the admission itself, not the pipeline.
//   - req: audio payload and metadata.
// Returns:
//   - *domain.JobSnapshot: snapshot of the freshly admitted job.
//   - error: domain.ErrCapacityExceeded when the ceiling is reached.
func (s *JobScheduler) Submit(ctx context.Context, req *SubmitRequest) (*domain.JobSnapshot, error) {
	if len(req.Audio) == 0 {
		return nil, fmt.Errorf("empty audio payload")
	}

	now := time.Now()
	job := &domain.Job{
		ID:         uuid.New().String(),
		SourceName: req.SourceName,
		State:      domain.JobStatePending,
		Progress:   domain.ProgressPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	// The pipeline outlives the submit request, so it gets its own context.
	runCtx, cancel := context.WithCancel(context.Background())
	runCtx = logger.SetJobID(runCtx, job.ID)

	s.mu.Lock()
	active := 0
	for _, t := range s.jobs {
		if !t.job.State.Terminal() {
			active++
		}
	}
	if active >= s.opts.MaxActiveJobs {
		s.mu.Unlock()
		cancel()
		return nil, fmt.Errorf("%w: %d active jobs (ceiling %d)", domain.ErrCapacityExceeded, active, s.opts.MaxActiveJobs)
	}
	s.jobs[job.ID] = &jobTrack{job: job, cancel: cancel}
	snapshot := job.Snapshot()
	s.mu.Unlock()

	logger.CtxInfo(runCtx, "Job admitted: source=%q, size=%d, active=%d/%d",
		req.SourceName, len(req.Audio), active+1, s.opts.MaxActiveJobs)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		s.run(runCtx, job.ID, req)
	}()

	return snapshot, nil
}

// GetStatus returns a consistent point-in-time snapshot of a job.
// Parameters:
//   - id: job ID from Submit.
// Returns:
//   - *domain.JobSnapshot: current job view.
//   - error: domain.ErrNotFound if the id is unknown.
func (s *JobScheduler) GetStatus(id string) (*domain.JobSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return t.job.Snapshot(), nil
}

// Cancel cooperatively stops a job. Terminal jobs are left untouched.
// In-flight external calls are not aborted; their results are discarded.
// Parameters:
//   - id: job ID to cancel.
// Returns:
//   - *domain.JobSnapshot: job view after cancellation.
//   - error: domain.ErrNotFound if the id is unknown.
func (s *JobScheduler) Cancel(id string) (*domain.JobSnapshot, error) {
	s.mu.Lock()
	t, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return nil, domain.ErrNotFound
	}
	if !t.job.State.Terminal() {
		t.job.State = domain.JobStateFailed
		t.job.Error = domain.ReasonCancelled
		t.job.UpdatedAt = time.Now()
	}
	snapshot := t.job.Snapshot()
	s.mu.Unlock()

	t.cancel()
	return snapshot, nil
}

// Acknowledge removes a terminal job from the registry, freeing its slot's
// bookkeeping. Slots themselves free as soon as a job turns terminal;
// acknowledgment only drops the record.
// Parameters:
//   - id: job ID to acknowledge.
// Returns:
//   - error: domain.ErrNotFound for unknown ids, or an error when the job
//     is still running.
func (s *JobScheduler) Acknowledge(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if !t.job.State.Terminal() {
		return fmt.Errorf("job %s is still %s", id, t.job.State)
	}
	delete(s.jobs, id)
	return nil
}

// ActiveCount returns the number of non-terminal jobs.
func (s *JobScheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	active := 0
	for _, t := range s.jobs {
		if !t.job.State.Terminal() {
			active++
		}
	}
	return active
}

// Wait blocks until all running pipelines have finished. Used on shutdown
// and in tests.
func (s *JobScheduler) Wait() {
	s.wg.Wait()
}

// advance moves a job to the given state and raises its progress. It
// refuses to touch terminal jobs, which is how a cooperative cancel stops
// the pipeline: the next advance fails and the goroutine unwinds.
// Progress never decreases.
func (s *JobScheduler) advance(id string, state domain.JobState, progress int, mutate func(*domain.Job)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.jobs[id]
	if !ok || t.job.State.Terminal() {
		return false
	}
	t.job.State = state
	if progress > t.job.Progress {
		t.job.Progress = progress
	}
	if mutate != nil {
		mutate(t.job)
	}
	t.job.UpdatedAt = time.Now()
	return true
}

// fail marks a job Failed with the given reason. No-op on terminal jobs.
func (s *JobScheduler) fail(ctx context.Context, id, reason string, err error) {
	s.mu.Lock()
	t, ok := s.jobs[id]
	if ok && !t.job.State.Terminal() {
		t.job.State = domain.JobStateFailed
		t.job.Error = reason
		t.job.UpdatedAt = time.Now()
	}
	s.mu.Unlock()

	if err != nil {
		logger.CtxError(ctx, "Job failed: reason=%q, error=%v", reason, err)
	} else {
		logger.CtxError(ctx, "Job failed: reason=%q", reason)
	}
}

// run executes the full pipeline for one job.
func (s *JobScheduler) run(ctx context.Context, id string, req *SubmitRequest) {
	started := time.Now()

	// Uploading
	if !s.advance(id, domain.JobStateUploading, domain.ProgressUploading, nil) {
		return
	}
	audioURL, err := s.uploadAudio(ctx, id, req)
	if err != nil {
		s.fail(ctx, id, domain.ReasonUploadFailed, err)
		return
	}

	// Transcribing
	if !s.advance(id, domain.JobStateTranscribing, domain.ProgressTranscribing, nil) {
		return
	}
	transcript, err := s.transcribe(ctx, id, audioURL)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			// Cancel already set the terminal reason.
		case errors.Is(err, domain.ErrTranscriptionTimeout):
			s.fail(ctx, id, domain.ReasonTranscriptionTimeout, err)
		default:
			s.fail(ctx, id, domain.ReasonTranscriptionRejected, err)
		}
		return
	}

	// Summarizing. A failure here is non-fatal: the transcript is the
	// primary artifact and keeps standalone value.
	if !s.advance(id, domain.JobStateSummarizing, domain.ProgressSummarizing, func(j *domain.Job) {
		j.Transcript = transcript
	}) {
		return
	}
	summary, summaryNote := "", ""
	summary, err = s.summarizer.Summarize(ctx, transcript, req.SummaryType)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		summaryNote = err.Error()
		logger.CtxWarn(ctx, "Summarization failed, completing without summary: error=%v", err)
	}
	if !s.advance(id, domain.JobStateSummarizing, domain.ProgressSummarizing+9, func(j *domain.Job) {
		j.Summary = summary
		j.SummaryNote = summaryNote
	}) {
		return
	}

	// Persist. Losing a computed transcript must be loud, so a write error
	// fails the job with a reason distinct from transcription failures.
	entry := &domain.LogEntry{
		Timestamp:  time.Now(),
		Transcript: transcript,
		Summary:    summary,
		SourceName: req.SourceName,
		AudioKey:   s.audioKey(id, req.SourceName),
	}
	if err := s.logStore.Append(ctx, entry); err != nil {
		s.fail(ctx, id, domain.ReasonWriteFailure, err)
		return
	}

	if s.index != nil {
		if err := s.index.Index(ctx, entry); err != nil {
			logger.CtxWarn(ctx, "Failed to index entry %s: error=%v", entry.Filename, err)
		}
	}

	if !s.advance(id, domain.JobStateCompleted, domain.ProgressCompleted, func(j *domain.Job) {
		j.LogFilename = entry.Filename
	}) {
		return
	}

	logger.With(logger.Fields{
		logger.FieldDurationMs: time.Since(started).Milliseconds(),
		logger.FieldSize:       len(transcript),
	}).Info(ctx, "Job completed: entry=%s", entry.Filename)
}

// uploadAudio stores the payload and returns a presigned URL the ASR
// service can fetch.
func (s *JobScheduler) uploadAudio(ctx context.Context, id string, req *SubmitRequest) (string, error) {
	key := s.audioKey(id, req.SourceName)
	contentType := req.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if err := s.objectStorage.Upload(ctx, key, bytes.NewReader(req.Audio), int64(len(req.Audio)), contentType); err != nil {
		return "", fmt.Errorf("failed to upload audio: %w", err)
	}

	url, err := s.objectStorage.PresignGetURL(ctx, key, s.opts.PresignExpiry)
	if err != nil {
		return "", fmt.Errorf("failed to presign audio URL: %w", err)
	}
	return url, nil
}

func (s *JobScheduler) audioKey(id, sourceName string) string {
	ext := path.Ext(sourceName)
	return "audio/" + id + ext
}

// transcribe submits the ASR task and polls it with geometric backoff.
// The first wait is PollInitial, each subsequent wait doubles up to
// PollMax, and the whole loop is bounded by PollBudget.
func (s *JobScheduler) transcribe(ctx context.Context, id, audioURL string) (string, error) {
	taskID, err := s.transcriber.Submit(ctx, audioURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrTranscriptionRejected, err)
	}
	logger.CtxInfo(ctx, "Transcription task submitted: task_id=%s", taskID)

	deadline := time.Now().Add(s.opts.PollBudget)
	interval := s.opts.PollInitial

	for poll := 1; ; poll++ {
		if time.Now().After(deadline) {
			return "", fmt.Errorf("%w: budget %s exhausted after %d polls",
				domain.ErrTranscriptionTimeout, s.opts.PollBudget, poll-1)
		}

		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return "", ctx.Err()
		}

		result, err := s.transcriber.Poll(ctx, taskID)
		if err != nil {
			// A single failed poll is not conclusive; keep waiting.
			logger.CtxWarn(ctx, "Poll %d for task %s failed: error=%v", poll, taskID, err)
		} else {
			switch result.Status {
			case StatusSucceeded:
				transcript, err := s.transcriber.FetchTranscript(ctx, result.TranscriptURL)
				if err != nil {
					return "", fmt.Errorf("%w: %v", domain.ErrTranscriptionRejected, err)
				}
				return transcript, nil
			case StatusFailed:
				return "", fmt.Errorf("%w: [%s] %s",
					domain.ErrTranscriptionRejected, result.ErrorCode, result.ErrorMessage)
			}
		}

		// Ramp progress across the transcribing band as budget elapses.
		elapsed := s.opts.PollBudget - time.Until(deadline)
		band := domain.ProgressSummarizing - domain.ProgressTranscribing
		progress := domain.ProgressTranscribing + int(float64(band)*elapsed.Seconds()/s.opts.PollBudget.Seconds())
		if progress >= domain.ProgressSummarizing {
			progress = domain.ProgressSummarizing - 1
		}
		if !s.advance(id, domain.JobStateTranscribing, progress, nil) {
			return "", context.Canceled
		}

		interval *= 2
		if interval > s.opts.PollMax {
			interval = s.opts.PollMax
		}
	}
}
