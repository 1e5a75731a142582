package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"testing"

	"github.com/timmy/voicelog/internal/domain"
)

// fastOptions keeps pipeline tests in the millisecond range.
func fastOptions() *SchedulerOptions {
	return &SchedulerOptions{
		MaxActiveJobs: 3,
		PollInitial:   2 * time.Millisecond,
		PollMax:       5 * time.Millisecond,
		PollBudget:    150 * time.Millisecond,
	}
}

type fakeStorage struct {
	mu        sync.Mutex
	uploads   map[string][]byte
	uploadErr error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{uploads: make(map[string][]byte)}
}

func (f *fakeStorage) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.uploads[key] = data
	f.mu.Unlock()
	return nil
}

func (f *fakeStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeStorage) GetURL(key string) string { return "http://storage.test/" + key }

func (f *fakeStorage) PresignGetURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return "http://storage.test/signed/" + key, nil
}

func (f *fakeStorage) Delete(ctx context.Context, key string) error { return nil }

func (f *fakeStorage) Exists(ctx context.Context, key string) (bool, error) { return false, nil }

func (f *fakeStorage) EnsureBucket(ctx context.Context) error { return nil }

// fakeTranscriber succeeds after a configured number of pending polls.
type fakeTranscriber struct {
	mu           sync.Mutex
	pendingPolls int
	polls        int
	transcript   string
	submitErr    error
	failResult   *PollResult
	neverFinish  bool
}

func (f *fakeTranscriber) Submit(ctx context.Context, audioURL string) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return "task-1", nil
}

func (f *fakeTranscriber) Poll(ctx context.Context, taskID string) (*PollResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if f.neverFinish {
		return &PollResult{Status: StatusPending}, nil
	}
	if f.failResult != nil {
		return f.failResult, nil
	}
	if f.polls <= f.pendingPolls {
		return &PollResult{Status: StatusPending}, nil
	}
	return &PollResult{Status: StatusSucceeded, TranscriptURL: "http://asr.test/result.json"}, nil
}

func (f *fakeTranscriber) FetchTranscript(ctx context.Context, transcriptURL string) (string, error) {
	return f.transcript, nil
}

func (f *fakeTranscriber) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

type fakeSummarizer struct {
	summary string
	err     error
}

func (f *fakeSummarizer) Summarize(ctx context.Context, transcript, summaryType string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.summary, nil
}

// memStore records appended entries in memory.
type memStore struct {
	mu      sync.Mutex
	entries []*domain.LogEntry
	err     error
}

func (m *memStore) Append(ctx context.Context, entry *domain.LogEntry) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.Filename = fmt.Sprintf("log_%d.md", len(m.entries))
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *memStore) last() *domain.LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.entries) == 0 {
		return nil
	}
	return m.entries[len(m.entries)-1]
}

func submitAudio(t *testing.T, s *JobScheduler, name string) *domain.JobSnapshot {
	t.Helper()
	job, err := s.Submit(context.Background(), &SubmitRequest{
		SourceName:  name,
		ContentType: "audio/mpeg",
		Audio:       []byte("not really audio"),
	})
	if err != nil {
		t.Fatalf("Submit(%s) failed: %v", name, err)
	}
	return job
}

func waitTerminal(t *testing.T, s *JobScheduler, id string) *domain.JobSnapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := s.GetStatus(id)
		if err != nil {
			t.Fatalf("GetStatus(%s) failed: %v", id, err)
		}
		if snap.State.Terminal() {
			return snap
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("job %s did not reach a terminal state", id)
	return nil
}

func TestJobScheduler_HappyPath(t *testing.T) {
	store := &memStore{}
	transcriber := &fakeTranscriber{pendingPolls: 2, transcript: "hello world"}
	s := NewJobScheduler(newFakeStorage(), transcriber, &fakeSummarizer{summary: "greeting"}, store, nil, fastOptions())

	job := submitAudio(t, s, "morning.mp3")
	snap := waitTerminal(t, s, job.ID)

	if snap.State != domain.JobStateCompleted {
		t.Fatalf("expected completed, got %s (error=%q)", snap.State, snap.Error)
	}
	if snap.Progress != domain.ProgressCompleted {
		t.Errorf("expected progress 100, got %d", snap.Progress)
	}
	if snap.Transcript != "hello world" {
		t.Errorf("expected transcript %q, got %q", "hello world", snap.Transcript)
	}
	if snap.Summary != "greeting" {
		t.Errorf("expected summary %q, got %q", "greeting", snap.Summary)
	}
	if snap.LogFilename == "" {
		t.Error("expected log filename to be set on completion")
	}
	if transcriber.pollCount() < 3 {
		t.Errorf("expected at least 3 polls, got %d", transcriber.pollCount())
	}

	entry := store.last()
	if entry == nil {
		t.Fatal("expected one log entry")
	}
	if entry.Transcript != "hello world" || entry.Summary != "greeting" {
		t.Errorf("unexpected entry: transcript=%q summary=%q", entry.Transcript, entry.Summary)
	}
}

func TestJobScheduler_CapacityCeiling(t *testing.T) {
	store := &memStore{}
	// Jobs block until release is closed, holding their slots.
	release := make(chan struct{})
	transcriber := &blockingTranscriber{release: release, transcript: "text"}
	s := NewJobScheduler(newFakeStorage(), transcriber, &fakeSummarizer{summary: "s"}, store, nil, fastOptions())

	var admitted []*domain.JobSnapshot
	for i := 0; i < 3; i++ {
		admitted = append(admitted, submitAudio(t, s, fmt.Sprintf("a%d.mp3", i)))
	}

	_, err := s.Submit(context.Background(), &SubmitRequest{
		SourceName: "overflow.mp3",
		Audio:      []byte("x"),
	})
	if !errors.Is(err, domain.ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}

	// Freeing one slot admits the next submission.
	close(release)
	waitTerminal(t, s, admitted[0].ID)

	if _, err := s.Submit(context.Background(), &SubmitRequest{
		SourceName: "fifth.mp3",
		Audio:      []byte("x"),
	}); err != nil {
		t.Fatalf("expected admission after slot freed, got %v", err)
	}
	s.Wait()
}

// blockingTranscriber holds every job in Pending until release is closed.
type blockingTranscriber struct {
	release    chan struct{}
	transcript string
}

func (b *blockingTranscriber) Submit(ctx context.Context, audioURL string) (string, error) {
	return "task", nil
}

func (b *blockingTranscriber) Poll(ctx context.Context, taskID string) (*PollResult, error) {
	select {
	case <-b.release:
		return &PollResult{Status: StatusSucceeded, TranscriptURL: "http://asr.test/r.json"}, nil
	default:
		return &PollResult{Status: StatusPending}, nil
	}
}

func (b *blockingTranscriber) FetchTranscript(ctx context.Context, transcriptURL string) (string, error) {
	return b.transcript, nil
}

func TestJobScheduler_TranscriptionTimeout(t *testing.T) {
	store := &memStore{}
	transcriber := &fakeTranscriber{neverFinish: true}
	opts := fastOptions()
	opts.PollBudget = 20 * time.Millisecond
	s := NewJobScheduler(newFakeStorage(), transcriber, &fakeSummarizer{summary: "s"}, store, nil, opts)

	job := submitAudio(t, s, "slow.mp3")
	snap := waitTerminal(t, s, job.ID)

	if snap.State != domain.JobStateFailed {
		t.Fatalf("expected failed, got %s", snap.State)
	}
	if snap.Error != domain.ReasonTranscriptionTimeout {
		t.Errorf("expected reason %q, got %q", domain.ReasonTranscriptionTimeout, snap.Error)
	}
	if store.count() != 0 {
		t.Errorf("expected no log entries after timeout, got %d", store.count())
	}
}

func TestJobScheduler_TranscriptionRejected(t *testing.T) {
	store := &memStore{}
	transcriber := &fakeTranscriber{
		failResult: &PollResult{Status: StatusFailed, ErrorCode: "AUDIO.UNRECOGNIZABLE", ErrorMessage: "garbage in"},
	}
	s := NewJobScheduler(newFakeStorage(), transcriber, &fakeSummarizer{summary: "s"}, store, nil, fastOptions())

	job := submitAudio(t, s, "noise.mp3")
	snap := waitTerminal(t, s, job.ID)

	if snap.State != domain.JobStateFailed {
		t.Fatalf("expected failed, got %s", snap.State)
	}
	if snap.Error != domain.ReasonTranscriptionRejected {
		t.Errorf("expected reason %q, got %q", domain.ReasonTranscriptionRejected, snap.Error)
	}
	if store.count() != 0 {
		t.Errorf("expected no log entries after rejection, got %d", store.count())
	}
}

func TestJobScheduler_SummaryFailureIsNonFatal(t *testing.T) {
	store := &memStore{}
	transcriber := &fakeTranscriber{transcript: "important words"}
	summarizer := &fakeSummarizer{err: fmt.Errorf("%w: model overloaded", domain.ErrSummaryUnavailable)}
	s := NewJobScheduler(newFakeStorage(), transcriber, summarizer, store, nil, fastOptions())

	job := submitAudio(t, s, "a.mp3")
	snap := waitTerminal(t, s, job.ID)

	if snap.State != domain.JobStateCompleted {
		t.Fatalf("expected completed despite summary failure, got %s (error=%q)", snap.State, snap.Error)
	}
	if snap.Summary != "" {
		t.Errorf("expected empty summary, got %q", snap.Summary)
	}
	if snap.SummaryNote == "" {
		t.Error("expected a summary failure annotation")
	}

	if store.count() != 1 {
		t.Fatalf("expected exactly one log entry, got %d", store.count())
	}
	entry := store.last()
	if entry.Transcript != "important words" {
		t.Errorf("expected transcript preserved, got %q", entry.Transcript)
	}
	if entry.Summary != "" {
		t.Errorf("expected entry without summary, got %q", entry.Summary)
	}
}

func TestJobScheduler_WriteFailureIsFatal(t *testing.T) {
	store := &memStore{err: fmt.Errorf("%w: disk full", domain.ErrWriteFailure)}
	transcriber := &fakeTranscriber{transcript: "text"}
	s := NewJobScheduler(newFakeStorage(), transcriber, &fakeSummarizer{summary: "s"}, store, nil, fastOptions())

	job := submitAudio(t, s, "a.mp3")
	snap := waitTerminal(t, s, job.ID)

	if snap.State != domain.JobStateFailed {
		t.Fatalf("expected failed, got %s", snap.State)
	}
	if snap.Error != domain.ReasonWriteFailure {
		t.Errorf("expected reason %q, got %q", domain.ReasonWriteFailure, snap.Error)
	}
	// The transcript was computed and must stay visible for operators.
	if snap.Transcript != "text" {
		t.Errorf("expected transcript on the failed job, got %q", snap.Transcript)
	}
}

func TestJobScheduler_ProgressMonotone(t *testing.T) {
	store := &memStore{}
	transcriber := &fakeTranscriber{pendingPolls: 4, transcript: "text"}
	s := NewJobScheduler(newFakeStorage(), transcriber, &fakeSummarizer{summary: "s"}, store, nil, fastOptions())

	job := submitAudio(t, s, "a.mp3")

	last := -1
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := s.GetStatus(job.ID)
		if err != nil {
			t.Fatalf("GetStatus failed: %v", err)
		}
		if snap.Progress < last {
			t.Fatalf("progress regressed: %d -> %d", last, snap.Progress)
		}
		last = snap.Progress
		if snap.State.Terminal() {
			break
		}
		time.Sleep(500 * time.Microsecond)
	}

	snap := waitTerminal(t, s, job.ID)
	if snap.State != domain.JobStateCompleted {
		t.Fatalf("expected completed, got %s", snap.State)
	}
}

func TestJobScheduler_Cancel(t *testing.T) {
	store := &memStore{}
	transcriber := &fakeTranscriber{neverFinish: true}
	s := NewJobScheduler(newFakeStorage(), transcriber, &fakeSummarizer{summary: "s"}, store, nil, fastOptions())

	job := submitAudio(t, s, "a.mp3")

	snap, err := s.Cancel(job.ID)
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if snap.State != domain.JobStateFailed || snap.Error != domain.ReasonCancelled {
		t.Fatalf("expected failed/cancelled, got %s/%q", snap.State, snap.Error)
	}

	s.Wait()
	if store.count() != 0 {
		t.Errorf("expected no log entries after cancel, got %d", store.count())
	}

	// Cancelling a terminal job is a no-op.
	again, err := s.Cancel(job.ID)
	if err != nil {
		t.Fatalf("second Cancel failed: %v", err)
	}
	if again.Error != domain.ReasonCancelled {
		t.Errorf("expected reason preserved, got %q", again.Error)
	}
}

func TestJobScheduler_AcknowledgeRemovesTerminalJob(t *testing.T) {
	store := &memStore{}
	transcriber := &fakeTranscriber{transcript: "text"}
	s := NewJobScheduler(newFakeStorage(), transcriber, &fakeSummarizer{summary: "s"}, store, nil, fastOptions())

	job := submitAudio(t, s, "a.mp3")

	// Still running: acknowledge must refuse.
	if err := s.Acknowledge(job.ID); err == nil {
		t.Error("expected acknowledge of a running job to fail")
	}

	waitTerminal(t, s, job.ID)
	if err := s.Acknowledge(job.ID); err != nil {
		t.Fatalf("Acknowledge failed: %v", err)
	}
	if _, err := s.GetStatus(job.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound after acknowledge, got %v", err)
	}
	if err := s.Acknowledge(job.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound on double acknowledge, got %v", err)
	}
}

func TestJobScheduler_GetStatusUnknown(t *testing.T) {
	s := NewJobScheduler(newFakeStorage(), &fakeTranscriber{}, &fakeSummarizer{}, &memStore{}, nil, fastOptions())
	if _, err := s.GetStatus("nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestJobScheduler_UploadFailure(t *testing.T) {
	store := &memStore{}
	st := newFakeStorage()
	st.uploadErr = errors.New("bucket gone")
	s := NewJobScheduler(st, &fakeTranscriber{transcript: "t"}, &fakeSummarizer{summary: "s"}, store, nil, fastOptions())

	job := submitAudio(t, s, "a.mp3")
	snap := waitTerminal(t, s, job.ID)

	if snap.State != domain.JobStateFailed || snap.Error != domain.ReasonUploadFailed {
		t.Fatalf("expected failed/upload failed, got %s/%q", snap.State, snap.Error)
	}
	if store.count() != 0 {
		t.Errorf("expected no entries, got %d", store.count())
	}
}
