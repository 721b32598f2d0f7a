package generation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/vykso/backend/internal/models"
	"github.com/vykso/backend/internal/provider"
)

type mockProvider struct {
	submissions int
	taskID      string
	submitErr   error
	status      *provider.TaskStatus
	statusErr   error
}

func (m *mockProvider) GenerateVideo(context.Context, provider.GenerateRequest) (string, error) {
	m.submissions++
	if m.submitErr != nil {
		return "", m.submitErr
	}
	return m.taskID, nil
}

func (m *mockProvider) GetTask(context.Context, string) (*provider.TaskStatus, error) {
	if m.statusErr != nil {
		return nil, m.statusErr
	}
	return m.status, nil
}

func newWorkerTest() (*GenerateVideoWorker, *mockJobService, *mockProvider, *mockUploader) {
	jobs := newMockJobService()
	pc := &mockProvider{taskID: "task-1", status: &provider.TaskStatus{State: provider.StateSuccess, VideoURL: "https://provider.example/out.mp4"}}
	up := &mockUploader{}
	w := NewGenerateVideoWorker(jobs, pc, up, nil)
	w.pollInterval = time.Millisecond
	w.markRetryWait = time.Millisecond
	return w, jobs, pc, up
}

func seedJob(jobs *mockJobService, status string) uuid.UUID {
	id := uuid.New()
	jobs.jobs[id] = &models.VideoJob{ID: id, Status: status}
	return id
}

func riverJob(id uuid.UUID) *river.Job[GenerateVideoArgs] {
	return &river.Job[GenerateVideoArgs]{Args: GenerateVideoArgs{JobID: id, Prompt: "a fox", Model: models.ModelVeoFast}}
}

func TestWork_SubmitsOnceAndCompletes(t *testing.T) {
	w, jobs, pc, _ := newWorkerTest()
	id := seedJob(jobs, models.JobStatusPending)

	if err := w.Work(context.Background(), riverJob(id)); err != nil {
		t.Fatalf("Work: %v", err)
	}
	if pc.submissions != 1 {
		t.Fatalf("submissions = %d, want 1", pc.submissions)
	}
	if _, ok := jobs.completed[id]; !ok {
		t.Fatal("job not completed")
	}
}

func TestWork_RetryResumesRecordedTask(t *testing.T) {
	w, jobs, pc, up := newWorkerTest()
	id := seedJob(jobs, models.JobStatusPending)

	// First attempt: the finished video cannot be stored, so the job errors
	// out after the provider task was created and recorded.
	up.err = errors.New("bucket unavailable")
	if err := w.Work(context.Background(), riverJob(id)); err == nil {
		t.Fatal("expected error from failed upload")
	}

	// The retried attempt must pick up the recorded task, not submit a
	// second one.
	up.err = nil
	if err := w.Work(context.Background(), riverJob(id)); err != nil {
		t.Fatalf("Work retry: %v", err)
	}
	if pc.submissions != 1 {
		t.Fatalf("submissions = %d, want 1", pc.submissions)
	}
	if _, ok := jobs.completed[id]; !ok {
		t.Fatal("job not completed after retry")
	}
}

func TestWork_MarkGeneratingFailureDoesNotResubmit(t *testing.T) {
	w, jobs, pc, _ := newWorkerTest()
	id := seedJob(jobs, models.JobStatusPending)
	jobs.markErr = errors.New("connection reset")

	// Recording the task id fails for good, but the task already exists
	// provider-side: the attempt keeps polling it to a terminal state
	// instead of handing the job back to the queue for a resubmission.
	if err := w.Work(context.Background(), riverJob(id)); err != nil {
		t.Fatalf("Work: %v", err)
	}
	if pc.submissions != 1 {
		t.Fatalf("submissions = %d, want 1", pc.submissions)
	}
	if jobs.markCalls != 3 {
		t.Fatalf("MarkGenerating attempts = %d, want 3", jobs.markCalls)
	}
	if _, ok := jobs.completed[id]; !ok {
		t.Fatal("job not completed")
	}
}

func TestWork_TerminalJobIsNoOp(t *testing.T) {
	w, jobs, pc, _ := newWorkerTest()
	id := seedJob(jobs, models.JobStatusCompleted)

	if err := w.Work(context.Background(), riverJob(id)); err != nil {
		t.Fatalf("Work: %v", err)
	}
	if pc.submissions != 0 {
		t.Fatalf("submissions = %d, want 0", pc.submissions)
	}
}

func TestWork_ProviderRejectionFailsJob(t *testing.T) {
	w, jobs, pc, _ := newWorkerTest()
	id := seedJob(jobs, models.JobStatusPending)
	pc.submitErr = &provider.APIError{StatusCode: 400, Body: "bad prompt"}

	if err := w.Work(context.Background(), riverJob(id)); err != nil {
		t.Fatalf("Work: %v", err)
	}
	if _, ok := jobs.failed[id]; !ok {
		t.Fatal("job not failed after provider rejection")
	}
}

func TestWork_ServerErrorLeavesJobRetryable(t *testing.T) {
	w, jobs, pc, _ := newWorkerTest()
	id := seedJob(jobs, models.JobStatusPending)
	pc.submitErr = &provider.APIError{StatusCode: 503, Body: "overloaded"}

	// No task was created, so surfacing the error for a queue retry is safe.
	if err := w.Work(context.Background(), riverJob(id)); err == nil {
		t.Fatal("expected error from provider outage")
	}
	if _, ok := jobs.failed[id]; ok {
		t.Fatal("job must stay non-terminal for the retry")
	}
}
