package generation

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/vykso/backend/internal/models"
	"github.com/vykso/backend/internal/repository"
)

// --- lifecycle mock recording transitions ---

type mockJobService struct {
	jobs      map[uuid.UUID]*models.VideoJob
	completed map[uuid.UUID]string
	failed    map[uuid.UUID]string
	markErr   error
	markCalls int
}

func newMockJobService() *mockJobService {
	return &mockJobService{
		jobs:      make(map[uuid.UUID]*models.VideoJob),
		completed: make(map[uuid.UUID]string),
		failed:    make(map[uuid.UUID]string),
	}
}

func (m *mockJobService) Get(_ context.Context, id uuid.UUID) (*models.VideoJob, error) {
	j, ok := m.jobs[id]
	if !ok {
		return nil, repository.ErrJobNotFound
	}
	return j, nil
}
func (m *mockJobService) MarkGenerating(_ context.Context, id uuid.UUID, taskID string) error {
	m.markCalls++
	if m.markErr != nil {
		return m.markErr
	}
	if j, ok := m.jobs[id]; ok {
		j.Status = models.JobStatusGenerating
		j.ProviderTaskID = &taskID
	}
	return nil
}
func (m *mockJobService) SetProgress(context.Context, uuid.UUID, int) error { return nil }
func (m *mockJobService) Complete(_ context.Context, id uuid.UUID, url string) error {
	m.completed[id] = url
	if j, ok := m.jobs[id]; ok {
		j.Status = models.JobStatusCompleted
	}
	return nil
}
func (m *mockJobService) Fail(_ context.Context, id uuid.UUID, reason string) error {
	m.failed[id] = reason
	if j, ok := m.jobs[id]; ok {
		j.Status = models.JobStatusFailed
	}
	return nil
}

type mockFinder struct {
	byTask map[string]*models.VideoJob
}

func (m *mockFinder) GetByProviderTask(_ context.Context, taskID string) (*models.VideoJob, error) {
	j, ok := m.byTask[taskID]
	if !ok {
		return nil, repository.ErrJobNotFound
	}
	return j, nil
}

type mockUploader struct {
	uploads map[string]string // src -> key
	err     error
}

func (m *mockUploader) UploadFromURL(_ context.Context, srcURL, key string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	if m.uploads == nil {
		m.uploads = make(map[string]string)
	}
	m.uploads[srcURL] = key
	return "https://cdn.vykso.example/" + key, nil
}

func newCallbackTest() (*CallbackHandler, *mockJobService, *mockFinder, *mockUploader) {
	jobs := newMockJobService()
	finder := &mockFinder{byTask: make(map[string]*models.VideoJob)}
	up := &mockUploader{}
	return NewCallbackHandler(jobs, finder, up, nil), jobs, finder, up
}

func postCallback(h *CallbackHandler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/callbacks/generation", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCallback_Success(t *testing.T) {
	h, jobs, finder, up := newCallbackTest()
	job := &models.VideoJob{ID: uuid.New(), Status: models.JobStatusGenerating}
	finder.byTask["task-1"] = job

	body := `{"data":{"taskId":"task-1","state":"success","resultJson":"{\"resultUrls\":[\"https://provider.example/raw.mp4\"]}"}}`
	rec := postCallback(h, body)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	wantURL := "https://cdn.vykso.example/" + job.ID.String() + ".mp4"
	if jobs.completed[job.ID] != wantURL {
		t.Errorf("expected completion with %s, got %q", wantURL, jobs.completed[job.ID])
	}
	if _, ok := up.uploads["https://provider.example/raw.mp4"]; !ok {
		t.Error("provider URL was not copied into storage")
	}
}

func TestCallback_Fail(t *testing.T) {
	h, jobs, finder, _ := newCallbackTest()
	job := &models.VideoJob{ID: uuid.New(), Status: models.JobStatusGenerating}
	finder.byTask["task-2"] = job

	body := `{"data":{"taskId":"task-2","state":"fail","failCode":"TIMEOUT","failMsg":"render timed out"}}`
	rec := postCallback(h, body)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(jobs.failed[job.ID], "TIMEOUT") {
		t.Errorf("expected failure reason with code, got %q", jobs.failed[job.ID])
	}
}

func TestCallback_UnknownTaskAcked(t *testing.T) {
	h, jobs, _, _ := newCallbackTest()

	rec := postCallback(h, `{"data":{"taskId":"task-ghost","state":"success"}}`)

	// Unknown references are acknowledged so the provider stops retrying.
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(jobs.completed) != 0 || len(jobs.failed) != 0 {
		t.Error("unknown task must not transition anything")
	}
}

func TestCallback_UploadFailureLeavesJobOpen(t *testing.T) {
	h, jobs, finder, up := newCallbackTest()
	job := &models.VideoJob{ID: uuid.New(), Status: models.JobStatusGenerating}
	finder.byTask["task-3"] = job
	up.err = fmt.Errorf("bucket unavailable")

	body := `{"data":{"taskId":"task-3","state":"success","resultJson":"{\"resultUrls\":[\"https://provider.example/raw.mp4\"]}"}}`
	rec := postCallback(h, body)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	// The job stays non-terminal so the poller or a retry can finish it.
	if len(jobs.completed) != 0 || len(jobs.failed) != 0 {
		t.Error("upload failure must not settle the job")
	}
}

func TestCallback_SuccessWithoutResultFails(t *testing.T) {
	h, jobs, finder, _ := newCallbackTest()
	job := &models.VideoJob{ID: uuid.New(), Status: models.JobStatusGenerating}
	finder.byTask["task-4"] = job

	rec := postCallback(h, `{"data":{"taskId":"task-4","state":"success","resultJson":""}}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if _, ok := jobs.failed[job.ID]; !ok {
		t.Error("success without a result URL must fail the job so credits return")
	}
}

func TestCallback_BadPayload(t *testing.T) {
	h, _, _, _ := newCallbackTest()

	for _, body := range []string{"not json", `{"data":{"state":"success"}}`} {
		rec := postCallback(h, body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: expected 400, got %d", body, rec.Code)
		}
	}
}

func TestCallback_WaitingStateIgnored(t *testing.T) {
	h, jobs, finder, _ := newCallbackTest()
	job := &models.VideoJob{ID: uuid.New(), Status: models.JobStatusGenerating}
	finder.byTask["task-5"] = job

	rec := postCallback(h, `{"data":{"taskId":"task-5","state":"waiting"}}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(jobs.completed) != 0 || len(jobs.failed) != 0 {
		t.Error("waiting state must not transition the job")
	}
}
