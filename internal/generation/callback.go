package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/vykso/backend/internal/models"
	"github.com/vykso/backend/internal/provider"
	"github.com/vykso/backend/internal/repository"
)

// JobFinder resolves a job from the provider's task reference.
type JobFinder interface {
	GetByProviderTask(ctx context.Context, taskID string) (*models.VideoJob, error)
}

// CallbackHandler serves the provider's push notifications. Delivery is
// at-least-once; the task reference plus the lifecycle's terminal-state
// guards make replays harmless.
type CallbackHandler struct {
	jobs     JobService
	finder   JobFinder
	uploader VideoUploader
	log      *slog.Logger
}

func NewCallbackHandler(jobs JobService, finder JobFinder, uploader VideoUploader, log *slog.Logger) *CallbackHandler {
	if log == nil {
		log = slog.Default()
	}
	return &CallbackHandler{jobs: jobs, finder: finder, uploader: uploader, log: log}
}

type callbackPayload struct {
	Data struct {
		TaskID     string `json:"taskId"`
		State      string `json:"state"`
		FailCode   string `json:"failCode"`
		FailMsg    string `json:"failMsg"`
		ResultJSON string `json:"resultJson"`
	} `json:"data"`
}

// ServeHTTP handles POST /api/v1/callbacks/generation. It always answers 200
// for recognizable payloads so the provider stops retrying; processing
// problems are logged, not bounced back.
func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var payload callbackPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	taskID := payload.Data.TaskID
	if taskID == "" {
		http.Error(w, `{"error":"missing task id"}`, http.StatusBadRequest)
		return
	}

	job, err := h.finder.GetByProviderTask(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			h.log.Warn("callback for unknown task", "task_id", taskID)
			writeAck(w, taskID)
			return
		}
		h.log.Error("callback job lookup failed", "task_id", taskID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	switch payload.Data.State {
	case provider.StateSuccess:
		h.handleSuccess(r.Context(), job, payload.Data.ResultJSON)
	case provider.StateFail:
		reason := fmt.Sprintf("%s: %s", payload.Data.FailCode, payload.Data.FailMsg)
		if err := h.jobs.Fail(r.Context(), job.ID, reason); err != nil {
			h.log.Error("callback fail transition failed", "job_id", job.ID, "error", err)
		}
	default:
		h.log.Info("callback with non-terminal state ignored", "task_id", taskID, "state", payload.Data.State)
	}

	writeAck(w, taskID)
}

func (h *CallbackHandler) handleSuccess(ctx context.Context, job *models.VideoJob, resultJSON string) {
	providerURL, err := provider.ParseResultURL(resultJSON)
	if err != nil {
		h.log.Error("callback success without usable result", "job_id", job.ID, "error", err)
		if failErr := h.jobs.Fail(ctx, job.ID, "provider returned no video URL"); failErr != nil {
			h.log.Error("callback fail transition failed", "job_id", job.ID, "error", failErr)
		}
		return
	}
	finalURL, err := h.uploader.UploadFromURL(ctx, providerURL, videoKey(job.ID))
	if err != nil {
		// Leave the job non-terminal: the polling worker or a callback
		// retry gets another chance at the upload.
		h.log.Error("storing finished video failed", "job_id", job.ID, "error", err)
		return
	}
	if err := h.jobs.Complete(ctx, job.ID, finalURL); err != nil {
		h.log.Error("callback complete transition failed", "job_id", job.ID, "error", err)
	}
}

func writeAck(w http.ResponseWriter, taskID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "received", "task_id": taskID})
}
