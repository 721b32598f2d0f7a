// Package generation owns the asynchronous hand-off to the video provider:
// a River worker submits the request and polls, and a callback handler
// accepts the provider's push notifications. Both paths converge on the
// idempotent terminal transitions of the job lifecycle, so either may win.
package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/vykso/backend/internal/models"
	"github.com/vykso/backend/internal/provider"
)

type GenerateVideoArgs struct {
	JobID              uuid.UUID `json:"job_id"`
	Prompt             string    `json:"prompt"`
	Model              string    `json:"model"`
	DurationSeconds    int       `json:"duration_seconds"`
	AspectRatio        string    `json:"aspect_ratio"`
	ReferenceImageURLs []string  `json:"reference_image_urls,omitempty"`
}

func (GenerateVideoArgs) Kind() string { return "generate_video" }

// JobService defines the lifecycle transitions the worker needs.
type JobService interface {
	Get(ctx context.Context, jobID uuid.UUID) (*models.VideoJob, error)
	MarkGenerating(ctx context.Context, jobID uuid.UUID, providerTaskID string) error
	SetProgress(ctx context.Context, jobID uuid.UUID, progress int) error
	Complete(ctx context.Context, jobID uuid.UUID, videoURL string) error
	Fail(ctx context.Context, jobID uuid.UUID, reason string) error
}

// ProviderClient is the subset of the provider API the worker uses.
type ProviderClient interface {
	GenerateVideo(ctx context.Context, req provider.GenerateRequest) (string, error)
	GetTask(ctx context.Context, taskID string) (*provider.TaskStatus, error)
}

// VideoUploader copies a provider URL into durable storage.
type VideoUploader interface {
	UploadFromURL(ctx context.Context, srcURL, key string) (string, error)
}

type GenerateVideoWorker struct {
	river.WorkerDefaults[GenerateVideoArgs]
	jobService    JobService
	provider      ProviderClient
	uploader      VideoUploader
	pollInterval  time.Duration
	maxPollTime   time.Duration
	markRetryWait time.Duration
	log           *slog.Logger
}

func NewGenerateVideoWorker(js JobService, pc ProviderClient, up VideoUploader, log *slog.Logger) *GenerateVideoWorker {
	if log == nil {
		log = slog.Default()
	}
	return &GenerateVideoWorker{
		jobService:    js,
		provider:      pc,
		uploader:      up,
		pollInterval:  5 * time.Second,
		maxPollTime:   10 * time.Minute,
		markRetryWait: time.Second,
		log:           log,
	}
}

func (w *GenerateVideoWorker) Work(ctx context.Context, job *river.Job[GenerateVideoArgs]) error {
	args := job.Args

	current, err := w.jobService.Get(ctx, args.JobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	if current.Terminal() {
		return nil
	}

	// A retried attempt resumes from the recorded task instead of
	// submitting again: one job never owns two provider tasks.
	var taskID string
	if current.ProviderTaskID != nil && *current.ProviderTaskID != "" {
		taskID = *current.ProviderTaskID
		w.log.Info("resuming generation task", "job_id", args.JobID, "task_id", taskID)
	} else {
		taskID, err = w.provider.GenerateVideo(ctx, provider.GenerateRequest{
			Prompt:             args.Prompt,
			Model:              args.Model,
			DurationSeconds:    args.DurationSeconds,
			AspectRatio:        args.AspectRatio,
			ReferenceImageURLs: args.ReferenceImageURLs,
		})
		if err != nil {
			var apiErr *provider.APIError
			if errors.As(err, &apiErr) && apiErr.StatusCode < 500 {
				// The provider rejected the request outright; retrying the
				// same payload cannot succeed. Fail and refund.
				return w.failJob(ctx, args.JobID, fmt.Sprintf("provider rejected request: %v", apiErr))
			}
			// Nothing was created provider-side, so retrying the
			// submission is safe. Let River retry.
			return fmt.Errorf("submit generation request: %w", err)
		}
		w.log.Info("generation task submitted", "job_id", args.JobID, "task_id", taskID)
	}

	if current.Status == models.JobStatusPending {
		if err := w.markGenerating(ctx, args.JobID, taskID); err != nil {
			// The task exists but its reference could not be stored.
			// Keep going rather than erroring out: a retry would submit a
			// second task, and Complete/Fail key on the job id anyway.
			w.log.Error("recording provider task failed", "job_id", args.JobID, "task_id", taskID, "error", err)
		}
	}

	return w.poll(ctx, args.JobID, taskID)
}

func (w *GenerateVideoWorker) markGenerating(ctx context.Context, jobID uuid.UUID, taskID string) error {
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		if err = w.jobService.MarkGenerating(ctx, jobID, taskID); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.markRetryWait):
		}
	}
	return err
}

// poll checks the task until it reaches a terminal state or the poll budget
// runs out. Running out is not an error: the provider callback or the stale
// job sweeper settles the job later.
func (w *GenerateVideoWorker) poll(ctx context.Context, jobID uuid.UUID, taskID string) error {
	deadline := time.Now().Add(w.maxPollTime)
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if time.Now().After(deadline) {
			w.log.Warn("poll budget exhausted, leaving job to callback or sweeper", "job_id", jobID, "task_id", taskID)
			return nil
		}

		status, err := w.provider.GetTask(ctx, taskID)
		if err != nil {
			w.log.Warn("task poll failed", "job_id", jobID, "error", err)
			continue
		}
		switch status.State {
		case provider.StateSuccess:
			return w.completeJob(ctx, jobID, status.VideoURL)
		case provider.StateFail:
			return w.failJob(ctx, jobID, fmt.Sprintf("%s: %s", status.FailCode, status.FailMsg))
		}
	}
}

func (w *GenerateVideoWorker) completeJob(ctx context.Context, jobID uuid.UUID, providerURL string) error {
	finalURL, err := w.uploader.UploadFromURL(ctx, providerURL, videoKey(jobID))
	if err != nil {
		return fmt.Errorf("store finished video: %w", err)
	}
	if err := w.jobService.Complete(ctx, jobID, finalURL); err != nil {
		return fmt.Errorf("mark job completed: %w", err)
	}
	w.log.Info("generation completed", "job_id", jobID, "video_url", finalURL)
	return nil
}

func (w *GenerateVideoWorker) failJob(ctx context.Context, jobID uuid.UUID, reason string) error {
	if err := w.jobService.Fail(ctx, jobID, reason); err != nil {
		return fmt.Errorf("generation failed (%s) AND failed to mark job: %w", reason, err)
	}
	w.log.Info("generation failed, credits refunded", "job_id", jobID, "reason", reason)
	return nil
}

func videoKey(jobID uuid.UUID) string {
	return jobID.String() + ".mp4"
}
