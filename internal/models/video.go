package models

import (
	"time"

	"github.com/google/uuid"
)

// Video job status enum. completed and failed are terminal; no transition
// ever leaves a terminal state.
const (
	JobStatusPending    = "pending"
	JobStatusGenerating = "generating"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// Generation model identifiers accepted from clients.
const (
	ModelSora        = "sora-2"
	ModelSoraPro720  = "sora-2-pro-720p"
	ModelSoraPro1080 = "sora-2-pro-1080p"
	ModelVeo         = "veo3"
	ModelVeoFast     = "veo3_fast"
)

// MaxReferenceImages bounds the reference image list on a generation request.
const MaxReferenceImages = 3

type VideoJob struct {
	ID                 uuid.UUID  `json:"id"`
	AccountID          uuid.UUID  `json:"account_id"`
	Status             string     `json:"status"`
	Progress           int        `json:"progress"`
	DurationSeconds    int        `json:"duration_seconds"`
	Model              string     `json:"model"`
	Prompt             string     `json:"prompt"`
	AspectRatio        string     `json:"aspect_ratio"`
	ReferenceImageURLs []string   `json:"reference_image_urls,omitempty"`
	ProviderTaskID     *string    `json:"provider_task_id,omitempty"`
	VideoURL           *string    `json:"video_url,omitempty"`
	Error              *string    `json:"error,omitempty"`
	CreditsCharged     int        `json:"credits_charged"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
}

// Terminal reports whether the job is in a terminal state.
func (j *VideoJob) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}
