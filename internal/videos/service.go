// Package videos implements the video generation job lifecycle:
// pending -> generating -> {completed | failed}, gated by the credit ledger
// with a reserve-then-charge-or-refund pattern.
package videos

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vykso/backend/internal/generation"
	"github.com/vykso/backend/internal/models"
	"github.com/vykso/backend/internal/plan"
)

// ErrInvalidDuration is returned when a professional account requests a
// duration outside the allowed range. Creator requests are never rejected on
// duration; they are overridden to the model's fixed value.
var ErrInvalidDuration = fmt.Errorf("duration must be between %d and %d seconds", plan.MinProfessionalDuration, plan.MaxProfessionalDuration)

// ErrEmptyPrompt is returned when a generation request carries no prompt.
var ErrEmptyPrompt = errors.New("prompt is required")

// JobRepo is the repository interface the lifecycle service needs.
type JobRepo interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	CreateTx(ctx context.Context, tx pgx.Tx, j *models.VideoJob) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.VideoJob, error)
	GetByProviderTaskID(ctx context.Context, taskID string) (*models.VideoJob, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.VideoJob, error)
	MarkGenerating(ctx context.Context, id uuid.UUID, providerTaskID string) error
	SetProgress(ctx context.Context, id uuid.UUID, progress int) error
	CompleteTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, videoURL string) (bool, error)
	FailTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, errMsg string) (affected bool, accountID uuid.UUID, creditsCharged int, err error)
	ListStale(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error)
}

// AccountGetter resolves the owning account for tier classification.
type AccountGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
}

// Ledger is the credit ledger interface the lifecycle needs.
type Ledger interface {
	Debit(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, jobID *uuid.UUID, amount int, description string) (int, error)
	Refund(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, jobID *uuid.UUID, amount int, description string) (int, error)
}

// InsertGenerateVideoTxFunc enqueues a generation job within the given
// transaction. Provided by main using river.Client.InsertTx.
type InsertGenerateVideoTxFunc func(ctx context.Context, tx pgx.Tx, args generation.GenerateVideoArgs) error

type Service struct {
	repo                JobRepo
	accounts            AccountGetter
	ledger              Ledger
	insertGenerateVideo InsertGenerateVideoTxFunc
}

// NewService creates the lifecycle service. insertGenerateVideo is typically
// a closure over river.Client.InsertTx.
func NewService(repo JobRepo, accounts AccountGetter, ledger Ledger, insertGenerateVideo InsertGenerateVideoTxFunc) *Service {
	return &Service{repo: repo, accounts: accounts, ledger: ledger, insertGenerateVideo: insertGenerateVideo}
}

// CreateRequest carries a client generation request.
type CreateRequest struct {
	Prompt             string
	Model              string
	DurationSeconds    int
	ReferenceImageURLs []string
}

// Create validates the request against the account's tier, debits the credit
// cost (1 credit per second), inserts the pending job, and enqueues the
// generation worker, all in one transaction. InsufficientCredits from the
// debit aborts the whole unit: no job row, no ledger entry.
func (s *Service) Create(ctx context.Context, accountID uuid.UUID, req CreateRequest) (*models.VideoJob, error) {
	if req.Prompt == "" {
		return nil, ErrEmptyPrompt
	}
	acc, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	cls := plan.Classify(acc.Plan)
	duration := req.DurationSeconds
	if cls.CanSelectDuration {
		if duration < cls.MinDuration || duration > cls.MaxDuration {
			return nil, ErrInvalidDuration
		}
	} else {
		// Creator accounts always get the model's fixed duration,
		// whatever the client asked for.
		duration = plan.FixedDuration(req.Model)
	}

	refs := req.ReferenceImageURLs
	if len(refs) > models.MaxReferenceImages {
		refs = refs[:models.MaxReferenceImages]
	}

	job := &models.VideoJob{
		ID:                 uuid.New(),
		AccountID:          accountID,
		Status:             models.JobStatusPending,
		DurationSeconds:    duration,
		Model:              req.Model,
		Prompt:             req.Prompt,
		AspectRatio:        cls.AspectRatio,
		ReferenceImageURLs: refs,
		CreditsCharged:     duration, // 1 credit = 1 second
	}

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := s.ledger.Debit(ctx, tx, accountID, &job.ID, job.CreditsCharged, fmt.Sprintf("video generation (%ds)", duration)); err != nil {
		return nil, err
	}
	if err := s.repo.CreateTx(ctx, tx, job); err != nil {
		return nil, err
	}
	if err := s.insertGenerateVideo(ctx, tx, generation.GenerateVideoArgs{
		JobID:              job.ID,
		Prompt:             job.Prompt,
		Model:              job.Model,
		DurationSeconds:    job.DurationSeconds,
		AspectRatio:        job.AspectRatio,
		ReferenceImageURLs: job.ReferenceImageURLs,
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return job, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.VideoJob, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByProviderTask(ctx context.Context, taskID string) (*models.VideoJob, error) {
	return s.repo.GetByProviderTaskID(ctx, taskID)
}

func (s *Service) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.VideoJob, error) {
	return s.repo.ListByAccount(ctx, accountID)
}

// MarkGenerating implements generation.JobService. Records the provider task
// reference once the provider has accepted the request.
func (s *Service) MarkGenerating(ctx context.Context, jobID uuid.UUID, providerTaskID string) error {
	return s.repo.MarkGenerating(ctx, jobID, providerTaskID)
}

// SetProgress implements generation.JobService.
func (s *Service) SetProgress(ctx context.Context, jobID uuid.UUID, progress int) error {
	return s.repo.SetProgress(ctx, jobID, progress)
}

// Complete implements generation.JobService. A completion signal for an
// already-terminal job is a no-op.
func (s *Service) Complete(ctx context.Context, jobID uuid.UUID, videoURL string) error {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if _, err := s.repo.CompleteTx(ctx, tx, jobID, videoURL); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Fail implements generation.JobService. Marks the job failed and refunds the
// reserved credits in the same transaction. The terminal-state guard on the
// update makes a replayed failure signal a no-op, so the refund is issued at
// most once per job.
func (s *Service) Fail(ctx context.Context, jobID uuid.UUID, errMsg string) error {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	affected, accountID, creditsCharged, err := s.repo.FailTx(ctx, tx, jobID, errMsg)
	if err != nil {
		return err
	}
	if affected && creditsCharged > 0 {
		if _, err := s.ledger.Refund(ctx, tx, accountID, &jobID, creditsCharged, "refund: generation failed"); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// FailStale fails every non-terminal job untouched for longer than maxAge:
// jobs stuck generating and pending jobs whose queue submission never ran.
// Each job goes through the normal Fail path, so refunds and idempotency
// hold. Returns the number of jobs failed.
func (s *Service) FailStale(ctx context.Context, maxAge time.Duration) (int, error) {
	ids, err := s.repo.ListStale(ctx, time.Now().Add(-maxAge))
	if err != nil {
		return 0, err
	}
	failed := 0
	for _, id := range ids {
		if err := s.Fail(ctx, id, fmt.Sprintf("generation timed out after %s", maxAge)); err != nil {
			return failed, err
		}
		failed++
	}
	return failed, nil
}
