package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vykso/backend/internal/models"
)

// ErrJobNotFound is returned when a job id or provider task reference
// resolves to no row.
var ErrJobNotFound = errors.New("video job not found")

type VideoJobRepo struct {
	pool *pgxpool.Pool
}

func NewVideoJobRepo(pool *pgxpool.Pool) *VideoJobRepo {
	return &VideoJobRepo{pool: pool}
}

func (r *VideoJobRepo) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

const jobColumns = `id, account_id, status, progress, duration_seconds, model, prompt, aspect_ratio,
	reference_image_urls, provider_task_id, video_url, error, credits_charged, created_at, updated_at, completed_at`

func scanJob(row pgx.Row) (*models.VideoJob, error) {
	var j models.VideoJob
	err := row.Scan(&j.ID, &j.AccountID, &j.Status, &j.Progress, &j.DurationSeconds, &j.Model, &j.Prompt,
		&j.AspectRatio, &j.ReferenceImageURLs, &j.ProviderTaskID, &j.VideoURL, &j.Error, &j.CreditsCharged,
		&j.CreatedAt, &j.UpdatedAt, &j.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return &j, nil
}

// CreateTx inserts a pending job inside the caller's transaction, alongside
// the credit debit that reserved its cost.
func (r *VideoJobRepo) CreateTx(ctx context.Context, tx pgx.Tx, j *models.VideoJob) error {
	return tx.QueryRow(ctx, `
		INSERT INTO video_jobs (id, account_id, status, progress, duration_seconds, model, prompt, aspect_ratio, reference_image_urls, credits_charged)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`, j.ID, j.AccountID, j.Status, j.Progress, j.DurationSeconds, j.Model, j.Prompt, j.AspectRatio, j.ReferenceImageURLs, j.CreditsCharged).Scan(&j.CreatedAt, &j.UpdatedAt)
}

func (r *VideoJobRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.VideoJob, error) {
	return scanJob(r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM video_jobs WHERE id = $1`, id))
}

func (r *VideoJobRepo) GetByProviderTaskID(ctx context.Context, taskID string) (*models.VideoJob, error) {
	return scanJob(r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM video_jobs WHERE provider_task_id = $1`, taskID))
}

func (r *VideoJobRepo) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.VideoJob, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM video_jobs WHERE account_id = $1 ORDER BY created_at DESC
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.VideoJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, j)
	}
	return list, rows.Err()
}

// MarkGenerating records the provider task reference and moves the job out of
// pending. A job already past pending is left untouched.
func (r *VideoJobRepo) MarkGenerating(ctx context.Context, id uuid.UUID, providerTaskID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE video_jobs SET status = $2, provider_task_id = $3, updated_at = now()
		WHERE id = $1 AND status = $4
	`, id, models.JobStatusGenerating, providerTaskID, models.JobStatusPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

// SetProgress updates progress on a non-terminal job. Terminal jobs ignore it.
func (r *VideoJobRepo) SetProgress(ctx context.Context, id uuid.UUID, progress int) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE video_jobs SET progress = $2, updated_at = now()
		WHERE id = $1 AND status IN ($3, $4)
	`, id, progress, models.JobStatusPending, models.JobStatusGenerating)
	return err
}

// CompleteTx marks the job completed with its playable URL. Returns false
// without mutating when the job is already terminal, which makes duplicate
// completion signals no-ops.
func (r *VideoJobRepo) CompleteTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, videoURL string) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE video_jobs SET status = $2, video_url = $3, progress = 100, updated_at = now(), completed_at = now()
		WHERE id = $1 AND status IN ($4, $5)
	`, id, models.JobStatusCompleted, videoURL, models.JobStatusPending, models.JobStatusGenerating)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// FailTx marks the job failed and returns the charge to refund. affected is
// false when the job was already terminal; the caller must then skip the
// refund so a replayed failure signal cannot refund twice.
func (r *VideoJobRepo) FailTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, errMsg string) (affected bool, accountID uuid.UUID, creditsCharged int, err error) {
	row := tx.QueryRow(ctx, `
		UPDATE video_jobs SET status = $2, error = $3, updated_at = now(), completed_at = now()
		WHERE id = $1 AND status IN ($4, $5)
		RETURNING account_id, credits_charged
	`, id, models.JobStatusFailed, errMsg, models.JobStatusPending, models.JobStatusGenerating)
	if scanErr := row.Scan(&accountID, &creditsCharged); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return false, uuid.Nil, 0, nil
		}
		return false, uuid.Nil, 0, scanErr
	}
	return true, accountID, creditsCharged, nil
}

// ListStale returns ids of non-terminal jobs whose last transition predates
// cutoff. Covers both jobs stuck generating and jobs whose queue submission
// never ran, so the timeout sweeper can settle either kind.
func (r *VideoJobRepo) ListStale(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM video_jobs WHERE status IN ($1, $2) AND updated_at < $3
	`, models.JobStatusPending, models.JobStatusGenerating, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
