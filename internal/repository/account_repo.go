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

// ErrAccountNotFound is returned when an account id resolves to no row.
var ErrAccountNotFound = errors.New("account not found")

type AccountRepo struct {
	pool *pgxpool.Pool
}

func NewAccountRepo(pool *pgxpool.Pool) *AccountRepo {
	return &AccountRepo{pool: pool}
}

func (r *AccountRepo) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

const accountColumns = `id, email, display_name, password_hash, plan, plan_status, tier, aspect_ratio, credits,
	stripe_customer_id, stripe_subscription_id, current_period_end, canceled_at, created_at, updated_at`

func scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.Email, &a.DisplayName, &a.PasswordHash, &a.Plan, &a.PlanStatus, &a.Tier, &a.AspectRatio,
		&a.Credits, &a.StripeCustomerID, &a.StripeSubscriptionID, &a.CurrentPeriodEnd, &a.CanceledAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &a, nil
}

// CreateTx inserts a new account inside the caller's transaction so the
// starting credit grant's ledger entry commits with it.
func (r *AccountRepo) CreateTx(ctx context.Context, tx pgx.Tx, a *models.Account) error {
	return tx.QueryRow(ctx, `
		INSERT INTO accounts (id, email, display_name, password_hash, plan, plan_status, tier, aspect_ratio, credits)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`, a.ID, a.Email, a.DisplayName, a.PasswordHash, a.Plan, a.PlanStatus, a.Tier, a.AspectRatio, a.Credits).Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
}

func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email))
}

func (r *AccountRepo) GetByStripeSubscription(ctx context.Context, subscriptionID string) (*models.Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE stripe_subscription_id = $1`, subscriptionID))
}

// GetByIDForUpdate locks the account row for update. Call within a transaction.
func (r *AccountRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Account, error) {
	return scanAccount(tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id))
}

// DeductCredits atomically deducts amount if credits >= amount. The
// conditional update is the serialization point for concurrent debits: the
// row lock taken by GetByIDForUpdate plus the balance guard here leave no
// read-then-write window for a lost update.
func (r *AccountRepo) DeductCredits(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int) (newBalance int, err error) {
	err = tx.QueryRow(ctx, `
		UPDATE accounts SET credits = credits - $1, updated_at = now()
		WHERE id = $2 AND credits >= $1
		RETURNING credits
	`, amount, id).Scan(&newBalance)
	return newBalance, err
}

// AddCredits adds amount to the account and returns the new balance.
func (r *AccountRepo) AddCredits(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int) (newBalance int, err error) {
	err = tx.QueryRow(ctx, `
		UPDATE accounts SET credits = credits + $1, updated_at = now()
		WHERE id = $2
		RETURNING credits
	`, amount, id).Scan(&newBalance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrAccountNotFound
	}
	return newBalance, err
}

// SubscriptionUpdate carries the billing-driven fields applied on plan changes.
type SubscriptionUpdate struct {
	Plan                 string
	PlanStatus           string
	Tier                 string
	AspectRatio          string
	StripeCustomerID     *string
	StripeSubscriptionID *string
	CurrentPeriodEnd     *time.Time
	CanceledAt           *time.Time
}

// ApplySubscription persists a plan change together with the recomputed tier
// and aspect ratio. Call within a transaction holding the account lock.
func (r *AccountRepo) ApplySubscription(ctx context.Context, tx pgx.Tx, id uuid.UUID, u SubscriptionUpdate) error {
	tag, err := tx.Exec(ctx, `
		UPDATE accounts
		SET plan = $2, plan_status = $3, tier = $4, aspect_ratio = $5,
			stripe_customer_id = COALESCE($6, stripe_customer_id),
			stripe_subscription_id = COALESCE($7, stripe_subscription_id),
			current_period_end = $8, canceled_at = $9, updated_at = now()
		WHERE id = $1
	`, id, u.Plan, u.PlanStatus, u.Tier, u.AspectRatio, u.StripeCustomerID, u.StripeSubscriptionID, u.CurrentPeriodEnd, u.CanceledAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}
