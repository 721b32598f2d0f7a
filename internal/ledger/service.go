// Package ledger implements the credit ledger: atomic balance adjustments
// over an account paired with an append-only transaction log. Every mutation
// and its log row commit or roll back together.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vykso/backend/internal/models"
)

// ErrInsufficientCredits is returned when a debit would drive the balance
// negative. The account and its transaction log are left untouched.
var ErrInsufficientCredits = errors.New("insufficient credits")

// ErrInvalidAmount is returned for non-positive adjustment amounts.
var ErrInvalidAmount = errors.New("amount must be positive")

// AccountRepo is the minimal account repository interface for ledger ops.
type AccountRepo interface {
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Account, error)
	DeductCredits(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int) (newBalance int, err error)
	AddCredits(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int) (newBalance int, err error)
}

// CreditRepo is the minimal transaction-log interface for ledger ops.
type CreditRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, c *models.CreditTransaction) error
}

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Service struct {
	pool     TxBeginner
	accounts AccountRepo
	credits  CreditRepo
}

func NewService(pool TxBeginner, accounts AccountRepo, credits CreditRepo) *Service {
	return &Service{pool: pool, accounts: accounts, credits: credits}
}

// Debit locks the account row, checks the balance, deducts amount, and
// appends a debit entry. Runs inside the caller's transaction so a video job
// insert can share the same atomicity boundary.
func (s *Service) Debit(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, jobID *uuid.UUID, amount int, description string) (int, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	acc, err := s.accounts.GetByIDForUpdate(ctx, tx, accountID)
	if err != nil {
		return 0, err
	}
	if acc.Credits < amount {
		return 0, ErrInsufficientCredits
	}
	newBalance, err := s.accounts.DeductCredits(ctx, tx, accountID, amount)
	if err != nil {
		return 0, err
	}
	entry := &models.CreditTransaction{
		ID:           uuid.New(),
		AccountID:    accountID,
		JobID:        jobID,
		Amount:       -amount,
		Type:         models.CreditEntryDebit,
		Description:  description,
		BalanceAfter: &newBalance,
	}
	if err := s.credits.CreateTx(ctx, tx, entry); err != nil {
		return 0, err
	}
	return newBalance, nil
}

// Refund returns amount to the account with a refund entry. Refunds always
// succeed against a valid account; there is no balance precondition.
func (s *Service) Refund(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, jobID *uuid.UUID, amount int, description string) (int, error) {
	return s.credit(ctx, tx, accountID, jobID, amount, models.CreditEntryRefund, description)
}

// Credit applies a purchase or subscription grant inside the caller's
// transaction. entryType must be credit or subscription.
func (s *Service) Credit(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int, entryType, description string) (int, error) {
	if entryType != models.CreditEntryCredit && entryType != models.CreditEntrySubscription {
		return 0, fmt.Errorf("invalid credit entry type %q", entryType)
	}
	return s.credit(ctx, tx, accountID, nil, amount, entryType, description)
}

// AddCredits is Credit in its own transaction, for callers without one.
func (s *Service) AddCredits(ctx context.Context, accountID uuid.UUID, amount int, entryType, description string) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)
	newBalance, err := s.Credit(ctx, tx, accountID, amount, entryType, description)
	if err != nil {
		return 0, err
	}
	return newBalance, tx.Commit(ctx)
}

// SetBalance moves the account balance to target and logs the signed delta as
// a single subscription entry. Used by billing renewals that recharge a plan
// grant rather than stacking it. A zero delta writes nothing.
func (s *Service) SetBalance(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, target int, description string) (int, error) {
	if target < 0 {
		return 0, ErrInvalidAmount
	}
	acc, err := s.accounts.GetByIDForUpdate(ctx, tx, accountID)
	if err != nil {
		return 0, err
	}
	delta := target - acc.Credits
	if delta == 0 {
		return acc.Credits, nil
	}
	var newBalance int
	if delta > 0 {
		newBalance, err = s.accounts.AddCredits(ctx, tx, accountID, delta)
	} else {
		newBalance, err = s.accounts.DeductCredits(ctx, tx, accountID, -delta)
	}
	if err != nil {
		return 0, err
	}
	entry := &models.CreditTransaction{
		ID:           uuid.New(),
		AccountID:    accountID,
		Amount:       delta,
		Type:         models.CreditEntrySubscription,
		Description:  description,
		BalanceAfter: &newBalance,
	}
	if err := s.credits.CreateTx(ctx, tx, entry); err != nil {
		return 0, err
	}
	return newBalance, nil
}

func (s *Service) credit(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, jobID *uuid.UUID, amount int, entryType, description string) (int, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	newBalance, err := s.accounts.AddCredits(ctx, tx, accountID, amount)
	if err != nil {
		return 0, err
	}
	entry := &models.CreditTransaction{
		ID:           uuid.New(),
		AccountID:    accountID,
		JobID:        jobID,
		Amount:       amount,
		Type:         entryType,
		Description:  description,
		BalanceAfter: &newBalance,
	}
	if err := s.credits.CreateTx(ctx, tx, entry); err != nil {
		return 0, err
	}
	return newBalance, nil
}
