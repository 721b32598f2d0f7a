// Package billing ingests normalized billing-provider webhook events:
// subscription lifecycle, payment outcomes, and one-time credit purchases.
// Events are deduplicated by provider event id before any state changes.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vykso/backend/internal/models"
	"github.com/vykso/backend/internal/plan"
	"github.com/vykso/backend/internal/repository"
)

// ErrDuplicateEvent is returned for a replayed webhook event. The replay is
// acknowledged without reprocessing.
var ErrDuplicateEvent = errors.New("duplicate billing event")

// ErrUnknownAccount is returned when an event cannot be tied to an account.
var ErrUnknownAccount = errors.New("no account matches billing event")

// Event is a billing webhook event after normalization at the transport
// boundary. The free-form provider payload is translated into this closed
// shape once, at ingestion; nothing downstream re-parses provider strings.
type Event struct {
	ID   string    `json:"id"`
	Type string    `json:"type"`
	Data EventData `json:"data"`
}

type EventData struct {
	AccountID        uuid.UUID  `json:"account_id,omitempty"`
	Plan             string     `json:"plan,omitempty"`
	Status           string     `json:"status,omitempty"`
	CustomerID       string     `json:"customer_id,omitempty"`
	SubscriptionID   string     `json:"subscription_id,omitempty"`
	CurrentPeriodEnd *time.Time `json:"current_period_end,omitempty"`
	BillingReason    string     `json:"billing_reason,omitempty"`
	Credits          int        `json:"credits,omitempty"`
	InvoiceURL       string     `json:"invoice_url,omitempty"`
}

// AccountRepo is the account persistence interface billing needs.
type AccountRepo interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	GetByStripeSubscription(ctx context.Context, subscriptionID string) (*models.Account, error)
	ApplySubscription(ctx context.Context, tx pgx.Tx, id uuid.UUID, u repository.SubscriptionUpdate) error
}

// Ledger is the credit ledger interface billing needs.
type Ledger interface {
	Credit(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int, entryType, description string) (int, error)
	SetBalance(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, target int, description string) (int, error)
}

// EventStore records events for deduplication.
type EventStore interface {
	InsertIfNew(ctx context.Context, eventID, eventType string, payload json.RawMessage) (bool, error)
	MarkProcessed(ctx context.Context, eventID string) error
	Delete(ctx context.Context, eventID string) error
}

type Service struct {
	accounts AccountRepo
	ledger   Ledger
	events   EventStore
	log      *slog.Logger
}

func NewService(accounts AccountRepo, ledger Ledger, events EventStore, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{accounts: accounts, ledger: ledger, events: events, log: log}
}

// HandleEvent deduplicates and applies one billing event. A replayed event id
// returns ErrDuplicateEvent with no state change.
func (s *Service) HandleEvent(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	fresh, err := s.events.InsertIfNew(ctx, evt.ID, evt.Type, payload)
	if err != nil {
		return err
	}
	if !fresh {
		return ErrDuplicateEvent
	}

	switch evt.Type {
	case models.EventSubscriptionCreated:
		err = s.subscriptionCreated(ctx, evt.Data)
	case models.EventSubscriptionUpdated:
		err = s.subscriptionUpdated(ctx, evt.Data)
	case models.EventSubscriptionDeleted:
		err = s.subscriptionDeleted(ctx, evt.Data)
	case models.EventPaymentSucceeded:
		err = s.paymentSucceeded(ctx, evt.Data)
	case models.EventPaymentFailed:
		err = s.paymentFailed(ctx, evt.Data)
	case models.EventCreditPurchase:
		err = s.creditPurchase(ctx, evt.Data)
	default:
		s.log.Info("unhandled billing event type", "type", evt.Type, "event_id", evt.ID)
	}
	if err != nil {
		// Release the event id so the provider's replay is not swallowed
		// by dedup; the failure is reported either way.
		if delErr := s.events.Delete(ctx, evt.ID); delErr != nil {
			s.log.Error("releasing failed billing event", "event_id", evt.ID, "error", delErr)
		}
		return err
	}
	return s.events.MarkProcessed(ctx, evt.ID)
}

// subscriptionCreated applies the new plan and sets the balance to the
// plan's grant. The initial grant is the one place a plan event moves
// credits; later plan changes leave the balance alone.
func (s *Service) subscriptionCreated(ctx context.Context, d EventData) error {
	acc, err := s.resolveAccount(ctx, d)
	if err != nil {
		return err
	}
	tx, err := s.accounts.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := s.applyPlan(ctx, tx, acc.ID, d, models.SubscriptionActive); err != nil {
		return err
	}
	grant := plan.CreditsForPlan(d.Plan)
	if grant > 0 {
		if _, err := s.ledger.SetBalance(ctx, tx, acc.ID, grant, fmt.Sprintf("subscription grant: %s", d.Plan)); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// subscriptionUpdated applies a plan or status change. Tier and aspect ratio
// are recomputed from the new plan; the credit balance is not touched.
func (s *Service) subscriptionUpdated(ctx context.Context, d EventData) error {
	acc, err := s.resolveAccount(ctx, d)
	if err != nil {
		return err
	}
	tx, err := s.accounts.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	status := d.Status
	if status == "" {
		status = models.SubscriptionActive
	}
	if err := s.applyPlan(ctx, tx, acc.ID, d, status); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// subscriptionDeleted drops the account to the free plan and zeroes the
// balance with a signed subscription entry.
func (s *Service) subscriptionDeleted(ctx context.Context, d EventData) error {
	acc, err := s.resolveAccount(ctx, d)
	if err != nil {
		return err
	}
	tx, err := s.accounts.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	cls := plan.Classify(models.PlanFree)
	if err := s.accounts.ApplySubscription(ctx, tx, acc.ID, repository.SubscriptionUpdate{
		Plan:        models.PlanFree,
		PlanStatus:  models.SubscriptionCanceled,
		Tier:        cls.Tier,
		AspectRatio: cls.AspectRatio,
		CanceledAt:  &now,
	}); err != nil {
		return err
	}
	if _, err := s.ledger.SetBalance(ctx, tx, acc.ID, 0, "subscription canceled"); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// paymentSucceeded recharges the plan grant on renewal cycles. Initial
// payments are covered by subscriptionCreated; anything else is a no-op.
func (s *Service) paymentSucceeded(ctx context.Context, d EventData) error {
	if d.BillingReason != models.BillingReasonCycle {
		return nil
	}
	acc, err := s.resolveAccount(ctx, d)
	if err != nil {
		return err
	}
	grant := plan.CreditsForPlan(acc.Plan)
	if grant == 0 {
		s.log.Warn("renewal for plan without a configured grant", "account_id", acc.ID, "plan", acc.Plan)
		return nil
	}
	tx, err := s.accounts.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if _, err := s.ledger.SetBalance(ctx, tx, acc.ID, grant, fmt.Sprintf("renewal recharge: %s", acc.Plan)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// paymentFailed logs the failure. The balance is untouched; the provider
// retries the charge and emits subscription.updated if it gives up.
func (s *Service) paymentFailed(ctx context.Context, d EventData) error {
	acc, err := s.resolveAccount(ctx, d)
	if err != nil {
		return err
	}
	s.log.Warn("payment failed", "account_id", acc.ID, "email", acc.Email, "invoice_url", d.InvoiceURL)
	return nil
}

// creditPurchase applies a one-time credit top-up.
func (s *Service) creditPurchase(ctx context.Context, d EventData) error {
	if d.Credits <= 0 {
		return fmt.Errorf("credit purchase event without a positive credit amount")
	}
	acc, err := s.resolveAccount(ctx, d)
	if err != nil {
		return err
	}
	tx, err := s.accounts.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if _, err := s.ledger.Credit(ctx, tx, acc.ID, d.Credits, models.CreditEntryCredit, fmt.Sprintf("credit purchase: +%d", d.Credits)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Service) applyPlan(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, d EventData, status string) error {
	cls := plan.Classify(d.Plan)
	u := repository.SubscriptionUpdate{
		Plan:             d.Plan,
		PlanStatus:       status,
		Tier:             cls.Tier,
		AspectRatio:      cls.AspectRatio,
		CurrentPeriodEnd: d.CurrentPeriodEnd,
	}
	if d.CustomerID != "" {
		u.StripeCustomerID = &d.CustomerID
	}
	if d.SubscriptionID != "" {
		u.StripeSubscriptionID = &d.SubscriptionID
	}
	return s.accounts.ApplySubscription(ctx, tx, accountID, u)
}

// resolveAccount finds the event's account by explicit id first, then by the
// provider subscription reference.
func (s *Service) resolveAccount(ctx context.Context, d EventData) (*models.Account, error) {
	if d.AccountID != uuid.Nil {
		return s.accounts.GetByID(ctx, d.AccountID)
	}
	if d.SubscriptionID != "" {
		acc, err := s.accounts.GetByStripeSubscription(ctx, d.SubscriptionID)
		if err == nil {
			return acc, nil
		}
		if !errors.Is(err, repository.ErrAccountNotFound) {
			return nil, err
		}
	}
	return nil, ErrUnknownAccount
}
