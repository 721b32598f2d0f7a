package models

import (
	"time"

	"github.com/google/uuid"
)

// Credit transaction types. One credit buys one second of generated video.
const (
	CreditEntryDebit        = "debit"
	CreditEntryCredit       = "credit"
	CreditEntryRefund       = "refund"
	CreditEntrySubscription = "subscription"
)

// CreditTransaction is an append-only ledger row. For any account the sum of
// Amount over all rows equals the account's current credit balance.
type CreditTransaction struct {
	ID           uuid.UUID  `json:"id"`
	AccountID    uuid.UUID  `json:"account_id"`
	JobID        *uuid.UUID `json:"job_id,omitempty"`
	Amount       int        `json:"amount"` // signed; negative = debit
	Type         string     `json:"type"`
	Description  string     `json:"description"`
	BalanceAfter *int       `json:"balance_after,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
