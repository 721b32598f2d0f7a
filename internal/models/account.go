package models

import (
	"time"

	"github.com/google/uuid"
)

// Account tiers. The tier is derived from the plan name and cached on the
// row; the plan string stays the source of truth and wins on any mismatch.
const (
	TierCreator      = "creator"
	TierProfessional = "professional"
)

// Aspect ratios by tier.
const (
	AspectPortrait  = "9:16"
	AspectLandscape = "16:9"
)

// Subscription status values mirrored from the billing provider.
const (
	SubscriptionActive   = "active"
	SubscriptionCanceled = "canceled"
	SubscriptionPastDue  = "past_due"
)

// PlanFree is the auto-provisioned plan for new accounts.
const PlanFree = "free"

// FreeStartingCredits is granted once when an account is created.
const FreeStartingCredits = 10

type Account struct {
	ID                   uuid.UUID  `json:"id"`
	Email                string     `json:"email"`
	DisplayName          string     `json:"display_name"`
	PasswordHash         string     `json:"-"`
	Plan                 string     `json:"plan"`
	PlanStatus           string     `json:"plan_status"`
	Tier                 string     `json:"tier"`
	AspectRatio          string     `json:"aspect_ratio"`
	Credits              int        `json:"credits"`
	StripeCustomerID     *string    `json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID *string    `json:"stripe_subscription_id,omitempty"`
	CurrentPeriodEnd     *time.Time `json:"current_period_end,omitempty"`
	CanceledAt           *time.Time `json:"canceled_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}
