package models

import (
	"encoding/json"
	"time"
)

// Billing event types after normalization at the webhook boundary.
const (
	EventSubscriptionCreated = "subscription.created"
	EventSubscriptionUpdated = "subscription.updated"
	EventSubscriptionDeleted = "subscription.deleted"
	EventPaymentSucceeded    = "payment.succeeded"
	EventPaymentFailed       = "payment.failed"
	EventCreditPurchase      = "credit.purchase"
)

// Billing reasons carried on payment.succeeded events.
const (
	BillingReasonCycle  = "subscription_cycle"
	BillingReasonCreate = "subscription_create"
)

// BillingEvent records a received webhook event. event_id is the primary key;
// inserting a duplicate is the replay-detection point.
type BillingEvent struct {
	EventID     string          `json:"event_id"`
	EventType   string          `json:"event_type"`
	Payload     json.RawMessage `json:"payload"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}
