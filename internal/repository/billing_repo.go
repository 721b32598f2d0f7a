package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"
)

type BillingEventRepo struct {
	pool *pgxpool.Pool
}

func NewBillingEventRepo(pool *pgxpool.Pool) *BillingEventRepo {
	return &BillingEventRepo{pool: pool}
}

// InsertIfNew records the event and reports whether it was seen for the first
// time. ON CONFLICT DO NOTHING on the event id makes this the deduplication
// point for at-least-once webhook delivery.
func (r *BillingEventRepo) InsertIfNew(ctx context.Context, eventID, eventType string, payload json.RawMessage) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO billing_events (event_id, event_type, payload)
		VALUES ($1, $2, $3)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, eventType, payload)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MarkProcessed stamps the event once its handler has run to completion.
func (r *BillingEventRepo) MarkProcessed(ctx context.Context, eventID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE billing_events SET processed_at = now() WHERE event_id = $1
	`, eventID)
	return err
}

// Delete removes the event row. Called when processing failed after the id
// was claimed, so a redelivery of the same event is not dropped as a
// duplicate.
func (r *BillingEventRepo) Delete(ctx context.Context, eventID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM billing_events WHERE event_id = $1`, eventID)
	return err
}
