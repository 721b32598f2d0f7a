package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSchema creates the application tables if they do not exist. It is
// idempotent and runs at startup, after the queue migrations.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS accounts (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            email TEXT NOT NULL UNIQUE,
            display_name TEXT NOT NULL DEFAULT '',
            password_hash TEXT NOT NULL,
            plan TEXT NOT NULL DEFAULT 'free',
            plan_status TEXT NOT NULL DEFAULT 'active',
            tier TEXT NOT NULL DEFAULT 'creator',
            aspect_ratio TEXT NOT NULL DEFAULT '9:16',
            credits INTEGER NOT NULL DEFAULT 0 CHECK (credits >= 0),
            stripe_customer_id TEXT,
            stripe_subscription_id TEXT,
            current_period_end TIMESTAMPTZ,
            canceled_at TIMESTAMPTZ,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );
        CREATE UNIQUE INDEX IF NOT EXISTS accounts_stripe_subscription_idx
            ON accounts (stripe_subscription_id) WHERE stripe_subscription_id IS NOT NULL;

        CREATE TABLE IF NOT EXISTS credit_transactions (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            account_id UUID NOT NULL REFERENCES accounts(id),
            amount INTEGER NOT NULL,
            type TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            job_id UUID,
            balance_after INTEGER,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );
        CREATE INDEX IF NOT EXISTS credit_transactions_account_idx
            ON credit_transactions (account_id, created_at DESC);

        CREATE TABLE IF NOT EXISTS video_jobs (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            account_id UUID NOT NULL REFERENCES accounts(id),
            prompt TEXT NOT NULL,
            model TEXT NOT NULL,
            duration_seconds INTEGER NOT NULL,
            aspect_ratio TEXT NOT NULL,
            reference_image_urls TEXT[] NOT NULL DEFAULT '{}',
            status TEXT NOT NULL DEFAULT 'pending',
            progress INTEGER NOT NULL DEFAULT 0,
            credits_charged INTEGER NOT NULL,
            provider_task_id TEXT,
            video_url TEXT,
            error TEXT,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            completed_at TIMESTAMPTZ
        );
        CREATE INDEX IF NOT EXISTS video_jobs_account_idx
            ON video_jobs (account_id, created_at DESC);
        CREATE UNIQUE INDEX IF NOT EXISTS video_jobs_provider_task_idx
            ON video_jobs (provider_task_id) WHERE provider_task_id IS NOT NULL;

        CREATE TABLE IF NOT EXISTS billing_events (
            event_id TEXT PRIMARY KEY,
            event_type TEXT NOT NULL,
            payload JSONB NOT NULL,
            processed_at TIMESTAMPTZ,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );
    `)
	return err
}
