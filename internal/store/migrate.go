package store

import (
	"context"
	"fmt"
)

// Migrate creates the tables and indexes the service depends on. It is
// idempotent and is run by both binaries at startup.
func Migrate(ctx context.Context, db Querier) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS ledger_entries (
			id UUID PRIMARY KEY,
			trace_id UUID NOT NULL,
			user_id TEXT,
			account TEXT NOT NULL,
			entry_type TEXT NOT NULL CHECK (entry_type IN ('DEBIT', 'CREDIT')),
			category TEXT NOT NULL,
			subtype TEXT,
			amount BIGINT NOT NULL CHECK (amount > 0),
			currency TEXT NOT NULL,
			balance_before BIGINT,
			balance_after BIGINT,
			status TEXT NOT NULL DEFAULT 'PENDING' CHECK (status IN ('PENDING', 'COMPLETED', 'FAILED')),
			related_to UUID,
			idempotency_key TEXT,
			meta JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			processed_at TIMESTAMPTZ
		);`,

		`CREATE INDEX IF NOT EXISTS idx_ledger_entries_trace ON ledger_entries (trace_id);`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_entries_user ON ledger_entries (user_id, category, created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_entries_status ON ledger_entries (status, category, created_at);`,

		`CREATE TABLE IF NOT EXISTS outbox_events (
			id UUID PRIMARY KEY,
			topic TEXT NOT NULL,
			payload JSONB NOT NULL,
			processed BOOLEAN NOT NULL DEFAULT FALSE,
			retry_count INT NOT NULL DEFAULT 0,
			last_error TEXT,
			claimed_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			processed_at TIMESTAMPTZ
		);`,

		`CREATE INDEX IF NOT EXISTS idx_outbox_events_unprocessed ON outbox_events (processed, created_at);`,

		`CREATE TABLE IF NOT EXISTS idempotency_records (
			key TEXT NOT NULL,
			user_id TEXT NOT NULL,
			response JSONB NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (key, user_id)
		);`,

		`CREATE INDEX IF NOT EXISTS idx_idempotency_records_expiry ON idempotency_records (expires_at);`,

		`CREATE TABLE IF NOT EXISTS settlements (
			id UUID PRIMARY KEY,
			trace_id UUID NOT NULL,
			user_id TEXT NOT NULL,
			kind TEXT NOT NULL CHECK (kind IN ('transfer', 'bill-payment', 'savings', 'loan')),
			debit_account TEXT NOT NULL,
			counterpart TEXT NOT NULL,
			amount BIGINT NOT NULL CHECK (amount > 0),
			fee BIGINT NOT NULL DEFAULT 0 CHECK (fee >= 0),
			currency TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'PENDING' CHECK (status IN ('PENDING', 'PROCESSING', 'COMPLETED', 'FAILED')),
			reference TEXT UNIQUE NOT NULL,
			provider_ref TEXT,
			meta JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,

		`CREATE INDEX IF NOT EXISTS idx_settlements_pending ON settlements (status, created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_settlements_user ON settlements (user_id, kind, created_at);`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
