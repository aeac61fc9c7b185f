package storetest

import (
	"context"
	"os"
	"testing"

	"github.com/Savage57/prime-ledger/internal/store"
)

// OpenDB connects to the database named by TEST_DATABASE_URL, runs the
// migrations and truncates every table. Tests that need a real store call it
// and are skipped when no database is reachable.
func OpenDB(t *testing.T) *store.Store {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping postgres integration test")
	}

	ctx := context.Background()
	db, err := store.New(ctx, dbURL)
	if err != nil {
		t.Skipf("skipping postgres integration test (database not available): %v", err)
	}
	t.Cleanup(db.Close)

	if err := store.Migrate(ctx, db.Pool); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	for _, table := range []string{"ledger_entries", "outbox_events", "idempotency_records", "settlements"} {
		if _, err := db.Pool.Exec(ctx, "DELETE FROM "+table); err != nil {
			t.Fatalf("failed to clean up %s: %v", table, err)
		}
	}
	return db
}
