package database

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "data", "test.db"), 1)
	if err != nil {
		t.Fatalf("failed to create db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func TestNewDBAndMigrate(t *testing.T) {
	db := newTestDB(t)

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM migrations").Scan(&count); err != nil {
		t.Fatalf("failed to query migrations: %v", err)
	}
	if count != len(migrations) {
		t.Fatalf("expected %d migrations, got %d", len(migrations), count)
	}

	if err := db.Migrate(); err != nil {
		t.Fatalf("second migrate should be a no-op: %v", err)
	}
}

func TestStatusHistoryRoundTrip(t *testing.T) {
	db := newTestDB(t)

	old := time.Now().Add(-48 * time.Hour).UTC()
	now := time.Now().UTC()
	if err := db.RecordStatus(old, map[string]bool{"db": false}); err != nil {
		t.Fatalf("record old: %v", err)
	}
	if err := db.RecordStatus(now, map[string]bool{"db": true, "jtales0": false}); err != nil {
		t.Fatalf("record now: %v", err)
	}

	samples, err := db.StatusHistory("db", time.Time{}, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(samples) != 2 || !samples[0].Running {
		t.Fatalf("expected newest db sample first, got %+v", samples)
	}

	removed, err := db.PruneStatusHistory(now.Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 pruned sample, got %d", removed)
	}
}

func TestProvisioningAttempts(t *testing.T) {
	db := newTestDB(t)

	if err := db.RecordProvisioning(ProvisioningAttempt{
		AttemptID:   "a-1",
		AccountName: "alice",
		RequestedAt: time.Now().UTC(),
		Kind:        "duplicate",
		FailedStep:  "existence",
	}); err != nil {
		t.Fatalf("record: %v", err)
	}

	attempts, err := db.ProvisioningAttempts("alice", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(attempts) != 1 || attempts[0].FailedStep != "existence" || attempts[0].Succeeded {
		t.Fatalf("unexpected attempts %+v", attempts)
	}
}
