package db_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lherron/graphsync/internal/db"
)

func TestRequiresMigrationError(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	database, err := db.Open(dbPath)
	if err != nil {
		t.Fatalf("could not open db: %v", err)
	}
	defer database.Close()

	_, err = database.Exec(`
		CREATE TABLE schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
		)
	`)
	if err != nil {
		t.Fatalf("could not create schema_migrations: %v", err)
	}
	if _, err := database.Exec(`INSERT INTO schema_migrations (version) VALUES ('000001_graph.sql')`); err != nil {
		t.Fatalf("could not insert migration: %v", err)
	}

	migErr := database.RequiresMigrationError(ctx)
	if migErr == nil {
		t.Fatal("expected migration error, got nil")
	}
	errStr := migErr.Error()
	for _, want := range []string{dbPath, "000001_graph.sql", "pending migration"} {
		if !strings.Contains(errStr, want) {
			t.Errorf("error should contain %q, got: %s", want, errStr)
		}
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	database, err := db.Open(filepath.Join(t.TempDir(), "graph.db"))
	if err != nil {
		t.Fatalf("could not open db: %v", err)
	}
	defer database.Close()

	applied, err := database.Migrate(ctx)
	if err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if len(applied) != 2 {
		t.Errorf("expected 2 migrations applied, got %v", applied)
	}

	again, err := database.Migrate(ctx)
	if err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("second run applied %v", again)
	}
	if err := database.RequiresMigrationError(ctx); err != nil {
		t.Errorf("unexpected pending migrations: %v", err)
	}

	for _, table := range []string{"nodes", "edges", "label_constraints"} {
		var n int
		if err := database.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&n); err != nil || n != 1 {
			t.Errorf("table %s missing (n=%d, err=%v)", table, n, err)
		}
	}
}

func TestOpenInMemory(t *testing.T) {
	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer database.Close()

	_, pending, err := database.MigrationStatus(context.Background())
	if err != nil {
		t.Fatalf("MigrationStatus failed: %v", err)
	}
	if len(pending) != 2 {
		t.Errorf("expected all migrations pending, got %v", pending)
	}
}
