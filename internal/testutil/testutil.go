package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/lherron/graphsync/internal/graphstore/sqlitestore"
	"github.com/lherron/graphsync/internal/ledger"
)

// TempStore creates a migrated SQLite graph store in a temporary directory.
func TempStore(t *testing.T) (*sqlitestore.Store, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "graph.db")
	store, err := sqlitestore.Open(context.Background(), dbPath, nil)
	if err != nil {
		t.Fatalf("Failed to create test store: %v", err)
	}
	t.Cleanup(func() {
		store.Close(context.Background())
	})
	return store, dbPath
}

// TempLedger opens a file ledger in a temporary directory.
func TempLedger(t *testing.T) (ledger.Store, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "loaded_files.txt")
	led, err := ledger.OpenFile(path)
	if err != nil {
		t.Fatalf("Failed to open test ledger: %v", err)
	}
	t.Cleanup(func() {
		led.Close()
	})
	return led, path
}

// WriteFile writes content to dir/rel, creating parent directories.
func WriteFile(t *testing.T, dir, rel, content string) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create directory for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write file %s: %v", path, err)
	}
	return path
}

// ReadFile reads content from a file
func ReadFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(data)
}

// AssertNoError asserts that an error is nil
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
}

// AssertError asserts that an error is not nil
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
}
