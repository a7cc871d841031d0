package logger

import "testing"

func TestNewRejectsBadLevel(t *testing.T) {
	if _, err := New("development", "loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestNewModes(t *testing.T) {
	for _, mode := range []string{"", "development", "production", "json"} {
		l, err := New(mode, "debug")
		if err != nil {
			t.Fatalf("New(%q) failed: %v", mode, err)
		}
		l.With("run", "test").Debug("hello", "k", 1)
	}
}

func TestSanitizeKVs(t *testing.T) {
	got := sanitizeKVs([]interface{}{"neo4j_password", "hunter2", "uri", "bolt://x", "dangling"})
	if len(got) != 5 {
		t.Fatalf("expected 5 items, got %d", len(got))
	}
	if got[1] != "[REDACTED]" {
		t.Errorf("password not redacted: %v", got[1])
	}
	if got[3] != "bolt://x" {
		t.Errorf("uri changed: %v", got[3])
	}
	if got[4] != "dangling" {
		t.Errorf("dangling key lost: %v", got[4])
	}
}
