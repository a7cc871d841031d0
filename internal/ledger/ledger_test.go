package ledger

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

// behaviour shared by every backend
func testLedger(t *testing.T, open func(path string) (Store, error), path string) {
	t.Helper()
	ctx := context.Background()

	l, err := open(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	if ok, err := l.Contains(ctx, "a/one.json"); err != nil || ok {
		t.Fatalf("empty ledger Contains = %v, %v", ok, err)
	}
	if err := l.MarkApplied(ctx, "a/one.json", "d1"); err != nil {
		t.Fatalf("MarkApplied failed: %v", err)
	}
	if err := l.MarkApplied(ctx, "a/one.json", "d1"); err != nil {
		t.Fatalf("second MarkApplied failed: %v", err)
	}
	if err := l.MarkApplied(ctx, "./b/two.json", ""); err != nil {
		t.Fatalf("MarkApplied failed: %v", err)
	}
	if err := l.MarkApplied(ctx, "  ", ""); err == nil {
		t.Error("expected empty path to be rejected")
	}

	for _, p := range []string{"a/one.json", "b/two.json"} {
		if ok, err := l.Contains(ctx, p); err != nil || !ok {
			t.Errorf("Contains(%q) = %v, %v", p, ok, err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	entries, err := reopened.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 2 || entries[0].Path != "a/one.json" || entries[1].Path != "b/two.json" {
		t.Errorf("entries after reopen = %+v", entries)
	}
}

func TestFileLedger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed", "loaded_files.txt")
	testLedger(t, func(p string) (Store, error) { return OpenFile(p) }, path)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read ledger: %v", err)
	}
	if string(data) != "a/one.json\nb/two.json\n" {
		t.Errorf("ledger file = %q", data)
	}
}

func TestBoltLedger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	testLedger(t, func(p string) (Store, error) { return OpenBolt(p) }, path)

	l, err := OpenBolt(path)
	if err != nil {
		t.Fatalf("OpenBolt failed: %v", err)
	}
	defer l.Close()
	entries, _ := l.List(context.Background())
	if entries[0].Digest != "d1" || entries[0].AppliedAt.IsZero() {
		t.Errorf("bolt entry missing metadata: %+v", entries[0])
	}
}

func TestFileLedgerSkipsBlankLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loaded.txt")
	if err := os.WriteFile(path, []byte("one.json\n\n  \r\ntwo.json\n"), 0644); err != nil {
		t.Fatal(err)
	}
	l, err := OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	entries, _ := l.List(context.Background())
	if len(entries) != 2 {
		t.Errorf("entries = %+v", entries)
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open("redis", filepath.Join(t.TempDir(), "x")); err == nil {
		t.Error("expected error for unknown backend")
	}
}
