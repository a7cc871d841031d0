package ledger

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// FileLedger is a newline-delimited list of applied fragment paths.
type FileLedger struct {
	path string

	mu      sync.Mutex
	applied map[string]bool
}

var _ Store = (*FileLedger)(nil)

// OpenFile loads the ledger at path. A missing file is an empty ledger.
func OpenFile(path string) (*FileLedger, error) {
	l := &FileLedger{path: path, applied: make(map[string]bool)}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := normalize(scanner.Text()); line != "" {
			l.applied[line] = true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ledger %s: %w", path, err)
	}
	return l, nil
}

func (l *FileLedger) Contains(ctx context.Context, path string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.applied[normalize(path)], nil
}

// MarkApplied appends path and syncs the file before returning.
func (l *FileLedger) MarkApplied(ctx context.Context, path, digest string) error {
	key := normalize(path)
	if key == "" {
		return fmt.Errorf("ledger path is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.applied[key] {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create ledger directory: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open ledger %s: %w", l.path, err)
	}
	if _, err := f.WriteString(key + "\n"); err != nil {
		f.Close()
		return fmt.Errorf("failed to append to ledger: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync ledger: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close ledger: %w", err)
	}

	l.applied[key] = true
	return nil
}

func (l *FileLedger) List(ctx context.Context) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, 0, len(l.applied))
	for p := range l.applied {
		out = append(out, Entry{Path: p})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (l *FileLedger) Close() error {
	return nil
}
