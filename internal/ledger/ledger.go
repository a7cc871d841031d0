// Package ledger records which fragment files have been fully applied to the
// graph store, so repeated ingest runs only process new fragments.
package ledger

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Store is the applied-fragment ledger. Entries are keyed by the fragment
// path relative to the fragment directory, slash separated.
type Store interface {
	Contains(ctx context.Context, path string) (bool, error)
	// MarkApplied records path as applied. Recording a path twice is a no-op.
	MarkApplied(ctx context.Context, path, digest string) error
	List(ctx context.Context) ([]Entry, error)
	Close() error
}

// Entry is one ledger record. Backends that do not keep digests or times
// leave them empty.
type Entry struct {
	Path      string    `json:"path"`
	Digest    string    `json:"digest,omitempty"`
	AppliedAt time.Time `json:"applied_at,omitempty"`
}

const (
	BackendFile = "file"
	BackendBolt = "bolt"
)

// Open opens the ledger backend at path.
func Open(backend, path string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendFile:
		return OpenFile(path)
	case BackendBolt:
		return OpenBolt(path)
	default:
		return nil, fmt.Errorf("unknown ledger backend %q (want file or bolt)", backend)
	}
}

// normalize makes ledger keys independent of the OS path separator.
func normalize(path string) string {
	return strings.TrimPrefix(filepath.ToSlash(strings.TrimSpace(path)), "./")
}
