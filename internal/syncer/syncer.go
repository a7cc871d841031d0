// Package syncer applies canonical fragments to a graph store.
//
// Each run canonicalizes every loaded fragment, then writes only the
// fragments the ledger has not recorded. A fragment moves through
// Unprocessed, NodesApplied, EdgesApplied and Recorded; only Recorded
// fragments are skipped on the next run, so an interrupted run is retried
// from its last unrecorded fragment. Stored properties are merged with
// first-writer-wins semantics, except for Restore which overwrites.
package syncer

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lherron/graphsync/internal/graphstore"
	"github.com/lherron/graphsync/internal/ledger"
	"github.com/lherron/graphsync/internal/logger"
)

// ErrStoreUnavailable marks errors returned by the graph store. A run that
// fails with it has not recorded the in-flight fragment.
var ErrStoreUnavailable = errors.New("graph store unavailable")

// Options configures an Engine.
type Options struct {
	// Backup exports the store before writing.
	Backup          bool
	BackupDir       string
	CompressBackups bool
	ExportDir       string
	// DryRun reads the store to classify changes but writes nothing, not
	// even the ledger.
	DryRun bool
}

// Engine is the sync engine. It is not safe for concurrent use.
type Engine struct {
	store  graphstore.Store
	ledger ledger.Store
	opts   Options
	log    *logger.Logger
	now    func() time.Time
}

// New returns an engine writing to store and recording into led. led may be
// nil for engines that only export, back up or restore.
func New(store graphstore.Store, led ledger.Store, opts Options, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{
		store:  store,
		ledger: led,
		opts:   opts,
		log:    log,
		now:    time.Now,
	}
}

func newRunID() string {
	return uuid.NewString()
}

// storeErr wraps a store failure so callers can map it to an exit code.
func storeErr(op string, err error) error {
	if errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: failed to %s: %w", ErrStoreUnavailable, op, err)
}
