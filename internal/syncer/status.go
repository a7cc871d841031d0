package syncer

import (
	"context"
	"fmt"

	"github.com/lherron/graphsync/internal/ledger"
)

// Status compares a fragment directory listing with the ledger.
type Status struct {
	Applied []string `json:"applied"`
	Pending []string `json:"pending"`
	// Missing lists ledger entries with no file in the directory.
	Missing []string `json:"missing,omitempty"`
}

// LedgerStatus classifies paths (relative, slash separated) against led.
func LedgerStatus(ctx context.Context, led ledger.Store, paths []string) (*Status, error) {
	entries, err := led.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger: %w", err)
	}
	recorded := make(map[string]bool, len(entries))
	for _, e := range entries {
		recorded[e.Path] = true
	}

	st := &Status{}
	present := make(map[string]bool, len(paths))
	for _, p := range paths {
		present[p] = true
		if recorded[p] {
			st.Applied = append(st.Applied, p)
		} else {
			st.Pending = append(st.Pending, p)
		}
	}
	for _, e := range entries {
		if !present[e.Path] {
			st.Missing = append(st.Missing, e.Path)
		}
	}
	return st, nil
}
