package syncer

import (
	"context"
	"errors"
	"strings"

	"github.com/lherron/graphsync/internal/fragment"
	"github.com/lherron/graphsync/internal/graphstore"
)

const unknownName = "Unknown"

// IsUnknown reports whether a stored node carries no usable identity: its
// entity_type is missing or "unknown", or its name is missing or "Unknown".
func IsUnknown(n graphstore.Node) bool {
	et, _ := n.Properties[fragment.KeyEntityType].(string)
	if et = strings.TrimSpace(et); et == "" || strings.EqualFold(et, "unknown") {
		return true
	}
	name, _ := n.Properties[fragment.KeyName].(string)
	return name == "" || name == unknownName
}

// Prune finds unknown nodes without relationships. When apply is set (and
// the engine is not in dry-run mode) they are deleted. The candidates are
// returned either way.
func (e *Engine) Prune(ctx context.Context, apply bool) ([]graphstore.Node, error) {
	orphans, err := e.store.OrphanNodes(ctx)
	if err != nil {
		return nil, storeErr("list orphan nodes", err)
	}
	var candidates []graphstore.Node
	for _, n := range orphans {
		if IsUnknown(n) {
			candidates = append(candidates, n)
		}
	}
	if !apply || e.opts.DryRun {
		e.log.Info("prune preview", "candidates", len(candidates))
		return candidates, nil
	}

	for _, n := range candidates {
		if err := e.store.DeleteNode(ctx, n.ID); err != nil && !errors.Is(err, graphstore.ErrNotFound) {
			return candidates, storeErr("delete node "+n.ID, err)
		}
		e.log.Debug("deleted orphan node", "id", n.ID)
	}
	e.log.Info("pruned orphan nodes", "deleted", len(candidates))
	return candidates, nil
}
