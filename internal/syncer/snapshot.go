package syncer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/lherron/graphsync/internal/domain"
	"github.com/lherron/graphsync/internal/fragment"
	"github.com/lherron/graphsync/internal/graphstore"
	"github.com/lherron/graphsync/internal/merge"
	"github.com/lherron/graphsync/internal/snapshot"
)

// DefaultExportLimit caps export size when no limit is given.
const DefaultExportLimit = 2000

func (e *Engine) backupDir() string {
	if e.opts.BackupDir != "" {
		return e.opts.BackupDir
	}
	return filepath.Join("data", "backup")
}

func (e *Engine) exportDir() string {
	if e.opts.ExportDir != "" {
		return e.opts.ExportDir
	}
	return filepath.Join("data", "processed", "graph_exports")
}

// Backup writes a full snapshot of the store to the backup directory.
func (e *Engine) Backup(ctx context.Context) (*snapshot.WriteResult, error) {
	return e.BackupTo(ctx, e.backupDir())
}

// BackupTo writes a full snapshot of the store into dir.
func (e *Engine) BackupTo(ctx context.Context, dir string) (*snapshot.WriteResult, error) {
	now := e.now()
	g, err := e.store.Scan(ctx, 0)
	if err != nil {
		return nil, storeErr("scan store for backup", err)
	}
	s := snapshot.FromGraph(g, snapshot.Meta{
		Kind:     snapshot.KindBackup,
		BackupAt: now.UTC().Format(time.RFC3339),
	})
	res, err := snapshot.Write(snapshot.BackupPath(dir, now, e.opts.CompressBackups), s)
	if err != nil {
		return nil, fmt.Errorf("failed to write backup: %w", err)
	}
	e.log.Info("backup written", "path", res.Path, "nodes", res.NodeCount, "links", res.LinkCount, "rev", res.SnapshotRev)
	return res, nil
}

// Export writes up to limit nodes (DefaultExportLimit when limit is zero,
// everything when negative) and the links among them. An empty path writes
// a timestamped file into the export directory.
func (e *Engine) Export(ctx context.Context, limit int, path string) (*snapshot.WriteResult, error) {
	if limit == 0 {
		limit = DefaultExportLimit
	}
	now := e.now()
	g, err := e.store.Scan(ctx, limit)
	if err != nil {
		return nil, storeErr("scan store for export", err)
	}
	meta := snapshot.Meta{
		Kind:       snapshot.KindExport,
		ExportedAt: now.UTC().Format(time.RFC3339),
	}
	if limit > 0 {
		meta.Limit = limit
	}
	if path == "" {
		path = snapshot.ExportPath(e.exportDir(), now)
	}
	res, err := snapshot.Write(path, snapshot.FromGraph(g, meta))
	if err != nil {
		return nil, fmt.Errorf("failed to write export: %w", err)
	}
	e.log.Info("export written", "path", res.Path, "nodes", res.NodeCount, "links", res.LinkCount)
	return res, nil
}

// Restore applies a backup or export file to the store. Snapshot values
// replace stored ones; stored properties absent from the snapshot are kept.
// Links whose endpoints are missing are skipped.
func (e *Engine) Restore(ctx context.Context, path string) (*Report, error) {
	s, err := snapshot.Load(path)
	if err != nil {
		return nil, err
	}
	if err := snapshot.Verify(s); err != nil {
		return nil, fmt.Errorf("refusing to restore %s: %w", path, err)
	}
	g, rejects := snapshot.ToGraph(s)

	report := &Report{RunID: newRunID(), DryRun: e.opts.DryRun, StartedAt: e.now().UTC()}
	defer func() { report.FinishedAt = e.now().UTC() }()
	log := e.log.With("run_id", report.RunID, "snapshot", path)
	for _, r := range rejects {
		report.NodesSkipped = append(report.NodesSkipped, Skip{Fragment: path, Reason: r})
	}

	if e.opts.Backup && !e.opts.DryRun {
		backup, err := e.Backup(ctx)
		if err != nil {
			return report, err
		}
		report.Backup = backup
	}

	a := &applier{
		store:   e.store,
		report:  report,
		log:     log,
		dryRun:  e.opts.DryRun,
		planned: make(map[string]bool),
		edges:   make(map[string]bool),
	}
	if !e.opts.DryRun {
		n, err := e.store.EnsureConstraints(ctx, labelsOf(g.Nodes))
		if err != nil {
			return report, storeErr("ensure constraints", err)
		}
		report.ConstraintsCreated = n
	}

	for _, n := range g.Nodes {
		if err := a.restoreNode(ctx, n); err != nil {
			return report, err
		}
	}
	for _, edge := range g.Edges {
		if err := a.restoreEdge(ctx, path, edge); err != nil {
			return report, err
		}
	}
	log.Info("restore complete",
		"nodes_created", report.Nodes.Created,
		"nodes_updated", report.Nodes.Updated,
		"edges_created", report.Edges.Created,
		"edges_skipped", len(report.EdgesSkipped))
	return report, nil
}

func labelsOf(nodes []graphstore.Node) []domain.Label {
	seen := make(map[domain.Label]bool)
	var out []domain.Label
	for _, n := range nodes {
		if !seen[n.Label] {
			seen[n.Label] = true
			out = append(out, n.Label)
		}
	}
	return out
}

func (a *applier) restoreNode(ctx context.Context, n graphstore.Node) error {
	existing, err := a.store.GetNode(ctx, n.ID)
	if err != nil && !errors.Is(err, graphstore.ErrNotFound) {
		return storeErr("read node "+n.ID, err)
	}
	if existing == nil {
		a.planned[n.ID] = true
		if !a.dryRun {
			if _, err := a.store.UpsertNode(ctx, n); err != nil {
				return storeErr("write node "+n.ID, err)
			}
		}
		a.report.Nodes.Created++
		return nil
	}
	res := merge.Overwrite(existing.Properties, n.Properties)
	if !res.Changed {
		a.report.Nodes.Unchanged++
		return nil
	}
	if !a.dryRun {
		if _, err := a.store.UpsertNode(ctx, graphstore.Node{ID: n.ID, Label: existing.Label, Properties: res.Merged}); err != nil {
			return storeErr("write node "+n.ID, err)
		}
	}
	a.report.Nodes.Updated++
	return nil
}

func (a *applier) restoreEdge(ctx context.Context, path string, edge graphstore.Edge) error {
	id := fragment.DeriveEdgeID(edge.SourceID, string(edge.Type), edge.TargetID)
	for _, end := range [...]string{edge.SourceID, edge.TargetID} {
		ok, err := a.nodeExists(ctx, end)
		if err != nil {
			return err
		}
		if !ok {
			a.skipEdge(path, id, fmt.Sprintf("missing node %q", end))
			return nil
		}
	}

	existing, err := a.store.GetEdge(ctx, edge.SourceID, edge.Type, edge.TargetID)
	if err != nil && !errors.Is(err, graphstore.ErrNotFound) {
		return storeErr("read edge "+id, err)
	}
	if existing != nil {
		res := merge.Overwrite(existing.Properties, edge.Properties)
		if !res.Changed {
			a.report.Edges.Unchanged++
			return nil
		}
		edge.Properties = res.Merged
		a.report.Edges.Updated++
	} else {
		a.report.Edges.Created++
	}
	if a.dryRun {
		return nil
	}
	if _, err := a.store.UpsertEdge(ctx, edge); err != nil {
		return storeErr("write edge "+id, err)
	}
	return nil
}
