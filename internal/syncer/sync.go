package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/lherron/graphsync/internal/canon"
	"github.com/lherron/graphsync/internal/domain"
	"github.com/lherron/graphsync/internal/fragment"
	"github.com/lherron/graphsync/internal/graphstore"
	"github.com/lherron/graphsync/internal/logger"
	"github.com/lherron/graphsync/internal/merge"
)

// Sync canonicalizes every loaded fragment and applies the ones the ledger
// has not recorded. Parse failures in loaded are reported, not fatal.
//
// The returned report is non-nil even when err is set and describes the
// work done before the failure.
func (e *Engine) Sync(ctx context.Context, loaded *fragment.LoadResult) (*Report, error) {
	if e.ledger == nil {
		return nil, errors.New("sync requires a ledger")
	}
	report := &Report{RunID: newRunID(), DryRun: e.opts.DryRun, StartedAt: e.now().UTC()}
	defer func() { report.FinishedAt = e.now().UTC() }()
	log := e.log.With("run_id", report.RunID)

	for _, f := range loaded.Failures {
		report.FragmentsFailed = append(report.FragmentsFailed, FailedFragment{Path: f.Path, Error: f.Err.Error()})
	}

	// Canonicalize everything, recorded or not, so ids stay stable across runs.
	res := canon.Canonicalize(loaded.Fragments, canon.Options{Log: log})
	report.Notices = res.Notices

	var pending []*fragment.Fragment
	for _, f := range res.Fragments {
		done, err := e.ledger.Contains(ctx, f.Path)
		if err != nil {
			return report, fmt.Errorf("failed to read ledger: %w", err)
		}
		if done {
			report.FragmentsSkipped = append(report.FragmentsSkipped, f.Path)
			continue
		}
		pending = append(pending, f)
	}
	log.Info("fragments selected",
		"pending", len(pending),
		"already_applied", len(report.FragmentsSkipped),
		"failed", len(report.FragmentsFailed))
	if len(pending) == 0 {
		return report, nil
	}

	if e.opts.Backup && !e.opts.DryRun {
		backup, err := e.Backup(ctx)
		if err != nil {
			return report, err
		}
		report.Backup = backup
	}

	if !e.opts.DryRun {
		n, err := e.store.EnsureConstraints(ctx, domain.Labels())
		if err != nil {
			return report, storeErr("ensure constraints", err)
		}
		report.ConstraintsCreated = n
	}

	a := &applier{
		store:   e.store,
		report:  report,
		log:     log,
		dryRun:  e.opts.DryRun,
		planned: make(map[string]bool),
		edges:   make(map[string]bool),
	}
	if err := a.migrate(ctx, res.Mapping); err != nil {
		return report, err
	}

	for _, f := range pending {
		if err := a.apply(ctx, f, e.recorder(ctx)); err != nil {
			return report, err
		}
	}

	log.Info("sync complete",
		"nodes_created", report.Nodes.Created,
		"nodes_updated", report.Nodes.Updated,
		"edges_created", report.Edges.Created,
		"edges_updated", report.Edges.Updated,
		"edges_skipped", len(report.EdgesSkipped))
	return report, nil
}

func (e *Engine) recorder(ctx context.Context) func(f *fragment.Fragment) error {
	if e.opts.DryRun {
		return nil
	}
	return func(f *fragment.Fragment) error {
		if err := e.ledger.MarkApplied(ctx, f.Path, f.Digest); err != nil {
			return fmt.Errorf("failed to record %s in ledger: %w", f.Path, err)
		}
		return nil
	}
}

// applier carries the per-run write state.
type applier struct {
	store  graphstore.Store
	report *Report
	log    *logger.Logger
	dryRun bool
	// planned holds node ids a dry run would have created.
	planned map[string]bool
	// edges holds edge keys a dry run would have created.
	edges map[string]bool
}

// migrate folds stored nodes whose id is no longer canonical into their
// canonical node.
func (a *applier) migrate(ctx context.Context, mapping canon.Mapping) error {
	for _, remap := range mapping.Changed() {
		exists, err := a.store.NodeExists(ctx, remap.From)
		if err != nil {
			return storeErr("check node "+remap.From, err)
		}
		if !exists {
			continue
		}
		if a.dryRun {
			a.planned[remap.To] = true
		} else if err := a.store.MergeNodeInto(ctx, remap.From, remap.To); err != nil {
			return storeErr(fmt.Sprintf("merge node %s into %s", remap.From, remap.To), err)
		}
		a.log.Info("migrated node id", "from", remap.From, "to", remap.To)
		a.report.IDsMigrated = append(a.report.IDsMigrated, remap)
	}
	return nil
}

// apply writes one fragment and records it once its edges are applied.
// record is nil in dry runs.
func (a *applier) apply(ctx context.Context, f *fragment.Fragment, record func(*fragment.Fragment) error) error {
	a.report.Fragments = append(a.report.Fragments, FragmentResult{Path: f.Path, State: Unprocessed})
	result := &a.report.Fragments[len(a.report.Fragments)-1]
	log := a.log.With("fragment", f.Path)
	transition := func(to State) {
		log.Debug("fragment state", "from", result.State.String(), "to", to.String())
		result.State = to
	}

	for _, n := range f.Nodes {
		if err := a.applyNode(ctx, f.Path, n); err != nil {
			return err
		}
		result.Nodes++
	}
	transition(NodesApplied)

	for _, edge := range f.Edges {
		if err := a.applyEdge(ctx, f.Path, edge); err != nil {
			return err
		}
		result.Edges++
	}
	transition(EdgesApplied)

	if record == nil {
		return nil
	}
	if err := record(f); err != nil {
		return err
	}
	transition(Recorded)
	return nil
}

func (a *applier) skipNode(path, id, reason string) {
	a.log.Warn("skipping node", "fragment", path, "id", id, "reason", reason)
	a.report.NodesSkipped = append(a.report.NodesSkipped, Skip{Fragment: path, ID: id, Reason: reason})
}

func (a *applier) skipEdge(path, id, reason string) {
	a.log.Warn("skipping edge", "fragment", path, "id", id, "reason", reason)
	a.report.EdgesSkipped = append(a.report.EdgesSkipped, Skip{Fragment: path, ID: id, Reason: reason})
}

func nodeProperties(n fragment.Node) map[string]any {
	props := fragment.CloneProperties(n.Properties)
	if props == nil {
		props = make(map[string]any)
	}
	if n.EntityType != "" {
		props[fragment.KeyEntityType] = string(n.EntityType)
	}
	return props
}

func (a *applier) applyNode(ctx context.Context, path string, n fragment.Node) error {
	props := nodeProperties(n)

	existing, err := a.store.GetNode(ctx, n.ID)
	if err != nil && !errors.Is(err, graphstore.ErrNotFound) {
		return storeErr("read node "+n.ID, err)
	}

	if existing == nil {
		if n.EntityType == "" {
			a.skipNode(path, n.ID, "untyped record and no stored node to attach it to")
			return nil
		}
		if a.dryRun {
			if a.planned[n.ID] {
				a.report.Nodes.Unchanged++
			} else {
				a.planned[n.ID] = true
				a.report.Nodes.Created++
			}
			return nil
		}
		created, err := a.store.UpsertNode(ctx, graphstore.Node{ID: n.ID, Label: n.EntityType.Label(), Properties: props})
		if err != nil {
			return storeErr("write node "+n.ID, err)
		}
		if created {
			a.report.Nodes.Created++
		} else {
			a.report.Nodes.Updated++
		}
		return nil
	}

	if n.EntityType != "" && existing.Label != n.EntityType.Label() {
		a.log.Warn("keeping stored label",
			"fragment", path, "id", n.ID, "stored", string(existing.Label), "incoming", string(n.EntityType.Label()))
	}

	res := merge.Merge(existing.Properties, props)
	if len(res.Conflicts) > 0 {
		a.log.Debug("kept stored values", "id", n.ID, "conflicts", merge.FormatConflicts(res.Conflicts))
	}
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

func (a *applier) nodeExists(ctx context.Context, id string) (bool, error) {
	if a.planned[id] {
		return true, nil
	}
	ok, err := a.store.NodeExists(ctx, id)
	if err != nil {
		return false, storeErr("check node "+id, err)
	}
	return ok, nil
}

func (a *applier) applyEdge(ctx context.Context, path string, e fragment.Edge) error {
	id := e.ID
	if id == "" {
		id = e.Key()
	}
	rt := domain.RelationshipType(e.Type)
	if err := domain.ValidateRelationship(rt); err != nil {
		a.skipEdge(path, id, err.Error())
		return nil
	}

	for _, end := range [...]struct{ role, id string }{{"source", e.SourceID}, {"target", e.TargetID}} {
		ok, err := a.nodeExists(ctx, end.id)
		if err != nil {
			return err
		}
		if !ok {
			a.skipEdge(path, id, fmt.Sprintf("missing %s node %q", end.role, end.id))
			return nil
		}
	}

	props := fragment.CloneProperties(e.Properties)
	if props == nil {
		props = make(map[string]any)
	}
	edge := graphstore.Edge{SourceID: e.SourceID, TargetID: e.TargetID, Type: rt, Properties: props}

	existing, err := a.store.GetEdge(ctx, e.SourceID, rt, e.TargetID)
	if err != nil && !errors.Is(err, graphstore.ErrNotFound) {
		return storeErr("read edge "+id, err)
	}

	if existing == nil {
		if a.dryRun {
			if a.edges[e.Key()] {
				a.report.Edges.Unchanged++
			} else {
				a.edges[e.Key()] = true
				a.report.Edges.Created++
			}
			return nil
		}
		created, err := a.store.UpsertEdge(ctx, edge)
		if errors.Is(err, graphstore.ErrMissingEndpoint) {
			a.skipEdge(path, id, err.Error())
			return nil
		}
		if err != nil {
			return storeErr("write edge "+id, err)
		}
		if created {
			a.report.Edges.Created++
		} else {
			a.report.Edges.Updated++
		}
		return nil
	}

	res := merge.Merge(existing.Properties, props)
	if !res.Changed {
		a.report.Edges.Unchanged++
		return nil
	}
	if !a.dryRun {
		edge.Properties = res.Merged
		if _, err := a.store.UpsertEdge(ctx, edge); err != nil {
			return storeErr("write edge "+id, err)
		}
	}
	a.report.Edges.Updated++
	return nil
}
