// Package neo4jstore is the Neo4j graphstore.Store used in production.
package neo4jstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/lherron/graphsync/internal/config"
	"github.com/lherron/graphsync/internal/domain"
	"github.com/lherron/graphsync/internal/graphstore"
	"github.com/lherron/graphsync/internal/logger"
	"github.com/lherron/graphsync/internal/merge"
)

type Store struct {
	driver   neo4j.DriverWithContext
	database string
	log      *logger.Logger
	// set while nodes written without idLabel remain in the database
	unlabeled atomic.Bool
}

var _ graphstore.Store = (*Store)(nil)

// Open connects to Neo4j and verifies connectivity. Connection failures wrap
// graphstore.ErrUnavailable.
func Open(ctx context.Context, cfg config.Neo4jConfig, log *logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.Nop()
	}
	uri := strings.TrimSpace(cfg.URI)
	if uri == "" {
		return nil, fmt.Errorf("%w: neo4j uri is not configured", graphstore.ErrUnavailable)
	}
	user := strings.TrimSpace(cfg.User)
	if user == "" {
		user = "neo4j"
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxPool := cfg.MaxPoolSize
	if maxPool <= 0 {
		maxPool = 50
	}

	auth := neo4j.BasicAuth(user, cfg.Password, "")
	driver, err := neo4j.NewDriverWithContext(uri, auth, func(c *neo4j.Config) {
		c.MaxConnectionPoolSize = maxPool
		c.SocketConnectTimeout = timeout
	})
	if err != nil {
		return nil, fmt.Errorf("%w: init driver: %v", graphstore.ErrUnavailable, err)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("%w: verify connectivity to %s: %v", graphstore.ErrUnavailable, uri, err)
	}

	s := &Store{
		driver:   driver,
		database: strings.TrimSpace(cfg.Database),
		log:      log.With("store", "neo4j", "uri", uri),
	}
	out, err := s.read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := collect(ctx, tx, unlabeledCypher, nil)
		return len(records) > 0, err
	})
	if err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("%w: check node labels: %v", graphstore.ErrUnavailable, err)
	}
	if out.(bool) {
		s.log.Info("found nodes without the id label; lookups scan until constraints are ensured", "label", idLabel)
		s.unlabeled.Store(true)
	}
	return s, nil
}

// q adapts an id lookup to the labels present in the database.
func (s *Store) q(cypher string) string {
	if s.unlabeled.Load() {
		return withoutIDLabel(cypher)
	}
	return cypher
}

func (s *Store) Close(ctx context.Context) error {
	if s == nil || s.driver == nil {
		return nil
	}
	err := s.driver.Close(ctx)
	s.driver = nil
	return err
}

func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	if neo4j.IsConnectivityError(err) {
		return fmt.Errorf("%w: %v", graphstore.ErrUnavailable, err)
	}
	return err
}

func isAlreadyExists(err error) bool {
	var neoErr *neo4j.Neo4jError
	if errors.As(err, &neoErr) {
		return strings.Contains(neoErr.Code, "AlreadyExists")
	}
	return false
}

func (s *Store) write(ctx context.Context, fn neo4j.ManagedTransactionWork) (any, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.database,
	})
	defer session.Close(ctx)
	out, err := session.ExecuteWrite(ctx, fn)
	return out, wrapErr(err)
}

func (s *Store) read(ctx context.Context, fn neo4j.ManagedTransactionWork) (any, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: s.database,
	})
	defer session.Close(ctx)
	out, err := session.ExecuteRead(ctx, fn)
	return out, wrapErr(err)
}

func collect(ctx context.Context, tx neo4j.ManagedTransaction, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	res, err := tx.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	return res.Collect(ctx)
}

func countOf(ctx context.Context, tx neo4j.ManagedTransaction, cypher string, params map[string]any) (int, error) {
	records, err := collect(ctx, tx, cypher, params)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}
	v, _ := records[0].Get("c")
	n, _ := v.(int64)
	return int(n), nil
}

// EnsureConstraints creates the per-label uniqueness constraints and the id
// index, then gives idLabel to nodes that lack it.
func (s *Store) EnsureConstraints(ctx context.Context, labels []domain.Label) (int, error) {
	if err := s.ensureIDIndex(ctx); err != nil {
		return 0, err
	}
	created := 0
	for _, l := range labels {
		cypher, err := constraintCypher(l)
		if err != nil {
			return created, err
		}
		out, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			res, err := tx.Run(ctx, cypher, nil)
			if err != nil {
				return 0, err
			}
			summary, err := res.Consume(ctx)
			if err != nil {
				return 0, err
			}
			return summary.Counters().ConstraintsAdded(), nil
		})
		if err != nil {
			if isAlreadyExists(err) {
				s.log.Debug("constraint already exists", "label", string(l))
				continue
			}
			return created, fmt.Errorf("failed to create constraint for %s: %w", l, err)
		}
		created += out.(int)
	}
	return created, nil
}

func (s *Store) ensureIDIndex(ctx context.Context) error {
	_, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, idIndexCypher, nil)
		if err != nil {
			return nil, err
		}
		_, err = res.Consume(ctx)
		return nil, err
	})
	if err != nil && !isAlreadyExists(err) {
		return fmt.Errorf("failed to create id index: %w", err)
	}
	if !s.unlabeled.Load() {
		return nil
	}
	out, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return countOf(ctx, tx, labelNodesCypher, nil)
	})
	if err != nil {
		return fmt.Errorf("failed to label nodes: %w", err)
	}
	s.log.Info("labeled existing nodes", "label", idLabel, "count", out.(int))
	s.unlabeled.Store(false)
	return nil
}

func (s *Store) getNode(ctx context.Context, tx neo4j.ManagedTransaction, id string) (*graphstore.Node, error) {
	records, err := collect(ctx, tx, s.q(getNodeCypher), map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("node %s: %w", id, graphstore.ErrNotFound)
	}
	return nodeFromRecord(id, records[0]), nil
}

func nodeFromRecord(id string, rec *neo4j.Record) *graphstore.Node {
	labelsRaw, _ := rec.Get("labels")
	propsRaw, _ := rec.Get("props")
	props, _ := propsRaw.(map[string]any)
	return &graphstore.Node{ID: id, Label: pickLabel(labelsRaw), Properties: fromStoreProps(props)}
}

// pickLabel returns the first label in the vocabulary, or the first label
// other than idLabel.
func pickLabel(raw any) domain.Label {
	list, _ := raw.([]any)
	var first domain.Label
	for _, v := range list {
		s, _ := v.(string)
		if first == "" && s != idLabel {
			first = domain.Label(s)
		}
		if label, err := domain.ParseLabel(s); err == nil {
			return label
		}
	}
	return first
}

func (s *Store) GetNode(ctx context.Context, id string) (*graphstore.Node, error) {
	out, err := s.read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return s.getNode(ctx, tx, id)
	})
	if err != nil {
		return nil, err
	}
	return out.(*graphstore.Node), nil
}

func (s *Store) NodeExists(ctx context.Context, id string) (bool, error) {
	out, err := s.read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return countOf(ctx, tx, s.q(nodeExistsCypher), map[string]any{"id": id})
	})
	if err != nil {
		return false, fmt.Errorf("failed to check node %s: %w", id, err)
	}
	return out.(int) > 0, nil
}

func (s *Store) UpsertNode(ctx context.Context, n graphstore.Node) (bool, error) {
	if n.ID == "" {
		return false, fmt.Errorf("node id is required")
	}
	create, err := createNodeCypher(n.Label)
	if err != nil {
		return false, err
	}
	props, err := toStoreProps(n.Properties)
	if err != nil {
		return false, fmt.Errorf("node %s: %w", n.ID, err)
	}

	out, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		params := map[string]any{"id": n.ID, "props": props}
		exists, err := countOf(ctx, tx, s.q(nodeExistsCypher), params)
		if err != nil {
			return false, err
		}
		cypher := s.q(setNodeCypher)
		if exists == 0 {
			cypher = create
		}
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return false, err
		}
		if _, err := res.Consume(ctx); err != nil {
			return false, err
		}
		return exists == 0, nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to upsert node %s: %w", n.ID, err)
	}
	return out.(bool), nil
}

func (s *Store) DeleteNode(ctx context.Context, id string) error {
	out, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := collect(ctx, tx, s.q(deleteNodeCypher), map[string]any{"id": id})
		if err != nil || len(records) == 0 {
			return int64(0), err
		}
		v, _ := records[0].Get("deleted")
		return v, nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete node %s: %w", id, err)
	}
	if n, _ := out.(int64); n == 0 {
		return fmt.Errorf("node %s: %w", id, graphstore.ErrNotFound)
	}
	return nil
}

func (s *Store) getEdge(ctx context.Context, tx neo4j.ManagedTransaction, source string, rel domain.RelationshipType, target string) (*graphstore.Edge, error) {
	cypher, err := getEdgeCypher(rel)
	if err != nil {
		return nil, err
	}
	records, err := collect(ctx, tx, s.q(cypher), map[string]any{"source": source, "target": target})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("edge %s-%s-%s: %w", source, rel, target, graphstore.ErrNotFound)
	}
	propsRaw, _ := records[0].Get("props")
	props, _ := propsRaw.(map[string]any)
	return &graphstore.Edge{SourceID: source, TargetID: target, Type: rel, Properties: fromStoreProps(props)}, nil
}

func (s *Store) GetEdge(ctx context.Context, source string, rel domain.RelationshipType, target string) (*graphstore.Edge, error) {
	out, err := s.read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return s.getEdge(ctx, tx, source, rel, target)
	})
	if err != nil {
		return nil, err
	}
	return out.(*graphstore.Edge), nil
}

func (s *Store) putEdge(ctx context.Context, tx neo4j.ManagedTransaction, e graphstore.Edge) (bool, error) {
	cypher, err := upsertEdgeCypher(e.Type)
	if err != nil {
		return false, err
	}
	props, err := toStoreProps(e.Properties)
	if err != nil {
		return false, err
	}
	records, err := collect(ctx, tx, s.q(cypher), map[string]any{"source": e.SourceID, "target": e.TargetID, "props": props})
	if err != nil {
		return false, err
	}
	if len(records) == 0 {
		missing := e.SourceID
		if n, err := countOf(ctx, tx, s.q(nodeExistsCypher), map[string]any{"id": e.SourceID}); err == nil && n > 0 {
			missing = e.TargetID
		}
		return false, fmt.Errorf("%w: %s", graphstore.ErrMissingEndpoint, missing)
	}
	existed, _ := records[0].Get("existed")
	return existed != true, nil
}

func (s *Store) UpsertEdge(ctx context.Context, e graphstore.Edge) (bool, error) {
	if _, err := checkRel(e.Type); err != nil {
		return false, err
	}
	out, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return s.putEdge(ctx, tx, e)
	})
	if err != nil {
		if errors.Is(err, graphstore.ErrMissingEndpoint) {
			return false, err
		}
		return false, fmt.Errorf("failed to upsert edge %s-%s-%s: %w", e.SourceID, e.Type, e.TargetID, err)
	}
	return out.(bool), nil
}

type touching struct {
	rel      domain.RelationshipType
	other    string
	outgoing bool
	props    map[string]any
}

func (s *Store) edgesOf(ctx context.Context, tx neo4j.ManagedTransaction, id string) ([]touching, error) {
	var out []touching
	for _, q := range []struct {
		cypher   string
		outgoing bool
	}{{edgesOutCypher, true}, {edgesInCypher, false}} {
		records, err := collect(ctx, tx, s.q(q.cypher), map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			typ, _ := rec.Get("type")
			other, _ := rec.Get("other")
			propsRaw, _ := rec.Get("props")
			props, _ := propsRaw.(map[string]any)
			t, _ := typ.(string)
			o, _ := other.(string)
			out = append(out, touching{rel: domain.RelationshipType(t), other: o, outgoing: q.outgoing, props: fromStoreProps(props)})
		}
	}
	return out, nil
}

func (s *Store) MergeNodeInto(ctx context.Context, from, to string) error {
	if from == to {
		return nil
	}
	_, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		old, err := s.getNode(ctx, tx, from)
		if err != nil {
			return nil, err
		}
		target, err := s.getNode(ctx, tx, to)
		if errors.Is(err, graphstore.ErrNotFound) {
			props, err := toStoreProps(graphstore.AddAlias(old.Properties, from))
			if err != nil {
				return nil, err
			}
			res, err := tx.Run(ctx, s.q(renameNodeCypher), map[string]any{"from": from, "to": to, "props": props})
			if err != nil {
				return nil, err
			}
			_, err = res.Consume(ctx)
			return nil, err
		}
		if err != nil {
			return nil, err
		}

		merged, err := toStoreProps(graphstore.AddAlias(merge.Merge(target.Properties, old.Properties).Merged, from))
		if err != nil {
			return nil, err
		}
		res, err := tx.Run(ctx, s.q(setNodeCypher), map[string]any{"id": to, "props": merged})
		if err != nil {
			return nil, err
		}
		if _, err := res.Consume(ctx); err != nil {
			return nil, err
		}

		edges, err := s.edgesOf(ctx, tx, from)
		if err != nil {
			return nil, err
		}
		for _, t := range edges {
			if _, err := checkRel(t.rel); err != nil {
				s.log.Warn("dropping relationship outside the vocabulary during merge", "from", from, "type", string(t.rel))
				continue
			}
			e := graphstore.Edge{Type: t.rel, SourceID: t.other, TargetID: to, Properties: t.props}
			if t.outgoing {
				e.SourceID, e.TargetID = to, t.other
				if t.other == from {
					e.TargetID = to
				}
			}
			if existing, err := s.getEdge(ctx, tx, e.SourceID, e.Type, e.TargetID); err == nil {
				e.Properties = merge.Merge(existing.Properties, e.Properties).Merged
			} else if !errors.Is(err, graphstore.ErrNotFound) {
				return nil, err
			}
			if _, err := s.putEdge(ctx, tx, e); err != nil {
				return nil, err
			}
		}

		res, err = tx.Run(ctx, s.q(deleteNodeCypher), map[string]any{"id": from})
		if err != nil {
			return nil, err
		}
		_, err = res.Consume(ctx)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("failed to merge node %s into %s: %w", from, to, err)
	}
	return nil
}

func (s *Store) Scan(ctx context.Context, limit int) (*graphstore.Graph, error) {
	out, err := s.read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := collect(ctx, tx, scanNodesLimitCypher(limit), map[string]any{"limit": limit})
		if err != nil {
			return nil, err
		}
		g := &graphstore.Graph{}
		ids := make([]any, 0, len(records))
		for _, rec := range records {
			idRaw, _ := rec.Get("id")
			id := fmt.Sprint(idRaw)
			g.Nodes = append(g.Nodes, *nodeFromRecord(id, rec))
			ids = append(ids, idRaw)
		}

		edgeCypher, params := scanEdgesCypher, map[string]any{}
		if limit > 0 {
			edgeCypher, params = scanEdgesInCypher, map[string]any{"ids": ids}
		}
		records, err = collect(ctx, tx, edgeCypher, params)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			src, _ := rec.Get("source")
			typ, _ := rec.Get("type")
			tgt, _ := rec.Get("target")
			propsRaw, _ := rec.Get("props")
			props, _ := propsRaw.(map[string]any)
			g.Edges = append(g.Edges, graphstore.Edge{
				SourceID:   fmt.Sprint(src),
				TargetID:   fmt.Sprint(tgt),
				Type:       domain.RelationshipType(fmt.Sprint(typ)),
				Properties: fromStoreProps(props),
			})
		}
		return g, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan graph: %w", err)
	}
	g := out.(*graphstore.Graph)
	graphstore.SortNodes(g.Nodes)
	graphstore.SortEdges(g.Edges)
	return g, nil
}

func (s *Store) Counts(ctx context.Context) (*graphstore.Counts, error) {
	out, err := s.read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		c := &graphstore.Counts{ByLabel: map[string]int{}, ByType: map[string]int{}}
		var err error
		if c.Nodes, err = countOf(ctx, tx, countNodesCypher, nil); err != nil {
			return nil, err
		}
		if c.Edges, err = countOf(ctx, tx, countEdgesCypher, nil); err != nil {
			return nil, err
		}
		for cypher, into := range map[string]map[string]int{countByLabelCypher: c.ByLabel, countByTypeCypher: c.ByType} {
			records, err := collect(ctx, tx, cypher, nil)
			if err != nil {
				return nil, err
			}
			for _, rec := range records {
				key, _ := rec.Get("key")
				n, _ := rec.Get("c")
				count, _ := n.(int64)
				into[fmt.Sprint(key)] = int(count)
			}
		}
		return c, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to count graph: %w", err)
	}
	return out.(*graphstore.Counts), nil
}

func (s *Store) OrphanNodes(ctx context.Context) ([]graphstore.Node, error) {
	out, err := s.read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := collect(ctx, tx, orphanNodesCypher, nil)
		if err != nil {
			return nil, err
		}
		nodes := make([]graphstore.Node, 0, len(records))
		for _, rec := range records {
			id, _ := rec.Get("id")
			nodes = append(nodes, *nodeFromRecord(fmt.Sprint(id), rec))
		}
		return nodes, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list orphan nodes: %w", err)
	}
	return out.([]graphstore.Node), nil
}

// toStoreProps converts a property map to values Neo4j can hold: scalars and
// homogeneous scalar lists. Maps and mixed lists are stored as JSON strings.
func toStoreProps(props map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(props))
	for k, v := range props {
		if k == "id" || v == nil {
			continue
		}
		switch t := v.(type) {
		case string, bool, float64, float32, int, int64:
			out[k] = t
		case []string:
			out[k] = t
		case []any:
			if homogeneousScalars(t) {
				out[k] = t
				continue
			}
			data, err := json.Marshal(t)
			if err != nil {
				return nil, fmt.Errorf("failed to encode property %s: %w", k, err)
			}
			out[k] = string(data)
		default:
			data, err := json.Marshal(t)
			if err != nil {
				return nil, fmt.Errorf("failed to encode property %s: %w", k, err)
			}
			out[k] = string(data)
		}
	}
	return out, nil
}

func homogeneousScalars(list []any) bool {
	kind := ""
	for _, v := range list {
		var k string
		switch v.(type) {
		case string:
			k = "string"
		case bool:
			k = "bool"
		case float64, float32, int, int64:
			k = "number"
		default:
			return false
		}
		if kind != "" && k != kind {
			return false
		}
		kind = k
	}
	return true
}

func fromStoreProps(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		if k == "id" {
			continue
		}
		out[k] = v
	}
	return out
}
