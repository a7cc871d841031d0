// Package sqlitestore is a graphstore.Store backed by SQLite. It is used for
// local runs without a Neo4j server and as the store under test.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lherron/graphsync/internal/db"
	"github.com/lherron/graphsync/internal/domain"
	"github.com/lherron/graphsync/internal/graphstore"
	"github.com/lherron/graphsync/internal/logger"
	"github.com/lherron/graphsync/internal/merge"
)

const nowExpr = `strftime('%Y-%m-%dT%H:%M:%SZ','now')`

// Store implements graphstore.Store.
type Store struct {
	db  *db.DB
	log *logger.Logger
}

var _ graphstore.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path and migrates it.
func Open(ctx context.Context, path string, log *logger.Logger) (*Store, error) {
	database, err := db.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", graphstore.ErrUnavailable, err)
	}
	applied, err := database.Migrate(ctx)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("%w: %v", graphstore.ErrUnavailable, err)
	}
	s := New(database, log)
	if len(applied) > 0 {
		s.log.Info("applied schema migrations", "path", path, "migrations", applied)
	}
	return s, nil
}

// New wraps an already migrated database.
func New(database *db.DB, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	return &Store{db: database, log: log.With("store", "sqlite")}
}

// DB returns the underlying database connection.
func (s *Store) DB() *db.DB {
	return s.db
}

func (s *Store) Close(ctx context.Context) error {
	return s.db.Close()
}

// withTx executes fn within a transaction. If fn returns nil, the transaction
// is committed; otherwise it is rolled back.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func encodeProps(props map[string]any) (string, error) {
	clean := make(map[string]any, len(props))
	for k, v := range props {
		if k == "id" || v == nil {
			continue
		}
		clean[k] = v
	}
	data, err := json.Marshal(clean)
	if err != nil {
		return "", fmt.Errorf("failed to encode properties: %w", err)
	}
	return string(data), nil
}

func decodeProps(raw string) (map[string]any, error) {
	props := map[string]any{}
	if raw == "" {
		return props, nil
	}
	if err := json.Unmarshal([]byte(raw), &props); err != nil {
		return nil, fmt.Errorf("failed to decode properties: %w", err)
	}
	return props, nil
}

func (s *Store) EnsureConstraints(ctx context.Context, labels []domain.Label) (int, error) {
	created := 0
	for _, l := range labels {
		label, err := domain.ParseLabel(string(l))
		if err != nil {
			return created, err
		}
		res, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO label_constraints (label) VALUES (?)`, string(label))
		if err != nil {
			return created, fmt.Errorf("failed to create constraint for %s: %w", label, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			created++
		}
	}
	return created, nil
}

func getNode(ctx context.Context, q querier, id string) (*graphstore.Node, error) {
	var label, raw string
	err := q.QueryRowContext(ctx, `SELECT label, properties FROM nodes WHERE id = ?`, id).Scan(&label, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("node %s: %w", id, graphstore.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get node %s: %w", id, err)
	}
	props, err := decodeProps(raw)
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", id, err)
	}
	return &graphstore.Node{ID: id, Label: domain.Label(label), Properties: props}, nil
}

func nodeExists(ctx context.Context, q querier, id string) (bool, error) {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM nodes WHERE id = ?`, id).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check node %s: %w", id, err)
	}
	return n > 0, nil
}

func (s *Store) GetNode(ctx context.Context, id string) (*graphstore.Node, error) {
	return getNode(ctx, s.db, id)
}

func (s *Store) NodeExists(ctx context.Context, id string) (bool, error) {
	return nodeExists(ctx, s.db, id)
}

func (s *Store) UpsertNode(ctx context.Context, n graphstore.Node) (bool, error) {
	label, err := domain.ParseLabel(string(n.Label))
	if err != nil {
		return false, err
	}
	if n.ID == "" {
		return false, fmt.Errorf("node id is required")
	}
	raw, err := encodeProps(n.Properties)
	if err != nil {
		return false, err
	}

	created := false
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		exists, err := nodeExists(ctx, tx, n.ID)
		if err != nil {
			return err
		}
		created = !exists
		_, err = tx.ExecContext(ctx, `
			INSERT INTO nodes (id, label, properties) VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET properties = excluded.properties, updated_at = `+nowExpr,
			n.ID, string(label), raw)
		if err != nil {
			return fmt.Errorf("failed to upsert node %s: %w", n.ID, err)
		}
		return nil
	})
	return created, err
}

func (s *Store) DeleteNode(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM nodes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete node %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("node %s: %w", id, graphstore.ErrNotFound)
	}
	return nil
}

func getEdge(ctx context.Context, q querier, source string, rel domain.RelationshipType, target string) (*graphstore.Edge, error) {
	var raw string
	err := q.QueryRowContext(ctx,
		`SELECT properties FROM edges WHERE source_id = ? AND rel_type = ? AND target_id = ?`,
		source, string(rel), target).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("edge %s-%s-%s: %w", source, rel, target, graphstore.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get edge %s-%s-%s: %w", source, rel, target, err)
	}
	props, err := decodeProps(raw)
	if err != nil {
		return nil, err
	}
	return &graphstore.Edge{SourceID: source, TargetID: target, Type: rel, Properties: props}, nil
}

func (s *Store) GetEdge(ctx context.Context, source string, rel domain.RelationshipType, target string) (*graphstore.Edge, error) {
	return getEdge(ctx, s.db, source, rel, target)
}

func putEdge(ctx context.Context, q querier, e graphstore.Edge) (bool, error) {
	for _, id := range []string{e.SourceID, e.TargetID} {
		ok, err := nodeExists(ctx, q, id)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, fmt.Errorf("%w: %s", graphstore.ErrMissingEndpoint, id)
		}
	}
	raw, err := encodeProps(e.Properties)
	if err != nil {
		return false, err
	}

	var n int
	err = q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM edges WHERE source_id = ? AND rel_type = ? AND target_id = ?`,
		e.SourceID, string(e.Type), e.TargetID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check edge: %w", err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO edges (source_id, rel_type, target_id, properties) VALUES (?, ?, ?, ?)
		ON CONFLICT(source_id, rel_type, target_id) DO UPDATE SET properties = excluded.properties, updated_at = `+nowExpr,
		e.SourceID, string(e.Type), e.TargetID, raw)
	if err != nil {
		return false, fmt.Errorf("failed to upsert edge %s-%s-%s: %w", e.SourceID, e.Type, e.TargetID, err)
	}
	return n == 0, nil
}

func (s *Store) UpsertEdge(ctx context.Context, e graphstore.Edge) (bool, error) {
	if err := domain.ValidateRelationship(e.Type); err != nil {
		return false, err
	}
	created := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		created, err = putEdge(ctx, tx, e)
		return err
	})
	return created, err
}

func (s *Store) MergeNodeInto(ctx context.Context, from, to string) error {
	if from == to {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		old, err := getNode(ctx, tx, from)
		if err != nil {
			return err
		}
		target, err := getNode(ctx, tx, to)
		if errors.Is(err, graphstore.ErrNotFound) {
			raw, err := encodeProps(graphstore.AddAlias(old.Properties, from))
			if err != nil {
				return err
			}
			// edges follow through ON UPDATE CASCADE
			_, err = tx.ExecContext(ctx, `UPDATE nodes SET id = ?, properties = ?, updated_at = `+nowExpr+` WHERE id = ?`, to, raw, from)
			if err != nil {
				return fmt.Errorf("failed to rename node %s to %s: %w", from, to, err)
			}
			return nil
		}
		if err != nil {
			return err
		}

		merged := graphstore.AddAlias(merge.Merge(target.Properties, old.Properties).Merged, from)
		raw, err := encodeProps(merged)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE nodes SET properties = ?, updated_at = `+nowExpr+` WHERE id = ?`, raw, to); err != nil {
			return fmt.Errorf("failed to update node %s: %w", to, err)
		}

		moved, err := edgesTouching(ctx, tx, from)
		if err != nil {
			return err
		}
		for _, e := range moved {
			if e.SourceID == from {
				e.SourceID = to
			}
			if e.TargetID == from {
				e.TargetID = to
			}
			props := e.Properties
			if existing, err := getEdge(ctx, tx, e.SourceID, e.Type, e.TargetID); err == nil {
				props = merge.Merge(existing.Properties, e.Properties).Merged
			} else if !errors.Is(err, graphstore.ErrNotFound) {
				return err
			}
			e.Properties = props
			if _, err := putEdge(ctx, tx, e); err != nil {
				return err
			}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE id = ?`, from); err != nil {
			return fmt.Errorf("failed to delete node %s: %w", from, err)
		}
		return nil
	})
}

func edgesTouching(ctx context.Context, q querier, id string) ([]graphstore.Edge, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT source_id, rel_type, target_id, properties FROM edges
		WHERE source_id = ? OR target_id = ?
		ORDER BY source_id, rel_type, target_id`, id, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list edges of %s: %w", id, err)
	}
	return scanEdges(rows)
}

func scanEdges(rows *sql.Rows) ([]graphstore.Edge, error) {
	defer rows.Close()
	var out []graphstore.Edge
	for rows.Next() {
		var e graphstore.Edge
		var rel, raw string
		if err := rows.Scan(&e.SourceID, &rel, &e.TargetID, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		e.Type = domain.RelationshipType(rel)
		props, err := decodeProps(raw)
		if err != nil {
			return nil, err
		}
		e.Properties = props
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating edges: %w", err)
	}
	return out, nil
}

func scanNodes(rows *sql.Rows) ([]graphstore.Node, error) {
	defer rows.Close()
	var out []graphstore.Node
	for rows.Next() {
		var id, label, raw string
		if err := rows.Scan(&id, &label, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		props, err := decodeProps(raw)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", id, err)
		}
		out = append(out, graphstore.Node{ID: id, Label: domain.Label(label), Properties: props})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating nodes: %w", err)
	}
	return out, nil
}

func (s *Store) Scan(ctx context.Context, limit int) (*graphstore.Graph, error) {
	nodeQuery := `SELECT id, label, properties FROM nodes ORDER BY id`
	edgeQuery := `SELECT source_id, rel_type, target_id, properties FROM edges ORDER BY source_id, rel_type, target_id`
	var args []any
	if limit > 0 {
		nodeQuery += ` LIMIT ?`
		scoped := `SELECT id FROM nodes ORDER BY id LIMIT ?`
		edgeQuery = `SELECT source_id, rel_type, target_id, properties FROM edges
			WHERE source_id IN (` + scoped + `) AND target_id IN (` + scoped + `)
			ORDER BY source_id, rel_type, target_id`
		args = []any{limit}
	}

	rows, err := s.db.QueryContext(ctx, nodeQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to scan nodes: %w", err)
	}
	nodes, err := scanNodes(rows)
	if err != nil {
		return nil, err
	}

	edgeArgs := args
	if limit > 0 {
		edgeArgs = []any{limit, limit}
	}
	rows, err = s.db.QueryContext(ctx, edgeQuery, edgeArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to scan edges: %w", err)
	}
	edges, err := scanEdges(rows)
	if err != nil {
		return nil, err
	}
	return &graphstore.Graph{Nodes: nodes, Edges: edges}, nil
}

func (s *Store) Counts(ctx context.Context) (*graphstore.Counts, error) {
	c := &graphstore.Counts{ByLabel: map[string]int{}, ByType: map[string]int{}}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM nodes`).Scan(&c.Nodes); err != nil {
		return nil, fmt.Errorf("failed to count nodes: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM edges`).Scan(&c.Edges); err != nil {
		return nil, fmt.Errorf("failed to count edges: %w", err)
	}
	if err := groupCount(ctx, s.db, "labels", `SELECT label, COUNT(*) FROM nodes GROUP BY label`, c.ByLabel); err != nil {
		return nil, err
	}
	if err := groupCount(ctx, s.db, "relationship types", `SELECT rel_type, COUNT(*) FROM edges GROUP BY rel_type`, c.ByType); err != nil {
		return nil, err
	}
	return c, nil
}

func groupCount(ctx context.Context, q querier, what, query string, into map[string]int) error {
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to count %s: %w", what, err)
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("failed to scan count: %w", err)
		}
		into[key] = n
	}
	return rows.Err()
}

func (s *Store) OrphanNodes(ctx context.Context) ([]graphstore.Node, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT n.id, n.label, n.properties FROM nodes n
		WHERE NOT EXISTS (SELECT 1 FROM edges e WHERE e.source_id = n.id OR e.target_id = n.id)
		ORDER BY n.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list orphan nodes: %w", err)
	}
	return scanNodes(rows)
}
