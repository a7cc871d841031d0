// Package graphstore defines the persistent graph the sync engine writes to.
//
// Nodes are keyed by id (unique across labels in a synchronized graph) and
// carry one label. Edges are keyed by (source id, relationship type, target
// id). Backends store exactly the property sets they are given; merge policy
// lives with the caller.
package graphstore

import (
	"context"
	"errors"
	"sort"

	"github.com/lherron/graphsync/internal/domain"
)

var (
	// ErrUnavailable wraps failures to reach the backing store.
	ErrUnavailable = errors.New("graph store unavailable")
	// ErrNotFound is returned by getters when the record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrMissingEndpoint is returned by UpsertEdge when either endpoint node
	// does not exist.
	ErrMissingEndpoint = errors.New("edge endpoint not found")
)

// Node is a stored node.
type Node struct {
	ID         string         `json:"id"`
	Label      domain.Label   `json:"group"`
	Properties map[string]any `json:"properties"`
}

// Edge is a stored relationship.
type Edge struct {
	SourceID   string                  `json:"source"`
	TargetID   string                  `json:"target"`
	Type       domain.RelationshipType `json:"type"`
	Properties map[string]any          `json:"properties"`
}

// Graph is the result of a scan.
type Graph struct {
	Nodes []Node
	Edges []Edge
}

// Counts summarizes store contents.
type Counts struct {
	Nodes   int            `json:"nodes"`
	Edges   int            `json:"edges"`
	ByLabel map[string]int `json:"by_label"`
	ByType  map[string]int `json:"by_type"`
}

// Store is a graph backend.
type Store interface {
	// EnsureConstraints makes id unique per label. Constraints that already
	// exist are not an error. It returns how many were newly created.
	EnsureConstraints(ctx context.Context, labels []domain.Label) (int, error)

	GetNode(ctx context.Context, id string) (*Node, error)
	// UpsertNode creates the node or replaces the stored property set of the
	// node with the same id. The label of an existing node is kept.
	UpsertNode(ctx context.Context, n Node) (created bool, err error)
	NodeExists(ctx context.Context, id string) (bool, error)
	DeleteNode(ctx context.Context, id string) error

	GetEdge(ctx context.Context, sourceID string, rel domain.RelationshipType, targetID string) (*Edge, error)
	// UpsertEdge creates or replaces the edge's property set. Both endpoints
	// must exist, regardless of label.
	UpsertEdge(ctx context.Context, e Edge) (created bool, err error)

	// MergeNodeInto folds node from into node to: when to is absent from is
	// renamed, otherwise properties are merged, edges re-pointed and from is
	// deleted. from's id is appended to to's aliases list.
	MergeNodeInto(ctx context.Context, from, to string) error

	// Scan returns up to limit nodes ordered by id (all when limit <= 0) and
	// every edge whose endpoints are both in the returned set.
	Scan(ctx context.Context, limit int) (*Graph, error)
	Counts(ctx context.Context) (*Counts, error)
	// OrphanNodes lists nodes without any relationship.
	OrphanNodes(ctx context.Context) ([]Node, error)

	Close(ctx context.Context) error
}

// AliasesKey is the property holding ids merged into a node.
const AliasesKey = "aliases"

// SortNodes orders nodes by id.
func SortNodes(nodes []Node) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
}

// SortEdges orders edges by (source, type, target).
func SortEdges(edges []Edge) {
	sort.Slice(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		if a.SourceID != b.SourceID {
			return a.SourceID < b.SourceID
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		return a.TargetID < b.TargetID
	})
}

// AddAlias returns props with alias appended to its aliases list, unless
// already present.
func AddAlias(props map[string]any, alias string) map[string]any {
	out := make(map[string]any, len(props)+1)
	for k, v := range props {
		out[k] = v
	}
	var aliases []any
	switch t := props[AliasesKey].(type) {
	case []any:
		aliases = append(aliases, t...)
	case []string:
		for _, s := range t {
			aliases = append(aliases, s)
		}
	case string:
		if t != "" {
			aliases = append(aliases, t)
		}
	}
	for _, a := range aliases {
		if a == alias {
			out[AliasesKey] = aliases
			return out
		}
	}
	out[AliasesKey] = append(aliases, alias)
	return out
}
