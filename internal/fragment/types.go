// Package fragment reads and writes fragment files: JSON batches of node and
// edge records produced by one collection or analysis pass.
//
// A fragment file has the shape
//
//	{"meta": {...}, "nodes": [...], "edges": [...]}
//
// Bare arrays of nodes or edges are accepted as legacy input.
package fragment

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/lherron/graphsync/internal/domain"
)

// ErrMalformed marks a fragment file that could not be parsed.
var ErrMalformed = errors.New("malformed fragment")

// Reserved record keys that are lifted out of the property map.
const (
	KeyID               = "id"
	KeyEntityType       = "entity_type"
	KeyName             = "name"
	KeySourceID         = "source_id"
	KeyTargetID         = "target_id"
	KeyRelationshipType = "relationship_type"
	KeySourceName       = "source_name"
	KeyTargetName       = "target_name"
	KeyConfidence       = "confidence"
	KeyURL              = "url"
	KeyPlatform         = "platform"
)

// Node is a node record. EntityType is empty for untyped patch records that
// only add properties to a node defined elsewhere.
type Node struct {
	ID         string
	EntityType domain.EntityType
	Properties map[string]any
}

// Name returns the node's name property.
func (n Node) Name() string {
	return n.String(KeyName)
}

// String returns a string property, or "" when absent or not a string.
func (n Node) String(key string) string {
	return stringProp(n.Properties, key)
}

// Clone returns a deep copy of the node.
func (n Node) Clone() Node {
	return Node{ID: n.ID, EntityType: n.EntityType, Properties: CloneProperties(n.Properties)}
}

// Edge is an edge record. Type holds the relationship type as written in the
// file; validation happens during canonicalization.
type Edge struct {
	ID         string
	SourceID   string
	TargetID   string
	Type       string
	Properties map[string]any
}

// Key returns the edge identity triple as a single string.
func (e Edge) Key() string {
	return DeriveEdgeID(e.SourceID, e.Type, e.TargetID)
}

// Clone returns a deep copy of the edge.
func (e Edge) Clone() Edge {
	c := e
	c.Properties = CloneProperties(e.Properties)
	return c
}

// DeriveEdgeID builds the deterministic id used for edges without one.
func DeriveEdgeID(source, relType, target string) string {
	return source + "-" + relType + "-" + target
}

// Fragment is one parsed fragment file.
type Fragment struct {
	// Path is relative to the fragment directory, slash separated.
	Path   string
	Meta   map[string]any
	Nodes  []Node
	Edges  []Edge
	Digest string
	// Legacy is set when the file was a bare node or edge array.
	Legacy bool
	// Dropped counts node records skipped for lacking an id.
	Dropped int
}

// Clone returns a deep copy of the fragment.
func (f *Fragment) Clone() *Fragment {
	c := &Fragment{
		Path:    f.Path,
		Meta:    CloneProperties(f.Meta),
		Digest:  f.Digest,
		Legacy:  f.Legacy,
		Dropped: f.Dropped,
	}
	c.Nodes = make([]Node, len(f.Nodes))
	for i, n := range f.Nodes {
		c.Nodes[i] = n.Clone()
	}
	c.Edges = make([]Edge, len(f.Edges))
	for i, e := range f.Edges {
		c.Edges[i] = e.Clone()
	}
	return c
}

// SortByPath orders fragments by path so that runs are deterministic.
func SortByPath(frags []*Fragment) {
	sort.Slice(frags, func(i, j int) bool { return frags[i].Path < frags[j].Path })
}

// CloneProperties deep-copies a property map, including nested lists and maps.
func CloneProperties(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneProperties(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	default:
		return v
	}
}

func stringProp(props map[string]any, key string) string {
	if props == nil {
		return ""
	}
	switch v := props[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
