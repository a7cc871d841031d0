package fragment

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/lherron/graphsync/internal/domain"
	"github.com/lherron/graphsync/internal/jsonx"
	"lukechampine.com/blake3"
)

// Digest returns the BLAKE3-256 hex digest of raw fragment bytes.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

type fileShape struct {
	Meta  map[string]any   `json:"meta"`
	Nodes []map[string]any `json:"nodes"`
	Edges []map[string]any `json:"edges"`
}

// Parse decodes fragment bytes. rel is recorded as the fragment path.
// Node records without an id and edge records without both endpoints are
// counted in Dropped and left out.
func Parse(rel string, data []byte) (*Fragment, error) {
	trimmed := bytes.TrimSpace(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")))
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: %s: empty file", ErrMalformed, rel)
	}

	frag := &Fragment{Path: rel, Digest: Digest(data)}

	var rawNodes, rawEdges []map[string]any
	switch trimmed[0] {
	case '[':
		var items []map[string]any
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, rel, err)
		}
		frag.Legacy = true
		for _, item := range items {
			if item == nil {
				continue
			}
			if _, ok := item[KeySourceID]; ok {
				rawEdges = append(rawEdges, item)
			} else {
				rawNodes = append(rawNodes, item)
			}
		}
	case '{':
		var shape fileShape
		if err := json.Unmarshal(trimmed, &shape); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, rel, err)
		}
		frag.Meta = shape.Meta
		rawNodes = shape.Nodes
		rawEdges = shape.Edges
	default:
		return nil, fmt.Errorf("%w: %s: expected a JSON object or array", ErrMalformed, rel)
	}

	for _, raw := range rawNodes {
		node, ok := decodeNode(raw)
		if !ok {
			frag.Dropped++
			continue
		}
		frag.Nodes = append(frag.Nodes, node)
	}
	for _, raw := range rawEdges {
		edge, ok := decodeEdge(raw)
		if !ok {
			frag.Dropped++
			continue
		}
		frag.Edges = append(frag.Edges, edge)
	}

	return frag, nil
}

func decodeNode(raw map[string]any) (Node, bool) {
	props := CloneProperties(raw)
	if props == nil {
		return Node{}, false
	}
	id := identifier(props[KeyID])
	if id == "" {
		return Node{}, false
	}
	et := domain.EntityType(strings.ToLower(strings.TrimSpace(stringProp(props, KeyEntityType))))
	delete(props, KeyID)
	delete(props, KeyEntityType)
	return Node{ID: id, EntityType: et, Properties: props}, true
}

func decodeEdge(raw map[string]any) (Edge, bool) {
	props := CloneProperties(raw)
	if props == nil {
		return Edge{}, false
	}
	e := Edge{
		ID:       identifier(props[KeyID]),
		SourceID: identifier(props[KeySourceID]),
		TargetID: identifier(props[KeyTargetID]),
		Type:     strings.TrimSpace(stringProp(props, KeyRelationshipType)),
	}
	if e.SourceID == "" || e.TargetID == "" {
		return Edge{}, false
	}
	delete(props, KeyID)
	delete(props, KeySourceID)
	delete(props, KeyTargetID)
	delete(props, KeyRelationshipType)
	e.Properties = props
	return e, true
}

// identifier accepts string ids and integral numeric ids.
func identifier(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

// Encode renders a fragment in the standard object layout, with record keys
// ordered id first and the rest sorted.
func Encode(f *Fragment) ([]byte, error) {
	nodes := make([]jsonx.OrderedMap, 0, len(f.Nodes))
	for _, n := range f.Nodes {
		nodes = append(nodes, NodeRecord(n))
	}
	edges := make([]jsonx.OrderedMap, 0, len(f.Edges))
	for _, e := range f.Edges {
		edges = append(edges, EdgeRecord(e))
	}

	meta := f.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	doc := jsonx.OrderedMap{
		{Key: "meta", Value: meta},
		{Key: "nodes", Value: nodes},
		{Key: "edges", Value: edges},
	}
	data, err := jsonx.MarshalIndent(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode fragment %s: %w", f.Path, err)
	}
	return data, nil
}

// NodeRecord returns the ordered JSON form of a node.
func NodeRecord(n Node) jsonx.OrderedMap {
	return jsonx.Record(n.Properties,
		jsonx.KeyValue{Key: KeyID, Value: n.ID},
		jsonx.KeyValue{Key: KeyEntityType, Value: string(n.EntityType)},
		jsonx.KeyValue{Key: KeyName, Value: n.Properties[KeyName]},
	)
}

// EdgeRecord returns the ordered JSON form of an edge.
func EdgeRecord(e Edge) jsonx.OrderedMap {
	return jsonx.Record(e.Properties,
		jsonx.KeyValue{Key: KeyID, Value: e.ID},
		jsonx.KeyValue{Key: KeySourceID, Value: e.SourceID},
		jsonx.KeyValue{Key: KeyTargetID, Value: e.TargetID},
		jsonx.KeyValue{Key: KeyRelationshipType, Value: e.Type},
	)
}
