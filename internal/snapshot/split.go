package snapshot

import (
	"strings"
	"time"
	"unicode"

	"github.com/lherron/graphsync/internal/domain"
	"github.com/lherron/graphsync/internal/fragment"
)

// BaseFragmentName holds links and nodes not reachable from any post.
const BaseFragmentName = "analysis_base_structure.json"

// Split turns a snapshot into fragments: one per post with the post, its
// links and their endpoints, then a base fragment with the remaining links,
// their endpoints and any node no post fragment picked up. A link touching
// two posts lands in both post fragments.
func Split(s *Snapshot, at time.Time) []*fragment.Fragment {
	byID := make(map[string]int, len(s.Nodes))
	for i, n := range s.Nodes {
		byID[n.ID] = i
	}
	generated := at.UTC().Format(time.RFC3339)

	assignedNodes := make(map[string]bool)
	assignedLinks := make([]bool, len(s.Links))
	var out []*fragment.Fragment

	for _, post := range s.Nodes {
		if nodeEntityType(post) != domain.EntityPost {
			continue
		}
		ids := map[string]bool{post.ID: true}
		var edges []fragment.Edge
		for i, l := range s.Links {
			if l.Source != post.ID && l.Target != post.ID {
				continue
			}
			assignedLinks[i] = true
			ids[l.Source] = true
			ids[l.Target] = true
			edges = append(edges, linkEdge(l))
		}
		var nodes []fragment.Node
		for _, n := range s.Nodes {
			if ids[n.ID] {
				assignedNodes[n.ID] = true
				nodes = append(nodes, nodeRecord(n))
			}
		}
		out = append(out, splitFragment("analysis_"+SafeName(post.ID)+".json", "split data for "+post.ID, generated, nodes, edges))
	}

	ids := make(map[string]bool)
	var edges []fragment.Edge
	for i, l := range s.Links {
		if assignedLinks[i] {
			continue
		}
		ids[l.Source] = true
		ids[l.Target] = true
		edges = append(edges, linkEdge(l))
	}
	var nodes []fragment.Node
	for _, n := range s.Nodes {
		if ids[n.ID] || !assignedNodes[n.ID] {
			nodes = append(nodes, nodeRecord(n))
		}
	}
	if len(nodes) > 0 || len(edges) > 0 {
		out = append(out, splitFragment(BaseFragmentName, "split data for base structure", generated, nodes, edges))
	}
	return out
}

// SafeName replaces every rune other than letters, digits, '-' and '_'
// with '_'.
func SafeName(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, s)
}

func splitFragment(path, description, generated string, nodes []fragment.Node, edges []fragment.Edge) *fragment.Fragment {
	return &fragment.Fragment{
		Path: path,
		Meta: map[string]any{
			"source":       "graphsync split",
			"generated_at": generated,
			"description":  description,
		},
		Nodes: nodes,
		Edges: edges,
	}
}

func nodeEntityType(n Node) domain.EntityType {
	if s, ok := n.Properties[fragment.KeyEntityType].(string); ok {
		if et, err := domain.ParseEntityType(s); err == nil {
			return et
		}
	}
	return domain.Label(n.Group).EntityType()
}

func nodeRecord(n Node) fragment.Node {
	props := copyProps(n.Properties)
	delete(props, fragment.KeyEntityType)
	if _, ok := props[fragment.KeyName]; !ok && n.Name != "" {
		props[fragment.KeyName] = n.Name
	}
	return fragment.Node{ID: n.ID, EntityType: nodeEntityType(n), Properties: props}
}

func linkEdge(l Link) fragment.Edge {
	return fragment.Edge{
		ID:         fragment.DeriveEdgeID(l.Source, l.Type, l.Target),
		SourceID:   l.Source,
		TargetID:   l.Target,
		Type:       l.Type,
		Properties: copyProps(l.Properties),
	}
}
