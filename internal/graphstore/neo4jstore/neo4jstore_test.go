package neo4jstore

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/lherron/graphsync/internal/config"
	"github.com/lherron/graphsync/internal/domain"
	"github.com/lherron/graphsync/internal/graphstore"
)

func TestConstraintCypher(t *testing.T) {
	got, err := constraintCypher(domain.LabelOrganization)
	if err != nil {
		t.Fatalf("constraintCypher failed: %v", err)
	}
	want := "CREATE CONSTRAINT organization_id_unique IF NOT EXISTS FOR (n:Organization) REQUIRE n.id IS UNIQUE"
	if got != want {
		t.Errorf("got %q\nwant %q", got, want)
	}
}

func TestQueryBuildersRejectUnknownNames(t *testing.T) {
	badLabels := []domain.Label{"", "Organization) DETACH DELETE n //", "organization", "Unknown"}
	for _, l := range badLabels {
		if _, err := constraintCypher(l); err == nil {
			t.Errorf("constraintCypher(%q) accepted", l)
		}
		if _, err := createNodeCypher(l); err == nil {
			t.Errorf("createNodeCypher(%q) accepted", l)
		}
	}

	badRels := []domain.RelationshipType{"", "KNOWS]->() DELETE r //", "works_at", "TELEPORTS"}
	for _, rt := range badRels {
		if _, err := upsertEdgeCypher(rt); err == nil {
			t.Errorf("upsertEdgeCypher(%q) accepted", rt)
		}
		if _, err := getEdgeCypher(rt); err == nil {
			t.Errorf("getEdgeCypher(%q) accepted", rt)
		}
	}
}

func TestUpsertEdgeCypher(t *testing.T) {
	got, err := upsertEdgeCypher(domain.RelWorksAt)
	if err != nil {
		t.Fatalf("upsertEdgeCypher failed: %v", err)
	}
	for _, want := range []string{
		"OPTIONAL MATCH (a)-[existing:WORKS_AT]->(b)",
		"MERGE (a)-[r:WORKS_AT]->(b)",
		"SET r = $props",
		"RETURN existed",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("query missing %q:\n%s", want, got)
		}
	}
}

func TestIDLookupsMatchIndexedLabel(t *testing.T) {
	edgeGet, err := getEdgeCypher(domain.RelWorksAt)
	if err != nil {
		t.Fatal(err)
	}
	edgeUpsert, err := upsertEdgeCypher(domain.RelWorksAt)
	if err != nil {
		t.Fatal(err)
	}
	lookups := []string{
		nodeExistsCypher, getNodeCypher, setNodeCypher, renameNodeCypher, deleteNodeCypher,
		edgesOutCypher, edgesInCypher, edgeGet, edgeUpsert,
	}
	for _, q := range lookups {
		if strings.Contains(strings.ReplaceAll(q, ":Entity {id:", ""), "{id:") {
			t.Errorf("lookup matches id without a label:\n%s", q)
		}
		if !strings.Contains(q, ":Entity {id: $") {
			t.Errorf("lookup does not use the id label:\n%s", q)
		}
	}
	if !strings.Contains(idIndexCypher, "FOR (n:Entity) ON (n.id)") {
		t.Errorf("index = %s", idIndexCypher)
	}

	create, err := createNodeCypher(domain.LabelOrganization)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(create, "CREATE (n:Organization:Entity)") {
		t.Errorf("created nodes miss the id label: %s", create)
	}
}

func TestLookupsWhileUnlabeledNodesRemain(t *testing.T) {
	s := &Store{}
	if got := s.q(getNodeCypher); got != getNodeCypher {
		t.Errorf("labeled store rewrote query: %s", got)
	}
	s.unlabeled.Store(true)
	want := "MATCH (n {id: $id}) RETURN labels(n) AS labels, properties(n) AS props LIMIT 1"
	if got := s.q(getNodeCypher); got != want {
		t.Errorf("got %q\nwant %q", got, want)
	}
	edge, err := upsertEdgeCypher(domain.RelWorksAt)
	if err != nil {
		t.Fatal(err)
	}
	if got := s.q(edge); !strings.Contains(got, "MATCH (a {id: $source})") || strings.Contains(got, idLabel) {
		t.Errorf("edge lookup still requires the id label:\n%s", got)
	}
}

func TestScanNodesLimitCypher(t *testing.T) {
	if got := scanNodesLimitCypher(0); strings.Contains(got, "LIMIT") {
		t.Errorf("unlimited scan has LIMIT: %s", got)
	}
	if got := scanNodesLimitCypher(10); !strings.HasSuffix(got, "LIMIT $limit") {
		t.Errorf("limited scan: %s", got)
	}
}

func TestToStoreProps(t *testing.T) {
	in := map[string]any{
		"id":       "dropped",
		"name":     "Acme",
		"nothing":  nil,
		"score":    0.5,
		"tags":     []any{"a", "b"},
		"mixed":    []any{"a", 1.0},
		"nested":   map[string]any{"k": "v"},
		"verified": true,
	}
	out, err := toStoreProps(in)
	if err != nil {
		t.Fatalf("toStoreProps failed: %v", err)
	}
	if _, ok := out["id"]; ok {
		t.Error("id should be set separately")
	}
	if _, ok := out["nothing"]; ok {
		t.Error("nil values should be skipped")
	}
	if out["mixed"] != `["a",1]` {
		t.Errorf("mixed list = %#v", out["mixed"])
	}
	if out["nested"] != `{"k":"v"}` {
		t.Errorf("nested map = %#v", out["nested"])
	}
	if tags, ok := out["tags"].([]any); !ok || len(tags) != 2 {
		t.Errorf("tags = %#v", out["tags"])
	}
	if out["score"] != 0.5 || out["verified"] != true || out["name"] != "Acme" {
		t.Errorf("scalars changed: %#v", out)
	}
}

func TestPickLabel(t *testing.T) {
	tests := []struct {
		in   any
		want domain.Label
	}{
		{[]any{"Legacy", "Person"}, domain.LabelPerson},
		{[]any{"Legacy"}, "Legacy"},
		{[]any{"Entity", "Person"}, domain.LabelPerson},
		{[]any{"Entity", "Legacy"}, "Legacy"},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := pickLabel(tt.in); got != tt.want {
			t.Errorf("pickLabel(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestOpenRequiresURI(t *testing.T) {
	_, err := Open(context.Background(), config.Neo4jConfig{}, nil)
	if !errors.Is(err, graphstore.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

// TestLiveRoundTrip runs against a real server when NEO4J_TEST_URI is set.
func TestLiveRoundTrip(t *testing.T) {
	uri := os.Getenv("NEO4J_TEST_URI")
	if uri == "" {
		t.Skip("NEO4J_TEST_URI not set")
	}
	ctx := context.Background()
	s, err := Open(ctx, config.Neo4jConfig{
		URI:      uri,
		User:     os.Getenv("NEO4J_TEST_USER"),
		Password: os.Getenv("NEO4J_TEST_PASSWORD"),
	}, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close(ctx)

	if _, err := s.EnsureConstraints(ctx, domain.Labels()); err != nil {
		t.Fatalf("EnsureConstraints failed: %v", err)
	}
	if _, err := s.EnsureConstraints(ctx, domain.Labels()); err != nil {
		t.Fatalf("second EnsureConstraints failed: %v", err)
	}

	a, b := "graphsync-test-a", "graphsync-test-b"
	t.Cleanup(func() {
		_ = s.DeleteNode(ctx, a)
		_ = s.DeleteNode(ctx, b)
	})
	for _, id := range []string{a, b} {
		if _, err := s.UpsertNode(ctx, graphstore.Node{ID: id, Label: domain.LabelPerson, Properties: map[string]any{"name": id}}); err != nil {
			t.Fatalf("UpsertNode failed: %v", err)
		}
	}
	created, err := s.UpsertEdge(ctx, graphstore.Edge{SourceID: a, TargetID: b, Type: domain.RelCollaboratesWith})
	if err != nil || !created {
		t.Fatalf("UpsertEdge: created=%v err=%v", created, err)
	}
	created, err = s.UpsertEdge(ctx, graphstore.Edge{SourceID: a, TargetID: b, Type: domain.RelCollaboratesWith})
	if err != nil || created {
		t.Fatalf("second UpsertEdge: created=%v err=%v", created, err)
	}
	if _, err := s.UpsertEdge(ctx, graphstore.Edge{SourceID: a, TargetID: "graphsync-missing", Type: domain.RelCollaboratesWith}); !errors.Is(err, graphstore.ErrMissingEndpoint) {
		t.Errorf("expected ErrMissingEndpoint, got %v", err)
	}
}
