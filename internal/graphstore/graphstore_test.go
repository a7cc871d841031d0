package graphstore

import (
	"reflect"
	"testing"

	"github.com/lherron/graphsync/internal/domain"
)

func TestAddAlias(t *testing.T) {
	tests := []struct {
		name string
		in   map[string]any
		want any
	}{
		{"none", map[string]any{}, []any{"old"}},
		{"list", map[string]any{AliasesKey: []any{"x"}}, []any{"x", "old"}},
		{"strings", map[string]any{AliasesKey: []string{"x"}}, []any{"x", "old"}},
		{"scalar", map[string]any{AliasesKey: "x"}, []any{"x", "old"}},
		{"present", map[string]any{AliasesKey: []any{"old"}}, []any{"old"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := AddAlias(tt.in, "old")
			if !reflect.DeepEqual(out[AliasesKey], tt.want) {
				t.Errorf("aliases = %#v, want %#v", out[AliasesKey], tt.want)
			}
		})
	}

	in := map[string]any{"name": "n"}
	AddAlias(in, "old")
	if _, ok := in[AliasesKey]; ok {
		t.Error("AddAlias mutated its input")
	}
}

func TestSortEdges(t *testing.T) {
	edges := []Edge{
		{SourceID: "b", Type: domain.RelMentions, TargetID: "a"},
		{SourceID: "a", Type: domain.RelMentions, TargetID: "c"},
		{SourceID: "a", Type: domain.RelLeads, TargetID: "z"},
		{SourceID: "a", Type: domain.RelMentions, TargetID: "b"},
	}
	SortEdges(edges)
	var got []string
	for _, e := range edges {
		got = append(got, e.SourceID+string(e.Type)+e.TargetID)
	}
	want := []string{"aLEADSz", "aMENTIONSb", "aMENTIONSc", "bMENTIONSa"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v", got)
	}
}
