package merge

import (
	"reflect"
	"strings"
	"testing"
)

func TestMerge(t *testing.T) {
	tests := []struct {
		name          string
		existing      map[string]any
		incoming      map[string]any
		want          map[string]any
		wantConflicts []string
		wantChanged   bool
	}{
		{
			name:        "fill missing",
			existing:    map[string]any{"name": "Acme"},
			incoming:    map[string]any{"url": "https://acme.example"},
			want:        map[string]any{"name": "Acme", "url": "https://acme.example"},
			wantChanged: true,
		},
		{
			name:        "fill blank",
			existing:    map[string]any{"name": "  ", "desc": nil},
			incoming:    map[string]any{"name": "Acme", "desc": "d"},
			want:        map[string]any{"name": "Acme", "desc": "d"},
			wantChanged: true,
		},
		{
			name:          "first writer wins",
			existing:      map[string]any{"name": "Acme"},
			incoming:      map[string]any{"name": "ACME Inc"},
			want:          map[string]any{"name": "Acme"},
			wantConflicts: []string{"name"},
		},
		{
			name:     "empty incoming ignored",
			existing: map[string]any{"name": "Acme", "tags": []any{"a"}},
			incoming: map[string]any{"name": "", "tags": []any{}, "extra": nil},
			want:     map[string]any{"name": "Acme", "tags": []any{"a"}},
		},
		{
			name:     "numbers compare by value",
			existing: map[string]any{"followers": float64(10)},
			incoming: map[string]any{"followers": 10},
			want:     map[string]any{"followers": float64(10)},
		},
		{
			name:        "list union keeps order",
			existing:    map[string]any{"tags": []any{"a", "b"}},
			incoming:    map[string]any{"tags": []string{"b", "c"}},
			want:        map[string]any{"tags": []any{"a", "b", "c"}},
			wantChanged: true,
		},
		{
			name:     "list subset is no change",
			existing: map[string]any{"tags": []any{"a", "b"}},
			incoming: map[string]any{"tags": []any{"b"}},
			want:     map[string]any{"tags": []any{"a", "b"}},
		},
		{
			name:          "scalar vs list conflicts",
			existing:      map[string]any{"alias": "x"},
			incoming:      map[string]any{"alias": []any{"y"}},
			want:          map[string]any{"alias": "x"},
			wantConflicts: []string{"alias"},
		},
		{
			name:        "nil existing map",
			existing:    nil,
			incoming:    map[string]any{"a": 1},
			want:        map[string]any{"a": 1},
			wantChanged: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Merge(tt.existing, tt.incoming)
			if !reflect.DeepEqual(res.Merged, tt.want) {
				t.Errorf("Merged = %#v, want %#v", res.Merged, tt.want)
			}
			var keys []string
			for _, c := range res.Conflicts {
				keys = append(keys, c.Key)
			}
			if !reflect.DeepEqual(keys, tt.wantConflicts) {
				t.Errorf("conflicts = %v, want %v", keys, tt.wantConflicts)
			}
			if res.Changed != tt.wantChanged {
				t.Errorf("Changed = %v, want %v", res.Changed, tt.wantChanged)
			}
		})
	}
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	existing := map[string]any{"tags": []any{"a"}}
	incoming := map[string]any{"tags": []any{"b"}, "name": "n"}
	Merge(existing, incoming)
	if len(existing) != 1 || len(existing["tags"].([]any)) != 1 {
		t.Errorf("existing mutated: %v", existing)
	}
	if len(incoming) != 2 {
		t.Errorf("incoming mutated: %v", incoming)
	}
}

// Monotonicity: no key that is non-empty on either side ends up empty.
func TestMergeMonotonic(t *testing.T) {
	values := []any{nil, "", "  ", "x", "y", 0, 1.5, true, []any{}, []any{"a"}, []string{"b"}, map[string]any{}, map[string]any{"k": "v"}}
	for _, a := range values {
		for _, b := range values {
			res := Merge(map[string]any{"f": a}, map[string]any{"f": b})
			if (!IsEmpty(a) || !IsEmpty(b)) && IsEmpty(res.Merged["f"]) {
				t.Errorf("Merge(%#v, %#v) produced empty %#v", a, b, res.Merged["f"])
			}
			if !IsEmpty(a) && !IsEmpty(b) && !isList(a) && !Equal(res.Merged["f"], a) {
				t.Errorf("Merge(%#v, %#v) replaced existing value with %#v", a, b, res.Merged["f"])
			}
		}
	}
}

func TestMergeIdempotent(t *testing.T) {
	existing := map[string]any{"name": "Acme", "tags": []any{"a"}}
	incoming := map[string]any{"name": "Other", "tags": []any{"b"}, "url": "u"}
	once := Merge(existing, incoming).Merged
	twice := Merge(once, incoming)
	if twice.Changed {
		t.Error("second merge reported a change")
	}
	if !EqualMaps(once, twice.Merged) {
		t.Errorf("second merge changed the result: %v vs %v", once, twice.Merged)
	}
}

func TestOverwrite(t *testing.T) {
	res := Overwrite(
		map[string]any{"name": "Old", "url": "u", "n": 1},
		map[string]any{"name": "New", "url": "", "n": float64(1)},
	)
	want := map[string]any{"name": "New", "url": "u", "n": 1}
	if !reflect.DeepEqual(res.Merged, want) {
		t.Errorf("Overwrite = %#v, want %#v", res.Merged, want)
	}
	if !res.Changed {
		t.Error("expected Changed")
	}
}

func TestEqual(t *testing.T) {
	if !Equal([]string{"a"}, []any{"a"}) {
		t.Error("string list should equal any list")
	}
	if Equal("1", 1) {
		t.Error("string and number should differ")
	}
	if !Equal(map[string]any{"a": 1}, map[string]any{"a": float64(1)}) {
		t.Error("maps with equal numbers should be equal")
	}
}

func TestFormatConflicts(t *testing.T) {
	if FormatConflicts(nil) != "" {
		t.Error("expected empty string")
	}
	got := FormatConflicts([]Conflict{{Key: "name", Existing: "A", Incoming: "B"}})
	if !strings.Contains(got, "name: kept A, ignored B") {
		t.Errorf("unexpected format %q", got)
	}
}
