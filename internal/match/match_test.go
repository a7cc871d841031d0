package match

import (
	"math"
	"testing"

	"github.com/lherron/graphsync/internal/domain"
	"github.com/lherron/graphsync/internal/fragment"
)

func node(id string, et domain.EntityType, props map[string]any) fragment.Node {
	if props == nil {
		props = map[string]any{}
	}
	return fragment.Node{ID: id, EntityType: et, Properties: props}
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://x.com/abc/", "x.com/abc"},
		{"  HTTP://X.com/abc  ", "x.com/abc"},
		{"HtTpS://www.facebook.com/Page//", "facebook.com/page"},
		{"x.com/abc", "x.com/abc"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeURL(tt.in); got != tt.want {
			t.Errorf("NormalizeURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  Acme   Corp ", "acme corp"},
		{"STRASSE", "strasse"},
		{"ŁÓDŹ", "łódź"},
	}
	for _, tt := range tests {
		if got := NormalizeName(tt.in); got != tt.want {
			t.Errorf("NormalizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeForSimilarity(t *testing.T) {
	if got := NormalizeForSimilarity("Symbol-Orzeł_BLW.png"); got != "symbol orzeł blw png" {
		t.Errorf("got %q", got)
	}
}

func TestRatioScorer(t *testing.T) {
	s := RatioScorer{}
	if got := s.Score("abcd", "abcd"); got != 1 {
		t.Errorf("identical = %v", got)
	}
	if got := s.Score("abcd", "wxyz"); got != 0 {
		t.Errorf("disjoint = %v", got)
	}
	// "abcd" vs "bcde": 3 matched chars, 2*3/8
	if got := s.Score("abcd", "bcde"); math.Abs(got-0.75) > 1e-9 {
		t.Errorf("partial = %v, want 0.75", got)
	}
	if got := s.Score("", "abc"); got != 0 {
		t.Errorf("empty vs text = %v", got)
	}
}

func TestJaroWinklerScorer(t *testing.T) {
	s := JaroWinklerScorer{}
	if got := s.Score("martha", "martha"); got != 1 {
		t.Errorf("identical = %v", got)
	}
	if got := s.Score("martha", "marhta"); got < 0.9 {
		t.Errorf("transposition = %v, want > 0.9", got)
	}
	if got := s.Score("", "x"); got != 0 {
		t.Errorf("empty = %v", got)
	}
}

func TestNewScorer(t *testing.T) {
	for _, name := range []string{"", "ratio", "jaro-winkler", "JW"} {
		if _, err := NewScorer(name); err != nil {
			t.Errorf("NewScorer(%q) failed: %v", name, err)
		}
	}
	if _, err := NewScorer("levenshtein"); err == nil {
		t.Error("expected error for unknown scorer")
	}
}

func TestMatchTiers(t *testing.T) {
	known := []fragment.Node{
		node("profile-braterstwa-ludzi-wolnych", domain.EntityProfile, map[string]any{"url": "https://x.com/abc"}),
		node("org-acme", domain.EntityOrganization, map[string]any{"name": "Acme Corp"}),
		node("shared-id", domain.EntityPerson, map[string]any{"name": "Pat"}),
		node("page-fb", domain.EntityPage, map[string]any{"url": "https://facebook.com/blw", "platform": "Facebook"}),
		node("sym-1", domain.EntitySymbol, map[string]any{"name": "Eagle"}),
	}

	tests := []struct {
		name     string
		cand     fragment.Node
		wantID   string
		wantTier Tier
	}{
		{
			name:     "exact id",
			cand:     node("org-acme", domain.EntityOrganization, nil),
			wantID:   "org-acme",
			wantTier: TierExactID,
		},
		{
			name:     "url trailing slash",
			cand:     node("profile-001", domain.EntityProfile, map[string]any{"url": "https://x.com/abc/"}),
			wantID:   "profile-braterstwa-ludzi-wolnych",
			wantTier: TierURL,
		},
		{
			name:     "name case folded",
			cand:     node("org-2", domain.EntityOrganization, map[string]any{"name": "  ACME corp"}),
			wantID:   "org-acme",
			wantTier: TierName,
		},
		{
			name:     "id collision across types",
			cand:     node("shared-id", domain.EntityOrganization, map[string]any{"name": "Other"}),
			wantTier: TierNone,
		},
		{
			name:     "same name different type",
			cand:     node("person-acme", domain.EntityPerson, map[string]any{"name": "Acme Corp"}),
			wantTier: TierNone,
		},
		{
			name:     "profile matches page on same platform",
			cand:     node("profile-blw", domain.EntityProfile, map[string]any{"url": "http://www.facebook.com/blw/", "platform": "facebook"}),
			wantID:   "page-fb",
			wantTier: TierURL,
		},
		{
			name:     "profile without platform does not match page",
			cand:     node("profile-blw", domain.EntityProfile, map[string]any{"url": "http://www.facebook.com/blw/"}),
			wantTier: TierNone,
		},
		{
			name:     "symbol only by id",
			cand:     node("sym-2", domain.EntitySymbol, map[string]any{"name": "Eagle"}),
			wantTier: TierNone,
		},
		{
			name:     "no natural key",
			cand:     node("profile-x", domain.EntityProfile, nil),
			wantTier: TierNone,
		},
	}

	m := New(nil, 0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, tier, ok := m.Match(tt.cand, known)
			if tt.wantTier == TierNone {
				if ok {
					t.Fatalf("expected no match, got %q via %s", id, tier)
				}
				return
			}
			if !ok || id != tt.wantID || tier != tt.wantTier {
				t.Errorf("Match = (%q, %s, %v), want (%q, %s)", id, tier, ok, tt.wantID, tt.wantTier)
			}
		})
	}
}

func TestMatchAsset(t *testing.T) {
	known := []fragment.Node{
		node("post-123", domain.EntityPost, map[string]any{"url": "https://fb.com/p/123"}),
		node("symbol-orzel-blw", domain.EntitySymbol, map[string]any{"name": "Orzeł BLW"}),
		node("symbol-peace-mir", domain.EntitySymbol, map[string]any{"name": "Peace Mir"}),
		node("profile-abc", domain.EntityProfile, map[string]any{"url": "https://x.com/abc"}),
	}
	m := New(RatioScorer{}, DefaultThreshold)

	tests := []struct {
		name     string
		asset    string
		wantID   string
		wantTier Tier
		wantOK   bool
	}{
		{name: "exact", asset: "symbol-orzel-blw", wantID: "symbol-orzel-blw", wantTier: TierExactID, wantOK: true},
		{name: "underscores", asset: "symbol_peace_mir", wantID: "symbol-peace-mir", wantTier: TierExactID, wantOK: true},
		{name: "prefix stripped", asset: "fb_post-123", wantID: "post-123", wantTier: TierExactID, wantOK: true},
		{name: "fuzzy", asset: "peace-pokoj-mir", wantID: "symbol-peace-mir", wantTier: TierFuzzy, wantOK: true},
		{name: "fuzzy never hits url keyed", asset: "profile-abd", wantOK: false},
		{name: "below threshold", asset: "zzzzzzzz", wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := m.MatchAsset(tt.asset, known)
			if ok != tt.wantOK {
				t.Fatalf("MatchAsset(%q) ok = %v (%+v), want %v", tt.asset, ok, got, tt.wantOK)
			}
			if !ok {
				return
			}
			if got.ID != tt.wantID || got.Tier != tt.wantTier {
				t.Errorf("MatchAsset(%q) = %+v, want %s via %s", tt.asset, got, tt.wantID, tt.wantTier)
			}
			if got.Tier == TierFuzzy && got.Score <= m.Threshold() {
				t.Errorf("fuzzy score %v not above threshold", got.Score)
			}
		})
	}
}

func TestMatchAssetTieGoesToFirst(t *testing.T) {
	known := []fragment.Node{
		node("aaaa-one", domain.EntitySymbol, nil),
		node("aaaa-two", domain.EntitySymbol, nil),
	}
	got, ok := New(constScorer(0.9), 0.5).MatchAsset("whatever", known)
	if !ok || got.ID != "aaaa-one" {
		t.Errorf("tie resolved to %+v, want aaaa-one", got)
	}
}

type constScorer float64

func (c constScorer) Score(a, b string) float64 { return float64(c) }

func TestIndexLookup(t *testing.T) {
	ix := NewIndex()
	a := node("profile-001", domain.EntityProfile, map[string]any{"url": "https://x.com/abc/"})
	b := node("profile-braterstwa-ludzi-wolnych", domain.EntityProfile, map[string]any{"url": "https://x.com/abc"})
	if hits := ix.Lookup(a); len(hits) != 0 {
		t.Fatalf("empty index returned %v", hits)
	}
	ix.Add(a)

	hits := ix.Lookup(b)
	if len(hits) != 1 || hits[0].ID != "profile-001" || hits[0].Tier != TierURL {
		t.Fatalf("unexpected hits %+v", hits)
	}

	again := node("profile-001", domain.EntityProfile, map[string]any{"url": "https://x.com/abc"})
	hits = ix.Lookup(again)
	if len(hits) != 2 || hits[0].Tier != TierExactID || hits[1].Tier != TierURL {
		t.Errorf("expected exact id then url hit, got %+v", hits)
	}

	other := node("profile-001", domain.EntityPerson, map[string]any{"name": "x"})
	if hits := ix.Lookup(other); len(hits) != 0 {
		t.Errorf("incompatible id collision matched: %+v", hits)
	}
}

func TestMatchSharesIndexTiers(t *testing.T) {
	known := []fragment.Node{
		node("dup", domain.EntityPerson, map[string]any{"name": "Dup Person"}),
		node("dup", domain.EntityOrganization, map[string]any{"name": "Dup Org"}),
		node("org-x", domain.EntityOrganization, map[string]any{"name": "X"}),
	}
	ix := NewIndex()
	for _, k := range known {
		ix.Add(k)
	}

	m := New(nil, 0)
	for _, cand := range []fragment.Node{
		node("dup", domain.EntityOrganization, nil),
		node("dup", domain.EntityPerson, nil),
		node("org-y", domain.EntityOrganization, map[string]any{"name": "x"}),
		node("dup", domain.EntityEvent, nil),
	} {
		id, tier, ok := m.Match(cand, known)
		hits := ix.Lookup(cand)
		if !ok {
			if len(hits) != 0 {
				t.Errorf("Match(%s/%s) found nothing, index found %+v", cand.ID, cand.EntityType, hits)
			}
			continue
		}
		if len(hits) == 0 || hits[0].ID != id || hits[0].Tier != tier {
			t.Errorf("Match(%s/%s) = (%q, %s), index = %+v", cand.ID, cand.EntityType, id, tier, hits)
		}
	}

	if id, tier, ok := m.Match(node("dup", domain.EntityOrganization, nil), known); !ok || id != "dup" || tier != TierExactID {
		t.Errorf("second holder of an id not matched: (%q, %s, %v)", id, tier, ok)
	}
}
