package evidence

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/lherron/graphsync/internal/domain"
	"github.com/lherron/graphsync/internal/fragment"
	"github.com/lherron/graphsync/internal/graphstore"
	"github.com/lherron/graphsync/internal/match"
	"github.com/lherron/graphsync/internal/testutil"
)

func TestScan(t *testing.T) {
	root := filepath.Join(t.TempDir(), "data", "evidence")
	testutil.WriteFile(t, root, "symbols/orzel-blw.png", "png")
	testutil.WriteFile(t, root, "facebook/fb_post-123.JPG", "jpg")
	testutil.WriteFile(t, root, "facebook/notes.txt", "text")
	testutil.WriteFile(t, root, ".cache/hidden.png", "png")

	assets, err := Scan(root)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	want := []Asset{
		{Path: "data/evidence/facebook/fb_post-123.JPG", Name: "fb_post-123", Property: PropScreenshot},
		{Path: "data/evidence/symbols/orzel-blw.png", Name: "orzel-blw", Property: PropImage},
	}
	if len(assets) != len(want) {
		t.Fatalf("assets = %+v", assets)
	}
	for i := range want {
		if assets[i] != want[i] {
			t.Errorf("asset %d = %+v, want %+v", i, assets[i], want[i])
		}
	}
}

func TestRepoPath(t *testing.T) {
	tests := []struct{ in, want string }{
		{"data/evidence/a.png", "data/evidence/a.png"},
		{"/home/u/project/data/evidence/a.png", "data/evidence/a.png"},
		{"/mnt/static/evidence/x/a.png", "data/evidence/x/a.png"},
		{"evidence/a.png", "data/evidence/a.png"},
		{"shots/a.png", "shots/a.png"},
	}
	for _, tt := range tests {
		if got := repoPath(tt.in); got != tt.want {
			t.Errorf("repoPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMatchAllAndFragment(t *testing.T) {
	g := &graphstore.Graph{Nodes: []graphstore.Node{
		{ID: "post-123", Label: domain.LabelPost, Properties: map[string]any{"entity_type": "post", "url": "https://fb.com/p/123"}},
		{ID: "symbol-orzel-blw", Label: domain.LabelSymbol, Properties: map[string]any{"name": "Orzeł BLW"}},
	}}
	known := KnownFromGraph(g)
	if known[1].EntityType != domain.EntitySymbol {
		t.Errorf("label fallback type = %q", known[1].EntityType)
	}

	assets := []Asset{
		{Path: "data/evidence/facebook/fb_post-123.jpg", Name: "fb_post-123", Property: PropScreenshot},
		{Path: "data/evidence/facebook/post-123.png", Name: "post-123", Property: PropScreenshot},
		{Path: "data/evidence/symbols/orzel-blw.png", Name: "orzel-blw", Property: PropImage},
		{Path: "data/evidence/misc/zzz.png", Name: "zzz", Property: PropScreenshot},
	}
	res := MatchAll(match.New(match.RatioScorer{}, match.DefaultThreshold), assets, known, nil)
	if len(res.Matches) != 3 || len(res.Unmatched) != 1 {
		t.Fatalf("matches=%+v unmatched=%+v", res.Matches, res.Unmatched)
	}
	if res.Matches[0].ID != "post-123" || res.Matches[0].Tier != match.TierExactID {
		t.Errorf("prefixed file = %+v", res.Matches[0])
	}
	if res.Matches[2].ID != "symbol-orzel-blw" || res.Matches[2].Tier != match.TierFuzzy {
		t.Errorf("symbol file = %+v", res.Matches[2])
	}

	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	frag := res.Fragment(DefaultFragmentName(at), at)
	if frag.Path != "evidence_20250102T030405Z.json" || len(frag.Nodes) != 2 {
		t.Fatalf("fragment = %+v", frag)
	}
	post := frag.Nodes[0]
	if post.EntityType != "" || post.Properties[PropScreenshot] != "data/evidence/facebook/fb_post-123.jpg" {
		t.Errorf("post patch = %+v", post)
	}
	if extra, _ := post.Properties["evidence_files"].([]any); len(extra) != 1 {
		t.Errorf("evidence_files = %#v", post.Properties["evidence_files"])
	}

	data, err := fragment.Encode(frag)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	parsed, err := fragment.Parse(frag.Path, data)
	if err != nil {
		t.Fatalf("generated fragment does not parse: %v", err)
	}
	if len(parsed.Nodes) != 2 || parsed.Nodes[1].Properties[PropImage] != "data/evidence/symbols/orzel-blw.png" {
		t.Errorf("parsed = %+v", parsed.Nodes)
	}
}
