// Package evidence links evidence files (screenshots, symbol images) to
// graph records and emits a fragment that attaches them as properties.
package evidence

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/lherron/graphsync/internal/domain"
	"github.com/lherron/graphsync/internal/fragment"
	"github.com/lherron/graphsync/internal/graphstore"
	"github.com/lherron/graphsync/internal/logger"
	"github.com/lherron/graphsync/internal/match"
)

const (
	PropImage      = "image"
	PropScreenshot = "screenshot"

	symbolsDir = "symbols"
)

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true, ".svg": true,
}

// Asset is one evidence file.
type Asset struct {
	// Path is the repository-style path stored on the record,
	// e.g. data/evidence/symbols/flag.png.
	Path string `json:"path"`
	// Name is the file name without extension.
	Name string `json:"name"`
	// Property is the record property the path is stored under.
	Property string `json:"property"`
}

// Match is an asset linked to a record.
type Match struct {
	Asset
	ID    string     `json:"id"`
	Tier  match.Tier `json:"-"`
	Score float64    `json:"score"`
}

// Result holds matched and unmatched assets in scan order.
type Result struct {
	Matches   []Match `json:"matches"`
	Unmatched []Asset `json:"unmatched,omitempty"`
}

// Scan lists image files below dir. Files under a symbols directory are
// stored as image, everything else as screenshot.
func Scan(dir string) ([]Asset, error) {
	rels, err := doublestar.Glob(os.DirFS(dir), "**/*", doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("failed to scan evidence directory %s: %w", dir, err)
	}
	sort.Strings(rels)

	var assets []Asset
	for _, rel := range rels {
		ext := strings.ToLower(path.Ext(rel))
		if !imageExtensions[ext] || hidden(rel) {
			continue
		}
		prop := PropScreenshot
		if strings.Contains("/"+path.Dir(rel)+"/", "/"+symbolsDir+"/") {
			prop = PropImage
		}
		assets = append(assets, Asset{
			Path:     repoPath(filepath.ToSlash(filepath.Join(dir, filepath.FromSlash(rel)))),
			Name:     strings.TrimSuffix(path.Base(rel), path.Ext(rel)),
			Property: prop,
		})
	}
	return assets, nil
}

func hidden(rel string) bool {
	for _, seg := range strings.Split(rel, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}

// repoPath trims p to start at its data/ segment, the form the rest of the
// tooling expects.
func repoPath(p string) string {
	p = strings.TrimPrefix(p, "./")
	if strings.HasPrefix(p, "data/") {
		return p
	}
	if i := strings.Index(p, "/data/"); i >= 0 {
		return p[i+1:]
	}
	if i := strings.Index(p, "/evidence/"); i >= 0 {
		return "data" + p[i:]
	}
	if strings.HasPrefix(p, "evidence/") {
		return "data/" + p
	}
	return p
}

// KnownFromGraph converts stored nodes into match candidates. The entity
// type comes from the entity_type property, or the label when absent.
func KnownFromGraph(g *graphstore.Graph) []fragment.Node {
	known := make([]fragment.Node, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		et := n.Label.EntityType()
		if s, ok := n.Properties[fragment.KeyEntityType].(string); ok {
			if parsed, err := domain.ParseEntityType(s); err == nil {
				et = parsed
			}
		}
		known = append(known, fragment.Node{ID: n.ID, EntityType: et, Properties: n.Properties})
	}
	return known
}

// MatchAll links each asset to at most one known record.
func MatchAll(m *match.Matcher, assets []Asset, known []fragment.Node, log *logger.Logger) *Result {
	if log == nil {
		log = logger.Nop()
	}
	res := &Result{}
	for _, a := range assets {
		hit, ok := m.MatchAsset(a.Name, known)
		if !ok {
			res.Unmatched = append(res.Unmatched, a)
			continue
		}
		log.Debug("matched evidence", "file", a.Path, "id", hit.ID, "tier", hit.Tier.String(), "score", hit.Score)
		res.Matches = append(res.Matches, Match{Asset: a, ID: hit.ID, Tier: hit.Tier, Score: hit.Score})
	}
	log.Info("evidence matched", "matched", len(res.Matches), "unmatched", len(res.Unmatched))
	return res
}

// Fragment renders the matches as untyped patch records, one per id. When
// several files match one id and property, the first in scan order is kept
// and the rest are listed under evidence_files.
func (r *Result) Fragment(rel string, at time.Time) *fragment.Fragment {
	pos := make(map[string]int)
	var nodes []fragment.Node
	for _, m := range r.Matches {
		i, ok := pos[m.ID]
		if !ok {
			i = len(nodes)
			pos[m.ID] = i
			nodes = append(nodes, fragment.Node{ID: m.ID, Properties: map[string]any{}})
		}
		props := nodes[i].Properties
		if _, taken := props[m.Property]; !taken {
			props[m.Property] = m.Path
			continue
		}
		extra, _ := props["evidence_files"].([]any)
		props["evidence_files"] = append(extra, m.Path)
	}

	unmatched := make([]any, 0, len(r.Unmatched))
	for _, a := range r.Unmatched {
		unmatched = append(unmatched, a.Path)
	}
	return &fragment.Fragment{
		Path: rel,
		Meta: map[string]any{
			"source":          "graphsync match-evidence",
			"generated_at":    at.UTC().Format(time.RFC3339),
			"matches_count":   float64(len(r.Matches)),
			"unmatched_files": unmatched,
		},
		Nodes: nodes,
	}
}

// DefaultFragmentName returns the file name used for an evidence fragment
// generated at at.
func DefaultFragmentName(at time.Time) string {
	return "evidence_" + at.UTC().Format("20060102T150405Z") + ".json"
}
