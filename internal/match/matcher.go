// Package match decides when two node records denote the same entity.
//
// Matching runs through ordered tiers and the first hit wins:
//
//  1. exact id within a compatible type
//  2. normalized url for url-keyed types
//  3. normalized name for organizations, people and events
//  4. fuzzy similarity, only for evidence assets
//
// Records of incompatible types never match, even when their ids collide.
package match

import (
	"strings"

	"github.com/lherron/graphsync/internal/domain"
	"github.com/lherron/graphsync/internal/fragment"
)

// Tier identifies which rule produced a match.
type Tier int

const (
	TierNone Tier = iota
	TierExactID
	TierURL
	TierName
	TierFuzzy
)

func (t Tier) String() string {
	switch t {
	case TierExactID:
		return "exact_id"
	case TierURL:
		return "url"
	case TierName:
		return "name"
	case TierFuzzy:
		return "fuzzy"
	default:
		return "none"
	}
}

// KeyKind is the kind of natural key a record carries.
type KeyKind string

const (
	KeyURL  KeyKind = "url"
	KeyName KeyKind = "name"
)

// Key is a natural key scoped to a compatibility class.
type Key struct {
	Kind  KeyKind
	Class string
	Value string
}

func (k Key) String() string {
	return string(k.Kind) + ":" + k.Class + ":" + k.Value
}

// Class returns the compatibility class of a record. Presence types (profile,
// page, site, channel) share a class per platform; everything else is its own
// entity type.
func Class(n fragment.Node) string {
	if n.EntityType.Presence() {
		if platform := strings.ToLower(strings.TrimSpace(n.String(fragment.KeyPlatform))); platform != "" {
			return "presence:" + platform
		}
	}
	if n.EntityType == domain.EntitySite {
		return string(domain.EntityPage)
	}
	return string(n.EntityType)
}

// Family groups entity types that may share an id. Presence types form one
// family; every other type is its own.
func Family(et domain.EntityType) string {
	if et.Presence() {
		return "presence"
	}
	return string(et)
}

// NaturalKey returns the record's url or name key, if its type has one and
// the value is present.
func NaturalKey(n fragment.Node) (Key, bool) {
	switch {
	case n.EntityType.URLKeyed():
		if v := NormalizeURL(n.String(fragment.KeyURL)); v != "" {
			return Key{Kind: KeyURL, Class: Class(n), Value: v}, true
		}
	case n.EntityType.NameKeyed():
		if v := NormalizeName(n.Name()); v != "" {
			return Key{Kind: KeyName, Class: Class(n), Value: v}, true
		}
	}
	return Key{}, false
}

// Matcher applies the tiers. It is safe for concurrent use.
type Matcher struct {
	scorer    SimilarityScorer
	threshold float64
}

// New returns a matcher. A nil scorer means RatioScorer; a threshold outside
// (0,1] means DefaultThreshold.
func New(scorer SimilarityScorer, threshold float64) *Matcher {
	if scorer == nil {
		scorer = RatioScorer{}
	}
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Matcher{scorer: scorer, threshold: threshold}
}

// Threshold returns the fuzzy threshold in use.
func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// Match returns the id of the first known record the candidate denotes.
// Untyped candidates are treated as evidence assets and go through MatchAsset.
func (m *Matcher) Match(candidate fragment.Node, known []fragment.Node) (string, Tier, bool) {
	if candidate.EntityType == "" {
		res, ok := m.MatchAsset(candidate.ID, known)
		return res.ID, res.Tier, ok
	}

	ix := NewIndex()
	for _, k := range known {
		ix.Add(k)
	}
	hits := ix.Lookup(candidate)
	if len(hits) == 0 {
		return "", TierNone, false
	}
	return hits[0].ID, hits[0].Tier, true
}

// AssetMatch is the result of matching an evidence asset name.
type AssetMatch struct {
	ID    string
	Tier  Tier
	Score float64
}

var assetPrefixes = []string{"fb_", "page-", "profile-", "post-"}

// MatchAsset matches an asset name (typically a file name without extension)
// to a known record. Exact id and its common spelling variants are tried
// against every record; fuzzy scoring only considers records whose type has
// no url key. Ties in fuzzy score go to the earliest record.
func (m *Matcher) MatchAsset(name string, known []fragment.Node) (AssetMatch, bool) {
	if name == "" {
		return AssetMatch{}, false
	}

	ids := make(map[string]bool, len(known))
	for _, k := range known {
		ids[k.ID] = true
	}
	for _, variant := range idVariants(name) {
		if ids[variant] {
			return AssetMatch{ID: variant, Tier: TierExactID, Score: 1}, true
		}
	}

	normName := NormalizeForSimilarity(name)
	var best AssetMatch
	for _, k := range known {
		if k.EntityType.URLKeyed() {
			continue
		}
		score := m.scorer.Score(normName, NormalizeForSimilarity(k.ID))
		if byName := m.scorer.Score(normName, NormalizeForSimilarity(k.Name())); byName > score {
			score = byName
		}
		if score > best.Score && score > m.threshold {
			best = AssetMatch{ID: k.ID, Tier: TierFuzzy, Score: score}
		}
	}
	if best.ID == "" {
		return AssetMatch{}, false
	}
	return best, true
}

func idVariants(name string) []string {
	out := []string{name}
	if alt := strings.ReplaceAll(name, "_", "-"); alt != name {
		out = append(out, alt)
	}
	for _, prefix := range assetPrefixes {
		if strings.HasPrefix(name, prefix) {
			out = append(out, strings.TrimPrefix(name, prefix))
		}
	}
	return out
}
