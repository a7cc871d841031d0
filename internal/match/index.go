package match

import "github.com/lherron/graphsync/internal/fragment"

// Hit is one match reported by Index.Lookup.
type Hit struct {
	ID   string
	Tier Tier
	Key  Key
}

// Index remembers added records by id and natural key so a candidate can be
// checked against everything seen so far in constant time per tier. Matcher
// runs its exact id and natural key tiers through an Index as well.
type Index struct {
	// families seen per id
	families map[string]map[string]bool
	keys     map[Key]string
}

func NewIndex() *Index {
	return &Index{
		families: make(map[string]map[string]bool),
		keys:     make(map[Key]string),
	}
}

// Lookup returns every indexed id the candidate matches under the exact id
// and natural key tiers, in tier order. Only the first record added under a
// given key is reported for it.
func (ix *Index) Lookup(n fragment.Node) []Hit {
	if n.EntityType == "" {
		return nil
	}
	var hits []Hit
	if ix.families[n.ID][Family(n.EntityType)] {
		hits = append(hits, Hit{ID: n.ID, Tier: TierExactID})
	}
	if key, ok := NaturalKey(n); ok {
		if id, found := ix.keys[key]; found {
			hits = append(hits, Hit{ID: id, Tier: keyTier(key), Key: key})
		}
	}
	return hits
}

// Add indexes a typed record. The first record wins each key.
func (ix *Index) Add(n fragment.Node) {
	if n.EntityType == "" {
		return
	}
	fams := ix.families[n.ID]
	if fams == nil {
		fams = make(map[string]bool)
		ix.families[n.ID] = fams
	}
	fams[Family(n.EntityType)] = true
	if key, ok := NaturalKey(n); ok {
		if _, exists := ix.keys[key]; !exists {
			ix.keys[key] = n.ID
		}
	}
}

func keyTier(k Key) Tier {
	if k.Kind == KeyURL {
		return TierURL
	}
	return TierName
}
