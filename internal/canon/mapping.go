package canon

import "sort"

// Mapping sends every observed id to its canonical id. It is transitively
// closed: a canonical id always maps to itself.
type Mapping map[string]string

// Resolve returns the canonical id for id, or id itself when unmapped.
func (m Mapping) Resolve(id string) string {
	if c, ok := m[id]; ok {
		return c
	}
	return id
}

// IsIdentity reports whether every id maps to itself.
func (m Mapping) IsIdentity() bool {
	for from, to := range m {
		if from != to {
			return false
		}
	}
	return true
}

// Remap is one non-identity mapping entry.
type Remap struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Changed lists the non-identity entries sorted by source id.
func (m Mapping) Changed() []Remap {
	var out []Remap
	for from, to := range m {
		if from != to {
			out = append(out, Remap{From: from, To: to})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].From < out[j].From })
	return out
}

// pickCanonical returns the longest id, breaking length ties by taking the
// lexicographically smallest. Ids in synthetic only win when the class has
// no other member.
func pickCanonical(ids []string, synthetic map[string]bool) string {
	best := ""
	for _, id := range ids {
		if best != "" && synthetic[id] && !synthetic[best] {
			continue
		}
		if best == "" || (synthetic[best] && !synthetic[id]) ||
			len(id) > len(best) || (len(id) == len(best) && id < best) {
			best = id
		}
	}
	return best
}
