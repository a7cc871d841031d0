// Package canon assigns one canonical id to every entity described across a
// set of fragments and rewrites the fragments to use it.
//
// Equivalence classes are built with a union-find over observed ids using the
// matcher's exact id and natural key tiers. The canonical id of a class is its
// longest member id (ties go to the lexicographically smallest). Running the
// canonicalizer on its own output yields an identity mapping and unchanged
// fragments.
package canon

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lherron/graphsync/internal/domain"
	"github.com/lherron/graphsync/internal/fragment"
	"github.com/lherron/graphsync/internal/logger"
	"github.com/lherron/graphsync/internal/match"
	"github.com/lherron/graphsync/internal/merge"
)

// NoticeKind classifies a non-fatal observation made while canonicalizing.
type NoticeKind string

const (
	// NoticeCollision: distinct natural keys or types were forced into one
	// identity and a tiebreak was applied. Worth a manual look.
	NoticeCollision          NoticeKind = "canonical_collision"
	NoticeMissingID          NoticeKind = "missing_id"
	NoticeUnknownType        NoticeKind = "unknown_entity_type"
	NoticeUnknownRelation    NoticeKind = "unknown_relationship"
	NoticeConfidenceClamped  NoticeKind = "confidence_clamped"
	NoticePropertyConflict   NoticeKind = "property_conflict"
	NoticeUntypedWithoutType NoticeKind = "untyped_record"
)

// Notice is a non-fatal finding tied to a fragment and an id.
type Notice struct {
	Kind     NoticeKind `json:"kind"`
	Fragment string     `json:"fragment,omitempty"`
	ID       string     `json:"id,omitempty"`
	Message  string     `json:"message"`
}

// Options configures a canonicalization pass.
type Options struct {
	Log *logger.Logger
}

// Result is the output of Canonicalize.
type Result struct {
	Mapping   Mapping
	Fragments []*fragment.Fragment
	Notices   []Notice
	// Entities is the merged view of every canonical typed node across all
	// fragments, keyed by canonical id.
	Entities map[string]fragment.Node
	// Order lists Entities keys in first-seen order.
	Order []string
}

// CountNotices returns how many notices of the given kind were raised.
func (r *Result) CountNotices(kind NoticeKind) int {
	n := 0
	for _, notice := range r.Notices {
		if notice.Kind == kind {
			n++
		}
	}
	return n
}

type canonicalizer struct {
	log     *logger.Logger
	notices []Notice

	// first typed entity type seen per raw id
	primary map[string]domain.EntityType
	uf      *unionFind
	index   *match.Index
	// natural keys observed per effective id
	keys map[string][]match.Key
	// entity type of the first typed record per effective id
	types map[string]domain.EntityType
	// typed records per effective id, as indexed
	records map[string][]fragment.Node
	// effective ids made up for records whose raw id belongs to another type
	rekeyed map[string]bool
	mapping Mapping
}

// Canonicalize computes the canonical mapping over frags and returns
// rewritten copies. frags itself is not modified.
func Canonicalize(frags []*fragment.Fragment, opts Options) *Result {
	log := opts.Log
	if log == nil {
		log = logger.Nop()
	}
	c := &canonicalizer{
		log:     log,
		primary: make(map[string]domain.EntityType),
		uf:      newUnionFind(),
		index:   match.NewIndex(),
		keys:    make(map[string][]match.Key),
		types:   make(map[string]domain.EntityType),
		records: make(map[string][]fragment.Node),
		rekeyed: make(map[string]bool),
		mapping: make(Mapping),
	}

	work := make([]*fragment.Fragment, len(frags))
	for i, f := range frags {
		work[i] = f.Clone()
	}
	fragment.SortByPath(work)

	c.normalizeTypes(work)
	c.assignPrimaryTypes(work)
	c.buildClasses(work)
	c.closeClasses()
	c.reportCollisions()
	entities, order := c.mergeEntities(work)

	for _, f := range work {
		c.rewrite(f, entities)
	}

	return &Result{
		Mapping:   c.mapping,
		Fragments: work,
		Notices:   c.notices,
		Entities:  entities,
		Order:     order,
	}
}

func (c *canonicalizer) notice(kind NoticeKind, frag, id, format string, args ...any) {
	n := Notice{Kind: kind, Fragment: frag, ID: id, Message: fmt.Sprintf(format, args...)}
	c.notices = append(c.notices, n)
	switch kind {
	case NoticeCollision, NoticeUnknownType, NoticeUnknownRelation, NoticeMissingID:
		c.log.Warn(n.Message, "kind", string(kind), "fragment", frag, "id", id)
	default:
		c.log.Debug(n.Message, "kind", string(kind), "fragment", frag, "id", id)
	}
}

// normalizeTypes validates entity types; records with an unknown type are
// demoted to untyped patches.
func (c *canonicalizer) normalizeTypes(frags []*fragment.Fragment) {
	for _, f := range frags {
		if f.Dropped > 0 {
			c.notice(NoticeMissingID, f.Path, "", "skipped %d record(s) without identifiers", f.Dropped)
		}
		for i := range f.Nodes {
			n := &f.Nodes[i]
			if n.EntityType == "" {
				continue
			}
			et, err := domain.ParseEntityType(string(n.EntityType))
			if err != nil {
				c.notice(NoticeUnknownType, f.Path, n.ID, "unknown entity type %q, treating record as untyped", string(n.EntityType))
				n.EntityType = ""
				continue
			}
			n.EntityType = et
		}
	}
}

func (c *canonicalizer) assignPrimaryTypes(frags []*fragment.Fragment) {
	for _, f := range frags {
		for _, n := range f.Nodes {
			if n.EntityType == "" {
				continue
			}
			if _, ok := c.primary[n.ID]; !ok {
				c.primary[n.ID] = n.EntityType
			}
		}
	}
}

// effectiveID keeps the raw id for records in the primary type family and
// re-keys records whose type collides with it.
func (c *canonicalizer) effectiveID(n fragment.Node) string {
	if n.EntityType == "" {
		return n.ID
	}
	if p, ok := c.primary[n.ID]; ok && match.Family(p) != match.Family(n.EntityType) {
		return n.ID + "@" + string(n.EntityType)
	}
	return n.ID
}

func (c *canonicalizer) buildClasses(frags []*fragment.Fragment) {
	for _, f := range frags {
		for _, n := range f.Nodes {
			if n.EntityType == "" {
				continue
			}
			eff := c.effectiveID(n)
			if eff != n.ID && !c.rekeyed[eff] {
				c.rekeyed[eff] = true
				c.notice(NoticeCollision, f.Path, n.ID,
					"id %q is used by %s and %s records; the %s record is kept apart as %q",
					n.ID, c.primary[n.ID], n.EntityType, n.EntityType, eff)
			}
			keyed := n
			keyed.ID = eff

			c.uf.add(eff)
			for _, hit := range c.index.Lookup(keyed) {
				c.uf.union(hit.ID, eff)
			}
			c.index.Add(keyed)
			c.records[eff] = append(c.records[eff], keyed)

			if _, ok := c.types[eff]; !ok {
				c.types[eff] = n.EntityType
			}
			if key, ok := match.NaturalKey(keyed); ok {
				c.keys[eff] = appendKey(c.keys[eff], key)
			}
		}
	}
}

func appendKey(keys []match.Key, k match.Key) []match.Key {
	for _, have := range keys {
		if have == k {
			return keys
		}
	}
	return append(keys, k)
}

// resolveClasses assigns every member of every class its canonical id.
func (c *canonicalizer) resolveClasses() {
	for _, members := range c.uf.classes() {
		rep := pickCanonical(members, c.rekeyed)
		for _, id := range members {
			c.mapping[id] = rep
		}
	}
	// Raw ids of records re-keyed away from the primary type still resolve
	// through the primary record.
	for id := range c.primary {
		if _, ok := c.mapping[id]; !ok {
			c.mapping[id] = id
		}
	}
}

// closeClasses resolves classes until the natural keys records carry under
// their class's canonical type unite nothing further. Rewriting gives every
// record that type, so a key that only appears after retyping would
// otherwise merge on the next run.
func (c *canonicalizer) closeClasses() {
	for {
		c.resolveClasses()
		united := false
		seen := make(map[match.Key]string)
		for _, eff := range c.uf.order {
			et, ok := c.types[c.mapping.Resolve(eff)]
			if !ok {
				continue
			}
			for _, n := range c.records[eff] {
				n.EntityType = et
				key, ok := match.NaturalKey(n)
				if !ok {
					continue
				}
				other, found := seen[key]
				if !found {
					seen[key] = eff
					continue
				}
				if c.uf.find(other) != c.uf.find(eff) {
					c.uf.union(other, eff)
					united = true
				}
			}
		}
		if !united {
			return
		}
	}
}

func (c *canonicalizer) reportCollisions() {
	for _, members := range c.uf.classes() {
		rep := c.mapping.Resolve(members[0])
		distinct := make(map[match.KeyKind]map[string]bool)
		for _, id := range members {
			for _, k := range c.keys[id] {
				if distinct[k.Kind] == nil {
					distinct[k.Kind] = make(map[string]bool)
				}
				distinct[k.Kind][k.Value] = true
			}
		}
		for kind, values := range distinct {
			if len(values) > 1 {
				c.notice(NoticeCollision, "", rep,
					"%d records with %d different %s keys were merged into %q", len(members), len(values), kind, rep)
			}
		}
	}
}

// resolveNode returns the canonical id and type for a node record.
func (c *canonicalizer) resolveNode(n fragment.Node) (string, domain.EntityType) {
	eff := c.effectiveID(n)
	canonical := c.mapping.Resolve(eff)
	if et, ok := c.types[canonical]; ok {
		return canonical, et
	}
	return canonical, n.EntityType
}

// resolveRef maps an edge endpoint, recording it as observed.
func (c *canonicalizer) resolveRef(id string) string {
	canonical := c.mapping.Resolve(id)
	if _, ok := c.mapping[id]; !ok {
		c.mapping[id] = canonical
	}
	return canonical
}

func (c *canonicalizer) mergeEntities(frags []*fragment.Fragment) (map[string]fragment.Node, []string) {
	entities := make(map[string]fragment.Node)
	var order []string
	for _, f := range frags {
		for _, n := range f.Nodes {
			id, et := c.resolveNode(n)
			if et == "" {
				continue
			}
			existing, ok := entities[id]
			if !ok {
				entities[id] = fragment.Node{ID: id, EntityType: et, Properties: fragment.CloneProperties(n.Properties)}
				order = append(order, id)
				continue
			}
			existing.Properties = merge.Merge(existing.Properties, n.Properties).Merged
			entities[id] = existing
		}
	}
	return entities, order
}

func (c *canonicalizer) rewrite(f *fragment.Fragment, entities map[string]fragment.Node) {
	nodes := make([]fragment.Node, 0, len(f.Nodes))
	position := make(map[string]int)
	for _, n := range f.Nodes {
		id, et := c.resolveNode(n)
		if _, ok := c.mapping[n.ID]; !ok {
			c.mapping[n.ID] = id
		}
		if et == "" {
			c.notice(NoticeUntypedWithoutType, f.Path, n.ID, "record %q has no entity type and no typed counterpart", n.ID)
		}
		rewritten := fragment.Node{ID: id, EntityType: et, Properties: n.Properties}

		if i, dup := position[id]; dup {
			res := merge.Merge(nodes[i].Properties, rewritten.Properties)
			for _, conflict := range res.Conflicts {
				c.notice(NoticePropertyConflict, f.Path, id, "property %s: kept %v, ignored %v", conflict.Key, conflict.Existing, conflict.Incoming)
			}
			nodes[i].Properties = res.Merged
			if nodes[i].EntityType == "" {
				nodes[i].EntityType = et
			}
			continue
		}
		position[id] = len(nodes)
		nodes = append(nodes, rewritten)
	}
	f.Nodes = nodes

	edges := make([]fragment.Edge, 0, len(f.Edges))
	edgePos := make(map[string]int)
	for _, e := range f.Edges {
		rt, err := domain.NormalizeRelationship(e.Type)
		if err != nil {
			c.notice(NoticeUnknownRelation, f.Path, e.ID, "dropping edge %s -> %s: %v", e.SourceID, e.TargetID, err)
			continue
		}

		derived := e.ID == "" ||
			e.ID == fragment.DeriveEdgeID(e.SourceID, e.Type, e.TargetID) ||
			e.ID == fragment.DeriveEdgeID(e.SourceID, string(rt), e.TargetID)

		src, tgt := c.resolveRef(e.SourceID), c.resolveRef(e.TargetID)
		out := fragment.Edge{
			ID:         e.ID,
			SourceID:   src,
			TargetID:   tgt,
			Type:       string(rt),
			Properties: e.Properties,
		}
		if derived {
			out.ID = fragment.DeriveEdgeID(src, string(rt), tgt)
		}
		if out.Properties == nil {
			out.Properties = map[string]any{}
		}

		c.clampConfidence(f.Path, &out)
		fillName(out.Properties, fragment.KeySourceName, entities[src], src != e.SourceID)
		fillName(out.Properties, fragment.KeyTargetName, entities[tgt], tgt != e.TargetID)

		key := out.Key()
		if i, dup := edgePos[key]; dup {
			res := merge.Merge(edges[i].Properties, out.Properties)
			for _, conflict := range res.Conflicts {
				c.notice(NoticePropertyConflict, f.Path, edges[i].ID, "edge property %s: kept %v, ignored %v", conflict.Key, conflict.Existing, conflict.Incoming)
			}
			edges[i].Properties = res.Merged
			continue
		}
		edgePos[key] = len(edges)
		edges = append(edges, out)
	}
	f.Edges = edges
}

func (c *canonicalizer) clampConfidence(path string, e *fragment.Edge) {
	raw, ok := e.Properties[fragment.KeyConfidence]
	if !ok || raw == nil {
		return
	}
	var v float64
	switch t := raw.(type) {
	case float64:
		v = t
	case int:
		v = float64(t)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return
		}
		v = parsed
	default:
		return
	}
	clamped := v
	if clamped < 0 {
		clamped = 0
	}
	if clamped > 1 {
		clamped = 1
	}
	if clamped != v {
		c.notice(NoticeConfidenceClamped, path, e.ID, "confidence %v clamped to %v", v, clamped)
	}
	e.Properties[fragment.KeyConfidence] = clamped
}

// fillName sets a denormalized endpoint name from the canonical entity when
// the edge has none or when its endpoint was remapped.
func fillName(props map[string]any, key string, entity fragment.Node, remapped bool) {
	name := entity.Name()
	if name == "" {
		return
	}
	if remapped || merge.IsEmpty(props[key]) {
		props[key] = name
	}
}
