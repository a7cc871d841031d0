package snapshot

import (
	"encoding/hex"
	"fmt"
	"sort"

	"lukechampine.com/blake3"

	"github.com/lherron/graphsync/internal/jsonx"
)

// CanonicalJSON produces the deterministic compact encoding: fixed key order
// for meta, nodes and links, sorted property keys, no HTML escaping.
func CanonicalJSON(s *Snapshot) ([]byte, error) {
	data, err := jsonx.Marshal(buildOrdered(s))
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

// PrettyJSON is the canonical encoding indented for people.
func PrettyJSON(s *Snapshot) ([]byte, error) {
	data, err := jsonx.MarshalIndent(buildOrdered(s))
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

// ComputeSnapshotRev hashes canonical snapshot bytes. Returns
// "blake3:<hex>".
func ComputeSnapshotRev(data []byte) string {
	sum := blake3.Sum256(data)
	return "blake3:" + hex.EncodeToString(sum[:])
}

// Rev computes the rev of s as if meta.snapshot_rev were blank.
func Rev(s *Snapshot) (string, error) {
	blank := *s
	blank.Meta.SnapshotRev = ""
	data, err := CanonicalJSON(&blank)
	if err != nil {
		return "", err
	}
	return ComputeSnapshotRev(data), nil
}

// Seal sorts the snapshot, fills the counts and sets snapshot_rev.
func Seal(s *Snapshot) error {
	Sort(s)
	s.Meta.NodeCount = len(s.Nodes)
	s.Meta.LinkCount = len(s.Links)
	if s.Meta.SchemaVersion == 0 {
		s.Meta.SchemaVersion = SchemaVersion
	}
	rev, err := Rev(s)
	if err != nil {
		return err
	}
	s.Meta.SnapshotRev = rev
	return nil
}

// Verify checks the recorded rev against the contents. Snapshots without a
// rev (older backups) pass.
func Verify(s *Snapshot) error {
	if s.Meta.SnapshotRev == "" {
		return nil
	}
	rev, err := Rev(s)
	if err != nil {
		return err
	}
	if rev != s.Meta.SnapshotRev {
		return fmt.Errorf("%w: recorded %s, computed %s", ErrRevMismatch, s.Meta.SnapshotRev, rev)
	}
	return nil
}

// Sort orders nodes by id and links by (source, type, target).
func Sort(s *Snapshot) {
	sort.SliceStable(s.Nodes, func(i, j int) bool { return s.Nodes[i].ID < s.Nodes[j].ID })
	sort.SliceStable(s.Links, func(i, j int) bool {
		a, b := s.Links[i], s.Links[j]
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		return a.Target < b.Target
	})
}

func buildOrdered(s *Snapshot) jsonx.OrderedMap {
	nodes := make([]jsonx.OrderedMap, 0, len(s.Nodes))
	for _, n := range s.Nodes {
		entry := jsonx.OrderedMap{{Key: "id", Value: n.ID}}
		if n.Name != "" {
			entry = append(entry, jsonx.KeyValue{Key: "name", Value: n.Name})
		}
		entry = append(entry,
			jsonx.KeyValue{Key: "group", Value: n.Group},
			jsonx.KeyValue{Key: "properties", Value: props(n.Properties)},
		)
		nodes = append(nodes, entry)
	}
	links := make([]jsonx.OrderedMap, 0, len(s.Links))
	for _, l := range s.Links {
		links = append(links, jsonx.OrderedMap{
			{Key: "source", Value: l.Source},
			{Key: "target", Value: l.Target},
			{Key: "type", Value: l.Type},
			{Key: "properties", Value: props(l.Properties)},
		})
	}
	return jsonx.OrderedMap{
		{Key: "meta", Value: buildOrderedMeta(&s.Meta)},
		{Key: "nodes", Value: nodes},
		{Key: "links", Value: links},
	}
}

func props(p map[string]any) map[string]any {
	if p == nil {
		return map[string]any{}
	}
	return p
}

func buildOrderedMeta(m *Meta) jsonx.OrderedMap {
	out := jsonx.OrderedMap{{Key: "schema_version", Value: m.SchemaVersion}}
	add := func(key, v string) {
		if v != "" {
			out = append(out, jsonx.KeyValue{Key: key, Value: v})
		}
	}
	add("kind", m.Kind)
	add("backup_at", m.BackupAt)
	add("exported_at", m.ExportedAt)
	if m.Limit > 0 {
		out = append(out, jsonx.KeyValue{Key: "limit", Value: m.Limit})
	}
	out = append(out,
		jsonx.KeyValue{Key: "node_count", Value: m.NodeCount},
		jsonx.KeyValue{Key: "link_count", Value: m.LinkCount},
	)
	add("run_id", m.RunID)
	add("snapshot_rev", m.SnapshotRev)
	return out
}
