package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/lherron/graphsync/internal/domain"
	"github.com/lherron/graphsync/internal/graphstore"
)

var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

const (
	backupTimeLayout = "20060102_150405"
	exportTimeLayout = "20060102T150405Z"
	zstdExt          = ".zst"
)

// BackupPath returns dir/neo4j_backup_<YYYYMMDD_HHMMSS>.json, with a .zst
// suffix when compressed.
func BackupPath(dir string, at time.Time, compress bool) string {
	name := "neo4j_backup_" + at.Format(backupTimeLayout) + ".json"
	if compress {
		name += zstdExt
	}
	return filepath.Join(dir, name)
}

// ExportPath returns dir/graph_export_<ts>.json.
func ExportPath(dir string, at time.Time) string {
	return filepath.Join(dir, "graph_export_"+at.UTC().Format(exportTimeLayout)+".json")
}

// FromGraph builds a snapshot from a store scan.
func FromGraph(g *graphstore.Graph, meta Meta) *Snapshot {
	s := &Snapshot{Meta: meta}
	for _, n := range g.Nodes {
		s.Nodes = append(s.Nodes, Node{
			ID:         n.ID,
			Name:       displayName(n.Properties),
			Group:      string(n.Label),
			Properties: n.Properties,
		})
	}
	for _, e := range g.Edges {
		s.Links = append(s.Links, Link{
			Source:     e.SourceID,
			Target:     e.TargetID,
			Type:       string(e.Type),
			Properties: e.Properties,
		})
	}
	return s
}

func displayName(props map[string]any) string {
	for _, key := range []string{"name", "title"} {
		if s, ok := props[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// ToGraph converts a snapshot back to store records. Records with a label or
// relationship type outside the vocabulary are returned as rejects.
func ToGraph(s *Snapshot) (*graphstore.Graph, []string) {
	g := &graphstore.Graph{}
	var rejects []string
	for _, n := range s.Nodes {
		label, err := domain.ParseLabel(n.Group)
		if err != nil || n.ID == "" {
			rejects = append(rejects, fmt.Sprintf("node %q: unknown group %q", n.ID, n.Group))
			continue
		}
		g.Nodes = append(g.Nodes, graphstore.Node{ID: n.ID, Label: label, Properties: copyProps(n.Properties)})
	}
	for _, l := range s.Links {
		rt := domain.RelationshipType(l.Type)
		if err := domain.ValidateRelationship(rt); err != nil || l.Source == "" || l.Target == "" {
			rejects = append(rejects, fmt.Sprintf("link %s-%s-%s: unknown type or endpoint", l.Source, l.Type, l.Target))
			continue
		}
		g.Edges = append(g.Edges, graphstore.Edge{SourceID: l.Source, TargetID: l.Target, Type: rt, Properties: copyProps(l.Properties)})
	}
	return g, rejects
}

func copyProps(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if k == "id" {
			continue
		}
		out[k] = v
	}
	return out
}

// WriteResult describes a written snapshot file.
type WriteResult struct {
	Path        string `json:"path"`
	SnapshotRev string `json:"snapshot_rev"`
	NodeCount   int    `json:"node_count"`
	LinkCount   int    `json:"link_count"`
	Bytes       int    `json:"bytes"`
	Compressed  bool   `json:"compressed"`
}

// Write seals s and writes it to path, zstd-compressed when path ends in
// .zst. The file is written to a temporary name and renamed into place.
func Write(path string, s *Snapshot) (*WriteResult, error) {
	if err := Seal(s); err != nil {
		return nil, err
	}
	data, err := PrettyJSON(s)
	if err != nil {
		return nil, err
	}

	compressed := strings.HasSuffix(path, zstdExt)
	if compressed {
		var buf bytes.Buffer
		encoder, err := zstd.NewWriter(&buf)
		if err != nil {
			return nil, fmt.Errorf("creating zstd encoder: %w", err)
		}
		if _, err := encoder.Write(data); err != nil {
			encoder.Close()
			return nil, fmt.Errorf("compressing snapshot: %w", err)
		}
		if err := encoder.Close(); err != nil {
			return nil, fmt.Errorf("compressing snapshot: %w", err)
		}
		data = buf.Bytes()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("failed to move snapshot into place: %w", err)
	}

	return &WriteResult{
		Path:        path,
		SnapshotRev: s.Meta.SnapshotRev,
		NodeCount:   s.Meta.NodeCount,
		LinkCount:   s.Meta.LinkCount,
		Bytes:       len(data),
		Compressed:  compressed,
	}, nil
}

// Load reads a snapshot file, decompressing zstd content when present. It
// also accepts the older backup layout with flat node records carrying a
// labels list and an edges array of source_id/target_id/relationship_type
// records.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	if bytes.HasPrefix(data, zstdMagic) {
		decoder, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("creating zstd decoder: %w", err)
		}
		defer decoder.Close()
		if data, err = io.ReadAll(decoder); err != nil {
			return nil, fmt.Errorf("decompressing snapshot: %w", err)
		}
	}
	s, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse snapshot %s: %w", path, err)
	}
	return s, nil
}

// Decode parses snapshot JSON in either layout.
func Decode(data []byte) (*Snapshot, error) {
	var probe struct {
		Links json.RawMessage `json:"links"`
		Edges json.RawMessage `json:"edges"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}
	if probe.Links == nil && probe.Edges != nil {
		return decodeLegacy(data)
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func decodeLegacy(data []byte) (*Snapshot, error) {
	var legacy struct {
		Meta  map[string]any   `json:"meta"`
		Nodes []map[string]any `json:"nodes"`
		Edges []map[string]any `json:"edges"`
	}
	if err := json.Unmarshal(data, &legacy); err != nil {
		return nil, err
	}

	s := &Snapshot{Meta: Meta{SchemaVersion: SchemaVersion, Kind: KindBackup}}
	if at, ok := legacy.Meta["generated_at"].(string); ok {
		s.Meta.BackupAt = at
	}
	for _, raw := range legacy.Nodes {
		id, _ := raw["id"].(string)
		group := ""
		if labels, ok := raw["labels"].([]any); ok {
			for _, l := range labels {
				if name, ok := l.(string); ok {
					if _, err := domain.ParseLabel(name); err == nil || group == "" {
						group = name
					}
				}
			}
		}
		props := make(map[string]any, len(raw))
		for k, v := range raw {
			if k != "id" && k != "labels" {
				props[k] = v
			}
		}
		s.Nodes = append(s.Nodes, Node{ID: id, Name: displayName(props), Group: group, Properties: props})
	}
	for _, raw := range legacy.Edges {
		src, _ := raw["source_id"].(string)
		tgt, _ := raw["target_id"].(string)
		typ, _ := raw["relationship_type"].(string)
		props := make(map[string]any, len(raw))
		for k, v := range raw {
			switch k {
			case "source_id", "target_id", "relationship_type":
			default:
				props[k] = v
			}
		}
		s.Links = append(s.Links, Link{Source: src, Target: tgt, Type: typ, Properties: props})
	}
	Sort(s)
	return s, nil
}
