// Package snapshot reads and writes graph backups and exports.
//
// A snapshot is a deterministic JSON document of the form
//
//	{"meta": {...}, "nodes": [{id, name, group, properties}], "links": [{source, target, type, properties}]}
//
// with nodes sorted by id and links by (source, type, target). Backups carry
// meta.backup_at, exports meta.exported_at. meta.snapshot_rev is the BLAKE3
// digest of the canonical encoding with the rev left blank.
package snapshot

import "errors"

const (
	SchemaVersion = 1

	KindBackup = "backup"
	KindExport = "export"
)

// ErrRevMismatch is returned when a snapshot's recorded rev does not match
// its contents.
var ErrRevMismatch = errors.New("snapshot_rev does not match contents")

// Snapshot is a full or partial copy of the graph store.
type Snapshot struct {
	Meta  Meta   `json:"meta"`
	Nodes []Node `json:"nodes"`
	Links []Link `json:"links"`
}

// Meta contains snapshot metadata.
type Meta struct {
	SchemaVersion int    `json:"schema_version"`
	Kind          string `json:"kind,omitempty"`
	BackupAt      string `json:"backup_at,omitempty"`
	ExportedAt    string `json:"exported_at,omitempty"`
	Limit         int    `json:"limit,omitempty"`
	NodeCount     int    `json:"node_count"`
	LinkCount     int    `json:"link_count"`
	RunID         string `json:"run_id,omitempty"`
	SnapshotRev   string `json:"snapshot_rev,omitempty"`
}

// Node is a stored node. Name is a display copy of properties.name (or
// title); Group is the store label.
type Node struct {
	ID         string         `json:"id"`
	Name       string         `json:"name,omitempty"`
	Group      string         `json:"group"`
	Properties map[string]any `json:"properties"`
}

// Link is a stored relationship.
type Link struct {
	Source     string         `json:"source"`
	Target     string         `json:"target"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
}
