package syncer

import (
	"fmt"
	"io"
	"time"

	"github.com/lherron/graphsync/internal/canon"
	"github.com/lherron/graphsync/internal/snapshot"
)

// State is the progress of one fragment within a run.
type State int

const (
	Unprocessed State = iota
	NodesApplied
	EdgesApplied
	Recorded
)

func (s State) String() string {
	switch s {
	case Unprocessed:
		return "unprocessed"
	case NodesApplied:
		return "nodes_applied"
	case EdgesApplied:
		return "edges_applied"
	case Recorded:
		return "recorded"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for st := Unprocessed; st <= Recorded; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown fragment state %q", text)
}

// Skip is a record that was not written.
type Skip struct {
	Fragment string `json:"fragment,omitempty"`
	ID       string `json:"id"`
	Reason   string `json:"reason"`
}

// FailedFragment is a fragment file that could not be parsed.
type FailedFragment struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// FragmentResult is the outcome for one fragment selected for writing.
type FragmentResult struct {
	Path  string `json:"path"`
	State State  `json:"state"`
	Nodes int    `json:"nodes"`
	Edges int    `json:"edges"`
}

// Counts tallies record outcomes.
type Counts struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
}

// Report summarizes a sync or restore run.
type Report struct {
	RunID      string    `json:"run_id"`
	DryRun     bool      `json:"dry_run,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Backup             *snapshot.WriteResult `json:"backup,omitempty"`
	ConstraintsCreated int                   `json:"constraints_created"`

	Nodes        Counts `json:"nodes"`
	NodesSkipped []Skip `json:"nodes_skipped,omitempty"`
	Edges        Counts `json:"edges"`
	EdgesSkipped []Skip `json:"edges_skipped,omitempty"`

	Fragments        []FragmentResult `json:"fragments,omitempty"`
	FragmentsSkipped []string         `json:"fragments_skipped,omitempty"`
	FragmentsFailed  []FailedFragment `json:"fragments_failed,omitempty"`

	IDsMigrated []canon.Remap  `json:"ids_migrated,omitempty"`
	Notices     []canon.Notice `json:"notices,omitempty"`
}

// Applied returns the paths of fragments that reached Recorded.
func (r *Report) Applied() []string {
	var out []string
	for _, f := range r.Fragments {
		if f.State == Recorded {
			out = append(out, f.Path)
		}
	}
	return out
}

// Render writes a human-readable summary.
func (r *Report) Render(w io.Writer) {
	if r.DryRun {
		fmt.Fprintln(w, "Dry run: no changes were written.")
	}
	if r.Backup != nil {
		fmt.Fprintf(w, "Backup: %s (%d nodes, %d links)\n", r.Backup.Path, r.Backup.NodeCount, r.Backup.LinkCount)
	}
	applied, verb := len(r.Applied()), "applied"
	if r.DryRun {
		applied, verb = len(r.Fragments), "to apply"
	}
	fmt.Fprintf(w, "Fragments: %d %s, %d already applied, %d failed to parse\n",
		applied, verb, len(r.FragmentsSkipped), len(r.FragmentsFailed))
	fmt.Fprintf(w, "Nodes: %d created, %d updated, %d unchanged, %d skipped\n",
		r.Nodes.Created, r.Nodes.Updated, r.Nodes.Unchanged, len(r.NodesSkipped))
	fmt.Fprintf(w, "Edges: %d created, %d updated, %d unchanged, %d skipped\n",
		r.Edges.Created, r.Edges.Updated, r.Edges.Unchanged, len(r.EdgesSkipped))
	if len(r.IDsMigrated) > 0 {
		fmt.Fprintf(w, "Ids migrated: %d\n", len(r.IDsMigrated))
		for _, m := range r.IDsMigrated {
			fmt.Fprintf(w, "  %s -> %s\n", m.From, m.To)
		}
	}
	for _, f := range r.FragmentsFailed {
		fmt.Fprintf(w, "  failed: %s: %s\n", f.Path, f.Error)
	}
	for _, s := range r.NodesSkipped {
		fmt.Fprintf(w, "  skipped node %s: %s\n", s.ID, s.Reason)
	}
	for _, s := range r.EdgesSkipped {
		fmt.Fprintf(w, "  skipped edge %s: %s\n", s.ID, s.Reason)
	}
	if len(r.Notices) > 0 {
		fmt.Fprintf(w, "Notices: %d\n", len(r.Notices))
		for _, n := range r.Notices {
			if n.Kind == canon.NoticeCollision {
				fmt.Fprintf(w, "  %s: %s\n", n.Kind, n.Message)
			}
		}
	}
}
