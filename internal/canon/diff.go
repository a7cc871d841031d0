package canon

import (
	"fmt"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/lherron/graphsync/internal/fragment"
)

// Diff renders a unified diff between the encoded forms of two versions of a
// fragment. It returns "" when they encode identically.
func Diff(before, after *fragment.Fragment) (string, error) {
	a, err := fragment.Encode(before)
	if err != nil {
		return "", err
	}
	b, err := fragment.Encode(after)
	if err != nil {
		return "", err
	}
	if string(a) == string(b) {
		return "", nil
	}
	out, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(a)),
		B:        difflib.SplitLines(string(b)),
		FromFile: "a/" + before.Path,
		ToFile:   "b/" + after.Path,
		Context:  3,
	})
	if err != nil {
		return "", fmt.Errorf("failed to diff %s: %w", before.Path, err)
	}
	return out, nil
}

// Changed pairs each input fragment with its rewritten form and returns the
// rewritten fragments whose encoding differs. Both slices are matched by path.
func Changed(before, after []*fragment.Fragment) ([]*fragment.Fragment, error) {
	byPath := make(map[string]*fragment.Fragment, len(before))
	for _, f := range before {
		byPath[f.Path] = f
	}
	var out []*fragment.Fragment
	for _, f := range after {
		orig, ok := byPath[f.Path]
		if !ok {
			out = append(out, f)
			continue
		}
		a, err := fragment.Encode(orig)
		if err != nil {
			return nil, err
		}
		b, err := fragment.Encode(f)
		if err != nil {
			return nil, err
		}
		if string(a) != string(b) {
			out = append(out, f)
		}
	}
	return out, nil
}
