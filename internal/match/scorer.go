package match

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/xrash/smetrics"
)

// DefaultThreshold is the minimum similarity a fuzzy match must exceed.
const DefaultThreshold = 0.5

// SimilarityScorer scores two already-normalized strings in [0,1].
type SimilarityScorer interface {
	Score(a, b string) float64
}

// RatioScorer is the sequence-matcher ratio: 2*M/T where M is the number of
// matched characters and T the total length of both strings.
type RatioScorer struct{}

func (RatioScorer) Score(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	m := difflib.NewMatcher(strings.Split(a, ""), strings.Split(b, ""))
	return m.Ratio()
}

// JaroWinklerScorer favours strings sharing a common prefix, which suits
// file names derived from ids.
type JaroWinklerScorer struct {
	BoostThreshold float64
	PrefixSize     int
}

func (s JaroWinklerScorer) Score(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	boost, prefix := s.BoostThreshold, s.PrefixSize
	if boost == 0 {
		boost = 0.7
	}
	if prefix == 0 {
		prefix = 4
	}
	return smetrics.JaroWinkler(a, b, boost, prefix)
}

// NewScorer returns the scorer registered under name: "ratio" (default) or
// "jaro-winkler".
func NewScorer(name string) (SimilarityScorer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "ratio", "sequence":
		return RatioScorer{}, nil
	case "jaro-winkler", "jarowinkler", "jw":
		return JaroWinklerScorer{}, nil
	default:
		return nil, fmt.Errorf("unknown similarity scorer %q: must be one of: ratio, jaro-winkler", name)
	}
}
