package fragment

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/lherron/graphsync/internal/logger"
	"golang.org/x/sync/errgroup"
)

// DefaultPattern matches every JSON file below the fragment directory.
const DefaultPattern = "**/*.json"

// Store gives read/write access to a directory of fragment files.
type Store struct {
	root    string
	pattern string
	workers int
	log     *logger.Logger
}

// Failure describes a fragment file that was skipped because it could not be
// parsed.
type Failure struct {
	Path string
	Err  error
}

// LoadResult holds parsed fragments in path order plus the files that failed.
type LoadResult struct {
	Fragments []*Fragment
	Failures  []Failure
}

// NewStore returns a store rooted at dir. An empty pattern means
// DefaultPattern; workers below one means sequential parsing.
func NewStore(dir, pattern string, workers int, log *logger.Logger) *Store {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if workers < 1 {
		workers = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Store{root: dir, pattern: pattern, workers: workers, log: log.With("fragment_dir", dir)}
}

// Root returns the fragment directory.
func (s *Store) Root() string {
	return s.root
}

// Discover lists fragment files as slash-separated paths relative to the
// root, sorted lexicographically.
func (s *Store) Discover() ([]string, error) {
	if !doublestar.ValidatePattern(s.pattern) {
		return nil, fmt.Errorf("invalid fragment pattern %q", s.pattern)
	}

	var paths []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != s.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		match, err := doublestar.Match(s.pattern, rel)
		if err != nil {
			return err
		}
		if match {
			paths = append(paths, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan fragment directory %s: %w", s.root, err)
	}

	sort.Strings(paths)
	return paths, nil
}

// LoadAll discovers and parses every fragment below the root.
func (s *Store) LoadAll(ctx context.Context) (*LoadResult, error) {
	paths, err := s.Discover()
	if err != nil {
		return nil, err
	}
	return s.Load(ctx, paths)
}

// Load parses the given relative paths in parallel. Files that fail to parse
// are reported as failures; read errors abort the load.
func (s *Store) Load(ctx context.Context, paths []string) (*LoadResult, error) {
	frags := make([]*Fragment, len(paths))
	failures := make([]error, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, rel := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			frag, err := s.Read(rel)
			if err != nil {
				if errors.Is(err, ErrMalformed) {
					failures[i] = err
					return nil
				}
				return err
			}
			frags[i] = frag
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &LoadResult{}
	for i, rel := range paths {
		if failures[i] != nil {
			s.log.Warn("skipping malformed fragment", "path", rel, "error", failures[i])
			result.Failures = append(result.Failures, Failure{Path: rel, Err: failures[i]})
			continue
		}
		if frags[i].Dropped > 0 {
			s.log.Warn("skipped records without identifiers", "path", rel, "count", frags[i].Dropped)
		}
		result.Fragments = append(result.Fragments, frags[i])
	}
	return result, nil
}

// Read parses one fragment by relative path.
func (s *Store) Read(rel string) (*Fragment, error) {
	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(rel)))
	if err != nil {
		return nil, fmt.Errorf("failed to read fragment %s: %w", rel, err)
	}
	return Parse(rel, data)
}

// Write stores a fragment at root/f.Path, creating directories as needed.
func (s *Store) Write(f *Fragment) error {
	if f.Path == "" {
		return fmt.Errorf("fragment has no path")
	}
	data, err := Encode(f)
	if err != nil {
		return err
	}
	return WriteFile(filepath.Join(s.root, filepath.FromSlash(f.Path)), data)
}

// WriteFile writes data atomically via a temp file and rename.
func WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
