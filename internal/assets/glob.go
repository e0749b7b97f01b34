// Package assets resolves source globs and moves files into the output tree.
package assets

import (
	"fmt"
	"os"
	pathpkg "path"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// Match is a file selected by a source glob.
type Match struct {
	// Path is the absolute file path.
	Path string
	// Rel is the slash-separated path relative to the glob base.
	Rel string
}

// Base returns the directory part of pattern that contains no glob syntax.
// Outputs mirror the source tree relative to this directory.
func Base(pattern string) string {
	base, _ := doublestar.SplitPattern(filepath.ToSlash(pattern))
	return filepath.FromSlash(base)
}

// Glob resolves pattern (relative to root unless absolute) to regular files.
// Matches are sorted by path. A missing base directory yields no matches.
func Glob(root, pattern string) ([]Match, error) {
	if !filepath.IsAbs(pattern) {
		pattern = filepath.Join(root, filepath.FromSlash(pattern))
	}
	base := Base(pattern)

	if _, err := os.Stat(base); os.IsNotExist(err) {
		return nil, nil
	}

	paths, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	sort.Strings(paths)

	matches := make([]Match, 0, len(paths))
	for _, p := range paths {
		rel, err := filepath.Rel(base, p)
		if err != nil {
			return nil, fmt.Errorf("failed to compute relative path for %s: %w", p, err)
		}
		matches = append(matches, Match{Path: p, Rel: filepath.ToSlash(rel)})
	}
	return matches, nil
}

// MatchPath reports whether path (absolute, or relative to root) is selected by pattern.
func MatchPath(root, pattern, path string) bool {
	if filepath.IsAbs(pattern) {
		ok, err := doublestar.PathMatch(filepath.Clean(pattern), filepath.Clean(path))
		return err == nil && ok
	}
	if filepath.IsAbs(path) {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return false
		}
		path = rel
	}
	ok, err := doublestar.Match(pathpkg.Clean(filepath.ToSlash(pattern)), pathpkg.Clean(filepath.ToSlash(path)))
	return err == nil && ok
}
