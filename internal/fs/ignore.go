package fs

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// rule is one line of an ignore file.
//
//	*.log        basename glob, any depth
//	build/*.o    slash-separated glob against the path relative to the root
//	cache/       trailing slash: directories only
//	!keep.log    negation: a later rule re-includes what an earlier one ignored
type rule struct {
	glob     string
	anchored bool
	dirOnly  bool
	negate   bool
}

// IgnoreMatcher decides which relative paths an import walk skips. Rules are
// evaluated in order and the last matching rule wins.
type IgnoreMatcher struct {
	rules []rule
}

// NewIgnoreMatcher parses raw ignore lines. Blank lines and lines starting
// with '#' are skipped, as are globs that path.Match would reject.
func NewIgnoreMatcher(lines []string) *IgnoreMatcher {
	var rules []rule
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		var r rule
		if strings.HasPrefix(line, "!") {
			r.negate = true
			line = line[1:]
		}
		if strings.HasSuffix(line, "/") {
			r.dirOnly = true
			line = strings.TrimSuffix(line, "/")
		}
		line = strings.TrimPrefix(line, "/")
		if line == "" {
			continue
		}
		if _, err := path.Match(line, ""); err != nil {
			continue
		}
		r.glob = line
		r.anchored = strings.Contains(line, "/")
		rules = append(rules, r)
	}
	return &IgnoreMatcher{rules: rules}
}

// Match reports whether relativePath (relative to the walk root, OS
// separators) is ignored. isDir selects whether directory-only rules apply.
func (m *IgnoreMatcher) Match(relativePath string, isDir bool) bool {
	if relativePath == "" {
		return false
	}
	rel := filepath.ToSlash(relativePath)
	base := path.Base(rel)

	ignored := false
	for _, r := range m.rules {
		if r.dirOnly && !isDir {
			continue
		}
		subject := base
		if r.anchored {
			subject = rel
		}
		if ok, _ := path.Match(r.glob, subject); ok {
			ignored = !r.negate
		}
	}
	return ignored
}

// ParseIgnoreFile reads an ignore file and returns its raw lines. A missing
// file yields no lines and no error.
func ParseIgnoreFile(name string) ([]string, error) {
	f, err := os.Open(name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return lines, nil
}
