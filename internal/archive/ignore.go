package archive

import (
	"path/filepath"
	"strings"
)

// ignorePattern is a parsed exclusion pattern with its matching strategy.
type ignorePattern struct {
	pattern   string
	matchPath bool // true = match against relative path; false = basename only
}

// Matcher checks relative file paths against exclusion patterns from
// config. VCS internals and the snapshot directory are excluded by the
// tree walk itself, not by patterns, so they cannot be un-ignored.
type Matcher struct {
	patterns []ignorePattern
}

// NewMatcher creates a Matcher from raw pattern strings. Blank lines
// and lines starting with '#' are skipped. Patterns containing '/'
// match against the full relative path; others against the basename.
func NewMatcher(rawPatterns []string) *Matcher {
	var patterns []ignorePattern
	for _, raw := range rawPatterns {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		patterns = append(patterns, ignorePattern{
			pattern:   raw,
			matchPath: strings.Contains(raw, "/"),
		})
	}
	return &Matcher{patterns: patterns}
}

// Match reports whether the given path, relative to the mirror root,
// should be excluded from hashing and archiving.
func (m *Matcher) Match(relativePath string) bool {
	if len(m.patterns) == 0 {
		return false
	}

	normalized := filepath.ToSlash(relativePath)
	basename := filepath.Base(relativePath)

	for _, p := range m.patterns {
		var matched bool
		var err error
		if p.matchPath {
			matched, err = filepath.Match(p.pattern, normalized)
		} else {
			matched, err = filepath.Match(p.pattern, basename)
		}
		if err != nil {
			// Bad pattern, skip rather than crash.
			continue
		}
		if matched {
			return true
		}
	}
	return false
}
