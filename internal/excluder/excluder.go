package excluder

import (
	"path/filepath"

	"github.com/gobwas/glob"
)

// Excluder matches file paths against a list of glob patterns.
type Excluder struct {
	patterns []string
	globs    []glob.Glob
}

// New creates an Excluder from a list of glob patterns.
// Patterns use '/' as the path separator.
func New(patterns []string) (*Excluder, error) {
	var globs []glob.Glob
	var kept []string
	for _, pat := range patterns {
		if pat == "" {
			continue
		}
		g, err := glob.Compile(pat, '/')
		if err != nil {
			return nil, err
		}
		globs = append(globs, g)
		kept = append(kept, pat)
	}
	return &Excluder{patterns: kept, globs: globs}, nil
}

// IsExcluded reports whether rel, a path relative to a watched root, matches
// any pattern either as a whole or by its base name.
func (e *Excluder) IsExcluded(rel string) bool {
	if e == nil {
		return false
	}
	slashed := filepath.ToSlash(rel)
	base := filepath.Base(rel)
	for _, g := range e.globs {
		if g.Match(slashed) || g.Match(base) {
			return true
		}
	}
	return false
}

// Patterns returns the compiled patterns.
func (e *Excluder) Patterns() []string {
	if e == nil {
		return nil
	}
	return append([]string(nil), e.patterns...)
}
