package session

import (
	"fmt"

	"github.com/gobwas/glob"
)

// SourceMatcher decides which plan sources may be accepted automatically.
type SourceMatcher struct {
	allowed  []glob.Glob
	excluded []glob.Glob
}

// NewSourceMatcher compiles the allow and exclude patterns.
func NewSourceMatcher(allowed, excluded []string) (*SourceMatcher, error) {
	m := &SourceMatcher{}

	for _, pattern := range allowed {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid source pattern '%s': %w", pattern, err)
		}
		m.allowed = append(m.allowed, g)
	}

	for _, pattern := range excluded {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern '%s': %w", pattern, err)
		}
		m.excluded = append(m.excluded, g)
	}

	return m, nil
}

// Matches reports whether source is allowed. Exclusions take precedence, and
// an empty allow list allows everything.
func (m *SourceMatcher) Matches(source string) bool {
	for _, pattern := range m.excluded {
		if pattern.Match(source) {
			return false
		}
	}

	if len(m.allowed) == 0 {
		return true
	}

	for _, pattern := range m.allowed {
		if pattern.Match(source) {
			return true
		}
	}
	return false
}
