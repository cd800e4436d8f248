package patterns

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gobwas/glob"
)

// Matcher matches paths against glob ignore patterns
type Matcher struct {
	ignorePatterns []glob.Glob
	sources        []string
	mu             sync.RWMutex
}

// NewMatcher creates a new pattern matcher
func NewMatcher() *Matcher {
	return &Matcher{
		ignorePatterns: make([]glob.Glob, 0),
	}
}

// Compile creates a matcher for the given ignore patterns
func Compile(patterns []string) (*Matcher, error) {
	m := NewMatcher()
	if err := m.SetIgnorePatterns(patterns); err != nil {
		return nil, err
	}
	return m, nil
}

// SetIgnorePatterns replaces the ignore patterns.
// Blank lines and lines starting with # are skipped, so the contents of an
// ignore file can be passed line by line.
func (m *Matcher) SetIgnorePatterns(patterns []string) error {
	compiled := make([]glob.Glob, 0, len(patterns))
	sources := make([]string, 0, len(patterns))
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" || strings.HasPrefix(pattern, "#") {
			continue
		}

		// Normalize pattern: use forward slashes
		pattern = filepath.ToSlash(pattern)

		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return fmt.Errorf("compile ignore pattern %q: %w", pattern, err)
		}
		compiled = append(compiled, g)
		sources = append(sources, pattern)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.ignorePatterns = compiled
	m.sources = sources
	return nil
}

// Patterns returns the active ignore patterns
func (m *Matcher) Patterns() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.sources...)
}

// Len returns the number of active ignore patterns
func (m *Matcher) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ignorePatterns)
}

// IsIgnored checks if a path matches any ignore pattern, either as a whole
// or by its final component.
func (m *Matcher) IsIgnored(path string) bool {
	if m == nil {
		return false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	// Normalize path: use forward slashes
	normalizedPath := filepath.ToSlash(path)
	base := filepath.Base(path)

	for _, pattern := range m.ignorePatterns {
		if pattern.Match(normalizedPath) {
			return true
		}
		// Also check just the filename
		if pattern.Match(base) {
			return true
		}
	}

	return false
}
