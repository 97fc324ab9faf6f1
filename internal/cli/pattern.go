// Package cli provides shared utilities for CLI commands.
package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrNoMatch indicates a glob pattern matched no key.
var ErrNoMatch = errors.New("no keys match pattern")

// IsPattern reports whether s contains glob characters.
func IsPattern(s string) bool {
	return strings.ContainsAny(s, "*?[")
}

// ExpandPattern expands a glob pattern against available key names.
// A pattern without glob characters is returned as is, even when no such key
// exists, so that the caller can report every missing name at once.
func ExpandPattern(pattern string, available []string) ([]string, error) {
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern '%s': %w", pattern, err)
	}

	if !IsPattern(pattern) {
		return []string{pattern}, nil
	}

	var matches []string
	for _, name := range available {
		if ok, _ := filepath.Match(pattern, name); ok {
			matches = append(matches, name)
		}
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w '%s'", ErrNoMatch, pattern)
	}
	return matches, nil
}

// ExpandPatterns expands multiple patterns against available key names.
// Returns unique names preserving order of first match.
func ExpandPatterns(patterns []string, available []string) ([]string, error) {
	seen := make(map[string]bool)
	var result []string

	for _, pattern := range patterns {
		matches, err := ExpandPattern(pattern, available)
		if err != nil {
			return nil, err
		}
		for _, name := range matches {
			if !seen[name] {
				seen[name] = true
				result = append(result, name)
			}
		}
	}
	return result, nil
}

// Filter returns the names matching pattern. An empty pattern matches all.
func Filter(pattern string, names []string) ([]string, error) {
	if pattern == "" {
		return names, nil
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern '%s': %w", pattern, err)
	}
	out := make([]string, 0, len(names))
	for _, name := range names {
		if ok, _ := filepath.Match(pattern, name); ok {
			out = append(out, name)
		}
	}
	return out, nil
}
