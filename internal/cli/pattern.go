// Package cli provides shared utilities for CLI commands.
package cli

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ErrNoMatch is returned when a title or pattern matches no note.
var ErrNoMatch = errors.New("no matching note")

// NormalizeTitle trims surrounding whitespace and converts a typed title to
// NFC, so "café" typed on different keyboards names the same note.
func NormalizeTitle(title string) string {
	return norm.NFC.String(strings.TrimSpace(title))
}

// ExpandPattern expands a glob pattern against note titles.
// A title equal to the pattern always wins, so titles containing glob
// characters stay addressable. Otherwise, if the pattern contains *?[ it is
// matched with path.Match rules ('*' does not cross '/').
func ExpandPattern(pattern string, titles []string) ([]string, error) {
	pattern = NormalizeTitle(pattern)

	for _, title := range titles {
		if norm.NFC.String(title) == pattern {
			return []string{title}, nil
		}
	}

	if !strings.ContainsAny(pattern, "*?[") {
		return nil, fmt.Errorf("%w: '%s'", ErrNoMatch, pattern)
	}
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern '%s': %w", pattern, err)
	}

	var matches []string
	for _, title := range titles {
		if ok, _ := path.Match(pattern, norm.NFC.String(title)); ok {
			matches = append(matches, title)
		}
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: pattern '%s'", ErrNoMatch, pattern)
	}
	return matches, nil
}

// ExpandPatterns expands multiple patterns against note titles.
// Returns unique matching titles preserving order of first match.
func ExpandPatterns(patterns []string, titles []string) ([]string, error) {
	seen := make(map[string]bool)
	var result []string

	for _, pattern := range patterns {
		matches, err := ExpandPattern(pattern, titles)
		if err != nil {
			return nil, err
		}
		for _, title := range matches {
			if !seen[title] {
				seen[title] = true
				result = append(result, title)
			}
		}
	}

	return result, nil
}
