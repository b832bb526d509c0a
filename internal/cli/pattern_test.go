package cli

import (
	"errors"
	"reflect"
	"testing"
)

func TestExpandPattern(t *testing.T) {
	titles := []string{
		"todo",
		"todo-old",
		"work/meeting",
		"work/plan",
		"shopping [weekly]",
		"caf\u00e9",
	}

	tests := []struct {
		name     string
		pattern  string
		expected []string
		wantErr  bool
	}{
		{
			name:     "exact match",
			pattern:  "todo",
			expected: []string{"todo"},
		},
		{
			name:     "surrounding space",
			pattern:  "  todo ",
			expected: []string{"todo"},
		},
		{
			name:     "wildcard suffix",
			pattern:  "todo*",
			expected: []string{"todo", "todo-old"},
		},
		{
			name:     "wildcard after slash",
			pattern:  "work/*",
			expected: []string{"work/meeting", "work/plan"},
		},
		{
			name:     "star does not cross slash",
			pattern:  "*",
			expected: []string{"todo", "todo-old", "shopping [weekly]", "caf\u00e9"},
		},
		{
			name:     "question mark",
			pattern:  "work/pla?",
			expected: []string{"work/plan"},
		},
		{
			name:     "title with brackets is exact",
			pattern:  "shopping [weekly]",
			expected: []string{"shopping [weekly]"},
		},
		{
			name:     "decomposed input matches composed title",
			pattern:  "cafe\u0301",
			expected: []string{"caf\u00e9"},
		},
		{
			name:    "no match glob",
			pattern: "nothing*",
			wantErr: true,
		},
		{
			name:    "no match exact",
			pattern: "nothing",
			wantErr: true,
		},
		{
			name:    "invalid pattern",
			pattern: "[",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ExpandPattern(tt.pattern, titles)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %v", result)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(result, tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestExpandPatternNoMatchIsSentinel(t *testing.T) {
	_, err := ExpandPattern("x", nil)
	if !errors.Is(err, ErrNoMatch) {
		t.Errorf("expected ErrNoMatch, got %v", err)
	}
}

func TestExpandPatterns(t *testing.T) {
	titles := []string{"a1", "a2", "b1"}

	result, err := ExpandPatterns([]string{"a*", "a1", "b1"}, titles)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := []string{"a1", "a2", "b1"}
	if !reflect.DeepEqual(result, expected) {
		t.Errorf("expected %v, got %v", expected, result)
	}

	if _, err := ExpandPatterns([]string{"a*", "zzz"}, titles); err == nil {
		t.Error("expected error when one pattern fails")
	}
}

func TestNormalizeTitle(t *testing.T) {
	if got := NormalizeTitle(" cafe\u0301 \n"); got != "caf\u00e9" {
		t.Errorf("got %q", got)
	}
}
