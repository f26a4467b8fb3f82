package ui

import (
	"reflect"
	"testing"
)

func TestLevenshteinDistance(t *testing.T) {
	tests := []struct {
		s1       string
		s2       string
		expected int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"abc", "", 3},
		{"abc", "abc", 0},
		{"kitten", "sitting", 3},
		{"saturday", "sunday", 3},
		{"Person", "Persn", 1},
		{"Employee", "Employe", 1},
		{"cat", "tag", 2},
	}

	for _, tt := range tests {
		t.Run(tt.s1+"_"+tt.s2, func(t *testing.T) {
			result := LevenshteinDistance(tt.s1, tt.s2)
			if result != tt.expected {
				t.Errorf("LevenshteinDistance(%q, %q) = %d; want %d", tt.s1, tt.s2, result, tt.expected)
			}
		})
	}
}

func TestFindSimilar(t *testing.T) {
	candidates := []string{"Person", "Employee", "Car", "Tag", "Dog"}

	tests := []struct {
		name     string
		target   string
		opts     *FuzzyMatchOptions
		expected []string
	}{
		{
			name:     "exact match",
			target:   "Person",
			expected: []string{"Person"},
		},
		{
			name:     "one character off",
			target:   "Persn",
			expected: []string{"Person"},
		},
		{
			name:     "closest first",
			target:   "Cat",
			expected: []string{"Car", "Tag", "Dog"},
		},
		{
			name:     "max suggestions",
			target:   "Cat",
			opts:     &FuzzyMatchOptions{MaxSuggestions: 1},
			expected: []string{"Car"},
		},
		{
			name:     "case sensitive",
			target:   "car",
			opts:     &FuzzyMatchOptions{MaxDistance: 1, CaseSensitive: true},
			expected: []string{"Car"},
		},
		{
			name:     "no match",
			target:   "Invoice",
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FindSimilar(tt.target, candidates, tt.opts)
			if !reflect.DeepEqual(result, tt.expected) {
				t.Errorf("FindSimilar(%q) = %v; want %v", tt.target, result, tt.expected)
			}
		})
	}
}

func TestFindSimilarEmptyCandidates(t *testing.T) {
	if result := FindSimilar("Person", nil, nil); len(result) != 0 {
		t.Errorf("expected no suggestions, got %v", result)
	}
}
