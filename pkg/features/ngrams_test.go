package features

import (
	"reflect"
	"testing"
)

func TestNGramsUnigrams(t *testing.T) {
	got := NGrams("cat sat on the mat", 1)
	want := []string{"cat", "sat", "on", "the", "mat"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("NGrams(1) = %v, expected %v", got, want)
	}
}

func TestNGramsBigrams(t *testing.T) {
	got := NGrams("cat sat on the mat", 2)
	want := []string{
		"cat", "sat", "on", "the", "mat",
		"cat sat", "sat on", "on the", "the mat",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("NGrams(2) = %v, expected %v", got, want)
	}
}

func TestNGramsEdgeCases(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		gramSize int
		expected []string
	}{
		{
			name:     "Empty text",
			text:     "",
			gramSize: 3,
			expected: []string{},
		},
		{
			name:     "Whitespace only",
			text:     " \t\n ",
			gramSize: 2,
			expected: []string{},
		},
		{
			name:     "Fewer tokens than gram size",
			text:     "hello world",
			gramSize: 3,
			expected: []string{"hello", "world", "hello world"},
		},
		{
			name:     "Duplicates preserved",
			text:     "buy buy buy",
			gramSize: 2,
			expected: []string{"buy", "buy", "buy", "buy buy", "buy buy"},
		},
		{
			name:     "Non-positive gram size",
			text:     "a b",
			gramSize: 0,
			expected: []string{"a", "b"},
		},
		{
			name:     "Irregular spacing",
			text:     "  a\tb   c ",
			gramSize: 3,
			expected: []string{"a", "b", "c", "a b", "b c", "a b c"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NGrams(tt.text, tt.gramSize)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("NGrams(%q, %d) = %v, expected %v", tt.text, tt.gramSize, got, tt.expected)
			}
		})
	}
}

func TestCounts(t *testing.T) {
	order, tf := Counts([]string{"b", "a", "b", "c", "b"})

	if want := []string{"b", "a", "c"}; !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, expected %v", order, want)
	}
	if tf["b"] != 3 || tf["a"] != 1 || tf["c"] != 1 {
		t.Errorf("unexpected counts: %v", tf)
	}
}
