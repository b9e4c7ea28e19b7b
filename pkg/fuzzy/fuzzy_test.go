package fuzzy

import "testing"

func TestLevenshteinDistance(t *testing.T) {
	tests := []struct {
		s1, s2 string
		want   int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"flaw", "lawn", 2},
		{"identical", "identical", 0},
		{"Case", "case", 0},            // normalized to lowercase
		{"john  smith", "john smith", 0}, // whitespace collapsed
	}
	for _, tt := range tests {
		if got := LevenshteinDistance(tt.s1, tt.s2); got != tt.want {
			t.Errorf("LevenshteinDistance(%q, %q) = %d, want %d", tt.s1, tt.s2, got, tt.want)
		}
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"", "", 1.0},
		{"same", "same", 1.0},
		{"Same", "same", 1.0},
		{"abcd", "", 0.0},
	}
	for _, tt := range tests {
		if got := Similarity(tt.a, tt.b); got != tt.want {
			t.Errorf("Similarity(%q, %q) = %f, want %f", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestSimilarityOrdering(t *testing.T) {
	closer := Similarity("jon smith", "john smith")
	farther := Similarity("jane doe", "john smith")
	if closer <= farther {
		t.Errorf("expected %f > %f", closer, farther)
	}
	if closer < 0.85 {
		t.Errorf("near-identical names should score high, got %f", closer)
	}
}
