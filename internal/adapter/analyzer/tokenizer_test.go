package analyzer

import (
	"testing"
)

func TestTokenizer_Tokenize(t *testing.T) {
	tok := NewTokenizer()

	tokens := tok.Tokenize("Two dogs playing on the beach")
	want := []string{"two", "dog", "playing", "beach"}
	if len(tokens) != len(want) {
		t.Fatalf("expected %v, got %v", want, tokens)
	}
	for i := range want {
		if tokens[i] != want[i] {
			t.Errorf("token %d: expected %q, got %q", i, want[i], tokens[i])
		}
	}
}

func TestTokenizer_StopwordRemoval(t *testing.T) {
	tok := NewTokenizer()

	tokens := tok.Tokenize("a picture of the quick brown fox")
	for _, token := range tokens {
		switch token {
		case "the", "picture", "of":
			t.Errorf("stopword %q should be removed, got %v", token, tokens)
		}
	}
	if len(tokens) != 3 {
		t.Errorf("expected 3 tokens, got %d: %v", len(tokens), tokens)
	}
}

func TestTokenizer_ShortWordRemoval(t *testing.T) {
	tok := NewTokenizer()

	tokens := tok.Tokenize("a I go x")
	for _, token := range tokens {
		if len(token) < 2 {
			t.Errorf("short word should be removed: %s", token)
		}
	}
}

func TestTokenizer_ColourSynonyms(t *testing.T) {
	tok := NewTokenizer()

	tests := map[string]string{
		"Crimson":  "red",
		"navy":     "blue",
		"grey":     "gray",
		"emeralds": "green",
		"golden":   "yellow",
		"red":      "red",
	}
	for input, want := range tests {
		tokens := tok.Tokenize(input)
		if len(tokens) != 1 || tokens[0] != want {
			t.Errorf("Tokenize(%q) = %v, want [%s]", input, tokens, want)
		}
	}
}

func TestTokenizer_EmptyInput(t *testing.T) {
	tok := NewTokenizer()

	tokens := tok.Tokenize("")
	if len(tokens) != 0 {
		t.Errorf("expected 0 tokens for empty input, got %d", len(tokens))
	}
}

func TestFoldPlural(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"dogs", "dog"},
		{"puppies", "puppy"},
		{"boxes", "box"},
		{"beaches", "beach"},
		{"glasses", "glass"},
		{"grass", "grass"},
		{"bus", "bus"},
		{"cactus", "cactus"},
		{"sky", "sky"},
	}

	for _, tt := range tests {
		if got := foldPlural(tt.input); got != tt.expected {
			t.Errorf("foldPlural(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestSplitWords(t *testing.T) {
	tests := []struct {
		input    string
		expected int
	}{
		{"hello world", 2},
		{"sun-set", 2},
		{"red,green;blue", 3},
		{"123numbers456", 1},
		{"  ", 0},
	}

	for _, tt := range tests {
		words := splitWords(tt.input)
		if len(words) != tt.expected {
			t.Errorf("splitWords(%q) = %d words, want %d: %v", tt.input, len(words), tt.expected, words)
		}
	}
}
