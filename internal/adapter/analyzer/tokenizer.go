package analyzer

import (
	"strings"
	"unicode"
)

// Tokenizer splits image descriptions into content words. Stopwords and
// words that describe the medium ("photo", "picture") are dropped, plurals
// are folded and colour synonyms map onto a base colour name.
type Tokenizer struct {
	stopwords map[string]struct{}
	synonyms  map[string]string
}

// NewTokenizer creates a new Tokenizer.
func NewTokenizer() *Tokenizer {
	return &Tokenizer{
		stopwords: defaultStopwords(),
		synonyms:  colourSynonyms(),
	}
}

// Tokenize splits text into tokens.
func (t *Tokenizer) Tokenize(text string) []string {
	words := splitWords(text)
	tokens := make([]string, 0, len(words))

	for _, word := range words {
		word = strings.ToLower(word)
		if len(word) < 2 {
			continue
		}
		if _, isStop := t.stopwords[word]; isStop {
			continue
		}
		if base, ok := t.synonyms[word]; ok {
			tokens = append(tokens, base)
			continue
		}
		word = foldPlural(word)
		if base, ok := t.synonyms[word]; ok {
			word = base
		}
		tokens = append(tokens, word)
	}

	return tokens
}

// splitWords splits text into words using unicode word boundaries.
func splitWords(text string) []string {
	var words []string
	var current strings.Builder

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			current.WriteRune(r)
		} else {
			if current.Len() > 0 {
				words = append(words, current.String())
				current.Reset()
			}
		}
	}
	if current.Len() > 0 {
		words = append(words, current.String())
	}

	return words
}

// foldPlural strips regular English plural endings.
func foldPlural(word string) string {
	switch {
	case len(word) <= 3:
		return word
	case strings.HasSuffix(word, "ies"):
		return word[:len(word)-3] + "y"
	case strings.HasSuffix(word, "sses"),
		strings.HasSuffix(word, "ches"),
		strings.HasSuffix(word, "shes"),
		strings.HasSuffix(word, "xes"):
		return word[:len(word)-2]
	case strings.HasSuffix(word, "ss"), strings.HasSuffix(word, "us"):
		return word
	case strings.HasSuffix(word, "s"):
		return word[:len(word)-1]
	}
	return word
}

// defaultStopwords returns common English stopwords plus words that name
// the picture itself rather than its content.
func defaultStopwords() map[string]struct{} {
	stops := []string{
		"a", "an", "and", "are", "as", "at", "be", "by", "for",
		"from", "has", "he", "in", "is", "it", "its", "of", "on",
		"that", "the", "to", "was", "were", "will", "with", "this",
		"have", "had", "but", "not", "you", "your", "we", "our",
		"they", "their", "she", "her", "his", "if", "or", "so",
		"no", "can", "do", "does", "did", "been", "being", "some",
		"there", "these", "those", "into", "over", "under", "near",
		"image", "images", "photo", "photos", "photograph", "picture",
		"pictures", "pic", "shot", "showing", "shows",
	}
	m := make(map[string]struct{}, len(stops))
	for _, s := range stops {
		m[s] = struct{}{}
	}
	return m
}

// colourSynonyms maps shades onto the base colour names the local encoder
// understands.
func colourSynonyms() map[string]string {
	groups := map[string][]string{
		"red":    {"crimson", "scarlet", "ruby", "maroon", "cherry", "reddish"},
		"green":  {"lime", "emerald", "olive", "forest", "greenish", "leafy"},
		"blue":   {"navy", "azure", "cobalt", "sapphire", "teal", "bluish"},
		"yellow": {"golden", "gold", "lemon", "mustard", "amber"},
		"orange": {"tangerine", "rust", "copper"},
		"purple": {"violet", "lavender", "lilac", "plum", "mauve"},
		"pink":   {"rose", "salmon", "fuchsia"},
		"brown":  {"tan", "beige", "chocolate", "coffee", "wooden"},
		"white":  {"snowy", "ivory", "cream", "snow"},
		"black":  {"ebony", "jet", "night", "shadow"},
		"gray":   {"grey", "silver", "ash", "slate", "concrete"},
	}
	m := make(map[string]string)
	for base, shades := range groups {
		for _, s := range shades {
			m[s] = base
		}
	}
	return m
}
