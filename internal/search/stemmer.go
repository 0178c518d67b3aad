package search

import (
	"strings"
	"unicode"

	"github.com/surgebase/porter2"
)

// Stemmer normalizes words so description matching tolerates inflection
// (create, creates, creating). Disabled stemmers return words unchanged.
type Stemmer struct {
	enabled    bool
	minLength  int
	exclusions map[string]bool // words never stemmed
}

// NewStemmer creates a porter2 stemmer. Words shorter than minLength are kept.
func NewStemmer(enabled bool, minLength int, exclusions ...string) *Stemmer {
	if minLength < 0 {
		minLength = 3
	}
	ex := make(map[string]bool, len(exclusions))
	for _, w := range exclusions {
		ex[strings.ToLower(w)] = true
	}
	return &Stemmer{enabled: enabled, minLength: minLength, exclusions: ex}
}

// IsEnabled reports whether stemming is applied
func (s *Stemmer) IsEnabled() bool {
	return s != nil && s.enabled
}

// Stem returns the stem of a lower-case word
func (s *Stemmer) Stem(word string) string {
	if !s.IsEnabled() || s.exclusions[word] || len(word) < s.minLength {
		return word
	}
	return porter2.Stem(word)
}

// StemSet splits text into words and returns the set of their stems
func (s *Stemmer) StemSet(text string) map[string]bool {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[s.Stem(w)] = true
	}
	return set
}
