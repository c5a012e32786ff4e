package search

import (
	"strings"
	"unicode"
)

// Words too common on company pages to signal a verbatim match.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "in": true, "that": true,
	"have": true, "it": true, "for": true, "not": true, "on": true, "with": true,
	"as": true, "you": true, "do": true, "at": true, "this": true, "but": true,
	"by": true, "from": true, "we": true, "our": true, "us": true, "or": true,
	"what": true, "who": true, "does": true,
}

// significantWords lower-cases text, splits it on anything that is not a
// letter or digit, and drops stop words.
func significantWords(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	kept := words[:0]
	for _, w := range words {
		if !stopWords[w] {
			kept = append(kept, w)
		}
	}
	return kept
}

// containsAllQueryWords reports whether every significant query word appears in text.
func containsAllQueryWords(text, query string) bool {
	queryWords := significantWords(query)
	if len(queryWords) == 0 {
		return false
	}

	present := make(map[string]bool)
	for _, w := range significantWords(text) {
		present[w] = true
	}
	for _, w := range queryWords {
		if !present[w] {
			return false
		}
	}
	return true
}
