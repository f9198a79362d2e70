package index

import (
	"strings"
	"unicode"
)

// defaultStopWords are excluded from both indexed documents and queries.
// The list is intentionally small: ontology documents are short, and
// aggressive stopping hurts recall on property labels like "is part of".
var defaultStopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "has": true,
	"in": true, "is": true, "it": true, "of": true, "on": true, "or": true,
	"that": true, "the": true, "to": true, "was": true, "were": true,
	"with": true,
}

// Tokenize normalizes text into search tokens: camelCase identifiers are
// split into constituent words, everything is lowercased, punctuation
// separates tokens, and stopwords are removed. The same function runs at
// document-index time and at query time so both sides agree.
func Tokenize(text string) []string {
	var tokens []string
	for _, word := range splitWords(text) {
		for _, part := range SplitCamelCase(word) {
			part = strings.ToLower(part)
			if part == "" || defaultStopWords[part] {
				continue
			}
			tokens = append(tokens, part)
		}
	}
	return tokens
}

// Bigrams joins each adjacent token pair with an underscore. Bigrams are
// indexed alongside unigrams so multi-word labels ("plays for", "shirt
// number") match as a unit.
func Bigrams(tokens []string) []string {
	if len(tokens) < 2 {
		return nil
	}
	out := make([]string, 0, len(tokens)-1)
	for i := 0; i+1 < len(tokens); i++ {
		out = append(out, tokens[i]+"_"+tokens[i+1])
	}
	return out
}

// SplitCamelCase splits an identifier on lower-to-upper transitions and on
// upper runs followed by a lowercase letter, so "playsFor" → [plays, For]
// and "HTTPServer" → [HTTP, Server]. Single-case words pass through intact.
func SplitCamelCase(word string) []string {
	if word == "" {
		return nil
	}
	runes := []rune(word)
	var parts []string
	start := 0
	for i := 1; i < len(runes); i++ {
		splitHere := false
		if unicode.IsUpper(runes[i]) && unicode.IsLower(runes[i-1]) {
			splitHere = true
		} else if i+1 < len(runes) && unicode.IsUpper(runes[i]) && unicode.IsUpper(runes[i-1]) && unicode.IsLower(runes[i+1]) {
			splitHere = true
		}
		if splitHere {
			parts = append(parts, string(runes[start:i]))
			start = i
		}
	}
	parts = append(parts, string(runes[start:]))
	return parts
}

// splitWords breaks text on whitespace and punctuation, keeping underscores
// as separators too (snake_case identifiers split into words).
func splitWords(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
