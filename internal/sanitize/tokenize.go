package sanitize

import (
	"strings"
	"unicode"
)

// Tokenize lowercases text and splits it into word tokens. A token is a run
// of letters, digits or underscores; everything else separates tokens.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !isTokenRune(r)
	})
}

func isTokenRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
