package sanitize

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Block is the character redacted spans are filled with.
const Block = "█"

// Candidate is a pattern match within the text a matcher was given.
type Candidate struct {
	Start    int // byte offset
	End      int // byte offset, exclusive
	Value    string
	Category Category
}

// Blocks returns n block characters.
func Blocks(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat(Block, n)
}

// redactionWidth is the number of blocks that replace value: the fixed width
// when the category defines one, otherwise the value's length in characters.
func redactionWidth(value string, fixed int) int {
	if fixed > 0 {
		return fixed
	}
	return utf8.RuneCountInString(value)
}

// redactCandidates returns text with every candidate replaced. Candidates
// must be non-overlapping and in ascending order, which is what
// FindAllStringIndex produces.
func redactCandidates(text string, cands []Candidate, fixed int) string {
	if len(cands) == 0 {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, c := range cands {
		b.WriteString(text[last:c.Start])
		b.WriteString(Blocks(redactionWidth(c.Value, fixed)))
		last = c.End
	}
	b.WriteString(text[last:])
	return b.String()
}

// redactWord replaces every case-insensitive, whole-word occurrence of word.
// Spaces inside word match any run of whitespace. A match is skipped when a
// letter, digit or underscore touches a word-character edge of it.
func redactWord(text, word string) string {
	word = strings.TrimSpace(word)
	if word == "" {
		return text
	}
	expr := strings.Join(strings.Fields(regexp.QuoteMeta(word)), `\s+`)
	re, err := regexp.Compile("(?i)" + expr)
	if err != nil {
		return text
	}

	var cands []Candidate
	for _, loc := range re.FindAllStringIndex(text, -1) {
		if !wholeWord(text, loc[0], loc[1]) {
			continue
		}
		m := text[loc[0]:loc[1]]
		cands = append(cands, Candidate{Start: loc[0], End: loc[1], Value: m, Category: CategoryName})
	}
	return redactCandidates(text, cands, 0)
}

// wholeWord reports whether text[start:end] is not glued to a neighbouring
// token. Edges that are punctuation ("A.J.") need no boundary.
func wholeWord(text string, start, end int) bool {
	if start > 0 {
		first, _ := utf8.DecodeRuneInString(text[start:])
		prev, _ := utf8.DecodeLastRuneInString(text[:start])
		if isTokenRune(first) && isTokenRune(prev) {
			return false
		}
	}
	if end < len(text) {
		last, _ := utf8.DecodeLastRuneInString(text[:end])
		next, _ := utf8.DecodeRuneInString(text[end:])
		if isTokenRune(last) && isTokenRune(next) {
			return false
		}
	}
	return true
}
