package sanitize

import (
	"context"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// maxPersonWords bounds how many capitalized words one mention may span.
const maxPersonWords = 3

var personWordRe = regexp.MustCompile(`\p{L}[\p{L}'’-]*`)

var honorifics = map[string]struct{}{
	"mr": {}, "mrs": {}, "ms": {}, "miss": {}, "mx": {},
	"dr": {}, "prof": {}, "sir": {}, "madam": {}, "dame": {},
}

// nonNameWords are capitalized words that commonly follow a name without
// being part of it.
var nonNameWords = map[string]struct{}{
	"i": {}, "the": {}, "and": {}, "or": {}, "but": {}, "is": {}, "was": {},
	"at": {}, "in": {}, "on": {}, "of": {}, "to": {}, "my": {}, "from": {},
	"call": {}, "email": {}, "phone": {}, "street": {}, "avenue": {}, "road": {},
	"monday": {}, "tuesday": {}, "wednesday": {}, "thursday": {}, "friday": {},
	"saturday": {}, "sunday": {},
}

// HeuristicClassifier finds person mentions without any external service. A
// mention is either an honorific followed by capitalized words ("Dr. Jane
// Doe") or a known first name followed by capitalized words ("John Smith").
type HeuristicClassifier struct {
	names *NameTable
}

// NewHeuristicClassifier returns a classifier that recognizes first names
// from names.
func NewHeuristicClassifier(names *NameTable) *HeuristicClassifier {
	return &HeuristicClassifier{names: names}
}

func (h *HeuristicClassifier) Name() string { return "heuristic" }

func (h *HeuristicClassifier) Classify(ctx context.Context, text string) ([]Span, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	locs := personWordRe.FindAllStringIndex(text, -1)
	word := func(i int) string { return text[locs[i][0]:locs[i][1]] }

	var spans []Span
	for i := 0; i < len(locs); i++ {
		w := word(i)
		var start int
		switch {
		case isHonorific(w):
			if i+1 >= len(locs) || !wordsAdjacent(text, locs[i], locs[i+1], true) || !h.isNameWord(word(i+1)) {
				continue
			}
			i++
			start = locs[i][0]
		case isCapitalized(w) && h.names.IsFirst(w):
			if i+1 >= len(locs) || !wordsAdjacent(text, locs[i], locs[i+1], false) || !h.isNameWord(word(i+1)) {
				continue
			}
			start = locs[i][0]
		default:
			continue
		}
		end := locs[i][1]
		for n := 1; n < maxPersonWords && i+1 < len(locs); n++ {
			if !wordsAdjacent(text, locs[i], locs[i+1], false) || !h.isNameWord(word(i+1)) {
				break
			}
			i++
			end = locs[i][1]
		}
		spans = append(spans, Span{Start: start, End: end, Label: LabelPerson, Score: 0.8})
	}
	return spans, nil
}

func isHonorific(w string) bool {
	_, ok := honorifics[strings.ToLower(w)]
	return ok
}

func (h *HeuristicClassifier) isNameWord(w string) bool {
	if utf8.RuneCountInString(w) < 2 || !isCapitalized(w) || isHonorific(w) {
		return false
	}
	_, stop := nonNameWords[strings.ToLower(w)]
	return !stop
}

// isCapitalized reports an upper-case first letter followed by at least one
// lower-case letter, which excludes acronyms.
func isCapitalized(w string) bool {
	first, size := utf8.DecodeRuneInString(w)
	if !unicode.IsUpper(first) {
		return false
	}
	for _, r := range w[size:] {
		if unicode.IsLower(r) {
			return true
		}
	}
	return false
}

// wordsAdjacent reports whether only spaces separate two word locations. With
// allowDot, a single period may precede the spaces ("Dr. Smith").
func wordsAdjacent(text string, a, b []int, allowDot bool) bool {
	gap := text[a[1]:b[0]]
	if allowDot {
		gap = strings.TrimPrefix(gap, ".")
	}
	if gap == "" {
		return false
	}
	return strings.Trim(gap, " \t") == ""
}
