package sanitize

import (
	"context"
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	firstNameConfidence = 0.85
	fullNameConfidence  = 0.95
	personConfidence    = 0.80
)

type nameHit struct {
	name       string
	confidence float64
}

// cleanWord strips everything but letters, digits and underscores.
func cleanWord(w string) string {
	return strings.Map(func(r rune) rune {
		if isTokenRune(r) {
			return r
		}
		return -1
	}, w)
}

// listHits looks words up in the name table: every first name is a hit, and
// every first name directly followed by a last name is a second, stronger
// full-name hit.
func listHits(names *NameTable, text string) []nameHit {
	fields := strings.Fields(text)
	words := make([]string, len(fields))
	for i, f := range fields {
		words[i] = cleanWord(f)
	}

	var hits []nameHit
	for _, w := range words {
		if w != "" && names.IsFirst(w) {
			hits = append(hits, nameHit{name: w, confidence: firstNameConfidence})
		}
	}
	for i := 0; i+1 < len(words); i++ {
		if words[i] == "" || words[i+1] == "" {
			continue
		}
		if names.IsFirst(words[i]) && names.IsLast(words[i+1]) {
			hits = append(hits, nameHit{
				name:       words[i] + " " + words[i+1],
				confidence: fullNameConfidence,
			})
		}
	}
	return hits
}

// scanNames combines name-list hits with person extraction. When extract is
// false only the list lookup runs.
func (e *Engine) scanNames(ctx context.Context, text string, extract bool) (string, *finding) {
	hits := listHits(e.names, text)
	listMatches := len(hits)

	var people []string
	if extract {
		for _, sp := range personSpans(ctx, text, e.classifiers, e.budget) {
			p := text[sp.Start:sp.End]
			people = append(people, p)
			hits = append(hits, nameHit{name: p, confidence: personConfidence})
		}
	}
	if len(hits) == 0 {
		return text, nil
	}

	detected := make([]string, len(hits))
	total := 0.0
	for i, h := range hits {
		detected[i] = h.name
		total += h.confidence
	}
	conf := clampConfidence(total / float64(len(hits)))

	return redactNames(text, detected), &finding{
		confidence: conf,
		analysis: NameAnalysis{
			DetectedNames: detected,
			People:        people,
			ListMatches:   listMatches,
			Confidence:    conf,
		},
	}
}

// redactNames blanks every whole-word occurrence of each name. Longer names
// go first so a full name is replaced as one run before its parts.
func redactNames(text string, names []string) string {
	seen := make(map[string]struct{}, len(names))
	var uniq []string
	for _, n := range names {
		key := strings.ToLower(n)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		uniq = append(uniq, n)
	}
	sort.SliceStable(uniq, func(i, j int) bool {
		return utf8.RuneCountInString(uniq[i]) > utf8.RuneCountInString(uniq[j])
	})
	for _, n := range uniq {
		text = redactWord(text, n)
	}
	return text
}
