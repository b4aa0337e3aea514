// Package sanitize detects personally identifiable information in free-form
// text and produces a redacted copy with every detected span replaced by
// block characters.
//
// Six matchers run in a fixed order (email, phone, name, national ID,
// payment card, address). Each one sees the output of the previous one, so a
// span redacted early cannot be matched again later.
//
// Usage:
//
//	eng, err := sanitize.NewEngine()
//	rep := eng.Detect(ctx, text, sanitize.DefaultSettings())
//	fmt.Println(rep.Sanitized)
package sanitize

import (
	"context"
	"sort"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
)

// defaultClassifierBudget is the maximum time Detect waits for person
// extractors. Extractors that miss the deadline are skipped; their results
// are discarded.
const defaultClassifierBudget = 30 * time.Second

// runClassifiers runs all Classify calls concurrently and merges results in
// classifier order. Returns after all classifiers finish, the budget elapses,
// or ctx is done.
func runClassifiers(ctx context.Context, text string, classifiers []Classifier, budget time.Duration) []Span {
	if len(classifiers) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	type result struct {
		idx   int
		spans []Span
	}
	ch := make(chan result, len(classifiers))

	for i, clf := range classifiers {
		go func(i int, c Classifier) {
			spans, err := c.Classify(ctx, text)
			if err != nil {
				log.Warn().Err(err).Str("classifier", classifierName(c)).Msg("sanitize: classifier error")
				spans = nil
			}
			ch <- result{idx: i, spans: spans}
		}(i, clf)
	}

	byIdx := make([][]Span, len(classifiers))
wait:
	for range classifiers {
		select {
		case r := <-ch:
			byIdx[r.idx] = r.spans
		case <-ctx.Done():
			log.Warn().Msg("sanitize: classifier budget exceeded, using partial results")
			break wait
		}
	}

	var all []Span
	for _, spans := range byIdx {
		all = append(all, spans...)
	}
	return all
}

// personSpans runs the extractors and returns valid, non-overlapping spans
// in ascending order.
func personSpans(ctx context.Context, text string, classifiers []Classifier, budget time.Duration) []Span {
	spans := validSpans(text, runClassifiers(ctx, text, classifiers, budget))
	if len(spans) == 0 {
		return nil
	}
	sortSpansDesc(spans)
	spans = deduplicateSpans(spans)
	for i, j := 0, len(spans)-1; i < j; i, j = i+1, j-1 {
		spans[i], spans[j] = spans[j], spans[i]
	}
	return spans
}

// validSpans filters out spans with invalid offsets, spans over already
// redacted text, and spans that land in the middle of a larger word.
func validSpans(text string, spans []Span) []Span {
	out := make([]Span, 0, len(spans))
	for _, sp := range spans {
		if sp.Start < 0 || sp.End > len(text) || sp.Start >= sp.End {
			continue
		}
		if !isRuneBoundary(text, sp.Start) || !isRuneBoundary(text, sp.End) {
			continue
		}
		if !hasLetter(text[sp.Start:sp.End]) {
			continue
		}
		// If the character immediately before or after the span is a word
		// character, it is a substring of a longer token.
		if r, _ := utf8.DecodeLastRuneInString(text[:sp.Start]); sp.Start > 0 && isTokenRune(r) {
			continue
		}
		if r, _ := utf8.DecodeRuneInString(text[sp.End:]); sp.End < len(text) && isTokenRune(r) {
			continue
		}
		out = append(out, sp)
	}
	return out
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

// deduplicateSpans removes overlapping spans (assumes sorted descending by Start).
func deduplicateSpans(spans []Span) []Span {
	out := make([]Span, 0, len(spans))
	lastStart := -1
	for _, sp := range spans {
		if lastStart == -1 || sp.End <= lastStart {
			out = append(out, sp)
			lastStart = sp.Start
		}
	}
	return out
}

func isRuneBoundary(s string, i int) bool {
	if i == 0 || i == len(s) {
		return true
	}
	return s[i]&0xC0 != 0x80
}

// sortSpansDesc orders by Start descending; among equal starts the longer
// span comes first so it survives deduplication.
func sortSpansDesc(spans []Span) {
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].Start != spans[j].Start {
			return spans[i].Start > spans[j].Start
		}
		return spans[i].End > spans[j].End
	})
}
