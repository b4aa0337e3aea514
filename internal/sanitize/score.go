package sanitize

import (
	"math"
	"strings"
)

// MaxConfidence caps every reported confidence; no category is ever
// reported as certain.
const MaxConfidence = 0.99

// ContextScore returns the fraction of tokens related to the keyword set, in
// [0, 1]. A token is related when it contains a keyword or a keyword contains
// it, so partial and stemmed forms ("emailed", "num") count. Each token
// counts at most once.
func ContextScore(tokens, keywords []string) float64 {
	if len(tokens) == 0 || len(keywords) == 0 {
		return 0
	}
	hits := 0
	for _, tok := range tokens {
		for _, kw := range keywords {
			if strings.Contains(tok, kw) || strings.Contains(kw, tok) {
				hits++
				break
			}
		}
	}
	return clamp(float64(hits)/float64(len(tokens)), 0, 1)
}

// clampConfidence maps v into [0, MaxConfidence]. NaN becomes 0.
func clampConfidence(v float64) float64 {
	return clamp(v, 0, MaxConfidence)
}

func clamp(v, lo, hi float64) float64 {
	switch {
	case math.IsNaN(v):
		return lo
	case v < lo:
		return lo
	case v > hi:
		return hi
	}
	return v
}
