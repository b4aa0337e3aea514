package sanitize

import "unicode/utf8"

// find returns every non-overlapping match of the spec's pattern.
func (p *PatternSpec) find(text string) []Candidate {
	locs := p.Pattern.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}
	out := make([]Candidate, len(locs))
	for i, loc := range locs {
		out[i] = Candidate{
			Start:    loc[0],
			End:      loc[1],
			Value:    text[loc[0]:loc[1]],
			Category: p.Category,
		}
	}
	return out
}

func avgRuneLength(cands []Candidate) float64 {
	if len(cands) == 0 {
		return 0
	}
	total := 0
	for _, c := range cands {
		total += utf8.RuneCountInString(c.Value)
	}
	return float64(total) / float64(len(cands))
}

func scanEmail(p *PatternSpec, text string, tokens []string) (string, *finding) {
	cands := p.find(text)
	if len(cands) == 0 {
		return text, nil
	}
	score := ContextScore(tokens, p.Keywords)
	return redactCandidates(text, cands, p.FixedWidth), &finding{
		confidence: p.Confidence(score),
		analysis: EmailAnalysis{
			Matches:      len(cands),
			ContextScore: score,
			AvgLength:    avgRuneLength(cands),
		},
	}
}

func scanPhone(p *PatternSpec, text string, tokens []string) (string, *finding) {
	cands := p.find(text)
	if len(cands) == 0 {
		return text, nil
	}
	score := ContextScore(tokens, p.Keywords)
	formats := make([]PhoneFormat, len(cands))
	for i, c := range cands {
		formats[i] = PhoneFormatOf(c.Value)
	}
	return redactCandidates(text, cands, p.FixedWidth), &finding{
		confidence: p.Confidence(score),
		analysis: PhoneAnalysis{
			Matches:      len(cands),
			ContextScore: score,
			Formats:      formats,
		},
	}
}

// scanNationalID redacts every shape match. Validity is reported, not
// enforced.
func scanNationalID(p *PatternSpec, text string, tokens []string) (string, *finding) {
	cands := p.find(text)
	if len(cands) == 0 {
		return text, nil
	}
	score := ContextScore(tokens, p.Keywords)
	validated := make([]bool, len(cands))
	for i, c := range cands {
		validated[i] = NationalIDValid(c.Value)
	}
	return redactCandidates(text, cands, p.FixedWidth), &finding{
		confidence: p.Confidence(score),
		analysis: NationalIDAnalysis{
			Matches:      len(cands),
			ContextScore: score,
			Validated:    validated,
		},
	}
}

// scanPaymentCard keeps only Luhn-valid matches; the rest stay in the text.
func scanPaymentCard(p *PatternSpec, text string, tokens []string) (string, *finding) {
	var valid []Candidate
	for _, c := range p.find(text) {
		if LuhnValid(c.Value) {
			valid = append(valid, c)
		}
	}
	if len(valid) == 0 {
		return text, nil
	}
	score := ContextScore(tokens, p.Keywords)
	brands := make([]CardBrand, len(valid))
	for i, c := range valid {
		brands[i] = CardBrandOf(c.Value)
	}
	return redactCandidates(text, valid, p.FixedWidth), &finding{
		confidence: p.Confidence(score),
		analysis: PaymentCardAnalysis{
			Matches:      len(valid),
			ContextScore: score,
			CardTypes:    brands,
		},
	}
}

func scanAddress(p *PatternSpec, text string, tokens []string) (string, *finding) {
	cands := p.find(text)
	if len(cands) == 0 {
		return text, nil
	}
	score := ContextScore(tokens, p.Keywords)
	return redactCandidates(text, cands, p.FixedWidth), &finding{
		confidence: p.Confidence(score),
		analysis: AddressAnalysis{
			Matches:      len(cands),
			ContextScore: score,
			AvgLength:    avgRuneLength(cands),
		},
	}
}

type patternScanner func(p *PatternSpec, text string, tokens []string) (string, *finding)

var patternScanners = map[Category]patternScanner{
	CategoryEmail:       scanEmail,
	CategoryPhone:       scanPhone,
	CategoryNationalID:  scanNationalID,
	CategoryPaymentCard: scanPaymentCard,
	CategoryAddress:     scanAddress,
}
