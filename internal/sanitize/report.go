package sanitize

// Report is the result of one Detect call.
type Report struct {
	// Detected lists each found category once, in scan order.
	Detected []Category `json:"detectedPII"`
	// Confidence maps each detected category to a score in [0, MaxConfidence].
	Confidence map[Category]float64 `json:"confidenceScores"`
	// Analysis carries per-category match metadata.
	Analysis map[Category]Analysis `json:"analysis"`
	// Sanitized is the input with every detected span replaced by blocks.
	Sanitized string `json:"sanitizedText"`
}

func newReport(text string) *Report {
	return &Report{
		Detected:   []Category{},
		Confidence: make(map[Category]float64),
		Analysis:   make(map[Category]Analysis),
		Sanitized:  text,
	}
}

// add records a finding. Repeated categories keep their first position.
func (r *Report) add(c Category, f *finding) {
	if !r.Has(c) {
		r.Detected = append(r.Detected, c)
	}
	r.Confidence[c] = clampConfidence(f.confidence)
	r.Analysis[c] = f.analysis
}

// Has reports whether c was detected.
func (r *Report) Has(c Category) bool {
	for _, d := range r.Detected {
		if d == c {
			return true
		}
	}
	return false
}

// Labels returns the detected categories as report labels.
func (r *Report) Labels() []string {
	out := make([]string, len(r.Detected))
	for i, c := range r.Detected {
		out[i] = c.String()
	}
	return out
}

// finding is what a matcher returns when it found something.
type finding struct {
	confidence float64
	analysis   Analysis
}

// Analysis is per-category match metadata. The concrete type is fixed per
// category: EmailAnalysis, PhoneAnalysis, NameAnalysis, NationalIDAnalysis,
// PaymentCardAnalysis or AddressAnalysis.
type Analysis interface {
	Category() Category
	analysis()
}

type EmailAnalysis struct {
	Matches      int     `json:"matches"`
	ContextScore float64 `json:"contextScore"`
	AvgLength    float64 `json:"avgLength"`
}

type PhoneAnalysis struct {
	Matches      int           `json:"matches"`
	ContextScore float64       `json:"contextScore"`
	Formats      []PhoneFormat `json:"formats"`
}

// NameAnalysis describes the combined list-lookup and person-extraction hits.
type NameAnalysis struct {
	// DetectedNames holds every hit, list lookups first.
	DetectedNames []string `json:"detectedNames"`
	// People holds the strings yielded by person extraction.
	People []string `json:"nlpPeople"`
	// ListMatches counts first-name and full-name list hits.
	ListMatches int     `json:"nameMatches"`
	Confidence  float64 `json:"confidence"`
}

// NationalIDAnalysis reports, per match, whether it passed NationalIDValid.
// Invalid matches are still detected and redacted.
type NationalIDAnalysis struct {
	Matches      int     `json:"matches"`
	ContextScore float64 `json:"contextScore"`
	Validated    []bool  `json:"validated"`
}

// PaymentCardAnalysis covers Luhn-valid matches only.
type PaymentCardAnalysis struct {
	Matches      int         `json:"matches"`
	ContextScore float64     `json:"contextScore"`
	CardTypes    []CardBrand `json:"cardTypes"`
}

type AddressAnalysis struct {
	Matches      int     `json:"matches"`
	ContextScore float64 `json:"contextScore"`
	AvgLength    float64 `json:"avgLength"`
}

func (EmailAnalysis) Category() Category       { return CategoryEmail }
func (PhoneAnalysis) Category() Category       { return CategoryPhone }
func (NameAnalysis) Category() Category        { return CategoryName }
func (NationalIDAnalysis) Category() Category  { return CategoryNationalID }
func (PaymentCardAnalysis) Category() Category { return CategoryPaymentCard }
func (AddressAnalysis) Category() Category     { return CategoryAddress }

func (EmailAnalysis) analysis()       {}
func (PhoneAnalysis) analysis()       {}
func (NameAnalysis) analysis()        {}
func (NationalIDAnalysis) analysis()  {}
func (PaymentCardAnalysis) analysis() {}
func (AddressAnalysis) analysis()     {}
