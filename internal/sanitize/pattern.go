package sanitize

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gonkalabs/piiscan/patterns"
)

// PatternSpec is the compiled detection rule for one regex-driven category.
type PatternSpec struct {
	Category       Category
	Pattern        *regexp.Regexp
	BaseConfidence float64
	ContextWeight  float64
	// FixedWidth is the redaction width in blocks; 0 keeps the span length.
	FixedWidth int
	Keywords   []string
}

// Confidence combines the base confidence with a context score.
func (p *PatternSpec) Confidence(contextScore float64) float64 {
	return clampConfidence(p.BaseConfidence + contextScore*p.ContextWeight)
}

// PatternTable holds one spec per regex-driven category. The Name slot is
// always nil; names are matched against the NameTable instead.
type PatternTable [numCategories]*PatternSpec

// Spec returns the spec for c, or nil.
func (t *PatternTable) Spec(c Category) *PatternSpec {
	if !c.Valid() {
		return nil
	}
	return t[c]
}

// Len reports how many categories have a spec.
func (t *PatternTable) Len() int {
	n := 0
	for _, p := range t {
		if p != nil {
			n++
		}
	}
	return n
}

// PatternFile is the YAML layout of pii.yaml and of override files.
type PatternFile struct {
	Patterns []PatternConfig `yaml:"patterns"`
}

// PatternConfig is one uncompiled entry. In override files every field but
// category is optional and only the fields present replace the default.
type PatternConfig struct {
	Category       string   `yaml:"category"`
	Regex          string   `yaml:"regex,omitempty"`
	BaseConfidence float64  `yaml:"base_confidence,omitempty"`
	ContextWeight  *float64 `yaml:"context_weight,omitempty"`
	FixedWidth     *int     `yaml:"fixed_width,omitempty"`
	Keywords       []string `yaml:"keywords,omitempty"`
}

// ParsePatternFile decodes pattern YAML.
func ParsePatternFile(data []byte) (*PatternFile, error) {
	var pf PatternFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parsing pattern YAML: %w", err)
	}
	return &pf, nil
}

// LoadPatternFile reads a pattern override file. A missing file yields
// (nil, nil).
func LoadPatternFile(path string) (*PatternFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading pattern file %s: %w", path, err)
	}
	return ParsePatternFile(data)
}

// MergePatterns overlays layers in order, matching entries by category.
// Fields set in a later layer replace the earlier value; unset fields are
// inherited.
func MergePatterns(layers ...[]PatternConfig) []PatternConfig {
	index := make(map[string]int)
	var merged []PatternConfig
	for _, layer := range layers {
		for _, pc := range layer {
			key := strings.ToLower(strings.TrimSpace(pc.Category))
			idx, ok := index[key]
			if !ok {
				index[key] = len(merged)
				merged = append(merged, pc)
				continue
			}
			cur := &merged[idx]
			if pc.Regex != "" {
				cur.Regex = pc.Regex
			}
			if pc.BaseConfidence != 0 {
				cur.BaseConfidence = pc.BaseConfidence
			}
			if pc.ContextWeight != nil {
				cur.ContextWeight = pc.ContextWeight
			}
			if pc.FixedWidth != nil {
				cur.FixedWidth = pc.FixedWidth
			}
			if pc.Keywords != nil {
				cur.Keywords = pc.Keywords
			}
		}
	}
	return merged
}

// CompilePatterns validates and compiles configs into a table. Every
// regex-driven category must be present exactly once after merging.
func CompilePatterns(configs []PatternConfig) (*PatternTable, error) {
	var table PatternTable
	for _, pc := range configs {
		c, err := ParseCategory(pc.Category)
		if err != nil {
			return nil, err
		}
		if c == CategoryName {
			return nil, fmt.Errorf("pattern %q: names are matched by list, not regex", pc.Category)
		}
		if table[c] != nil {
			return nil, fmt.Errorf("pattern %q: duplicate category", pc.Category)
		}
		if pc.Regex == "" {
			return nil, fmt.Errorf("pattern %q: empty regex", pc.Category)
		}
		re, err := regexp.Compile(pc.Regex)
		if err != nil {
			return nil, fmt.Errorf("compiling pattern %q: %w", pc.Category, err)
		}
		if pc.BaseConfidence <= 0 || pc.BaseConfidence > 1 {
			return nil, fmt.Errorf("pattern %q: base_confidence %v outside (0,1]", pc.Category, pc.BaseConfidence)
		}
		spec := &PatternSpec{
			Category:       c,
			Pattern:        re,
			BaseConfidence: pc.BaseConfidence,
		}
		if pc.ContextWeight != nil {
			if *pc.ContextWeight < 0 || *pc.ContextWeight > 1 {
				return nil, fmt.Errorf("pattern %q: context_weight %v outside [0,1]", pc.Category, *pc.ContextWeight)
			}
			spec.ContextWeight = *pc.ContextWeight
		}
		if pc.FixedWidth != nil {
			if *pc.FixedWidth < 0 {
				return nil, fmt.Errorf("pattern %q: negative fixed_width", pc.Category)
			}
			spec.FixedWidth = *pc.FixedWidth
		}
		for _, kw := range pc.Keywords {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
				spec.Keywords = append(spec.Keywords, kw)
			}
		}
		table[c] = spec
	}
	for _, c := range scanOrder {
		if c != CategoryName && table[c] == nil {
			return nil, fmt.Errorf("no pattern for category %s", c.Key())
		}
	}
	return &table, nil
}

// DefaultPatternConfigs returns the embedded pattern definitions.
func DefaultPatternConfigs() ([]PatternConfig, error) {
	pf, err := ParsePatternFile(patterns.PIIYAML())
	if err != nil {
		return nil, fmt.Errorf("parsing embedded patterns: %w", err)
	}
	return pf.Patterns, nil
}

// LoadPatterns compiles the embedded defaults, overlaid with the file at
// overridePath when it is non-empty and exists.
func LoadPatterns(overridePath string) (*PatternTable, error) {
	defaults, err := DefaultPatternConfigs()
	if err != nil {
		return nil, err
	}
	layers := [][]PatternConfig{defaults}
	if overridePath != "" {
		pf, err := LoadPatternFile(overridePath)
		if err != nil {
			return nil, err
		}
		if pf != nil {
			layers = append(layers, pf.Patterns)
		}
	}
	return CompilePatterns(MergePatterns(layers...))
}
