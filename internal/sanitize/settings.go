package sanitize

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrInvalidSettings is returned when a caller passes a settings key the
// engine does not recognize.
var ErrInvalidSettings = errors.New("sanitize: invalid settings")

// Settings selects what a Detect call looks for.
type Settings struct {
	// Categories holds the enabled categories.
	Categories CategorySet
	// PersonExtraction enables the linguistic person-entity path of the name
	// matcher. The name list lookup runs regardless.
	PersonExtraction bool
	// Patterns enables the regex-driven matchers (everything except names).
	Patterns bool
}

// DefaultSettings enables Email, Phone and Name with both detection paths on.
func DefaultSettings() Settings {
	return Settings{
		Categories:       NewCategorySet(CategoryEmail, CategoryPhone, CategoryName),
		PersonExtraction: true,
		Patterns:         true,
	}
}

// Enabled reports whether the matcher for c runs under these settings.
func (s Settings) Enabled(c Category) bool {
	if !s.Categories.Has(c) {
		return false
	}
	return c == CategoryName || s.Patterns
}

type settingFunc func(s *Settings, v bool)

func toggle(c Category) settingFunc {
	return func(s *Settings, v bool) {
		if v {
			s.Categories = s.Categories.With(c)
		} else {
			s.Categories = s.Categories.Without(c)
		}
	}
}

// settingKeys lists every accepted key. The detect*/enable* spellings are the
// ones HTTP clients send; the category keys are accepted as shorthands.
var settingKeys = map[string]settingFunc{
	"detectEmails":      toggle(CategoryEmail),
	"detectPhones":      toggle(CategoryPhone),
	"detectNames":       toggle(CategoryName),
	"detectSsn":         toggle(CategoryNationalID),
	"detectCreditCards": toggle(CategoryPaymentCard),
	"detectAddresses":   toggle(CategoryAddress),

	"email":       toggle(CategoryEmail),
	"phone":       toggle(CategoryPhone),
	"name":        toggle(CategoryName),
	"ssn":         toggle(CategoryNationalID),
	"credit_card": toggle(CategoryPaymentCard),
	"address":     toggle(CategoryAddress),

	"enableAiRedaction":   func(s *Settings, v bool) { s.PersonExtraction = v },
	"enableRegexPatterns": func(s *Settings, v bool) { s.Patterns = v },
}

// IsSettingKey reports whether key is accepted by Apply.
func IsSettingKey(key string) bool {
	_, ok := settingKeys[key]
	return ok
}

// ParseSettings overlays raw onto DefaultSettings.
func ParseSettings(raw map[string]bool) (Settings, error) {
	return DefaultSettings().Apply(raw)
}

// Apply returns a copy of s with every key in raw applied. Keys absent from
// raw keep their current value. Unknown keys fail the whole call with
// ErrInvalidSettings and leave s untouched.
func (s Settings) Apply(raw map[string]bool) (Settings, error) {
	var unknown []string
	for k := range raw {
		if _, ok := settingKeys[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return s, fmt.Errorf("%w: unknown keys %s", ErrInvalidSettings, strings.Join(unknown, ", "))
	}

	// Apply in sorted order so a detect* key and its shorthand collide
	// deterministically.
	names := make([]string, 0, len(raw))
	for k := range raw {
		names = append(names, k)
	}
	sort.Strings(names)

	out := s
	for _, k := range names {
		settingKeys[k](&out, raw[k])
	}
	return out, nil
}

// ApplyJSON decodes a JSON object of boolean flags and applies it.
func (s Settings) ApplyJSON(data []byte) (Settings, error) {
	var raw map[string]bool
	if err := json.Unmarshal(data, &raw); err != nil {
		return s, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	return s.Apply(raw)
}

// Map renders s with the detect*/enable* keys.
func (s Settings) Map() map[string]bool {
	return map[string]bool{
		"detectEmails":        s.Categories.Has(CategoryEmail),
		"detectPhones":        s.Categories.Has(CategoryPhone),
		"detectNames":         s.Categories.Has(CategoryName),
		"detectSsn":           s.Categories.Has(CategoryNationalID),
		"detectCreditCards":   s.Categories.Has(CategoryPaymentCard),
		"detectAddresses":     s.Categories.Has(CategoryAddress),
		"enableAiRedaction":   s.PersonExtraction,
		"enableRegexPatterns": s.Patterns,
	}
}

func (s Settings) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Map())
}

// UnmarshalJSON starts from DefaultSettings, so omitted keys take defaults.
func (s *Settings) UnmarshalJSON(data []byte) error {
	parsed, err := DefaultSettings().ApplyJSON(data)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
