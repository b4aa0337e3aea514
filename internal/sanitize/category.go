package sanitize

import (
	"fmt"
	"strings"
)

// Category is one of the closed set of PII kinds the engine detects.
type Category uint8

const (
	CategoryEmail Category = iota
	CategoryPhone
	CategoryName
	CategoryNationalID
	CategoryPaymentCard
	CategoryAddress

	numCategories = int(CategoryAddress) + 1
)

// scanOrder is the order matchers run in. Later matchers see the output of
// earlier ones, so this order decides which category wins an overlapping span.
var scanOrder = [numCategories]Category{
	CategoryEmail,
	CategoryPhone,
	CategoryName,
	CategoryNationalID,
	CategoryPaymentCard,
	CategoryAddress,
}

// labels are the wire names used in reports and run logs.
var labels = [numCategories]string{
	CategoryEmail:       "Email",
	CategoryPhone:       "Phone",
	CategoryName:        "Name",
	CategoryNationalID:  "SSN",
	CategoryPaymentCard: "Credit Card",
	CategoryAddress:     "Address",
}

// keys are the lowercase identifiers used in pattern files and settings.
var keys = [numCategories]string{
	CategoryEmail:       "email",
	CategoryPhone:       "phone",
	CategoryName:        "name",
	CategoryNationalID:  "ssn",
	CategoryPaymentCard: "credit_card",
	CategoryAddress:     "address",
}

// ScanOrder returns every category in the order the engine scans them.
func ScanOrder() []Category {
	out := scanOrder
	return out[:]
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool { return int(c) < numCategories }

// String returns the report label ("Email", "Credit Card", ...).
func (c Category) String() string {
	if !c.Valid() {
		return fmt.Sprintf("Category(%d)", uint8(c))
	}
	return labels[c]
}

// Key returns the lowercase identifier ("email", "credit_card", ...).
func (c Category) Key() string {
	if !c.Valid() {
		return ""
	}
	return keys[c]
}

// MarshalText encodes the category as its report label so maps keyed by
// Category serialize with readable keys.
func (c Category) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("sanitize: unknown category %d", uint8(c))
	}
	return []byte(labels[c]), nil
}

// UnmarshalText accepts either the label or the key.
func (c *Category) UnmarshalText(b []byte) error {
	parsed, err := ParseCategory(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseCategory resolves a label ("Credit Card") or key ("credit_card"),
// case-insensitively.
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	for i := 0; i < numCategories; i++ {
		if strings.EqualFold(s, labels[i]) || strings.EqualFold(s, keys[i]) {
			return Category(i), nil
		}
	}
	return 0, fmt.Errorf("sanitize: unknown category %q", s)
}

// CategorySet is a bitset of categories.
type CategorySet uint8

// NewCategorySet builds a set from the given categories.
func NewCategorySet(cs ...Category) CategorySet {
	var s CategorySet
	for _, c := range cs {
		s = s.With(c)
	}
	return s
}

// AllCategories is the set of every known category.
func AllCategories() CategorySet {
	return NewCategorySet(scanOrder[:]...)
}

func (s CategorySet) Has(c Category) bool {
	return c.Valid() && s&(1<<c) != 0
}

func (s CategorySet) With(c Category) CategorySet {
	if !c.Valid() {
		return s
	}
	return s | 1<<c
}

func (s CategorySet) Without(c Category) CategorySet {
	if !c.Valid() {
		return s
	}
	return s &^ (1 << c)
}

// Categories lists the members in scan order.
func (s CategorySet) Categories() []Category {
	var out []Category
	for _, c := range scanOrder {
		if s.Has(c) {
			out = append(out, c)
		}
	}
	return out
}
