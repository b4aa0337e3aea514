package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLuhnValid(t *testing.T) {
	tests := []struct {
		name   string
		number string
		want   bool
	}{
		{"visa test number", "4111111111111111", true},
		{"bad check digit", "4111111111111112", false},
		{"spaced", "4111 1111 1111 1111", true},
		{"dashed", "4111-1111-1111-1111", true},
		{"mastercard", "5500000000000004", true},
		{"amex 15 digits", "378282246310005", true},
		{"discover", "6011111111111117", true},
		{"too short", "411111111111", false},
		{"too long", "41111111111111111111", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LuhnValid(tt.number))
		})
	}
}

func TestNationalIDValid(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"123-45-6789", true},
		{"000-12-3456", false},
		{"123-00-4567", false},
		{"123-45-0000", false},
		{"12-345-6789", false},
		{"123456789", false},
		{"abc-de-fghi", false},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.want, NationalIDValid(tt.id))
		})
	}
}

func TestCardBrandOf(t *testing.T) {
	assert.Equal(t, BrandVisa, CardBrandOf("4111 1111 1111 1111"))
	assert.Equal(t, BrandMasterCard, CardBrandOf("5500-0000-0000-0004"))
	assert.Equal(t, BrandUnknown, CardBrandOf("5600000000000000"))
	assert.Equal(t, BrandAmex, CardBrandOf("378282246310005"))
	assert.Equal(t, BrandAmex, CardBrandOf("341111111111111"))
	assert.Equal(t, BrandDiscover, CardBrandOf("6011111111111117"))
	assert.Equal(t, BrandUnknown, CardBrandOf("9999999999999995"))
}

func TestPhoneFormatOf(t *testing.T) {
	assert.Equal(t, PhoneInternational, PhoneFormatOf("+1 555 123 4567"))
	assert.Equal(t, PhoneInternational, PhoneFormatOf("+1 (555) 123-4567"))
	assert.Equal(t, PhoneParentheses, PhoneFormatOf("(555) 123-4567"))
	assert.Equal(t, PhoneDashes, PhoneFormatOf("555-123-4567"))
	assert.Equal(t, PhoneDots, PhoneFormatOf("555.123.4567"))
	assert.Equal(t, PhonePlain, PhoneFormatOf("5551234567"))
}
