package sanitize

import "strings"

// LuhnValid reports whether the digits in number pass the Luhn checksum and
// there are between 13 and 19 of them. Separators are ignored.
func LuhnValid(number string) bool {
	digits := digitsOnly(number)
	n := len(digits)
	if n < 13 || n > 19 {
		return false
	}
	sum := 0
	double := false
	for i := n - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// NationalIDValid checks a DDD-DD-DDDD identifier: the right shape, and none
// of the three groups all zeros.
func NationalIDValid(id string) bool {
	groups := strings.Split(id, "-")
	if len(groups) != 3 {
		return false
	}
	for i, want := range [3]int{3, 2, 4} {
		g := groups[i]
		if len(g) != want {
			return false
		}
		nonZero := false
		for j := 0; j < len(g); j++ {
			c := g[j]
			if c < '0' || c > '9' {
				return false
			}
			if c != '0' {
				nonZero = true
			}
		}
		if !nonZero {
			return false
		}
	}
	return true
}

// CardBrand is the issuer network derived from a card number's prefix.
type CardBrand string

const (
	BrandVisa       CardBrand = "Visa"
	BrandMasterCard CardBrand = "MasterCard"
	BrandAmex       CardBrand = "American Express"
	BrandDiscover   CardBrand = "Discover"
	BrandUnknown    CardBrand = "Unknown"
)

// CardBrandOf classifies a card number by its leading digits.
func CardBrandOf(number string) CardBrand {
	d := digitsOnly(number)
	switch {
	case strings.HasPrefix(d, "4"):
		return BrandVisa
	case len(d) >= 2 && d[0] == '5' && d[1] >= '1' && d[1] <= '5':
		return BrandMasterCard
	case strings.HasPrefix(d, "34"), strings.HasPrefix(d, "37"):
		return BrandAmex
	case strings.HasPrefix(d, "6"):
		return BrandDiscover
	}
	return BrandUnknown
}

// PhoneFormat describes how a matched phone number was written.
type PhoneFormat string

const (
	PhoneInternational PhoneFormat = "international"
	PhoneParentheses   PhoneFormat = "parentheses"
	PhoneDashes        PhoneFormat = "dashes"
	PhoneDots          PhoneFormat = "dots"
	PhonePlain         PhoneFormat = "plain"
)

// PhoneFormatOf classifies a raw phone match. Markers are checked in
// priority order: "+1", "(", "-", ".".
func PhoneFormatOf(match string) PhoneFormat {
	switch {
	case strings.Contains(match, "+1"):
		return PhoneInternational
	case strings.Contains(match, "("):
		return PhoneParentheses
	case strings.Contains(match, "-"):
		return PhoneDashes
	case strings.Contains(match, "."):
		return PhoneDots
	}
	return PhonePlain
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	return b.String()
}
