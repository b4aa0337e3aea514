package sanitize

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategory(t *testing.T) {
	assert.Equal(t, "Credit Card", CategoryPaymentCard.String())
	assert.Equal(t, "credit_card", CategoryPaymentCard.Key())
	assert.Equal(t, "SSN", CategoryNationalID.String())
	assert.False(t, Category(42).Valid())
	assert.Equal(t, "Category(42)", Category(42).String())

	for _, in := range []string{"Credit Card", "credit_card", "CREDIT CARD"} {
		c, err := ParseCategory(in)
		require.NoError(t, err, in)
		assert.Equal(t, CategoryPaymentCard, c)
	}
	_, err := ParseCategory("iban")
	assert.Error(t, err)

	assert.Equal(t,
		[]Category{CategoryEmail, CategoryPhone, CategoryName, CategoryNationalID, CategoryPaymentCard, CategoryAddress},
		ScanOrder())
}

func TestCategorySet(t *testing.T) {
	s := NewCategorySet(CategoryAddress, CategoryEmail)
	assert.True(t, s.Has(CategoryEmail))
	assert.False(t, s.Has(CategoryPhone))
	assert.Equal(t, []Category{CategoryEmail, CategoryAddress}, s.Categories())

	s = s.Without(CategoryEmail).With(CategoryPhone)
	assert.Equal(t, []Category{CategoryPhone, CategoryAddress}, s.Categories())
	assert.Len(t, AllCategories().Categories(), 6)
	assert.Equal(t, s, s.With(Category(42)))
}

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()
	assert.Equal(t, []Category{CategoryEmail, CategoryPhone, CategoryName}, s.Categories.Categories())
	assert.True(t, s.PersonExtraction)
	assert.True(t, s.Patterns)
}

func TestSettingsEnabled(t *testing.T) {
	s := DefaultSettings()
	s.Patterns = false
	assert.True(t, s.Enabled(CategoryName))
	assert.False(t, s.Enabled(CategoryEmail))
	assert.False(t, s.Enabled(CategoryAddress))
}

func TestParseSettings(t *testing.T) {
	s, err := ParseSettings(map[string]bool{"detectSsn": true, "detectNames": false, "credit_card": true})
	require.NoError(t, err)
	assert.Equal(t,
		[]Category{CategoryEmail, CategoryPhone, CategoryNationalID, CategoryPaymentCard},
		s.Categories.Categories())

	_, err = ParseSettings(map[string]bool{"detectIban": true, "detectEmails": false, "zzz": true})
	require.ErrorIs(t, err, ErrInvalidSettings)
	assert.Contains(t, err.Error(), "detectIban, zzz")
}

func TestSettingsApplyKeepsReceiverOnError(t *testing.T) {
	s := DefaultSettings()
	out, err := s.Apply(map[string]bool{"detectEmails": false, "bogus": true})
	assert.ErrorIs(t, err, ErrInvalidSettings)
	assert.Equal(t, s, out)
}

func TestSettingsJSON(t *testing.T) {
	var s Settings
	require.NoError(t, json.Unmarshal([]byte(`{"detectAddresses":true,"enableAiRedaction":false}`), &s))
	assert.True(t, s.Categories.Has(CategoryAddress))
	assert.True(t, s.Categories.Has(CategoryEmail))
	assert.False(t, s.PersonExtraction)

	b, err := json.Marshal(s)
	require.NoError(t, err)
	var round Settings
	require.NoError(t, json.Unmarshal(b, &round))
	assert.Equal(t, s, round)

	err = json.Unmarshal([]byte(`{"detectEmails":"yes"}`), &s)
	assert.ErrorIs(t, err, ErrInvalidSettings)
	assert.True(t, IsSettingKey("enableRegexPatterns"))
	assert.False(t, IsSettingKey("mlConfidenceThreshold"))
}
