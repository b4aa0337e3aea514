package store

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gonkalabs/piiscan/internal/sanitize"
)

func TestPIISettings_MarshalJSON(t *testing.T) {
	b, err := json.Marshal(DefaultPIISettings())
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, "global", m["id"])
	assert.Equal(t, true, m["detectEmails"])
	assert.Equal(t, true, m["enableMlModels"])
	assert.EqualValues(t, 80, m["mlConfidenceThreshold"])
	assert.NotContains(t, m, "updatedAt")
}

func TestPIISettings_RoundTrip(t *testing.T) {
	p, err := DefaultPIISettings().Patch([]byte(`{"detectSsn":false,"enableMlModels":false}`))
	require.NoError(t, err)

	b, err := json.Marshal(p)
	require.NoError(t, err)
	var back PIISettings
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, p, back)
}

func TestPIISettings_Patch(t *testing.T) {
	base := DefaultPIISettings()

	tests := []struct {
		name    string
		body    string
		wantErr bool
		check   func(t *testing.T, p PIISettings)
	}{
		{
			name: "partial update",
			body: `{"detectPhones":false}`,
			check: func(t *testing.T, p PIISettings) {
				assert.False(t, p.Detection.Enabled(sanitize.CategoryPhone))
				assert.True(t, p.Detection.Enabled(sanitize.CategoryEmail))
			},
		},
		{
			name: "threshold bounds inclusive",
			body: `{"mlConfidenceThreshold":100}`,
			check: func(t *testing.T, p PIISettings) {
				assert.Equal(t, 100, p.ConfidenceThreshold)
			},
		},
		{
			name: "id is ignored",
			body: `{"id":"other"}`,
			check: func(t *testing.T, p PIISettings) {
				assert.Equal(t, base, p)
			},
		},
		{name: "threshold too high", body: `{"mlConfidenceThreshold":101}`, wantErr: true},
		{name: "threshold negative", body: `{"mlConfidenceThreshold":-1}`, wantErr: true},
		{name: "threshold not a number", body: `{"mlConfidenceThreshold":"high"}`, wantErr: true},
		{name: "flag not a bool", body: `{"detectEmails":"yes"}`, wantErr: true},
		{name: "unknown key", body: `{"detectEverything":true}`, wantErr: true},
		{name: "not an object", body: `[1,2]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := base.Patch([]byte(tt.body))
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, sanitize.ErrInvalidSettings)
				assert.Equal(t, base, got)
				return
			}
			require.NoError(t, err)
			tt.check(t, got)
		})
	}
}
