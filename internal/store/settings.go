package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gonkalabs/piiscan/internal/sanitize"
)

// DefaultConfidenceThreshold is the initial mlConfidenceThreshold.
const DefaultConfidenceThreshold = 80

// PIISettings is the persisted global configuration. On the wire it is a
// flat object: the detection flags plus enableMlModels,
// mlConfidenceThreshold and updatedAt.
type PIISettings struct {
	Detection sanitize.Settings
	// ExternalExtractors enables the NER and LLM person extractors
	// ("enableMlModels"). The built-in heuristic always runs.
	ExternalExtractors bool
	// ConfidenceThreshold is a 0-100 hint for clients; detections below it
	// are still reported.
	ConfidenceThreshold int
	UpdatedAt           time.Time
}

// DefaultPIISettings is what a fresh store returns.
func DefaultPIISettings() PIISettings {
	return PIISettings{
		Detection:           sanitize.DefaultSettings(),
		ExternalExtractors:  true,
		ConfidenceThreshold: DefaultConfidenceThreshold,
	}
}

const (
	keyThreshold = "mlConfidenceThreshold"
	keyExternal  = "enableMlModels"
	keyUpdatedAt = "updatedAt"
	keyID        = "id"
)

func (p PIISettings) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		keyID:        "global",
		keyThreshold: p.ConfidenceThreshold,
		keyExternal:  p.ExternalExtractors,
	}
	for k, v := range p.Detection.Map() {
		out[k] = v
	}
	if !p.UpdatedAt.IsZero() {
		out[keyUpdatedAt] = p.UpdatedAt
	}
	return json.Marshal(out)
}

// UnmarshalJSON starts from DefaultPIISettings.
func (p *PIISettings) UnmarshalJSON(data []byte) error {
	parsed, err := DefaultPIISettings().Patch(data)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Patch applies a partial JSON object and returns the result. Unknown keys
// and out-of-range values fail with sanitize.ErrInvalidSettings; p is not
// modified.
func (p PIISettings) Patch(data []byte) (PIISettings, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return p, fmt.Errorf("%w: %v", sanitize.ErrInvalidSettings, err)
	}

	out := p
	flags := make(map[string]bool)
	for k, v := range raw {
		switch k {
		case keyID:
		case keyUpdatedAt:
			var ts time.Time
			if err := json.Unmarshal(v, &ts); err != nil {
				return p, fmt.Errorf("%w: %s: %v", sanitize.ErrInvalidSettings, k, err)
			}
			out.UpdatedAt = ts
		case keyThreshold:
			var n int
			if err := json.Unmarshal(v, &n); err != nil {
				return p, fmt.Errorf("%w: %s: %v", sanitize.ErrInvalidSettings, k, err)
			}
			if n < 0 || n > 100 {
				return p, fmt.Errorf("%w: %s must be between 0 and 100", sanitize.ErrInvalidSettings, k)
			}
			out.ConfidenceThreshold = n
		case keyExternal:
			if err := json.Unmarshal(v, &out.ExternalExtractors); err != nil {
				return p, fmt.Errorf("%w: %s: %v", sanitize.ErrInvalidSettings, k, err)
			}
		default:
			var b bool
			if err := json.Unmarshal(v, &b); err != nil && sanitize.IsSettingKey(k) {
				return p, fmt.Errorf("%w: %s: %v", sanitize.ErrInvalidSettings, k, err)
			}
			flags[k] = b
		}
	}

	det, err := out.Detection.Apply(flags)
	if err != nil {
		return p, err
	}
	out.Detection = det
	return out, nil
}
