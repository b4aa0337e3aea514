// Package ner extracts person mentions with an external named-entity
// recognition service. The service receives {"text": ...} on POST /classify
// and answers with labelled byte spans; only person labels are kept.
package ner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gonkalabs/piiscan/internal/sanitize"
)

// DefaultTimeout bounds one call to the service.
const DefaultTimeout = 10 * time.Second

// Client is a sanitize.Classifier backed by the NER service. A failing or
// unreachable service yields no spans, so list-based name detection still
// runs on its own.
type Client struct {
	endpoint string
	hc       *http.Client
}

// New returns a Client for the service at baseURL, e.g. "http://ner:8001".
func New(baseURL string) *Client {
	return &Client{
		endpoint: strings.TrimRight(baseURL, "/") + "/classify",
		hc:       &http.Client{Timeout: DefaultTimeout},
	}
}

func (c *Client) Name() string { return "ner" }

type request struct {
	Text string `json:"text"`
}

type response struct {
	Spans []entity `json:"spans"`
}

type entity struct {
	Start int      `json:"start"`
	End   int      `json:"end"`
	Label string   `json:"label"`
	Text  string   `json:"text"`
	Score *float32 `json:"score,omitempty"`
}

// isPerson accepts the spaCy (PERSON) and CoNLL-style (PER) person labels.
func (e entity) isPerson() bool {
	switch strings.ToUpper(e.Label) {
	case "PER", "PERSON":
		return true
	}
	return false
}

func (e entity) span() sanitize.Span {
	score := float32(1)
	if e.Score != nil {
		score = *e.Score
	}
	return sanitize.Span{Start: e.Start, End: e.End, Label: sanitize.LabelPerson, Score: score}
}

// Classify returns the person spans the service found in text.
func (c *Client) Classify(ctx context.Context, text string) ([]sanitize.Span, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	payload, err := json.Marshal(request{Text: text})
	if err != nil {
		return nil, fmt.Errorf("ner classify: encode request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("ner classify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("endpoint", c.endpoint).Msg("ner: service unreachable, no person spans")
		return nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Warn().Int("status", resp.StatusCode).Msg("ner: service error, no person spans")
		return nil, nil
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("ner classify: decode response: %w", err)
	}

	spans := make([]sanitize.Span, 0, len(out.Spans))
	for _, e := range out.Spans {
		if e.isPerson() {
			spans = append(spans, e.span())
		}
	}
	log.Debug().Int("people", len(spans)).Int("entities", len(out.Spans)).Msg("ner: classified")
	return spans, nil
}

var _ sanitize.Classifier = (*Client)(nil)
