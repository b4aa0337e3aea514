package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gonkalabs/piiscan/internal/observability"
	"github.com/gonkalabs/piiscan/internal/responder"
	"github.com/gonkalabs/piiscan/internal/sanitize"
	"github.com/gonkalabs/piiscan/internal/signer"
	"github.com/gonkalabs/piiscan/internal/store"
)

const sampleInput = "Hi, my name is John Smith and my email is john.smith@company.com. Call me at (555) 123-4567."

// wordClassifier reports every occurrence of word as a person.
type wordClassifier struct{ word string }

func (c wordClassifier) Name() string { return "fake" }

func (c wordClassifier) Classify(_ context.Context, text string) ([]sanitize.Span, error) {
	var spans []sanitize.Span
	for off := 0; ; {
		i := strings.Index(text[off:], c.word)
		if i < 0 {
			return spans, nil
		}
		start := off + i
		spans = append(spans, sanitize.Span{Start: start, End: start + len(c.word), Label: sanitize.LabelPerson, Score: 0.9})
		off = start + len(c.word)
	}
}

type failingResponder struct{}

func (failingResponder) Respond(context.Context, string) (string, error) {
	return "", errors.New("upstream down")
}

type fixture struct {
	srv     *httptest.Server
	store   store.Store
	metrics *observability.Metrics
}

func newFixture(t *testing.T, mod func(o *Options)) *fixture {
	t.Helper()
	names := sanitize.DefaultNameTable()
	full, err := sanitize.NewEngine(sanitize.WithClassifiers(
		sanitize.NewHeuristicClassifier(names),
		wordClassifier{word: "Quentavius"},
	))
	require.NoError(t, err)
	local, err := sanitize.NewEngine()
	require.NoError(t, err)
	sig, err := signer.New("")
	require.NoError(t, err)

	st := store.NewInMemoryStore()
	m := observability.NewMetrics("piiscan")
	o := Options{
		Engine:        full,
		LocalEngine:   local,
		Store:         st,
		Responder:     responder.NewCannedWithSource(rand.NewPCG(1, 1)),
		Signer:        sig,
		Metrics:       m,
		StoreRawInput: true,
		MaxInputChars: 10000,
	}
	if mod != nil {
		mod(&o)
	}
	srv := httptest.NewServer(New(o).Routes())
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, store: st, metrics: m}
}

func (f *fixture) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rdr *bytes.Reader
	switch b := body.(type) {
	case nil:
		rdr = bytes.NewReader(nil)
	case string:
		rdr = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	var raw json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	} else {
		out = map[string]any{"_list": json.RawMessage(raw)}
	}
	return resp, out
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	resp, body := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestProcess(t *testing.T) {
	f := newFixture(t, nil)

	resp, body := f.do(t, http.MethodPost, "/api/process", map[string]any{"input": sampleInput})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])

	pl := body["processLog"].(map[string]any)
	assert.Equal(t,
		"Hi, my name is "+sanitize.Blocks(10)+" and my email is "+sanitize.Blocks(22)+". Call me at "+sanitize.Blocks(12)+".",
		pl["sanitizedInput"])
	assert.Equal(t, sampleInput, pl["rawInput"])
	assert.Equal(t, []any{"Email", "Phone", "Name"}, pl["piiDetected"])
	assert.Contains(t, responder.CannedReplies(), pl["agentResponse"])
	assert.Equal(t, "success", pl["status"])
	assert.Equal(t, store.ContentHash(sampleInput), pl["inputHash"])
	assert.NotEmpty(t, pl["signature"])
	assert.Contains(t, pl["confidenceScores"], "Email")
	assert.Contains(t, pl["analysis"], "Name")

	id := pl["id"].(string)

	resp, body = f.do(t, http.MethodGet, "/api/logs/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, id, body["id"])

	resp, body = f.do(t, http.MethodGet, "/api/logs/"+id+"/verify", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["valid"])

	resp, body = f.do(t, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["queriesProcessed"])
	assert.EqualValues(t, 3, body["piiRedacted"])
}

func TestProcess_TamperedLogFailsVerification(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(l *store.RunLog)
		wantReason string
	}{
		{"detected categories", func(l *store.RunLog) { l.PIIDetected = []string{"Email"} }, ""},
		{"sanitized text", func(l *store.RunLog) { l.SanitizedInput = sampleInput }, "content hash mismatch"},
		{"raw input", func(l *store.RunLog) { l.RawInput = "something else" }, "content hash mismatch"},
		{"agent response", func(l *store.RunLog) { l.AgentResponse = "edited reply" }, ""},
		{"confidence scores", func(l *store.RunLog) { l.ConfidenceScores["Email"] = 0.1 }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			_, body := f.do(t, http.MethodPost, "/api/process", map[string]any{"input": sampleInput})
			id := body["processLog"].(map[string]any)["id"].(string)

			l, err := f.store.RunLog(context.Background(), id)
			require.NoError(t, err)
			tt.mutate(&l)
			_, err = f.store.CreateRunLog(context.Background(), l)
			require.NoError(t, err)

			_, body = f.do(t, http.MethodGet, "/api/logs/"+id+"/verify", nil)
			assert.Equal(t, false, body["valid"])
			if tt.wantReason != "" {
				assert.Equal(t, tt.wantReason, body["reason"])
			}
		})
	}
}

func TestProcess_RawInputNotStored(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.StoreRawInput = false })
	_, body := f.do(t, http.MethodPost, "/api/process", map[string]any{"input": sampleInput})
	pl := body["processLog"].(map[string]any)
	assert.Equal(t, "", pl["rawInput"])
	assert.Equal(t, store.ContentHash(sampleInput), pl["inputHash"])
}

func TestProcess_ResponderFailure(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Responder = failingResponder{} })

	resp, body := f.do(t, http.MethodPost, "/api/process", map[string]any{"input": "mail a@b.co"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	pl := body["processLog"].(map[string]any)
	assert.Equal(t, "responder_error", pl["status"])
	assert.Equal(t, "", pl["agentResponse"])

	_, body = f.do(t, http.MethodGet, "/api/stats", nil)
	assert.EqualValues(t, 1, body["queriesProcessed"])
}

func TestProcess_Validation(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.MaxInputChars = 20 })

	tests := []struct {
		name string
		body any
	}{
		{"empty input", map[string]any{"input": ""}},
		{"missing input", map[string]any{}},
		{"too long", map[string]any{"input": strings.Repeat("é", 21)}},
		{"unknown setting", map[string]any{"input": "hello", "settings": map[string]bool{"detectEverything": true}}},
		{"malformed json", `{"input":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := f.do(t, http.MethodPost, "/api/process", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, "Validation failed", body["message"])
			assert.NotEmpty(t, body["details"])
		})
	}

	// Exactly at the limit is fine.
	resp, _ := f.do(t, http.MethodPost, "/api/process", map[string]any{"input": strings.Repeat("é", 20)})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestProcess_RequestSettingsOverlayStored(t *testing.T) {
	f := newFixture(t, nil)
	_, body := f.do(t, http.MethodPost, "/api/process", map[string]any{
		"input":    "SSN 123-45-6789, mail a@b.co",
		"settings": map[string]bool{"detectSsn": true, "detectEmails": false},
	})
	pl := body["processLog"].(map[string]any)
	assert.Equal(t, []any{"SSN"}, pl["piiDetected"])
	assert.Contains(t, pl["sanitizedInput"], "a@b.co")
}

func TestAnalyze(t *testing.T) {
	f := newFixture(t, nil)

	resp, body := f.do(t, http.MethodPost, "/api/analyze-pii", map[string]any{"text": sampleInput})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["timestamp"])
	analysis := body["analysis"].(map[string]any)
	assert.Equal(t, []any{"Email", "Phone", "Name"}, analysis["detectedPII"])

	resp, body = f.do(t, http.MethodPost, "/api/analyze-pii", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Text input is required", body["message"])

	// Analysis is not logged.
	_, body = f.do(t, http.MethodGet, "/api/stats", nil)
	assert.EqualValues(t, 0, body["queriesProcessed"])
}

func TestSettings(t *testing.T) {
	f := newFixture(t, nil)

	resp, body := f.do(t, http.MethodGet, "/api/settings", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["detectEmails"])
	assert.Equal(t, false, body["detectSsn"])
	assert.EqualValues(t, 80, body["mlConfidenceThreshold"])

	resp, body = f.do(t, http.MethodPut, "/api/settings", map[string]any{"detectSsn": true, "mlConfidenceThreshold": 55})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["detectSsn"])
	assert.EqualValues(t, 55, body["mlConfidenceThreshold"])
	assert.NotEmpty(t, body["updatedAt"])

	_, body = f.do(t, http.MethodGet, "/api/settings", nil)
	assert.Equal(t, true, body["detectSsn"])

	resp, body = f.do(t, http.MethodPut, "/api/settings", map[string]any{"mlConfidenceThreshold": 101})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, false, body["success"])

	resp, _ = f.do(t, http.MethodPut, "/api/settings", map[string]any{"bogus": true})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Stored settings now drive detection.
	_, body = f.do(t, http.MethodPost, "/api/analyze-pii", map[string]any{"text": "SSN 123-45-6789"})
	analysis := body["analysis"].(map[string]any)
	assert.Equal(t, []any{"SSN"}, analysis["detectedPII"])
}

func TestExternalExtractorsToggle(t *testing.T) {
	f := newFixture(t, nil)
	text := map[string]any{"text": "ping Quentavius today"}

	_, body := f.do(t, http.MethodPost, "/api/analyze-pii", text)
	assert.Equal(t, []any{"Name"}, body["analysis"].(map[string]any)["detectedPII"])

	resp, _ := f.do(t, http.MethodPut, "/api/settings", map[string]any{"enableMlModels": false})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, body = f.do(t, http.MethodPost, "/api/analyze-pii", text)
	assert.Equal(t, []any{}, body["analysis"].(map[string]any)["detectedPII"])
}

func TestLogs(t *testing.T) {
	f := newFixture(t, nil)
	for _, in := range []string{"first", "second", "third"} {
		resp, _ := f.do(t, http.MethodPost, "/api/process", map[string]any{"input": in})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, body := f.do(t, http.MethodGet, "/api/logs?limit=2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var logs []store.RunLog
	require.NoError(t, json.Unmarshal(body["_list"].(json.RawMessage), &logs))
	require.Len(t, logs, 2)
	assert.Equal(t, "third", logs[0].SanitizedInput)
	assert.Equal(t, "second", logs[1].SanitizedInput)

	resp, _ = f.do(t, http.MethodGet, "/api/logs?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = f.do(t, http.MethodGet, "/api/logs/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, false, body["success"])
}

func TestStatus(t *testing.T) {
	f := newFixture(t, nil)

	resp, body := f.do(t, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "online", body["fastApiBackend"])
	assert.Equal(t, "connected", body["database"])
	assert.Equal(t, "active", body["mlModels"])
	assert.EqualValues(t, 2, body["modelCount"])
	assert.Equal(t, "canned", body["aiModel"])

	resp, body = f.do(t, http.MethodGet, "/api/ml-status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{"heuristic", "fake"}, body["personExtractors"])
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.RateLimitRPM = 1 })

	resp, _ := f.do(t, http.MethodGet, "/api/stats", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := f.do(t, http.MethodGet, "/api/stats", nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))
	assert.Equal(t, false, body["success"])

	// Health is outside the limited group.
	resp, _ = f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	f.do(t, http.MethodPost, "/api/process", map[string]any{"input": sampleInput})

	resp, err := http.Get(f.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, buf.String(), `piiscan_detections_total{category="Email"} 1`)
	assert.Contains(t, buf.String(), `piiscan_http_requests_total{code="200",route="/api/process"} 1`)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(20) // burst 2
	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", clientKey(req))
	req.RemoteAddr = "10.0.0.2"
	assert.Equal(t, "10.0.0.2", clientKey(req))
}
