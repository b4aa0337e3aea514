package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	potel "github.com/gonkalabs/piiscan/internal/otel"
	"github.com/gonkalabs/piiscan/internal/sanitize"
	"github.com/gonkalabs/piiscan/internal/store"
)

const (
	statusSuccess        = "success"
	statusResponderError = "responder_error"
)

type processRequest struct {
	Input    string          `json:"input"`
	Settings json.RawMessage `json:"settings,omitempty"`
}

type processResponse struct {
	Success        bool         `json:"success"`
	ProcessLog     store.RunLog `json:"processLog"`
	ProcessingTime int64        `json:"processingTime"`
}

type analyzeRequest struct {
	Text     string          `json:"text"`
	Settings json.RawMessage `json:"settings,omitempty"`
}

type analyzeResponse struct {
	Success   bool             `json:"success"`
	Analysis  *sanitize.Report `json:"analysis"`
	Timestamp string           `json:"timestamp"`
}

// process detects and redacts PII, asks the responder for a reply to the
// sanitized text, and records a signed run log.
func (h *Handler) process(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	body, ok := readBody(w, r)
	if !ok {
		return
	}
	var req processRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeValidation(w, fmt.Errorf("invalid request: %w", err))
		return
	}
	if err := h.validateInput("input", req.Input); err != nil {
		writeValidation(w, err)
		return
	}

	settings, external, err := h.settingsFor(ctx, req.Settings)
	if err != nil {
		h.settingsError(w, err)
		return
	}

	rep := h.detect(ctx, req.Input, settings, external)

	status := statusSuccess
	reply, err := h.responder.Respond(ctx, rep.Sanitized)
	if err != nil {
		log.Warn().Err(err).Func(potel.LogTraceFields(ctx)).Msg("api: responder failed")
		h.metrics.ResponderFailures.WithLabelValues(responderName(h.responder)).Inc()
		status = statusResponderError
	}

	elapsed := time.Since(start)
	entry, err := h.newRunLog(req.Input, rep, reply, status, elapsed)
	if err != nil {
		log.Error().Err(err).Msg("api: building run log failed")
		writeErr(w, http.StatusInternalServerError, "Internal server error during processing")
		return
	}

	saved, err := h.store.CreateRunLog(ctx, entry)
	if err != nil {
		log.Error().Err(err).Msg("api: saving run log failed")
		writeErr(w, http.StatusInternalServerError, "Internal server error during processing")
		return
	}
	if _, err := h.store.RecordRun(ctx, len(rep.Detected), elapsed); err != nil {
		log.Error().Err(err).Msg("api: updating stats failed")
		writeErr(w, http.StatusInternalServerError, "Internal server error during processing")
		return
	}

	log.Info().
		Str("id", saved.ID).
		Strs("detected", saved.PIIDetected).
		Int64("ms", saved.ProcessingTime).
		Func(potel.LogTraceFields(ctx)).
		Msg("api: processed input")

	writeJSON(w, http.StatusOK, processResponse{
		Success:        true,
		ProcessLog:     saved,
		ProcessingTime: saved.ProcessingTime,
	})
}

// analyze runs detection only. Nothing is stored.
func (h *Handler) analyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	var req analyzeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeValidation(w, fmt.Errorf("invalid request: %w", err))
		return
	}
	if req.Text == "" {
		writeErr(w, http.StatusBadRequest, "Text input is required")
		return
	}
	if err := h.validateInput("text", req.Text); err != nil {
		writeValidation(w, err)
		return
	}

	settings, external, err := h.settingsFor(ctx, req.Settings)
	if err != nil {
		h.settingsError(w, err)
		return
	}

	rep := h.detect(ctx, req.Text, settings, external)
	writeJSON(w, http.StatusOK, analyzeResponse{
		Success:   true,
		Analysis:  rep,
		Timestamp: h.now().Format(time.RFC3339Nano),
	})
}

func (h *Handler) validateInput(field, s string) error {
	n := utf8.RuneCountInString(s)
	if n == 0 {
		return fmt.Errorf("%s: must contain at least 1 character", field)
	}
	if n > h.maxInputChars {
		return fmt.Errorf("%s: must contain at most %d characters", field, h.maxInputChars)
	}
	return nil
}

// settingsFor overlays per-request flags on the stored settings. It also
// reports whether external person extractors are enabled.
func (h *Handler) settingsFor(ctx context.Context, raw json.RawMessage) (sanitize.Settings, bool, error) {
	ps, err := h.store.Settings(ctx)
	if err != nil {
		return sanitize.Settings{}, false, fmt.Errorf("load settings: %w", err)
	}
	s := ps.Detection
	if len(raw) > 0 && string(raw) != "null" {
		s, err = s.ApplyJSON(raw)
		if err != nil {
			return sanitize.Settings{}, false, err
		}
	}
	return s, ps.ExternalExtractors, nil
}

func (h *Handler) settingsError(w http.ResponseWriter, err error) {
	if errors.Is(err, sanitize.ErrInvalidSettings) {
		writeValidation(w, err)
		return
	}
	log.Error().Err(err).Msg("api: settings retrieval failed")
	writeErr(w, http.StatusInternalServerError, "Failed to retrieve PII settings")
}

func (h *Handler) detect(ctx context.Context, text string, s sanitize.Settings, external bool) *sanitize.Report {
	eng := h.engine
	if !external {
		eng = h.localEngine
	}
	start := time.Now()
	rep := eng.Detect(ctx, text, s)
	h.metrics.ObserveDetection(rep.Labels(), time.Since(start))
	return rep
}

func (h *Handler) newRunLog(raw string, rep *sanitize.Report, reply, status string, elapsed time.Duration) (store.RunLog, error) {
	analysis, err := json.Marshal(rep.Analysis)
	if err != nil {
		return store.RunLog{}, fmt.Errorf("encode analysis: %w", err)
	}
	scores := make(map[string]float64, len(rep.Confidence))
	for c, v := range rep.Confidence {
		scores[c.String()] = v
	}

	l := store.RunLog{
		ID:               uuid.NewString(),
		Timestamp:        h.now().Truncate(time.Microsecond), // postgres precision
		SanitizedInput:   rep.Sanitized,
		AgentResponse:    reply,
		PIIDetected:      rep.Labels(),
		ProcessingTime:   elapsed.Milliseconds(),
		Status:           status,
		ConfidenceScores: scores,
		Analysis:         analysis,
		InputHash:        store.ContentHash(raw),
		OutputHash:       store.ContentHash(rep.Sanitized),
	}
	if h.storeRawInput {
		l.RawInput = raw
	}

	sig, err := h.signer.Sign(l.ReceiptPayload())
	if err != nil {
		return store.RunLog{}, err
	}
	l.Signature = sig
	l.Signer = h.signer.Address()
	return l, nil
}

func responderName(r any) string {
	if n, ok := r.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", r)
}
