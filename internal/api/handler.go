package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/gonkalabs/piiscan/internal/observability"
	potel "github.com/gonkalabs/piiscan/internal/otel"
	"github.com/gonkalabs/piiscan/internal/responder"
	"github.com/gonkalabs/piiscan/internal/sanitize"
	"github.com/gonkalabs/piiscan/internal/signer"
	"github.com/gonkalabs/piiscan/internal/store"
)

// maxBodyBytes caps request bodies; inputs are bounded in characters on top.
const maxBodyBytes = 1 << 20

// Options wires a Handler. Engine, Store, Responder and Signer are required.
type Options struct {
	// Engine runs every configured person extractor.
	Engine *sanitize.Engine
	// LocalEngine runs only the built-in heuristic and is used while
	// enableMlModels is off. Nil means Engine is always used.
	LocalEngine *sanitize.Engine

	Store     store.Store
	Responder responder.Responder
	Signer    *signer.Signer
	Metrics   *observability.Metrics

	StoreRawInput bool
	MaxInputChars int
	RateLimitRPM  int // 0 disables
}

// Handler implements all HTTP endpoints.
type Handler struct {
	engine      *sanitize.Engine
	localEngine *sanitize.Engine
	store       store.Store
	responder   responder.Responder
	signer      *signer.Signer
	metrics     *observability.Metrics
	limiter     *RateLimiter

	storeRawInput bool
	maxInputChars int
	now           func() time.Time
}

// New creates a Handler.
func New(o Options) *Handler {
	h := &Handler{
		engine:        o.Engine,
		localEngine:   o.LocalEngine,
		store:         o.Store,
		responder:     o.Responder,
		signer:        o.Signer,
		metrics:       o.Metrics,
		storeRawInput: o.StoreRawInput,
		maxInputChars: o.MaxInputChars,
		now:           func() time.Time { return time.Now().UTC() },
	}
	if h.localEngine == nil {
		h.localEngine = h.engine
	}
	if h.metrics == nil {
		h.metrics = observability.NewMetrics("piiscan")
	}
	if h.maxInputChars <= 0 {
		h.maxInputChars = 10000
	}
	if o.RateLimitRPM > 0 {
		h.limiter = NewRateLimiter(o.RateLimitRPM)
	}
	return h
}

// Routes returns the chi router with all middleware and routes mounted.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(potel.MiddlewareWithStatus())
	r.Use(h.countRequests)

	r.Get("/health", h.health)
	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(h.rateLimit)

		r.Post("/process", h.process)
		r.Post("/analyze-pii", h.analyze)

		r.Get("/stats", h.stats)
		r.Get("/settings", h.getSettings)
		r.Put("/settings", h.putSettings)

		r.Get("/logs", h.listLogs)
		r.Get("/logs/{id}", h.getLog)
		r.Get("/logs/{id}/verify", h.verifyLog)

		r.Get("/status", h.status)
		r.Get("/ml-status", h.mlStatus)
	})
	return r
}

// ---------- endpoints ----------

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.store.Stats(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("api: stats retrieval failed")
		writeErr(w, http.StatusInternalServerError, "Failed to retrieve system statistics")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	ps, err := h.store.Settings(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("api: settings retrieval failed")
		writeErr(w, http.StatusInternalServerError, "Failed to retrieve PII settings")
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *Handler) putSettings(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	cur, err := h.store.Settings(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("api: settings retrieval failed")
		writeErr(w, http.StatusInternalServerError, "Failed to update PII settings")
		return
	}
	next, err := cur.Patch(body)
	if err != nil {
		writeValidation(w, err)
		return
	}
	saved, err := h.store.SaveSettings(r.Context(), next)
	if err != nil {
		log.Error().Err(err).Msg("api: settings update failed")
		writeErr(w, http.StatusInternalServerError, "Failed to update PII settings")
		return
	}
	log.Info().Interface("settings", saved).Msg("api: settings updated")
	writeJSON(w, http.StatusOK, saved)
}

func (h *Handler) listLogs(w http.ResponseWriter, r *http.Request) {
	limit := store.DefaultLogLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"success": false,
				"message": "Validation failed",
				"details": "limit must be a positive integer",
			})
			return
		}
		limit = n
	}
	logs, err := h.store.RunLogs(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("api: logs retrieval failed")
		writeErr(w, http.StatusInternalServerError, "Failed to retrieve process logs")
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func (h *Handler) getLog(w http.ResponseWriter, r *http.Request) {
	l, ok := h.lookupLog(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (h *Handler) verifyLog(w http.ResponseWriter, r *http.Request) {
	l, ok := h.lookupLog(w, r)
	if !ok {
		return
	}
	resp := map[string]any{"id": l.ID, "signer": l.Signer, "valid": false}
	if err := l.CheckContent(); err != nil {
		resp["reason"] = store.ErrContentMismatch.Error()
		writeJSON(w, http.StatusOK, resp)
		return
	}
	if l.Signature == "" {
		resp["reason"] = "unsigned"
		writeJSON(w, http.StatusOK, resp)
		return
	}
	valid, err := signer.Verify(l.ReceiptPayload(), l.Signature, l.Signer)
	if err != nil {
		resp["reason"] = err.Error()
	}
	resp["valid"] = valid
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) lookupLog(w http.ResponseWriter, r *http.Request) (store.RunLog, bool) {
	l, err := h.store.RunLog(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeErr(w, http.StatusNotFound, "Process log not found")
		return store.RunLog{}, false
	}
	if err != nil {
		log.Error().Err(err).Msg("api: log retrieval failed")
		writeErr(w, http.StatusInternalServerError, "Failed to retrieve process logs")
		return store.RunLog{}, false
	}
	return l, true
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	database := "connected"
	if _, err := h.store.Stats(r.Context()); err != nil {
		log.Warn().Err(err).Msg("api: store unreachable")
		database = "unavailable"
	}
	est := h.engine.Status()
	ml := "fallback"
	if len(est.PersonExtractors) > 1 {
		ml = "active"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"fastApiBackend": "online",
		"aiModel":        responderName(h.responder),
		"database":       database,
		"privacyEngine":  "secured",
		"mlModels":       ml,
		"modelCount":     len(est.PersonExtractors),
		"signer":         h.signer.Address(),
		"timestamp":      h.now().Format(time.RFC3339Nano),
	})
}

func (h *Handler) mlStatus(w http.ResponseWriter, _ *http.Request) {
	est := h.engine.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"initialized":      true,
		"modelCount":       len(est.PersonExtractors),
		"personExtractors": est.PersonExtractors,
		"patterns":         est.Patterns,
		"firstNames":       est.FirstNames,
		"lastNames":        est.LastNames,
		"categories":       est.Categories,
		"timestamp":        h.now().Format(time.RFC3339Nano),
	})
}

// ---------- middleware ----------

func (h *Handler) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		h.metrics.ObserveRequest(potel.RoutePattern(r), status)
	})
}

func (h *Handler) rateLimit(next http.Handler) http.Handler {
	if h.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.limiter.Allow(clientKey(r)) {
			h.metrics.RateLimited.Inc()
			w.Header().Set("Retry-After", "1")
			writeErr(w, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ---------- helpers ----------

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	defer r.Body.Close()
	var raw json.RawMessage
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&raw); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"message": "Validation failed",
			"details": "invalid JSON body: " + err.Error(),
		})
		return nil, false
	}
	return raw, true
}

func writeValidation(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"success": false,
		"message": "Validation failed",
		"details": err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "message": msg})
}
