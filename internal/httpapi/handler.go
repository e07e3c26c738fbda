package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"wled_mapper/core-go/internal/device"
	"wled_mapper/core-go/internal/discovery"
	"wled_mapper/core-go/internal/mapping"
	"wled_mapper/core-go/internal/metrics"
	"wled_mapper/core-go/internal/session"
)

// Browser lists controllers announced on the local network.
type Browser interface {
	Browse(ctx context.Context) ([]discovery.Candidate, error)
}

type Handler struct {
	log      zerolog.Logger
	sessions *session.Manager
	browser  Browser
	metrics  *metrics.Metrics
}

func NewHandler(log zerolog.Logger, sessions *session.Manager, browser Browser, m *metrics.Metrics) *Handler {
	return &Handler{log: log, sessions: sessions, browser: browser, metrics: m}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Use(h.accessLog)

	// Health
	r.Get("/healthz", h.handleHealthz)
	r.Get("/readyz", h.handleReadyZ)
	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())

	// API
	r.Route("/api", func(r chi.Router) {
		r.Route("/v1", func(r chi.Router) {
			r.Route("/session", func(r chi.Router) {
				r.Post("/", h.handleOpenSession)
				r.Get("/", h.handleGetSession)
				r.Delete("/", h.handleCloseSession)
				r.Get("/nodes", h.handleGetNodes)
				r.Post("/nodes/reorder", h.handleReorder)
				r.Post("/nodes/reset", h.handleReset)
				r.Post("/highlight", h.handleHighlight)
				r.Post("/write", h.handleWrite)
				r.Post("/commit", h.handleCommit)
				r.Get("/ledmap", h.handleLedMap)
			})

			r.Route("/discovery", func(r chi.Router) {
				r.Get("/controllers", h.handleDiscoverControllers)
			})
		})
	})

	return r
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		elapsed := time.Since(start)
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		h.metrics.ObserveHTTPRequest(r.Method, route, ww.Status(), elapsed)

		h.log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Int64("duration_ms", elapsed.Milliseconds()).
			Msg("http_request")
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, msg string, details map[string]any) {
	resp := map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": msg,
		},
	}
	if details != nil {
		resp["error"].(map[string]any)["details"] = details
	}
	h.writeJSON(w, status, resp)
}

// writeSessionError maps session, device and mapping errors onto API error codes.
func (h *Handler) writeSessionError(w http.ResponseWriter, err error) {
	details := map[string]any{"error": err.Error()}
	switch {
	case errors.Is(err, session.ErrNoSession):
		h.writeError(w, http.StatusConflict, "no_session", "no session is open", nil)
	case errors.Is(err, mapping.ErrUnknownPixel):
		h.writeError(w, http.StatusNotFound, "unknown_pixel", "pixel is not part of the node set", details)
	case errors.Is(err, device.ErrValidation), errors.Is(err, mapping.ErrInvalidMapping):
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid session input", details)
	case errors.Is(err, device.ErrConfigRevisionMismatch):
		h.writeError(w, http.StatusBadGateway, "config_revision_mismatch", "controller config revision is not supported", details)
	case errors.Is(err, device.ErrConfigInvalid):
		h.writeError(w, http.StatusBadGateway, "config_invalid", "controller config is missing required fields", details)
	case errors.Is(err, device.ErrTransport):
		h.writeError(w, http.StatusBadGateway, "controller_unreachable", "controller request failed", details)
	case errors.Is(err, device.ErrNotConnected):
		h.writeError(w, http.StatusConflict, "not_connected", "device is not connected", nil)
	default:
		h.log.Error().Err(err).Msg("session operation failed")
		h.writeError(w, http.StatusInternalServerError, "internal_error", "session operation failed", nil)
	}
}

func decodeJSONStrict(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return errors.New("unexpected extra data after JSON body")
		}
		return err
	}
	return nil
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleReadyZ(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil || !h.sessions.Connected() {
		h.writeError(w, http.StatusServiceUnavailable, "not_connected", "no connected session", nil)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"ready": true})
}

func (h *Handler) ensureSessions(w http.ResponseWriter) bool {
	if h.sessions == nil {
		h.writeError(w, http.StatusServiceUnavailable, "session_unavailable", "session manager not configured", nil)
		return false
	}
	return true
}

type sessionOpen struct {
	Host       string          `json:"host,omitempty"`
	PixelCount *int            `json:"pixel_count,omitempty"`
	Mapping    json.RawMessage `json:"mapping,omitempty"`
}

func (req sessionOpen) setup() session.Setup {
	setup := session.Setup{Host: req.Host, PixelCount: req.PixelCount}
	raw := strings.TrimSpace(string(req.Mapping))
	// The ledmap may arrive as an object or as a string holding the document.
	if strings.HasPrefix(raw, `"`) {
		var text string
		if err := json.Unmarshal([]byte(raw), &text); err == nil {
			raw = strings.TrimSpace(text)
		}
	}
	if raw != "" && raw != "null" {
		setup.Mapping = raw
	}
	return setup
}

type reorderRequest struct {
	LedIndex *int `json:"led_index"`
	PosIndex *int `json:"pos_index"`
}

type highlightRequest struct {
	LedIndex *int `json:"led_index"`
}

type writeResponse struct {
	Written       bool   `json:"written"`
	CommitPending bool   `json:"commit_pending"`
	CommitURL     string `json:"commit_url,omitempty"`
	Advisory      string `json:"advisory,omitempty"`
}

func (h *Handler) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	var req sessionOpen
	if err := decodeJSONStrict(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
		return
	}
	if !h.ensureSessions(w) {
		return
	}

	st, err := h.sessions.Open(r.Context(), req.setup())
	if err != nil {
		h.writeSessionError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, st)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if !h.ensureSessions(w) {
		return
	}
	st, err := h.sessions.Status()
	if err != nil {
		h.writeSessionError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, st)
}

func (h *Handler) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if !h.ensureSessions(w) {
		return
	}
	h.sessions.Close()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetNodes(w http.ResponseWriter, r *http.Request) {
	if !h.ensureSessions(w) {
		return
	}
	view, err := h.sessions.View()
	if err != nil {
		h.writeSessionError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleReorder(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if err := decodeJSONStrict(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
		return
	}
	if req.LedIndex == nil || req.PosIndex == nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "led_index and pos_index are required", nil)
		return
	}
	if !h.ensureSessions(w) {
		return
	}

	view, err := h.sessions.Reorder(*req.LedIndex, *req.PosIndex)
	if err != nil {
		h.writeSessionError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	if !h.ensureSessions(w) {
		return
	}
	view, err := h.sessions.Reset()
	if err != nil {
		h.writeSessionError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleHighlight(w http.ResponseWriter, r *http.Request) {
	var req highlightRequest
	if err := decodeJSONStrict(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
		return
	}
	if req.LedIndex == nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "led_index is required", nil)
		return
	}
	if !h.ensureSessions(w) {
		return
	}

	dispatched, err := h.sessions.Highlight(r.Context(), *req.LedIndex)
	if err != nil {
		h.writeSessionError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"dispatched": dispatched})
}

func (h *Handler) handleWrite(w http.ResponseWriter, r *http.Request) {
	if !h.ensureSessions(w) {
		return
	}
	res, err := h.sessions.Write(r.Context())
	if err != nil {
		h.writeSessionError(w, err)
		return
	}

	resp := writeResponse{
		Written:       res.Written,
		CommitPending: res.CommitPending,
		CommitURL:     res.CommitURL,
	}
	if adv := res.Advisory(); adv != nil {
		resp.Advisory = adv.Error()
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleCommit(w http.ResponseWriter, r *http.Request) {
	if !h.ensureSessions(w) {
		return
	}
	st, err := h.sessions.AcknowledgeCommit()
	if err != nil {
		h.writeSessionError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, st)
}

func (h *Handler) handleLedMap(w http.ResponseWriter, r *http.Request) {
	if !h.ensureSessions(w) {
		return
	}
	p, err := h.sessions.Persisted()
	if err != nil {
		h.writeSessionError(w, err)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="ledmap.json"`)
	h.writeJSON(w, http.StatusOK, mapping.LedMap{Map: p})
}

func (h *Handler) handleDiscoverControllers(w http.ResponseWriter, r *http.Request) {
	if h.browser == nil {
		h.writeError(w, http.StatusServiceUnavailable, "discovery_unavailable", "discovery not configured", nil)
		return
	}

	found, err := h.browser.Browse(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("controller discovery failed")
		h.writeError(w, http.StatusBadGateway, "discovery_failed", "controller discovery failed", map[string]any{"error": err.Error()})
		return
	}
	if found == nil {
		found = []discovery.Candidate{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"controllers": found})
}
