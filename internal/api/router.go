// Package api exposes the chat service over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gasdesk/agent-server/internal/agent/model"
	errx "github.com/gasdesk/agent-server/internal/core/error"
	logx "github.com/gasdesk/agent-server/pkg/logger"
)

const maxRequestBodySize = 1 << 20

// ChatService is implemented by *chat.Service.
type ChatService interface {
	ProcessMessage(ctx context.Context, req model.ChatRequest) (model.ChatResponse, error)
	SessionHistory(ctx context.Context, sessionID string) (model.Session, error)
	Profile(ctx context.Context, userID string) (model.UserProfile, error)
	UpdateProfile(ctx context.Context, userID string, patch model.ProfilePatch) (model.UserProfile, error)
	SearchHistory(ctx context.Context, query string, limit int) ([]model.SearchHit, error)
}

type Handler struct {
	svc   ChatService
	tools ToolInvoker
}

func NewHandler(svc ChatService, opts ...HandlerOption) *Handler {
	h := &Handler{svc: svc}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// NewRouter builds the HTTP surface. gatherer backs /metrics; nil uses the default registry.
func NewRouter(h *Handler, gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	h.RegisterRoutes(r)
	return r
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", h.Chat)
		r.Get("/session/{sessionID}", h.GetSession)
		r.Get("/profile/{userID}", h.GetProfile)
		r.Put("/profile/{userID}", h.UpdateProfile)
		r.Get("/history/search", h.SearchHistory)
		if h.tools != nil {
			r.Post("/mcp/tool_call", h.ToolCall)
		}
	})
}

func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req model.ChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := h.svc.ProcessMessage(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.SessionHistory(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Profile(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var patch model.ProfilePatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.svc.UpdateProfile(r.Context(), chi.URLParam(r, "userID"), patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type searchResponse struct {
	Query   string            `json:"query"`
	Results []model.SearchHit `json:"results"`
}

func (h *Handler) SearchHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, r, errx.BadRequest(errors.New("limit must be a non-negative integer")))
			return
		}
		limit = n
	}
	hits, err := h.svc.SearchHistory(r.Context(), q, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if hits == nil {
		hits = []model.SearchHit{}
	}
	writeJSON(w, http.StatusOK, searchResponse{Query: q, Results: hits})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errx.BadRequest(err)
	}
	return nil
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errx.StatusOf(err)
	msg := errx.MessageOf(err)
	if status == http.StatusBadRequest {
		// validation details are safe to show
		msg = err.Error()
	}
	ev := logx.Warn()
	if status >= http.StatusInternalServerError {
		ev = logx.Error()
	}
	ev.Err(err).Int("status", status).Str("path", r.URL.Path).Str("request_id", chiMiddleware.GetReqID(r.Context())).Msg("request failed")
	writeJSON(w, status, errorResponse{Error: msg, RequestID: chiMiddleware.GetReqID(r.Context())})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logx.Error().Err(err).Msg("failed to encode response")
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			logx.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", chiMiddleware.GetReqID(r.Context())).
				Msg("http request")
		}()
		next.ServeHTTP(ww, r)
	})
}
