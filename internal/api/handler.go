// internal/api/handler.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mortgage-underwriting/internal/common/config"
	apperrors "mortgage-underwriting/internal/common/errors"
	"mortgage-underwriting/internal/common/logger"
	"mortgage-underwriting/internal/underwriting/applicant"
	"mortgage-underwriting/internal/underwriting/casestate"
	"mortgage-underwriting/internal/underwriting/checkpoint"
	"mortgage-underwriting/internal/underwriting/service"
)

const maxBodyBytes = 1 << 20

// Service is what the HTTP layer needs from the underwriting service.
type Service interface {
	Submit(ctx context.Context, caseID string, data applicant.Record) (service.Summary, error)
	Resume(ctx context.Context, caseID string) (service.Summary, error)
	Get(ctx context.Context, caseID string) (casestate.State, error)
	Checkpoints(ctx context.Context, caseID string) ([]checkpoint.Checkpoint, error)
}

// ReadyCheck reports whether one backend is reachable.
type ReadyCheck func(ctx context.Context) error

type Handler struct {
	service     Service
	cfg         *config.Config
	readyChecks map[string]ReadyCheck
	metrics     http.Handler
	logger      logger.Logger
}

type Option func(*Handler)

func WithReadyCheck(name string, check ReadyCheck) Option {
	return func(h *Handler) { h.readyChecks[name] = check }
}

// WithMetricsHandler replaces the default Prometheus handler.
func WithMetricsHandler(m http.Handler) Option {
	return func(h *Handler) { h.metrics = m }
}

func New(svc Service, cfg *config.Config, log logger.Logger, opts ...Option) *Handler {
	h := &Handler{
		service:     svc,
		cfg:         cfg,
		readyChecks: map[string]ReadyCheck{},
		metrics:     promhttp.Handler(),
		logger:      log.WithFields(map[string]interface{}{"component": "api"}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Router builds the chi router with every endpoint mounted.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)

	h.Register(r)
	return r
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)
	r.Get("/config", h.Config)
	r.Method(http.MethodGet, "/metrics", h.metrics)

	r.Route("/api", func(r chi.Router) {
		r.Post("/submit", h.Submit)
		r.Get("/loan/{case_id}", h.GetLoan)
		r.Get("/cases/{case_id}/checkpoints", h.Checkpoints)
		r.Post("/cases/{case_id}/resume", h.Resume)
	})
}

// Health always answers 200; configured tells whether a generator backend
// has the credentials it needs.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	configured := false
	var configErr interface{}
	if h.cfg != nil {
		configured = h.cfg.Summary().LLMConfigured
	}
	if !configured {
		configErr = "llm provider is not configured"
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"configured": configured,
		"error":      configErr,
	})
}

func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failing := []string{}
	for name, check := range h.readyChecks {
		if err := check(ctx); err != nil {
			h.logger.Warn("readiness check failed", map[string]interface{}{"check": name, "error": err.Error()})
			failing = append(failing, name)
		}
	}
	sort.Strings(failing)

	if len(failing) > 0 {
		JSON(w, http.StatusServiceUnavailable, map[string]interface{}{"status": "unavailable", "failing": failing})
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"status": "ready"})
}

// Config exposes the secret-free configuration summary.
func (h *Handler) Config(w http.ResponseWriter, r *http.Request) {
	if h.cfg == nil {
		JSON(w, http.StatusOK, config.Status{})
		return
	}
	JSON(w, http.StatusOK, h.cfg.Summary())
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	body, err := decodeObject(w, r)
	if err != nil {
		writeError(w, apperrors.NewInvalidInputError(err.Error()))
		return
	}

	caseID := applicant.AsString(body["case_id"])
	if caseID == "" {
		caseID = casestate.DefaultCaseID
	}

	summary, err := h.service.Submit(r.Context(), caseID, applicant.Record(body))
	if err != nil {
		h.logger.Error("submit failed", map[string]interface{}{"caseId": caseID, "error": err.Error()})
		writeError(w, err)
		return
	}
	JSON(w, http.StatusOK, summary)
}

func (h *Handler) GetLoan(w http.ResponseWriter, r *http.Request) {
	s, err := h.service.Get(r.Context(), chi.URLParam(r, "case_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	JSON(w, http.StatusOK, s)
}

func (h *Handler) Checkpoints(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "case_id")
	history, err := h.service.Checkpoints(r.Context(), caseID)
	if err != nil {
		writeError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"case_id":     caseID,
		"checkpoints": history,
	})
}

func (h *Handler) Resume(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "case_id")
	summary, err := h.service.Resume(r.Context(), caseID)
	if err != nil {
		h.logger.Error("resume failed", map[string]interface{}{"caseId": caseID, "error": err.Error()})
		writeError(w, err)
		return
	}
	JSON(w, http.StatusOK, summary)
}

var errNotObject = errors.New("request body must be a JSON object")

func decodeObject(w http.ResponseWriter, r *http.Request) (map[string]interface{}, error) {
	var body interface{}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errNotObject
		}
		return nil, err
	}
	obj, ok := body.(map[string]interface{})
	if !ok {
		return nil, errNotObject
	}
	return obj, nil
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, err error) {
	stdErr := apperrors.FromError(err)
	body := map[string]interface{}{
		"error":   stdErr.Code,
		"message": stdErr.Message,
	}
	if stdErr.Details != "" {
		body["details"] = stdErr.Details
	}
	if v, ok := stdErr.Metadata["validationErrors"]; ok {
		body["validation_errors"] = v
	}
	JSON(w, apperrors.HTTPStatus(stdErr.Code), body)
}

func requestLogger(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info("http request", map[string]interface{}{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"durationMs": time.Since(start).Milliseconds(),
				"requestId":  middleware.GetReqID(r.Context()),
			})
		})
	}
}
