package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/application"
)

// RequestMetrics records one observation per served request.
type RequestMetrics interface {
	ObserveRequest(method, route, status string, durationSeconds float64)
}

type Options struct {
	Ready          func(ctx context.Context) error
	Metrics        RequestMetrics
	MetricsHandler http.Handler
}

type Handler struct {
	service  *application.Service
	validate *validator.Validate
	opts     Options
}

func NewHandler(service *application.Service, opts Options) *Handler {
	return &Handler{service: service, validate: newValidator(), opts: opts}
}

// NewRouter registers the public license routes, the admin API and the probes.
func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)
	if handler.opts.Metrics != nil {
		r.Use(metricsMiddleware(handler.opts.Metrics))
	}

	r.Get("/healthz", handler.healthz)
	r.Get("/readyz", handler.readyz)
	if handler.opts.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", handler.opts.MetricsHandler)
	}

	r.Route("/v1/licenses", func(r chi.Router) {
		r.Use(handler.rateLimitMiddleware)
		r.Post("/validate", handler.validateLicense)
		r.Post("/activate", handler.activateLicense)
		r.Post("/deactivate", handler.deactivateLicense)
	})

	r.Route("/v1/admin", func(r chi.Router) {
		r.Use(handler.adminMiddleware)
		r.Post("/licenses", handler.createLicense)
		r.Get("/licenses", handler.listLicenses)
		r.Post("/licenses/generate-key", handler.generateKey)
		r.Get("/licenses/by-key/{license_key}", handler.getLicenseByKey)
		r.Get("/licenses/{license_id}", handler.getLicense)
		r.Patch("/licenses/{license_id}", handler.updateLicense)
		r.Delete("/licenses/{license_id}", handler.deleteLicense)
		r.Post("/licenses/{license_id}/activate", handler.enableLicense)
		r.Post("/licenses/{license_id}/deactivate", handler.disableLicense)
		r.Get("/licenses/{license_id}/activations", handler.listLicenseActivations)
		r.Get("/activations", handler.listActivations)
	})

	return r
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusOK, "ok")
}

func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	if h.opts.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.opts.Ready(ctx); err != nil {
			logHTTPOperationError(r.Context(), "readyz", http.StatusServiceUnavailable, "NOT_READY", "dependencies unavailable", err)
			writeError(w, r, http.StatusServiceUnavailable, "NOT_READY", "dependencies unavailable")
			return
		}
	}
	writeMessage(w, http.StatusOK, "ready")
}
