package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/hackgods/opd-appointment-booking/internal/booking"
	"github.com/hackgods/opd-appointment-booking/internal/metrics"
)

type RouterConfig struct {
	Ledger    *booking.Ledger
	Query     *booking.QueryService
	Health    *HealthHandler
	Metrics   *metrics.Collector // optional
	Logger    zerolog.Logger
	JWTSecret string // empty disables bearer identities
	Service   string
	Version   string
}

type indexResponse struct {
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	Endpoints []string `json:"endpoints"`
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	if cfg.Metrics != nil {
		r.Use(MetricsMiddleware(cfg.Metrics))
	}
	r.Use(RecoverMiddleware(cfg.Logger))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeRaw(w, http.StatusOK, indexResponse{
			Name:    cfg.Service,
			Version: cfg.Version,
			Endpoints: []string{
				"/health",
				"/api/v1/doctors",
				"/api/v1/doctors/{id}/availability",
				"/api/v1/appointments",
			},
		})
	})

	// Health endpoints
	if cfg.Health != nil {
		r.Get("/health", cfg.Health.Health)
		r.Get("/health/live", cfg.Health.Liveness)
		r.Get("/health/ready", cfg.Health.Readiness)
	}
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/doctors", listDoctorsHandler(cfg.Query))
		r.Get("/doctors/{id}/availability", doctorAvailabilityHandler(cfg.Query))

		// Appointment endpoints
		r.Group(func(r chi.Router) {
			if cfg.JWTSecret != "" {
				r.Use(BearerIdentityMiddleware([]byte(cfg.JWTSecret)))
			}
			r.Post("/appointments", createAppointmentHandler(cfg.Ledger))
			r.Get("/appointments", listAppointmentsHandler(cfg.Ledger))
			r.Get("/appointments/{id}", getAppointmentHandler(cfg.Query))
			r.Get("/appointments/{id}/history", appointmentHistoryHandler(cfg.Ledger))
			r.Post("/appointments/{id}/transition", transitionAppointmentHandler(cfg.Ledger))
			r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Ledger))
		})
	})

	return r
}
