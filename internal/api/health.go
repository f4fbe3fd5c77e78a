package api

import (
	"context"
	"net/http"
	"sort"
	"time"
)

// CheckFunc reports whether a dependency is reachable.
type CheckFunc func(ctx context.Context) error

type HealthHandler struct {
	service string
	env     string
	version string
	checks  map[string]CheckFunc
}

func NewHealthHandler(service, env, version string, checks map[string]CheckFunc) *HealthHandler {
	return &HealthHandler{
		service: service,
		env:     env,
		version: version,
		checks:  checks,
	}
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Service   string    `json:"service"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
}

type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Env     string `json:"env,omitempty"`
}

type ReadinessResponse struct {
	Status       string            `json:"status"`
	Version      string            `json:"version,omitempty"`
	Env          string            `json:"env,omitempty"`
	Dependencies map[string]string `json:"dependencies"`
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeRaw(w, http.StatusOK, LivenessResponse{
		Status:  "ok",
		Version: h.version,
		Env:     h.env,
	})
}

// probe runs every check. Postgres being down makes the service unhealthy;
// any other failure only degrades it.
func (h *HealthHandler) probe(ctx context.Context) (string, map[string]string) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	deps := make(map[string]string, len(names))
	status := "ok"
	for _, name := range names {
		checkCtx, checkCancel := context.WithTimeout(ctx, time.Second)
		err := h.checks[name](checkCtx)
		checkCancel()

		if err == nil {
			deps[name] = "ok"
			continue
		}
		deps[name] = "down"
		if name == "postgres" {
			status = "error"
		} else if status == "ok" {
			status = "degraded"
		}
	}
	return status, deps
}

func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	status, deps := h.probe(r.Context())

	httpStatus := http.StatusOK
	if status == "error" {
		httpStatus = http.StatusServiceUnavailable
	}

	writeRaw(w, httpStatus, ReadinessResponse{
		Status:       status,
		Version:      h.version,
		Env:          h.env,
		Dependencies: deps,
	})
}

// Health answers in the shape the frontend polls: healthy, degraded or unhealthy.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	status, _ := h.probe(r.Context())

	resp := HealthResponse{
		Status:    "healthy",
		Service:   h.service,
		Timestamp: time.Now().UTC(),
		Version:   h.version,
	}
	httpStatus := http.StatusOK
	switch status {
	case "degraded":
		resp.Status = "degraded"
	case "error":
		resp.Status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	writeRaw(w, httpStatus, resp)
}
