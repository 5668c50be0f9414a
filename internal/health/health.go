// Package health provides health check endpoints for the fieldguard service.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/welldanyogia/fieldguard/internal/metrics"
)

// ServiceStatus represents the status of a single dependency
type ServiceStatus struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse represents the structured health check response
type HealthResponse struct {
	Status    string                   `json:"status"`
	Timestamp string                   `json:"timestamp"`
	Services  map[string]ServiceStatus `json:"services"`
	Version   string                   `json:"version,omitempty"`
}

// ReadinessResponse represents the readiness probe response. Services lists
// the dependencies that were checked; it is empty while draining.
type ReadinessResponse struct {
	Ready     bool                     `json:"ready"`
	Timestamp string                   `json:"timestamp"`
	Services  map[string]ServiceStatus `json:"services,omitempty"`
}

// LivenessResponse represents the liveness probe response
type LivenessResponse struct {
	Alive     bool   `json:"alive"`
	Timestamp string `json:"timestamp"`
}

// Limiter is a rate limiter whose store can be probed.
// *ratelimit.Limiter satisfies it.
type Limiter interface {
	Name() string
	Ping(ctx context.Context) error
}

// Handler handles health check requests
type Handler struct {
	db       *sqlx.DB
	limiters []Limiter
	version  string
	timeout  time.Duration
	ready    bool
	mu       sync.RWMutex
}

// Config holds health handler configuration
type Config struct {
	DB       *sqlx.DB
	Limiters []Limiter
	Version  string
	Timeout  time.Duration
}

// NewHandler creates a new health check handler
func NewHandler(cfg Config) *Handler {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	return &Handler{
		db:       cfg.DB,
		limiters: cfg.Limiters,
		version:  cfg.Version,
		timeout:  timeout,
		ready:    true,
	}
}

// SetReady sets the readiness state of the service
func (h *Handler) SetReady(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready = ready
}

// IsReady returns the current readiness state
func (h *Handler) IsReady() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ready
}

// check probes the database and every limiter store.
// Field requests cannot be served unless all of them are up.
func (h *Handler) check(ctx context.Context) (map[string]ServiceStatus, bool) {
	services := map[string]ServiceStatus{
		"database": h.checkDatabase(ctx),
	}
	for _, l := range h.limiters {
		services["limiter:"+l.Name()] = probe(func() error { return l.Ping(ctx) })
	}

	up := true
	for _, s := range services {
		if s.Status != "up" {
			up = false
		}
	}
	return services, up
}

// Health handles the main health check endpoint
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	services, up := h.check(ctx)
	status := "healthy"
	if !up {
		status = "degraded"
	}

	writeJSON(w, up, HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  services,
		Version:   h.version,
	})
}

// Readiness handles the readiness probe endpoint
func (h *Handler) Readiness(w http.ResponseWriter, r *http.Request) {
	response := ReadinessResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	if h.IsReady() {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		defer cancel()
		response.Services, response.Ready = h.check(ctx)
	}

	writeJSON(w, response.Ready, response)
}

// Liveness handles the liveness probe endpoint
func (h *Handler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, true, LivenessResponse{
		Alive:     true,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// checkDatabase checks PostgreSQL connectivity
func (h *Handler) checkDatabase(ctx context.Context) ServiceStatus {
	if h.db == nil {
		return ServiceStatus{
			Status: "down",
			Error:  "database not configured",
		}
	}
	return probe(func() error { return metrics.PingDatabase(ctx, h.db) })
}

// probe times ping and reports the result
func probe(ping func() error) ServiceStatus {
	start := time.Now()
	err := ping()
	latency := time.Since(start)

	if err != nil {
		return ServiceStatus{
			Status:  "down",
			Latency: latency.String(),
			Error:   err.Error(),
		}
	}
	return ServiceStatus{
		Status:  "up",
		Latency: latency.String(),
	}
}

func writeJSON(w http.ResponseWriter, ok bool, body any) {
	w.Header().Set("Content-Type", "application/json")
	if ok {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(body)
}
