package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/jsa498/digitalmarketing/internal/reconcile"
	"github.com/jsa498/digitalmarketing/pkg/response"
)

// StartTime tracks when the agent started for uptime calculation
var StartTime = time.Now()

// StatusReporter exposes the sync status.
type StatusReporter interface {
	Status() reconcile.Status
}

// Pinger checks a backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the health endpoints.
type Handler struct {
	status  StatusReporter
	remote  Pinger
	name    string
	version string
}

// New creates a health handler. remote may be nil.
func New(status StatusReporter, remote Pinger, name, version string) *Handler {
	return &Handler{
		status:  status,
		remote:  remote,
		name:    name,
		version: version,
	}
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

// Health handles GET /api/v1/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	response.OK(w, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   h.version,
	})
}

// ReadyResponse represents the readiness check response.
type ReadyResponse struct {
	Ready     bool      `json:"ready"`
	Timestamp time.Time `json:"timestamp"`
	Checks    []Check   `json:"checks"`
}

// Check represents an individual readiness check.
type Check struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// Ready handles GET /api/v1/ready. The agent is not ready while the remote
// store is unreachable or the last sync failed.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	checks := []Check{{Name: "api", Status: "ok"}}

	if h.remote != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		status := "ok"
		if err := h.remote.Ping(ctx); err != nil {
			status = "unreachable"
		}
		cancel()
		checks = append(checks, Check{Name: "remote_store", Status: status})
	}

	st := h.status.Status()
	syncStatus := "ok"
	switch st.State {
	case reconcile.Error:
		syncStatus = "error"
	case reconcile.Initializing:
		syncStatus = "initializing"
	}
	checks = append(checks, Check{Name: "sync", Status: syncStatus})

	allReady := true
	for _, check := range checks {
		if check.Status != "ok" {
			allReady = false
			break
		}
	}

	code := http.StatusOK
	if !allReady {
		code = http.StatusServiceUnavailable
	}
	response.JSON(w, code, ReadyResponse{
		Ready:     allReady,
		Timestamp: time.Now().UTC(),
		Checks:    checks,
	})
}

// StatusChecks represents the checks in status response
type StatusChecks struct {
	Sync          string  `json:"sync"`
	PendingWrites int     `json:"pending_writes"`
	MemoryMB      float64 `json:"memory_mb"`
}

// StatusResponse is the monitoring summary.
type StatusResponse struct {
	Service       string       `json:"service"`
	Status        string       `json:"status"`
	Timestamp     string       `json:"timestamp"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	Checks        StatusChecks `json:"checks"`
}

// Status handles GET /api/status
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	memoryMB := float64(memStats.Alloc) / 1024 / 1024

	st := h.status.Status()
	overall := "ok"
	if st.State == reconcile.Error {
		overall = "degraded"
	}

	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	response.OK(w, StatusResponse{
		Service:       h.name,
		Status:        overall,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		UptimeSeconds: int64(time.Since(StartTime).Seconds()),
		Checks: StatusChecks{
			Sync:          st.State.String(),
			PendingWrites: st.PendingWrites,
			MemoryMB:      float64(int(memoryMB*100)) / 100,
		},
	})
}
