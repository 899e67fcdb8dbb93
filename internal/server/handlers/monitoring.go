package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"git.home.luguber.info/inful/pagesdeploy/internal/concurrency"
	"git.home.luguber.info/inful/pagesdeploy/internal/foundation/errors"
	"git.home.luguber.info/inful/pagesdeploy/internal/server/responses"
	"git.home.luguber.info/inful/pagesdeploy/internal/version"
)

// ActiveRuns lists the runs currently tracked by the concurrency registry.
type ActiveRuns interface {
	Active() []concurrency.Snapshot
}

// MonitoringHandlers serves health.
type MonitoringHandlers struct {
	runs         ActiveRuns
	startTime    time.Time
	errorAdapter *errors.HTTPErrorAdapter
}

// NewMonitoringHandlers creates monitoring handlers.
func NewMonitoringHandlers(runs ActiveRuns, startTime time.Time) *MonitoringHandlers {
	return &MonitoringHandlers{
		runs:         runs,
		startTime:    startTime,
		errorAdapter: errors.NewHTTPErrorAdapter(slog.Default()),
	}
}

// HandleHealthCheck handles /healthz.
func (h *MonitoringHandlers) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.errorAdapter.WriteErrorResponse(w, r, methodNotAllowed(r, http.MethodGet))
		return
	}
	health := &responses.HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   version.Version,
		Uptime:    time.Since(h.startTime).Seconds(),
	}
	if h.runs != nil {
		health.ActiveRuns = len(h.runs.Active())
	}
	respond(h.errorAdapter, w, r, http.StatusOK, health)
}
