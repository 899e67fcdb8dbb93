// Package responses defines the JSON bodies returned by the trigger server.
package responses

import (
	"time"

	"git.home.luguber.info/inful/pagesdeploy/internal/concurrency"
	"git.home.luguber.info/inful/pagesdeploy/internal/eventstore"
	"git.home.luguber.info/inful/pagesdeploy/internal/pipeline"
)

// HealthResponse is the body of /healthz.
type HealthResponse struct {
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
	Version    string    `json:"version"`
	Uptime     float64   `json:"uptime"`
	ActiveRuns int       `json:"active_runs"`
}

// WebhookResponse acknowledges a webhook delivery.
type WebhookResponse struct {
	Status string `json:"status"` // accepted, ignored, pong
	RunID  string `json:"run_id,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// RunsResponse lists live and recorded runs.
type RunsResponse struct {
	Active  []concurrency.Snapshot  `json:"active"`
	History []eventstore.RunSummary `json:"history"`
}

// RunResponse describes one run. Report is set while the server still holds the
// in-memory report; Summary comes from the run history.
type RunResponse struct {
	ID      string                 `json:"id"`
	Status  string                 `json:"status"`
	Report  *pipeline.RunReport    `json:"report,omitempty"`
	Summary *eventstore.RunSummary `json:"summary,omitempty"`
}
