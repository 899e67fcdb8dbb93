package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"git.home.luguber.info/inful/pagesdeploy/internal/eventstore"
	"git.home.luguber.info/inful/pagesdeploy/internal/foundation/errors"
	"git.home.luguber.info/inful/pagesdeploy/internal/pipeline"
	"git.home.luguber.info/inful/pagesdeploy/internal/server/responses"
)

const defaultRunsLimit = 20

// JobLookup finds runs the server dispatched.
type JobLookup interface {
	Job(id string) (pipeline.Job, bool)
}

// RunHistory reads recorded runs.
type RunHistory interface {
	List(limit int) []eventstore.RunSummary
	Get(runID string) (eventstore.RunSummary, bool)
}

// RunHandlers serves run status.
type RunHandlers struct {
	active       ActiveRuns
	jobs         JobLookup
	history      RunHistory
	errorAdapter *errors.HTTPErrorAdapter
}

// NewRunHandlers creates run handlers. history may be nil when no event store is configured.
func NewRunHandlers(active ActiveRuns, jobs JobLookup, history RunHistory) *RunHandlers {
	return &RunHandlers{
		active:       active,
		jobs:         jobs,
		history:      history,
		errorAdapter: errors.NewHTTPErrorAdapter(slog.Default()),
	}
}

// HandleList handles GET /runs?limit=N.
func (h *RunHandlers) HandleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.errorAdapter.WriteErrorResponse(w, r, methodNotAllowed(r, http.MethodGet))
		return
	}
	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.errorAdapter.WriteErrorResponse(w, r, errors.ValidationError("limit must be a non-negative integer").
				WithContext("limit", raw).
				Build())
			return
		}
		limit = n
	}

	resp := responses.RunsResponse{Active: h.active.Active()}
	if h.history != nil {
		resp.History = h.history.List(limit)
	}
	respond(h.errorAdapter, w, r, http.StatusOK, resp)
}

// HandleGet handles GET /runs/{id}.
func (h *RunHandlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.errorAdapter.WriteErrorResponse(w, r, methodNotAllowed(r, http.MethodGet))
		return
	}
	id := r.PathValue("id")

	resp := responses.RunResponse{ID: id}
	found := false
	if h.jobs != nil {
		if job, ok := h.jobs.Job(id); ok {
			resp.Status = string(job.Status)
			resp.Report = job.Report
			found = true
		}
	}
	if h.history != nil {
		if s, ok := h.history.Get(id); ok {
			resp.Summary = &s
			if !found {
				resp.Status = s.Status
			}
			found = true
		}
	}
	if !found {
		h.errorAdapter.WriteErrorResponse(w, r, errors.NewError(errors.CategoryNotFound, "run not found").
			WithContext("run_id", id).
			Build())
		return
	}
	respond(h.errorAdapter, w, r, http.StatusOK, resp)
}
