package eventstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// Run statuses in the projection.
const (
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
	RunStatusCanceled  = "canceled"
)

// RunSummary is the read model of one run.
type RunSummary struct {
	RunID         string            `json:"run_id"`
	Key           string            `json:"key,omitempty"`
	Ref           string            `json:"ref,omitempty"`
	Commit        string            `json:"commit,omitempty"`
	Trigger       string            `json:"trigger,omitempty"`
	Status        string            `json:"status"`
	StartedAt     time.Time         `json:"started_at"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
	Duration      time.Duration     `json:"duration,omitempty"`
	Phases        []string          `json:"phases,omitempty"` // successfully completed phases, in order
	FailedPhase   string            `json:"failed_phase,omitempty"`
	Error         string            `json:"error,omitempty"`
	Artifacts     map[string]string `json:"artifacts,omitempty"`
	PublishStatus string            `json:"publish_status,omitempty"`
	PublishCommit string            `json:"publish_commit,omitempty"`
}

// RunHistoryProjection maintains an in-memory view of recent runs rebuilt from the store.
type RunHistoryProjection struct {
	mu      sync.RWMutex
	store   Store
	runs    map[string]*RunSummary
	maxSize int
}

// NewRunHistoryProjection creates a projection over store keeping at most maxSize finished runs.
func NewRunHistoryProjection(store Store, maxSize int) *RunHistoryProjection {
	if maxSize <= 0 {
		maxSize = 100
	}
	return &RunHistoryProjection{store: store, runs: make(map[string]*RunSummary), maxSize: maxSize}
}

// Rebuild reconstructs the projection from all stored events.
func (p *RunHistoryProjection) Rebuild(ctx context.Context) error {
	events, err := p.store.GetRange(ctx, time.Time{}, time.Now().Add(time.Hour))
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.runs = make(map[string]*RunSummary)
	for _, e := range events {
		p.applyLocked(e)
	}
	p.pruneLocked()
	return nil
}

// Apply folds one event into the projection.
func (p *RunHistoryProjection) Apply(e Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.applyLocked(e)
	p.pruneLocked()
}

func (p *RunHistoryProjection) applyLocked(e Event) {
	runID := e.RunID()
	if runID == "" {
		return
	}
	s, ok := p.runs[runID]
	if !ok {
		s = &RunSummary{RunID: runID, Status: RunStatusRunning, StartedAt: e.Timestamp()}
		p.runs[runID] = s
	}

	switch e.Type() {
	case TypeRunStarted:
		var meta RunStartedMeta
		if err := json.Unmarshal(e.Payload(), &meta); err == nil {
			s.Key, s.Ref, s.Commit, s.Trigger = meta.Key, meta.Ref, meta.Commit, meta.Trigger
		}
		s.StartedAt = e.Timestamp()

	case TypePhaseCompleted:
		var data PhaseCompletedData
		if err := json.Unmarshal(e.Payload(), &data); err == nil && data.Result == "success" {
			s.Phases = append(s.Phases, data.Phase)
		}

	case TypeSitePublished:
		var data SitePublishedData
		if err := json.Unmarshal(e.Payload(), &data); err == nil {
			s.PublishStatus = data.Status
			s.PublishCommit = data.Commit
		}

	case TypeRunSucceeded:
		var data RunSucceededData
		if err := json.Unmarshal(e.Payload(), &data); err == nil {
			s.Artifacts = data.Artifacts
		}
		p.finishLocked(s, RunStatusSucceeded, e.Timestamp())

	case TypeRunFailed:
		var data RunFailedData
		if err := json.Unmarshal(e.Payload(), &data); err == nil {
			s.FailedPhase = data.Phase
			s.Error = data.Error
		}
		p.finishLocked(s, RunStatusFailed, e.Timestamp())

	case TypeRunCanceled:
		var data RunCanceledData
		if err := json.Unmarshal(e.Payload(), &data); err == nil {
			s.Error = data.Reason
		}
		p.finishLocked(s, RunStatusCanceled, e.Timestamp())
	}
}

func (p *RunHistoryProjection) finishLocked(s *RunSummary, status string, at time.Time) {
	s.Status = status
	s.CompletedAt = &at
	s.Duration = at.Sub(s.StartedAt)
}

// pruneLocked drops the oldest finished runs beyond maxSize. Running runs are kept.
func (p *RunHistoryProjection) pruneLocked() {
	finished := make([]*RunSummary, 0, len(p.runs))
	for _, s := range p.runs {
		if s.Status != RunStatusRunning {
			finished = append(finished, s)
		}
	}
	if len(finished) <= p.maxSize {
		return
	}
	sortNewestFirst(finished)
	for _, s := range finished[p.maxSize:] {
		delete(p.runs, s.RunID)
	}
}

// List returns up to limit runs, newest first. A limit <= 0 returns all.
func (p *RunHistoryProjection) List(limit int) []RunSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()

	all := make([]*RunSummary, 0, len(p.runs))
	for _, s := range p.runs {
		all = append(all, s)
	}
	sortNewestFirst(all)
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	out := make([]RunSummary, len(all))
	for i, s := range all {
		out[i] = copySummary(s)
	}
	return out
}

// Get returns the summary of one run.
func (p *RunHistoryProjection) Get(runID string) (RunSummary, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.runs[runID]
	if !ok {
		return RunSummary{}, false
	}
	return copySummary(s), true
}

func copySummary(s *RunSummary) RunSummary {
	cp := *s
	cp.Phases = append([]string(nil), s.Phases...)
	return cp
}

func sortNewestFirst(runs []*RunSummary) {
	sort.SliceStable(runs, func(i, j int) bool {
		if runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].RunID > runs[j].RunID
		}
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
}
