package daemon

import (
	"context"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/pagesdeploy/internal/config"
	"git.home.luguber.info/inful/pagesdeploy/internal/logfields"
	"git.home.luguber.info/inful/pagesdeploy/internal/pipeline"
	"git.home.luguber.info/inful/pagesdeploy/internal/workspace"
)

const (
	housekeepingInterval      = time.Hour
	defaultWorkspaceRetention = 24 * time.Hour
	defaultHistoryRetention   = 30 * 24 * time.Hour
)

// HistoryPruner deletes recorded events older than a cutoff.
type HistoryPruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// Housekeeper removes stale run workspaces and old history. Retention values are
// read from the current configuration on every pass.
type Housekeeper struct {
	config     pipeline.ConfigSource
	workspaces *workspace.Manager
	history    HistoryPruner
	now        func() time.Time
}

// NewHousekeeper returns a housekeeper. history may be nil.
func NewHousekeeper(src pipeline.ConfigSource, workspaces *workspace.Manager, history HistoryPruner) *Housekeeper {
	return &Housekeeper{config: src, workspaces: workspaces, history: history, now: time.Now}
}

// PruneWorkspaces removes workspaces older than workspace.retention.
func (h *Housekeeper) PruneWorkspaces() int {
	retention := config.ParseRetention(h.config.Current().Workspace.Retention, defaultWorkspaceRetention)
	removed, err := h.workspaces.Prune(retention)
	if err != nil {
		slog.Warn("Workspace pruning failed", logfields.Path(h.workspaces.BaseDir()), logfields.Error(err))
		return removed
	}
	if removed > 0 {
		slog.Info("Pruned run workspaces", slog.Int("removed", removed), slog.Duration("retention", retention))
	}
	return removed
}

// PruneHistory removes events older than history.retention.
func (h *Housekeeper) PruneHistory(ctx context.Context) int64 {
	if h.history == nil {
		return 0
	}
	retention := config.ParseRetention(h.config.Current().History.Retention, defaultHistoryRetention)
	removed, err := h.history.Prune(ctx, h.now().Add(-retention))
	if err != nil {
		slog.Warn("History pruning failed", logfields.Error(err))
		return 0
	}
	if removed > 0 {
		slog.Info("Pruned run history", slog.Int64("removed", removed), slog.Duration("retention", retention))
	}
	return removed
}

// Schedule registers both passes on s.
func (h *Housekeeper) Schedule(ctx context.Context, s *Scheduler) error {
	if _, err := s.ScheduleEvery("prune-workspaces", housekeepingInterval, func() { h.PruneWorkspaces() }); err != nil {
		return err
	}
	if h.history != nil {
		if _, err := s.ScheduleEvery("prune-history", housekeepingInterval, func() { h.PruneHistory(ctx) }); err != nil {
			return err
		}
	}
	return nil
}
