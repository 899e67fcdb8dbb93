package build

import (
	"context"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/pagesdeploy/internal/logfields"
)

// Observer receives phase lifecycle notifications.
type Observer interface {
	OnPhaseStart(phase PhaseName)
	OnPhaseComplete(phase PhaseName, duration time.Duration, result PhaseResult)
}

type noopObserver struct{}

func (noopObserver) OnPhaseStart(PhaseName)                                {}
func (noopObserver) OnPhaseComplete(PhaseName, time.Duration, PhaseResult) {}

// runPhases executes phases in order, recording timing and stopping on the first error.
// Cancellation is only observed at phase boundaries.
func runPhases(ctx context.Context, st *state, phases []phaseDef, obs Observer) error {
	for _, ph := range phases {
		select {
		case <-ctx.Done():
			pe := &PhaseError{Kind: PhaseErrorCanceled, Phase: ph.Name, Err: ctx.Err()}
			st.report.record(ph.Name, 0, PhaseResultCanceled, pe)
			obs.OnPhaseComplete(ph.Name, 0, PhaseResultCanceled)
			return pe
		default:
		}

		obs.OnPhaseStart(ph.Name)
		slog.Info("Phase started", logfields.Phase(string(ph.Name)))

		t0 := time.Now()
		err := ph.Fn(ctx, st)
		dur := time.Since(t0)

		if err != nil {
			pe := &PhaseError{Kind: PhaseErrorFatal, Phase: ph.Name, Err: err}
			st.report.record(ph.Name, dur, PhaseResultFatal, pe)
			obs.OnPhaseComplete(ph.Name, dur, PhaseResultFatal)
			slog.Error("Phase failed", logfields.Phase(string(ph.Name)), logfields.Duration(dur), logfields.Error(err))
			return pe
		}

		st.report.record(ph.Name, dur, PhaseResultSuccess, nil)
		obs.OnPhaseComplete(ph.Name, dur, PhaseResultSuccess)
		slog.Info("Phase completed", logfields.Phase(string(ph.Name)), logfields.Duration(dur))
	}
	return nil
}
