package eventstore

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/pagesdeploy/internal/logfields"
)

// EventAppender persists typed events. SQLiteStore implements it.
type EventAppender interface {
	AppendEvent(ctx context.Context, e Event) error
}

// Recorder appends events to a store and keeps a projection current.
// Either side may be nil.
type Recorder struct {
	store      EventAppender
	projection *RunHistoryProjection
}

// NewRecorder returns a Recorder writing to store and updating projection.
func NewRecorder(store EventAppender, projection *RunHistoryProjection) *Recorder {
	return &Recorder{store: store, projection: projection}
}

// Emit applies e to the projection and persists it. The projection is updated
// even when persisting fails.
func (r *Recorder) Emit(ctx context.Context, e Event) error {
	if r == nil {
		return nil
	}
	if r.projection != nil {
		r.projection.Apply(e)
	}
	if r.store == nil {
		return nil
	}
	if err := r.store.AppendEvent(ctx, e); err != nil {
		slog.Warn("Failed to persist event", logfields.Event(e.Type()), logfields.RunID(e.RunID()), logfields.Error(err))
		return err
	}
	return nil
}

// Projection returns the run history projection.
func (r *Recorder) Projection() *RunHistoryProjection { return r.projection }
