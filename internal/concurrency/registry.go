package concurrency

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"git.home.luguber.info/inful/pagesdeploy/internal/foundation/errors"
	"git.home.luguber.info/inful/pagesdeploy/internal/logfields"
)

// Key identifies a concurrency group.
type Key struct {
	Workflow string
	Ref      string
}

// String renders the key as "<workflow>-<ref>".
func (k Key) String() string { return k.Workflow + "-" + k.Ref }

// State is the lifecycle state of a run handle.
type State string

const (
	StateIdle      State = "idle"
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateCanceled  State = "canceled"
)

// IsTerminal reports whether s is a final state.
func (s State) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCanceled
}

// ErrSuperseded is the cancellation cause of a run replaced by a newer one.
var ErrSuperseded = errors.CanceledError("superseded by a newer run in the same concurrency group").Build()

// Handle is a run's membership in its group.
type Handle struct {
	id      string
	key     Key
	seq     uint64
	created time.Time

	ctx    context.Context
	cancel context.CancelCauseFunc
	ready  chan struct{} // closed when the handle becomes current

	// guarded by Registry.mu
	state     State
	canceled  bool
	holdsSlot bool
}

// ID returns the run ID the handle was started with.
func (h *Handle) ID() string { return h.id }

// Key returns the handle's group.
func (h *Handle) Key() Key { return h.key }

// Seq is the start order of the handle within the registry.
func (h *Handle) Seq() uint64 { return h.seq }

// Context is canceled when the run is superseded or its parent context ends.
func (h *Handle) Context() context.Context { return h.ctx }

type group struct {
	current *Handle
	pending *Handle
	slot    chan struct{}
}

// Registry maps concurrency keys to their current run.
type Registry struct {
	mu               sync.Mutex
	groups           map[Key]*group
	seq              uint64
	cancelInProgress bool
}

// Option customizes a Registry.
type Option func(*Registry)

// WithCancelInProgress selects whether a new run cancels the running one (true) or
// waits for it (false). When waiting, only the newest waiting run is kept.
func WithCancelInProgress(cancel bool) Option {
	return func(r *Registry) { r.cancelInProgress = cancel }
}

// NewRegistry returns an empty registry that cancels in-progress runs.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{groups: make(map[Key]*group), cancelInProgress: true}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) group(key Key) *group {
	g, ok := r.groups[key]
	if !ok {
		g = &group{slot: make(chan struct{}, 1)}
		r.groups[key] = g
	}
	return g
}

// Start makes a new run current in key's group and returns its handle. The handle's
// context derives from parent.
//
// In cancel mode a running run in the group is canceled immediately and Start never
// blocks. In queue mode Start blocks until the group is free; a later Start for the
// same group supersedes a run still waiting, which then returns ErrSuperseded.
func (r *Registry) Start(parent context.Context, key Key, runID string) (*Handle, error) {
	ctx, cancel := context.WithCancelCause(parent)

	r.mu.Lock()
	r.seq++
	h := &Handle{
		id:      runID,
		key:     key,
		seq:     r.seq,
		created: time.Now(),
		ctx:     ctx,
		cancel:  cancel,
		ready:   make(chan struct{}),
		state:   StateQueued,
	}
	g := r.group(key)

	active := g.current != nil && !g.current.state.IsTerminal()
	switch {
	case !active:
		r.promote(g, h)
		r.mu.Unlock()
		return h, nil
	case r.cancelInProgress:
		r.cancelLocked(g.current, ErrSuperseded)
		r.promote(g, h)
		r.mu.Unlock()
		return h, nil
	}

	if g.pending != nil {
		r.cancelLocked(g.pending, ErrSuperseded)
	}
	g.pending = h
	r.mu.Unlock()

	slog.Info("Run queued behind active run", logfields.RunID(runID), logfields.RunKey(key.String()))
	select {
	case <-h.ready:
		return h, nil
	case <-ctx.Done():
		r.mu.Lock()
		if g.pending == h {
			g.pending = nil
		}
		promoted := g.current == h
		if !promoted {
			h.state = StateCanceled
			h.canceled = true
		}
		r.mu.Unlock()
		if promoted {
			return h, nil
		}
		return h, canceledError(h)
	}
}

// promote makes h current. Caller holds r.mu.
func (r *Registry) promote(g *group, h *Handle) {
	g.current = h
	h.state = StateRunning
	close(h.ready)
}

// cancelLocked marks h canceled and cancels its context. Caller holds r.mu.
func (r *Registry) cancelLocked(h *Handle, cause error) {
	if h.canceled || h.state.IsTerminal() {
		return
	}
	h.canceled = true
	if h.state != StateRunning || !h.holdsSlot {
		h.state = StateCanceled
	}
	h.cancel(cause)
	slog.Info("Run canceled", logfields.RunID(h.id), logfields.RunKey(h.key.String()), logfields.Error(cause))
}

// Cancel cancels the run behind h if it has not finished.
func (r *Registry) Cancel(h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelLocked(h, context.Canceled)
}

// BeginDeploy admits h to its group's deploy slot. It fails with a canceled error when
// h has been canceled or is no longer current, including while waiting for the slot.
// On success the returned release func must be called when the deploy ends.
func (r *Registry) BeginDeploy(h *Handle) (func(), error) {
	r.mu.Lock()
	g := r.group(h.key)
	if h.canceled || g.current != h {
		r.mu.Unlock()
		return nil, canceledError(h)
	}
	r.mu.Unlock()

	select {
	case g.slot <- struct{}{}:
	case <-h.ctx.Done():
		return nil, canceledError(h)
	}

	r.mu.Lock()
	if h.canceled || g.current != h {
		r.mu.Unlock()
		<-g.slot
		return nil, canceledError(h)
	}
	h.holdsSlot = true
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			h.holdsSlot = false
			r.mu.Unlock()
			<-g.slot
		})
	}, nil
}

// Finish records h's terminal outcome. Only the current handle resets its group; a
// waiting run, if any, becomes current.
func (r *Registry) Finish(h *Handle, outcome State) {
	if !outcome.IsTerminal() {
		outcome = StateFailed
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	h.state = outcome
	h.cancel(nil)

	g := r.group(h.key)
	if g.current != h {
		return
	}
	g.current = nil
	if next := g.pending; next != nil {
		g.pending = nil
		r.promote(g, next)
	}
}

// Snapshot describes a handle at a point in time.
type Snapshot struct {
	RunID    string    `json:"run_id"`
	Key      string    `json:"key"`
	State    State     `json:"state"`
	Canceled bool      `json:"canceled"`
	Created  time.Time `json:"created"`
}

// Current returns the current handle state of key's group, or StateIdle.
func (r *Registry) Current(key Key) (Snapshot, State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[key]
	if !ok || g.current == nil {
		return Snapshot{Key: key.String(), State: StateIdle}, StateIdle
	}
	return snapshot(g.current), g.current.state
}

// State returns the state of h.
func (r *Registry) State(h *Handle) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return h.state
}

// Canceled reports whether h was canceled.
func (r *Registry) Canceled(h *Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return h.canceled
}

// Active lists the current and waiting handles of every group.
func (r *Registry) Active() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Snapshot
	for _, g := range r.groups {
		if g.current != nil {
			out = append(out, snapshot(g.current))
		}
		if g.pending != nil {
			out = append(out, snapshot(g.pending))
		}
	}
	return out
}

func snapshot(h *Handle) Snapshot {
	return Snapshot{RunID: h.id, Key: h.key.String(), State: h.state, Canceled: h.canceled, Created: h.created}
}

func canceledError(h *Handle) error {
	cause := context.Cause(h.ctx)
	if cause == nil {
		cause = ErrSuperseded
	}
	return errors.WrapError(cause, errors.CategoryCanceled, "run canceled").
		Info().
		WithContext("run_id", h.id).
		WithContext("run_key", h.key.String()).
		Build()
}
