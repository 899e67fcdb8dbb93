package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"git.home.luguber.info/inful/pagesdeploy/internal/concurrency"
	"git.home.luguber.info/inful/pagesdeploy/internal/foundation/errors"
	"git.home.luguber.info/inful/pagesdeploy/internal/logfields"
)

const defaultHistorySize = 50

// Job is a run submitted to the dispatcher.
type Job struct {
	ID        string            `json:"id"`
	Trigger   Trigger           `json:"trigger"`
	Status    concurrency.State `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	Report    *RunReport        `json:"report,omitempty"`
}

// Dispatcher executes triggers in the background. Every trigger gets its own
// goroutine; the concurrency registry decides which of them proceed.
type Dispatcher struct {
	exec   *Executor
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.RWMutex
	active      map[string]*Job
	history     []*Job
	historySize int
	stopped     bool
}

// NewDispatcher returns a dispatcher running triggers through exec.
func NewDispatcher(exec *Executor) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		exec:        exec,
		ctx:         ctx,
		cancel:      cancel,
		active:      make(map[string]*Job),
		historySize: defaultHistorySize,
	}
}

// Submit starts trig and returns its run ID.
func (d *Dispatcher) Submit(trig Trigger) (string, error) {
	if trig.RunID == "" {
		trig.RunID = d.exec.NewRunID()
	}

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return "", errors.DaemonError("dispatcher is shutting down").Build()
	}
	job := &Job{ID: trig.RunID, Trigger: trig, Status: concurrency.StateQueued, CreatedAt: time.Now()}
	d.active[job.ID] = job
	d.wg.Add(1)
	d.mu.Unlock()

	go d.process(job)
	return job.ID, nil
}

func (d *Dispatcher) process(job *Job) {
	defer d.wg.Done()

	report, err := d.exec.Execute(d.ctx, job.Trigger)
	if err != nil && !errors.IsCanceled(err) {
		slog.Debug("Dispatched run ended with error", logfields.RunID(job.ID), logfields.Error(err))
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.active, job.ID)
	job.Report = report
	if report != nil {
		job.Status = report.Status
	}
	d.history = append(d.history, job)
	if len(d.history) > d.historySize {
		d.history = d.history[len(d.history)-d.historySize:]
	}
}

// Job returns a copy of a job, active ones first.
func (d *Dispatcher) Job(id string) (Job, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if j, ok := d.active[id]; ok {
		return d.snapshot(j), true
	}
	for _, j := range d.history {
		if j.ID == id {
			return *j, true
		}
	}
	return Job{}, false
}

// Jobs returns active jobs followed by finished ones, newest first.
func (d *Dispatcher) Jobs() []Job {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Job, 0, len(d.active)+len(d.history))
	for _, j := range d.active {
		out = append(out, d.snapshot(j))
	}
	for i := len(d.history) - 1; i >= 0; i-- {
		out = append(out, *d.history[i])
	}
	return out
}

// snapshot fills in the live state of an active job from the registry. Caller holds d.mu.
func (d *Dispatcher) snapshot(j *Job) Job {
	cp := *j
	for _, s := range d.exec.Registry().Active() {
		if s.RunID == j.ID {
			cp.Status = s.State
			break
		}
	}
	return cp
}

// Wait blocks until every submitted run has finished.
func (d *Dispatcher) Wait() { d.wg.Wait() }

// Stop refuses new triggers, cancels running ones and waits for them to reach a
// terminal state or for ctx to end.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.DaemonError("timed out waiting for runs to stop").WithCause(ctx.Err()).Build()
	}
}
