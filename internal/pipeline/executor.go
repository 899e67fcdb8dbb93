package pipeline

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/pagesdeploy/internal/build"
	"git.home.luguber.info/inful/pagesdeploy/internal/command"
	"git.home.luguber.info/inful/pagesdeploy/internal/concurrency"
	"git.home.luguber.info/inful/pagesdeploy/internal/config"
	"git.home.luguber.info/inful/pagesdeploy/internal/deploy"
	"git.home.luguber.info/inful/pagesdeploy/internal/eventstore"
	"git.home.luguber.info/inful/pagesdeploy/internal/foundation/errors"
	"git.home.luguber.info/inful/pagesdeploy/internal/git"
	"git.home.luguber.info/inful/pagesdeploy/internal/logfields"
	"git.home.luguber.info/inful/pagesdeploy/internal/metrics"
	"git.home.luguber.info/inful/pagesdeploy/internal/toolchain"
	"git.home.luguber.info/inful/pagesdeploy/internal/workspace"
)

// ErrTimeout fails a run that exceeds pipeline.timeout.
var ErrTimeout = errors.NewError(errors.CategoryRuntime, "run exceeded the pipeline timeout").Fatal().Build()

// SourceFetcher checks out the source of a run.
type SourceFetcher interface {
	Clone(ctx context.Context, req git.CloneRequest) (*git.Checkout, error)
}

// Publisher pushes an output directory to the hosting branch.
type Publisher interface {
	Publish(ctx context.Context, req deploy.Request) (*deploy.Result, error)
}

// Executor runs triggers end to end.
type Executor struct {
	config     ConfigSource
	registry   *concurrency.Registry
	workspaces *workspace.Manager
	source     SourceFetcher
	runner     command.Runner
	builder    build.Builder
	publisher  Publisher
	bus        *Bus
	recorder   metrics.Recorder
	newID      func() string
}

// Option customizes an Executor.
type Option func(*Executor)

// WithRegistry shares a concurrency registry between executors.
func WithRegistry(r *concurrency.Registry) Option {
	return func(e *Executor) {
		if r != nil {
			e.registry = r
		}
	}
}

// WithWorkspaces sets the workspace manager.
func WithWorkspaces(m *workspace.Manager) Option {
	return func(e *Executor) {
		if m != nil {
			e.workspaces = m
		}
	}
}

// WithSourceFetcher replaces the go-git source client.
func WithSourceFetcher(f SourceFetcher) Option {
	return func(e *Executor) {
		if f != nil {
			e.source = f
		}
	}
}

// WithRunner replaces the command runner used for provisioning and builds.
func WithRunner(r command.Runner) Option {
	return func(e *Executor) {
		if r != nil {
			e.runner = r
		}
	}
}

// WithBuilder replaces the command-based application builder.
func WithBuilder(b build.Builder) Option {
	return func(e *Executor) { e.builder = b }
}

// WithPublisher replaces the go-git publisher.
func WithPublisher(p Publisher) Option {
	return func(e *Executor) {
		if p != nil {
			e.publisher = p
		}
	}
}

// WithBus sets the run event bus.
func WithBus(b *Bus) Option {
	return func(e *Executor) {
		if b != nil {
			e.bus = b
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(e *Executor) {
		if r != nil {
			e.recorder = r
		}
	}
}

// NewExecutor returns an Executor with production collaborators derived from the
// current configuration of src.
func NewExecutor(src ConfigSource, opts ...Option) *Executor {
	cfg := src.Current()
	e := &Executor{
		config:     src,
		registry:   concurrency.NewRegistry(concurrency.WithCancelInProgress(cfg.Pipeline.CancelsInProgress())),
		workspaces: workspace.NewManager(cfg.Workspace.BaseDir, cfg.Workspace.Keep),
		source:     git.NewClient(),
		runner:     command.NewExecRunner(),
		publisher:  deploy.NewPublisher(),
		bus:        NewBus(nil),
		recorder:   metrics.NoopRecorder{},
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the concurrency registry.
func (e *Executor) Registry() *concurrency.Registry { return e.registry }

// Workspaces returns the workspace manager.
func (e *Executor) Workspaces() *workspace.Manager { return e.workspaces }

// Bus returns the run event bus.
func (e *Executor) Bus() *Bus { return e.bus }

// NewRunID returns a fresh run ID.
func (e *Executor) NewRunID() string { return e.newID() }

// Execute runs trig to a terminal state and returns its report. The error is nil only
// for a succeeded run; a canceled run returns a canceled error (see errors.IsCanceled).
func (e *Executor) Execute(ctx context.Context, trig Trigger) (*RunReport, error) {
	cfg := e.config.Current()
	if trig.RunID == "" {
		trig.RunID = e.newID()
	}
	if trig.Kind == "" {
		trig.Kind = TriggerManual
	}
	if trig.Ref == "" {
		trig.Ref = cfg.Pipeline.Branch
	}

	key := concurrency.Key{Workflow: cfg.Pipeline.Workflow, Ref: trig.Ref}
	report := &RunReport{
		ID:        trig.RunID,
		Key:       key.String(),
		Trigger:   trig.Kind,
		Ref:       trig.Ref,
		Commit:    trig.Commit,
		Status:    concurrency.StateQueued,
		StartedAt: time.Now(),
	}
	evCtx := context.WithoutCancel(ctx)

	h, err := e.registry.Start(ctx, key, trig.RunID)
	if err != nil {
		report.FailedStep = StepQueue
		return e.conclude(evCtx, h, h.Context(), report, err)
	}
	report.Status = concurrency.StateRunning
	e.recorder.SetActiveRuns(len(e.registry.Active()))

	started, evErr := eventstore.NewRunStarted(trig.RunID, eventstore.RunStartedMeta{
		Key:     key.String(),
		Ref:     trig.Ref,
		Commit:  trig.Commit,
		Trigger: string(trig.Kind),
	})
	e.emit(evCtx, started, evErr)
	slog.Info("Run started",
		logfields.RunID(trig.RunID),
		logfields.RunKey(key.String()),
		logfields.Ref(trig.Ref),
		slog.String("trigger", string(trig.Kind)))

	runCtx := h.Context()
	if timeout := cfg.Pipeline.TimeoutDuration(); timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeoutCause(runCtx, timeout, ErrTimeout)
		defer cancel()
	}

	err = e.run(runCtx, evCtx, h, cfg, trig, report)
	return e.conclude(evCtx, h, runCtx, report, err)
}

func (e *Executor) run(ctx, evCtx context.Context, h *concurrency.Handle, cfg *config.Config, trig Trigger, report *RunReport) error {
	fail := func(step Step, err error) error {
		report.FailedStep = step
		return err
	}

	ws, err := e.workspaces.Create(trig.RunID)
	if err != nil {
		return fail(StepCheckout, err)
	}
	defer func() {
		if cerr := ws.Cleanup(); cerr != nil {
			slog.Warn("Failed to clean up workspace", logfields.Path(ws.Root), logfields.Error(cerr))
		}
	}()

	if err := e.checkout(ctx, cfg, trig, ws, report); err != nil {
		return fail(StepCheckout, err)
	}

	if err := checkpoint(ctx, StepToolchain); err != nil {
		return fail(StepToolchain, err)
	}
	projectDir := filepath.Join(ws.Source(), cfg.Source.ProjectDir)
	outDir := filepath.Join(projectDir, cfg.Build.OutputDir)

	tc, err := toolchain.New(cfg.Toolchain, e.runner,
		toolchain.WithDir(projectDir),
		toolchain.WithEnv(cfg.Build.Env),
	).Ensure(ctx)
	report.Toolchain = tc
	if err != nil {
		return fail(StepToolchain, err)
	}

	opts := []build.Option{build.WithObserver(&phaseObserver{ctx: evCtx, runID: trig.RunID, bus: e.bus, recorder: e.recorder})}
	if e.builder != nil {
		opts = append(opts, build.WithBuilder(e.builder))
	}
	br, err := build.NewOrchestrator(cfg.Build, e.runner, opts...).Run(ctx, build.Request{ProjectDir: projectDir, OutDir: outDir})
	report.Build = br
	if err != nil {
		return fail(StepBuild, err)
	}

	if trig.NoPublish {
		slog.Info("Publish skipped", logfields.RunID(trig.RunID), logfields.Path(outDir))
		return nil
	}
	return e.deploy(ctx, evCtx, h, cfg, trig, ws, outDir, report)
}

func (e *Executor) checkout(ctx context.Context, cfg *config.Config, trig Trigger, ws *workspace.Workspace, report *RunReport) error {
	if err := checkpoint(ctx, StepCheckout); err != nil {
		return err
	}

	if trig.SourceDir != "" {
		n, err := workspace.CopyTree(trig.SourceDir, ws.Source(), workspace.SkipGitDir)
		if err != nil {
			return errors.FileSystemError("failed to copy local source").
				WithCause(err).
				WithContext("path", trig.SourceDir).
				Fatal().
				Build()
		}
		if report.Commit == "" {
			if co, err := git.Inspect(trig.SourceDir); err == nil {
				report.Commit = co.Commit
			}
		}
		slog.Info("Local source copied", logfields.Path(trig.SourceDir), slog.Int("files", n))
		return nil
	}

	url := trig.CloneURL
	if url == "" {
		url = cfg.Source.URL
	}
	// A started clone completes; cancellation is observed at the next step.
	co, err := e.source.Clone(context.WithoutCancel(ctx), git.CloneRequest{
		URL:    url,
		Ref:    trig.Ref,
		Commit: trig.Commit,
		Dir:    ws.Source(),
		Auth:   cfg.Source.Auth,
		Depth:  cfg.Source.Depth,
	})
	if err != nil {
		return err
	}
	report.Commit = co.Commit
	return nil
}

func (e *Executor) deploy(ctx, evCtx context.Context, h *concurrency.Handle, cfg *config.Config, trig Trigger, ws *workspace.Workspace, outDir string, report *RunReport) error {
	fail := func(err error) error {
		report.FailedStep = StepDeploy
		return err
	}
	if err := checkpoint(ctx, StepDeploy); err != nil {
		return fail(err)
	}

	release, err := e.registry.BeginDeploy(h)
	if err != nil {
		return fail(err)
	}
	defer release()

	msg := deploy.RenderMessage(cfg.Deploy.Message, deploy.MessageData{RunID: trig.RunID, Ref: trig.Ref, Commit: report.Commit})
	res, err := e.publisher.Publish(context.WithoutCancel(ctx), deploy.Request{
		SourceDir:  outDir,
		ScratchDir: ws.Publish(),
		Repository: cfg.DeployRepository(),
		Branch:     cfg.Deploy.Branch,
		Folder:     cfg.Deploy.Folder,
		Auth:       cfg.DeployAuth(),
		Author:     cfg.Deploy.Author,
		Message:    msg,
	})
	report.Publish = res
	if err != nil {
		e.recorder.IncPublishResult("failed")
		return fail(err)
	}
	e.recorder.IncPublishResult(string(res.Status))

	published, evErr := eventstore.NewSitePublished(trig.RunID, eventstore.SitePublishedData{
		Status: string(res.Status),
		Branch: res.Branch,
		Folder: res.Folder,
		Commit: res.Commit,
		Files:  res.FilesWritten,
	})
	e.emit(evCtx, published, evErr)
	return nil
}

// conclude classifies the outcome, releases the concurrency group and records the run.
func (e *Executor) conclude(ctx context.Context, h *concurrency.Handle, runCtx context.Context, report *RunReport, err error) (*RunReport, error) {
	report.EndedAt = time.Now()
	cause := context.Cause(runCtx)
	if c, ok := errors.AsClassified(err); ok {
		if phase, ok := c.Context().GetString("phase"); ok {
			report.FailedPhase = phase
		}
	}

	switch {
	case err == nil:
		report.Status = concurrency.StateSucceeded
		report.FailedStep = ""
	case stdErrors.Is(cause, ErrTimeout) && errors.IsCanceled(err):
		err = errors.WrapError(err, errors.CategoryRuntime, ErrTimeout.Message()).
			Fatal().
			WithContext("run_id", report.ID).
			Build()
		report.Status = concurrency.StateFailed
		e.recorder.IncCancellation("timeout")
	case errors.IsCanceled(err):
		report.Status = concurrency.StateCanceled
		reason := "interrupted"
		if stdErrors.Is(cause, concurrency.ErrSuperseded) {
			reason = "superseded"
		}
		e.recorder.IncCancellation(reason)
	default:
		report.Status = concurrency.StateFailed
	}
	if err != nil {
		report.Error = err.Error()
	}

	if h != nil {
		e.registry.Finish(h, report.Status)
	}
	e.recorder.SetActiveRuns(len(e.registry.Active()))
	e.recorder.ObserveRunDuration(report.Duration())
	e.recorder.IncRunOutcome(metrics.OutcomeLabel(report.Status))

	attrs := []any{
		logfields.RunID(report.ID),
		logfields.RunKey(report.Key),
		logfields.RunStatus(string(report.Status)),
		logfields.Duration(report.Duration()),
	}
	switch report.Status {
	case concurrency.StateSucceeded:
		done, evErr := eventstore.NewRunSucceeded(report.ID, eventstore.RunSucceededData{
			DurationMS:    report.Duration().Milliseconds(),
			Artifacts:     artifactDigests(report.Build),
			PublishStatus: publishStatus(report.Publish),
		})
		e.emit(ctx, done, evErr)
		slog.Info("Run succeeded", append(attrs, logfields.Commit(report.Commit))...)
	case concurrency.StateCanceled:
		done, evErr := eventstore.NewRunCanceled(report.ID, eventstore.RunCanceledData{
			Phase:  failedAt(report),
			Reason: cancelReason(runCtx, err),
		})
		e.emit(ctx, done, evErr)
		slog.Info("Run canceled", append(attrs, logfields.Phase(failedAt(report)))...)
	default:
		done, evErr := eventstore.NewRunFailed(report.ID, eventstore.RunFailedData{
			Phase:    failedAt(report),
			Category: string(errors.GetCategory(err)),
			Error:    report.Error,
		})
		e.emit(ctx, done, evErr)
		slog.Error("Run failed", append(attrs, logfields.Phase(failedAt(report)), logfields.Error(err))...)
	}
	return report, err
}

func (e *Executor) emit(ctx context.Context, ev eventstore.Event, err error) {
	if err != nil {
		slog.Warn("Failed to create run event", logfields.Error(err))
		return
	}
	e.bus.Publish(ctx, ev)
}

// checkpoint returns a canceled error when ctx is done.
func checkpoint(ctx context.Context, next Step) error {
	if ctx.Err() == nil {
		return nil
	}
	return errors.WrapError(context.Cause(ctx), errors.CategoryCanceled, "run canceled").
		Info().
		WithContext("step", string(next)).
		Build()
}

func cancelReason(ctx context.Context, err error) string {
	if cause := context.Cause(ctx); cause != nil {
		return cause.Error()
	}
	return err.Error()
}

func failedAt(r *RunReport) string {
	if r.FailedPhase != "" {
		return r.FailedPhase
	}
	return string(r.FailedStep)
}

func artifactDigests(r *build.Report) map[string]string {
	if r == nil {
		return nil
	}
	out := map[string]string{}
	for _, a := range []build.Artifact{r.PreSearch, r.SearchEnabled, r.Fallback} {
		if a.Name != "" {
			out[a.Name] = a.SHA256
		}
	}
	if r.SearchIndex != nil {
		out[r.SearchIndex.Name] = r.SearchIndex.SHA256
	}
	return out
}

func publishStatus(r *deploy.Result) string {
	if r == nil {
		return ""
	}
	return string(r.Status)
}

type phaseObserver struct {
	ctx      context.Context
	runID    string
	bus      *Bus
	recorder metrics.Recorder
}

func (o *phaseObserver) OnPhaseStart(build.PhaseName) {}

func (o *phaseObserver) OnPhaseComplete(phase build.PhaseName, d time.Duration, result build.PhaseResult) {
	if result != build.PhaseResultCanceled {
		o.recorder.ObservePhaseDuration(string(phase), d)
	}
	o.recorder.IncPhaseResult(string(phase), metrics.ResultLabel(result))

	ev, err := eventstore.NewPhaseCompleted(o.runID, string(phase), string(result), d)
	if err != nil {
		slog.Warn("Failed to create run event", logfields.Error(err))
		return
	}
	o.bus.Publish(o.ctx, ev)
}
