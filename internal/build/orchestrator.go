package build

import (
	"context"
	stdErrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/pagesdeploy/internal/command"
	"git.home.luguber.info/inful/pagesdeploy/internal/config"
	"git.home.luguber.info/inful/pagesdeploy/internal/foundation/errors"
	"git.home.luguber.info/inful/pagesdeploy/internal/site"
)

// maxOutputContext bounds how much command output is attached to a build error.
const maxOutputContext = 4096

// Request carries the directories of one build.
type Request struct {
	// ProjectDir is the working directory of the build commands.
	ProjectDir string
	// OutDir is the output directory the orchestrator owns for the duration of the build.
	OutDir string
}

// PhaseRecord is the outcome of one phase.
type PhaseRecord struct {
	Name     PhaseName     `json:"name"`
	Result   PhaseResult   `json:"result"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Report describes a completed or aborted build.
type Report struct {
	OutDir        string        `json:"out_dir"`
	Phases        []PhaseRecord `json:"phases"`
	PreSearch     Artifact      `json:"pre_search_index"`
	SearchEnabled Artifact      `json:"search_enabled_index"`
	Fallback      Artifact      `json:"fallback"`
	SearchIndex   *Artifact     `json:"search_index,omitempty"`
	StartTime     time.Time     `json:"start_time"`
	EndTime       time.Time     `json:"end_time"`
}

func (r *Report) record(name PhaseName, d time.Duration, result PhaseResult, err error) {
	rec := PhaseRecord{Name: name, Result: result, Duration: d}
	if err != nil {
		rec.Error = err.Error()
	}
	r.Phases = append(r.Phases, rec)
}

// Completed reports whether every phase succeeded.
func (r *Report) Completed() bool {
	if len(r.Phases) != len(Phases) {
		return false
	}
	for _, p := range r.Phases {
		if p.Result != PhaseResultSuccess {
			return false
		}
	}
	return true
}

type state struct {
	req    Request
	report *Report
}

func (st *state) index() string    { return filepath.Join(st.req.OutDir, site.IndexFile) }
func (st *state) fallback() string { return filepath.Join(st.req.OutDir, site.FallbackFile) }

// Orchestrator runs the build phases against one output directory.
type Orchestrator struct {
	cfg      config.BuildConfig
	builder  Builder
	observer Observer
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithBuilder replaces the command-based builder (used by tests).
func WithBuilder(b Builder) Option {
	return func(o *Orchestrator) {
		if b != nil {
			o.builder = b
		}
	}
}

// WithObserver registers a phase observer.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// NewOrchestrator returns an Orchestrator running the commands configured in cfg.
func NewOrchestrator(cfg config.BuildConfig, runner command.Runner, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg,
		builder:  NewCommandBuilder(cfg, runner),
		observer: noopObserver{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) phases() []phaseDef {
	return []phaseDef{
		{PhaseBaseBuild, o.baseBuild},
		{PhasePrebuildIndex, o.prebuildIndex},
		{PhaseFallbackSnapshot, o.fallbackSnapshot},
		{PhaseFinalBuild, o.finalBuild},
		{PhaseFallbackSync, o.fallbackSync},
	}
}

// Run executes all phases in order and verifies the hand-off state of the output
// directory. Failures are returned as build errors carrying the phase; a cancellation
// observed at a phase boundary is returned as a canceled error.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Report, error) {
	report := &Report{OutDir: req.OutDir, StartTime: time.Now()}
	defer func() { report.EndTime = time.Now() }()

	if err := os.MkdirAll(req.OutDir, 0o750); err != nil {
		return report, errors.FileSystemError("failed to create output directory").
			WithCause(err).
			WithContext("path", req.OutDir).
			Fatal().
			Build()
	}

	st := &state{req: req, report: report}
	if err := runPhases(ctx, st, o.phases(), o.observer); err != nil {
		return report, classifyPhaseError(err)
	}

	if _, err := site.Verify(req.OutDir, o.cfg.SearchMarker); err != nil {
		return report, errors.WrapError(err, errors.CategoryBuild, "output directory failed hand-off verification").
			Fatal().
			WithContext("phase", "handoff").
			Build()
	}
	return report, nil
}

func classifyPhaseError(err error) error {
	var pe *PhaseError
	if !stdErrors.As(err, &pe) {
		return errors.WrapError(err, errors.CategoryInternal, "unexpected build error").Build()
	}
	if pe.Kind == PhaseErrorCanceled {
		return errors.WrapError(pe, errors.CategoryCanceled, "build canceled").
			Info().
			WithContext("phase", string(pe.Phase)).
			Build()
	}

	b := errors.WrapError(pe, errors.CategoryBuild, "build phase failed").
		Fatal().
		WithContext("phase", string(pe.Phase))
	var exitErr *command.ExitError
	if stdErrors.As(pe.Err, &exitErr) {
		b = b.WithContext("exit_code", exitErr.ExitCode).
			WithContext("output", tail(exitErr.Output, maxOutputContext))
	}
	return b.Build()
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// build runs the builder detached from ctx so that a phase that has started completes.
func (o *Orchestrator) build(ctx context.Context, st *state, target Target, features ...string) error {
	return o.builder.Build(context.WithoutCancel(ctx), Invocation{
		Target:     target,
		Release:    o.cfg.IsRelease(),
		Features:   features,
		ProjectDir: st.req.ProjectDir,
		OutDir:     st.req.OutDir,
	})
}

func (o *Orchestrator) baseBuild(ctx context.Context, st *state) error {
	if err := o.build(ctx, st, TargetWeb); err != nil {
		return err
	}
	art, err := captureArtifact(ArtifactPreSearchIndex, st.index())
	if err != nil {
		return fmt.Errorf("base build did not produce %s: %w", site.IndexFile, err)
	}
	st.report.PreSearch = art
	return nil
}

func (o *Orchestrator) prebuildIndex(ctx context.Context, st *state) error {
	if err := o.build(ctx, st, TargetHost, FeaturePrebuild); err != nil {
		return err
	}
	if o.cfg.SearchIndex == "" {
		return nil
	}
	art, err := captureArtifact(ArtifactSearchIndex, filepath.Join(st.req.OutDir, o.cfg.SearchIndex))
	if err != nil {
		return fmt.Errorf("prebuild did not write the search index: %w", err)
	}
	st.report.SearchIndex = &art
	return nil
}

func (o *Orchestrator) fallbackSnapshot(_ context.Context, st *state) error {
	return syncFallback(st, st.report.PreSearch)
}

func (o *Orchestrator) finalBuild(ctx context.Context, st *state) error {
	if err := o.build(ctx, st, TargetWeb, FeatureWeb); err != nil {
		return err
	}
	art, err := captureArtifact(ArtifactSearchEnabledIndex, st.index())
	if err != nil {
		return fmt.Errorf("final build did not produce %s: %w", site.IndexFile, err)
	}
	st.report.SearchEnabled = art
	return nil
}

func (o *Orchestrator) fallbackSync(_ context.Context, st *state) error {
	return syncFallback(st, st.report.SearchEnabled)
}

// syncFallback copies index.html to 404.html and checks the copy matches want.
func syncFallback(st *state, want Artifact) error {
	if err := copyFile(st.index(), st.fallback()); err != nil {
		return fmt.Errorf("copy %s to %s: %w", site.IndexFile, site.FallbackFile, err)
	}
	got, err := captureArtifact(ArtifactFallback, st.fallback())
	if err != nil {
		return err
	}
	if got.SHA256 != want.SHA256 {
		return fmt.Errorf("%s does not match the %s (got %s, want %s)", site.FallbackFile, want.Name, got.SHA256, want.SHA256)
	}
	st.report.Fallback = got
	return nil
}
