package pipeline

import (
	"sync/atomic"
	"time"

	"git.home.luguber.info/inful/pagesdeploy/internal/build"
	"git.home.luguber.info/inful/pagesdeploy/internal/concurrency"
	"git.home.luguber.info/inful/pagesdeploy/internal/config"
	"git.home.luguber.info/inful/pagesdeploy/internal/deploy"
	"git.home.luguber.info/inful/pagesdeploy/internal/toolchain"
)

// TriggerKind records what started a run.
type TriggerKind string

const (
	TriggerManual  TriggerKind = "manual"
	TriggerWebhook TriggerKind = "webhook"
)

// Trigger describes the push a run builds.
type Trigger struct {
	// RunID is assigned by the executor when empty.
	RunID  string
	Kind   TriggerKind
	Ref    string
	Commit string
	// CloneURL overrides source.url.
	CloneURL string
	// SourceDir builds a local checkout instead of cloning. It is copied, never modified.
	SourceDir string
	NoPublish bool
}

// Step names the coarse stages of a run outside the build phases.
type Step string

const (
	StepQueue     Step = "queue"
	StepCheckout  Step = "checkout"
	StepToolchain Step = "toolchain"
	StepBuild     Step = "build"
	StepDeploy    Step = "deploy"
)

// RunReport is the record of one run.
type RunReport struct {
	ID          string            `json:"id"`
	Key         string            `json:"key"`
	Trigger     TriggerKind       `json:"trigger"`
	Ref         string            `json:"ref"`
	Commit      string            `json:"commit,omitempty"`
	Status      concurrency.State `json:"status"`
	Toolchain   *toolchain.Report `json:"toolchain,omitempty"`
	Build       *build.Report     `json:"build,omitempty"`
	Publish     *deploy.Result    `json:"publish,omitempty"`
	FailedStep  Step              `json:"failed_step,omitempty"`
	FailedPhase string            `json:"failed_phase,omitempty"`
	Error       string            `json:"error,omitempty"`
	StartedAt   time.Time         `json:"started_at"`
	EndedAt     time.Time         `json:"ended_at"`
}

// Duration is the wall time of the run.
func (r *RunReport) Duration() time.Duration {
	if r.EndedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// ConfigSource yields the configuration a new run uses. Runs keep the configuration
// they started with.
type ConfigSource interface {
	Current() *config.Config
}

// StaticConfig is a ConfigSource that never changes.
type StaticConfig struct{ Config *config.Config }

func (s StaticConfig) Current() *config.Config { return s.Config }

// ReloadableConfig is a ConfigSource whose value can be swapped at runtime.
type ReloadableConfig struct {
	v atomic.Pointer[config.Config]
}

// NewReloadableConfig returns a source holding cfg.
func NewReloadableConfig(cfg *config.Config) *ReloadableConfig {
	rc := &ReloadableConfig{}
	rc.v.Store(cfg)
	return rc
}

func (r *ReloadableConfig) Current() *config.Config { return r.v.Load() }

// Store replaces the configuration used by subsequent runs.
func (r *ReloadableConfig) Store(cfg *config.Config) { r.v.Store(cfg) }
