// Package toolchain ensures the build tools and compilation targets a pipeline needs
// are present before any build phase runs.
package toolchain

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"git.home.luguber.info/inful/pagesdeploy/internal/command"
	"git.home.luguber.info/inful/pagesdeploy/internal/config"
	"git.home.luguber.info/inful/pagesdeploy/internal/foundation/errors"
	"git.home.luguber.info/inful/pagesdeploy/internal/logfields"
)

// Kind distinguishes PATH binaries from compilation targets.
type Kind string

const (
	KindTool   Kind = "tool"
	KindTarget Kind = "target"
)

// Action records what the provisioner had to do for a requirement.
type Action string

const (
	ActionPresent   Action = "present"
	ActionInstalled Action = "installed"
)

// Outcome is the per-requirement result of Ensure.
type Outcome struct {
	Name     string
	Kind     Kind
	Action   Action
	Duration time.Duration
}

// Report summarizes a provisioning pass.
type Report struct {
	Outcomes []Outcome
}

// Installed returns the names of requirements that had to be installed.
func (r *Report) Installed() []string {
	var out []string
	for _, o := range r.Outcomes {
		if o.Action == ActionInstalled {
			out = append(out, o.Name)
		}
	}
	return out
}

// Provisioner checks and installs toolchain requirements.
type Provisioner struct {
	cfg    config.ToolchainConfig
	runner command.Runner
	dir    string
	env    []string
}

// Option customizes a Provisioner.
type Option func(*Provisioner)

// WithDir sets the working directory for check and install commands.
func WithDir(dir string) Option { return func(p *Provisioner) { p.dir = dir } }

// WithEnv appends environment entries to check and install commands.
func WithEnv(env []string) Option { return func(p *Provisioner) { p.env = env } }

// New returns a Provisioner for cfg.
func New(cfg config.ToolchainConfig, runner command.Runner, opts ...Option) *Provisioner {
	p := &Provisioner{cfg: cfg, runner: runner}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ensure makes every declared tool and target available. Requirements already
// satisfied are left alone, so repeated calls are cheap and change nothing.
// The first unsatisfiable requirement aborts the pass with a fatal provisioning error.
func (p *Provisioner) Ensure(ctx context.Context) (*Report, error) {
	report := &Report{}
	for _, tool := range p.cfg.Tools {
		if err := checkCanceled(ctx); err != nil {
			return report, err
		}
		start := time.Now()
		action, err := p.ensureTool(ctx, tool)
		if err != nil {
			return report, err
		}
		report.Outcomes = append(report.Outcomes, Outcome{Name: tool.Name, Kind: KindTool, Action: action, Duration: time.Since(start)})
	}
	for _, target := range p.cfg.Targets {
		if err := checkCanceled(ctx); err != nil {
			return report, err
		}
		start := time.Now()
		action, err := p.ensureTarget(ctx, target)
		if err != nil {
			return report, err
		}
		report.Outcomes = append(report.Outcomes, Outcome{Name: target.Name, Kind: KindTarget, Action: action, Duration: time.Since(start)})
	}
	return report, nil
}

func (p *Provisioner) ensureTool(ctx context.Context, tool config.ToolRequirement) (Action, error) {
	if path, err := p.runner.LookPath(tool.Name); err == nil {
		slog.Debug("Tool present", logfields.Tool(tool.Name), logfields.Path(path))
		return ActionPresent, nil
	}
	if len(tool.Install) == 0 {
		return "", errors.ProvisioningError("required tool not found on PATH and no install command configured").
			WithContext("tool", tool.Name).
			Build()
	}

	slog.Info("Installing tool", logfields.Tool(tool.Name), slog.String("command", strings.Join(tool.Install, " ")))
	if err := p.install(ctx, KindTool, tool.Name, tool.Install); err != nil {
		return "", err
	}
	if _, err := p.runner.LookPath(tool.Name); err != nil {
		return "", errors.ProvisioningError("tool still not found on PATH after install").
			WithCause(err).
			WithContext("tool", tool.Name).
			Build()
	}
	return ActionInstalled, nil
}

func (p *Provisioner) ensureTarget(ctx context.Context, target config.TargetRequirement) (Action, error) {
	ok, err := p.check(ctx, target.Check)
	if err != nil {
		return "", err
	}
	if ok {
		slog.Debug("Target present", logfields.Target(target.Name))
		return ActionPresent, nil
	}
	if len(target.Install) == 0 {
		return "", errors.ProvisioningError("required target not installed and no install command configured").
			WithContext("target", target.Name).
			Build()
	}

	slog.Info("Installing target", logfields.Target(target.Name), slog.String("command", strings.Join(target.Install, " ")))
	if err := p.install(ctx, KindTarget, target.Name, target.Install); err != nil {
		return "", err
	}
	ok, err = p.check(ctx, target.Check)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errors.ProvisioningError("target check still failing after install").
			WithContext("target", target.Name).
			Build()
	}
	return ActionInstalled, nil
}

// check runs argv and reports whether it succeeded. Only cancellation is an error.
func (p *Provisioner) check(ctx context.Context, argv []string) (bool, error) {
	_, err := p.runner.Run(ctx, p.spec(argv))
	if err == nil {
		return true, nil
	}
	if ctx.Err() != nil {
		return false, canceled(ctx)
	}
	slog.Debug("Check failed", slog.String("command", strings.Join(argv, " ")), logfields.Error(err))
	return false, nil
}

func (p *Provisioner) install(ctx context.Context, kind Kind, name string, argv []string) error {
	res, err := p.runner.Run(ctx, p.spec(argv))
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return canceled(ctx)
	}
	return errors.WrapError(err, errors.CategoryProvisioning, "install command failed").
		Fatal().
		WithContext(string(kind), name).
		WithContext("output", strings.TrimSpace(string(res.Output))).
		Build()
}

func (p *Provisioner) spec(argv []string) command.Spec {
	return command.Spec{Name: argv[0], Args: argv[1:], Dir: p.dir, Env: p.env}
}

func checkCanceled(ctx context.Context) error {
	if ctx.Err() != nil {
		return canceled(ctx)
	}
	return nil
}

func canceled(ctx context.Context) error {
	return errors.WrapError(ctx.Err(), errors.CategoryCanceled, "provisioning canceled").Info().Build()
}
