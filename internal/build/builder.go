package build

import (
	"context"
	"log/slog"
	"strings"

	"git.home.luguber.info/inful/pagesdeploy/internal/command"
	"git.home.luguber.info/inful/pagesdeploy/internal/config"
	"git.home.luguber.info/inful/pagesdeploy/internal/logfields"
)

// Target selects which build command an invocation runs.
type Target string

const (
	TargetWeb  Target = "web"
	TargetHost Target = "host"
)

// Feature flags passed to the application build.
const (
	FeatureWeb      = "web"
	FeaturePrebuild = "prebuild"
)

// Invocation is one call of the application build.
type Invocation struct {
	Target     Target
	Release    bool
	Features   []string
	ProjectDir string
	OutDir     string
}

// FeatureList renders the feature set the way cargo expects it.
func (inv Invocation) FeatureList() string { return strings.Join(inv.Features, ",") }

// Builder runs the application build. CommandBuilder is the production implementation;
// tests inject fakes that write files directly.
type Builder interface {
	Build(ctx context.Context, inv Invocation) error
}

// CommandBuilder runs the configured web and host commands.
type CommandBuilder struct {
	cfg    config.BuildConfig
	runner command.Runner
}

// NewCommandBuilder returns a Builder for cfg.
func NewCommandBuilder(cfg config.BuildConfig, runner command.Runner) *CommandBuilder {
	return &CommandBuilder{cfg: cfg, runner: runner}
}

// Command expands the configured argv for inv. Placeholders {out_dir}, {target} and
// {features} are substituted. Without a {features} placeholder the feature flag is
// appended only for a non-empty feature set. The release flag is appended when set.
func (b *CommandBuilder) Command(inv Invocation) []string {
	base := b.cfg.WebCommand
	if inv.Target == TargetHost {
		base = b.cfg.HostCommand
	}

	r := strings.NewReplacer(
		"{out_dir}", inv.OutDir,
		"{target}", string(inv.Target),
		"{features}", inv.FeatureList(),
	)
	argv := make([]string, 0, len(base)+3)
	hasFeatures := false
	for _, arg := range base {
		if strings.Contains(arg, "{features}") {
			hasFeatures = true
		}
		expanded := r.Replace(arg)
		if expanded == "" && arg != "" {
			continue
		}
		argv = append(argv, expanded)
	}
	if inv.Release && b.cfg.ReleaseFlag != "" {
		argv = append(argv, b.cfg.ReleaseFlag)
	}
	if !hasFeatures && len(inv.Features) > 0 && b.cfg.FeaturesFlag != "" {
		argv = append(argv, b.cfg.FeaturesFlag, inv.FeatureList())
	}
	return argv
}

// Build runs the command for inv in the project directory.
func (b *CommandBuilder) Build(ctx context.Context, inv Invocation) error {
	argv := b.Command(inv)
	spec := command.Spec{Name: argv[0], Args: argv[1:], Dir: inv.ProjectDir, Env: b.cfg.Env}

	slog.Debug("Invoking build command",
		slog.String("command", spec.String()),
		logfields.Target(string(inv.Target)),
		logfields.Features(inv.FeatureList()))

	res, err := b.runner.Run(ctx, spec)
	if len(res.Output) > 0 {
		slog.Debug("build output", slog.String("output", string(res.Output)))
	}
	return err
}
