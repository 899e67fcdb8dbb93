package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"git.home.luguber.info/inful/pagesdeploy/internal/config"
	"git.home.luguber.info/inful/pagesdeploy/internal/eventstore"
	"git.home.luguber.info/inful/pagesdeploy/internal/logfields"
	"git.home.luguber.info/inful/pagesdeploy/internal/notify"
	"git.home.luguber.info/inful/pagesdeploy/internal/pipeline"
)

// RunCmd implements the 'run' command.
type RunCmd struct {
	Ref       string `help:"Ref to build; defaults to pipeline.branch"`
	Commit    string `help:"Commit to check out; defaults to the tip of the ref"`
	Source    string `help:"Build this local checkout instead of cloning source.url" type:"existingdir"`
	NoPublish bool   `name:"no-publish" help:"Build and verify but do not publish"`
}

func (r *RunCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return RunOnce(ctx, cfg, r.trigger(), g.stdout())
}

func (r *RunCmd) trigger() pipeline.Trigger {
	return pipeline.Trigger{
		Kind:      pipeline.TriggerManual,
		Ref:       r.Ref,
		Commit:    r.Commit,
		SourceDir: r.Source,
		NoPublish: r.NoPublish,
	}
}

// RunOnce executes one run, recording it in the run history and sending
// notifications when configured, and prints a summary to out.
func RunOnce(ctx context.Context, cfg *config.Config, trig pipeline.Trigger, out io.Writer, opts ...pipeline.Option) error {
	bus, closeFn := newRunBus(ctx, cfg)
	defer closeFn()

	exec := pipeline.NewExecutor(pipeline.StaticConfig{Config: cfg}, append([]pipeline.Option{pipeline.WithBus(bus)}, opts...)...)
	report, err := exec.Execute(ctx, trig)
	if report != nil {
		printReport(out, report)
	}
	return err
}

// newRunBus wires history and notifications for a one-shot run. Neither is required
// for the run itself, so failures only disable them.
func newRunBus(ctx context.Context, cfg *config.Config) (*pipeline.Bus, func()) {
	var closers []func() error
	closeFn := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				slog.Warn("Failed to close run recorder", logfields.Error(err))
			}
		}
	}

	var bus *pipeline.Bus
	store, err := eventstore.NewSQLiteStore(cfg.History.Path)
	if err != nil {
		slog.Warn("Run history disabled", logfields.Path(cfg.History.Path), logfields.Error(err))
		bus = pipeline.NewBus(nil)
	} else {
		closers = append(closers, store.Close)
		bus = pipeline.NewBus(eventstore.NewRecorder(store, nil))
	}

	if cfg.Notify.Enabled() {
		n, err := notify.NewNATSNotifier(ctx, cfg.Notify)
		if err != nil {
			slog.Warn("Run notifications disabled", logfields.URL(cfg.Notify.NATSURL), logfields.Error(err))
		} else {
			closers = append(closers, n.Close)
			bus.Subscribe(pipeline.AllEvents, n.Notify)
		}
	}
	return bus, closeFn
}

func printReport(out io.Writer, r *pipeline.RunReport) {
	_, _ = fmt.Fprintf(out, "run %s (%s) %s in %s\n", r.ID, r.Key, r.Status, r.Duration().Round(time.Millisecond))
	if r.Commit != "" {
		_, _ = fmt.Fprintf(out, "  commit:  %s\n", r.Commit)
	}
	if r.Build != nil {
		for _, p := range r.Build.Phases {
			_, _ = fmt.Fprintf(out, "  phase:   %-18s %-8s %s\n", p.Name, p.Result, p.Duration.Round(time.Millisecond))
		}
	}
	if r.Publish != nil {
		_, _ = fmt.Fprintf(out, "  publish: %s %s\n", r.Publish.Status, r.Publish.Commit)
	}
	if r.Error != "" {
		where := string(r.FailedStep)
		if r.FailedPhase != "" {
			where += "/" + r.FailedPhase
		}
		_, _ = fmt.Fprintf(out, "  error:   [%s] %s\n", where, r.Error)
	}
}
