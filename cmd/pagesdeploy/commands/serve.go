package commands

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"git.home.luguber.info/inful/pagesdeploy/internal/daemon"
)

// ServeCmd implements the 'serve' command.
type ServeCmd struct {
	ShutdownTimeout time.Duration `name:"shutdown-timeout" help:"How long to wait for in-flight runs on shutdown" default:"30s"`
	NoWatch         bool          `name:"no-watch" help:"Do not reload the configuration file when it changes"`
}

func (s *ServeCmd) Run(_ *Global, root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var opts []daemon.Option
	if !s.NoWatch {
		opts = append(opts, daemon.WithConfigFile(root.Config))
	}
	d, err := daemon.New(ctx, cfg, opts...)
	if err != nil {
		return err
	}

	slog.Info("Serving, waiting for shutdown signal")
	if err := d.Run(ctx, s.ShutdownTimeout); err != nil {
		return err
	}
	slog.Info("Daemon stopped successfully")
	return nil
}
