package daemon

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/pagesdeploy/internal/config"
	"git.home.luguber.info/inful/pagesdeploy/internal/eventstore"
	"git.home.luguber.info/inful/pagesdeploy/internal/foundation/errors"
	"git.home.luguber.info/inful/pagesdeploy/internal/logfields"
	"git.home.luguber.info/inful/pagesdeploy/internal/metrics"
	"git.home.luguber.info/inful/pagesdeploy/internal/notify"
	"git.home.luguber.info/inful/pagesdeploy/internal/pipeline"
	"git.home.luguber.info/inful/pagesdeploy/internal/server/httpserver"
	"git.home.luguber.info/inful/pagesdeploy/internal/version"
)

// Status represents the current state of the daemon.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
	StatusError    Status = "error"
)

// Option customizes daemon construction.
type Option func(*options)

type options struct {
	configPath   string
	executorOpts []pipeline.Option
	notifier     notify.Notifier
}

// WithConfigFile enables reloading from path when it changes.
func WithConfigFile(path string) Option {
	return func(o *options) { o.configPath = path }
}

// WithExecutorOptions passes extra options to the run executor.
func WithExecutorOptions(opts ...pipeline.Option) Option {
	return func(o *options) { o.executorOpts = append(o.executorOpts, opts...) }
}

// WithNotifier replaces the NATS notifier derived from the configuration.
func WithNotifier(n notify.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// Daemon serves webhooks and runs the pipeline until stopped.
type Daemon struct {
	config    *pipeline.ReloadableConfig
	status    atomic.Value // Status
	startTime time.Time
	mu        sync.Mutex

	store         *eventstore.SQLiteStore
	projection    *eventstore.RunHistoryProjection
	notifier      notify.Notifier
	promRegistry  *prometheus.Registry
	executor      *pipeline.Executor
	dispatcher    *pipeline.Dispatcher
	server        *httpserver.Server
	scheduler     *Scheduler
	housekeeper   *Housekeeper
	configWatcher *ConfigWatcher
}

// New wires a daemon for cfg. The run history is opened and replayed here so that
// /runs is populated from the first request.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.ConfigError("configuration is required").Build()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	d := &Daemon{config: pipeline.NewReloadableConfig(cfg)}
	d.status.Store(StatusStopped)

	store, err := eventstore.NewSQLiteStore(cfg.History.Path)
	if err != nil {
		return nil, err
	}
	d.store = store
	d.projection = eventstore.NewRunHistoryProjection(store, 0)
	if err := d.projection.Rebuild(ctx); err != nil {
		slog.Warn("Failed to replay run history", logfields.Error(err))
	}
	bus := pipeline.NewBus(eventstore.NewRecorder(store, d.projection))

	d.notifier = o.notifier
	if d.notifier == nil && cfg.Notify.Enabled() {
		n, err := notify.NewNATSNotifier(ctx, cfg.Notify)
		if err != nil {
			slog.Warn("Run notifications disabled", logfields.URL(cfg.Notify.NATSURL), logfields.Error(err))
		} else {
			d.notifier = n
		}
	}
	if d.notifier != nil {
		bus.Subscribe(pipeline.AllEvents, d.notifier.Notify)
	}

	d.promRegistry = prometheus.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(d.promRegistry)

	execOpts := append([]pipeline.Option{pipeline.WithBus(bus), pipeline.WithRecorder(recorder)}, o.executorOpts...)
	d.executor = pipeline.NewExecutor(d.config, execOpts...)
	d.dispatcher = pipeline.NewDispatcher(d.executor)

	d.server = httpserver.New(d.config, httpserver.Options{
		Submitter: d.dispatcher,
		Active:    d.executor.Registry(),
		Jobs:      d.dispatcher,
		History:   d.projection,
		Metrics:   metrics.HTTPHandler(d.promRegistry),
	})

	scheduler, err := NewScheduler()
	if err != nil {
		_ = store.Close()
		return nil, errors.WrapError(err, errors.CategoryDaemon, "failed to create scheduler").Build()
	}
	d.scheduler = scheduler
	d.housekeeper = NewHousekeeper(d.config, d.executor.Workspaces(), store)

	if o.configPath != "" {
		watcher, err := NewConfigWatcher(o.configPath, d)
		if err != nil {
			slog.Warn("Configuration reload disabled", logfields.Path(o.configPath), logfields.Error(err))
		} else {
			d.configWatcher = watcher
		}
	}
	return d, nil
}

// Start brings up the trigger server, housekeeping and the config watcher.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if st := d.GetStatus(); st != StatusStopped {
		return errors.DaemonError("daemon is not in stopped state").WithContext("status", string(st)).Build()
	}
	d.status.Store(StatusStarting)
	d.startTime = time.Now()
	slog.Info("Starting pagesdeploy daemon", slog.String("version", version.Version))

	if err := d.server.Start(ctx); err != nil {
		d.status.Store(StatusError)
		return err
	}

	if err := d.housekeeper.Schedule(ctx, d.scheduler); err != nil {
		slog.Error("Failed to schedule housekeeping", logfields.Error(err))
	}
	d.scheduler.Start()

	if d.configWatcher != nil {
		if err := d.configWatcher.Start(ctx); err != nil {
			slog.Error("Failed to start config watcher", logfields.Error(err))
		}
	}

	d.status.Store(StatusRunning)
	cfg := d.config.Current()
	slog.Info("pagesdeploy daemon started",
		slog.String("address", d.server.Addr().String()),
		logfields.Branch(cfg.Pipeline.Branch),
		slog.String("workflow", cfg.Pipeline.Workflow))
	return nil
}

// Stop shuts components down in reverse start order. In-flight runs are canceled
// and awaited until ctx expires.
func (d *Daemon) Stop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.GetStatus() == StatusStopped {
		return nil
	}
	d.status.Store(StatusStopping)
	slog.Info("Stopping pagesdeploy daemon")

	var errs []error
	if d.configWatcher != nil {
		d.configWatcher.Stop()
	}
	if err := d.server.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := d.dispatcher.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := d.scheduler.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("scheduler shutdown: %w", err))
	}
	if d.notifier != nil {
		if err := d.notifier.Close(); err != nil {
			errs = append(errs, fmt.Errorf("notifier close: %w", err))
		}
	}
	if err := d.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("event store close: %w", err))
	}

	if len(errs) > 0 {
		d.status.Store(StatusError)
		return stdErrors.Join(errs...)
	}
	d.status.Store(StatusStopped)
	slog.Info("pagesdeploy daemon stopped", logfields.Duration(time.Since(d.startTime)))
	return nil
}

// Run starts the daemon, blocks until ctx is done and then stops it, giving in-flight
// work up to shutdownTimeout.
func (d *Daemon) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	if err := d.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return d.Stop(stopCtx)
}

// GetStatus returns the daemon status.
func (d *Daemon) GetStatus() Status {
	if s, ok := d.status.Load().(Status); ok {
		return s
	}
	return StatusError
}

// GetConfig returns the active configuration.
func (d *Daemon) GetConfig() *config.Config { return d.config.Current() }

// Addr returns the trigger server address once started.
func (d *Daemon) Addr() net.Addr { return d.server.Addr() }

// Dispatcher returns the run dispatcher.
func (d *Daemon) Dispatcher() *pipeline.Dispatcher { return d.dispatcher }

// Projection returns the run history projection.
func (d *Daemon) Projection() *eventstore.RunHistoryProjection { return d.projection }

// Housekeeper returns the housekeeping runner.
func (d *Daemon) Housekeeper() *Housekeeper { return d.housekeeper }

// ReloadConfig makes cfg the configuration for subsequent runs and webhook deliveries.
// Settings bound at startup keep their old value until restart.
func (d *Daemon) ReloadConfig(_ context.Context, cfg *config.Config) error {
	if cfg == nil {
		return errors.ConfigError("configuration is required").Build()
	}
	old := d.config.Current()

	for _, field := range restartOnlyChanges(old, cfg) {
		slog.Warn("Configuration change requires restart to take effect", slog.String("field", field))
	}

	// The concurrency key is built from workflow and branch; runs in flight must
	// stay in the same group as the runs that supersede them.
	next := *cfg
	next.Pipeline.Workflow = old.Pipeline.Workflow
	next.Pipeline.Branch = old.Pipeline.Branch
	d.config.Store(&next)

	slog.Info("Configuration reloaded",
		logfields.Branch(next.Pipeline.Branch),
		slog.String("workflow", next.Pipeline.Workflow))
	return nil
}

func restartOnlyChanges(old, cfg *config.Config) []string {
	var fields []string
	if old.Pipeline.Workflow != cfg.Pipeline.Workflow {
		fields = append(fields, "pipeline.workflow")
	}
	if old.Pipeline.Branch != cfg.Pipeline.Branch {
		fields = append(fields, "pipeline.branch")
	}
	if old.Server.Address != cfg.Server.Address {
		fields = append(fields, "server.address")
	}
	if old.Server.WebhookPath != cfg.Server.WebhookPath {
		fields = append(fields, "server.webhook_path")
	}
	if old.Pipeline.CancelsInProgress() != cfg.Pipeline.CancelsInProgress() {
		fields = append(fields, "pipeline.cancel_in_progress")
	}
	if old.Workspace.BaseDir != cfg.Workspace.BaseDir || old.Workspace.Keep != cfg.Workspace.Keep {
		fields = append(fields, "workspace")
	}
	if old.History.Path != cfg.History.Path {
		fields = append(fields, "history.path")
	}
	if old.Notify != cfg.Notify {
		fields = append(fields, "notify")
	}
	return fields
}
