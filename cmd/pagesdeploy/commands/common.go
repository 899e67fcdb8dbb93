package commands

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/pagesdeploy/internal/config"
)

// LogLevelEnv overrides logging.level when --verbose is not given.
const LogLevelEnv = "PAGESDEPLOY_LOG_LEVEL"

// Global context passed to subcommands.
type Global struct {
	Stdout io.Writer
}

func (g *Global) stdout() io.Writer {
	if g == nil || g.Stdout == nil {
		return os.Stdout
	}
	return g.Stdout
}

// CLI definition & global flags.
type CLI struct {
	Config    string           `short:"c" help:"Configuration file path" default:"pagesdeploy.yaml" type:"path"`
	Verbose   bool             `short:"v" help:"Enable verbose logging"`
	LogFormat string           `name:"log-format" help:"Log format (text|json); defaults to logging.format"`
	Version   kong.VersionFlag `name:"version" help:"Show version and exit"`

	Run     RunCmd     `cmd:"" help:"Run the build and deploy pipeline once"`
	Serve   ServeCmd   `cmd:"" help:"Serve the push webhook and run the pipeline on every push"`
	Init    InitCmd    `cmd:"" help:"Write an example configuration file"`
	History HistoryCmd `cmd:"" help:"Show recent runs from the run history"`
	Verify  VerifyCmd  `cmd:"" help:"Check that an output directory is ready to publish"`
}

// AfterApply runs after flag parsing; sets up logging from flags and environment.
// Commands that load a configuration refine it with ConfigureLogging.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	slog.SetDefault(newLogger(os.Stderr, c.level(nil), c.format(nil)))
	return nil
}

// ConfigureLogging applies the logging section of cfg where flags and environment
// leave it open.
func (c *CLI) ConfigureLogging(cfg *config.Config) {
	slog.SetDefault(newLogger(os.Stderr, c.level(cfg), c.format(cfg)))
}

func (c *CLI) level(cfg *config.Config) slog.Level {
	if c.Verbose {
		return slog.LevelDebug
	}
	if env := strings.TrimSpace(os.Getenv(LogLevelEnv)); env != "" {
		return config.NormalizeLogLevel(env).SlogLevel()
	}
	if cfg != nil {
		return config.NormalizeLogLevel(cfg.Logging.Level).SlogLevel()
	}
	return slog.LevelInfo
}

func (c *CLI) format(cfg *config.Config) config.LogFormat {
	if c.LogFormat != "" {
		return config.NormalizeLogFormat(c.LogFormat)
	}
	if cfg != nil {
		return config.NormalizeLogFormat(cfg.Logging.Format)
	}
	return config.LogFormatText
}

func newLogger(w io.Writer, level slog.Level, format config.LogFormat) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// loadConfig loads the configuration named by --config and applies its logging section.
func (c *CLI) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return nil, err
	}
	c.ConfigureLogging(cfg)
	return cfg, nil
}
