package config

import "time"

// Config is the pipeline definition loaded from YAML.
type Config struct {
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Source    SourceConfig    `yaml:"source"`
	Toolchain ToolchainConfig `yaml:"toolchain"`
	Build     BuildConfig     `yaml:"build"`
	Deploy    DeployConfig    `yaml:"deploy"`
	Server    ServerConfig    `yaml:"server"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	History   HistoryConfig   `yaml:"history"`
	Notify    NotifyConfig    `yaml:"notify"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// PipelineConfig identifies the workflow and the branch whose pushes trigger runs.
type PipelineConfig struct {
	Workflow         string `yaml:"workflow"`
	Branch           string `yaml:"branch"`
	CancelInProgress *bool  `yaml:"cancel_in_progress,omitempty"`
	Timeout          string `yaml:"timeout,omitempty"`
}

// CancelsInProgress reports whether a new run supersedes the active one (default true).
func (p PipelineConfig) CancelsInProgress() bool {
	return p.CancelInProgress == nil || *p.CancelInProgress
}

// TimeoutDuration parses Timeout; zero means no limit.
func (p PipelineConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(p.Timeout)
	if err != nil {
		return 0
	}
	return d
}

// SourceConfig points at the application repository checked out for every run.
type SourceConfig struct {
	URL        string      `yaml:"url"`
	Auth       *AuthConfig `yaml:"auth,omitempty"`
	ProjectDir string      `yaml:"project_dir,omitempty"` // subdirectory where build commands run
	Depth      int         `yaml:"depth,omitempty"`
}

// ToolchainConfig declares what must be resolvable before any build runs.
type ToolchainConfig struct {
	Tools   []ToolRequirement   `yaml:"tools,omitempty"`
	Targets []TargetRequirement `yaml:"targets,omitempty"`
}

// ToolRequirement is a binary that must be on PATH.
type ToolRequirement struct {
	Name    string   `yaml:"name"`
	Install []string `yaml:"install,omitempty"`
}

// TargetRequirement is a compilation target installed through the toolchain manager.
type TargetRequirement struct {
	Name    string   `yaml:"name"`
	Check   []string `yaml:"check"`
	Install []string `yaml:"install,omitempty"`
}

// BuildConfig describes the build commands and the output contract.
type BuildConfig struct {
	OutputDir    string   `yaml:"output_dir"`
	Release      *bool    `yaml:"release,omitempty"`
	ReleaseFlag  string   `yaml:"release_flag,omitempty"`
	FeaturesFlag string   `yaml:"features_flag,omitempty"`
	WebCommand   []string `yaml:"web_command"`
	HostCommand  []string `yaml:"host_command"`
	SearchIndex  string   `yaml:"search_index,omitempty"`
	SearchMarker string   `yaml:"search_marker,omitempty"`
	Env          []string `yaml:"env,omitempty"`
}

// IsRelease reports whether builds use the release flag (default true).
func (b BuildConfig) IsRelease() bool {
	return b.Release == nil || *b.Release
}

// DeployConfig is the publish target.
type DeployConfig struct {
	Repository string       `yaml:"repository,omitempty"` // defaults to source.url
	Branch     string       `yaml:"branch"`
	Folder     string       `yaml:"folder"`
	Clean      bool         `yaml:"clean"`
	Auth       *AuthConfig  `yaml:"auth,omitempty"`
	Author     AuthorConfig `yaml:"author"`
	Message    string       `yaml:"message,omitempty"`
}

// AuthorConfig is the identity used for publish commits.
type AuthorConfig struct {
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
}

// ServerConfig configures the webhook trigger server.
type ServerConfig struct {
	Address       string `yaml:"address"`
	WebhookPath   string `yaml:"webhook_path"`
	WebhookSecret string `yaml:"webhook_secret,omitempty"`
}

// WorkspaceConfig controls per-run scratch directories.
type WorkspaceConfig struct {
	BaseDir   string `yaml:"base_dir,omitempty"`
	Retention string `yaml:"retention,omitempty"`
	Keep      bool   `yaml:"keep,omitempty"` // keep run workspaces after completion (debugging)
}

// HistoryConfig configures the run event store.
type HistoryConfig struct {
	Path      string `yaml:"path"`
	Retention string `yaml:"retention,omitempty"`
}

// NotifyConfig configures optional NATS run notifications.
type NotifyConfig struct {
	NATSURL string `yaml:"nats_url,omitempty"`
	Subject string `yaml:"subject,omitempty"`
	Stream  string `yaml:"stream,omitempty"` // publish through JetStream into this stream when set
}

// Enabled reports whether notifications are configured.
func (n NotifyConfig) Enabled() bool { return n.NATSURL != "" }

// LoggingConfig selects log level and format.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// ParseRetention parses a retention duration, returning fallback when empty or invalid.
func ParseRetention(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
