package config

// Defaults mirror the reference deployment: push to main publishes docs/ to the root
// of gh-pages without cleaning.
const (
	DefaultWorkflow     = "deploy"
	DefaultBranch       = "main"
	DefaultOutputDir    = "docs"
	DefaultReleaseFlag  = "--release"
	DefaultFeaturesFlag = "--features"
	DefaultDeployBranch = "gh-pages"
	DefaultDeployFolder = "."
	DefaultMessage      = "Deploy {commit} from {ref} (run {run_id})"
	DefaultAddress      = ":8080"
	DefaultWebhookPath  = "/webhook"
	DefaultHistoryPath  = "pagesdeploy.db"
	DefaultSubject      = "pagesdeploy.runs"
)

func applyDefaults(cfg *Config) {
	if cfg.Pipeline.Workflow == "" {
		cfg.Pipeline.Workflow = DefaultWorkflow
	}
	if cfg.Pipeline.Branch == "" {
		cfg.Pipeline.Branch = DefaultBranch
	}

	b := &cfg.Build
	if b.OutputDir == "" {
		b.OutputDir = DefaultOutputDir
	}
	if b.ReleaseFlag == "" {
		b.ReleaseFlag = DefaultReleaseFlag
	}
	if b.FeaturesFlag == "" {
		b.FeaturesFlag = DefaultFeaturesFlag
	}
	if len(b.WebCommand) == 0 {
		b.WebCommand = []string{"dx", "build", "--platform", "web"}
	}
	if len(b.HostCommand) == 0 {
		b.HostCommand = []string{"cargo", "run"}
	}

	d := &cfg.Deploy
	if d.Branch == "" {
		d.Branch = DefaultDeployBranch
	}
	if d.Folder == "" {
		d.Folder = DefaultDeployFolder
	}
	if d.Author.Name == "" {
		d.Author.Name = "pagesdeploy"
	}
	if d.Author.Email == "" {
		d.Author.Email = "pagesdeploy@localhost"
	}
	if d.Message == "" {
		d.Message = DefaultMessage
	}

	if cfg.Server.Address == "" {
		cfg.Server.Address = DefaultAddress
	}
	if cfg.Server.WebhookPath == "" {
		cfg.Server.WebhookPath = DefaultWebhookPath
	}
	if cfg.Workspace.Retention == "" {
		cfg.Workspace.Retention = "24h"
	}
	if cfg.History.Path == "" {
		cfg.History.Path = DefaultHistoryPath
	}
	if cfg.History.Retention == "" {
		cfg.History.Retention = "720h"
	}
	if cfg.Notify.Subject == "" {
		cfg.Notify.Subject = DefaultSubject
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = string(LogLevelInfo)
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = string(LogFormatText)
	}
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}
