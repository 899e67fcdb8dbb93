package config

import (
	"path/filepath"
	"strings"
	"time"

	"git.home.luguber.info/inful/pagesdeploy/internal/foundation/errors"
)

// Validate checks the configuration after defaults have been applied.
func Validate(cfg *Config) error {
	checks := []func(*Config) error{
		validatePipeline,
		validateToolchain,
		validateBuild,
		validateDeploy,
	}
	for _, check := range checks {
		if err := check(cfg); err != nil {
			return err
		}
	}
	if err := cfg.Source.Auth.validate("source.auth"); err != nil {
		return err
	}
	if err := cfg.Deploy.Auth.validate("deploy.auth"); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.DeployRepository()) == "" {
		return fieldError("deploy.repository", "publish repository is required when source.url is not set")
	}
	return nil
}

func validatePipeline(cfg *Config) error {
	if strings.TrimSpace(cfg.Pipeline.Workflow) == "" {
		return fieldError("pipeline.workflow", "must not be empty")
	}
	if strings.TrimSpace(cfg.Pipeline.Branch) == "" {
		return fieldError("pipeline.branch", "must not be empty")
	}
	if cfg.Pipeline.Timeout != "" {
		if d, err := time.ParseDuration(cfg.Pipeline.Timeout); err != nil || d < 0 {
			return fieldError("pipeline.timeout", "must be a non-negative duration")
		}
	}
	return nil
}

func validateToolchain(cfg *Config) error {
	for i, tool := range cfg.Toolchain.Tools {
		if strings.TrimSpace(tool.Name) == "" {
			return fieldError("toolchain.tools", "tool name must not be empty").WithContext("index", i)
		}
	}
	for i, target := range cfg.Toolchain.Targets {
		if strings.TrimSpace(target.Name) == "" {
			return fieldError("toolchain.targets", "target name must not be empty").WithContext("index", i)
		}
		if len(target.Check) == 0 {
			return fieldError("toolchain.targets", "target requires a check command").WithContext("target", target.Name)
		}
	}
	return nil
}

func validateBuild(cfg *Config) error {
	b := cfg.Build
	if err := validateRelativePath("build.output_dir", b.OutputDir); err != nil {
		return err
	}
	if b.OutputDir == "." {
		return fieldError("build.output_dir", "must be a subdirectory of the project")
	}
	if len(b.WebCommand) == 0 || strings.TrimSpace(b.WebCommand[0]) == "" {
		return fieldError("build.web_command", "must name an executable")
	}
	if len(b.HostCommand) == 0 || strings.TrimSpace(b.HostCommand[0]) == "" {
		return fieldError("build.host_command", "must name an executable")
	}
	if b.SearchIndex != "" {
		if err := validateRelativePath("build.search_index", b.SearchIndex); err != nil {
			return err
		}
	}
	for _, kv := range b.Env {
		if !strings.Contains(kv, "=") {
			return fieldError("build.env", "entries must be KEY=VALUE").WithContext("entry", kv)
		}
	}
	return nil
}

func validateDeploy(cfg *Config) error {
	d := cfg.Deploy
	if strings.TrimSpace(d.Branch) == "" {
		return fieldError("deploy.branch", "must not be empty")
	}
	if err := validateRelativePath("deploy.folder", d.Folder); err != nil {
		return err
	}
	if d.Clean {
		return fieldError("deploy.clean", "destructive publish is not supported; publishes only add or overwrite files")
	}
	return nil
}

func validateRelativePath(field, p string) error {
	if strings.TrimSpace(p) == "" {
		return fieldError(field, "must not be empty")
	}
	if filepath.IsAbs(p) {
		return fieldError(field, "must be relative").WithContext("value", p)
	}
	clean := filepath.Clean(p)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fieldError(field, "must not escape its root").WithContext("value", p)
	}
	return nil
}

func fieldError(field, reason string) *errors.ClassifiedError {
	return errors.ValidationError(field+": "+reason).
		WithContext("field", field).
		Build()
}
