package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/pagesdeploy/internal/foundation/errors"
)

// Load reads, expands, defaults and validates the configuration at configPath.
func Load(configPath string) (*Config, error) {
	if used, err := loadEnvFiles(); err != nil {
		fmt.Fprintf(os.Stderr, "Note: failed to load %s: %v\n", used, err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigError("configuration file not found").
				WithContext("path", configPath).
				Build()
		}
		return nil, errors.ConfigError("failed to read config file").
			WithCause(err).
			WithContext("path", configPath).
			Build()
	}

	return Parse(data)
}

// Parse decodes YAML (with ${VAR} expansion), applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, errors.ConfigError("failed to unmarshal config").WithCause(err).Build()
	}

	applyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DeployRepository returns the publish remote, falling back to the source repository.
func (c *Config) DeployRepository() string {
	if c.Deploy.Repository != "" {
		return c.Deploy.Repository
	}
	return c.Source.URL
}

// DeployAuth returns the publish credentials, falling back to the source credentials.
func (c *Config) DeployAuth() *AuthConfig {
	if !c.Deploy.Auth.IsZero() {
		return c.Deploy.Auth
	}
	return c.Source.Auth
}
