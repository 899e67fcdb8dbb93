package config

import (
	"os"
	"path/filepath"
)

// AuthType selects the go-git transport credentials for a remote.
type AuthType string

const (
	AuthTypeNone  AuthType = "none"
	AuthTypeSSH   AuthType = "ssh"
	AuthTypeToken AuthType = "token"
	AuthTypeBasic AuthType = "basic"
)

const defaultSSHUser = "git"

// AuthConfig holds credentials for the source or hosting remote.
// Secrets usually arrive through ${VAR} expansion.
type AuthConfig struct {
	Type     AuthType `yaml:"type"`
	Username string   `yaml:"username,omitempty"`
	Password string   `yaml:"password,omitempty"` // basic password or ssh key passphrase
	Token    string   `yaml:"token,omitempty"`
	KeyPath  string   `yaml:"key_path,omitempty"`
}

// IsZero reports whether the remote is accessed anonymously.
func (a *AuthConfig) IsZero() bool { return a == nil || a.Type == "" || a.Type == AuthTypeNone }

// SSHUser is the ssh login, "git" unless overridden.
func (a *AuthConfig) SSHUser() string {
	if a == nil || a.Username == "" {
		return defaultSSHUser
	}
	return a.Username
}

// SSHKeyPath is the private key to load, ~/.ssh/id_ed25519 unless overridden.
func (a *AuthConfig) SSHKeyPath() string {
	if a != nil && a.KeyPath != "" {
		return a.KeyPath
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".ssh", "id_ed25519")
}

// validate checks that the fields required by the type are present.
// Key files are checked later by the auth providers, not at load time.
func (a *AuthConfig) validate(field string) error {
	if a.IsZero() {
		return nil
	}
	switch a.Type {
	case AuthTypeToken:
		if a.Token == "" {
			return fieldError(field, "token authentication requires a token")
		}
	case AuthTypeBasic:
		if a.Username == "" || a.Password == "" {
			return fieldError(field, "basic authentication requires username and password")
		}
	case AuthTypeSSH:
	default:
		return fieldError(field, "unsupported auth type").WithContext("type", string(a.Type))
	}
	return nil
}
