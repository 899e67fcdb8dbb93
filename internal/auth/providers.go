package auth

import (
	"fmt"
	"os"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"

	"git.home.luguber.info/inful/pagesdeploy/internal/config"
)

type noneProvider struct{}

func (noneProvider) Type() config.AuthType                                   { return config.AuthTypeNone }
func (noneProvider) Validate(*config.AuthConfig) error                       { return nil }
func (noneProvider) Create(*config.AuthConfig) (transport.AuthMethod, error) { return nil, nil }

type tokenProvider struct{}

func (tokenProvider) Type() config.AuthType { return config.AuthTypeToken }

func (tokenProvider) Validate(cfg *config.AuthConfig) error {
	if cfg.Token == "" {
		return fmt.Errorf("token authentication requires a token")
	}
	return nil
}

func (tokenProvider) Create(cfg *config.AuthConfig) (transport.AuthMethod, error) {
	username := cfg.Username
	if username == "" {
		username = DefaultTokenUsername
	}
	return &http.BasicAuth{Username: username, Password: cfg.Token}, nil
}

type basicProvider struct{}

func (basicProvider) Type() config.AuthType { return config.AuthTypeBasic }

func (basicProvider) Validate(cfg *config.AuthConfig) error {
	if cfg.Username == "" || cfg.Password == "" {
		return fmt.Errorf("basic authentication requires username and password")
	}
	return nil
}

func (basicProvider) Create(cfg *config.AuthConfig) (transport.AuthMethod, error) {
	return &http.BasicAuth{Username: cfg.Username, Password: cfg.Password}, nil
}

type sshProvider struct{}

func (sshProvider) Type() config.AuthType { return config.AuthTypeSSH }

func (sshProvider) Validate(cfg *config.AuthConfig) error {
	path := cfg.SSHKeyPath()
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("ssh key %s: %w", path, err)
	}
	return nil
}

func (sshProvider) Create(cfg *config.AuthConfig) (transport.AuthMethod, error) {
	keys, err := ssh.NewPublicKeysFromFile(cfg.SSHUser(), cfg.SSHKeyPath(), cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("load ssh key: %w", err)
	}
	return keys, nil
}
