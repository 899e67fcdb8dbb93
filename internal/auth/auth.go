// Package auth turns configured credentials into go-git transport auth methods.
package auth

import (
	"github.com/go-git/go-git/v5/plumbing/transport"

	"git.home.luguber.info/inful/pagesdeploy/internal/config"
	"git.home.luguber.info/inful/pagesdeploy/internal/foundation/errors"
)

// DefaultTokenUsername is sent with token auth when no username is configured.
// Most forges accept any non-empty username alongside a personal access token.
const DefaultTokenUsername = "token"

// Provider creates auth for one AuthType.
type Provider interface {
	Type() config.AuthType
	Validate(cfg *config.AuthConfig) error
	Create(cfg *config.AuthConfig) (transport.AuthMethod, error)
}

// Registry maps auth types to providers.
type Registry struct {
	providers map[config.AuthType]Provider
}

// NewRegistry returns a registry with the none, token, basic and ssh providers.
func NewRegistry() *Registry {
	r := &Registry{providers: make(map[config.AuthType]Provider)}
	r.Register(noneProvider{})
	r.Register(tokenProvider{})
	r.Register(basicProvider{})
	r.Register(sshProvider{})
	return r
}

// Register adds or replaces a provider.
func (r *Registry) Register(p Provider) { r.providers[p.Type()] = p }

// Create returns the auth method for cfg. A nil or empty cfg yields no auth.
func (r *Registry) Create(cfg *config.AuthConfig) (transport.AuthMethod, error) {
	if cfg.IsZero() {
		return nil, nil
	}
	p, ok := r.providers[cfg.Type]
	if !ok {
		return nil, errors.AuthError("unsupported authentication type").
			WithContext("type", string(cfg.Type)).
			Build()
	}
	if err := p.Validate(cfg); err != nil {
		return nil, errors.WrapError(err, errors.CategoryAuth, "invalid authentication configuration").
			Fatal().
			WithContext("type", string(cfg.Type)).
			Build()
	}
	method, err := p.Create(cfg)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryAuth, "failed to create authentication").
			Fatal().
			WithContext("type", string(cfg.Type)).
			Build()
	}
	return method, nil
}

var defaultRegistry = NewRegistry()

// Create uses the default registry.
func Create(cfg *config.AuthConfig) (transport.AuthMethod, error) {
	return defaultRegistry.Create(cfg)
}
