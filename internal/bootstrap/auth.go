package bootstrap

import (
	"fmt"
	"log/slog"
	"net/http"

	goredis "github.com/redis/go-redis/v9"

	"github.com/atelierhq/atelier/config"
	"github.com/atelierhq/atelier/internal/adapters/devauth"
	"github.com/atelierhq/atelier/internal/adapters/gotrue"
	redisadapter "github.com/atelierhq/atelier/internal/adapters/redis"
	"github.com/atelierhq/atelier/internal/ports"
)

// AuthProviderConfig contains dependencies for building the identity
// provider.
type AuthProviderConfig struct {
	Auth   config.AuthConfig
	Redis  goredis.UniversalClient
	Logger *slog.Logger
}

// NewIdentityProvider builds the identity provider selected by AUTH_MODE.
//
//nolint:ireturn // the caller only needs the port.
func NewIdentityProvider(cfg AuthProviderConfig) (ports.IdentityProvider, error) {
	switch cfg.Auth.Mode {
	case config.AuthModeMock:
		accounts, err := cfg.Auth.DevAuth.ParseAccounts()
		if err != nil {
			return nil, fmt.Errorf("dev auth accounts: %w", err)
		}
		if cfg.Logger != nil {
			cfg.Logger.Warn("using in-memory dev identity provider; not for production")
		}
		return devauth.NewProvider(devauth.Config{
			Accounts:        accounts,
			SessionDuration: cfg.Auth.DevAuth.SessionDuration,
		}), nil

	case config.AuthModeGoTrue:
		if cfg.Redis == nil {
			return nil, fmt.Errorf("gotrue provider requires redis for token storage")
		}
		claims := gotrue.DefaultClaimPaths()
		if cfg.Auth.GoTrue.SubjectClaim != "" {
			claims.Subject = cfg.Auth.GoTrue.SubjectClaim
		}
		if cfg.Auth.GoTrue.EmailClaim != "" {
			claims.Email = cfg.Auth.GoTrue.EmailClaim
		}
		return gotrue.NewProvider(gotrue.ProviderConfig{
			BaseURL:    cfg.Auth.GoTrue.BaseURL,
			APIKey:     cfg.Auth.GoTrue.APIKey,
			Issuer:     cfg.Auth.GoTrue.Issuer,
			JWKSURL:    cfg.Auth.GoTrue.JWKSURL,
			Claims:     claims,
			Tokens:     redisadapter.NewTokenStore(cfg.Redis),
			TokenKey:   cfg.Auth.TokenKey,
			HTTPClient: &http.Client{Timeout: cfg.Auth.GoTrue.RequestTimeout},
		})

	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Auth.Mode)
	}
}
