package config

import (
	"fmt"
	"strings"
	"time"
)

// AuthMode represents the identity provider mode for the application.
type AuthMode string

const (
	// AuthModeGoTrue uses a GoTrue-compatible identity provider (Supabase
	// Auth and friends).
	AuthModeGoTrue AuthMode = "gotrue"
	// AuthModeMock uses the in-memory dev identity provider (for
	// development and testing only).
	AuthModeMock AuthMode = "mock"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(string(text))
	switch v {
	case "gotrue", "mock":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: gotrue, mock)", v)
	}
}

// GoTrueConfig contains the GoTrue provider configuration.
type GoTrueConfig struct {
	// BaseURL is the root of the GoTrue API (e.g. "https://x.supabase.co/auth/v1").
	BaseURL string `env:"BASE_URL"`
	// APIKey is the publishable key sent with every request.
	APIKey string `env:"API_KEY"`
	// Issuer is the expected "iss" claim of access tokens. Defaults to
	// BaseURL when empty.
	Issuer string `env:"ISSUER"`
	// JWKSURL overrides the JWKS endpoint. Defaults to BaseURL +
	// "/.well-known/jwks.json" when empty.
	JWKSURL string `env:"JWKS_URL"`
	// SubjectClaim and EmailClaim are JMESPath expressions selecting the
	// identity fields out of token claims and signup responses.
	SubjectClaim string `env:"SUBJECT_CLAIM"`
	EmailClaim   string `env:"EMAIL_CLAIM"`
	// RequestTimeout bounds every call to the provider.
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`
}

// DevAuthConfig seeds the in-memory dev identity provider.
// Used when AUTH_MODE=mock for development and testing.
type DevAuthConfig struct {
	// Accounts lists "email:password" pairs accepted at login.
	Accounts []string `env:"ACCOUNTS" envDefault:"dev@example.com:devpass" envSeparator:";"`
	// SessionDuration is how long a dev session stays valid.
	SessionDuration time.Duration `env:"SESSION_DURATION" envDefault:"8h"`
}

// ParseAccounts splits the "email:password" pairs into a map.
func (d DevAuthConfig) ParseAccounts() (map[string]string, error) {
	accounts := make(map[string]string, len(d.Accounts))
	for _, pair := range d.Accounts {
		email, password, ok := strings.Cut(pair, ":")
		if !ok || email == "" || password == "" {
			return nil, fmt.Errorf("invalid dev account %q: want \"email:password\"", pair)
		}
		accounts[email] = password
	}
	return accounts, nil
}

// AuthConfig groups all identity provider configuration.
type AuthConfig struct {
	// Mode determines which identity provider to use.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"gotrue"`

	// GoTrue configuration (used when Mode=gotrue).
	GoTrue GoTrueConfig `envPrefix:"GOTRUE_"`

	// DevAuth configuration (used when Mode=mock).
	DevAuth DevAuthConfig `envPrefix:"DEV_AUTH_"`

	// TokenKey is the Redis key suffix the provider token is stored under.
	TokenKey string `env:"AUTH_TOKEN_KEY" envDefault:"current"`
}

// Sanitize applies defaults that depend on other fields.
func (a *AuthConfig) Sanitize() {
	if a.GoTrue.Issuer == "" {
		a.GoTrue.Issuer = a.GoTrue.BaseURL
	}
	if a.GoTrue.RequestTimeout <= 0 {
		a.GoTrue.RequestTimeout = 10 * time.Second
	}
}
