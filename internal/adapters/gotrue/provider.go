package gotrue

// Package gotrue adapts a GoTrue-style identity service (the kind hosted
// backend platforms ship) to ports.IdentityProvider. Credential checks go
// through the OAuth2 password grant, access tokens are verified locally
// against the service's JWKS, and the refresh token is persisted in a
// TokenStore so sessions survive process restarts.

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	domainauth "github.com/atelierhq/atelier/internal/domain/auth"
	"github.com/atelierhq/atelier/internal/ports"
)

const defaultTokenKey = "current"

// ProviderConfig holds configuration for the GoTrue provider.
type ProviderConfig struct {
	// BaseURL of the auth service, e.g. https://project.example.co/auth/v1.
	BaseURL string
	// APIKey is the public (anon) key sent with every request.
	APIKey string
	// Issuer expected in access tokens; defaults to BaseURL.
	Issuer string
	// JWKSURL defaults to BaseURL + "/.well-known/jwks.json".
	JWKSURL string
	// Claims override the JMESPath expressions used to read identity
	// fields out of provider JSON.
	Claims ClaimPaths
	// Tokens persists the provider token between runs. Required.
	Tokens ports.TokenStore
	// TokenKey namespaces the stored token; defaults to "current".
	TokenKey string
	// HTTPClient is optional; defaults to a 10s-timeout client. Provider
	// calls carry no retry policy on purpose: retrying here could mask an
	// invitation race as a transient fault.
	HTTPClient *http.Client
}

// Provider implements ports.IdentityProvider against a GoTrue-style API.
type Provider struct {
	baseURL    string
	apiKey     string
	tokenKey   string
	oauth      *oauth2.Config
	verifier   *gooidc.IDTokenVerifier
	mapper     *claimMapper
	tokens     ports.TokenStore
	httpClient *http.Client

	mu        sync.Mutex
	events    chan ports.SessionEvent
	closeOnce sync.Once
}

var _ ports.IdentityProvider = (*Provider)(nil)

// NewProvider constructs a GoTrue provider from config.
func NewProvider(cfg ProviderConfig) (*Provider, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("gotrue: base URL is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("gotrue: API key is required")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("gotrue: token store is required")
	}

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = baseURL
	}
	jwksURL := cfg.JWKSURL
	if jwksURL == "" {
		jwksURL = baseURL + "/.well-known/jwks.json"
	}
	tokenKey := cfg.TokenKey
	if tokenKey == "" {
		tokenKey = defaultTokenKey
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	mapper, err := newClaimMapper(cfg.Claims)
	if err != nil {
		return nil, fmt.Errorf("gotrue: %w", err)
	}

	keySet := gooidc.NewRemoteKeySet(
		context.WithValue(context.Background(), oauth2.HTTPClient, httpClient),
		jwksURL,
	)
	verifier := gooidc.NewVerifier(issuer, keySet, &gooidc.Config{SkipClientIDCheck: true})

	return &Provider{
		baseURL:  baseURL,
		apiKey:   cfg.APIKey,
		tokenKey: tokenKey,
		oauth: &oauth2.Config{
			ClientID: cfg.APIKey,
			Endpoint: oauth2.Endpoint{
				TokenURL:  baseURL + "/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		verifier:   verifier,
		mapper:     mapper,
		tokens:     cfg.Tokens,
		httpClient: httpClient,
		events:     make(chan ports.SessionEvent, 8),
	}, nil
}

// Events returns the session-change stream.
func (p *Provider) Events() <-chan ports.SessionEvent { return p.events }

// CurrentSession restores the session from the persisted token, refreshing
// it when stale. A revoked or absent token yields (nil, nil).
func (p *Provider) CurrentSession(ctx context.Context) (*domainauth.ProviderSession, error) {
	stored, err := p.tokens.Get(ctx, p.tokenKey)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("load stored token: %w", err)
	}

	var tok oauth2.Token
	if err := json.Unmarshal(stored, &tok); err != nil {
		// Unreadable token material; treat as signed out.
		_ = p.tokens.Delete(ctx, p.tokenKey)
		return nil, nil
	}

	fresh, err := p.oauth.TokenSource(p.oauthCtx(ctx), &tok).Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			// Provider revoked the refresh token: the session is gone.
			_ = p.tokens.Delete(ctx, p.tokenKey)
			return nil, nil
		}
		return nil, fmt.Errorf("refresh token: %w", err)
	}

	identity, expiry, err := p.identityFromAccessToken(ctx, fresh.AccessToken)
	if err != nil {
		return nil, err
	}

	if fresh.AccessToken != tok.AccessToken {
		if err := p.persistToken(ctx, fresh); err != nil {
			return nil, err
		}
	}

	return &domainauth.ProviderSession{
		AccessToken:  fresh.AccessToken,
		RefreshToken: fresh.RefreshToken,
		Identity:     identity,
		ExpiresAt:    expiry,
	}, nil
}

// SignInWithPassword performs the password grant and establishes a session.
func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) (*domainauth.ProviderSession, error) {
	tok, err := p.oauth.PasswordCredentialsToken(p.oauthCtx(ctx), email, password)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, fmt.Errorf("%w: %s", ports.ErrProviderRejected, retrieveErr.ErrorDescription)
		}
		return nil, fmt.Errorf("password grant: %w", err)
	}

	identity, expiry, err := p.identityFromAccessToken(ctx, tok.AccessToken)
	if err != nil {
		return nil, err
	}
	if err := p.persistToken(ctx, tok); err != nil {
		return nil, err
	}

	sess := &domainauth.ProviderSession{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Identity:     identity,
		ExpiresAt:    expiry,
	}
	p.emit(ports.SessionEvent{Type: ports.SessionSignedIn, Session: sess})
	return sess, nil
}

// signupResponse is decoded loosely; the claim mapper pulls the identity
// fields out of the raw JSON so both auto-confirm layouts are handled.
type signupResponse struct {
	AccessToken  string  `json:"access_token"`
	RefreshToken string  `json:"refresh_token"`
	ExpiresIn    float64 `json:"expires_in"`
}

// SignUp creates a new provider identity. When the provider auto-confirms,
// the returned session is live; otherwise it is nil and the identity awaits
// confirmation.
func (p *Provider) SignUp(ctx context.Context, email, password string) (domainauth.Identity, *domainauth.ProviderSession, error) {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return domainauth.Identity{}, nil, fmt.Errorf("encode signup request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/signup", bytes.NewReader(body))
	if err != nil {
		return domainauth.Identity{}, nil, fmt.Errorf("build signup request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return domainauth.Identity{}, nil, fmt.Errorf("signup request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domainauth.Identity{}, nil, fmt.Errorf("read signup response: %w", err)
	}

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return domainauth.Identity{}, nil, fmt.Errorf("%w: signup returned %d: %s",
			ports.ErrProviderRejected, resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	if resp.StatusCode >= 500 {
		return domainauth.Identity{}, nil, fmt.Errorf("signup returned %d", resp.StatusCode)
	}

	var raw any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return domainauth.Identity{}, nil, fmt.Errorf("decode signup response: %w", err)
	}
	identity, err := p.mapper.Identity(raw)
	if err != nil {
		return domainauth.Identity{}, nil, fmt.Errorf("map signup response: %w", err)
	}

	var tokens signupResponse
	if err := json.Unmarshal(payload, &tokens); err != nil || tokens.AccessToken == "" {
		// Confirmation pending; identity exists but no session yet.
		return identity, nil, nil
	}

	expiry := time.Now().Add(time.Duration(tokens.ExpiresIn) * time.Second)
	tok := &oauth2.Token{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		Expiry:       expiry,
	}
	if err := p.persistToken(ctx, tok); err != nil {
		return domainauth.Identity{}, nil, err
	}

	sess := &domainauth.ProviderSession{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		Identity:     identity,
		ExpiresAt:    expiry,
	}
	p.emit(ports.SessionEvent{Type: ports.SessionSignedIn, Session: sess})
	return identity, sess, nil
}

// SignOut revokes the provider session and clears the persisted token.
func (p *Provider) SignOut(ctx context.Context) error {
	stored, err := p.tokens.Get(ctx, p.tokenKey)
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("load stored token: %w", err)
	}

	if len(stored) > 0 {
		var tok oauth2.Token
		if err := json.Unmarshal(stored, &tok); err == nil && tok.AccessToken != "" {
			p.revoke(ctx, tok.AccessToken)
		}
	}

	if err := p.tokens.Delete(ctx, p.tokenKey); err != nil {
		return fmt.Errorf("delete stored token: %w", err)
	}
	p.emit(ports.SessionEvent{Type: ports.SessionSignedOut})
	return nil
}

// Close ends the event stream.
func (p *Provider) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		close(p.events)
		p.events = nil
	})
	return nil
}

// revoke is best-effort: a dead provider must not block local sign-out.
func (p *Provider) revoke(ctx context.Context, accessToken string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/logout", nil)
	if err != nil {
		return
	}
	req.Header.Set("apikey", p.apiKey)
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return
	}
	_ = resp.Body.Close()
}

func (p *Provider) identityFromAccessToken(ctx context.Context, accessToken string) (domainauth.Identity, time.Time, error) {
	idToken, err := p.verifier.Verify(ctx, accessToken)
	if err != nil {
		return domainauth.Identity{}, time.Time{}, fmt.Errorf("verify access token: %w", err)
	}

	var claims map[string]any
	if err := idToken.Claims(&claims); err != nil {
		return domainauth.Identity{}, time.Time{}, fmt.Errorf("decode claims: %w", err)
	}

	identity, err := p.mapper.Identity(claims)
	if err != nil {
		return domainauth.Identity{}, time.Time{}, err
	}
	return identity, idToken.Expiry, nil
}

func (p *Provider) persistToken(ctx context.Context, tok *oauth2.Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	// No TTL: the refresh token outlives the access token and the provider
	// is the authority on its validity.
	if err := p.tokens.Save(ctx, p.tokenKey, data, 0); err != nil {
		return fmt.Errorf("persist token: %w", err)
	}
	return nil
}

func (p *Provider) oauthCtx(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

func (p *Provider) emit(ev ports.SessionEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.events == nil {
		return
	}
	select {
	case p.events <- ev:
	default:
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, ports.ErrTokenNotFound)
}
