// Package google implements the providers.Provider interface for Google
// OAuth 2.0.
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	oauthgoogle "golang.org/x/oauth2/google"

	"github.com/skyhhjmk/wind-oauth/providers"
)

// Compile-time check that Provider implements the providers.Provider interface.
var _ providers.Provider = (*Provider)(nil)

const providerName = "google"

const userinfoEndpoint = "https://openidconnect.googleapis.com/v1/userinfo"

const defaultRequestTimeout = 30 * time.Second

// Provider implements Google identity assertion exchange.
type Provider struct {
	config         *oauth2.Config
	httpClient     *http.Client
	requestTimeout time.Duration
}

// Config holds Google OAuth configuration.
type Config struct {
	// ClientID is the Google OAuth client ID.
	ClientID string

	// ClientSecret is the Google OAuth client secret.
	ClientSecret string

	// RedirectURL is the OAuth callback URL.
	RedirectURL string

	// Scopes are optional custom scopes (defaults to ["openid", "email", "profile"]).
	Scopes []string

	// HTTPClient is an optional custom HTTP client.
	HTTPClient *http.Client

	// RequestTimeout is the timeout for Google API calls (default: 30s).
	RequestTimeout time.Duration
}

// NewProvider creates a new Google OAuth provider.
func NewProvider(cfg *Config) (*Provider, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client ID is required")
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("client secret is required")
	}
	if cfg.RedirectURL == "" {
		return nil, fmt.Errorf("redirect URL is required")
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "email", "profile"}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = defaultRequestTimeout
	}

	return &Provider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     oauthgoogle.Endpoint,
		},
		httpClient:     httpClient,
		requestTimeout: timeout,
	}, nil
}

// Name implements providers.Provider.
func (p *Provider) Name() string {
	return providerName
}

// AuthorizationURL implements providers.Provider.
func (p *Provider) AuthorizationURL(state string) string {
	return p.config.AuthCodeURL(state)
}

// googleUserinfo mirrors the OIDC userinfo response fields we consume.
type googleUserinfo struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Exchange implements providers.Provider. The returned SubjectID is the OIDC
// "sub" claim, Google's stable account identifier.
func (p *Provider) Exchange(ctx context.Context, code string) (*providers.Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, p.requestTimeout)
	defer cancel()

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("google code exchange: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, userinfoEndpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("google userinfo lookup: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from userinfo endpoint", resp.StatusCode)
	}

	var info googleUserinfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("google userinfo decode: %w", err)
	}
	if info.Sub == "" {
		return nil, fmt.Errorf("google userinfo response missing sub")
	}

	return &providers.Identity{
		Provider:  providerName,
		SubjectID: info.Sub,
		Username:  info.Email,
		Email:     info.Email,
		Name:      info.Name,
	}, nil
}
