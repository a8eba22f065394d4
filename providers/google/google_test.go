package google

import (
	"net/url"
	"strings"
	"testing"
)

func validConfig() *Config {
	return &Config{
		ClientID:     "goog-client",
		ClientSecret: "goog-secret",
		RedirectURL:  "https://auth.example.com/callback/google",
	}
}

func TestNewProvider_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing client ID", func(c *Config) { c.ClientID = "" }},
		{"missing client secret", func(c *Config) { c.ClientSecret = "" }},
		{"missing redirect URL", func(c *Config) { c.RedirectURL = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			if _, err := NewProvider(cfg); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestAuthorizationURL(t *testing.T) {
	p, err := NewProvider(validConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := p.Name(); got != "google" {
		t.Errorf("Name() = %q, want %q", got, "google")
	}

	raw := p.AuthorizationURL("state-456")
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("authorization URL does not parse: %v", err)
	}

	if !strings.Contains(u.Host, "google.com") {
		t.Errorf("unexpected host %q", u.Host)
	}
	q := u.Query()
	if q.Get("client_id") != "goog-client" {
		t.Errorf("client_id = %q", q.Get("client_id"))
	}
	if q.Get("state") != "state-456" {
		t.Errorf("state = %q", q.Get("state"))
	}
	if !strings.Contains(q.Get("scope"), "openid") {
		t.Errorf("scope = %q", q.Get("scope"))
	}
}
