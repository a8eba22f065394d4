package server

import (
	"log/slog"
	"time"
)

// Config holds protocol engine configuration. Zero values get secure
// defaults applied by New.
type Config struct {
	// Issuer is the external base URL of this authorization server,
	// e.g. "https://auth.example.com". Used for metadata and HSTS decisions.
	Issuer string

	// AuthorizationCodeTTL is the authorization code lifetime in seconds.
	// Default: 600 (10 minutes).
	AuthorizationCodeTTL int

	// AccessTokenTTL is the access token lifetime in seconds.
	// Default: 7200 (2 hours).
	AccessTokenTTL int

	// RefreshTokenTTL is the refresh token lifetime in seconds.
	// Default: 2592000 (30 days).
	RefreshTokenTTL int

	// TrustProxy enables X-Forwarded-For / X-Real-IP handling. Only set
	// behind a trusted reverse proxy.
	TrustProxy bool

	// TrustedProxyCount is the number of trusted proxies in front of the
	// server. Default: 1 when TrustProxy is set.
	TrustedProxyCount int

	// AuditEnabled turns on security audit logging.
	AuditEnabled bool
}

func (c *Config) codeTTL() time.Duration {
	return time.Duration(c.AuthorizationCodeTTL) * time.Second
}

func (c *Config) accessTTL() time.Duration {
	return time.Duration(c.AccessTokenTTL) * time.Second
}

func (c *Config) refreshTTL() time.Duration {
	return time.Duration(c.RefreshTokenTTL) * time.Second
}

// applySecureDefaults applies secure-by-default configuration values
func applySecureDefaults(config *Config, logger *slog.Logger) *Config {
	if config.AuthorizationCodeTTL == 0 {
		config.AuthorizationCodeTTL = 600 // 10 minutes
	}
	if config.AccessTokenTTL == 0 {
		config.AccessTokenTTL = 7200 // 2 hours
	}
	if config.RefreshTokenTTL == 0 {
		config.RefreshTokenTTL = 2592000 // 30 days
	}
	if config.TrustedProxyCount == 0 {
		config.TrustedProxyCount = 1
	}

	if config.TrustProxy {
		logger.Info("Proxy header trust enabled",
			"trusted_proxy_count", config.TrustedProxyCount)
	}

	return config
}
