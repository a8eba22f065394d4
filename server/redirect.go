package server

import (
	"net"
	"net/url"
	"strings"

	"github.com/skyhhjmk/wind-oauth/storage"
)

// ValidateRedirectURI reports whether presented is an acceptable redirect
// URI for the client.
//
// Order of checks:
//  1. Byte-for-byte match against the client's primary redirect_uri.
//  2. If dynamic mode is off, reject.
//  3. Otherwise compare the presented URI's host:port (scheme must be http
//     or https, port defaulted per scheme) against the client's normalized
//     whitelist. Path and query are never checked in dynamic mode.
func ValidateRedirectURI(client *storage.Client, presented string) bool {
	if client == nil || presented == "" {
		return false
	}

	if presented == client.RedirectURI {
		return true
	}

	if !client.RedirectDynamicEnabled {
		return false
	}

	hostPort, ok := normalizeRedirectTarget(presented)
	if !ok {
		return false
	}

	for _, entry := range client.RedirectWhitelist {
		if normalized, ok := normalizeWhitelistEntry(entry); ok && normalized == hostPort {
			return true
		}
	}
	return false
}

// normalizeRedirectTarget parses a presented redirect URI into a canonical
// host:port. Scheme must be http or https; the port defaults to 80/443 per
// scheme. Hosts are lowercased and IPv6 brackets are handled by
// net.JoinHostPort.
func normalizeRedirectTarget(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", false
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", false
	}

	port := u.Port()
	if port == "" {
		if scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}

	return net.JoinHostPort(host, port), true
}

// normalizeWhitelistEntry parses a configured whitelist entry into a
// canonical host:port. Entries may be a full URL ("https://app.example.com:8443/cb")
// or a literal host:port ("example.com:443", "[::1]:8080"). Entries without
// an explicit port are invalid and excluded; a port must be stated so that
// "example.com:443" never accidentally matches plain-HTTP traffic.
func normalizeWhitelistEntry(entry string) (string, bool) {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return "", false
	}

	if strings.Contains(entry, "://") {
		u, err := url.Parse(entry)
		if err != nil {
			return "", false
		}
		host := strings.ToLower(u.Hostname())
		port := u.Port()
		if host == "" || port == "" {
			return "", false
		}
		return net.JoinHostPort(host, port), true
	}

	host, port, err := net.SplitHostPort(entry)
	if err != nil || host == "" || port == "" {
		return "", false
	}
	return net.JoinHostPort(strings.ToLower(host), port), true
}
