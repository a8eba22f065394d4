package server

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const (
	// tokenByteLength is the entropy of opaque token values (codes, access
	// and refresh tokens). 32 bytes yields a 64-character hex string.
	tokenByteLength = 32

	// clientIDByteLength is the entropy of the client identifier suffix.
	clientIDByteLength = 16

	// ClientIDPrefix marks public client identifiers as such. The prefix
	// carries no decodable structure; it only aids log and support triage.
	ClientIDPrefix = "client_"
)

// randomHex returns n random bytes encoded as lowercase hex.
func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// NewAuthorizationCode generates an opaque authorization code value.
func NewAuthorizationCode() (string, error) {
	return randomHex(tokenByteLength)
}

// NewAccessToken generates an opaque access token value.
func NewAccessToken() (string, error) {
	return randomHex(tokenByteLength)
}

// NewRefreshToken generates an opaque refresh token value.
func NewRefreshToken() (string, error) {
	return randomHex(tokenByteLength)
}

// NewClientCredentials generates a public client identifier and a plaintext
// client secret. The secret is returned exactly once, at creation time; only
// its hash is ever stored.
func NewClientCredentials() (clientID, clientSecret string, err error) {
	suffix, err := randomHex(clientIDByteLength)
	if err != nil {
		return "", "", err
	}
	secret, err := randomHex(tokenByteLength)
	if err != nil {
		return "", "", err
	}
	return ClientIDPrefix + suffix, secret, nil
}
