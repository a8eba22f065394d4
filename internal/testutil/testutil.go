// Package testutil provides testing utilities, test fixtures, and assertion
// helpers for the wind-oauth library.
package testutil

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/skyhhjmk/wind-oauth/storage"
)

// TestClientSecret is the plaintext secret of the client returned by
// NewTestClient.
const TestClientSecret = "secret"

// testClientSecretHash computes the fixture's bcrypt hash once per test
// binary. MinCost keeps the suites fast; the verification path does not
// depend on cost.
var testClientSecretHash = sync.OnceValue(func() string {
	hash, err := bcrypt.GenerateFromPassword([]byte(TestClientSecret), bcrypt.MinCost)
	if err != nil {
		panic(fmt.Sprintf("failed to hash test client secret: %v", err))
	}
	return string(hash)
})

// GenerateRandomString generates a random base64-encoded string
func GenerateRandomString(length int) string {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("failed to generate random string: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)[:length]
}

// NewTestClient creates a client record with sensible defaults for tests.
// The secret hash verifies against TestClientSecret.
func NewTestClient() *storage.Client {
	now := time.Now()
	return &storage.Client{
		ID:          1,
		OwnerUserID: 100,
		Name:        "Test Client",
		ClientID:    "client_0123456789abcdef0123456789abcdef",
		SecretHash:  testClientSecretHash(),
		RedirectURI: "https://example.com/callback",
		GrantTypes:  []string{"authorization_code", "refresh_token"},
		Scopes:      []string{"basic", "email", "profile"},
		Status:      storage.ClientEnabled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// NewTestAuthorizationCode creates an unexpired authorization code bound to
// the given client.
func NewTestAuthorizationCode(clientID string) *storage.AuthorizationCode {
	now := time.Now()
	return &storage.AuthorizationCode{
		Code:        GenerateRandomString(32),
		ClientID:    clientID,
		UserID:      100,
		RedirectURI: "https://example.com/callback",
		Scope:       []string{"basic"},
		CreatedAt:   now,
		ExpiresAt:   now.Add(10 * time.Minute),
	}
}

// NewTestToken creates an active token pair bound to the given client.
func NewTestToken(clientID string) *storage.Token {
	now := time.Now()
	return &storage.Token{
		AccessToken:      GenerateRandomString(64),
		RefreshToken:     GenerateRandomString(64),
		ClientID:         clientID,
		UserID:           100,
		Scope:            []string{"basic"},
		ExpiresAt:        now.Add(2 * time.Hour),
		RefreshExpiresAt: now.Add(30 * 24 * time.Hour),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// NewMockHTTPServer creates a test HTTP server with the given handler
func NewMockHTTPServer(handler http.HandlerFunc) *httptest.Server {
	return httptest.NewServer(handler)
}

// AssertNoError fails the test if err is not nil
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error but got nil")
	}
}

// AssertEqual fails the test if got != want
func AssertEqual(t *testing.T, got, want interface{}) {
	t.Helper()
	if got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

// AssertNotEqual fails the test if got == want
func AssertNotEqual(t *testing.T, got, want interface{}) {
	t.Helper()
	if got == want {
		t.Errorf("got %v, want different value", got)
	}
}

// AssertTrue fails the test if condition is false
func AssertTrue(t *testing.T, condition bool, message string) {
	t.Helper()
	if !condition {
		t.Errorf("assertion failed: %s", message)
	}
}

// AssertFalse fails the test if condition is true
func AssertFalse(t *testing.T, condition bool, message string) {
	t.Helper()
	if condition {
		t.Errorf("assertion failed: %s", message)
	}
}

// AssertTimeEqual asserts two times are equal within a tolerance
func AssertTimeEqual(t *testing.T, got, want time.Time, tolerance time.Duration) {
	t.Helper()
	diff := got.Sub(want)
	if diff < 0 {
		diff = -diff
	}
	if diff > tolerance {
		t.Errorf("time mismatch: got %v, want %v (tolerance: %v, diff: %v)", got, want, tolerance, diff)
	}
}
