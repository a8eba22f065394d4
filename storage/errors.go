package storage

import "errors"

// Sentinel errors returned by storage implementations. Callers use
// errors.Is to distinguish protocol-relevant conditions (not found,
// expired) from backend faults, which must never leak into OAuth
// error bodies.
var (
	// ErrClientNotFound indicates no client exists for the given client_id.
	ErrClientNotFound = errors.New("client not found")

	// ErrCodeNotFound indicates the authorization code does not exist,
	// does not belong to the client, or was already consumed.
	ErrCodeNotFound = errors.New("authorization code not found")

	// ErrCodeExpired indicates the authorization code passed its expiry.
	// Implementations remove the record when reporting this.
	ErrCodeExpired = errors.New("authorization code expired")

	// ErrTokenNotFound indicates no token record matches the given value.
	ErrTokenNotFound = errors.New("token not found")

	// ErrTokenExpired indicates the token's refresh lifetime has passed.
	ErrTokenExpired = errors.New("token expired")

	// ErrScopeNotFound indicates no scope catalog entry with that name.
	ErrScopeNotFound = errors.New("scope not found")

	// ErrBindingNotFound indicates no identity binding for the given
	// provider and subject.
	ErrBindingNotFound = errors.New("user binding not found")
)
