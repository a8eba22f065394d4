// Package storage provides interfaces and record types for OAuth client,
// authorization-code, token, scope, and user-binding persistence.
//
// The storage package defines the repository interfaces used throughout the
// wind-oauth library:
//   - ClientStore: Manages registered OAuth clients
//   - CodeStore: Manages single-use authorization codes
//   - TokenStore: Manages access/refresh token pairs
//   - ScopeStore: Manages the scope catalog
//   - BindingStore: Maps third-party identities to local users
//
// Implementations are provided in subpackages:
//   - storage/memory: In-memory storage for development and testing
//   - storage/valkey: Valkey/Redis-compatible distributed storage for production
package storage
