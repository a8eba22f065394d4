// Package server implements the OAuth 2.0 authorization-server protocol
// engine: client authentication, redirect-URI validation, authorization-code
// and refresh-token grants, token introspection and revocation.
//
// The package is transport-agnostic. The HTTP adapter in the root package
// maps these operations onto the token, introspection, revocation, authorize,
// and userinfo endpoints; this package only knows structured inputs, storage
// interfaces, and the OAuth error taxonomy.
//
// Single-use and rotation guarantees are delegated to the storage layer's
// atomic operations; the engine treats "record no longer present" as the sole
// source of truth and never keeps flow state in memory.
package server
