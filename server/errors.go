package server

import "errors"

// OAuth error taxonomy. The HTTP adapter maps these onto wire error bodies
// and status codes with errors.Is; storage faults are wrapped into
// ErrServerError so backend detail never reaches a protocol response.
var (
	// ErrInvalidClient covers unknown client, disabled client, and failed
	// secret verification. The three cases are deliberately
	// indistinguishable to the caller.
	ErrInvalidClient = errors.New("invalid_client")

	// ErrInvalidGrant covers a missing, expired, consumed, or mismatched
	// authorization code or refresh token.
	ErrInvalidGrant = errors.New("invalid_grant")

	// ErrInvalidRequest indicates a missing or malformed required parameter.
	ErrInvalidRequest = errors.New("invalid_request")

	// ErrInvalidScope indicates a requested scope outside the catalog or
	// the client's allowed set.
	ErrInvalidScope = errors.New("invalid_scope")

	// ErrUnsupportedGrantType indicates a grant_type this server does not
	// implement.
	ErrUnsupportedGrantType = errors.New("unsupported_grant_type")

	// ErrInvalidRedirectURI indicates a redirect URI that failed
	// validation against the client's registration.
	ErrInvalidRedirectURI = errors.New("invalid redirect_uri")

	// ErrAccessDenied indicates the resource owner declined the request.
	ErrAccessDenied = errors.New("access_denied")

	// ErrServerError wraps internal storage or generation faults.
	ErrServerError = errors.New("server_error")
)
