package oauth

// TokenResponse represents a successful token endpoint response (RFC 6749 §5.1)
type TokenResponse struct {
	// AccessToken is the opaque access token value
	AccessToken string `json:"access_token"`

	// RefreshToken is the opaque refresh token value
	RefreshToken string `json:"refresh_token,omitempty"`

	// TokenType is always "Bearer"
	TokenType string `json:"token_type"`

	// ExpiresIn is the access token lifetime in seconds
	ExpiresIn int64 `json:"expires_in"`

	// Scope is the space-joined granted scope set
	Scope string `json:"scope,omitempty"`
}

// ErrorResponse represents an OAuth error response
type ErrorResponse struct {
	// Error is the error code
	Error string `json:"error"`

	// ErrorDescription provides additional information
	ErrorDescription string `json:"error_description,omitempty"`
}

// IntrospectionResponse represents a token introspection response (RFC 7662)
type IntrospectionResponse struct {
	// Active reports whether the token is currently valid for the caller.
	// When false all other fields are omitted.
	Active bool `json:"active"`

	// Scope is the space-joined scope set bound to the token
	Scope string `json:"scope,omitempty"`

	// ClientID identifies the client the token was issued to
	ClientID string `json:"client_id,omitempty"`

	// TokenType is "access_token" or "refresh_token"
	TokenType string `json:"token_type,omitempty"`

	// Exp is the token's expiry as a Unix timestamp
	Exp int64 `json:"exp,omitempty"`

	// Sub is the subject (user) identifier
	Sub string `json:"sub,omitempty"`
}

// RevocationResponse represents a token revocation response. Per RFC 7009
// the outcome does not depend on whether a token was actually found.
type RevocationResponse struct {
	Success bool `json:"success"`
}

// UserInfoResponse represents the userinfo endpoint response
type UserInfoResponse struct {
	UserID   int64    `json:"user_id"`
	Username string   `json:"username"`
	Email    string   `json:"email,omitempty"`
	Name     string   `json:"name,omitempty"`
	Scope    []string `json:"scope"`
}

// AuthorizationServerMetadata represents OAuth 2.0 Authorization Server Metadata (RFC 8414)
type AuthorizationServerMetadata struct {
	// Issuer is the authorization server's issuer identifier URL
	Issuer string `json:"issuer"`

	// AuthorizationEndpoint is the URL of the authorization endpoint
	AuthorizationEndpoint string `json:"authorization_endpoint"`

	// TokenEndpoint is the URL of the token endpoint
	TokenEndpoint string `json:"token_endpoint"`

	// UserinfoEndpoint is the URL of the userinfo endpoint
	UserinfoEndpoint string `json:"userinfo_endpoint,omitempty"`

	// RevocationEndpoint is the URL of the OAuth 2.0 token revocation endpoint (RFC 7009)
	RevocationEndpoint string `json:"revocation_endpoint,omitempty"`

	// IntrospectionEndpoint is the URL of the OAuth 2.0 token introspection endpoint (RFC 7662)
	IntrospectionEndpoint string `json:"introspection_endpoint,omitempty"`

	// ScopesSupported lists the OAuth scopes supported
	ScopesSupported []string `json:"scopes_supported,omitempty"`

	// ResponseTypesSupported lists the OAuth response types supported
	ResponseTypesSupported []string `json:"response_types_supported"`

	// GrantTypesSupported lists the OAuth grant types supported
	GrantTypesSupported []string `json:"grant_types_supported,omitempty"`

	// TokenEndpointAuthMethodsSupported lists the client authentication methods supported at the token endpoint
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported,omitempty"`
}
