package storage

import (
	"context"
	"time"
)

// ClientStatus is the administrative status of a registered client.
type ClientStatus int

const (
	// ClientDisabled marks a client that must fail all authentication.
	ClientDisabled ClientStatus = 0

	// ClientEnabled marks a client that may participate in grants.
	ClientEnabled ClientStatus = 1
)

// Client represents a registered OAuth client.
//
// SecretHash holds the bcrypt hash of the client secret. Records migrated
// from older deployments may transiently hold a plaintext secret instead;
// the secret verifier upgrades those to bcrypt on first successful
// authentication. The field is never serialized on read paths.
type Client struct {
	ID                     int64        `json:"id"`
	OwnerUserID            int64        `json:"owner_user_id"`
	Name                   string       `json:"name"`
	ClientID               string       `json:"client_id"`
	SecretHash             string       `json:"-"`
	RedirectURI            string       `json:"redirect_uri"`
	RedirectDynamicEnabled bool         `json:"redirect_dynamic_enabled"`
	RedirectWhitelist      []string     `json:"redirect_whitelist,omitempty"`
	GrantTypes             []string     `json:"grant_types,omitempty"`
	Scopes                 []string     `json:"scopes,omitempty"`
	Status                 ClientStatus `json:"status"`
	CreatedAt              time.Time    `json:"created_at"`
	UpdatedAt              time.Time    `json:"updated_at"`
}

// AllowsGrantType reports whether the client may use the given grant type.
// An empty GrantTypes list allows all grants (legacy records).
func (c *Client) AllowsGrantType(grantType string) bool {
	if len(c.GrantTypes) == 0 {
		return true
	}
	for _, g := range c.GrantTypes {
		if g == grantType {
			return true
		}
	}
	return false
}

// AuthorizationCode represents a single-use authorization code bound to a
// client, a user, and the redirect URI presented at issuance.
type AuthorizationCode struct {
	Code        string    `json:"code"`
	ClientID    string    `json:"client_id"`
	UserID      int64     `json:"user_id"`
	RedirectURI string    `json:"redirect_uri"`
	Scope       []string  `json:"scope,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Token represents an issued access/refresh token pair. Both values are
// opaque identifiers; all associated state lives in this record.
type Token struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	ClientID         string    `json:"client_id"`
	UserID           int64     `json:"user_id"`
	Scope            []string  `json:"scope,omitempty"`
	ExpiresAt        time.Time `json:"expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Rotation carries the replacement values for an atomic refresh-token
// rotation. Scope, user, and client of the rotated record are preserved.
type Rotation struct {
	AccessToken      string
	RefreshToken     string
	ExpiresAt        time.Time
	RefreshExpiresAt time.Time
}

// Scope is a catalog entry describing a named permission unit.
type Scope struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	IsDefault   bool   `json:"is_default"`
}

// UserBinding links a third-party identity (provider + subject) to a local
// user. Bindings are unique per (Provider, SubjectID).
type UserBinding struct {
	Provider  string    `json:"provider"`
	SubjectID string    `json:"subject_id"`
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ClientStore defines the interface for managing OAuth client registrations.
// All methods accept context.Context for tracing and cancellation.
type ClientStore interface {
	// SaveClient creates or replaces a client record.
	SaveClient(ctx context.Context, client *Client) error

	// GetClient retrieves a client by its public client_id.
	GetClient(ctx context.Context, clientID string) (*Client, error)

	// UpdateClientSecretHash replaces only the stored secret hash.
	// Used for the transparent legacy-plaintext-to-bcrypt upgrade.
	UpdateClientSecretHash(ctx context.Context, clientID, hash string) error

	// DeleteClient removes a client and cascades to its authorization
	// codes and tokens.
	DeleteClient(ctx context.Context, clientID string) error

	// ListClients lists all registered clients (for admin purposes).
	ListClients(ctx context.Context) ([]*Client, error)
}

// CodeStore defines the interface for managing authorization codes.
type CodeStore interface {
	// SaveAuthorizationCode persists an issued authorization code.
	SaveAuthorizationCode(ctx context.Context, code *AuthorizationCode) error

	// GetAuthorizationCode retrieves a live code by (code, client_id)
	// without consuming it. Expired codes are removed and reported as
	// ErrCodeExpired.
	GetAuthorizationCode(ctx context.Context, code, clientID string) (*AuthorizationCode, error)

	// ConsumeAuthorizationCode atomically retrieves and deletes a code by
	// (code, client_id). Exactly one concurrent caller can succeed; all
	// others observe ErrCodeNotFound. An expired code is removed and
	// reported as ErrCodeExpired.
	//
	// SECURITY: This operation MUST be atomic. The absence of the record
	// is the sole source of truth for single-use enforcement.
	ConsumeAuthorizationCode(ctx context.Context, code, clientID string) (*AuthorizationCode, error)

	// DeleteAuthorizationCode removes a code unconditionally.
	DeleteAuthorizationCode(ctx context.Context, code string) error
}

// TokenStore defines the interface for managing token pairs.
type TokenStore interface {
	// SaveToken persists a token pair.
	SaveToken(ctx context.Context, token *Token) error

	// GetTokenByAccess retrieves a token record by access token value.
	GetTokenByAccess(ctx context.Context, accessToken string) (*Token, error)

	// GetTokenByRefresh retrieves a token record by (refresh_token, client_id).
	GetTokenByRefresh(ctx context.Context, refreshToken, clientID string) (*Token, error)

	// RotateToken atomically replaces the token values and expiries of the
	// record identified by (refresh_token, client_id), preserving scope and
	// user. Returns the rotated record. A refresh-expired record is removed
	// and reported as ErrTokenExpired.
	//
	// SECURITY: This operation MUST be atomic. Concurrent rotations with
	// the same refresh token must have at most one succeed; the rest
	// observe ErrTokenNotFound.
	RotateToken(ctx context.Context, refreshToken, clientID string, rotation Rotation) (*Token, error)

	// DeleteTokenForClient removes the token record whose access OR refresh
	// value equals tokenValue, but only when it belongs to clientID.
	// Reports whether a record was deleted; absence is not an error
	// (RFC 7009 semantics).
	DeleteTokenForClient(ctx context.Context, tokenValue, clientID string) (bool, error)

	// DeleteToken removes a token record by access token value.
	DeleteToken(ctx context.Context, accessToken string) error
}

// ScopeStore defines the interface for the scope catalog.
type ScopeStore interface {
	// SaveScope creates or replaces a scope catalog entry.
	SaveScope(ctx context.Context, scope *Scope) error

	// GetScope retrieves a scope by name.
	GetScope(ctx context.Context, name string) (*Scope, error)

	// ListScopes lists the whole catalog.
	ListScopes(ctx context.Context) ([]*Scope, error)

	// DefaultScopes lists the names of scopes flagged is_default.
	DefaultScopes(ctx context.Context) ([]string, error)

	// DeleteScope removes a scope from the catalog.
	DeleteScope(ctx context.Context, name string) error
}

// BindingStore defines the interface for third-party identity bindings.
type BindingStore interface {
	// SaveBinding persists a provider identity binding.
	SaveBinding(ctx context.Context, binding *UserBinding) error

	// GetBinding retrieves the binding for (provider, subjectID).
	GetBinding(ctx context.Context, provider, subjectID string) (*UserBinding, error)
}
