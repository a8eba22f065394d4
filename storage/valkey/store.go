package valkey

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	valkeygo "github.com/valkey-io/valkey-go"

	"github.com/skyhhjmk/wind-oauth/security"
	"github.com/skyhhjmk/wind-oauth/storage"
)

const (
	// DefaultKeyPrefix is the default prefix for all Valkey keys
	DefaultKeyPrefix = "oauth:"

	// connectionVerifyTimeout is the timeout for initial connection verification
	connectionVerifyTimeout = 5 * time.Second

	// MaxRecordSize is the maximum size of a serialized grant record (64KB).
	// This prevents memory exhaustion from oversized payloads.
	MaxRecordSize = 64 * 1024
)

var errInputTooLarge = fmt.Errorf("input exceeds maximum allowed size")

// Config holds configuration for the Valkey storage backend.
type Config struct {
	// Address is the Valkey server address (required), e.g., "localhost:6379"
	Address string

	// Password is the optional password for Valkey authentication
	Password string

	// DB is the optional database number (default 0)
	DB int

	// KeyPrefix is the prefix for all keys (default "oauth:")
	KeyPrefix string

	// TLS is the optional TLS configuration for encrypted connections
	TLS *tls.Config

	// Logger is the optional structured logger (default: slog.Default())
	Logger *slog.Logger
}

// Store is a Valkey-backed implementation of all storage interfaces.
// It implements ClientStore, CodeStore, TokenStore, ScopeStore, and BindingStore.
type Store struct {
	client valkeygo.Client
	prefix string
	logger *slog.Logger

	// encryptor seals grant record payloads at rest.
	// Access must be synchronized via encryptorMu.
	encryptor   *security.Encryptor
	encryptorMu sync.RWMutex
}

// Compile-time interface checks to ensure Store implements all storage interfaces
var (
	_ storage.ClientStore  = (*Store)(nil)
	_ storage.CodeStore    = (*Store)(nil)
	_ storage.TokenStore   = (*Store)(nil)
	_ storage.ScopeStore   = (*Store)(nil)
	_ storage.BindingStore = (*Store)(nil)
)

// New creates a new Valkey-backed storage instance.
// Returns an error if the connection cannot be established.
func New(cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("valkey address is required")
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := valkeygo.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
	}

	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	if cfg.TLS != nil {
		opts.TLSConfig = cfg.TLS
	}

	client, err := valkeygo.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectionVerifyTimeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	logger.Info("Connected to Valkey storage",
		"address", cfg.Address,
		"db", cfg.DB,
		"prefix", prefix)

	return &Store{
		client: client,
		prefix: prefix,
		logger: logger,
	}, nil
}

// Close closes the Valkey client connection.
func (s *Store) Close() {
	s.client.Close()
	s.logger.Info("Valkey storage connection closed")
}

// SetLogger sets a custom logger for the store.
func (s *Store) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// SetEncryptor sets the grant record encryptor for encryption at rest.
// When set, serialized code and token records are sealed with AES-256-GCM
// before storing in Valkey and opened when retrieved.
func (s *Store) SetEncryptor(enc *security.Encryptor) {
	s.encryptorMu.Lock()
	defer s.encryptorMu.Unlock()
	s.encryptor = enc
	if enc != nil && enc.IsEnabled() {
		s.logger.Info("Grant record encryption at rest enabled for Valkey storage")
	}
}

// getEncryptor returns the current encryptor (thread-safe)
func (s *Store) getEncryptor() *security.Encryptor {
	s.encryptorMu.RLock()
	defer s.encryptorMu.RUnlock()
	return s.encryptor
}

// ============================================================
// Envelopes
// ============================================================

// envelope wraps a (possibly sealed) serialized grant record. The fields
// outside the payload stay plaintext so the Lua scripts can enforce client
// scoping and expiry without decrypting.
type envelope struct {
	ClientID  string `json:"client_id"`
	Refresh   string `json:"refresh,omitempty"`
	ExpiresAt int64  `json:"expires_at"`
	Payload   []byte `json:"payload"`
}

// sealRecord serializes and optionally encrypts a grant record.
func (s *Store) sealRecord(record any) ([]byte, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}
	if len(data) > MaxRecordSize {
		return nil, errInputTooLarge
	}

	enc := s.getEncryptor()
	if enc == nil || !enc.IsEnabled() {
		return data, nil
	}
	sealed, err := enc.Seal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to seal record: %w", err)
	}
	return sealed, nil
}

// openRecord decrypts (if needed) and deserializes a grant record payload.
func (s *Store) openRecord(payload []byte, record any) error {
	enc := s.getEncryptor()
	if enc != nil && enc.IsEnabled() {
		opened, err := enc.Open(payload)
		if err != nil {
			return fmt.Errorf("failed to open record: %w", err)
		}
		payload = opened
	}
	if err := json.Unmarshal(payload, record); err != nil {
		return fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return nil
}

// ============================================================
// Key Helpers
// ============================================================

// clientKey returns the key for a client: {prefix}client:{clientID}
func (s *Store) clientKey(clientID string) string {
	return fmt.Sprintf("%sclient:%s", s.prefix, clientID)
}

// clientsSetKey returns the key for the registered client-ID set
func (s *Store) clientsSetKey() string {
	return s.prefix + "clients"
}

// codeKey returns the key for an authorization code: {prefix}code:{code}
func (s *Store) codeKey(code string) string {
	return fmt.Sprintf("%scode:%s", s.prefix, code)
}

// codeIndexKey returns the per-client pending-code set: {prefix}idx:codes:{clientID}
func (s *Store) codeIndexKey(clientID string) string {
	return fmt.Sprintf("%sidx:codes:%s", s.prefix, clientID)
}

// accessKey returns the key for a token record: {prefix}access:{token}
func (s *Store) accessKey(accessToken string) string {
	return fmt.Sprintf("%saccess:%s", s.prefix, accessToken)
}

// refreshKey returns the refresh index key: {prefix}refresh:{token}
func (s *Store) refreshKey(refreshToken string) string {
	return fmt.Sprintf("%srefresh:%s", s.prefix, refreshToken)
}

// tokenIndexKey returns the per-client token set: {prefix}idx:tokens:{clientID}
func (s *Store) tokenIndexKey(clientID string) string {
	return fmt.Sprintf("%sidx:tokens:%s", s.prefix, clientID)
}

// scopeKey returns the key for a scope: {prefix}scope:{name}
func (s *Store) scopeKey(name string) string {
	return fmt.Sprintf("%sscope:%s", s.prefix, name)
}

// scopesSetKey returns the key for the scope-name set
func (s *Store) scopesSetKey() string {
	return s.prefix + "scopes"
}

// bindingKey returns the key for an identity binding: {prefix}binding:{provider}:{subject}
func (s *Store) bindingKey(provider, subjectID string) string {
	return fmt.Sprintf("%sbinding:%s:%s", s.prefix, provider, subjectID)
}

// ============================================================
// Lua scripts
// ============================================================

// luaScriptConsumeCode atomically retrieves and deletes an authorization
// code scoped to a client.
//
// SECURITY: This operation MUST be atomic - only ONE concurrent request can
// succeed. A client mismatch leaves the record untouched so the rightful
// owner can still redeem it.
//
// KEYS[1] = code key
// KEYS[2] = per-client code index set
// ARGV[1] = client_id
// ARGV[2] = effective now in Unix seconds (clock-skew grace already applied)
// ARGV[3] = code value (for index removal)
//
// Returns the stored envelope JSON on success, "NOT_FOUND" when the code
// does not exist or belongs to another client, "EXPIRED" when the code
// passed its expiry (the record is deleted either way once matched).
const luaScriptConsumeCode = `
local data = redis.call('GET', KEYS[1])
if not data then
    return 'NOT_FOUND'
end
local env = cjson.decode(data)
if env.client_id ~= ARGV[1] then
    return 'NOT_FOUND'
end
redis.call('DEL', KEYS[1])
redis.call('SREM', KEYS[2], ARGV[3])
if tonumber(ARGV[2]) > env.expires_at then
    return 'EXPIRED'
end
return data
`

// luaScriptConsumeRefresh atomically resolves a refresh token to its record
// and deletes both the refresh index entry and the record. This is the
// consume half of refresh-token rotation; the caller writes the rotated
// record afterwards.
//
// SECURITY: Only ONE concurrent rotation with the same refresh token can
// succeed; the rest observe NOT_FOUND, which may indicate token theft.
//
// KEYS[1] = refresh index key
// ARGV[1] = key prefix (token keys are derived; requires non-clustered deployment)
// ARGV[2] = client_id
// ARGV[3] = effective now in Unix seconds (clock-skew grace already applied)
//
// Returns the stored envelope JSON on success, "NOT_FOUND" or "EXPIRED".
const luaScriptConsumeRefresh = `
local access = redis.call('GET', KEYS[1])
if not access then
    return 'NOT_FOUND'
end
local accessKey = ARGV[1] .. 'access:' .. access
local data = redis.call('GET', accessKey)
if not data then
    redis.call('DEL', KEYS[1])
    return 'NOT_FOUND'
end
local env = cjson.decode(data)
if env.client_id ~= ARGV[2] then
    return 'NOT_FOUND'
end
redis.call('DEL', KEYS[1])
redis.call('DEL', accessKey)
redis.call('SREM', ARGV[1] .. 'idx:tokens:' .. env.client_id, access)
if tonumber(ARGV[3]) > env.expires_at then
    return 'EXPIRED'
end
return data
`

// luaScriptDeleteTokenForClient removes the token record matching a value
// that may be either an access or a refresh token, but only when it belongs
// to the given client. Returns 1 when a record was deleted, 0 otherwise.
//
// KEYS[1] = access key candidate
// KEYS[2] = refresh index key candidate
// ARGV[1] = key prefix
// ARGV[2] = client_id
// ARGV[3] = token value
const luaScriptDeleteTokenForClient = `
local data = redis.call('GET', KEYS[1])
if data then
    local env = cjson.decode(data)
    if env.client_id ~= ARGV[2] then
        return 0
    end
    redis.call('DEL', KEYS[1])
    if env.refresh and env.refresh ~= '' then
        redis.call('DEL', ARGV[1] .. 'refresh:' .. env.refresh)
    end
    redis.call('SREM', ARGV[1] .. 'idx:tokens:' .. env.client_id, ARGV[3])
    return 1
end
local access = redis.call('GET', KEYS[2])
if not access then
    return 0
end
local accessKey = ARGV[1] .. 'access:' .. access
local d2 = redis.call('GET', accessKey)
if not d2 then
    redis.call('DEL', KEYS[2])
    return 0
end
local env2 = cjson.decode(d2)
if env2.client_id ~= ARGV[2] then
    return 0
end
redis.call('DEL', KEYS[2])
redis.call('DEL', accessKey)
redis.call('SREM', ARGV[1] .. 'idx:tokens:' .. env2.client_id, access)
return 1
`

// ============================================================
// Shared helpers
// ============================================================

// isNilError checks if the error indicates a nil/not-found result from Valkey.
func isNilError(err error) bool {
	return valkeygo.IsValkeyNil(err)
}

// effectiveNow returns the Unix timestamp used for expiry comparisons in Lua,
// with the clock-skew grace period already applied.
func effectiveNow() int64 {
	return time.Now().Add(-security.DefaultClockSkewGracePeriod).Unix()
}

// recordTTL calculates the key TTL for a record expiring at expiresAt.
// The grace period is added so a just-expired record can still be observed
// and reported as expired rather than silently missing.
func recordTTL(expiresAt time.Time) time.Duration {
	ttl := time.Until(expiresAt) + security.DefaultClockSkewGracePeriod
	if ttl <= 0 {
		return 0
	}
	return ttl
}

// getJSON fetches a key and unmarshals plain JSON into out.
// Returns notFoundErr on a nil reply.
func (s *Store) getJSON(ctx context.Context, key string, out any, notFoundErr error) error {
	data, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).ToString()
	if err != nil {
		if isNilError(err) {
			return notFoundErr
		}
		return fmt.Errorf("failed to get data: %w", err)
	}
	if err := json.Unmarshal([]byte(data), out); err != nil {
		return fmt.Errorf("failed to unmarshal data: %w", err)
	}
	return nil
}
