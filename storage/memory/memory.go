// Package memory provides an in-memory implementation of all storage interfaces.
// It is suitable for development, testing, and single-instance deployments.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/skyhhjmk/wind-oauth/instrumentation"
	"github.com/skyhhjmk/wind-oauth/security"
	"github.com/skyhhjmk/wind-oauth/storage"
)

// Store is an in-memory implementation of all storage interfaces.
// It implements ClientStore, CodeStore, TokenStore, ScopeStore, and BindingStore.
type Store struct {
	mu sync.RWMutex

	// Client storage, keyed by public client_id
	clients map[string]*storage.Client

	// Authorization codes, keyed by code value
	codes map[string]*storage.AuthorizationCode

	// Token pairs: primary records keyed by access token value, with a
	// refresh-value index pointing at the access key
	tokens       map[string]*storage.Token
	refreshIndex map[string]string // refresh token -> access token

	// Scope catalog, keyed by scope name
	scopes map[string]*storage.Scope

	// Third-party identity bindings, keyed by provider + "\x00" + subject
	bindings map[string]*storage.UserBinding

	// Instrumentation
	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer
	meter           metric.Meter

	// Atomic counters for metrics (lock-free access during metric collection)
	clientsCountAtomic atomic.Int64
	codesCountAtomic   atomic.Int64
	tokensCountAtomic  atomic.Int64

	// Cleanup
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	logger          *slog.Logger
}

// Compile-time interface checks to ensure Store implements all storage interfaces
var (
	_ storage.ClientStore  = (*Store)(nil)
	_ storage.CodeStore    = (*Store)(nil)
	_ storage.TokenStore   = (*Store)(nil)
	_ storage.ScopeStore   = (*Store)(nil)
	_ storage.BindingStore = (*Store)(nil)
)

// New creates a new in-memory store with default cleanup interval (1 minute)
func New() *Store {
	return NewWithInterval(time.Minute)
}

// NewWithInterval creates a new in-memory store with custom cleanup interval.
// If cleanupInterval is 0 or negative, uses default of 1 minute.
func NewWithInterval(cleanupInterval time.Duration) *Store {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	s := &Store{
		clients:         make(map[string]*storage.Client),
		codes:           make(map[string]*storage.AuthorizationCode),
		tokens:          make(map[string]*storage.Token),
		refreshIndex:    make(map[string]string),
		scopes:          make(map[string]*storage.Scope),
		bindings:        make(map[string]*storage.UserBinding),
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
		logger:          slog.Default(),
	}

	// Start background cleanup
	go s.cleanupLoop()

	return s
}

// SetLogger sets a custom logger
func (s *Store) SetLogger(logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

// SetInstrumentation sets OpenTelemetry instrumentation for the store
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.mu.Lock()
	s.instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("storage")
		s.meter = inst.Meter("storage")
	}

	s.clientsCountAtomic.Store(int64(len(s.clients)))
	s.codesCountAtomic.Store(int64(len(s.codes)))
	s.tokensCountAtomic.Store(int64(len(s.tokens)))
	s.mu.Unlock()

	if inst != nil {
		err := inst.RegisterStorageSizeCallbacks(
			func() int64 { return s.clientsCountAtomic.Load() },
			func() int64 { return s.codesCountAtomic.Load() },
			func() int64 { return s.tokensCountAtomic.Load() },
		)
		if err != nil {
			s.logger.Warn("Failed to register storage size callbacks", "error", err)
		}
	}
}

// Stop gracefully stops the cleanup goroutine
func (s *Store) Stop() {
	close(s.stopCleanup)
}

// ============================================================
// ClientStore Implementation
// ============================================================

// SaveClient creates or replaces a client record
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) error {
	ctx, span := s.startStorageSpan(ctx, "save_client")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "save_client", err, startTime)
	}()

	if client == nil {
		err = fmt.Errorf("client cannot be nil")
		return err
	}
	if client.ClientID == "" {
		err = fmt.Errorf("client_id cannot be empty")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.clients[client.ClientID]
	cp := *client
	s.clients[client.ClientID] = &cp
	if !existed {
		s.clientsCountAtomic.Add(1)
	}

	return nil
}

// GetClient retrieves a client by its public client_id
func (s *Store) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	ctx, span := s.startStorageSpan(ctx, "get_client")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "get_client", err, startTime)
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	client, ok := s.clients[clientID]
	if !ok {
		err = storage.ErrClientNotFound
		return nil, err
	}
	cp := *client
	return &cp, nil
}

// UpdateClientSecretHash replaces only the stored secret hash
func (s *Store) UpdateClientSecretHash(ctx context.Context, clientID, hash string) error {
	ctx, span := s.startStorageSpan(ctx, "update_client_secret_hash")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "update_client_secret_hash", err, startTime)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	client, ok := s.clients[clientID]
	if !ok {
		err = storage.ErrClientNotFound
		return err
	}
	client.SecretHash = hash
	client.UpdatedAt = time.Now()
	return nil
}

// DeleteClient removes a client and cascades to its authorization codes and tokens
func (s *Store) DeleteClient(ctx context.Context, clientID string) error {
	ctx, span := s.startStorageSpan(ctx, "delete_client")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "delete_client", err, startTime)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[clientID]; !ok {
		err = storage.ErrClientNotFound
		return err
	}
	delete(s.clients, clientID)
	s.clientsCountAtomic.Add(-1)

	// Cascade: pending codes and issued tokens die with the client.
	for code, ac := range s.codes {
		if ac.ClientID == clientID {
			delete(s.codes, code)
			s.codesCountAtomic.Add(-1)
		}
	}
	for access, tok := range s.tokens {
		if tok.ClientID == clientID {
			s.removeTokenLocked(access, tok)
		}
	}

	return nil
}

// ListClients lists all registered clients
func (s *Store) ListClients(ctx context.Context) ([]*storage.Client, error) {
	ctx, span := s.startStorageSpan(ctx, "list_clients")
	defer span.End()

	startTime := time.Now()
	defer func() {
		s.recordStorageOperation(ctx, span, "list_clients", nil, startTime)
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*storage.Client, 0, len(s.clients))
	for _, client := range s.clients {
		cp := *client
		out = append(out, &cp)
	}
	return out, nil
}

// ============================================================
// CodeStore Implementation
// ============================================================

// SaveAuthorizationCode persists an issued authorization code
func (s *Store) SaveAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) error {
	ctx, span := s.startStorageSpan(ctx, "save_authorization_code")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "save_authorization_code", err, startTime)
	}()

	if code == nil {
		err = fmt.Errorf("authorization code cannot be nil")
		return err
	}
	if code.Code == "" {
		err = fmt.Errorf("code value cannot be empty")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.codes[code.Code]
	cp := *code
	s.codes[code.Code] = &cp
	if !existed {
		s.codesCountAtomic.Add(1)
	}

	return nil
}

// GetAuthorizationCode retrieves a live code by (code, client_id) without
// consuming it. Expired codes are removed and reported as ErrCodeExpired.
func (s *Store) GetAuthorizationCode(ctx context.Context, code, clientID string) (*storage.AuthorizationCode, error) {
	ctx, span := s.startStorageSpan(ctx, "get_authorization_code")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "get_authorization_code", err, startTime)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	ac, ok := s.codes[code]
	if !ok || ac.ClientID != clientID {
		err = storage.ErrCodeNotFound
		return nil, err
	}
	if security.IsExpired(ac.ExpiresAt) {
		delete(s.codes, code)
		s.codesCountAtomic.Add(-1)
		err = storage.ErrCodeExpired
		return nil, err
	}
	cp := *ac
	return &cp, nil
}

// ConsumeAuthorizationCode atomically retrieves and deletes a code by
// (code, client_id). Exactly one concurrent caller can succeed.
//
// SECURITY: The lookup and delete happen under a single write lock, so the
// absence of the record is the sole source of truth for single use.
func (s *Store) ConsumeAuthorizationCode(ctx context.Context, code, clientID string) (*storage.AuthorizationCode, error) {
	ctx, span := s.startStorageSpan(ctx, "consume_authorization_code")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "consume_authorization_code", err, startTime)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	ac, ok := s.codes[code]
	if !ok || ac.ClientID != clientID {
		err = storage.ErrCodeNotFound
		return nil, err
	}

	delete(s.codes, code)
	s.codesCountAtomic.Add(-1)

	if security.IsExpired(ac.ExpiresAt) {
		err = storage.ErrCodeExpired
		return nil, err
	}

	cp := *ac
	return &cp, nil
}

// DeleteAuthorizationCode removes a code unconditionally
func (s *Store) DeleteAuthorizationCode(ctx context.Context, code string) error {
	ctx, span := s.startStorageSpan(ctx, "delete_authorization_code")
	defer span.End()

	startTime := time.Now()
	defer func() {
		s.recordStorageOperation(ctx, span, "delete_authorization_code", nil, startTime)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.codes[code]; ok {
		delete(s.codes, code)
		s.codesCountAtomic.Add(-1)
	}
	return nil
}

// ============================================================
// TokenStore Implementation
// ============================================================

// SaveToken persists a token pair
func (s *Store) SaveToken(ctx context.Context, token *storage.Token) error {
	ctx, span := s.startStorageSpan(ctx, "save_token")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "save_token", err, startTime)
	}()

	if token == nil {
		err = fmt.Errorf("token cannot be nil")
		return err
	}
	if token.AccessToken == "" {
		err = fmt.Errorf("access token cannot be empty")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.tokens[token.AccessToken]
	cp := *token
	s.tokens[token.AccessToken] = &cp
	if token.RefreshToken != "" {
		s.refreshIndex[token.RefreshToken] = token.AccessToken
	}
	if !existed {
		s.tokensCountAtomic.Add(1)
	}

	return nil
}

// GetTokenByAccess retrieves a token record by access token value.
// A record whose refresh lifetime has passed is removed and reported as
// ErrTokenNotFound; access-level expiry is the caller's call to make.
func (s *Store) GetTokenByAccess(ctx context.Context, accessToken string) (*storage.Token, error) {
	ctx, span := s.startStorageSpan(ctx, "get_token_by_access")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "get_token_by_access", err, startTime)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	tok, ok := s.tokens[accessToken]
	if !ok {
		err = storage.ErrTokenNotFound
		return nil, err
	}
	if security.IsExpired(tok.RefreshExpiresAt) {
		s.removeTokenLocked(accessToken, tok)
		err = storage.ErrTokenNotFound
		return nil, err
	}
	cp := *tok
	return &cp, nil
}

// GetTokenByRefresh retrieves a token record by (refresh_token, client_id)
func (s *Store) GetTokenByRefresh(ctx context.Context, refreshToken, clientID string) (*storage.Token, error) {
	ctx, span := s.startStorageSpan(ctx, "get_token_by_refresh")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "get_token_by_refresh", err, startTime)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	tok, access, lookupErr := s.lookupByRefreshLocked(refreshToken, clientID)
	if lookupErr != nil {
		err = lookupErr
		return nil, err
	}
	if security.IsExpired(tok.RefreshExpiresAt) {
		s.removeTokenLocked(access, tok)
		err = storage.ErrTokenExpired
		return nil, err
	}
	cp := *tok
	return &cp, nil
}

// RotateToken atomically replaces the token values and expiries of the record
// identified by (refresh_token, client_id), preserving scope and user.
//
// SECURITY: The whole read-replace happens under one write lock; a concurrent
// rotation with the same refresh token observes ErrTokenNotFound because the
// refresh index entry is already gone.
func (s *Store) RotateToken(ctx context.Context, refreshToken, clientID string, rotation storage.Rotation) (*storage.Token, error) {
	ctx, span := s.startStorageSpan(ctx, "rotate_token")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "rotate_token", err, startTime)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	tok, access, lookupErr := s.lookupByRefreshLocked(refreshToken, clientID)
	if lookupErr != nil {
		err = lookupErr
		return nil, err
	}
	if security.IsExpired(tok.RefreshExpiresAt) {
		s.removeTokenLocked(access, tok)
		err = storage.ErrTokenExpired
		return nil, err
	}

	// Drop the old record and its index entries, then install the rotated
	// one. Old values become invalid the instant the lock is released.
	s.removeTokenLocked(access, tok)

	rotated := &storage.Token{
		AccessToken:      rotation.AccessToken,
		RefreshToken:     rotation.RefreshToken,
		ClientID:         tok.ClientID,
		UserID:           tok.UserID,
		Scope:            tok.Scope,
		ExpiresAt:        rotation.ExpiresAt,
		RefreshExpiresAt: rotation.RefreshExpiresAt,
		CreatedAt:        tok.CreatedAt,
		UpdatedAt:        time.Now(),
	}
	s.tokens[rotated.AccessToken] = rotated
	if rotated.RefreshToken != "" {
		s.refreshIndex[rotated.RefreshToken] = rotated.AccessToken
	}
	s.tokensCountAtomic.Add(1)

	cp := *rotated
	return &cp, nil
}

// DeleteTokenForClient removes the token record whose access OR refresh value
// equals tokenValue, but only when it belongs to clientID. Absence is not an
// error.
func (s *Store) DeleteTokenForClient(ctx context.Context, tokenValue, clientID string) (bool, error) {
	ctx, span := s.startStorageSpan(ctx, "delete_token_for_client")
	defer span.End()

	startTime := time.Now()
	defer func() {
		s.recordStorageOperation(ctx, span, "delete_token_for_client", nil, startTime)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Try as access token first, then through the refresh index.
	if tok, ok := s.tokens[tokenValue]; ok {
		if tok.ClientID != clientID {
			return false, nil
		}
		s.removeTokenLocked(tokenValue, tok)
		return true, nil
	}
	if access, ok := s.refreshIndex[tokenValue]; ok {
		tok, ok := s.tokens[access]
		if !ok || tok.ClientID != clientID {
			return false, nil
		}
		s.removeTokenLocked(access, tok)
		return true, nil
	}
	return false, nil
}

// DeleteToken removes a token record by access token value
func (s *Store) DeleteToken(ctx context.Context, accessToken string) error {
	ctx, span := s.startStorageSpan(ctx, "delete_token")
	defer span.End()

	startTime := time.Now()
	defer func() {
		s.recordStorageOperation(ctx, span, "delete_token", nil, startTime)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	if tok, ok := s.tokens[accessToken]; ok {
		s.removeTokenLocked(accessToken, tok)
	}
	return nil
}

// lookupByRefreshLocked resolves a refresh token owned by clientID.
// Caller must hold the lock.
func (s *Store) lookupByRefreshLocked(refreshToken, clientID string) (*storage.Token, string, error) {
	access, ok := s.refreshIndex[refreshToken]
	if !ok {
		return nil, "", storage.ErrTokenNotFound
	}
	tok, ok := s.tokens[access]
	if !ok || tok.ClientID != clientID {
		return nil, "", storage.ErrTokenNotFound
	}
	return tok, access, nil
}

// removeTokenLocked drops a token record and its refresh index entry.
// Caller must hold the lock.
func (s *Store) removeTokenLocked(accessToken string, tok *storage.Token) {
	delete(s.tokens, accessToken)
	if tok.RefreshToken != "" {
		delete(s.refreshIndex, tok.RefreshToken)
	}
	s.tokensCountAtomic.Add(-1)
}

// ============================================================
// ScopeStore Implementation
// ============================================================

// SaveScope creates or replaces a scope catalog entry
func (s *Store) SaveScope(ctx context.Context, scope *storage.Scope) error {
	ctx, span := s.startStorageSpan(ctx, "save_scope")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "save_scope", err, startTime)
	}()

	if scope == nil || scope.Name == "" {
		err = fmt.Errorf("scope name cannot be empty")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *scope
	s.scopes[scope.Name] = &cp
	return nil
}

// GetScope retrieves a scope by name
func (s *Store) GetScope(ctx context.Context, name string) (*storage.Scope, error) {
	ctx, span := s.startStorageSpan(ctx, "get_scope")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "get_scope", err, startTime)
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	scope, ok := s.scopes[name]
	if !ok {
		err = storage.ErrScopeNotFound
		return nil, err
	}
	cp := *scope
	return &cp, nil
}

// ListScopes lists the whole catalog
func (s *Store) ListScopes(ctx context.Context) ([]*storage.Scope, error) {
	ctx, span := s.startStorageSpan(ctx, "list_scopes")
	defer span.End()

	startTime := time.Now()
	defer func() {
		s.recordStorageOperation(ctx, span, "list_scopes", nil, startTime)
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*storage.Scope, 0, len(s.scopes))
	for _, scope := range s.scopes {
		cp := *scope
		out = append(out, &cp)
	}
	return out, nil
}

// DefaultScopes lists the names of scopes flagged is_default
func (s *Store) DefaultScopes(ctx context.Context) ([]string, error) {
	ctx, span := s.startStorageSpan(ctx, "default_scopes")
	defer span.End()

	startTime := time.Now()
	defer func() {
		s.recordStorageOperation(ctx, span, "default_scopes", nil, startTime)
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for _, scope := range s.scopes {
		if scope.IsDefault {
			out = append(out, scope.Name)
		}
	}
	return out, nil
}

// DeleteScope removes a scope from the catalog
func (s *Store) DeleteScope(ctx context.Context, name string) error {
	ctx, span := s.startStorageSpan(ctx, "delete_scope")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "delete_scope", err, startTime)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.scopes[name]; !ok {
		err = storage.ErrScopeNotFound
		return err
	}
	delete(s.scopes, name)
	return nil
}

// ============================================================
// BindingStore Implementation
// ============================================================

// SaveBinding persists a provider identity binding
func (s *Store) SaveBinding(ctx context.Context, binding *storage.UserBinding) error {
	ctx, span := s.startStorageSpan(ctx, "save_binding")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "save_binding", err, startTime)
	}()

	if binding == nil || binding.Provider == "" || binding.SubjectID == "" {
		err = fmt.Errorf("binding provider and subject cannot be empty")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *binding
	s.bindings[bindingKey(binding.Provider, binding.SubjectID)] = &cp
	return nil
}

// GetBinding retrieves the binding for (provider, subjectID)
func (s *Store) GetBinding(ctx context.Context, provider, subjectID string) (*storage.UserBinding, error) {
	ctx, span := s.startStorageSpan(ctx, "get_binding")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "get_binding", err, startTime)
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	binding, ok := s.bindings[bindingKey(provider, subjectID)]
	if !ok {
		err = storage.ErrBindingNotFound
		return nil, err
	}
	cp := *binding
	return &cp, nil
}

func bindingKey(provider, subjectID string) string {
	return provider + "\x00" + subjectID
}

// ============================================================
// Cleanup
// ============================================================

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

// cleanup removes expired codes and refresh-expired token records.
// Expiry is also enforced lazily at read time; this pass just bounds memory.
func (s *Store) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	removedCodes := 0
	for code, ac := range s.codes {
		if security.IsExpired(ac.ExpiresAt) {
			delete(s.codes, code)
			s.codesCountAtomic.Add(-1)
			removedCodes++
		}
	}

	removedTokens := 0
	for access, tok := range s.tokens {
		if security.IsExpired(tok.RefreshExpiresAt) {
			s.removeTokenLocked(access, tok)
			removedTokens++
		}
	}

	if removedCodes > 0 || removedTokens > 0 {
		s.logger.Debug("Storage cleanup completed",
			"expired_codes", removedCodes,
			"expired_tokens", removedTokens,
			"remaining_codes", len(s.codes),
			"remaining_tokens", len(s.tokens))
	}
}

// ============================================================
// Instrumentation helpers
// ============================================================

// startStorageSpan starts a new span for a storage operation
func (s *Store) startStorageSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	ctx, span := s.tracer.Start(ctx, fmt.Sprintf("storage.%s", operation),
		trace.WithAttributes(
			attribute.String("operation", operation),
		))

	return ctx, span
}

// recordStorageOperation records metrics for a storage operation and sets span status
func (s *Store) recordStorageOperation(ctx context.Context, span trace.Span, operation string, err error, startTime time.Time) {
	if s.instrumentation == nil {
		return
	}

	durationMs := float64(time.Since(startTime).Milliseconds())
	result := "success"
	if err != nil {
		result = "error"
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	} else if span != nil {
		span.SetStatus(codes.Ok, "")
	}

	s.instrumentation.Metrics().RecordStorageOperation(ctx, operation, result, durationMs)
}
