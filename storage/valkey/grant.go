package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/skyhhjmk/wind-oauth/internal/util"
	"github.com/skyhhjmk/wind-oauth/security"
	"github.com/skyhhjmk/wind-oauth/storage"
)

// tokenIDLogLength is the number of characters to include when logging token IDs
const tokenIDLogLength = 8

// ============================================================
// CodeStore Implementation
// ============================================================

// SaveAuthorizationCode persists an issued authorization code with a TTL
// covering its expiry plus the clock-skew grace period.
func (s *Store) SaveAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) error {
	if code == nil {
		return fmt.Errorf("authorization code cannot be nil")
	}
	if code.Code == "" {
		return fmt.Errorf("code value cannot be empty")
	}

	payload, err := s.sealRecord(code)
	if err != nil {
		return err
	}
	env := envelope{
		ClientID:  code.ClientID,
		ExpiresAt: code.ExpiresAt.Unix(),
		Payload:   payload,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal code envelope: %w", err)
	}

	ttl := recordTTL(code.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("authorization code already expired")
	}

	if err := s.client.Do(ctx, s.client.B().Set().Key(s.codeKey(code.Code)).Value(string(data)).Ex(ttl).Build()).Error(); err != nil {
		return fmt.Errorf("failed to save authorization code: %w", err)
	}
	if err := s.client.Do(ctx, s.client.B().Sadd().Key(s.codeIndexKey(code.ClientID)).Member(code.Code).Build()).Error(); err != nil {
		return fmt.Errorf("failed to index authorization code: %w", err)
	}

	s.logger.Debug("Saved authorization code",
		"code", util.SafeTruncate(code.Code, tokenIDLogLength),
		"client_id", code.ClientID)
	return nil
}

// GetAuthorizationCode retrieves a live code by (code, client_id) without
// consuming it.
func (s *Store) GetAuthorizationCode(ctx context.Context, code, clientID string) (*storage.AuthorizationCode, error) {
	var env envelope
	if err := s.getJSON(ctx, s.codeKey(code), &env, storage.ErrCodeNotFound); err != nil {
		return nil, err
	}
	if env.ClientID != clientID {
		return nil, storage.ErrCodeNotFound
	}

	var record storage.AuthorizationCode
	if err := s.openRecord(env.Payload, &record); err != nil {
		return nil, err
	}
	if security.IsExpired(record.ExpiresAt) {
		_ = s.DeleteAuthorizationCode(ctx, code)
		return nil, storage.ErrCodeExpired
	}
	return &record, nil
}

// ConsumeAuthorizationCode atomically retrieves and deletes a code by
// (code, client_id).
//
// SECURITY: This operation is atomic via Lua script - only ONE concurrent
// request can succeed. The absence of the record is the sole source of truth
// for single-use enforcement.
func (s *Store) ConsumeAuthorizationCode(ctx context.Context, code, clientID string) (*storage.AuthorizationCode, error) {
	result, err := s.client.Do(ctx,
		s.client.B().Eval().Script(luaScriptConsumeCode).
			Numkeys(2).
			Key(s.codeKey(code), s.codeIndexKey(clientID)).
			Arg(clientID).
			Arg(strconv.FormatInt(effectiveNow(), 10)).
			Arg(code).
			Build(),
	).ToString()
	if err != nil {
		return nil, fmt.Errorf("failed to execute atomic code consumption: %w", err)
	}

	switch result {
	case "NOT_FOUND":
		return nil, storage.ErrCodeNotFound
	case "EXPIRED":
		return nil, storage.ErrCodeExpired
	}

	var env envelope
	if err := json.Unmarshal([]byte(result), &env); err != nil {
		return nil, fmt.Errorf("failed to parse consumed code envelope: %w", err)
	}
	var record storage.AuthorizationCode
	if err := s.openRecord(env.Payload, &record); err != nil {
		return nil, err
	}

	s.logger.Debug("Atomically consumed authorization code",
		"code", util.SafeTruncate(code, tokenIDLogLength),
		"client_id", clientID)
	return &record, nil
}

// DeleteAuthorizationCode removes a code unconditionally
func (s *Store) DeleteAuthorizationCode(ctx context.Context, code string) error {
	// Fetch first for index removal; a racing delete is fine.
	var env envelope
	if err := s.getJSON(ctx, s.codeKey(code), &env, storage.ErrCodeNotFound); err != nil {
		if err == storage.ErrCodeNotFound {
			return nil
		}
		return err
	}

	if err := s.client.Do(ctx, s.client.B().Del().Key(s.codeKey(code)).Build()).Error(); err != nil {
		return fmt.Errorf("failed to delete authorization code: %w", err)
	}
	if err := s.client.Do(ctx, s.client.B().Srem().Key(s.codeIndexKey(env.ClientID)).Member(code).Build()).Error(); err != nil {
		return fmt.Errorf("failed to unindex authorization code: %w", err)
	}
	return nil
}

// ============================================================
// TokenStore Implementation
// ============================================================

// SaveToken persists a token pair. The record and refresh index live until
// the refresh lifetime passes; access-level expiry is enforced by callers.
func (s *Store) SaveToken(ctx context.Context, token *storage.Token) error {
	if token == nil {
		return fmt.Errorf("token cannot be nil")
	}
	if token.AccessToken == "" {
		return fmt.Errorf("access token cannot be empty")
	}

	payload, err := s.sealRecord(token)
	if err != nil {
		return err
	}
	env := envelope{
		ClientID:  token.ClientID,
		Refresh:   token.RefreshToken,
		ExpiresAt: token.RefreshExpiresAt.Unix(),
		Payload:   payload,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal token envelope: %w", err)
	}

	ttl := recordTTL(token.RefreshExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("token already expired")
	}

	if err := s.client.Do(ctx, s.client.B().Set().Key(s.accessKey(token.AccessToken)).Value(string(data)).Ex(ttl).Build()).Error(); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	if token.RefreshToken != "" {
		if err := s.client.Do(ctx, s.client.B().Set().Key(s.refreshKey(token.RefreshToken)).Value(token.AccessToken).Ex(ttl).Build()).Error(); err != nil {
			return fmt.Errorf("failed to save refresh index: %w", err)
		}
	}
	if err := s.client.Do(ctx, s.client.B().Sadd().Key(s.tokenIndexKey(token.ClientID)).Member(token.AccessToken).Build()).Error(); err != nil {
		return fmt.Errorf("failed to index token: %w", err)
	}

	s.logger.Debug("Saved token",
		"access", util.SafeTruncate(token.AccessToken, tokenIDLogLength),
		"client_id", token.ClientID)
	return nil
}

// GetTokenByAccess retrieves a token record by access token value
func (s *Store) GetTokenByAccess(ctx context.Context, accessToken string) (*storage.Token, error) {
	var env envelope
	if err := s.getJSON(ctx, s.accessKey(accessToken), &env, storage.ErrTokenNotFound); err != nil {
		return nil, err
	}

	var record storage.Token
	if err := s.openRecord(env.Payload, &record); err != nil {
		return nil, err
	}
	if security.IsExpired(record.RefreshExpiresAt) {
		_ = s.DeleteToken(ctx, accessToken)
		return nil, storage.ErrTokenNotFound
	}
	return &record, nil
}

// GetTokenByRefresh retrieves a token record by (refresh_token, client_id)
func (s *Store) GetTokenByRefresh(ctx context.Context, refreshToken, clientID string) (*storage.Token, error) {
	access, err := s.client.Do(ctx, s.client.B().Get().Key(s.refreshKey(refreshToken)).Build()).ToString()
	if err != nil {
		if isNilError(err) {
			return nil, storage.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to resolve refresh token: %w", err)
	}

	record, err := s.GetTokenByAccess(ctx, access)
	if err != nil {
		return nil, err
	}
	if record.ClientID != clientID {
		return nil, storage.ErrTokenNotFound
	}
	if security.IsExpired(record.RefreshExpiresAt) {
		return nil, storage.ErrTokenExpired
	}
	return record, nil
}

// RotateToken atomically replaces the token values and expiries of the
// record identified by (refresh_token, client_id), preserving scope and user.
//
// SECURITY: The consume half is atomic via Lua script, so at most one
// concurrent rotation with the same refresh token succeeds; the rest observe
// ErrTokenNotFound. The rotated record is then written by this caller.
func (s *Store) RotateToken(ctx context.Context, refreshToken, clientID string, rotation storage.Rotation) (*storage.Token, error) {
	result, err := s.client.Do(ctx,
		s.client.B().Eval().Script(luaScriptConsumeRefresh).
			Numkeys(1).
			Key(s.refreshKey(refreshToken)).
			Arg(s.prefix).
			Arg(clientID).
			Arg(strconv.FormatInt(effectiveNow(), 10)).
			Build(),
	).ToString()
	if err != nil {
		return nil, fmt.Errorf("failed to execute atomic refresh consumption: %w", err)
	}

	switch result {
	case "NOT_FOUND":
		return nil, storage.ErrTokenNotFound
	case "EXPIRED":
		return nil, storage.ErrTokenExpired
	}

	var env envelope
	if err := json.Unmarshal([]byte(result), &env); err != nil {
		return nil, fmt.Errorf("failed to parse consumed token envelope: %w", err)
	}
	var old storage.Token
	if err := s.openRecord(env.Payload, &old); err != nil {
		return nil, err
	}

	rotated := &storage.Token{
		AccessToken:      rotation.AccessToken,
		RefreshToken:     rotation.RefreshToken,
		ClientID:         old.ClientID,
		UserID:           old.UserID,
		Scope:            old.Scope,
		ExpiresAt:        rotation.ExpiresAt,
		RefreshExpiresAt: rotation.RefreshExpiresAt,
		CreatedAt:        old.CreatedAt,
		UpdatedAt:        time.Now(),
	}
	if err := s.SaveToken(ctx, rotated); err != nil {
		return nil, fmt.Errorf("failed to save rotated token: %w", err)
	}

	s.logger.Debug("Rotated token",
		"old_refresh", util.SafeTruncate(refreshToken, tokenIDLogLength),
		"client_id", clientID)
	return rotated, nil
}

// DeleteTokenForClient removes the token record whose access OR refresh
// value equals tokenValue, but only when it belongs to clientID.
func (s *Store) DeleteTokenForClient(ctx context.Context, tokenValue, clientID string) (bool, error) {
	deleted, err := s.client.Do(ctx,
		s.client.B().Eval().Script(luaScriptDeleteTokenForClient).
			Numkeys(2).
			Key(s.accessKey(tokenValue), s.refreshKey(tokenValue)).
			Arg(s.prefix).
			Arg(clientID).
			Arg(tokenValue).
			Build(),
	).AsInt64()
	if err != nil {
		return false, fmt.Errorf("failed to execute scoped token deletion: %w", err)
	}
	return deleted == 1, nil
}

// DeleteToken removes a token record by access token value
func (s *Store) DeleteToken(ctx context.Context, accessToken string) error {
	var env envelope
	if err := s.getJSON(ctx, s.accessKey(accessToken), &env, storage.ErrTokenNotFound); err != nil {
		if err == storage.ErrTokenNotFound {
			return nil
		}
		return err
	}

	if err := s.client.Do(ctx, s.client.B().Del().Key(s.accessKey(accessToken)).Build()).Error(); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	if env.Refresh != "" {
		if err := s.client.Do(ctx, s.client.B().Del().Key(s.refreshKey(env.Refresh)).Build()).Error(); err != nil {
			return fmt.Errorf("failed to delete refresh index: %w", err)
		}
	}
	if err := s.client.Do(ctx, s.client.B().Srem().Key(s.tokenIndexKey(env.ClientID)).Member(accessToken).Build()).Error(); err != nil {
		return fmt.Errorf("failed to unindex token: %w", err)
	}
	return nil
}
