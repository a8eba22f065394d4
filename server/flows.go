package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/skyhhjmk/wind-oauth/directory"
	"github.com/skyhhjmk/wind-oauth/instrumentation"
	"github.com/skyhhjmk/wind-oauth/internal/util"
	"github.com/skyhhjmk/wind-oauth/security"
	"github.com/skyhhjmk/wind-oauth/storage"
)

// UserContext is the resolved identity behind a valid access token.
type UserContext struct {
	UserID   int64
	Username string
	Email    string
	Name     string
	Scope    []string
}

// IntrospectionResult describes a token for RFC 7662 responses. When Active
// is false every other field is zero; inactive tokens reveal nothing.
type IntrospectionResult struct {
	Active    bool
	Scope     []string
	ClientID  string
	TokenType string
	Exp       int64
	Sub       int64
}

func (s *Server) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, nil
	}
	return s.tracer.Start(ctx, name)
}

func endSpan(span trace.Span) {
	if span != nil {
		span.End()
	}
}

// IssueAuthorizationCode mints a single-use code binding the user's approval
// to the client, the exact redirect URI presented, and the granted scope. The
// caller must have validated the redirect URI and resolved scopes first.
func (s *Server) IssueAuthorizationCode(ctx context.Context, client *storage.Client, userID int64, redirectURI string, scope []string, ip string) (string, error) {
	ctx, span := s.startSpan(ctx, "oauth.issue_code")
	defer endSpan(span)
	instrumentation.AddGrantAttributes(span, client.ClientID, userID, util.JoinScopes(scope))

	code, err := NewAuthorizationCode()
	if err != nil {
		instrumentation.RecordError(span, err)
		return "", fmt.Errorf("%w: code generation: %v", ErrServerError, err)
	}

	now := time.Now()
	record := &storage.AuthorizationCode{
		Code:        code,
		ClientID:    client.ClientID,
		UserID:      userID,
		RedirectURI: redirectURI,
		Scope:       scope,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.Config.codeTTL()),
	}
	if err := s.codes.SaveAuthorizationCode(ctx, record); err != nil {
		instrumentation.RecordError(span, err)
		return "", fmt.Errorf("%w: code save: %v", ErrServerError, err)
	}

	s.Logger.Info("Issued authorization code",
		"client_id", client.ClientID,
		"code", util.SafeTruncate(code, 8),
		"scope", util.JoinScopes(scope))
	if s.Auditor != nil {
		s.Auditor.LogCodeIssued(userID, client.ClientID, ip, util.JoinScopes(scope))
	}
	if m := s.metrics(); m != nil {
		m.RecordCodeIssued(ctx, client.ClientID)
	}
	instrumentation.SetSpanSuccess(span)

	return code, nil
}

// ExchangeAuthorizationCode trades a code for a token pair.
//
// The code is consumed atomically before any other validation: a second
// exchange, or an exchange with a mismatched redirect URI, always leaves the
// code dead. Consuming first is what makes double-exchange a guaranteed
// failure instead of a race.
func (s *Server) ExchangeAuthorizationCode(ctx context.Context, client *storage.Client, code, redirectURI, ip string) (*storage.Token, error) {
	ctx, span := s.startSpan(ctx, "oauth.exchange_code")
	defer endSpan(span)

	if code == "" {
		return nil, fmt.Errorf("%w: missing code", ErrInvalidRequest)
	}
	if !client.AllowsGrantType("authorization_code") {
		return nil, fmt.Errorf("%w: grant type not allowed for client", ErrInvalidGrant)
	}

	record, err := s.codes.ConsumeAuthorizationCode(ctx, code, client.ClientID)
	if err != nil {
		if errors.Is(err, storage.ErrCodeNotFound) || errors.Is(err, storage.ErrCodeExpired) {
			s.Logger.Warn("Authorization code exchange failed",
				"client_id", client.ClientID,
				"code", util.SafeTruncate(code, 8),
				"error", err)
			if m := s.metrics(); m != nil {
				m.RecordCodeExchange(ctx, client.ClientID, false)
				if errors.Is(err, storage.ErrCodeNotFound) {
					m.RecordCodeReuseDetected(ctx)
				}
			}
			instrumentation.SetSpanError(span, "invalid code")
			return nil, fmt.Errorf("%w: invalid authorization code", ErrInvalidGrant)
		}
		instrumentation.RecordError(span, err)
		return nil, fmt.Errorf("%w: code consume: %v", ErrServerError, err)
	}

	// The code is already burned at this point. A redirect mismatch fails
	// the exchange and the code stays unusable.
	if record.RedirectURI != redirectURI {
		s.Logger.Warn("Redirect URI mismatch on code exchange",
			"client_id", client.ClientID,
			"code", util.SafeTruncate(code, 8))
		if s.auditAllowed(ip) && s.Auditor != nil {
			s.Auditor.LogAuthFailure(client.ClientID, ip, "redirect_uri_mismatch")
		}
		if m := s.metrics(); m != nil {
			m.RecordCodeExchange(ctx, client.ClientID, false)
		}
		instrumentation.SetSpanError(span, "redirect_uri mismatch")
		return nil, fmt.Errorf("%w: redirect_uri mismatch", ErrInvalidGrant)
	}

	token, err := s.issueTokenPair(ctx, client.ClientID, record.UserID, record.Scope)
	if err != nil {
		instrumentation.RecordError(span, err)
		return nil, err
	}

	s.Logger.Info("Exchanged authorization code",
		"client_id", client.ClientID,
		"code", util.SafeTruncate(code, 8))
	if s.Auditor != nil {
		s.Auditor.LogTokenIssued(record.UserID, client.ClientID, ip, util.JoinScopes(record.Scope))
	}
	if m := s.metrics(); m != nil {
		m.RecordCodeExchange(ctx, client.ClientID, true)
	}
	instrumentation.AddGrantAttributes(span, client.ClientID, record.UserID, util.JoinScopes(record.Scope))
	instrumentation.SetSpanSuccess(span)

	return token, nil
}

// issueTokenPair generates and stores a fresh access/refresh token pair.
func (s *Server) issueTokenPair(ctx context.Context, clientID string, userID int64, scope []string) (*storage.Token, error) {
	accessToken, err := NewAccessToken()
	if err != nil {
		return nil, fmt.Errorf("%w: token generation: %v", ErrServerError, err)
	}
	refreshToken, err := NewRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("%w: token generation: %v", ErrServerError, err)
	}

	now := time.Now()
	token := &storage.Token{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		ClientID:         clientID,
		UserID:           userID,
		Scope:            scope,
		ExpiresAt:        now.Add(s.Config.accessTTL()),
		RefreshExpiresAt: now.Add(s.Config.refreshTTL()),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.tokens.SaveToken(ctx, token); err != nil {
		return nil, fmt.Errorf("%w: token save: %v", ErrServerError, err)
	}
	return token, nil
}

// RefreshAccessToken rotates a refresh token: the presented token and its
// access token are invalidated and a new pair is issued with the original
// grant's user and scope. Rotation is atomic in storage, so a concurrent
// replay of the same refresh token succeeds at most once.
func (s *Server) RefreshAccessToken(ctx context.Context, client *storage.Client, refreshToken, ip string) (*storage.Token, error) {
	ctx, span := s.startSpan(ctx, "oauth.refresh_token")
	defer endSpan(span)

	if refreshToken == "" {
		return nil, fmt.Errorf("%w: missing refresh_token", ErrInvalidRequest)
	}
	if !client.AllowsGrantType("refresh_token") {
		return nil, fmt.Errorf("%w: grant type not allowed for client", ErrInvalidGrant)
	}

	accessToken, err := NewAccessToken()
	if err != nil {
		return nil, fmt.Errorf("%w: token generation: %v", ErrServerError, err)
	}
	newRefresh, err := NewRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("%w: token generation: %v", ErrServerError, err)
	}

	now := time.Now()
	rotation := storage.Rotation{
		AccessToken:      accessToken,
		RefreshToken:     newRefresh,
		ExpiresAt:        now.Add(s.Config.accessTTL()),
		RefreshExpiresAt: now.Add(s.Config.refreshTTL()),
	}

	token, err := s.tokens.RotateToken(ctx, refreshToken, client.ClientID, rotation)
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) || errors.Is(err, storage.ErrTokenExpired) {
			s.Logger.Warn("Refresh token rotation failed",
				"client_id", client.ClientID,
				"refresh_token", util.SafeTruncate(refreshToken, 8),
				"error", err)
			if s.auditAllowed(ip) && s.Auditor != nil {
				s.Auditor.LogAuthFailure(client.ClientID, ip, "invalid_refresh_token")
			}
			instrumentation.SetSpanError(span, "invalid refresh token")
			return nil, fmt.Errorf("%w: invalid refresh token", ErrInvalidGrant)
		}
		instrumentation.RecordError(span, err)
		return nil, fmt.Errorf("%w: token rotation: %v", ErrServerError, err)
	}

	s.Logger.Info("Refreshed token pair",
		"client_id", client.ClientID,
		"old_refresh", util.SafeTruncate(refreshToken, 8),
		"new_access", util.SafeTruncate(token.AccessToken, 8))
	if s.Auditor != nil {
		s.Auditor.LogTokenRefreshed(token.UserID, client.ClientID, ip)
	}
	if m := s.metrics(); m != nil {
		m.RecordTokenRefresh(ctx, client.ClientID)
	}
	instrumentation.AddGrantAttributes(span, client.ClientID, token.UserID, util.JoinScopes(token.Scope))
	instrumentation.SetSpanSuccess(span)

	return token, nil
}

// ValidateAccessToken resolves an access token to the user behind it.
// Expired tokens and tokens for disabled or vanished users yield no context.
func (s *Server) ValidateAccessToken(ctx context.Context, accessToken string) (*UserContext, error) {
	ctx, span := s.startSpan(ctx, "oauth.validate_token")
	defer endSpan(span)

	if accessToken == "" {
		return nil, fmt.Errorf("%w: missing access token", ErrInvalidRequest)
	}

	token, err := s.tokens.GetTokenByAccess(ctx, accessToken)
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) || errors.Is(err, storage.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: invalid access token", ErrInvalidGrant)
		}
		instrumentation.RecordError(span, err)
		return nil, fmt.Errorf("%w: token lookup: %v", ErrServerError, err)
	}
	if security.IsExpired(token.ExpiresAt) {
		return nil, fmt.Errorf("%w: access token expired", ErrInvalidGrant)
	}
	if security.ExpiringSoon(token.ExpiresAt, time.Minute) {
		s.Logger.Debug("Access token close to expiry", "client_id", token.ClientID, "token", util.SafeTruncate(accessToken, 8))
	}

	user, err := s.users.ResolveUser(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, directory.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: user no longer exists", ErrInvalidGrant)
		}
		instrumentation.RecordError(span, err)
		return nil, fmt.Errorf("%w: user lookup: %v", ErrServerError, err)
	}
	if user.Status != directory.UserEnabled {
		return nil, fmt.Errorf("%w: user disabled", ErrInvalidGrant)
	}

	instrumentation.AddGrantAttributes(span, token.ClientID, user.ID, util.JoinScopes(token.Scope))
	instrumentation.SetSpanSuccess(span)

	return &UserContext{
		UserID:   user.ID,
		Username: user.Username,
		Email:    user.Email,
		Name:     user.Name,
		Scope:    token.Scope,
	}, nil
}

// IntrospectToken reports token state per RFC 7662 for the authenticated
// client. Unknown, expired, and foreign-client tokens all come back as
// inactive; a client can never learn whether another client's token exists.
func (s *Server) IntrospectToken(ctx context.Context, client *storage.Client, tokenValue, ip string) (*IntrospectionResult, error) {
	ctx, span := s.startSpan(ctx, "oauth.introspect_token")
	defer endSpan(span)

	inactive := &IntrospectionResult{Active: false}
	report := func(active bool) {
		if s.Auditor != nil {
			s.Auditor.LogIntrospection(client.ClientID, ip, active)
		}
		if m := s.metrics(); m != nil {
			m.RecordIntrospection(ctx, client.ClientID, active)
		}
		instrumentation.SetSpanSuccess(span)
	}

	if tokenValue == "" {
		report(false)
		return inactive, nil
	}

	// Only access token values introspect as active. A refresh token value
	// is treated the same as an unknown one.
	token, err := s.tokens.GetTokenByAccess(ctx, tokenValue)
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) || errors.Is(err, storage.ErrTokenExpired) {
			report(false)
			return inactive, nil
		}
		instrumentation.RecordError(span, err)
		return nil, fmt.Errorf("%w: token lookup: %v", ErrServerError, err)
	}

	if token.ClientID != client.ClientID || security.IsExpired(token.ExpiresAt) {
		report(false)
		return inactive, nil
	}

	report(true)
	return &IntrospectionResult{
		Active:    true,
		Scope:     token.Scope,
		ClientID:  token.ClientID,
		TokenType: "access_token",
		Exp:       token.ExpiresAt.Unix(),
		Sub:       token.UserID,
	}, nil
}

// RevokeToken invalidates a token pair per RFC 7009. The value may be either
// half of the pair; revoking one revokes both. Revoking a token that does
// not exist, is expired, or belongs to another client is not an error.
func (s *Server) RevokeToken(ctx context.Context, client *storage.Client, tokenValue, ip string) error {
	ctx, span := s.startSpan(ctx, "oauth.revoke_token")
	defer endSpan(span)

	if tokenValue == "" {
		return fmt.Errorf("%w: missing token", ErrInvalidRequest)
	}

	found, err := s.tokens.DeleteTokenForClient(ctx, tokenValue, client.ClientID)
	if err != nil {
		instrumentation.RecordError(span, err)
		return fmt.Errorf("%w: token delete: %v", ErrServerError, err)
	}

	if found {
		s.Logger.Info("Revoked token",
			"client_id", client.ClientID,
			"token", util.SafeTruncate(tokenValue, 8))
		if s.Auditor != nil {
			s.Auditor.LogTokenRevoked(0, client.ClientID, ip, "token")
		}
	}
	if m := s.metrics(); m != nil {
		m.RecordTokenRevocation(ctx, client.ClientID, found)
	}
	instrumentation.SetSpanSuccess(span)

	return nil
}
