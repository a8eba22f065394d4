package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/skyhhjmk/wind-oauth/instrumentation"
	"github.com/skyhhjmk/wind-oauth/internal/util"
	"github.com/skyhhjmk/wind-oauth/security"
	"github.com/skyhhjmk/wind-oauth/server"
	"github.com/skyhhjmk/wind-oauth/storage"
)

const tokenTypeBearer = "Bearer"

// AuthorizeRequest carries a validated authorization request through the
// login and consent flow. Client and redirect URI are already validated when
// an ApprovalFunc receives it.
type AuthorizeRequest struct {
	ClientID    string
	ClientName  string
	RedirectURI string
	Scope       []string
	State       string

	client *storage.Client
}

// ApprovalFunc owns the resource-owner side of the authorization endpoint:
// authenticating the user and collecting consent. Once decided, it calls
// Handler.FinishAuthorization with the outcome.
type ApprovalFunc func(w http.ResponseWriter, r *http.Request, req *AuthorizeRequest)

// Handler exposes the protocol engine over HTTP
type Handler struct {
	server   *server.Server
	logger   *slog.Logger
	approval ApprovalFunc
	tracer   trace.Tracer // OpenTelemetry tracer for HTTP layer
}

// NewHandler creates a new HTTP handler
func NewHandler(srv *server.Server, approval ApprovalFunc, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		server:   srv,
		logger:   logger,
		approval: approval,
	}

	if srv.Instrumentation() != nil {
		h.tracer = srv.Instrumentation().Tracer("http")
	}

	return h
}

// RegisterRoutes wires the OAuth endpoints onto the mux
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/oauth/authorize", h.ServeAuthorization)
	mux.HandleFunc("/oauth/token", h.ServeToken)
	mux.HandleFunc("/oauth/introspect", h.ServeTokenIntrospection)
	mux.HandleFunc("/oauth/revoke", h.ServeTokenRevocation)
	mux.HandleFunc("/oauth/userinfo", h.ServeUserInfo)
	mux.HandleFunc("/.well-known/oauth-authorization-server", h.ServeAuthorizationServerMetadata)
}

// ==================== Token endpoint ====================

// ServeToken handles the RFC 6749 token endpoint. The grant_type parameter
// discriminates between the supported grants.
func (h *Handler) ServeToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseForm(); err != nil {
		h.writeError(w, ErrInvalidRequest("Failed to parse request"))
		return
	}

	grantType := r.FormValue("grant_type")

	switch grantType {
	case "authorization_code":
		h.handleAuthorizationCodeGrant(w, r)
	case "refresh_token":
		h.handleRefreshTokenGrant(w, r)
	default:
		h.writeError(w, ErrUnsupportedGrantType(""))
	}
}

func (h *Handler) handleAuthorizationCodeGrant(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx := r.Context()

	var span trace.Span
	if h.tracer != nil {
		ctx, span = h.tracer.Start(ctx, "oauth.http.token_exchange")
		defer span.End()
	}

	clientIP := h.clientIP(r)
	code := r.FormValue("code")
	redirectURI := r.FormValue("redirect_uri")

	if code == "" {
		h.recordHTTPMetrics("token", http.MethodPost, http.StatusBadRequest, startTime)
		instrumentation.SetSpanError(span, "code missing")
		h.writeError(w, ErrInvalidRequest("Required parameter 'code' missing"))
		return
	}

	client, ok := h.authenticateClient(ctx, w, r, clientIP, span)
	if !ok {
		h.recordHTTPMetrics("token", http.MethodPost, http.StatusUnauthorized, startTime)
		return
	}

	instrumentation.SetSpanAttributes(span,
		attribute.String(instrumentation.AttrClientID, client.ClientID),
		attribute.String(instrumentation.AttrGrantType, "authorization_code"),
	)

	token, err := h.server.ExchangeAuthorizationCode(ctx, client, code, redirectURI, clientIP)
	if err != nil {
		h.logger.Warn("Code exchange failed", "client_id", client.ClientID, "ip", clientIP, "error", err)
		h.recordHTTPMetrics("token", http.MethodPost, http.StatusBadRequest, startTime)
		instrumentation.RecordError(span, err)
		h.writeError(w, ErrInvalidGrant(""))
		return
	}

	h.logger.Info("Token exchange successful", "client_id", client.ClientID, "ip", clientIP)
	h.recordHTTPMetrics("token", http.MethodPost, http.StatusOK, startTime)
	instrumentation.SetSpanSuccess(span)

	h.writeTokenResponse(w, token)
}

func (h *Handler) handleRefreshTokenGrant(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx := r.Context()

	var span trace.Span
	if h.tracer != nil {
		ctx, span = h.tracer.Start(ctx, "oauth.http.token_refresh")
		defer span.End()
	}

	clientIP := h.clientIP(r)
	refreshToken := r.FormValue("refresh_token")

	if refreshToken == "" {
		h.recordHTTPMetrics("token", http.MethodPost, http.StatusBadRequest, startTime)
		instrumentation.SetSpanError(span, "refresh_token missing")
		h.writeError(w, ErrInvalidRequest("refresh_token is required"))
		return
	}

	client, ok := h.authenticateClient(ctx, w, r, clientIP, span)
	if !ok {
		h.recordHTTPMetrics("token", http.MethodPost, http.StatusUnauthorized, startTime)
		return
	}

	instrumentation.SetSpanAttributes(span,
		attribute.String(instrumentation.AttrClientID, client.ClientID),
		attribute.String(instrumentation.AttrGrantType, "refresh_token"),
	)

	token, err := h.server.RefreshAccessToken(ctx, client, refreshToken, clientIP)
	if err != nil {
		h.logger.Warn("Token refresh failed", "client_id", client.ClientID, "ip", clientIP, "error", err)
		h.recordHTTPMetrics("token", http.MethodPost, http.StatusBadRequest, startTime)
		instrumentation.RecordError(span, err)
		h.writeError(w, ErrInvalidGrant(""))
		return
	}

	h.recordHTTPMetrics("token", http.MethodPost, http.StatusOK, startTime)
	instrumentation.SetSpanSuccess(span)

	h.writeTokenResponse(w, token)
}

// ==================== Introspection endpoint ====================

// ServeTokenIntrospection handles the RFC 7662 introspection endpoint
func (h *Handler) ServeTokenIntrospection(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx := r.Context()

	var span trace.Span
	if h.tracer != nil {
		ctx, span = h.tracer.Start(ctx, "oauth.http.introspection")
		defer span.End()
	}

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		h.writeError(w, ErrInvalidRequest("Failed to parse request"))
		return
	}

	clientIP := h.clientIP(r)
	client, ok := h.authenticateClient(ctx, w, r, clientIP, span)
	if !ok {
		h.recordHTTPMetrics("introspect", http.MethodPost, http.StatusUnauthorized, startTime)
		return
	}

	result, err := h.server.IntrospectToken(ctx, client, r.FormValue("token"), clientIP)
	if err != nil {
		h.logger.Error("Introspection failed", "client_id", client.ClientID, "error", err)
		h.recordHTTPMetrics("introspect", http.MethodPost, http.StatusInternalServerError, startTime)
		instrumentation.RecordError(span, err)
		h.writeError(w, ErrServerError("Introspection failed"))
		return
	}

	response := IntrospectionResponse{Active: result.Active}
	if result.Active {
		response.Scope = util.JoinScopes(result.Scope)
		response.ClientID = result.ClientID
		response.TokenType = result.TokenType
		response.Exp = result.Exp
		response.Sub = strconv.FormatInt(result.Sub, 10)
	}

	h.recordHTTPMetrics("introspect", http.MethodPost, http.StatusOK, startTime)
	instrumentation.SetSpanSuccess(span)
	h.writeJSON(w, http.StatusOK, response)
}

// ==================== Revocation endpoint ====================

// ServeTokenRevocation handles the RFC 7009 token revocation endpoint.
// Once the client authenticates, the response is success regardless of
// whether a token was found.
func (h *Handler) ServeTokenRevocation(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx := r.Context()

	var span trace.Span
	if h.tracer != nil {
		ctx, span = h.tracer.Start(ctx, "oauth.http.token_revocation")
		defer span.End()
	}

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		h.writeError(w, ErrInvalidRequest("Failed to parse request"))
		return
	}

	clientIP := h.clientIP(r)
	client, ok := h.authenticateClient(ctx, w, r, clientIP, span)
	if !ok {
		h.recordHTTPMetrics("revoke", http.MethodPost, http.StatusUnauthorized, startTime)
		return
	}

	tokenValue := r.FormValue("token")
	if tokenValue == "" {
		h.recordHTTPMetrics("revoke", http.MethodPost, http.StatusBadRequest, startTime)
		h.writeError(w, ErrInvalidRequest("token is required"))
		return
	}

	if err := h.server.RevokeToken(ctx, client, tokenValue, clientIP); err != nil {
		h.logger.Error("Revocation failed", "client_id", client.ClientID, "error", err)
		h.recordHTTPMetrics("revoke", http.MethodPost, http.StatusInternalServerError, startTime)
		instrumentation.RecordError(span, err)
		h.writeError(w, ErrServerError("Revocation failed"))
		return
	}

	h.recordHTTPMetrics("revoke", http.MethodPost, http.StatusOK, startTime)
	instrumentation.SetSpanSuccess(span)
	h.writeJSON(w, http.StatusOK, RevocationResponse{Success: true})
}

// ==================== Userinfo endpoint ====================

// ServeUserInfo resolves a Bearer token to the identity behind it
func (h *Handler) ServeUserInfo(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx := r.Context()

	var span trace.Span
	if h.tracer != nil {
		ctx, span = h.tracer.Start(ctx, "oauth.http.userinfo")
		defer span.End()
	}

	accessToken, ok := h.extractBearerToken(r)
	if !ok {
		h.recordHTTPMetrics("userinfo", r.Method, http.StatusUnauthorized, startTime)
		w.Header().Set("WWW-Authenticate", tokenTypeBearer)
		h.writeError(w, ErrInvalidToken("Bearer token required"))
		return
	}

	userCtx, err := h.server.ValidateAccessToken(ctx, accessToken)
	if err != nil {
		h.recordHTTPMetrics("userinfo", r.Method, http.StatusUnauthorized, startTime)
		instrumentation.SetSpanError(span, "token validation failed")
		w.Header().Set("WWW-Authenticate", tokenTypeBearer)
		h.writeError(w, ErrInvalidToken("Access token is invalid or expired"))
		return
	}

	h.recordHTTPMetrics("userinfo", r.Method, http.StatusOK, startTime)
	instrumentation.SetSpanSuccess(span)

	h.writeJSON(w, http.StatusOK, UserInfoResponse{
		UserID:   userCtx.UserID,
		Username: userCtx.Username,
		Email:    userCtx.Email,
		Name:     userCtx.Name,
		Scope:    userCtx.Scope,
	})
}

// extractBearerToken pulls the token out of the Authorization header
func (h *Handler) extractBearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// ==================== Authorization endpoint ====================

// ServeAuthorization validates an authorization request and hands it to the
// configured ApprovalFunc for login and consent. The engine never renders
// login UI itself.
func (h *Handler) ServeAuthorization(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx := r.Context()

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.approval == nil {
		h.writeError(w, ErrServerError("Authorization flow not configured"))
		return
	}

	query := r.URL.Query()
	clientID := query.Get("client_id")
	redirectURI := query.Get("redirect_uri")
	state := query.Get("state")

	if clientID == "" {
		h.recordHTTPMetrics("authorization", r.Method, http.StatusBadRequest, startTime)
		h.writeError(w, ErrInvalidRequest("client_id is required"))
		return
	}
	if responseType := query.Get("response_type"); responseType != "code" {
		h.recordHTTPMetrics("authorization", r.Method, http.StatusBadRequest, startTime)
		h.writeError(w, ErrInvalidRequest("response_type must be 'code'"))
		return
	}

	client, err := h.server.GetEnabledClient(ctx, clientID)
	if err != nil {
		h.recordHTTPMetrics("authorization", r.Method, http.StatusBadRequest, startTime)
		h.writeError(w, ErrInvalidRequest("Unknown or disabled client"))
		return
	}

	// An unvalidated redirect target must never receive an error redirect.
	if !server.ValidateRedirectURI(client, redirectURI) {
		h.logger.Warn("Rejected authorization request with invalid redirect_uri",
			"client_id", clientID,
			"redirect_uri", redirectURI)
		h.recordHTTPMetrics("authorization", r.Method, http.StatusBadRequest, startTime)
		h.writeError(w, ErrInvalidRedirectURI("redirect_uri is not registered for this client"))
		return
	}

	scope, err := h.server.ResolveScopes(ctx, client, util.SplitScopes(query.Get("scope")))
	if err != nil {
		h.recordHTTPMetrics("authorization", r.Method, http.StatusBadRequest, startTime)
		h.redirectError(w, r, redirectURI, ErrorCodeInvalidScope, state)
		return
	}

	h.recordHTTPMetrics("authorization", r.Method, http.StatusOK, startTime)

	h.approval(w, r, &AuthorizeRequest{
		ClientID:    client.ClientID,
		ClientName:  client.Name,
		RedirectURI: redirectURI,
		Scope:       scope,
		State:       state,
		client:      client,
	})
}

// FinishAuthorization completes an authorization request after the approval
// flow has authenticated the user and collected a decision. Approval issues
// a code and redirects with it; denial redirects with access_denied.
func (h *Handler) FinishAuthorization(w http.ResponseWriter, r *http.Request, req *AuthorizeRequest, userID int64, approved bool) {
	ctx := r.Context()

	if !approved {
		h.logger.Info("Authorization denied by user", "client_id", req.ClientID)
		h.redirectError(w, r, req.RedirectURI, ErrorCodeAccessDenied, req.State)
		return
	}

	client := req.client
	if client == nil {
		var err error
		client, err = h.server.GetEnabledClient(ctx, req.ClientID)
		if err != nil {
			h.writeError(w, ErrInvalidRequest("Unknown or disabled client"))
			return
		}
		if !server.ValidateRedirectURI(client, req.RedirectURI) {
			h.writeError(w, ErrInvalidRedirectURI("redirect_uri is not registered for this client"))
			return
		}
	}

	code, err := h.server.IssueAuthorizationCode(ctx, client, userID, req.RedirectURI, req.Scope, h.clientIP(r))
	if err != nil {
		h.logger.Error("Failed to issue authorization code", "client_id", req.ClientID, "error", err)
		h.redirectError(w, r, req.RedirectURI, ErrorCodeServerError, req.State)
		return
	}

	target, err := url.Parse(req.RedirectURI)
	if err != nil {
		h.writeError(w, ErrInvalidRedirectURI("redirect_uri is malformed"))
		return
	}
	q := target.Query()
	q.Set("code", code)
	if req.State != "" {
		q.Set("state", req.State)
	}
	target.RawQuery = q.Encode()

	http.Redirect(w, r, target.String(), http.StatusFound)
}

// redirectError sends an OAuth error back to a validated redirect URI
func (h *Handler) redirectError(w http.ResponseWriter, r *http.Request, redirectURI, code, state string) {
	target, err := url.Parse(redirectURI)
	if err != nil {
		h.writeError(w, NewError(code, "", http.StatusBadRequest))
		return
	}
	q := target.Query()
	q.Set("error", code)
	if state != "" {
		q.Set("state", state)
	}
	target.RawQuery = q.Encode()

	http.Redirect(w, r, target.String(), http.StatusFound)
}

// ==================== Metadata endpoint ====================

// ServeAuthorizationServerMetadata serves RFC 8414 discovery metadata
func (h *Handler) ServeAuthorizationServerMetadata(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	issuer := util.NormalizeURL(h.server.Config.Issuer)

	metadata := AuthorizationServerMetadata{
		Issuer:                            issuer,
		AuthorizationEndpoint:             issuer + "/oauth/authorize",
		TokenEndpoint:                     issuer + "/oauth/token",
		UserinfoEndpoint:                  issuer + "/oauth/userinfo",
		RevocationEndpoint:                issuer + "/oauth/revoke",
		IntrospectionEndpoint:             issuer + "/oauth/introspect",
		ResponseTypesSupported:            []string{"code"},
		GrantTypesSupported:               []string{"authorization_code", "refresh_token"},
		TokenEndpointAuthMethodsSupported: []string{"client_secret_basic", "client_secret_post"},
	}

	if scopes, err := h.server.ListScopes(r.Context()); err == nil {
		names := make([]string, 0, len(scopes))
		for _, sc := range scopes {
			names = append(names, sc.Name)
		}
		metadata.ScopesSupported = names
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_ = json.NewEncoder(w).Encode(metadata)
}

// ==================== Shared helpers ====================

// authenticateClient extracts client credentials from the Basic header or
// the form body and verifies them. Writes the 401 response itself on
// failure; the Basic header wins when both carry credentials.
func (h *Handler) authenticateClient(ctx context.Context, w http.ResponseWriter, r *http.Request, clientIP string, span trace.Span) (*storage.Client, bool) {
	clientID, clientSecret, okBasic := r.BasicAuth()
	if !okBasic {
		clientID = r.FormValue("client_id")
		clientSecret = r.FormValue("client_secret")
	}

	client, err := h.server.AuthenticateClient(ctx, clientID, clientSecret, clientIP)
	if err != nil {
		if errors.Is(err, server.ErrInvalidClient) {
			instrumentation.SetSpanError(span, "client authentication failed")
			h.writeError(w, ErrInvalidClient("Client authentication failed"))
			return nil, false
		}
		h.logger.Error("Client authentication errored", "client_id", clientID, "error", err)
		instrumentation.RecordError(span, err)
		h.writeError(w, ErrServerError("Authentication unavailable"))
		return nil, false
	}
	return client, true
}

func (h *Handler) clientIP(r *http.Request) string {
	return security.ClientIP(r, h.server.Config.TrustProxy, h.server.Config.TrustedProxyCount)
}

func (h *Handler) writeTokenResponse(w http.ResponseWriter, token *storage.Token) {
	expiresIn := int64(time.Until(token.ExpiresAt).Seconds())
	if expiresIn < 0 {
		expiresIn = 0
	}

	h.writeJSON(w, http.StatusOK, TokenResponse{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    tokenTypeBearer,
		ExpiresIn:    expiresIn,
		Scope:        util.JoinScopes(token.Scope),
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	security.SetSecurityHeaders(w, h.server.Config.Issuer)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (h *Handler) writeError(w http.ResponseWriter, oerr *Error) {
	security.SetSecurityHeaders(w, h.server.Config.Issuer)

	if oerr.Status == http.StatusUnauthorized && w.Header().Get("WWW-Authenticate") == "" {
		w.Header().Set("WWW-Authenticate", fmt.Sprintf("Basic realm=%q", "oauth"))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(oerr.Status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:            oerr.Code,
		ErrorDescription: oerr.Description,
	})
}

// recordHTTPMetrics records HTTP request metrics (total count and duration)
func (h *Handler) recordHTTPMetrics(endpoint, method string, status int, startTime time.Time) {
	inst := h.server.Instrumentation()
	if inst == nil {
		return
	}

	duration := time.Since(startTime).Seconds() * 1000
	inst.Metrics().RecordHTTPRequest(context.Background(), method, endpoint, status, duration)
}
