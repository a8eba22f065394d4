package oauth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/skyhhjmk/wind-oauth/directory"
	"github.com/skyhhjmk/wind-oauth/internal/testutil"
	"github.com/skyhhjmk/wind-oauth/server"
	"github.com/skyhhjmk/wind-oauth/storage"
	"github.com/skyhhjmk/wind-oauth/storage/memory"
)

// autoApprove approves every authorization request as user 100.
func autoApprove(h **Handler) ApprovalFunc {
	return func(w http.ResponseWriter, r *http.Request, req *AuthorizeRequest) {
		(*h).FinishAuthorization(w, r, req, 100, true)
	}
}

func newTestHandler(t *testing.T) (*Handler, *storage.Client, *memory.Store) {
	t.Helper()

	store := memory.New()
	t.Cleanup(store.Stop)

	users := directory.NewStatic(
		&directory.User{ID: 100, Username: "alice", Email: "alice@example.com", Name: "Alice", Status: directory.UserEnabled},
	)

	srv, err := server.New(server.Stores{
		Clients: store,
		Codes:   store,
		Tokens:  store,
		Scopes:  store,
	}, users, &server.Config{Issuer: "https://auth.example.com"}, slog.Default())
	if err != nil {
		t.Fatalf("failed to build server: %v", err)
	}

	ctx := context.Background()
	for _, sc := range []*storage.Scope{
		{Name: "basic", Description: "Basic profile access", IsDefault: true},
		{Name: "email", Description: "Email address"},
	} {
		if err := store.SaveScope(ctx, sc); err != nil {
			t.Fatalf("failed to seed scope: %v", err)
		}
	}

	client := testutil.NewTestClient()
	if err := store.SaveClient(ctx, client); err != nil {
		t.Fatalf("failed to seed client: %v", err)
	}

	var h *Handler
	h = NewHandler(srv, autoApprove(&h), slog.Default())
	return h, client, store
}

// issueCode runs the authorization endpoint with auto-approval and returns
// the issued code.
func issueCode(t *testing.T, h *Handler, client *storage.Client, scope string) string {
	t.Helper()

	params := url.Values{
		"response_type": {"code"},
		"client_id":     {client.ClientID},
		"redirect_uri":  {client.RedirectURI},
		"state":         {"xyz"},
	}
	if scope != "" {
		params.Set("scope", scope)
	}

	r := httptest.NewRequest(http.MethodGet, "/oauth/authorize?"+params.Encode(), nil)
	w := httptest.NewRecorder()
	h.ServeAuthorization(w, r)

	if w.Code != http.StatusFound {
		t.Fatalf("expected 302 from authorize, got %d: %s", w.Code, w.Body.String())
	}
	loc, err := url.Parse(w.Header().Get("Location"))
	testutil.AssertNoError(t, err)
	code := loc.Query().Get("code")
	if code == "" {
		t.Fatalf("no code in redirect: %s", loc)
	}
	testutil.AssertEqual(t, loc.Query().Get("state"), "xyz")
	return code
}

func postForm(h http.HandlerFunc, target string, form url.Values, basicAuth [2]string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if basicAuth[0] != "" {
		r.SetBasicAuth(basicAuth[0], basicAuth[1])
	}
	w := httptest.NewRecorder()
	h(w, r)
	return w
}

func TestServeToken_AuthorizationCodeGrant(t *testing.T) {
	h, client, _ := newTestHandler(t)
	code := issueCode(t, h, client, "basic email")

	w := postForm(h.ServeToken, "/oauth/token", url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {client.RedirectURI},
	}, [2]string{client.ClientID, "secret"})

	testutil.AssertEqual(t, w.Code, http.StatusOK)

	var resp TokenResponse
	testutil.AssertNoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	testutil.AssertEqual(t, resp.TokenType, "Bearer")
	testutil.AssertEqual(t, resp.Scope, "basic email")
	testutil.AssertNotEqual(t, resp.AccessToken, "")
	testutil.AssertNotEqual(t, resp.RefreshToken, "")
	if resp.ExpiresIn < 7195 || resp.ExpiresIn > 7200 {
		t.Errorf("unexpected expires_in: %d", resp.ExpiresIn)
	}
	testutil.AssertTrue(t, strings.Contains(w.Header().Get("Cache-Control"), "no-store"), "token response must not be cacheable")
}

func TestServeToken_BodyCredentials(t *testing.T) {
	h, client, _ := newTestHandler(t)
	code := issueCode(t, h, client, "")

	w := postForm(h.ServeToken, "/oauth/token", url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {client.RedirectURI},
		"client_id":     {client.ClientID},
		"client_secret": {"secret"},
	}, [2]string{})

	testutil.AssertEqual(t, w.Code, http.StatusOK)
}

func TestServeToken_DoubleExchange(t *testing.T) {
	h, client, _ := newTestHandler(t)
	code := issueCode(t, h, client, "")

	form := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {client.RedirectURI},
	}
	auth := [2]string{client.ClientID, "secret"}

	first := postForm(h.ServeToken, "/oauth/token", form, auth)
	testutil.AssertEqual(t, first.Code, http.StatusOK)

	second := postForm(h.ServeToken, "/oauth/token", form, auth)
	testutil.AssertEqual(t, second.Code, http.StatusBadRequest)

	var resp ErrorResponse
	testutil.AssertNoError(t, json.Unmarshal(second.Body.Bytes(), &resp))
	testutil.AssertEqual(t, resp.Error, "invalid_grant")
}

func TestServeToken_BadClientCredentials(t *testing.T) {
	h, client, _ := newTestHandler(t)
	code := issueCode(t, h, client, "")

	w := postForm(h.ServeToken, "/oauth/token", url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {client.RedirectURI},
	}, [2]string{client.ClientID, "wrong"})

	testutil.AssertEqual(t, w.Code, http.StatusUnauthorized)

	var resp ErrorResponse
	testutil.AssertNoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	testutil.AssertEqual(t, resp.Error, "invalid_client")
}

func TestServeToken_UnsupportedGrantType(t *testing.T) {
	h, client, _ := newTestHandler(t)

	for _, grantType := range []string{"client_credentials", "password", ""} {
		w := postForm(h.ServeToken, "/oauth/token", url.Values{
			"grant_type": {grantType},
		}, [2]string{client.ClientID, "secret"})

		testutil.AssertEqual(t, w.Code, http.StatusBadRequest)

		var resp ErrorResponse
		testutil.AssertNoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		testutil.AssertEqual(t, resp.Error, "unsupported_grant_type")
	}
}

func TestServeToken_RefreshGrant(t *testing.T) {
	h, client, _ := newTestHandler(t)
	code := issueCode(t, h, client, "")

	auth := [2]string{client.ClientID, "secret"}
	first := postForm(h.ServeToken, "/oauth/token", url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {client.RedirectURI},
	}, auth)
	testutil.AssertEqual(t, first.Code, http.StatusOK)

	var original TokenResponse
	testutil.AssertNoError(t, json.Unmarshal(first.Body.Bytes(), &original))

	refreshed := postForm(h.ServeToken, "/oauth/token", url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {original.RefreshToken},
	}, auth)
	testutil.AssertEqual(t, refreshed.Code, http.StatusOK)

	var rotated TokenResponse
	testutil.AssertNoError(t, json.Unmarshal(refreshed.Body.Bytes(), &rotated))
	testutil.AssertNotEqual(t, rotated.AccessToken, original.AccessToken)
	testutil.AssertNotEqual(t, rotated.RefreshToken, original.RefreshToken)

	// Replaying the rotated-out refresh token fails.
	replay := postForm(h.ServeToken, "/oauth/token", url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {original.RefreshToken},
	}, auth)
	testutil.AssertEqual(t, replay.Code, http.StatusBadRequest)

	var resp ErrorResponse
	testutil.AssertNoError(t, json.Unmarshal(replay.Body.Bytes(), &resp))
	testutil.AssertEqual(t, resp.Error, "invalid_grant")
}

func TestServeTokenIntrospection(t *testing.T) {
	h, client, store := newTestHandler(t)
	ctx := context.Background()

	token := testutil.NewTestToken(client.ClientID)
	testutil.AssertNoError(t, store.SaveToken(ctx, token))

	auth := [2]string{client.ClientID, "secret"}

	t.Run("active token", func(t *testing.T) {
		w := postForm(h.ServeTokenIntrospection, "/oauth/introspect", url.Values{
			"token": {token.AccessToken},
		}, auth)
		testutil.AssertEqual(t, w.Code, http.StatusOK)

		var resp IntrospectionResponse
		testutil.AssertNoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		testutil.AssertTrue(t, resp.Active, "token should be active")
		testutil.AssertEqual(t, resp.ClientID, client.ClientID)
		testutil.AssertEqual(t, resp.Sub, "100")
		testutil.AssertEqual(t, resp.Exp, token.ExpiresAt.Unix())
	})

	t.Run("unknown token inactive", func(t *testing.T) {
		w := postForm(h.ServeTokenIntrospection, "/oauth/introspect", url.Values{
			"token": {"nonexistent"},
		}, auth)
		testutil.AssertEqual(t, w.Code, http.StatusOK)

		var resp IntrospectionResponse
		testutil.AssertNoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		testutil.AssertFalse(t, resp.Active, "unknown token must be inactive")
		testutil.AssertEqual(t, resp.ClientID, "")
	})

	t.Run("missing token inactive", func(t *testing.T) {
		w := postForm(h.ServeTokenIntrospection, "/oauth/introspect", url.Values{}, auth)
		testutil.AssertEqual(t, w.Code, http.StatusOK)

		var resp IntrospectionResponse
		testutil.AssertNoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		testutil.AssertFalse(t, resp.Active, "missing token must be inactive")
	})

	t.Run("foreign client sees inactive", func(t *testing.T) {
		other := testutil.NewTestClient()
		other.ClientID = "client_77777777777777777777777777777777"
		testutil.AssertNoError(t, store.SaveClient(ctx, other))

		w := postForm(h.ServeTokenIntrospection, "/oauth/introspect", url.Values{
			"token": {token.AccessToken},
		}, [2]string{other.ClientID, "secret"})
		testutil.AssertEqual(t, w.Code, http.StatusOK)

		var resp IntrospectionResponse
		testutil.AssertNoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		testutil.AssertFalse(t, resp.Active, "foreign token must appear inactive")
	})

	t.Run("unauthenticated caller gets 401", func(t *testing.T) {
		w := postForm(h.ServeTokenIntrospection, "/oauth/introspect", url.Values{
			"token": {token.AccessToken},
		}, [2]string{client.ClientID, "wrong"})
		testutil.AssertEqual(t, w.Code, http.StatusUnauthorized)
	})
}

func TestServeTokenRevocation(t *testing.T) {
	h, client, store := newTestHandler(t)
	ctx := context.Background()
	auth := [2]string{client.ClientID, "secret"}

	t.Run("revokes the pair", func(t *testing.T) {
		token := testutil.NewTestToken(client.ClientID)
		testutil.AssertNoError(t, store.SaveToken(ctx, token))

		w := postForm(h.ServeTokenRevocation, "/oauth/revoke", url.Values{
			"token": {token.AccessToken},
		}, auth)
		testutil.AssertEqual(t, w.Code, http.StatusOK)

		var resp RevocationResponse
		testutil.AssertNoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		testutil.AssertTrue(t, resp.Success, "revocation should report success")

		if _, err := store.GetTokenByAccess(ctx, token.AccessToken); err == nil {
			t.Fatal("token still present after revocation")
		}
	})

	t.Run("unknown token still succeeds", func(t *testing.T) {
		w := postForm(h.ServeTokenRevocation, "/oauth/revoke", url.Values{
			"token": {"nonexistent"},
		}, auth)
		testutil.AssertEqual(t, w.Code, http.StatusOK)

		var resp RevocationResponse
		testutil.AssertNoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		testutil.AssertTrue(t, resp.Success, "absent token is not an error")
	})

	t.Run("missing token is 400", func(t *testing.T) {
		w := postForm(h.ServeTokenRevocation, "/oauth/revoke", url.Values{}, auth)
		testutil.AssertEqual(t, w.Code, http.StatusBadRequest)
	})

	t.Run("failed client auth is 401", func(t *testing.T) {
		w := postForm(h.ServeTokenRevocation, "/oauth/revoke", url.Values{
			"token": {"whatever"},
		}, [2]string{client.ClientID, "wrong"})
		testutil.AssertEqual(t, w.Code, http.StatusUnauthorized)
	})
}

func TestServeUserInfo(t *testing.T) {
	h, client, store := newTestHandler(t)
	ctx := context.Background()

	token := testutil.NewTestToken(client.ClientID)
	testutil.AssertNoError(t, store.SaveToken(ctx, token))

	t.Run("valid bearer token", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/oauth/userinfo", nil)
		r.Header.Set("Authorization", "Bearer "+token.AccessToken)
		w := httptest.NewRecorder()
		h.ServeUserInfo(w, r)

		testutil.AssertEqual(t, w.Code, http.StatusOK)

		var resp UserInfoResponse
		testutil.AssertNoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		testutil.AssertEqual(t, resp.UserID, int64(100))
		testutil.AssertEqual(t, resp.Username, "alice")
	})

	t.Run("missing bearer token", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/oauth/userinfo", nil)
		w := httptest.NewRecorder()
		h.ServeUserInfo(w, r)

		testutil.AssertEqual(t, w.Code, http.StatusUnauthorized)
		testutil.AssertNotEqual(t, w.Header().Get("WWW-Authenticate"), "")
	})

	t.Run("invalid bearer token", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/oauth/userinfo", nil)
		r.Header.Set("Authorization", "Bearer nonexistent")
		w := httptest.NewRecorder()
		h.ServeUserInfo(w, r)

		testutil.AssertEqual(t, w.Code, http.StatusUnauthorized)
	})
}

func TestServeAuthorization(t *testing.T) {
	h, client, store := newTestHandler(t)
	ctx := context.Background()

	t.Run("invalid redirect_uri never redirects", func(t *testing.T) {
		params := url.Values{
			"response_type": {"code"},
			"client_id":     {client.ClientID},
			"redirect_uri":  {"https://evil.com/cb"},
		}
		r := httptest.NewRequest(http.MethodGet, "/oauth/authorize?"+params.Encode(), nil)
		w := httptest.NewRecorder()
		h.ServeAuthorization(w, r)

		testutil.AssertEqual(t, w.Code, http.StatusBadRequest)
		testutil.AssertEqual(t, w.Header().Get("Location"), "")
	})

	t.Run("unknown client rejected", func(t *testing.T) {
		params := url.Values{
			"response_type": {"code"},
			"client_id":     {"client_ffffffffffffffffffffffffffffffff"},
			"redirect_uri":  {client.RedirectURI},
		}
		r := httptest.NewRequest(http.MethodGet, "/oauth/authorize?"+params.Encode(), nil)
		w := httptest.NewRecorder()
		h.ServeAuthorization(w, r)

		testutil.AssertEqual(t, w.Code, http.StatusBadRequest)
	})

	t.Run("disabled client rejected", func(t *testing.T) {
		disabled := testutil.NewTestClient()
		disabled.ClientID = "client_88888888888888888888888888888888"
		disabled.Status = storage.ClientDisabled
		testutil.AssertNoError(t, store.SaveClient(ctx, disabled))

		params := url.Values{
			"response_type": {"code"},
			"client_id":     {disabled.ClientID},
			"redirect_uri":  {disabled.RedirectURI},
		}
		r := httptest.NewRequest(http.MethodGet, "/oauth/authorize?"+params.Encode(), nil)
		w := httptest.NewRecorder()
		h.ServeAuthorization(w, r)

		testutil.AssertEqual(t, w.Code, http.StatusBadRequest)
	})

	t.Run("wrong response_type rejected", func(t *testing.T) {
		params := url.Values{
			"response_type": {"token"},
			"client_id":     {client.ClientID},
			"redirect_uri":  {client.RedirectURI},
		}
		r := httptest.NewRequest(http.MethodGet, "/oauth/authorize?"+params.Encode(), nil)
		w := httptest.NewRecorder()
		h.ServeAuthorization(w, r)

		testutil.AssertEqual(t, w.Code, http.StatusBadRequest)
	})
}

func TestFinishAuthorization_Denial(t *testing.T) {
	h, client, _ := newTestHandler(t)

	r := httptest.NewRequest(http.MethodGet, "/oauth/authorize", nil)
	w := httptest.NewRecorder()
	h.FinishAuthorization(w, r, &AuthorizeRequest{
		ClientID:    client.ClientID,
		RedirectURI: client.RedirectURI,
		State:       "xyz",
	}, 100, false)

	testutil.AssertEqual(t, w.Code, http.StatusFound)
	loc, err := url.Parse(w.Header().Get("Location"))
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, loc.Query().Get("error"), "access_denied")
	testutil.AssertEqual(t, loc.Query().Get("state"), "xyz")
	testutil.AssertEqual(t, loc.Query().Get("code"), "")
}

func TestServeAuthorizationServerMetadata(t *testing.T) {
	h, _, _ := newTestHandler(t)

	r := httptest.NewRequest(http.MethodGet, "/.well-known/oauth-authorization-server", nil)
	w := httptest.NewRecorder()
	h.ServeAuthorizationServerMetadata(w, r)

	testutil.AssertEqual(t, w.Code, http.StatusOK)

	var meta AuthorizationServerMetadata
	testutil.AssertNoError(t, json.Unmarshal(w.Body.Bytes(), &meta))
	testutil.AssertEqual(t, meta.Issuer, "https://auth.example.com")
	testutil.AssertEqual(t, meta.TokenEndpoint, "https://auth.example.com/oauth/token")
	testutil.AssertEqual(t, meta.AuthorizationEndpoint, "https://auth.example.com/oauth/authorize")
	testutil.AssertEqual(t, len(meta.ResponseTypesSupported), 1)
	testutil.AssertEqual(t, meta.ResponseTypesSupported[0], "code")
	testutil.AssertEqual(t, len(meta.ScopesSupported), 2)
}
