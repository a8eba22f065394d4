package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/skyhhjmk/wind-oauth/internal/testutil"
	"github.com/skyhhjmk/wind-oauth/storage"
)

func TestIssueAndExchangeAuthorizationCode(t *testing.T) {
	srv, store := newTestServer(t)
	client := seedClient(t, store)
	ctx := context.Background()

	code, err := srv.IssueAuthorizationCode(ctx, client, 100, client.RedirectURI, []string{"basic", "email"}, "10.0.0.1")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(code), tokenByteLength*2)

	token, err := srv.ExchangeAuthorizationCode(ctx, client, code, client.RedirectURI, "10.0.0.1")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, token.ClientID, client.ClientID)
	testutil.AssertEqual(t, token.UserID, int64(100))
	testutil.AssertEqual(t, len(token.Scope), 2)
	testutil.AssertNotEqual(t, token.AccessToken, token.RefreshToken)

	if remaining := time.Until(token.ExpiresAt); remaining < 119*time.Minute || remaining > 121*time.Minute {
		t.Errorf("unexpected access token lifetime: %v", remaining)
	}
	if remaining := time.Until(token.RefreshExpiresAt); remaining < 29*24*time.Hour {
		t.Errorf("unexpected refresh token lifetime: %v", remaining)
	}
}

func TestExchangeAuthorizationCode_SingleUse(t *testing.T) {
	srv, store := newTestServer(t)
	client := seedClient(t, store)
	ctx := context.Background()

	code, err := srv.IssueAuthorizationCode(ctx, client, 100, client.RedirectURI, []string{"basic"}, "10.0.0.1")
	testutil.AssertNoError(t, err)

	_, err = srv.ExchangeAuthorizationCode(ctx, client, code, client.RedirectURI, "10.0.0.1")
	testutil.AssertNoError(t, err)

	_, err = srv.ExchangeAuthorizationCode(ctx, client, code, client.RedirectURI, "10.0.0.1")
	if !errors.Is(err, ErrInvalidGrant) {
		t.Fatalf("expected ErrInvalidGrant on second exchange, got %v", err)
	}
}

func TestExchangeAuthorizationCode_RedirectMismatchBurnsCode(t *testing.T) {
	srv, store := newTestServer(t)
	client := seedClient(t, store)
	ctx := context.Background()

	code, err := srv.IssueAuthorizationCode(ctx, client, 100, client.RedirectURI, []string{"basic"}, "10.0.0.1")
	testutil.AssertNoError(t, err)

	_, err = srv.ExchangeAuthorizationCode(ctx, client, code, "https://example.com/other", "10.0.0.1")
	if !errors.Is(err, ErrInvalidGrant) {
		t.Fatalf("expected ErrInvalidGrant on redirect mismatch, got %v", err)
	}

	// Retrying with the right redirect must fail too: one exchange attempt
	// consumes the code.
	_, err = srv.ExchangeAuthorizationCode(ctx, client, code, client.RedirectURI, "10.0.0.1")
	if !errors.Is(err, ErrInvalidGrant) {
		t.Fatalf("expected ErrInvalidGrant after burned code, got %v", err)
	}
}

func TestExchangeAuthorizationCode_WrongClient(t *testing.T) {
	srv, store := newTestServer(t)
	client := seedClient(t, store)
	ctx := context.Background()

	other := testutil.NewTestClient()
	other.ClientID = "client_22222222222222222222222222222222"
	testutil.AssertNoError(t, store.SaveClient(ctx, other))

	code, err := srv.IssueAuthorizationCode(ctx, client, 100, client.RedirectURI, []string{"basic"}, "10.0.0.1")
	testutil.AssertNoError(t, err)

	_, err = srv.ExchangeAuthorizationCode(ctx, other, code, client.RedirectURI, "10.0.0.1")
	if !errors.Is(err, ErrInvalidGrant) {
		t.Fatalf("expected ErrInvalidGrant for foreign client, got %v", err)
	}

	// A foreign client's attempt must not burn the code for its owner.
	_, err = srv.ExchangeAuthorizationCode(ctx, client, code, client.RedirectURI, "10.0.0.1")
	testutil.AssertNoError(t, err)
}

func TestExchangeAuthorizationCode_Expired(t *testing.T) {
	srv, store := newTestServer(t)
	client := seedClient(t, store)
	ctx := context.Background()

	record := testutil.NewTestAuthorizationCode(client.ClientID)
	record.ExpiresAt = time.Now().Add(-time.Minute)
	testutil.AssertNoError(t, store.SaveAuthorizationCode(ctx, record))

	_, err := srv.ExchangeAuthorizationCode(ctx, client, record.Code, record.RedirectURI, "10.0.0.1")
	if !errors.Is(err, ErrInvalidGrant) {
		t.Fatalf("expected ErrInvalidGrant for expired code, got %v", err)
	}
}

func TestExchangeAuthorizationCode_GrantTypeNotAllowed(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()

	client := testutil.NewTestClient()
	client.GrantTypes = []string{"refresh_token"}
	testutil.AssertNoError(t, store.SaveClient(ctx, client))

	_, err := srv.ExchangeAuthorizationCode(ctx, client, "whatever", client.RedirectURI, "10.0.0.1")
	if !errors.Is(err, ErrInvalidGrant) {
		t.Fatalf("expected ErrInvalidGrant, got %v", err)
	}
}

func TestExchangeAuthorizationCode_ConcurrentSingleWinner(t *testing.T) {
	srv, store := newTestServer(t)
	client := seedClient(t, store)
	ctx := context.Background()

	code, err := srv.IssueAuthorizationCode(ctx, client, 100, client.RedirectURI, []string{"basic"}, "10.0.0.1")
	testutil.AssertNoError(t, err)

	const workers = 16
	var wg sync.WaitGroup
	successes := make(chan *storage.Token, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if token, err := srv.ExchangeAuthorizationCode(ctx, client, code, client.RedirectURI, "10.0.0.1"); err == nil {
				successes <- token
			}
		}()
	}
	wg.Wait()
	close(successes)

	var count int
	for range successes {
		count++
	}
	testutil.AssertEqual(t, count, 1)
}

func TestRefreshAccessToken(t *testing.T) {
	srv, store := newTestServer(t)
	client := seedClient(t, store)
	ctx := context.Background()

	code, err := srv.IssueAuthorizationCode(ctx, client, 100, client.RedirectURI, []string{"basic"}, "10.0.0.1")
	testutil.AssertNoError(t, err)
	original, err := srv.ExchangeAuthorizationCode(ctx, client, code, client.RedirectURI, "10.0.0.1")
	testutil.AssertNoError(t, err)

	rotated, err := srv.RefreshAccessToken(ctx, client, original.RefreshToken, "10.0.0.1")
	testutil.AssertNoError(t, err)
	testutil.AssertNotEqual(t, rotated.AccessToken, original.AccessToken)
	testutil.AssertNotEqual(t, rotated.RefreshToken, original.RefreshToken)
	testutil.AssertEqual(t, rotated.UserID, original.UserID)
	testutil.AssertEqual(t, len(rotated.Scope), len(original.Scope))

	// The rotated-out pair is dead.
	_, err = srv.RefreshAccessToken(ctx, client, original.RefreshToken, "10.0.0.1")
	if !errors.Is(err, ErrInvalidGrant) {
		t.Fatalf("expected ErrInvalidGrant for replayed refresh token, got %v", err)
	}
	_, err = srv.ValidateAccessToken(ctx, original.AccessToken)
	if !errors.Is(err, ErrInvalidGrant) {
		t.Fatalf("expected old access token to be invalid, got %v", err)
	}

	// The new pair works.
	userCtx, err := srv.ValidateAccessToken(ctx, rotated.AccessToken)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, userCtx.UserID, int64(100))
}

func TestRefreshAccessToken_WrongClient(t *testing.T) {
	srv, store := newTestServer(t)
	client := seedClient(t, store)
	ctx := context.Background()

	other := testutil.NewTestClient()
	other.ClientID = "client_33333333333333333333333333333333"
	testutil.AssertNoError(t, store.SaveClient(ctx, other))

	token := testutil.NewTestToken(client.ClientID)
	testutil.AssertNoError(t, store.SaveToken(ctx, token))

	_, err := srv.RefreshAccessToken(ctx, other, token.RefreshToken, "10.0.0.1")
	if !errors.Is(err, ErrInvalidGrant) {
		t.Fatalf("expected ErrInvalidGrant for foreign client, got %v", err)
	}

	// Still usable by the owning client.
	_, err = srv.RefreshAccessToken(ctx, client, token.RefreshToken, "10.0.0.1")
	testutil.AssertNoError(t, err)
}

func TestRefreshAccessToken_ConcurrentSingleWinner(t *testing.T) {
	srv, store := newTestServer(t)
	client := seedClient(t, store)
	ctx := context.Background()

	token := testutil.NewTestToken(client.ClientID)
	testutil.AssertNoError(t, store.SaveToken(ctx, token))

	const workers = 16
	var wg sync.WaitGroup
	successes := make(chan struct{}, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := srv.RefreshAccessToken(ctx, client, token.RefreshToken, "10.0.0.1"); err == nil {
				successes <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(successes)

	var count int
	for range successes {
		count++
	}
	testutil.AssertEqual(t, count, 1)
}

func TestValidateAccessToken(t *testing.T) {
	srv, store := newTestServer(t)
	client := seedClient(t, store)
	ctx := context.Background()

	token := testutil.NewTestToken(client.ClientID)
	testutil.AssertNoError(t, store.SaveToken(ctx, token))

	userCtx, err := srv.ValidateAccessToken(ctx, token.AccessToken)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, userCtx.UserID, int64(100))
	testutil.AssertEqual(t, userCtx.Username, "alice")
	testutil.AssertEqual(t, userCtx.Email, "alice@example.com")

	t.Run("unknown token", func(t *testing.T) {
		_, err := srv.ValidateAccessToken(ctx, "nonexistent")
		if !errors.Is(err, ErrInvalidGrant) {
			t.Fatalf("expected ErrInvalidGrant, got %v", err)
		}
	})

	t.Run("expired token", func(t *testing.T) {
		expired := testutil.NewTestToken(client.ClientID)
		expired.ExpiresAt = time.Now().Add(-time.Hour)
		testutil.AssertNoError(t, store.SaveToken(ctx, expired))

		_, err := srv.ValidateAccessToken(ctx, expired.AccessToken)
		if !errors.Is(err, ErrInvalidGrant) {
			t.Fatalf("expected ErrInvalidGrant, got %v", err)
		}
	})

	t.Run("disabled user", func(t *testing.T) {
		forBob := testutil.NewTestToken(client.ClientID)
		forBob.UserID = 200
		testutil.AssertNoError(t, store.SaveToken(ctx, forBob))

		_, err := srv.ValidateAccessToken(ctx, forBob.AccessToken)
		if !errors.Is(err, ErrInvalidGrant) {
			t.Fatalf("expected ErrInvalidGrant, got %v", err)
		}
	})

	t.Run("vanished user", func(t *testing.T) {
		orphan := testutil.NewTestToken(client.ClientID)
		orphan.UserID = 999
		testutil.AssertNoError(t, store.SaveToken(ctx, orphan))

		_, err := srv.ValidateAccessToken(ctx, orphan.AccessToken)
		if !errors.Is(err, ErrInvalidGrant) {
			t.Fatalf("expected ErrInvalidGrant, got %v", err)
		}
	})
}

func TestIntrospectToken(t *testing.T) {
	srv, store := newTestServer(t)
	client := seedClient(t, store)
	ctx := context.Background()

	token := testutil.NewTestToken(client.ClientID)
	testutil.AssertNoError(t, store.SaveToken(ctx, token))

	t.Run("active access token", func(t *testing.T) {
		result, err := srv.IntrospectToken(ctx, client, token.AccessToken, "10.0.0.1")
		testutil.AssertNoError(t, err)
		testutil.AssertTrue(t, result.Active, "access token should be active")
		testutil.AssertEqual(t, result.ClientID, client.ClientID)
		testutil.AssertEqual(t, result.TokenType, "access_token")
		testutil.AssertEqual(t, result.Sub, int64(100))
		testutil.AssertEqual(t, result.Exp, token.ExpiresAt.Unix())
	})

	t.Run("refresh token value is inactive", func(t *testing.T) {
		result, err := srv.IntrospectToken(ctx, client, token.RefreshToken, "10.0.0.1")
		testutil.AssertNoError(t, err)
		testutil.AssertFalse(t, result.Active, "refresh token value must introspect as inactive")
	})

	t.Run("unknown token is inactive", func(t *testing.T) {
		result, err := srv.IntrospectToken(ctx, client, "nonexistent", "10.0.0.1")
		testutil.AssertNoError(t, err)
		testutil.AssertFalse(t, result.Active, "unknown token must be inactive")
		testutil.AssertEqual(t, result.ClientID, "")
	})

	t.Run("foreign client token is inactive", func(t *testing.T) {
		other := testutil.NewTestClient()
		other.ClientID = "client_44444444444444444444444444444444"
		testutil.AssertNoError(t, store.SaveClient(ctx, other))

		result, err := srv.IntrospectToken(ctx, other, token.AccessToken, "10.0.0.1")
		testutil.AssertNoError(t, err)
		testutil.AssertFalse(t, result.Active, "foreign token must appear inactive")
		testutil.AssertEqual(t, result.Sub, int64(0))
	})

	t.Run("expired access token is inactive", func(t *testing.T) {
		expired := testutil.NewTestToken(client.ClientID)
		expired.ExpiresAt = time.Now().Add(-time.Hour)
		testutil.AssertNoError(t, store.SaveToken(ctx, expired))

		result, err := srv.IntrospectToken(ctx, client, expired.AccessToken, "10.0.0.1")
		testutil.AssertNoError(t, err)
		testutil.AssertFalse(t, result.Active, "expired token must be inactive")
	})

	t.Run("empty token value is inactive", func(t *testing.T) {
		result, err := srv.IntrospectToken(ctx, client, "", "10.0.0.1")
		testutil.AssertNoError(t, err)
		testutil.AssertFalse(t, result.Active, "empty token must be inactive")
	})
}

func TestRevokeToken(t *testing.T) {
	srv, store := newTestServer(t)
	client := seedClient(t, store)
	ctx := context.Background()

	t.Run("revoke by access token kills the pair", func(t *testing.T) {
		token := testutil.NewTestToken(client.ClientID)
		testutil.AssertNoError(t, store.SaveToken(ctx, token))

		testutil.AssertNoError(t, srv.RevokeToken(ctx, client, token.AccessToken, "10.0.0.1"))

		if _, err := srv.ValidateAccessToken(ctx, token.AccessToken); !errors.Is(err, ErrInvalidGrant) {
			t.Fatalf("expected revoked access token to be invalid, got %v", err)
		}
		if _, err := srv.RefreshAccessToken(ctx, client, token.RefreshToken, "10.0.0.1"); !errors.Is(err, ErrInvalidGrant) {
			t.Fatalf("expected revoked refresh token to be invalid, got %v", err)
		}
	})

	t.Run("revoke by refresh token kills the pair", func(t *testing.T) {
		token := testutil.NewTestToken(client.ClientID)
		testutil.AssertNoError(t, store.SaveToken(ctx, token))

		testutil.AssertNoError(t, srv.RevokeToken(ctx, client, token.RefreshToken, "10.0.0.1"))

		if _, err := srv.ValidateAccessToken(ctx, token.AccessToken); !errors.Is(err, ErrInvalidGrant) {
			t.Fatalf("expected revoked access token to be invalid, got %v", err)
		}
	})

	t.Run("revoking an unknown token succeeds", func(t *testing.T) {
		testutil.AssertNoError(t, srv.RevokeToken(ctx, client, "nonexistent", "10.0.0.1"))
	})

	t.Run("revoking twice succeeds", func(t *testing.T) {
		token := testutil.NewTestToken(client.ClientID)
		testutil.AssertNoError(t, store.SaveToken(ctx, token))

		testutil.AssertNoError(t, srv.RevokeToken(ctx, client, token.AccessToken, "10.0.0.1"))
		testutil.AssertNoError(t, srv.RevokeToken(ctx, client, token.AccessToken, "10.0.0.1"))
	})

	t.Run("foreign client revocation succeeds but leaves the token", func(t *testing.T) {
		other := testutil.NewTestClient()
		other.ClientID = "client_55555555555555555555555555555555"
		testutil.AssertNoError(t, store.SaveClient(ctx, other))

		token := testutil.NewTestToken(client.ClientID)
		testutil.AssertNoError(t, store.SaveToken(ctx, token))

		testutil.AssertNoError(t, srv.RevokeToken(ctx, other, token.AccessToken, "10.0.0.1"))

		_, err := srv.ValidateAccessToken(ctx, token.AccessToken)
		testutil.AssertNoError(t, err)
	})

	t.Run("missing token is an error", func(t *testing.T) {
		if err := srv.RevokeToken(ctx, client, "", "10.0.0.1"); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("expected ErrInvalidRequest, got %v", err)
		}
	})
}
