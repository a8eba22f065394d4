package server

import (
	"context"
	"errors"
	"testing"

	"github.com/skyhhjmk/wind-oauth/internal/testutil"
	"github.com/skyhhjmk/wind-oauth/storage"
)

func TestResolveScopes(t *testing.T) {
	srv, store := newTestServer(t)
	client := seedClient(t, store)
	ctx := context.Background()

	t.Run("empty request falls back to defaults", func(t *testing.T) {
		scopes, err := srv.ResolveScopes(ctx, client, nil)
		testutil.AssertNoError(t, err)
		testutil.AssertEqual(t, len(scopes), 1)
		testutil.AssertEqual(t, scopes[0], "basic")
	})

	t.Run("requested scopes pass through", func(t *testing.T) {
		scopes, err := srv.ResolveScopes(ctx, client, []string{"basic", "email"})
		testutil.AssertNoError(t, err)
		testutil.AssertEqual(t, len(scopes), 2)
	})

	t.Run("duplicates collapse", func(t *testing.T) {
		scopes, err := srv.ResolveScopes(ctx, client, []string{"basic", "basic", "email"})
		testutil.AssertNoError(t, err)
		testutil.AssertEqual(t, len(scopes), 2)
	})

	t.Run("unknown scope rejected", func(t *testing.T) {
		_, err := srv.ResolveScopes(ctx, client, []string{"basic", "nonexistent"})
		if !errors.Is(err, ErrInvalidScope) {
			t.Fatalf("expected ErrInvalidScope, got %v", err)
		}
	})

	t.Run("scope outside client allowlist rejected", func(t *testing.T) {
		// "admin" exists in the catalog but the test client only allows
		// basic, email, and profile.
		_, err := srv.ResolveScopes(ctx, client, []string{"admin"})
		if !errors.Is(err, ErrInvalidScope) {
			t.Fatalf("expected ErrInvalidScope, got %v", err)
		}
	})

	t.Run("defaults are filtered by client allowlist", func(t *testing.T) {
		srv2, store2 := newTestServer(t)
		if err := store2.SaveScope(ctx, &storage.Scope{Name: "offline", Description: "Offline access", IsDefault: true}); err != nil {
			t.Fatalf("failed to seed scope: %v", err)
		}
		narrow := seedClient(t, store2)

		scopes, err := srv2.ResolveScopes(ctx, narrow, nil)
		testutil.AssertNoError(t, err)
		testutil.AssertEqual(t, len(scopes), 1)
		testutil.AssertEqual(t, scopes[0], "basic")
	})

	t.Run("empty allowlist allows any catalog scope", func(t *testing.T) {
		open := testutil.NewTestClient()
		open.ClientID = "client_66666666666666666666666666666666"
		open.Scopes = nil

		scopes, err := srv.ResolveScopes(ctx, open, []string{"admin"})
		testutil.AssertNoError(t, err)
		testutil.AssertEqual(t, len(scopes), 1)
	})
}
