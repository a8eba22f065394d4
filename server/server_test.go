package server

import (
	"context"
	"log/slog"
	"testing"

	"github.com/skyhhjmk/wind-oauth/directory"
	"github.com/skyhhjmk/wind-oauth/internal/testutil"
	"github.com/skyhhjmk/wind-oauth/storage"
	"github.com/skyhhjmk/wind-oauth/storage/memory"
)

// newTestServer builds a Server backed by the in-memory store, a small
// static user directory, and a seeded scope catalog.
func newTestServer(t *testing.T) (*Server, *memory.Store) {
	t.Helper()

	store := memory.New()
	t.Cleanup(store.Stop)

	users := directory.NewStatic(
		&directory.User{ID: 100, Username: "alice", Email: "alice@example.com", Name: "Alice", Status: directory.UserEnabled},
		&directory.User{ID: 200, Username: "bob", Email: "bob@example.com", Name: "Bob", Status: directory.UserDisabled},
	)

	srv, err := New(Stores{
		Clients: store,
		Codes:   store,
		Tokens:  store,
		Scopes:  store,
	}, users, &Config{Issuer: "https://auth.example.com"}, slog.Default())
	if err != nil {
		t.Fatalf("failed to build server: %v", err)
	}

	ctx := context.Background()
	scopes := []*storage.Scope{
		{Name: "basic", Description: "Basic profile access", IsDefault: true},
		{Name: "email", Description: "Email address"},
		{Name: "profile", Description: "Full profile"},
		{Name: "admin", Description: "Administrative access"},
	}
	for _, sc := range scopes {
		if err := store.SaveScope(ctx, sc); err != nil {
			t.Fatalf("failed to seed scope %q: %v", sc.Name, err)
		}
	}

	return srv, store
}

// seedClient registers the standard test client in the store.
func seedClient(t *testing.T, store *memory.Store) *storage.Client {
	t.Helper()

	client := testutil.NewTestClient()
	if err := store.SaveClient(context.Background(), client); err != nil {
		t.Fatalf("failed to seed client: %v", err)
	}
	return client
}

func TestNew_RequiresDependencies(t *testing.T) {
	store := memory.New()
	t.Cleanup(store.Stop)
	users := directory.NewStatic()

	full := Stores{Clients: store, Codes: store, Tokens: store, Scopes: store}

	tests := []struct {
		name   string
		stores Stores
		users  directory.Directory
	}{
		{"missing client store", Stores{Codes: store, Tokens: store, Scopes: store}, users},
		{"missing code store", Stores{Clients: store, Tokens: store, Scopes: store}, users},
		{"missing token store", Stores{Clients: store, Codes: store, Scopes: store}, users},
		{"missing scope store", Stores{Clients: store, Codes: store, Tokens: store}, users},
		{"missing directory", full, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.stores, tt.users, nil, nil)
			testutil.AssertError(t, err)
		})
	}

	srv, err := New(full, users, nil, nil)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, srv.Config.AuthorizationCodeTTL, 600)
	testutil.AssertEqual(t, srv.Config.AccessTokenTTL, 7200)
	testutil.AssertEqual(t, srv.Config.RefreshTokenTTL, 2592000)
}
