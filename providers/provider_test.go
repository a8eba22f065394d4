package providers

import (
	"context"
	"errors"
	"testing"

	"github.com/skyhhjmk/wind-oauth/internal/testutil"
	"github.com/skyhhjmk/wind-oauth/storage/memory"
)

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	store := memory.New()
	t.Cleanup(store.Stop)
	return NewResolver(store)
}

func TestResolver(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()

	identity := &Identity{
		Provider:  "github",
		SubjectID: "12345",
		Username:  "alice",
		Email:     "alice@example.com",
	}

	t.Run("unbound identity", func(t *testing.T) {
		_, err := r.Resolve(ctx, identity)
		if !errors.Is(err, ErrNoBinding) {
			t.Fatalf("expected ErrNoBinding, got %v", err)
		}
	})

	t.Run("bind then resolve", func(t *testing.T) {
		testutil.AssertNoError(t, r.Bind(ctx, identity, 100))

		userID, err := r.Resolve(ctx, identity)
		testutil.AssertNoError(t, err)
		testutil.AssertEqual(t, userID, int64(100))
	})

	t.Run("same subject on another provider stays unbound", func(t *testing.T) {
		other := &Identity{Provider: "google", SubjectID: "12345"}
		_, err := r.Resolve(ctx, other)
		if !errors.Is(err, ErrNoBinding) {
			t.Fatalf("expected ErrNoBinding, got %v", err)
		}
	})

	t.Run("rebinding replaces the user", func(t *testing.T) {
		testutil.AssertNoError(t, r.Bind(ctx, identity, 200))

		userID, err := r.Resolve(ctx, identity)
		testutil.AssertNoError(t, err)
		testutil.AssertEqual(t, userID, int64(200))
	})
}
