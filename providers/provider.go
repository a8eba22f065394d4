// Package providers bridges third-party identity providers into the
// authorization server. A Provider turns an upstream authorization code into
// an Identity assertion; the Resolver maps that assertion onto a local user
// through persisted bindings. Account provisioning for unbound identities is
// the embedding application's concern.
package providers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/skyhhjmk/wind-oauth/storage"
)

// ErrNoBinding is returned when an identity has no local user bound to it.
var ErrNoBinding = errors.New("providers: no user bound to identity")

// Identity is a verified identity assertion from an upstream provider.
type Identity struct {
	// Provider is the provider name the assertion came from
	Provider string

	// SubjectID is the provider's stable unique identifier for the user
	SubjectID string

	// Username is the provider-side login name, when the provider has one
	Username string

	// Email is the asserted email address
	Email string

	// Name is the display name
	Name string
}

// Provider exchanges upstream authorization codes for identity assertions.
type Provider interface {
	// Name returns the provider name (e.g., "github", "google")
	Name() string

	// AuthorizationURL generates the URL to redirect users to for upstream
	// authentication
	AuthorizationURL(state string) string

	// Exchange trades an upstream authorization code for a verified Identity
	Exchange(ctx context.Context, code string) (*Identity, error)
}

// Resolver maps provider identities onto local user IDs.
type Resolver struct {
	bindings storage.BindingStore
}

// NewResolver creates a Resolver backed by the given binding store.
func NewResolver(bindings storage.BindingStore) *Resolver {
	return &Resolver{bindings: bindings}
}

// Resolve returns the local user ID bound to the identity, or ErrNoBinding.
func (r *Resolver) Resolve(ctx context.Context, identity *Identity) (int64, error) {
	binding, err := r.bindings.GetBinding(ctx, identity.Provider, identity.SubjectID)
	if err != nil {
		if errors.Is(err, storage.ErrBindingNotFound) {
			return 0, fmt.Errorf("%w: %s/%s", ErrNoBinding, identity.Provider, identity.SubjectID)
		}
		return 0, fmt.Errorf("binding lookup: %w", err)
	}
	return binding.UserID, nil
}

// Bind persists a binding between the identity and a local user.
func (r *Resolver) Bind(ctx context.Context, identity *Identity, userID int64) error {
	if err := r.bindings.SaveBinding(ctx, &storage.UserBinding{
		Provider:  identity.Provider,
		SubjectID: identity.SubjectID,
		UserID:    userID,
		CreatedAt: time.Now(),
	}); err != nil {
		return fmt.Errorf("binding save: %w", err)
	}
	return nil
}
