package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/skyhhjmk/wind-oauth/storage"
)

// ResolveScopes decides the scope set for a grant. An empty request resolves
// to the catalog's default scopes. Every requested scope must exist in the
// catalog and, when the client declares a scope allowlist, be on it.
func (s *Server) ResolveScopes(ctx context.Context, client *storage.Client, requested []string) ([]string, error) {
	if len(requested) == 0 {
		defaults, err := s.scopes.DefaultScopes(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: default scopes: %v", ErrServerError, err)
		}
		names := make([]string, 0, len(defaults))
		for _, name := range defaults {
			if clientAllowsScope(client, name) {
				names = append(names, name)
			}
		}
		return names, nil
	}

	seen := make(map[string]bool, len(requested))
	resolved := make([]string, 0, len(requested))
	for _, name := range requested {
		if seen[name] {
			continue
		}
		seen[name] = true

		if _, err := s.scopes.GetScope(ctx, name); err != nil {
			if errors.Is(err, storage.ErrScopeNotFound) {
				return nil, fmt.Errorf("%w: unknown scope %q", ErrInvalidScope, name)
			}
			return nil, fmt.Errorf("%w: scope lookup: %v", ErrServerError, err)
		}
		if !clientAllowsScope(client, name) {
			return nil, fmt.Errorf("%w: scope %q not allowed for client", ErrInvalidScope, name)
		}
		resolved = append(resolved, name)
	}
	return resolved, nil
}

// ListScopes returns the full scope catalog.
func (s *Server) ListScopes(ctx context.Context) ([]*storage.Scope, error) {
	scopes, err := s.scopes.ListScopes(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: scope list: %v", ErrServerError, err)
	}
	return scopes, nil
}

// clientAllowsScope reports whether the client may be granted the scope.
// An empty allowlist allows everything in the catalog.
func clientAllowsScope(client *storage.Client, name string) bool {
	if len(client.Scopes) == 0 {
		return true
	}
	for _, s := range client.Scopes {
		if s == name {
			return true
		}
	}
	return false
}
