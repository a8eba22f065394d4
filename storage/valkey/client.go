package valkey

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/skyhhjmk/wind-oauth/storage"
)

// ============================================================
// ClientStore Implementation
// ============================================================

// clientJSON is the stored representation of a client record. The secret
// hash is serialized here even though storage.Client excludes it from its
// own JSON form; it must survive the round trip.
type clientJSON struct {
	*storage.Client
	SecretHash string `json:"secret_hash"`
}

// SaveClient creates or replaces a client record
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) error {
	if client == nil {
		return fmt.Errorf("client cannot be nil")
	}
	if client.ClientID == "" {
		return fmt.Errorf("client_id cannot be empty")
	}

	data, err := json.Marshal(clientJSON{Client: client, SecretHash: client.SecretHash})
	if err != nil {
		return fmt.Errorf("failed to marshal client: %w", err)
	}

	if err := s.client.Do(ctx, s.client.B().Set().Key(s.clientKey(client.ClientID)).Value(string(data)).Build()).Error(); err != nil {
		return fmt.Errorf("failed to save client: %w", err)
	}
	if err := s.client.Do(ctx, s.client.B().Sadd().Key(s.clientsSetKey()).Member(client.ClientID).Build()).Error(); err != nil {
		return fmt.Errorf("failed to index client: %w", err)
	}

	s.logger.Debug("Saved client", "client_id", client.ClientID)
	return nil
}

// GetClient retrieves a client by its public client_id
func (s *Store) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	var j clientJSON
	j.Client = &storage.Client{}
	if err := s.getJSON(ctx, s.clientKey(clientID), &j, storage.ErrClientNotFound); err != nil {
		return nil, err
	}
	j.Client.SecretHash = j.SecretHash
	return j.Client, nil
}

// UpdateClientSecretHash replaces only the stored secret hash
func (s *Store) UpdateClientSecretHash(ctx context.Context, clientID, hash string) error {
	client, err := s.GetClient(ctx, clientID)
	if err != nil {
		return err
	}
	client.SecretHash = hash
	return s.SaveClient(ctx, client)
}

// DeleteClient removes a client and cascades to its authorization codes and tokens
func (s *Store) DeleteClient(ctx context.Context, clientID string) error {
	deleted, err := s.client.Do(ctx, s.client.B().Del().Key(s.clientKey(clientID)).Build()).AsInt64()
	if err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	if deleted == 0 {
		return storage.ErrClientNotFound
	}
	if err := s.client.Do(ctx, s.client.B().Srem().Key(s.clientsSetKey()).Member(clientID).Build()).Error(); err != nil {
		return fmt.Errorf("failed to unindex client: %w", err)
	}

	// Cascade: pending codes and issued tokens die with the client.
	codes, err := s.client.Do(ctx, s.client.B().Smembers().Key(s.codeIndexKey(clientID)).Build()).AsStrSlice()
	if err != nil {
		return fmt.Errorf("failed to list client codes: %w", err)
	}
	for _, code := range codes {
		if err := s.client.Do(ctx, s.client.B().Del().Key(s.codeKey(code)).Build()).Error(); err != nil {
			return fmt.Errorf("failed to cascade code deletion: %w", err)
		}
	}
	if err := s.client.Do(ctx, s.client.B().Del().Key(s.codeIndexKey(clientID)).Build()).Error(); err != nil {
		return fmt.Errorf("failed to delete code index: %w", err)
	}

	accesses, err := s.client.Do(ctx, s.client.B().Smembers().Key(s.tokenIndexKey(clientID)).Build()).AsStrSlice()
	if err != nil {
		return fmt.Errorf("failed to list client tokens: %w", err)
	}
	for _, access := range accesses {
		var env envelope
		if err := s.getJSON(ctx, s.accessKey(access), &env, storage.ErrTokenNotFound); err != nil {
			continue // record already expired out
		}
		if env.Refresh != "" {
			if err := s.client.Do(ctx, s.client.B().Del().Key(s.refreshKey(env.Refresh)).Build()).Error(); err != nil {
				return fmt.Errorf("failed to cascade refresh deletion: %w", err)
			}
		}
		if err := s.client.Do(ctx, s.client.B().Del().Key(s.accessKey(access)).Build()).Error(); err != nil {
			return fmt.Errorf("failed to cascade token deletion: %w", err)
		}
	}
	if err := s.client.Do(ctx, s.client.B().Del().Key(s.tokenIndexKey(clientID)).Build()).Error(); err != nil {
		return fmt.Errorf("failed to delete token index: %w", err)
	}

	s.logger.Debug("Deleted client with cascade",
		"client_id", clientID,
		"codes", len(codes),
		"tokens", len(accesses))
	return nil
}

// ListClients lists all registered clients
func (s *Store) ListClients(ctx context.Context) ([]*storage.Client, error) {
	ids, err := s.client.Do(ctx, s.client.B().Smembers().Key(s.clientsSetKey()).Build()).AsStrSlice()
	if err != nil {
		return nil, fmt.Errorf("failed to list client ids: %w", err)
	}

	out := make([]*storage.Client, 0, len(ids))
	for _, id := range ids {
		client, err := s.GetClient(ctx, id)
		if err != nil {
			if err == storage.ErrClientNotFound {
				continue // index drift, skip
			}
			return nil, err
		}
		out = append(out, client)
	}
	return out, nil
}

// ============================================================
// ScopeStore Implementation
// ============================================================

// SaveScope creates or replaces a scope catalog entry
func (s *Store) SaveScope(ctx context.Context, scope *storage.Scope) error {
	if scope == nil || scope.Name == "" {
		return fmt.Errorf("scope name cannot be empty")
	}

	data, err := json.Marshal(scope)
	if err != nil {
		return fmt.Errorf("failed to marshal scope: %w", err)
	}

	if err := s.client.Do(ctx, s.client.B().Set().Key(s.scopeKey(scope.Name)).Value(string(data)).Build()).Error(); err != nil {
		return fmt.Errorf("failed to save scope: %w", err)
	}
	if err := s.client.Do(ctx, s.client.B().Sadd().Key(s.scopesSetKey()).Member(scope.Name).Build()).Error(); err != nil {
		return fmt.Errorf("failed to index scope: %w", err)
	}
	return nil
}

// GetScope retrieves a scope by name
func (s *Store) GetScope(ctx context.Context, name string) (*storage.Scope, error) {
	var scope storage.Scope
	if err := s.getJSON(ctx, s.scopeKey(name), &scope, storage.ErrScopeNotFound); err != nil {
		return nil, err
	}
	return &scope, nil
}

// ListScopes lists the whole catalog
func (s *Store) ListScopes(ctx context.Context) ([]*storage.Scope, error) {
	names, err := s.client.Do(ctx, s.client.B().Smembers().Key(s.scopesSetKey()).Build()).AsStrSlice()
	if err != nil {
		return nil, fmt.Errorf("failed to list scope names: %w", err)
	}

	out := make([]*storage.Scope, 0, len(names))
	for _, name := range names {
		scope, err := s.GetScope(ctx, name)
		if err != nil {
			if err == storage.ErrScopeNotFound {
				continue
			}
			return nil, err
		}
		out = append(out, scope)
	}
	return out, nil
}

// DefaultScopes lists the names of scopes flagged is_default
func (s *Store) DefaultScopes(ctx context.Context) ([]string, error) {
	scopes, err := s.ListScopes(ctx)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, scope := range scopes {
		if scope.IsDefault {
			out = append(out, scope.Name)
		}
	}
	return out, nil
}

// DeleteScope removes a scope from the catalog
func (s *Store) DeleteScope(ctx context.Context, name string) error {
	deleted, err := s.client.Do(ctx, s.client.B().Del().Key(s.scopeKey(name)).Build()).AsInt64()
	if err != nil {
		return fmt.Errorf("failed to delete scope: %w", err)
	}
	if deleted == 0 {
		return storage.ErrScopeNotFound
	}
	if err := s.client.Do(ctx, s.client.B().Srem().Key(s.scopesSetKey()).Member(name).Build()).Error(); err != nil {
		return fmt.Errorf("failed to unindex scope: %w", err)
	}
	return nil
}

// ============================================================
// BindingStore Implementation
// ============================================================

// SaveBinding persists a provider identity binding
func (s *Store) SaveBinding(ctx context.Context, binding *storage.UserBinding) error {
	if binding == nil || binding.Provider == "" || binding.SubjectID == "" {
		return fmt.Errorf("binding provider and subject cannot be empty")
	}

	data, err := json.Marshal(binding)
	if err != nil {
		return fmt.Errorf("failed to marshal binding: %w", err)
	}

	key := s.bindingKey(binding.Provider, binding.SubjectID)
	if err := s.client.Do(ctx, s.client.B().Set().Key(key).Value(string(data)).Build()).Error(); err != nil {
		return fmt.Errorf("failed to save binding: %w", err)
	}
	return nil
}

// GetBinding retrieves the binding for (provider, subjectID)
func (s *Store) GetBinding(ctx context.Context, provider, subjectID string) (*storage.UserBinding, error) {
	var binding storage.UserBinding
	if err := s.getJSON(ctx, s.bindingKey(provider, subjectID), &binding, storage.ErrBindingNotFound); err != nil {
		return nil, err
	}
	return &binding, nil
}
