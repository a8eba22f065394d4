package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/skyhhjmk/wind-oauth/security"
	"github.com/skyhhjmk/wind-oauth/storage"
)

// AuthenticateClient verifies confidential client credentials.
//
// Unknown client, disabled client, and bad secret all fail with
// ErrInvalidClient, and each path performs a bcrypt comparison so response
// timing does not reveal which condition was hit.
//
// When a legacy plaintext secret matches, the stored value is upgraded to a
// bcrypt hash best-effort in the background; persistence failure never fails
// the authentication itself.
func (s *Server) AuthenticateClient(ctx context.Context, clientID, clientSecret, ip string) (*storage.Client, error) {
	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("%w: missing credentials", ErrInvalidClient)
	}

	client, err := s.clients.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, storage.ErrClientNotFound) {
			security.VerifyAgainstDummy(clientSecret)
			s.logAuthFailure(ctx, clientID, ip, "unknown_client")
			return nil, fmt.Errorf("%w: authentication failed", ErrInvalidClient)
		}
		return nil, fmt.Errorf("%w: client lookup: %v", ErrServerError, err)
	}

	if client.Status != storage.ClientEnabled {
		security.VerifyAgainstDummy(clientSecret)
		s.logAuthFailure(ctx, clientID, ip, "client_disabled")
		return nil, fmt.Errorf("%w: authentication failed", ErrInvalidClient)
	}

	ok, upgradedHash := security.VerifySecret(client.SecretHash, clientSecret)
	if !ok {
		s.logAuthFailure(ctx, clientID, ip, "bad_secret")
		return nil, fmt.Errorf("%w: authentication failed", ErrInvalidClient)
	}

	if upgradedHash != "" {
		s.upgradeSecretAsync(client.ClientID, upgradedHash)
	}

	return client, nil
}

// upgradeSecretAsync persists a legacy-secret upgrade without blocking the
// request. Uses a fresh context: the upgrade should proceed even if the
// triggering request is cancelled.
func (s *Server) upgradeSecretAsync(clientID, hash string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.clients.UpdateClientSecretHash(ctx, clientID, hash); err != nil {
			s.Logger.Warn("Failed to persist legacy secret upgrade",
				"client_id", clientID,
				"error", err)
			return
		}

		s.Logger.Info("Upgraded legacy client secret to hash", "client_id", clientID)
		if s.Auditor != nil {
			s.Auditor.LogSecretUpgraded(clientID)
		}
		if m := s.metrics(); m != nil {
			m.RecordSecretUpgrade(ctx)
		}
	}()
}

func (s *Server) logAuthFailure(ctx context.Context, clientID, ip, reason string) {
	if s.auditAllowed(ip) {
		s.Logger.Warn("Client authentication failed",
			"client_id", clientID,
			"ip", ip,
			"reason", reason)
		if s.Auditor != nil {
			s.Auditor.LogAuthFailure(clientID, ip, reason)
		}
	}
	if m := s.metrics(); m != nil {
		m.RecordAuthFailure(ctx, reason)
	}
}

// GetEnabledClient looks up a client by public identifier without verifying
// credentials. Used where only the client's registration matters, such as
// validating an authorization request before the user has approved anything.
// Disabled and unknown clients are indistinguishable to the caller.
func (s *Server) GetEnabledClient(ctx context.Context, clientID string) (*storage.Client, error) {
	if clientID == "" {
		return nil, fmt.Errorf("%w: missing client_id", ErrInvalidRequest)
	}

	client, err := s.clients.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, storage.ErrClientNotFound) {
			return nil, fmt.Errorf("%w: unknown client", ErrInvalidClient)
		}
		return nil, fmt.Errorf("%w: client lookup: %v", ErrServerError, err)
	}
	if client.Status != storage.ClientEnabled {
		return nil, fmt.Errorf("%w: unknown client", ErrInvalidClient)
	}
	return client, nil
}

// ============================================================
// Client administration
// ============================================================

// ClientRegistration carries the administrator-supplied fields for a new
// client.
type ClientRegistration struct {
	OwnerUserID            int64
	Name                   string
	RedirectURI            string
	RedirectDynamicEnabled bool
	RedirectWhitelist      []string
	GrantTypes             []string
	Scopes                 []string
}

// CreateClient registers a new client. The returned secret is plaintext and
// shown exactly once; only its bcrypt hash is stored.
func (s *Server) CreateClient(ctx context.Context, reg ClientRegistration) (*storage.Client, string, error) {
	if reg.Name == "" {
		return nil, "", fmt.Errorf("%w: client name is required", ErrInvalidRequest)
	}
	if reg.RedirectURI == "" {
		return nil, "", fmt.Errorf("%w: redirect_uri is required", ErrInvalidRequest)
	}

	clientID, secret, err := NewClientCredentials()
	if err != nil {
		return nil, "", fmt.Errorf("%w: credential generation: %v", ErrServerError, err)
	}
	hash, err := security.HashSecret(secret)
	if err != nil {
		return nil, "", fmt.Errorf("%w: secret hashing: %v", ErrServerError, err)
	}

	now := time.Now()
	client := &storage.Client{
		OwnerUserID:            reg.OwnerUserID,
		Name:                   reg.Name,
		ClientID:               clientID,
		SecretHash:             hash,
		RedirectURI:            reg.RedirectURI,
		RedirectDynamicEnabled: reg.RedirectDynamicEnabled,
		RedirectWhitelist:      reg.RedirectWhitelist,
		GrantTypes:             reg.GrantTypes,
		Scopes:                 reg.Scopes,
		Status:                 storage.ClientEnabled,
		CreatedAt:              now,
		UpdatedAt:              now,
	}

	if err := s.clients.SaveClient(ctx, client); err != nil {
		return nil, "", fmt.Errorf("%w: client save: %v", ErrServerError, err)
	}

	s.Logger.Info("Created client",
		"client_id", clientID,
		"name", reg.Name,
		"owner_user_id", reg.OwnerUserID)
	if s.Auditor != nil {
		s.Auditor.LogClientCreated(clientID, "", reg.OwnerUserID)
	}
	if m := s.metrics(); m != nil {
		m.RecordClientCreated(ctx)
	}

	return client, secret, nil
}

// ClientUpdate carries the mutable client fields for an admin update.
// Nil pointers leave the corresponding field unchanged.
type ClientUpdate struct {
	Name                   *string
	RedirectURI            *string
	RedirectDynamicEnabled *bool
	RedirectWhitelist      []string
	GrantTypes             []string
	Scopes                 []string
	Status                 *storage.ClientStatus
}

// UpdateClient applies an admin update to an existing client.
func (s *Server) UpdateClient(ctx context.Context, clientID string, update ClientUpdate) (*storage.Client, error) {
	client, err := s.clients.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, storage.ErrClientNotFound) {
			return nil, fmt.Errorf("%w: unknown client", ErrInvalidRequest)
		}
		return nil, fmt.Errorf("%w: client lookup: %v", ErrServerError, err)
	}

	if update.Name != nil {
		client.Name = *update.Name
	}
	if update.RedirectURI != nil {
		client.RedirectURI = *update.RedirectURI
	}
	if update.RedirectDynamicEnabled != nil {
		client.RedirectDynamicEnabled = *update.RedirectDynamicEnabled
	}
	if update.RedirectWhitelist != nil {
		client.RedirectWhitelist = update.RedirectWhitelist
	}
	if update.GrantTypes != nil {
		client.GrantTypes = update.GrantTypes
	}
	if update.Scopes != nil {
		client.Scopes = update.Scopes
	}
	if update.Status != nil {
		client.Status = *update.Status
	}
	client.UpdatedAt = time.Now()

	if err := s.clients.SaveClient(ctx, client); err != nil {
		return nil, fmt.Errorf("%w: client save: %v", ErrServerError, err)
	}
	return client, nil
}

// DeleteClient removes a client. The storage layer cascades to the client's
// codes and tokens.
func (s *Server) DeleteClient(ctx context.Context, clientID, ip string) error {
	if err := s.clients.DeleteClient(ctx, clientID); err != nil {
		if errors.Is(err, storage.ErrClientNotFound) {
			return fmt.Errorf("%w: unknown client", ErrInvalidRequest)
		}
		return fmt.Errorf("%w: client delete: %v", ErrServerError, err)
	}

	s.Logger.Info("Deleted client", "client_id", clientID)
	if s.Auditor != nil {
		s.Auditor.LogClientDeleted(clientID, ip)
	}
	return nil
}

// ResetClientSecret replaces a client's secret with a freshly generated one.
// The new plaintext secret is returned exactly once.
func (s *Server) ResetClientSecret(ctx context.Context, clientID string) (string, error) {
	if _, err := s.clients.GetClient(ctx, clientID); err != nil {
		if errors.Is(err, storage.ErrClientNotFound) {
			return "", fmt.Errorf("%w: unknown client", ErrInvalidRequest)
		}
		return "", fmt.Errorf("%w: client lookup: %v", ErrServerError, err)
	}

	secret, err := randomHex(tokenByteLength)
	if err != nil {
		return "", fmt.Errorf("%w: secret generation: %v", ErrServerError, err)
	}
	hash, err := security.HashSecret(secret)
	if err != nil {
		return "", fmt.Errorf("%w: secret hashing: %v", ErrServerError, err)
	}
	if err := s.clients.UpdateClientSecretHash(ctx, clientID, hash); err != nil {
		return "", fmt.Errorf("%w: secret update: %v", ErrServerError, err)
	}

	s.Logger.Info("Reset client secret", "client_id", clientID)
	return secret, nil
}

// ListClients lists all registered clients for administration.
func (s *Server) ListClients(ctx context.Context) ([]*storage.Client, error) {
	clients, err := s.clients.ListClients(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: client list: %v", ErrServerError, err)
	}
	return clients, nil
}
