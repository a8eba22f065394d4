package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strconv"
	"time"
)

// Auditor handles security event logging with PII protection.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
}

// NewAuditor creates a new security auditor
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
	}
}

// Event represents a security audit event
type Event struct {
	Type      string
	UserID    int64
	ClientID  string
	IPAddress string
	Details   map[string]any
	Timestamp time.Time
}

// LogEvent logs a security event with hashed PII
func (a *Auditor) LogEvent(event Event) {
	if !a.enabled {
		return
	}

	event.Timestamp = time.Now()

	a.logger.Info("security_audit",
		"event_type", event.Type,
		"user_id_hash", hashUserID(event.UserID),
		"client_id", event.ClientID,
		"ip_address", event.IPAddress,
		"details", event.Details,
		"timestamp", event.Timestamp,
	)
}

// LogCodeIssued logs issuance of an authorization code
func (a *Auditor) LogCodeIssued(userID int64, clientID, ipAddress, scope string) {
	a.LogEvent(Event{
		Type:      "code_issued",
		UserID:    userID,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"scope": scope,
		},
	})
}

// LogTokenIssued logs when a token is issued
func (a *Auditor) LogTokenIssued(userID int64, clientID, ipAddress, scope string) {
	a.LogEvent(Event{
		Type:      "token_issued",
		UserID:    userID,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"scope": scope,
		},
	})
}

// LogTokenRefreshed logs when a token is refreshed
func (a *Auditor) LogTokenRefreshed(userID int64, clientID, ipAddress string) {
	a.LogEvent(Event{
		Type:      "token_refreshed",
		UserID:    userID,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"rotated": true,
		},
	})
}

// LogTokenRevoked logs when a token is revoked
func (a *Auditor) LogTokenRevoked(userID int64, clientID, ipAddress, tokenType string) {
	a.LogEvent(Event{
		Type:      "token_revoked",
		UserID:    userID,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"token_type": tokenType,
		},
	})
}

// LogIntrospection logs a token introspection request
func (a *Auditor) LogIntrospection(clientID, ipAddress string, active bool) {
	a.LogEvent(Event{
		Type:      "introspection",
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"active": active,
		},
	})
}

// LogAuthFailure logs an authentication failure
func (a *Auditor) LogAuthFailure(clientID, ipAddress, reason string) {
	a.LogEvent(Event{
		Type:      "auth_failure",
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogClientCreated logs registration of a new client record
func (a *Auditor) LogClientCreated(clientID, ipAddress string, ownerUserID int64) {
	a.LogEvent(Event{
		Type:      "client_created",
		UserID:    ownerUserID,
		ClientID:  clientID,
		IPAddress: ipAddress,
	})
}

// LogClientDeleted logs deletion of a client and its grants
func (a *Auditor) LogClientDeleted(clientID, ipAddress string) {
	a.LogEvent(Event{
		Type:      "client_deleted",
		ClientID:  clientID,
		IPAddress: ipAddress,
	})
}

// LogSecretUpgraded logs a transparent legacy-secret upgrade
func (a *Auditor) LogSecretUpgraded(clientID string) {
	a.LogEvent(Event{
		Type:     "secret_upgraded",
		ClientID: clientID,
	})
}

// hashUserID creates a SHA256 hash of a user identifier for logging
func hashUserID(userID int64) string {
	if userID == 0 {
		return "<none>"
	}
	hash := sha256.Sum256([]byte(strconv.FormatInt(userID, 10)))
	return hex.EncodeToString(hash[:])[:16]
}
