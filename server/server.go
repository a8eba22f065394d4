package server

import (
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/skyhhjmk/wind-oauth/directory"
	"github.com/skyhhjmk/wind-oauth/instrumentation"
	"github.com/skyhhjmk/wind-oauth/security"
	"github.com/skyhhjmk/wind-oauth/storage"
)

// Stores bundles the storage interfaces the engine depends on. A single
// backend value (memory.Store, valkey.Store) typically satisfies all of them.
type Stores struct {
	Clients storage.ClientStore
	Codes   storage.CodeStore
	Tokens  storage.TokenStore
	Scopes  storage.ScopeStore
}

// Server implements the OAuth 2.0 authorization-server logic.
// It coordinates grants using the storage backends and a user directory.
type Server struct {
	clients storage.ClientStore
	codes   storage.CodeStore
	tokens  storage.TokenStore
	scopes  storage.ScopeStore
	users   directory.Directory

	Auditor      *security.Auditor
	FloodLimiter *security.FloodLimiter // throttles security-event logging per IP
	Logger       *slog.Logger
	Config       *Config

	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer
}

// New creates a new OAuth server
func New(stores Stores, users directory.Directory, config *Config, logger *slog.Logger) (*Server, error) {
	if stores.Clients == nil {
		return nil, fmt.Errorf("client store is required")
	}
	if stores.Codes == nil {
		return nil, fmt.Errorf("code store is required")
	}
	if stores.Tokens == nil {
		return nil, fmt.Errorf("token store is required")
	}
	if stores.Scopes == nil {
		return nil, fmt.Errorf("scope store is required")
	}
	if users == nil {
		return nil, fmt.Errorf("user directory is required")
	}
	if config == nil {
		config = &Config{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	config = applySecureDefaults(config, logger)

	return &Server{
		clients: stores.Clients,
		codes:   stores.Codes,
		tokens:  stores.Tokens,
		scopes:  stores.Scopes,
		users:   users,
		Config:  config,
		Logger:  logger,
	}, nil
}

// SetAuditor sets the security auditor
func (s *Server) SetAuditor(aud *security.Auditor) {
	s.Auditor = aud
}

// SetFloodLimiter sets the security-event flood limiter
func (s *Server) SetFloodLimiter(fl *security.FloodLimiter) {
	s.FloodLimiter = fl
}

// SetInstrumentation sets OpenTelemetry instrumentation for the engine
func (s *Server) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("server")
	}
}

// Instrumentation returns the configured instrumentation, or nil
func (s *Server) Instrumentation() *instrumentation.Instrumentation {
	return s.instrumentation
}

// metrics returns the metrics holder, or nil when instrumentation is unset
func (s *Server) metrics() *instrumentation.Metrics {
	if s.instrumentation == nil {
		return nil
	}
	return s.instrumentation.Metrics()
}

// auditAllowed reports whether a security event attributed to ip may be
// logged now. Unlimited when no flood limiter is configured.
func (s *Server) auditAllowed(ip string) bool {
	if s.FloodLimiter == nil {
		return true
	}
	return s.FloodLimiter.Allow(ip)
}
