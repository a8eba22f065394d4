// Package security provides the security primitives used by the wind-oauth
// engine: client secret hashing and verification, audit logging with PII
// protection, rate limiting for security-event log flood control, secure
// response headers, clock-skew-tolerant expiry checks, client IP extraction,
// and token encryption at rest.
package security
