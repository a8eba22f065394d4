package security

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSetSecurityHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	SetSecurityHeaders(w, "https://auth.example.com")

	h := w.Header()
	if got := h.Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q", got)
	}
	if got := h.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if !strings.Contains(h.Get("Cache-Control"), "no-store") {
		t.Errorf("Cache-Control %q missing no-store", h.Get("Cache-Control"))
	}
	if got := h.Get("Pragma"); got != "no-cache" {
		t.Errorf("Pragma = %q", got)
	}
	if h.Get("Strict-Transport-Security") == "" {
		t.Error("HSTS missing for an https issuer")
	}
}

func TestSetSecurityHeaders_NoHSTSOverHTTP(t *testing.T) {
	w := httptest.NewRecorder()
	SetSecurityHeaders(w, "http://localhost:8080")

	if got := w.Header().Get("Strict-Transport-Security"); got != "" {
		t.Errorf("HSTS set for a plain-http issuer: %q", got)
	}
}
