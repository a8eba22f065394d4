package security

import (
	"bytes"
	"testing"
)

func TestEncryptor_RoundTrip(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	enc, err := NewEncryptor(key)
	if err != nil {
		t.Fatalf("failed to create encryptor: %v", err)
	}
	if !enc.IsEnabled() {
		t.Fatal("encryptor with a key should be enabled")
	}

	plaintext := []byte(`{"client_id":"client_abc","user_id":100}`)
	sealed, err := enc.Seal(plaintext)
	if err != nil {
		t.Fatalf("failed to seal: %v", err)
	}
	if bytes.Equal(sealed, plaintext) {
		t.Fatal("sealed payload equals the plaintext")
	}

	opened, err := enc.Open(sealed)
	if err != nil {
		t.Fatalf("failed to open: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Fatalf("round trip mismatch: got %q", opened)
	}
}

func TestEncryptor_TamperDetected(t *testing.T) {
	key, _ := GenerateKey()
	enc, err := NewEncryptor(key)
	if err != nil {
		t.Fatalf("failed to create encryptor: %v", err)
	}

	sealed, err := enc.Seal([]byte("payload"))
	if err != nil {
		t.Fatalf("failed to seal: %v", err)
	}

	sealed[len(sealed)-1] ^= 0x01
	if _, err := enc.Open(sealed); err == nil {
		t.Fatal("tampered ciphertext opened without error")
	}

	if _, err := enc.Open([]byte("short")); err == nil {
		t.Fatal("truncated ciphertext opened without error")
	}
}

func TestEncryptor_Disabled(t *testing.T) {
	enc, err := NewEncryptor(nil)
	if err != nil {
		t.Fatalf("failed to create encryptor: %v", err)
	}
	if enc.IsEnabled() {
		t.Fatal("keyless encryptor should be disabled")
	}

	payload := []byte("as-is")
	sealed, err := enc.Seal(payload)
	if err != nil {
		t.Fatalf("failed to seal: %v", err)
	}
	if !bytes.Equal(sealed, payload) {
		t.Fatal("disabled encryptor must pass payloads through")
	}
	opened, err := enc.Open(sealed)
	if err != nil {
		t.Fatalf("failed to open: %v", err)
	}
	if !bytes.Equal(opened, payload) {
		t.Fatal("disabled encryptor must pass payloads through")
	}
}

func TestNewEncryptor_RejectsBadKey(t *testing.T) {
	if _, err := NewEncryptor(make([]byte, 16)); err == nil {
		t.Fatal("expected error for a 16-byte key")
	}
}

func TestKeyBase64RoundTrip(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	decoded, err := KeyFromBase64(KeyToBase64(key))
	if err != nil {
		t.Fatalf("failed to decode key: %v", err)
	}
	if !bytes.Equal(decoded, key) {
		t.Fatal("key round trip mismatch")
	}

	if _, err := KeyFromBase64("not base64!!"); err == nil {
		t.Fatal("expected error for invalid base64")
	}
	if _, err := KeyFromBase64(KeyToBase64(make([]byte, 8))); err == nil {
		t.Fatal("expected error for a short key")
	}
}
