package security

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// bcryptPrefixes are the modular-crypt prefixes recognized as bcrypt hashes.
// Records from older deployments may carry $2y$ hashes (PHP password_hash).
var bcryptPrefixes = []string{"$2a$", "$2b$", "$2y$"}

// dummySecretHash is a bcrypt hash compared against when no real hash is
// available, so that verification cost does not reveal whether a client
// exists. It is generated once per process from random bytes, so it can
// never match a candidate secret. Cost must stay at DefaultCost to match
// the cost of real client hashes.
var dummySecretHash = func() string {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("security: cannot seed dummy hash: %v", err))
	}
	hash, err := bcrypt.GenerateFromPassword(buf, bcrypt.DefaultCost)
	if err != nil {
		panic(fmt.Sprintf("security: cannot generate dummy hash: %v", err))
	}
	return string(hash)
}()

// IsHashedSecret reports whether stored carries a recognized hash-format
// prefix, as opposed to a legacy plaintext secret.
func IsHashedSecret(stored string) bool {
	for _, p := range bcryptPrefixes {
		if strings.HasPrefix(stored, p) {
			return true
		}
	}
	return false
}

// HashSecret computes a bcrypt hash of the given secret at the default cost.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash secret: %w", err)
	}
	return string(hash), nil
}

// VerifySecret checks candidate against a stored client secret.
//
// When stored is a recognized bcrypt hash, standard bcrypt verification is
// used (constant-time by design). Otherwise the stored value is treated as a
// legacy plaintext secret and compared in constant time; on a successful
// legacy match, a freshly computed bcrypt hash of candidate is returned in
// upgradedHash so the caller can persist it best-effort. Failure to persist
// the upgrade must never fail the verification itself.
//
// No side effect occurs on failed verification; upgradedHash is empty unless
// a legacy secret matched.
func VerifySecret(stored, candidate string) (ok bool, upgradedHash string) {
	if IsHashedSecret(stored) {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(candidate)) == nil, ""
	}

	// Legacy plaintext record. Burn a bcrypt comparison first so the
	// legacy path costs the same as the hashed path, then compare the
	// stored value in constant time.
	_ = bcrypt.CompareHashAndPassword([]byte(dummySecretHash), []byte(candidate))
	if subtle.ConstantTimeCompare([]byte(stored), []byte(candidate)) != 1 {
		return false, ""
	}

	hash, err := HashSecret(candidate)
	if err != nil {
		// The match stands; only the upgrade is lost.
		return true, ""
	}
	return true, hash
}

// VerifyAgainstDummy performs a bcrypt comparison against the dummy hash.
// Callers use it to equalize timing when the client record does not exist,
// so "unknown client" and "bad secret" are indistinguishable to the caller.
func VerifyAgainstDummy(candidate string) {
	_ = bcrypt.CompareHashAndPassword([]byte(dummySecretHash), []byte(candidate))
}
