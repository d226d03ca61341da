// Package credential provides one-way hashing and verification for account
// passwords and machine secrets, plus the digest scheme used for refresh
// tokens. There is no decode path anywhere in this package.
package credential

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 14

// DummyHash is a pre-computed bcrypt hash used for constant-time login checks
// when the account does not exist, preventing timing-based enumeration.
var DummyHash = func() string {
	h, _ := bcrypt.GenerateFromPassword([]byte("dummy-secret-for-timing"), bcryptCost)
	return string(h)
}()

// HashPassword hashes a password or machine secret using bcrypt.
func HashPassword(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword checks whether a secret matches a bcrypt hash. bcrypt's
// comparison is constant-time with respect to the secret content.
func VerifyPassword(secret, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// HashToken digests an opaque refresh token for storage. Refresh tokens are
// high-entropy random values, so an unsalted SHA-256 digest is sufficient and
// keeps verification cheap enough to run on every refresh.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// VerifyTokenHash compares a presented token against a stored digest in
// constant time.
func VerifyTokenHash(token, hash string) bool {
	computed := HashToken(token)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1
}
