// Package auth implements the credential primitives: salted password
// digests and signed bearer tokens.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/pbkdf2"
)

// SaltLength is the number of random bytes in a freshly generated salt.
const SaltLength = 32

// hashIterations is the PBKDF2 work factor. Changing it invalidates
// every stored digest, so it is fixed.
const hashIterations = 64_000

const digestLength = 32

// ErrInvalidInput is returned when a caller violates the hashing
// contract, e.g. an empty password or a non-positive salt length.
var ErrInvalidInput = errors.New("invalid hashing input")

// GenerateSalt returns length bytes from a cryptographically secure
// random source, base64-encoded.
func GenerateSalt(length int) (string, error) {
	if length < 1 {
		return "", ErrInvalidInput
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawStdEncoding.EncodeToString(buf), nil
}

// HashPassword derives a deterministic one-way digest of
// (password, salt) and returns it hex-encoded. Identical inputs always
// produce identical output.
func HashPassword(password, salt string) (string, error) {
	if password == "" || salt == "" {
		return "", ErrInvalidInput
	}
	digest := pbkdf2.Key([]byte(password), []byte(salt), hashIterations, digestLength, sha256.New)
	return hex.EncodeToString(digest), nil
}

// VerifyPassword recomputes the digest for (password, salt) and
// compares it against the stored digest in constant time.
func VerifyPassword(password, salt, storedDigest string) bool {
	digest, err := HashPassword(password, salt)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(digest), []byte(storedDigest)) == 1
}
