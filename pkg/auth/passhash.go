package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"

	"golang.org/x/crypto/pbkdf2"
)

// PBKDF2-SHA256 parameters. Fixed iteration count and output length;
// changing them invalidates every stored hash.
const (
	hashIterations = 100000
	hashKeyLen     = 32
	saltLen        = 16
)

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// HashPassword derives the stored hash for password with the given salt.
func HashPassword(password, salt []byte) []byte {
	return pbkdf2.Key(password, salt, hashIterations, hashKeyLen, sha256.New)
}

// VerifyPassword recomputes the hash and compares in constant time.
func VerifyPassword(password, salt, expected []byte) bool {
	got := HashPassword(password, salt)
	return subtle.ConstantTimeCompare(got, expected) == 1
}
