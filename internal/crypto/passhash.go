// Package crypto hashes and verifies account passwords on the server.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"

	"golang.org/x/crypto/argon2"
)

// SaltLen is the per-user salt size.
const SaltLen = 16

// Params are the Argon2id cost settings.
type Params struct {
	Time      uint32
	MemoryKiB uint32
	Threads   uint8
	KeyLen    uint32
}

// Default is used for every stored password.
var Default = Params{Time: 3, MemoryKiB: 64 * 1024, Threads: 1, KeyLen: 32}

// dummySalt feeds BurnPassword so unknown accounts cost the same as known ones.
var dummySalt = make([]byte, SaltLen)

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// Hash derives the Argon2id key of password under salt.
func (p Params) Hash(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, p.Time, p.MemoryKiB, p.Threads, p.KeyLen)
}

// New generates a fresh salt and returns (hash, salt).
func (p Params) New(password []byte) ([]byte, []byte, error) {
	if len(password) == 0 {
		return nil, nil, errors.New("empty password")
	}
	salt, err := RandBytes(SaltLen)
	if err != nil {
		return nil, nil, err
	}
	return p.Hash(password, salt), salt, nil
}

// Verify compares in constant time. Empty salt or hash never verifies.
func (p Params) Verify(password, salt, expected []byte) bool {
	if len(salt) == 0 || len(expected) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(p.Hash(password, salt), expected) == 1
}

// NewPasswordHash hashes password with Default params.
func NewPasswordHash(password []byte) ([]byte, []byte, error) { return Default.New(password) }

// HashPassword hashes password under salt with Default params.
func HashPassword(password, salt []byte) []byte { return Default.Hash(password, salt) }

// VerifyPassword checks password against a Default-params hash.
func VerifyPassword(password, salt, expected []byte) bool {
	return Default.Verify(password, salt, expected)
}

// BurnPassword spends one hash worth of work and discards it.
func BurnPassword(password []byte) { _ = Default.Hash(password, dummySalt) }
