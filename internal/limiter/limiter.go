// Package limiter throttles failed sign-in attempts per (email, client IP).
package limiter

import (
	"context"
	"crypto/sha256"
	"strings"
	"time"
)

// Limiter controls login attempts and temporary lockouts.
type Limiter interface {
	// Allow reports whether login is currently allowed and the remaining block.
	Allow(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error)
	// Success resets counters after a successful login.
	Success(ctx context.Context, email string, ipHash []byte) error
	// Failure records a failed attempt; may place a temporary block.
	Failure(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error)
}

// Defaults used by qp-server.
const (
	DefaultWindow   = 15 * time.Minute
	DefaultMaxFails = 5
	DefaultBlockFor = 15 * time.Minute
)

// HashIP returns a stable hash for an IP string to avoid storing raw addresses.
func HashIP(ip string) []byte {
	h := sha256.Sum256([]byte(ip))
	return h[:]
}

// NormalizeEmail lowercases and trims so counters do not split on case.
func NormalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }
