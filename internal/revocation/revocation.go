// Package revocation keeps a denylist of signed-out token IDs until the tokens expire.
package revocation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store records revoked token IDs (jti).
type Store interface {
	// Revoke denylists jti until the token's own expiry.
	Revoke(ctx context.Context, jti string, until time.Time) error
	// Revoked reports whether jti is denylisted.
	Revoked(ctx context.Context, jti string) (bool, error)
}

const keyPrefix = "qp:revoked:"

type cmdable interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Set(ctx context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
}

// Redis stores revocations as keys expiring with the token.
type Redis struct {
	store cmdable
	now   func() time.Time
}

// NewRedis connects to url (redis://...) and verifies connectivity.
func NewRedis(ctx context.Context, url string) (*Redis, error) {
	if url == "" {
		return nil, errors.New("redis url is required")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Redis{store: raw, now: time.Now}, nil
}

func newRedisWith(c cmdable, now func() time.Time) *Redis { return &Redis{store: c, now: now} }

func (r *Redis) Revoke(ctx context.Context, jti string, until time.Time) error {
	ttl := until.Sub(r.now())
	if jti == "" || ttl <= 0 {
		return nil
	}
	return r.store.Set(ctx, keyPrefix+jti, 1, ttl).Err()
}

func (r *Redis) Revoked(ctx context.Context, jti string) (bool, error) {
	n, err := r.store.Exists(ctx, keyPrefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error { return r.store.Ping(ctx).Err() }

// Memory is an in-process Store for single-instance servers and tests.
type Memory struct {
	mu      sync.Mutex
	now     func() time.Time
	revoked map[string]time.Time
}

// NewMemory returns an empty denylist. A nil clock means time.Now.
func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{now: now, revoked: map[string]time.Time{}}
}

func (m *Memory) Revoke(_ context.Context, jti string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if jti == "" || !until.After(m.now()) {
		return nil
	}
	m.revoked[jti] = until
	return nil
}

func (m *Memory) Revoked(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	until, ok := m.revoked[jti]
	if !ok {
		return false, nil
	}
	if !until.After(m.now()) {
		delete(m.revoked, jti)
		return false, nil
	}
	return true, nil
}
