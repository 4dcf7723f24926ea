package revocation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	sets   map[string]time.Duration
	err    error
	pinged bool
}

func (f *fakeRedis) Ping(context.Context) *redis.StatusCmd {
	f.pinged = true
	return redis.NewStatusResult("PONG", f.err)
}

func (f *fakeRedis) Set(_ context.Context, key string, _ any, ttl time.Duration) *redis.StatusCmd {
	if f.err == nil {
		f.sets[key] = ttl
	}
	return redis.NewStatusResult("OK", f.err)
}

func (f *fakeRedis) Exists(_ context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := f.sets[k]; ok {
			n++
		}
	}
	return redis.NewIntResult(n, f.err)
}

var (
	_ Store = (*Redis)(nil)
	_ Store = (*Memory)(nil)
)

func TestRedis_RevokeAndCheck(t *testing.T) {
	now := time.Date(2025, 9, 24, 8, 0, 0, 0, time.UTC)
	fr := &fakeRedis{sets: map[string]time.Duration{}}
	r := newRedisWith(fr, func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, r.Revoke(ctx, "jti-1", now.Add(10*time.Minute)))
	require.Equal(t, 10*time.Minute, fr.sets[keyPrefix+"jti-1"])

	ok, err := r.Revoked(ctx, "jti-1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = r.Revoked(ctx, "jti-2")
	require.NoError(t, err)
	require.False(t, ok)

	// already expired tokens need no entry
	require.NoError(t, r.Revoke(ctx, "jti-3", now.Add(-time.Second)))
	require.NotContains(t, fr.sets, keyPrefix+"jti-3")

	require.NoError(t, r.Ping(ctx))
	require.True(t, fr.pinged)
}

func TestRedis_Errors(t *testing.T) {
	boom := errors.New("connection refused")
	r := newRedisWith(&fakeRedis{sets: map[string]time.Duration{}, err: boom}, time.Now)

	require.ErrorIs(t, r.Revoke(context.Background(), "j", time.Now().Add(time.Minute)), boom)
	_, err := r.Revoked(context.Background(), "j")
	require.ErrorIs(t, err, boom)
}

func TestNewRedis_BadURL(t *testing.T) {
	_, err := NewRedis(context.Background(), "")
	require.Error(t, err)
	_, err = NewRedis(context.Background(), "http://not-redis")
	require.Error(t, err)
}

func TestMemory_ExpiresEntries(t *testing.T) {
	now := time.Date(2025, 9, 24, 8, 0, 0, 0, time.UTC)
	m := NewMemory(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, m.Revoke(ctx, "a", now.Add(time.Minute)))
	ok, _ := m.Revoked(ctx, "a")
	require.True(t, ok)

	now = now.Add(2 * time.Minute)
	ok, _ = m.Revoked(ctx, "a")
	require.False(t, ok)
}
