package limiter

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process limiter with the same window/lockout rules as PG.
type Memory struct {
	mu       sync.Mutex
	now      func() time.Time
	window   time.Duration
	maxFails int
	blockFor time.Duration
	entries  map[string]*entry
}

type entry struct {
	fails        int
	blockedUntil time.Time
	updatedAt    time.Time
}

// NewMemory constructs an in-process limiter. A nil clock means time.Now.
func NewMemory(now func() time.Time, window time.Duration, maxFails int, blockFor time.Duration) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{now: now, window: window, maxFails: maxFails, blockFor: blockFor, entries: map[string]*entry{}}
}

func key(email string, ipHash []byte) string { return email + "\x00" + string(ipHash) }

// Allow reports whether (email, ip) is currently unblocked.
func (m *Memory) Allow(_ context.Context, email string, ipHash []byte) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key(email, ipHash)]
	if !ok {
		return true, 0, nil
	}
	if now := m.now(); e.blockedUntil.After(now) {
		return false, e.blockedUntil.Sub(now), nil
	}
	return true, 0, nil
}

// Success forgets (email, ip).
func (m *Memory) Success(_ context.Context, email string, ipHash []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key(email, ipHash))
	return nil
}

// Failure counts a failed attempt and blocks once maxFails is reached within window.
func (m *Memory) Failure(_ context.Context, email string, ipHash []byte) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	k := key(email, ipHash)
	e, ok := m.entries[k]
	if !ok || now.Sub(e.updatedAt) > m.window {
		e = &entry{}
		m.entries[k] = e
	}
	e.fails++
	e.updatedAt = now
	if e.fails >= m.maxFails {
		e.blockedUntil = now.Add(m.blockFor)
		return true, m.blockFor, nil
	}
	return false, 0, nil
}
