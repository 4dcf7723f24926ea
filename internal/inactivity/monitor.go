// Package inactivity signs the user out after a period without foreground activity.
package inactivity

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout is the idle window before a forced sign-out.
const DefaultTimeout = 60 * time.Minute

// AppState mirrors the host application's lifecycle states.
type AppState int

const (
	AppActive AppState = iota
	AppBackground
	AppInactive
)

// SignOuter is the session operation fired on expiry.
type SignOuter interface {
	SignOut(ctx context.Context)
}

// Timer is the cancel handle returned by AfterFunc.
type Timer interface{ Stop() bool }

// AfterFunc schedules f after d.
type AfterFunc func(d time.Duration, f func()) Timer

// Monitor keeps exactly one pending sign-out timer.
type Monitor struct {
	sess      SignOuter
	timeout   time.Duration
	log       *zap.Logger
	afterFunc AfterFunc

	mu      sync.Mutex
	timer   Timer
	gen     uint64
	running bool
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithAfterFunc replaces time.AfterFunc (tests).
func WithAfterFunc(f AfterFunc) Option { return func(m *Monitor) { m.afterFunc = f } }

// New returns a stopped monitor. timeout <= 0 uses DefaultTimeout.
func New(sess SignOuter, timeout time.Duration, log *zap.Logger, opts ...Option) *Monitor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	m := &Monitor{
		sess:      sess,
		timeout:   timeout,
		log:       log,
		afterFunc: func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) },
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Start arms the timer as if the app just came to the foreground.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = true
	m.armLocked()
}

// Foreground cancels the pending timer and arms a new one.
func (m *Monitor) Foreground() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.armLocked()
}

// HandleAppState re-arms on AppActive. Backgrounding does not pause the countdown.
func (m *Monitor) HandleAppState(s AppState) {
	if s == AppActive {
		m.Foreground()
	}
}

// Stop cancels the pending timer.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
	m.cancelLocked()
}

func (m *Monitor) armLocked() {
	m.cancelLocked()
	gen := m.gen
	m.timer = m.afterFunc(m.timeout, func() { m.fire(gen) })
}

func (m *Monitor) cancelLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.gen++
}

func (m *Monitor) fire(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || !m.running {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	m.running = false
	m.mu.Unlock()

	m.log.Info("inactivity timeout reached, signing out", zap.Duration("timeout", m.timeout))
	m.sess.SignOut(context.Background())
}
