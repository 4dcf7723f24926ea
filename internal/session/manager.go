// Package session owns the client's sign-in state and the bearer token lifecycle.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/and161185/qty-planner/internal/api"
	"github.com/and161185/qty-planner/internal/errs"
	"github.com/and161185/qty-planner/internal/model"
	"github.com/and161185/qty-planner/internal/tokenstore"
)

// DefaultRefreshLead is both the proactive refresh lead and the expiry buffer.
const DefaultRefreshLead = 60 * time.Second

const minRefreshDelay = time.Second

// AuthAPI is the subset of the session endpoints the manager calls.
type AuthAPI interface {
	Login(ctx context.Context, email, password string) (api.LoginResult, error)
	Refresh(ctx context.Context, token string) (api.TokenResult, error)
	Logout(ctx context.Context, token string) error
}

// State is the token lifecycle state.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateRefreshing
)

func (s State) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshing:
		return "refreshing"
	default:
		return "unauthenticated"
	}
}

// Nav is the navigation signal emitted after sign-in and sign-out.
type Nav int

const (
	NavAuthenticated Nav = iota + 1
	NavUnauthenticated
)

// Listener receives navigation signals. It is called without internal locks held.
type Listener func(Nav)

// Result is the outcome of SignIn. It never carries a raw error.
type Result struct {
	Success bool
	Message string
}

// Timer is the cancel handle returned by AfterFunc.
type Timer interface{ Stop() bool }

// AfterFunc schedules f after d; time.AfterFunc by default.
type AfterFunc func(d time.Duration, f func()) Timer

// Manager owns model.Session. All other components read it through accessors.
type Manager struct {
	api       AuthAPI
	store     tokenstore.Store
	log       *zap.Logger
	now       func() time.Time
	afterFunc AfterFunc
	lead      time.Duration
	bgTimeout time.Duration
	fallback  *credentials
	listeners []Listener

	mu       sync.Mutex
	sess     model.Session
	state    State
	gen      uint64 // bumped on every sign-in/sign-out
	timer    Timer
	timerSeq uint64

	sf singleflight.Group
}

type credentials struct{ email, password string }

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

// WithRefreshLead sets how long before expiry a token counts as expired and gets refreshed.
func WithRefreshLead(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.lead = d
		}
	}
}

// WithFallbackCredentials enables the last tier of EnsureValidToken.
func WithFallbackCredentials(email, password string) Option {
	return func(m *Manager) {
		if email != "" && password != "" {
			m.fallback = &credentials{email: email, password: password}
		}
	}
}

// WithListener registers a navigation listener.
func WithListener(l Listener) Option { return func(m *Manager) { m.listeners = append(m.listeners, l) } }

// WithAfterFunc replaces the timer implementation (tests).
func WithAfterFunc(f AfterFunc) Option { return func(m *Manager) { m.afterFunc = f } }

// WithBackgroundTimeout bounds refresh calls and the sign-out started by the refresh timer.
func WithBackgroundTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.bgTimeout = d
		}
	}
}

// NewManager constructs an empty (unauthenticated) session manager.
func NewManager(a AuthAPI, store tokenstore.Store, log *zap.Logger, opts ...Option) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{
		api:       a,
		store:     store,
		log:       log,
		now:       time.Now,
		afterFunc: func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) },
		lead:      DefaultRefreshLead,
		bgTimeout: 30 * time.Second,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Restore loads a persisted token at process start. An unreadable store means signed out.
// A record inside the expiry buffer is refreshed before the session counts as signed in;
// if that refresh is rejected the record is cleared.
func (m *Manager) Restore(ctx context.Context) State {
	rec, err := m.store.Load()
	if err != nil {
		if !errors.Is(err, errs.ErrNoToken) {
			m.log.Warn("token store unreadable, treating as signed out", zap.Error(err))
		}
		return m.State()
	}
	var user *model.UserIdentity
	if is, ok := m.store.(tokenstore.IdentityStore); ok {
		if u, err := is.LoadIdentity(); err == nil {
			user = &u
		}
	}

	m.mu.Lock()
	m.gen++
	m.sess = model.Session{User: user, Token: rec.Token, ExpiresAt: rec.ExpiresAt}
	m.state = StateAuthenticated
	expired := m.expiredLocked()
	if !expired {
		m.scheduleLocked()
	}
	m.mu.Unlock()

	if expired {
		m.log.Debug("restored token expired, refreshing", zap.Time("expires_at", rec.ExpiresAt))
		if err := m.Refresh(ctx); err != nil {
			if ctx.Err() != nil || errors.Is(err, errs.ErrSessionChanged) {
				return m.State()
			}
			m.log.Info("restored token rejected, signing out", zap.Error(err))
			m.SignOut(ctx)
			return StateUnauthenticated
		}
	}

	m.log.Debug("session restored", zap.Time("expires_at", m.Snapshot().ExpiresAt))
	m.notify(NavAuthenticated)
	return StateAuthenticated
}

// SignIn authenticates with email/password. Failures leave the session untouched.
func (m *Manager) SignIn(ctx context.Context, email, password string) Result {
	res, err := m.api.Login(ctx, email, password)
	if err != nil {
		m.log.Warn("sign in failed", zap.String("email", email), zap.Error(err))
		return Result{Message: errs.UserMessage(err)}
	}

	m.mu.Lock()
	m.gen++
	user := res.User
	m.sess.User = &user
	m.installTokenLocked(res.AccessToken, res.ExpiresIn)
	if is, ok := m.store.(tokenstore.IdentityStore); ok {
		if err := is.SaveIdentity(user); err != nil {
			m.log.Warn("persist identity", zap.Error(err))
		}
	}
	m.mu.Unlock()

	m.log.Info("signed in", zap.String("user_id", user.ID))
	m.notify(NavAuthenticated)
	return Result{Success: true}
}

// SignOut best-effort notifies the server, then always clears local state.
func (m *Manager) SignOut(ctx context.Context) {
	m.mu.Lock()
	token := m.sess.Token
	m.mu.Unlock()

	if token != "" {
		if err := m.api.Logout(ctx, token); err != nil {
			m.log.Debug("logout call failed (ignored)", zap.Error(err))
		}
	}

	m.mu.Lock()
	m.stopTimerLocked()
	m.sess = model.Session{}
	m.state = StateUnauthenticated
	m.gen++
	clearErr := m.store.Clear()
	m.mu.Unlock()

	if clearErr != nil {
		m.log.Warn("clear token store", zap.Error(clearErr))
	}
	m.log.Info("signed out")
	m.notify(NavUnauthenticated)
}

// Refresh replaces the current token. Concurrent callers share one in-flight call,
// which runs detached from any single caller's cancellation and is bounded by the
// background timeout. A cancelled caller stops waiting without failing the others.
// On failure the caller decides whether to sign out.
func (m *Manager) Refresh(ctx context.Context) error {
	ch := m.sf.DoChan("refresh", func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.bgTimeout)
		defer cancel()
		return nil, m.refresh(rctx)
	})
	select {
	case r := <-ch:
		return r.Err
	case <-ctx.Done():
		return fmt.Errorf("refresh: %w", ctx.Err())
	}
}

func (m *Manager) refresh(ctx context.Context) error {
	m.mu.Lock()
	token, gen, prev := m.sess.Token, m.gen, m.state
	if token == "" {
		m.mu.Unlock()
		return errs.ErrNoToken
	}
	m.state = StateRefreshing
	m.mu.Unlock()

	res, err := m.api.Refresh(ctx, token)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		return errs.ErrSessionChanged
	}
	if err != nil {
		m.state = prev
		return fmt.Errorf("refresh: %w", err)
	}
	m.installTokenLocked(res.AccessToken, res.ExpiresIn)
	m.log.Debug("token refreshed", zap.Time("expires_at", m.sess.ExpiresAt))
	return nil
}

// EnsureValidToken returns a usable token: the current one if fresh, else a refreshed one,
// else one from signing in with the fallback credentials.
func (m *Manager) EnsureValidToken(ctx context.Context) (string, error) {
	if tok, fresh := m.AccessToken(); tok != "" && fresh {
		return tok, nil
	} else if tok != "" {
		err := m.Refresh(ctx)
		if err == nil {
			tok, _ := m.AccessToken()
			return tok, nil
		}
		if ctx.Err() != nil {
			return "", err
		}
		m.log.Info("refresh failed, trying fallback sign-in", zap.Error(err))
	}

	if m.fallback == nil {
		if m.Snapshot().Authenticated() {
			m.SignOut(ctx)
		}
		return "", fmt.Errorf("%w: no valid token", errs.ErrUnauthorized)
	}
	if res := m.SignIn(ctx, m.fallback.email, m.fallback.password); !res.Success {
		if m.Snapshot().Authenticated() {
			m.SignOut(ctx)
		}
		return "", fmt.Errorf("%w: fallback sign-in: %s", errs.ErrUnauthorized, res.Message)
	}
	tok, _ := m.AccessToken()
	return tok, nil
}

// AccessToken returns the current token and whether it is outside the expiry buffer.
func (m *Manager) AccessToken() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess.Token, m.sess.Token != "" && !m.expiredLocked()
}

// Snapshot returns a copy of the session.
func (m *Manager) Snapshot() model.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sess
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}

// User returns the signed-in identity, or nil.
func (m *Manager) User() *model.UserIdentity { return m.Snapshot().User }

// State reports the lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Close stops the refresh timer without touching the session.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopTimerLocked()
}

func (m *Manager) expiredLocked() bool {
	exp := m.sess.ExpiresAt
	return exp.IsZero() || !m.now().Before(exp.Add(-m.lead))
}

// installTokenLocked persists the token, updates the session and reschedules the refresh timer.
// A storage failure is logged; the in-memory session still works for this process.
func (m *Manager) installTokenLocked(token string, expiresIn int) {
	rec, err := m.store.Save(token, expiresIn)
	if err != nil {
		m.log.Warn("persist token", zap.Error(err))
		rec = tokenstore.Record{Token: token, ExpiresAt: tokenstore.ExpiresAt(m.now(), expiresIn)}
	}
	m.sess.Token = rec.Token
	m.sess.ExpiresAt = rec.ExpiresAt
	m.state = StateAuthenticated
	m.scheduleLocked()
}

func (m *Manager) scheduleLocked() {
	m.stopTimerLocked()
	delay := m.sess.ExpiresAt.Sub(m.now()) - m.lead
	if delay < minRefreshDelay {
		delay = minRefreshDelay
	}
	seq := m.timerSeq
	m.timer = m.afterFunc(delay, func() { m.onRefreshTimer(seq) })
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.timerSeq++
}

func (m *Manager) onRefreshTimer(seq uint64) {
	m.mu.Lock()
	if seq != m.timerSeq || m.sess.Token == "" {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.bgTimeout)
	defer cancel()
	err := m.Refresh(ctx)
	switch {
	case err == nil:
	case errors.Is(err, errs.ErrSessionChanged):
	default:
		m.log.Warn("scheduled token refresh failed, signing out", zap.Error(err))
		m.SignOut(ctx)
	}
}

func (m *Manager) notify(n Nav) {
	for _, l := range m.listeners {
		l(n)
	}
}
