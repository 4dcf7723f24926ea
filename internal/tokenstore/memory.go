package tokenstore

import (
	"sync"
	"time"

	"github.com/and161185/qty-planner/internal/errs"
	"github.com/and161185/qty-planner/internal/model"
)

// Memory is an in-process Store for tests and throwaway sessions.
type Memory struct {
	mu    sync.Mutex
	now   func() time.Time
	rec   *Record
	ident *model.UserIdentity
}

var (
	_ Store         = (*Memory)(nil)
	_ IdentityStore = (*Memory)(nil)
)

// NewMemory returns an empty store. A nil clock means time.Now.
func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{now: now}
}

func (m *Memory) Save(token string, expiresIn int) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := Record{Token: token, ExpiresAt: ExpiresAt(m.now(), expiresIn)}
	m.rec = &rec
	return rec, nil
}

func (m *Memory) Load() (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rec == nil {
		return Record{}, errs.ErrNoToken
	}
	return *m.rec, nil
}

func (m *Memory) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rec, m.ident = nil, nil
	return nil
}

// Put stores a record verbatim, e.g. one that is already expired.
func (m *Memory) Put(rec Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rec = &rec
}

func (m *Memory) SaveIdentity(u model.UserIdentity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ident = &u
	return nil
}

func (m *Memory) LoadIdentity() (model.UserIdentity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ident == nil {
		return model.UserIdentity{}, errs.ErrNotFound
	}
	return *m.ident, nil
}
