// Package tokenstore persists the bearer token and its absolute expiry across restarts.
package tokenstore

import (
	"time"

	"github.com/and161185/qty-planner/internal/model"
)

// DefaultExpiresIn is used when the server does not report a token lifetime.
const DefaultExpiresIn = 3600

// Record is the persisted token state.
type Record struct {
	Token     string    `json:"access_token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store persists one token record.
//
// Load returns errs.ErrNoToken when nothing was saved and errs.ErrStorage when
// the backing storage is unreadable; callers treat both as "no token".
type Store interface {
	Save(token string, expiresIn int) (Record, error)
	Load() (Record, error)
	Clear() error
}

// IdentityStore is implemented by stores that also keep the signed-in user.
// Clear on the Store removes the identity as well.
type IdentityStore interface {
	SaveIdentity(u model.UserIdentity) error
	LoadIdentity() (model.UserIdentity, error)
}

// ExpiresAt computes the absolute expiry, defaulting to DefaultExpiresIn seconds.
func ExpiresAt(now time.Time, expiresIn int) time.Time {
	if expiresIn <= 0 {
		expiresIn = DefaultExpiresIn
	}
	return now.Add(time.Duration(expiresIn) * time.Second)
}
