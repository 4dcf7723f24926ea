package tokenstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/and161185/qty-planner/internal/crypto/clientcrypto"
	"github.com/and161185/qty-planner/internal/errs"
	"github.com/and161185/qty-planner/internal/model"
)

// Fixed storage keys inside the config dir.
const (
	tokenFile     = "token.sealed"
	identityFile  = "identity.json"
	deviceKeyFile = "device.key"
)

var tokenAAD = []byte("qtyplanner/token/v1")

// FileStore keeps the token sealed with a per-device key under dir.
type FileStore struct {
	dir       string
	now       func() time.Time
	defaultIn int
	mu        sync.Mutex
}

var (
	_ Store         = (*FileStore)(nil)
	_ IdentityStore = (*FileStore)(nil)
)

// Option configures a FileStore.
type Option func(*FileStore)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(s *FileStore) { s.now = now } }

// WithDefaultExpiresIn sets the lifetime, in seconds, assumed when the server reports none.
func WithDefaultExpiresIn(sec int) Option { return func(s *FileStore) { s.defaultIn = sec } }

// NewFileStore returns a store rooted at dir. The directory is created on first save.
func NewFileStore(dir string, opts ...Option) *FileStore {
	s := &FileStore{dir: dir, now: time.Now, defaultIn: DefaultExpiresIn}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Dir returns the storage directory.
func (s *FileStore) Dir() string { return s.dir }

// Save seals {token, now+expiresIn} and replaces the stored record atomically.
func (s *FileStore) Save(token string, expiresIn int) (Record, error) {
	if expiresIn <= 0 {
		expiresIn = s.defaultIn
	}
	rec := Record{Token: token, ExpiresAt: ExpiresAt(s.now(), expiresIn).UTC()}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return rec, fmt.Errorf("%w: create dir: %v", errs.ErrStorage, err)
	}
	key, err := s.tokenKey(true)
	if err != nil {
		return rec, err
	}
	plain, err := json.Marshal(rec)
	if err != nil {
		return rec, fmt.Errorf("%w: encode: %v", errs.ErrStorage, err)
	}
	blob, err := clientcrypto.Seal(key, tokenAAD, plain)
	if err != nil {
		return rec, fmt.Errorf("%w: seal: %v", errs.ErrStorage, err)
	}
	if err := writeFileAtomic(filepath.Join(s.dir, tokenFile), blob); err != nil {
		return rec, fmt.Errorf("%w: write token: %v", errs.ErrStorage, err)
	}
	return rec, nil
}

// Load returns the stored record. Expired records are returned as-is.
func (s *FileStore) Load() (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	blob, err := os.ReadFile(filepath.Join(s.dir, tokenFile))
	if errors.Is(err, fs.ErrNotExist) {
		return Record{}, errs.ErrNoToken
	}
	if err != nil {
		return Record{}, fmt.Errorf("%w: read token: %v", errs.ErrStorage, err)
	}
	key, err := s.tokenKey(false)
	if err != nil {
		return Record{}, err
	}
	plain, err := clientcrypto.Open(key, tokenAAD, blob)
	if err != nil {
		return Record{}, fmt.Errorf("%w: open token: %v", errs.ErrStorage, err)
	}
	var rec Record
	if err := json.Unmarshal(plain, &rec); err != nil {
		return Record{}, fmt.Errorf("%w: decode token: %v", errs.ErrStorage, err)
	}
	if rec.Token == "" || rec.ExpiresAt.IsZero() {
		return Record{}, errs.ErrNoToken
	}
	return rec, nil
}

// Clear removes the token and identity. The device key is kept.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var failed []error
	for _, name := range []string{tokenFile, identityFile} {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			failed = append(failed, err)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("%w: clear: %v", errs.ErrStorage, errors.Join(failed...))
	}
	return nil
}

// SaveIdentity stores the normalized user next to the token.
func (s *FileStore) SaveIdentity(u model.UserIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("%w: create dir: %v", errs.ErrStorage, err)
	}
	b, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("%w: encode identity: %v", errs.ErrStorage, err)
	}
	if err := writeFileAtomic(filepath.Join(s.dir, identityFile), b); err != nil {
		return fmt.Errorf("%w: write identity: %v", errs.ErrStorage, err)
	}
	return nil
}

// LoadIdentity returns errs.ErrNotFound when no identity was saved.
func (s *FileStore) LoadIdentity() (model.UserIdentity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(filepath.Join(s.dir, identityFile))
	if errors.Is(err, fs.ErrNotExist) {
		return model.UserIdentity{}, errs.ErrNotFound
	}
	if err != nil {
		return model.UserIdentity{}, fmt.Errorf("%w: read identity: %v", errs.ErrStorage, err)
	}
	var u model.UserIdentity
	if err := json.Unmarshal(b, &u); err != nil {
		return model.UserIdentity{}, fmt.Errorf("%w: decode identity: %v", errs.ErrStorage, err)
	}
	return u, nil
}

// tokenKey loads (or, when create is set, generates) the device key and derives the token key.
func (s *FileStore) tokenKey(create bool) ([]byte, error) {
	p := filepath.Join(s.dir, deviceKeyFile)
	dev, err := os.ReadFile(p)
	switch {
	case errors.Is(err, fs.ErrNotExist) && create:
		dev, err = clientcrypto.Rand(clientcrypto.KeyLen)
		if err != nil {
			return nil, fmt.Errorf("%w: device key: %v", errs.ErrStorage, err)
		}
		if err := writeFileAtomic(p, dev); err != nil {
			return nil, fmt.Errorf("%w: write device key: %v", errs.ErrStorage, err)
		}
	case err != nil:
		return nil, fmt.Errorf("%w: read device key: %v", errs.ErrStorage, err)
	}
	key, err := clientcrypto.DeriveKey(dev, tokenAAD)
	if err != nil {
		return nil, fmt.Errorf("%w: derive key: %v", errs.ErrStorage, err)
	}
	return key, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return err
	}
	return os.Rename(name, path)
}
