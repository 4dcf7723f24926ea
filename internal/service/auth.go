// Package service contains the reference server's authentication and quantity-plan services.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	pkgcrypto "github.com/and161185/qty-planner/internal/crypto"
	"github.com/and161185/qty-planner/internal/errs"
	"github.com/and161185/qty-planner/internal/limiter"
	"github.com/and161185/qty-planner/internal/model"
	"github.com/and161185/qty-planner/internal/repository"
	"github.com/and161185/qty-planner/internal/revocation"
)

// AuthService defines account and token operations.
type AuthService interface {
	// Register creates a new user with secure password hashing.
	Register(ctx context.Context, in Registration) (model.User, error)
	// LoginWithIP applies rate-limiting and authenticates the user.
	LoginWithIP(ctx context.Context, email, password, ip string) (model.Tokens, model.User, error)
	// Refresh exchanges a still-valid token for a new one and revokes the old one.
	Refresh(ctx context.Context, token string) (model.Tokens, error)
	// Logout revokes the token.
	Logout(ctx context.Context, token string) error
	// Verify checks signature, expiry and revocation.
	Verify(ctx context.Context, token string) (Claims, error)
}

// Registration is the input of Register.
type Registration struct {
	Email     string `validate:"required,email"`
	Password  string `validate:"required,min=8"`
	FirstName string
	LastName  string
}

// Claims is the verified content of an access token.
type Claims struct {
	UserID    uuid.UUID
	TokenID   string
	ExpiresAt time.Time
}

type AuthServiceImpl struct {
	users     repository.UserRepository
	signKey   []byte
	accessTTL time.Duration
	lim       limiter.Limiter
	revoked   revocation.Store
	validate  *validator.Validate
	now       func() time.Time
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(users repository.UserRepository, signKey []byte, accessTTL time.Duration,
	lim limiter.Limiter, revoked revocation.Store) *AuthServiceImpl {
	return &AuthServiceImpl{
		users:     users,
		signKey:   signKey,
		accessTTL: accessTTL,
		lim:       lim,
		revoked:   revoked,
		validate:  validator.New(),
		now:       time.Now,
	}
}

// Register creates a new user record with a per-user salt.
func (s *AuthServiceImpl) Register(ctx context.Context, in Registration) (model.User, error) {
	in.Email = limiter.NormalizeEmail(in.Email)
	if err := s.validate.Struct(in); err != nil {
		return model.User{}, errs.Validation("email and a password of at least 8 characters are required")
	}
	uid, err := uuid.NewV4()
	if err != nil {
		return model.User{}, err
	}
	hash, salt, err := pkgcrypto.NewPasswordHash([]byte(in.Password))
	if err != nil {
		return model.User{}, err
	}
	u := model.User{
		ID:        uid,
		Email:     in.Email,
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		PwdHash:   hash,
		SaltAuth:  salt,
		CreatedAt: s.now(),
	}
	if err := s.users.Create(ctx, &u); err != nil {
		return model.User{}, err
	}
	return u, nil
}

// LoginWithIP authenticates with rate limiting by (email, ip).
func (s *AuthServiceImpl) LoginWithIP(ctx context.Context, email, password, ip string) (model.Tokens, model.User, error) {
	email = limiter.NormalizeEmail(email)
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.lim.Allow(ctx, email, ipHash)
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	if !allowed {
		return model.Tokens{}, model.User{}, errs.ErrRateLimited
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		pkgcrypto.BurnPassword([]byte(password))
	}
	if err != nil || !pkgcrypto.VerifyPassword([]byte(password), u.SaltAuth, u.PwdHash) {
		if blocked, _, ferr := s.lim.Failure(ctx, email, ipHash); ferr == nil && blocked {
			return model.Tokens{}, model.User{}, errs.ErrRateLimited
		}
		// unknown email and wrong password look the same
		return model.Tokens{}, model.User{}, errs.ErrUnauthorized
	}

	_ = s.lim.Success(ctx, email, ipHash)

	tok, err := s.issueAccessToken(u.ID)
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	return tok, *u, nil
}

// Refresh rotates a valid token.
func (s *AuthServiceImpl) Refresh(ctx context.Context, token string) (model.Tokens, error) {
	c, err := s.Verify(ctx, token)
	if err != nil {
		return model.Tokens{}, err
	}
	if _, err := s.users.GetByID(ctx, c.UserID); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return model.Tokens{}, errs.ErrUnauthorized
		}
		return model.Tokens{}, err
	}
	if err := s.revoked.Revoke(ctx, c.TokenID, c.ExpiresAt); err != nil {
		return model.Tokens{}, fmt.Errorf("revoke rotated token: %w", err)
	}
	return s.issueAccessToken(c.UserID)
}

// Logout denylists the token until it expires.
func (s *AuthServiceImpl) Logout(ctx context.Context, token string) error {
	c, err := s.Verify(ctx, token)
	if err != nil {
		return err
	}
	return s.revoked.Revoke(ctx, c.TokenID, c.ExpiresAt)
}

// Verify parses an HS256 token issued by this service.
func (s *AuthServiceImpl) Verify(ctx context.Context, token string) (Claims, error) {
	var rc jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &rc, func(*jwt.Token) (any, error) { return s.signKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", errs.ErrUnauthorized, err)
	}
	uid, err := uuid.FromString(rc.Subject)
	if err != nil || rc.ID == "" {
		return Claims{}, fmt.Errorf("%w: malformed claims", errs.ErrUnauthorized)
	}
	revoked, err := s.revoked.Revoked(ctx, rc.ID)
	if err != nil {
		return Claims{}, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return Claims{}, fmt.Errorf("%w: token revoked", errs.ErrUnauthorized)
	}
	return Claims{UserID: uid, TokenID: rc.ID, ExpiresAt: rc.ExpiresAt.Time}, nil
}

// issueAccessToken creates a signed HS256 JWT with a unique jti for the given subject.
func (s *AuthServiceImpl) issueAccessToken(userID uuid.UUID) (model.Tokens, error) {
	jti, err := uuid.NewV4()
	if err != nil {
		return model.Tokens{}, err
	}
	now := s.now()
	exp := now.Add(s.accessTTL)
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		ID:        jti.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signKey)
	if err != nil {
		return model.Tokens{}, err
	}
	// NumericDate drops sub-second precision
	return model.Tokens{AccessToken: signed, ExpiresAt: claims.ExpiresAt.Time}, nil
}
