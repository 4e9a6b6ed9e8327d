// Package service contains application services for membership, the catalog,
// and the lending engine.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	pkgcrypto "github.com/avoronin/liblend/internal/crypto"
	"github.com/avoronin/liblend/internal/errs"
	"github.com/avoronin/liblend/internal/limiter"
	"github.com/avoronin/liblend/internal/model"
	"github.com/avoronin/liblend/internal/repository"
)

// AuthService defines membership and authentication operations.
type AuthService interface {
	// Register creates a new member with secure password hashing.
	Register(ctx context.Context, name, email, password string) (*model.User, error)
	// LoginWithIP applies rate-limiting and authenticates the member.
	LoginWithIP(ctx context.Context, email, password, ip string) (model.Tokens, *model.User, error)
	// IssueToken issues a session token for an already-verified member,
	// e.g. right after registration.
	IssueToken(userID uuid.UUID) (model.Tokens, error)
	// GetUser loads a member by ID.
	GetUser(ctx context.Context, id uuid.UUID) (*model.User, error)
	// ListUsers returns all members ordered by name.
	ListUsers(ctx context.Context) ([]model.User, error)
}

type AuthServiceImpl struct {
	users     repository.UserRepository
	signKey   []byte
	accessTTL time.Duration
	lim       limiter.Limiter
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(users repository.UserRepository, signKey []byte, accessTTL time.Duration, lim limiter.Limiter) *AuthServiceImpl {
	return &AuthServiceImpl{users: users, signKey: signKey, accessTTL: accessTTL, lim: lim}
}

// Register creates a new member record with a per-user salt.
func (s *AuthServiceImpl) Register(ctx context.Context, name, email, password string) (*model.User, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" || email == "" || password == "" {
		return nil, fmt.Errorf("empty name/email/password: %w", errs.ErrValidation)
	}

	uid, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	salt, err := pkgcrypto.NewSalt()
	if err != nil {
		return nil, err
	}

	u := &model.User{
		ID:       uid,
		Name:     name,
		Email:    email,
		PwdHash:  pkgcrypto.HashPassword([]byte(password), salt),
		SaltAuth: salt,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// LoginWithIP authenticates with rate limiting by (email, ip).
func (s *AuthServiceImpl) LoginWithIP(ctx context.Context, email, password, ip string) (model.Tokens, *model.User, error) {
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.lim.Allow(ctx, email, ipHash)
	if err != nil {
		return model.Tokens{}, nil, err
	}
	if !allowed {
		return model.Tokens{}, nil, errs.ErrRateLimited
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil || !pkgcrypto.VerifyPassword([]byte(password), u.SaltAuth, u.PwdHash) {
		// Record failure; if threshold reached — return rate-limited.
		if blocked, _, ferr := s.lim.Failure(ctx, email, ipHash); ferr == nil && blocked {
			return model.Tokens{}, nil, errs.ErrRateLimited
		}
		// unknown email and wrong password are indistinguishable
		return model.Tokens{}, nil, errs.ErrUnauthorized
	}

	// Success: reset counters (best-effort).
	_ = s.lim.Success(ctx, email, ipHash)

	access, exp, err := s.issueAccessToken(u.ID)
	if err != nil {
		return model.Tokens{}, nil, err
	}
	return model.Tokens{AccessToken: access, ExpiresAt: exp}, u, nil
}

// IssueToken issues a session token for an already-verified member.
func (s *AuthServiceImpl) IssueToken(userID uuid.UUID) (model.Tokens, error) {
	access, exp, err := s.issueAccessToken(userID)
	if err != nil {
		return model.Tokens{}, err
	}
	return model.Tokens{AccessToken: access, ExpiresAt: exp}, nil
}

// GetUser loads a member by ID.
func (s *AuthServiceImpl) GetUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	if id == uuid.Nil {
		return nil, errs.ErrNotFound
	}
	return s.users.GetByID(ctx, id)
}

// ListUsers returns all members ordered by name.
func (s *AuthServiceImpl) ListUsers(ctx context.Context) ([]model.User, error) {
	return s.users.List(ctx)
}

// issueAccessToken creates a signed HS256 JWT for the given subject.
func (s *AuthServiceImpl) issueAccessToken(userID uuid.UUID) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(s.accessTTL)
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.signKey)
	return signed, exp, err
}

// ParseAccessToken verifies a token and extracts the subject user ID.
func ParseAccessToken(raw string, signKey []byte) (uuid.UUID, error) {
	tok, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return signKey, nil
	})
	if err != nil || !tok.Valid {
		return uuid.Nil, errs.ErrUnauthorized
	}
	claims, ok := tok.Claims.(*jwt.RegisteredClaims)
	if !ok {
		return uuid.Nil, errs.ErrUnauthorized
	}
	id, err := uuid.FromString(claims.Subject)
	if err != nil {
		return uuid.Nil, errs.ErrUnauthorized
	}
	return id, nil
}
