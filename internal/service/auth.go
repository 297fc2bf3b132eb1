// Package service provides the authentication, user management and
// endpoint registry business logic, delegating persistence to
// repository interfaces.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/ragui/dify-relay/internal/common"
	"github.com/ragui/dify-relay/internal/models"
)

// UserRepository defines the persistence operations required by the
// authentication and user management services.
type UserRepository interface {
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id int64) (*models.User, error)
	Create(ctx context.Context, username, email, passwordHash string, role models.Role) (*models.User, error)
}

// dummyHash is a bcrypt hash compared against when login hits an
// unknown username, so that both failure paths spend the hash budget
// and stay indistinguishable by timing.
var dummyHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

// claims is the JWT payload: subject carries the username.
type claims struct {
	jwt.RegisteredClaims
}

// AuthService verifies credentials, issues and validates signed
// session tokens, and exposes role-gated identity lookup.
type AuthService struct {
	repo     UserRepository
	secret   []byte
	tokenTTL time.Duration
}

// NewAuthService constructs an AuthService using the provided
// repository, signing secret and token lifetime.
func NewAuthService(repo UserRepository, secret []byte, tokenTTL time.Duration) *AuthService {
	return &AuthService{repo: repo, secret: secret, tokenTTL: tokenTTL}
}

// Register creates a new user account with a bcrypt-hashed password.
// Returns common.ErrAlreadyExists if the username or email is taken.
// The explicit lookups keep the original's friendly conflict messages;
// the database unique constraints close the race they leave open.
func (s *AuthService) Register(ctx context.Context, username, email, password string, role models.Role) (*models.User, error) {
	if _, err := s.repo.FindByUsername(ctx, username); err == nil {
		return nil, fmt.Errorf("username %q: %w", username, common.ErrAlreadyExists)
	} else if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}
	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return nil, fmt.Errorf("email %q: %w", email, common.ErrAlreadyExists)
	} else if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	return s.repo.Create(ctx, username, email, string(hash), role)
}

// Login verifies the credentials and returns a signed access token.
// Unknown usernames and wrong passwords both fail with
// common.ErrInvalidCredentials; nothing reveals which half was wrong.
func (s *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.repo.FindByUsername(ctx, username)
	if errors.Is(err, common.ErrNotFound) {
		// Burn the same bcrypt work as the success path.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return "", common.ErrInvalidCredentials
	}
	if err != nil {
		return "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", common.ErrInvalidCredentials
	}

	return s.issueToken(user.Username)
}

func (s *AuthService) issueToken(username string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.tokenTTL)),
		},
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken validates the token's signature and expiry and returns
// the embedded username. Malformed, expired and tampered tokens all
// fail with common.ErrInvalidToken; callers cannot tell them apart.
func (s *AuthService) VerifyToken(tokenString string) (string, error) {
	c := &claims{}
	token, err := jwt.ParseWithClaims(tokenString, c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid || c.Subject == "" {
		return "", common.ErrInvalidToken
	}
	return c.Subject, nil
}

// CurrentUser resolves a token to its user and enforces the active
// flag. Fails with common.ErrInvalidToken when the token is invalid or
// the user no longer exists, and common.ErrInactiveUser for disabled
// accounts.
func (s *AuthService) CurrentUser(ctx context.Context, tokenString string) (*models.User, error) {
	username, err := s.VerifyToken(tokenString)
	if err != nil {
		return nil, err
	}

	user, err := s.repo.FindByUsername(ctx, username)
	if errors.Is(err, common.ErrNotFound) {
		return nil, common.ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}

	if !user.IsActive {
		return nil, common.ErrInactiveUser
	}
	return user, nil
}

// CurrentAdmin is CurrentUser plus a role check, failing with
// common.ErrForbidden when the caller is not an administrator.
func (s *AuthService) CurrentAdmin(ctx context.Context, tokenString string) (*models.User, error) {
	user, err := s.CurrentUser(ctx, tokenString)
	if err != nil {
		return nil, err
	}
	if !user.IsAdmin() {
		return nil, common.ErrForbidden
	}
	return user, nil
}
