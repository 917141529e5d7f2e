// Package auth implements the credential side of the chat server: user
// registration, secret verification and the session tokens accepted by the
// WebSocket endpoint.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Validation limits.
const (
	MaxUsernameLength = 50
	MinPasswordLength = 6
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUsernameRequired   = errors.New("username is required")
	ErrUsernameTooLong    = errors.New("username exceeds maximum length")
	ErrPasswordTooShort   = errors.New("password is too short")
)

// User is a registered account.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// CredentialStore persists user accounts.
type CredentialStore interface {
	FindByUsername(ctx context.Context, username string) (*User, error)
	Create(ctx context.Context, user *User) error
}

// Session is the result of a successful register or login.
type Session struct {
	Username string `json:"username"`
	Token    string `json:"token"`
}

// Service registers users and exchanges credentials for session tokens.
type Service struct {
	users  CredentialStore
	hasher *PasswordHasher
	tokens *TokenManager
}

// NewService creates an auth Service.
func NewService(users CredentialStore, hasher *PasswordHasher, tokens *TokenManager) *Service {
	return &Service{users: users, hasher: hasher, tokens: tokens}
}

// Register creates an account and returns a session for it.
func (s *Service) Register(ctx context.Context, username, password string) (*Session, error) {
	username = strings.TrimSpace(username)
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return nil, ErrPasswordTooShort
	}

	if _, err := s.users.FindByUsername(ctx, username); err == nil {
		return nil, ErrUserExists
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	return s.session(user.Username)
}

// Login verifies credentials and returns a session.
func (s *Service) Login(ctx context.Context, username, password string) (*Session, error) {
	user, err := s.users.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if !s.VerifySecret(user, password) {
		return nil, ErrInvalidCredentials
	}
	return s.session(user.Username)
}

// VerifySecret reports whether candidate is the user's password.
func (s *Service) VerifySecret(user *User, candidate string) bool {
	if user == nil {
		return false
	}
	return s.hasher.Verify(candidate, user.PasswordHash)
}

// Authenticate resolves a session token to the username it was issued for.
func (s *Service) Authenticate(token string) (string, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return "", err
	}
	return claims.Username, nil
}

func (s *Service) session(username string) (*Session, error) {
	token, err := s.tokens.Issue(username)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &Session{Username: username, Token: token}, nil
}

func validateUsername(username string) error {
	if username == "" {
		return ErrUsernameRequired
	}
	if utf8.RuneCountInString(username) > MaxUsernameLength {
		return ErrUsernameTooLong
	}
	return nil
}
