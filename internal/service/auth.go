package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/atinyakov/SiteKeeper/internal/models"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrUserExists is returned by Register when the login is taken.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidCredentials is returned by Login for an unknown login or a wrong password.
	ErrInvalidCredentials = errors.New("invalid login or password")
	// ErrEmptyCredentials is returned when login or password is blank.
	ErrEmptyCredentials = errors.New("login and password are required")
)

// AuthRepository defines the persistence operations
// required by the authentication service.
type AuthRepository interface {
	// RegisterUser creates a new user record. It reports false when the
	// login already exists.
	RegisterUser(ctx context.Context, login string, passwordHash []byte) (bool, error)
	// GetUser loads the user with the given login.
	GetUser(ctx context.Context, login string) (*models.User, error)
}

// TokenStore keeps issued bearer tokens.
type TokenStore interface {
	SaveToken(ctx context.Context, token, login string, ttl time.Duration) error
	LookupToken(ctx context.Context, token string) (string, error)
	RevokeToken(ctx context.Context, token string) error
}

// AuthService registers accounts and issues bearer tokens.
type AuthService struct {
	repo   AuthRepository
	tokens TokenStore
	ttl    time.Duration
	cost   int
}

// NewAuthService constructs an AuthService. Tokens expire after ttl.
func NewAuthService(repo AuthRepository, tokens TokenStore, ttl time.Duration) *AuthService {
	return &AuthService{repo: repo, tokens: tokens, ttl: ttl, cost: bcrypt.DefaultCost}
}

// Register creates an account and returns a fresh token for it.
func (s *AuthService) Register(ctx context.Context, login, password string) (string, error) {
	if login == "" || password == "" {
		return "", ErrEmptyCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	created, err := s.repo.RegisterUser(ctx, login, hash)
	if err != nil {
		return "", err
	}
	if !created {
		return "", ErrUserExists
	}
	return s.issue(ctx, login)
}

// Login checks the password and returns a fresh token.
func (s *AuthService) Login(ctx context.Context, login, password string) (string, error) {
	if login == "" || password == "" {
		return "", ErrEmptyCredentials
	}
	u, err := s.repo.GetUser(ctx, login)
	if err != nil {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return s.issue(ctx, login)
}

// Authenticate resolves a bearer token to the login it was issued for.
func (s *AuthService) Authenticate(ctx context.Context, token string) (string, error) {
	return s.tokens.LookupToken(ctx, token)
}

// Logout revokes token.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	return s.tokens.RevokeToken(ctx, token)
}

func (s *AuthService) issue(ctx context.Context, login string) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	token := hex.EncodeToString(buf)
	if err := s.tokens.SaveToken(ctx, token, login, s.ttl); err != nil {
		return "", fmt.Errorf("save token: %w", err)
	}
	return token, nil
}
