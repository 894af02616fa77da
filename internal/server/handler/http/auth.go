package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/atinyakov/SiteKeeper/internal/middleware"
	"github.com/atinyakov/SiteKeeper/internal/service"
)

// AuthService defines the interface for authentication operations
// required by the HTTP handlers.
type AuthService interface {
	// Register creates the account and returns a bearer token.
	Register(ctx context.Context, login, password string) (string, error)
	// Login checks the password and returns a new bearer token.
	Login(ctx context.Context, login, password string) (string, error)
	// Logout revokes a bearer token.
	Logout(ctx context.Context, token string) error
}

// AuthHandler handles HTTP requests for user registration and login.
type AuthHandler struct {
	// AuthService performs the underlying authentication operations.
	AuthService AuthService
}

// Credentials represents the JSON payload for registration and login.
type Credentials struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// TokenResponse is returned by successful registration and login.
type TokenResponse struct {
	Login string `json:"login"`
	Token string `json:"token"`
}

// Register handles user registration requests.
// It expects a JSON body with non-empty "login" and "password" fields and
// responds with a bearer token for the new account.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	creds, ok := decodeCredentials(w, r)
	if !ok {
		return
	}

	token, err := h.AuthService.Register(r.Context(), creds.Login, creds.Password)
	switch {
	case errors.Is(err, service.ErrUserExists):
		http.Error(w, "user already exists", http.StatusConflict)
		return
	case errors.Is(err, service.ErrEmptyCredentials):
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	case err != nil:
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, TokenResponse{Login: creds.Login, Token: token})
}

// Login exchanges a login and password for a new bearer token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	creds, ok := decodeCredentials(w, r)
	if !ok {
		return
	}

	token, err := h.AuthService.Login(r.Context(), creds.Login, creds.Password)
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		http.Error(w, "invalid login or password", http.StatusUnauthorized)
		return
	case errors.Is(err, service.ErrEmptyCredentials):
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	case err != nil:
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, TokenResponse{Login: creds.Login, Token: token})
}

// Logout revokes the token the request was authenticated with.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.AuthService.Logout(r.Context(), middleware.BearerToken(r)); err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeCredentials(w http.ResponseWriter, r *http.Request) (Credentials, bool) {
	var creds Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil || creds.Login == "" {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return Credentials{}, false
	}
	return creds, true
}
