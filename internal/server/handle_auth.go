package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/devbattle/devbattle/internal/devbattle"
)

// LoginRequest is the request body for POST /api/auth/login. Name is only
// used when the account is created on first login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// UserEnvelope wraps a single user, e.g. {"user": {...}}.
type UserEnvelope struct {
	User UserResponse `json:"user"`
}

func handleLogin(logger *slog.Logger, store Store, ttl time.Duration, secureCookie bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		req.Email = strings.TrimSpace(strings.ToLower(req.Email))
		req.Name = strings.TrimSpace(req.Name)
		if req.Email == "" || req.Password == "" {
			writeError(w, http.StatusBadRequest, "email and password are required")
			return
		}

		user, err := signIn(r.Context(), logger, store, req)
		if errors.Is(err, errBadCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		if err != nil {
			writeInternal(w, r, logger, "signing in", err)
			return
		}

		sessionID, err := store.CreateSession(r.Context(), user.ID, ttl)
		if err != nil {
			writeInternal(w, r, logger, "creating session", err)
			return
		}

		setSessionCookie(w, sessionID, ttl, secureCookie)
		writeJSON(w, http.StatusOK, UserEnvelope{User: toUserResponse(user)})
	}
}

var errBadCredentials = errors.New("invalid credentials")

// signIn verifies the password of an existing account or creates the account
// on first sign-in. A concurrent first sign-in for the same email loses the
// insert and is checked against the winner's password instead.
func signIn(ctx context.Context, logger *slog.Logger, store Store, req LoginRequest) (devbattle.User, error) {
	user, hash, err := store.UserByEmail(ctx, req.Email)
	if errors.Is(err, ErrNotFound) {
		newHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			return devbattle.User{}, fmt.Errorf("hashing password: %w", err)
		}
		name := req.Name
		if name == "" {
			name = "Unknown"
		}
		user, err = store.CreateUser(ctx, req.Email, name, string(newHash))
		if err == nil {
			logger.Info("user created", "user_id", user.ID)
			return user, nil
		}
		if !errors.Is(err, ErrConflict) {
			return devbattle.User{}, fmt.Errorf("creating user: %w", err)
		}
		user, hash, err = store.UserByEmail(ctx, req.Email)
	}
	if err != nil {
		return devbattle.User{}, fmt.Errorf("looking up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)); err != nil {
		return devbattle.User{}, errBadCredentials
	}
	return user, nil
}

func handleLogout(logger *slog.Logger, store Store, secureCookie bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if token := sessionToken(r); token != "" {
			if err := store.DeleteSession(r.Context(), token); err != nil {
				logger.Warn("deleting session", "error", err)
			}
		}

		clearSessionCookie(w, secureCookie)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func handleSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, UserEnvelope{User: toUserResponse(userFrom(r))})
	}
}
