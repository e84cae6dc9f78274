package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/devbattle/devbattle/internal/devbattle"
)

type ctxKey int

const ctxKeyUser ctxKey = iota

// requireUser resolves the caller's session and rejects the request with 401
// when there is none.
func requireUser(logger *slog.Logger, store Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := sessionToken(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			user, err := store.UserFromSession(r.Context(), token)
			if errors.Is(err, errNoSession) {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if err != nil {
				writeInternal(w, r, logger, "resolving session", err)
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyUser, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func userFrom(r *http.Request) devbattle.User {
	return r.Context().Value(ctxKeyUser).(devbattle.User)
}

func handleMethodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func handleNotFound(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusNotFound, "not found")
}
