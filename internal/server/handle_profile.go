package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

// CompleteProfileRequest is the request body for PUT /api/completeprofile.
type CompleteProfileRequest struct {
	Username string `json:"username"`
	Bio      string `json:"bio"`
}

func handleCompleteProfile(logger *slog.Logger, store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CompleteProfileRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		req.Username = strings.TrimSpace(req.Username)

		user, err := store.UpdateProfile(r.Context(), userFrom(r).ID, req.Username, req.Bio)
		if errors.Is(err, ErrConflict) {
			writeError(w, http.StatusConflict, "username already taken")
			return
		}
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		if err != nil {
			writeInternal(w, r, logger, "updating user", err)
			return
		}

		writeJSON(w, http.StatusOK, UserEnvelope{User: toUserResponse(user)})
	}
}

func handleGetUser(logger *slog.Logger, store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := store.GetUser(r.Context(), userFrom(r).ID)
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		if err != nil {
			writeInternal(w, r, logger, "fetching user details", err)
			return
		}

		writeJSON(w, http.StatusOK, UserEnvelope{User: toUserResponse(user)})
	}
}
