package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/devbattle/devbattle/internal/devbattle"
)

// UpdateStatusRequest is the request body for PUT /api/challenge/{challengeId}/status.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

func handleGetChallenge(logger *slog.Logger, store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "challengeId")

		detail, err := store.GetChallenge(r.Context(), id)
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "challenge not found")
			return
		}
		if err != nil {
			writeInternal(w, r, logger, "fetching challenge", err)
			return
		}

		writeJSON(w, http.StatusOK, toChallengeResponse(detail))
	}
}

func handleUpdateStatus(logger *slog.Logger, store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req UpdateStatusRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		status := devbattle.ChallengeStatus(req.Status)
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, "status must be NOT_STARTED, IN_PROGRESS, COMPLETED, or CANCELLED")
			return
		}

		id := chi.URLParam(r, "challengeId")
		detail, err := store.GetChallenge(r.Context(), id)
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "challenge not found")
			return
		}
		if err != nil {
			writeInternal(w, r, logger, "fetching challenge", err)
			return
		}
		if detail.CreatorID != userFrom(r).ID {
			writeError(w, http.StatusForbidden, "only the creator can change the status")
			return
		}

		if err := store.UpdateChallengeStatus(r.Context(), id, status); err != nil {
			writeInternal(w, r, logger, "updating challenge status", err)
			return
		}
		detail.Status = status

		writeJSON(w, http.StatusOK, ChallengeEnvelope{Challenge: toChallengeResponse(detail)})
	}
}
