package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/devbattle/devbattle/internal/room"
)

// JoinRequest is the request body for POST /api/challenge/join.
type JoinRequest struct {
	ChallengeCode string `json:"challengeCode"`
}

type JoinResponse struct {
	ChallengeID string       `json:"challengeId"`
	User        UserResponse `json:"user"`
}

// handleJoin redeems a join code. It only notifies the challenge room when
// notify is set; by default redemption and the real-time userJoined path are
// independent.
func handleJoin(logger *slog.Logger, store Store, rooms *room.Service, notify bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req JoinRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		req.ChallengeCode = strings.TrimSpace(req.ChallengeCode)

		challenge, err := store.ChallengeByJoinCode(r.Context(), req.ChallengeCode)
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "challenge not found")
			return
		}
		if err != nil {
			writeInternal(w, r, logger, "looking up join code", err)
			return
		}

		user, err := store.GetUser(r.Context(), userFrom(r).ID)
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		if err != nil {
			writeInternal(w, r, logger, "fetching user", err)
			return
		}

		if err := store.AddParticipant(r.Context(), challenge.ID, user.ID); err != nil {
			writeInternal(w, r, logger, "adding participant", err)
			return
		}
		logger.Info("participant joined", "challenge_id", challenge.ID, "user_id", user.ID)

		if notify {
			n := rooms.Broadcast(challenge.ID, room.UserJoined{
				UserID:   user.ID,
				UserName: user.Name,
			})
			logger.Debug("join broadcast", "challenge_id", challenge.ID, "delivered", n)
		}

		writeJSON(w, http.StatusOK, JoinResponse{
			ChallengeID: challenge.ID,
			User:        toUserResponse(user),
		})
	}
}
