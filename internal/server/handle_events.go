package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/devbattle/devbattle/internal/room"
)

// handleEvents streams a challenge room as Server-Sent Events. Each frame is
// written as "event: <type>" with the frame's data object as payload.
func handleEvents(logger *slog.Logger, rooms *room.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		challengeID := chi.URLParam(r, "challengeId")

		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, http.StatusInternalServerError, "streaming not supported")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		flusher.Flush()

		sub := rooms.NewSubscriber()
		rooms.Subscribe(challengeID, sub)
		defer rooms.Disconnect(sub)

		ping := time.NewTicker(30 * time.Second)
		defer ping.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case frame, ok := <-sub.C():
				if !ok {
					return
				}
				typ, data, err := room.Payload(frame)
				if err != nil {
					logger.Warn("skipping malformed room frame", "challenge_id", challengeID, "error", err)
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", typ, data)
				flusher.Flush()
			case <-ping.C:
				fmt.Fprintf(w, ": ping\n\n")
				flusher.Flush()
			}
		}
	}
}
