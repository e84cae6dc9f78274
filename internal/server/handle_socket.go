package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"nhooyr.io/websocket"

	"github.com/devbattle/devbattle/internal/room"
)

const socketIdleTimeout = 10 * time.Minute

// SocketStatusResponse is returned by GET /api/socket without an upgrade.
type SocketStatusResponse struct {
	Message string `json:"message"`
	Clients int    `json:"clients"`
}

// handleSocket serves the room channel. Clients send joinChallengeRoom to
// subscribe to a challenge room and receive userJoined frames for it.
// Subscriptions end when the connection closes.
func handleSocket(logger *slog.Logger, rooms *room.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !isUpgrade(r) {
			writeJSON(w, http.StatusOK, SocketStatusResponse{
				Message: "socket server ready",
				Clients: rooms.Connections(),
			})
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			logger.Error("websocket accept failed", "error", err)
			return
		}
		defer conn.CloseNow()

		sub := rooms.NewSubscriber()
		defer rooms.Disconnect(sub)

		g, ctx := errgroup.WithContext(r.Context())
		g.Go(func() error { return readFrames(ctx, logger, conn, rooms, sub) })
		g.Go(func() error { return writeFrames(ctx, conn, sub) })

		err = g.Wait()
		logger.Debug("socket closed", "error", err)
		conn.Close(websocket.StatusNormalClosure, "")
	}
}

func isUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

func readFrames(ctx context.Context, logger *slog.Logger, conn *websocket.Conn, rooms *room.Service, sub *room.Subscriber) error {
	for {
		readCtx, cancel := context.WithTimeout(ctx, socketIdleTimeout)
		_, frame, err := conn.Read(readCtx)
		cancel()
		if err != nil {
			return err
		}

		ev, err := room.Decode(frame)
		if err != nil {
			logger.Debug("dropping invalid frame", "error", err)
			continue
		}

		switch ev := ev.(type) {
		case room.JoinChallengeRoom:
			rooms.Subscribe(ev.ChallengeID, sub)
		case room.JoinChallenge:
			rooms.Subscribe(ev.ChallengeID, sub)
			rooms.Broadcast(ev.ChallengeID, room.UserJoined{
				UserID:   ev.UserID,
				UserName: ev.UserName,
			})
		default:
			logger.Debug("ignoring frame", "type", ev.Type())
		}
	}
}

func writeFrames(ctx context.Context, conn *websocket.Conn, sub *room.Subscriber) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-sub.C():
			if !ok {
				return errors.New("subscriber disconnected")
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				return err
			}
		}
	}
}
