// Package chat is the unscoped chat channel: every message a client sends is
// broadcast to every connected client, the sender included.
package chat

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"nhooyr.io/websocket"

	"github.com/devbattle/devbattle/internal/room"
)

// lobby is the single room every chat connection joins.
const lobby = "lobby"

// idleTimeout closes a connection that sends nothing for this long.
const idleTimeout = 10 * time.Minute

type Handler struct {
	logger      *slog.Logger
	hub         *room.Service
	idleTimeout time.Duration
}

func NewHandler(logger *slog.Logger) *Handler {
	return &Handler{logger: logger, hub: room.NewService(logger), idleTimeout: idleTimeout}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.serve)
	return r
}

// Connections reports the number of connected chat clients.
func (h *Handler) Connections() int {
	return h.hub.Connections()
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Error("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	sub := h.hub.NewSubscriber()
	h.hub.Subscribe(lobby, sub)
	defer h.hub.Disconnect(sub)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go func() {
		defer cancel()
		for data := range sub.C() {
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				h.logger.Debug("websocket write failed", "error", err)
				return
			}
		}
	}()

	for {
		readCtx, cancelRead := context.WithTimeout(ctx, h.idleTimeout)
		_, frame, err := conn.Read(readCtx)
		cancelRead()
		if err != nil {
			h.logger.Debug("websocket read ended", "error", err)
			return
		}

		ev, err := room.Decode(frame)
		if err != nil {
			h.logger.Debug("dropping invalid frame", "error", err)
			continue
		}
		msg, ok := ev.(room.ChatMessage)
		if !ok {
			continue
		}
		h.hub.Broadcast(lobby, msg)
	}
}
