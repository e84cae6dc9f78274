package chat

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"nhooyr.io/websocket"

	"github.com/devbattle/devbattle/internal/room"
)

func TestChatBroadcastsToEveryone(t *testing.T) {
	h := NewHandler(slog.Default())
	r := chi.NewRouter()
	r.Mount("/api/chat", h.Routes())

	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + srv.URL[len("http"):] + "/api/chat"

	dial := func() *websocket.Conn {
		conn, _, err := websocket.Dial(ctx, wsURL, nil)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		t.Cleanup(func() { conn.CloseNow() })
		return conn
	}
	alice := dial()
	bob := dial()

	deadline := time.Now().Add(2 * time.Second)
	for h.Connections() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("connections = %d, want 2", h.Connections())
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Invalid frames are dropped without closing the connection.
	if err := alice.Write(ctx, websocket.MessageText, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}

	messages := []string{"hello devbattle", "¡hola!", "🎯"}
	for _, want := range messages {
		data, _ := room.Encode(room.ChatMessage{Text: want})
		if err := alice.Write(ctx, websocket.MessageText, data); err != nil {
			t.Fatalf("write %q: %v", want, err)
		}

		for name, conn := range map[string]*websocket.Conn{"alice": alice, "bob": bob} {
			_, got, err := conn.Read(ctx)
			if err != nil {
				t.Fatalf("%s read: %v", name, err)
			}
			ev, err := room.Decode(got)
			if err != nil {
				t.Fatalf("%s decode: %v", name, err)
			}
			if ev != (room.ChatMessage{Text: want}) {
				t.Errorf("%s got %+v, want %q", name, ev, want)
			}
		}
	}

	alice.Close(websocket.StatusNormalClosure, "done")
}

func TestChatIdleTimeoutIsPerRead(t *testing.T) {
	h := NewHandler(slog.Default())
	h.idleTimeout = 300 * time.Millisecond
	r := chi.NewRouter()
	r.Mount("/api/chat", h.Routes())

	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + srv.URL[len("http"):] + "/api/chat"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	// An active connection outlives several idle windows.
	for i := 0; i < 8; i++ {
		data, _ := room.Encode(room.ChatMessage{Text: "still here"})
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
		if _, _, err := conn.Read(ctx); err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		time.Sleep(100 * time.Millisecond)
	}

	// A silent one is dropped once the window passes.
	deadline := time.Now().Add(2 * time.Second)
	for h.Connections() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("idle connection still open, connections = %d", h.Connections())
		}
		time.Sleep(10 * time.Millisecond)
	}
}
