package sessionview

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/devbattle/devbattle/internal/database"
	"github.com/devbattle/devbattle/internal/migrations"
	"github.com/devbattle/devbattle/internal/room"
	"github.com/devbattle/devbattle/internal/server"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	srv   *httptest.Server
	rooms *room.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := migrations.Run(db); err != nil {
		t.Fatalf("migrations: %v", err)
	}

	logger := discardLogger()
	rooms := room.NewService(logger)
	s := server.New(server.Options{SessionTTL: time.Hour, BroadcastOnJoin: true},
		logger, server.NewSQLiteStore(db), rooms, nil)

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, rooms: rooms}
}

// post sends a JSON request and decodes the response into out.
func (e *testEnv) post(t *testing.T, path, token string, body, out any) []*http.Cookie {
	t.Helper()
	data, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPost, e.srv.URL+path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		t.Fatalf("POST %s: status %d", path, resp.StatusCode)
	}
	if out != nil {
		json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.Cookies()
}

func (e *testEnv) login(t *testing.T, email, name string) (string, server.UserResponse) {
	t.Helper()
	var resp server.UserEnvelope
	cookies := e.post(t, "/api/auth/login", "", server.LoginRequest{Email: email, Password: "secret", Name: name}, &resp)
	for _, c := range cookies {
		if c.Name == "devbattle_session" && c.Value != "" {
			return c.Value, resp.User
		}
	}
	t.Fatalf("login %s: no session cookie", email)
	return "", server.UserResponse{}
}

func (e *testEnv) createChallenge(t *testing.T, token string, req server.CreateChallengeRequest) server.ChallengeResponse {
	t.Helper()
	var resp server.ChallengeEnvelope
	e.post(t, "/api/createChallenge", token, req, &resp)
	return resp.Challenge
}

func (e *testEnv) waitForSubscribers(t *testing.T, roomID string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for e.rooms.Subscribers(roomID) < n {
		if time.Now().After(deadline) {
			t.Fatalf("room %q has %d subscribers, want %d", roomID, e.rooms.Subscribers(roomID), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// fakeClock returns base, base+1m, base+2m, ... on successive calls.
type fakeClock struct {
	mu   sync.Mutex
	base time.Time
	n    int
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.base.Add(time.Duration(c.n) * time.Minute)
	c.n++
	return t
}

func waitForParticipants(t *testing.T, v *View, n int) []Participant {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		ps := v.Participants()
		if len(ps) >= n {
			return ps
		}
		if time.Now().After(deadline) {
			t.Fatalf("have %d participants, want %d", len(ps), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestOpenFetchesAndFollowsJoins(t *testing.T) {
	env := newTestEnv(t)
	host, _ := env.login(t, "host@example.com", "Host")
	c := env.createChallenge(t, host, server.CreateChallengeRequest{
		Title:     "Warmup",
		Duration:  30,
		Questions: []server.QuestionRequest{{Title: "Sum", ProblemStatement: "Add two numbers"}},
	})

	clock := &fakeClock{base: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	changes := make(chan []Participant, 4)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	v, err := Open(ctx, env.srv.URL, c.ID,
		WithClock(clock.Now),
		WithLogger(discardLogger()),
		WithOnChange(func(ps []Participant) { changes <- ps }),
	)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer v.Close()

	got := v.Challenge()
	if got.Title != "Warmup" || got.Duration != 30 || len(got.Questions) != 1 {
		t.Errorf("challenge = %+v", got)
	}
	if n := len(v.Participants()); n != 0 {
		t.Errorf("participants = %d, want 0", n)
	}
	if !v.Live() {
		t.Fatal("expected a live subscription")
	}
	env.waitForSubscribers(t, c.ID, 1)

	first, firstUser := env.login(t, "one@example.com", "One")
	env.post(t, "/api/challenge/join", first, server.JoinRequest{ChallengeCode: c.JoinCode}, nil)
	<-changes

	second, secondUser := env.login(t, "two@example.com", "Two")
	env.post(t, "/api/challenge/join", second, server.JoinRequest{ChallengeCode: c.JoinCode}, nil)
	ps := <-changes

	if len(ps) != 2 {
		t.Fatalf("participants = %d, want 2", len(ps))
	}
	if ps[0].ID != secondUser.ID || ps[1].ID != firstUser.ID {
		t.Errorf("order = [%s %s], want most recent first", ps[0].Name, ps[1].Name)
	}
	if !ps[0].JoinedAt.After(ps[1].JoinedAt) {
		t.Errorf("joinedAt not descending: %v, %v", ps[0].JoinedAt, ps[1].JoinedAt)
	}
	if !ps[1].JoinedAt.Equal(clock.base) {
		t.Errorf("joinedAt = %v, want local clock %v", ps[1].JoinedAt, clock.base)
	}
}

func TestOpenIncludesFetchedParticipants(t *testing.T) {
	env := newTestEnv(t)
	host, _ := env.login(t, "host@example.com", "Host")
	guest, guestUser := env.login(t, "guest@example.com", "Guest")
	c := env.createChallenge(t, host, server.CreateChallengeRequest{Title: "A", Duration: 10})
	env.post(t, "/api/challenge/join", guest, server.JoinRequest{ChallengeCode: c.JoinCode}, nil)

	v, err := Open(context.Background(), env.srv.URL, c.ID, WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer v.Close()

	ps := v.Participants()
	if len(ps) != 1 || ps[0].ID != guestUser.ID || ps[0].Name != "Guest" {
		t.Fatalf("participants = %+v", ps)
	}
	if ps[0].JoinedAt.IsZero() {
		t.Error("joinedAt not parsed")
	}
}

func TestOpenZeroQuestions(t *testing.T) {
	env := newTestEnv(t)
	host, _ := env.login(t, "host@example.com", "Host")
	c := env.createChallenge(t, host, server.CreateChallengeRequest{Title: "Empty", Duration: 5})

	v, err := Open(context.Background(), env.srv.URL, c.ID, WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer v.Close()

	qs := v.Challenge().Questions
	if qs == nil || len(qs) != 0 {
		t.Errorf("questions = %#v, want empty", qs)
	}
}

func TestOpenFetchErrors(t *testing.T) {
	env := newTestEnv(t)
	closed := httptest.NewServer(http.NotFoundHandler())
	closed.Close()

	tests := []struct {
		name       string
		baseURL    string
		wantStatus int
	}{
		{"missing challenge", env.srv.URL, http.StatusNotFound},
		{"unreachable server", closed.URL, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Open(context.Background(), tt.baseURL, "does-not-exist", WithLogger(discardLogger()))
			if v != nil {
				t.Fatal("expected no view")
			}
			var fe *FetchError
			if !errors.As(err, &fe) {
				t.Fatalf("err = %v, want *FetchError", err)
			}
			if fe.Status != tt.wantStatus {
				t.Errorf("status = %d, want %d", fe.Status, tt.wantStatus)
			}
			if fe.ChallengeID != "does-not-exist" {
				t.Errorf("challenge id = %q", fe.ChallengeID)
			}
		})
	}

	// A failed fetch must not leave a subscription behind.
	deadline := time.Now().Add(2 * time.Second)
	for env.rooms.Connections() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("connections = %d after failed open", env.rooms.Connections())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSubscriptionFailureLeavesStaticView(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/challenge/c1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"c1","title":"Static","duration":1,"questions":[],"participants":[]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	v, err := Open(context.Background(), srv.URL, "c1", WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if v.Live() {
		t.Error("expected no live subscription")
	}
	if v.Challenge().Title != "Static" {
		t.Errorf("title = %q", v.Challenge().Title)
	}
	if err := v.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
}

func TestViewIgnoresOtherRooms(t *testing.T) {
	env := newTestEnv(t)
	host, _ := env.login(t, "host@example.com", "Host")
	r1 := env.createChallenge(t, host, server.CreateChallengeRequest{Title: "R1", Duration: 10})
	r2 := env.createChallenge(t, host, server.CreateChallengeRequest{Title: "R2", Duration: 10})

	v, err := Open(context.Background(), env.srv.URL, r1.ID, WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer v.Close()
	env.waitForSubscribers(t, r1.ID, 1)

	env.rooms.Broadcast(r2.ID, room.UserJoined{UserID: "u2", UserName: "Bo"})
	env.rooms.Broadcast(r1.ID, room.UserJoined{UserID: "u1", UserName: "Ada"})

	waitForParticipants(t, v, 1)
	time.Sleep(20 * time.Millisecond)
	ps := v.Participants()
	if len(ps) != 1 || ps[0].ID != "u1" {
		t.Errorf("participants = %+v, want only u1", ps)
	}
}

func TestViewKeepsDuplicateAnnouncements(t *testing.T) {
	env := newTestEnv(t)
	host, _ := env.login(t, "host@example.com", "Host")
	c := env.createChallenge(t, host, server.CreateChallengeRequest{Title: "A", Duration: 10})

	v, err := Open(context.Background(), env.srv.URL, c.ID, WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer v.Close()
	env.waitForSubscribers(t, c.ID, 1)

	ev := room.UserJoined{UserID: "u1", UserName: "Ada"}
	env.rooms.Broadcast(c.ID, ev)
	env.rooms.Broadcast(c.ID, ev)

	ps := waitForParticipants(t, v, 2)
	if ps[0].ID != "u1" || ps[1].ID != "u1" {
		t.Errorf("participants = %+v", ps)
	}
}

func TestCloseIsIdempotentAndUnsubscribes(t *testing.T) {
	env := newTestEnv(t)
	host, _ := env.login(t, "host@example.com", "Host")
	c := env.createChallenge(t, host, server.CreateChallengeRequest{Title: "A", Duration: 10})

	v, err := Open(context.Background(), env.srv.URL, c.ID, WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	env.waitForSubscribers(t, c.ID, 1)

	for i := 0; i < 2; i++ {
		if err := v.Close(); err != nil {
			t.Fatalf("close %d: %v", i, err)
		}
	}
	if v.Live() {
		t.Error("view still live after close")
	}

	deadline := time.Now().Add(2 * time.Second)
	for env.rooms.Subscribers(c.ID) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("room still has subscribers after close")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestParticipantsSortedDescending(t *testing.T) {
	t1 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Second)

	v := &View{participants: []Participant{
		{ID: "early", JoinedAt: t1},
		{ID: "late", JoinedAt: t2},
	}}

	ps := v.Participants()
	if ps[0].ID != "late" || ps[1].ID != "early" {
		t.Errorf("order = [%s %s], want [late early]", ps[0].ID, ps[1].ID)
	}

	// The stored order is untouched; sorting happens on every read.
	ps[0].ID = "mutated"
	if v.participants[0].ID != "early" || v.participants[1].ID != "late" {
		t.Errorf("stored list changed: %+v", v.participants)
	}
}
