// Package sessionview keeps a live view of one challenge: its state as
// fetched from the API plus participants announced on the room channel.
//
// Participants announced live carry the local clock as their join time, not
// the server's, so two views of the same room can disagree slightly.
package sessionview

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"nhooyr.io/websocket"

	"github.com/devbattle/devbattle/internal/room"
)

type TestCase struct {
	ID             string `json:"id"`
	Input          string `json:"input"`
	ExpectedOutput string `json:"expectedOutput"`
}

type Question struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	ProblemStatement string     `json:"problemStatement"`
	InputFormat      string     `json:"inputFormat"`
	OutputFormat     string     `json:"outputFormat"`
	Constraints      string     `json:"constraints"`
	TestCases        []TestCase `json:"testCases"`
}

// Challenge is the challenge as it stood at fetch time.
type Challenge struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Duration    int        `json:"duration"`
	JoinCode    string     `json:"joinCode"`
	Status      string     `json:"status"`
	CreatorID   string     `json:"creatorId"`
	Questions   []Question `json:"questions"`
}

type Participant struct {
	ID       string
	Name     string
	JoinedAt time.Time
}

type participantJSON struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	JoinedAt string `json:"joinedAt"`
}

type challengeJSON struct {
	Challenge
	Participants []participantJSON `json:"participants"`
}

// FetchError reports that the initial challenge fetch failed. The view is
// not usable; callers should offer a way back to the challenge listing.
type FetchError struct {
	ChallengeID string
	Status      int // 0 when the request never got a response
	Err         error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetching challenge %s: status %d", e.ChallengeID, e.Status)
	}
	return fmt.Sprintf("fetching challenge %s: %v", e.ChallengeID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// NotFound reports whether the challenge does not exist.
func (e *FetchError) NotFound() bool { return e.Status == http.StatusNotFound }

type options struct {
	client   *http.Client
	now      func() time.Time
	logger   *slog.Logger
	onChange func([]Participant)
}

type Option func(*options)

func WithHTTPClient(c *http.Client) Option { return func(o *options) { o.client = c } }

// WithClock sets the clock used to timestamp live joins.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithOnChange registers a callback run with the sorted participant list
// after every live join. It runs on the view's read goroutine.
func WithOnChange(fn func([]Participant)) Option { return func(o *options) { o.onChange = fn } }

type View struct {
	opts      options
	challenge Challenge

	mu           sync.Mutex
	participants []Participant

	conn      *websocket.Conn
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// Open fetches the challenge and subscribes to its room concurrently.
// A failed fetch returns *FetchError. A failed subscription is logged and
// the view stays static.
func Open(ctx context.Context, baseURL, challengeID string, opts ...Option) (*View, error) {
	o := options{
		client: http.DefaultClient,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	v := &View{opts: o, done: make(chan struct{})}

	var (
		fetched challengeJSON
		conn    *websocket.Conn
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		fetched, err = fetch(gctx, o.client, baseURL, challengeID)
		return err
	})
	g.Go(func() error {
		c, err := subscribe(gctx, o.client, baseURL, challengeID)
		if err != nil {
			o.logger.Warn("room subscription failed, view will not update live",
				"challenge_id", challengeID, "error", err)
			return nil
		}
		conn = c
		return nil
	})
	if err := g.Wait(); err != nil {
		if conn != nil {
			conn.CloseNow()
		}
		close(v.done)
		return nil, err
	}

	v.challenge = fetched.Challenge
	if v.challenge.Questions == nil {
		v.challenge.Questions = []Question{}
	}
	for _, p := range fetched.Participants {
		joined, _ := time.Parse(time.RFC3339Nano, p.JoinedAt)
		v.participants = append(v.participants, Participant{ID: p.ID, Name: p.Name, JoinedAt: joined})
	}

	if conn == nil {
		v.cancel = func() {}
		close(v.done)
		return v, nil
	}

	v.conn = conn
	readCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	v.cancel = cancel
	go v.readLoop(readCtx)
	return v, nil
}

func fetch(ctx context.Context, client *http.Client, baseURL, challengeID string) (challengeJSON, error) {
	var out challengeJSON
	endpoint := strings.TrimSuffix(baseURL, "/") + "/api/challenge/" + url.PathEscape(challengeID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return out, &FetchError{ChallengeID: challengeID, Err: err}
	}
	resp, err := client.Do(req)
	if err != nil {
		return out, &FetchError{ChallengeID: challengeID, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return out, &FetchError{ChallengeID: challengeID, Status: resp.StatusCode}
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, &FetchError{ChallengeID: challengeID, Err: fmt.Errorf("decoding challenge: %w", err)}
	}
	return out, nil
}

func subscribe(ctx context.Context, client *http.Client, baseURL, challengeID string) (*websocket.Conn, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/") + "/api/socket")
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	// The websocket dialer rejects clients with a Timeout set; deadlines come
	// from ctx instead.
	dialOpts := &websocket.DialOptions{}
	if client.Timeout == 0 {
		dialOpts.HTTPClient = client
	}
	conn, _, err := websocket.Dial(ctx, u.String(), dialOpts)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", u, err)
	}

	frame, err := room.Encode(room.JoinChallengeRoom{ChallengeID: challengeID})
	if err != nil {
		conn.CloseNow()
		return nil, err
	}
	if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
		conn.CloseNow()
		return nil, fmt.Errorf("sending join frame: %w", err)
	}
	return conn, nil
}

func (v *View) readLoop(ctx context.Context) {
	defer close(v.done)
	for {
		_, frame, err := v.conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				v.opts.logger.Warn("room subscription ended", "challenge_id", v.challenge.ID, "error", err)
			}
			return
		}

		ev, err := room.Decode(frame)
		if err != nil {
			v.opts.logger.Debug("dropping invalid frame", "error", err)
			continue
		}
		joined, ok := ev.(room.UserJoined)
		if !ok {
			continue
		}

		v.mu.Lock()
		v.participants = append(v.participants, Participant{
			ID:       joined.UserID,
			Name:     joined.UserName,
			JoinedAt: v.opts.now(),
		})
		v.mu.Unlock()

		if v.opts.onChange != nil {
			v.opts.onChange(v.Participants())
		}
	}
}

// Challenge returns the challenge as fetched by Open.
func (v *View) Challenge() Challenge { return v.challenge }

// Live reports whether the room subscription is still running.
func (v *View) Live() bool {
	select {
	case <-v.done:
		return false
	default:
		return true
	}
}

// Participants returns a copy of the participant list, most recent join
// first. Repeated announcements of the same user are kept.
func (v *View) Participants() []Participant {
	v.mu.Lock()
	out := slices.Clone(v.participants)
	v.mu.Unlock()

	slices.SortStableFunc(out, func(a, b Participant) int {
		return b.JoinedAt.Compare(a.JoinedAt)
	})
	if out == nil {
		out = []Participant{}
	}
	return out
}

// Close tears down the room subscription. It is safe to call more than once
// and on a view whose subscription never started.
func (v *View) Close() error {
	v.closeOnce.Do(func() {
		v.cancel()
		if v.conn != nil {
			v.conn.CloseNow()
		}
		<-v.done
	})
	return nil
}
