package room

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Frame type names on the wire.
const (
	TypeJoinChallengeRoom = "joinChallengeRoom"
	TypeJoinChallenge     = "joinChallenge"
	TypeUserJoined        = "userJoined"
	TypeMessage           = "message"
)

var ErrInvalidEvent = errors.New("invalid event")

// Event is one of the tagged frame variants below.
type Event interface {
	Type() string
	validate() error
}

// JoinChallengeRoom asks the server to subscribe the connection to a room.
type JoinChallengeRoom struct {
	ChallengeID string `json:"challengeId"`
}

// JoinChallenge subscribes the connection and announces the user to the room.
type JoinChallenge struct {
	ChallengeID string `json:"challengeId"`
	UserID      string `json:"userId"`
	UserName    string `json:"userName"`
}

// UserJoined is delivered to every subscriber of a room.
type UserJoined struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// ChatMessage is the payload of the unscoped chat channel.
type ChatMessage struct {
	Text string `json:"text"`
}

func (JoinChallengeRoom) Type() string { return TypeJoinChallengeRoom }
func (JoinChallenge) Type() string     { return TypeJoinChallenge }
func (UserJoined) Type() string        { return TypeUserJoined }
func (ChatMessage) Type() string       { return TypeMessage }

func (e JoinChallengeRoom) validate() error {
	if e.ChallengeID == "" {
		return fmt.Errorf("%w: challengeId is required", ErrInvalidEvent)
	}
	return nil
}

func (e JoinChallenge) validate() error {
	if e.ChallengeID == "" || e.UserID == "" {
		return fmt.Errorf("%w: challengeId and userId are required", ErrInvalidEvent)
	}
	return nil
}

func (e UserJoined) validate() error {
	if e.UserID == "" {
		return fmt.Errorf("%w: userId is required", ErrInvalidEvent)
	}
	return nil
}

func (e ChatMessage) validate() error {
	if strings.TrimSpace(e.Text) == "" {
		return fmt.Errorf("%w: text is required", ErrInvalidEvent)
	}
	return nil
}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Encode validates ev and renders it as a wire frame.
func Encode(ev Event) ([]byte, error) {
	if err := ev.validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Type: ev.Type(), Data: data})
}

// Decode parses a wire frame into its typed variant and validates it.
func Decode(frame []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	var ev Event
	switch env.Type {
	case TypeJoinChallengeRoom:
		ev = decodeAs[JoinChallengeRoom](env.Data)
	case TypeJoinChallenge:
		ev = decodeAs[JoinChallenge](env.Data)
	case TypeUserJoined:
		ev = decodeAs[UserJoined](env.Data)
	case TypeMessage:
		ev = decodeAs[ChatMessage](env.Data)
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, env.Type)
	}
	if ev == nil {
		return nil, fmt.Errorf("%w: malformed %s payload", ErrInvalidEvent, env.Type)
	}
	if err := ev.validate(); err != nil {
		return nil, err
	}
	return ev, nil
}

// Payload returns the type tag and the raw data object of an encoded frame
// without decoding the variant.
func Payload(frame []byte) (string, json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if env.Type == "" || len(env.Data) == 0 {
		return "", nil, fmt.Errorf("%w: missing type or data", ErrInvalidEvent)
	}
	return env.Type, env.Data, nil
}

func decodeAs[T Event](data json.RawMessage) Event {
	var v T
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil
	}
	return v
}
