package server

import (
	"context"
	"errors"
	"time"

	"github.com/devbattle/devbattle/internal/devbattle"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// Store is the relational store behind the API.
type Store interface {
	UserByEmail(ctx context.Context, email string) (user devbattle.User, passwordHash string, err error)
	CreateUser(ctx context.Context, email, name, passwordHash string) (devbattle.User, error)
	GetUser(ctx context.Context, id string) (devbattle.User, error)
	UpdateProfile(ctx context.Context, id, username, bio string) (devbattle.User, error)

	CreateSession(ctx context.Context, userID string, ttl time.Duration) (sessionID string, err error)
	UserFromSession(ctx context.Context, sessionID string) (devbattle.User, error)
	DeleteSession(ctx context.Context, sessionID string) error

	CreateChallenge(ctx context.Context, c devbattle.Challenge, questions []devbattle.Question) (devbattle.ChallengeDetail, error)
	GetChallenge(ctx context.Context, id string) (devbattle.ChallengeDetail, error)
	ChallengeByJoinCode(ctx context.Context, code string) (devbattle.Challenge, error)
	ListChallenges(ctx context.Context, creatorID string, statuses []devbattle.ChallengeStatus) ([]devbattle.ChallengeDetail, error)
	UpdateChallengeStatus(ctx context.Context, id string, status devbattle.ChallengeStatus) error

	AddParticipant(ctx context.Context, challengeID, userID string) error
	CountParticipants(ctx context.Context, challengeID string) (int, error)
}
