// Package devbattle defines the core domain types shared by the store,
// the HTTP layer and the session view client.
// It has zero external dependencies — everything here is pure Go.
package devbattle

import "time"

type User struct {
	ID             string
	Email          string
	Name           string
	Username       string
	Bio            string
	ProfilePicture string
	CreatedAt      time.Time
}

type Challenge struct {
	ID          string
	Title       string
	Description string
	Duration    int
	JoinCode    string
	Status      ChallengeStatus
	CreatorID   string
	CreatedAt   time.Time
}

type ChallengeStatus string

const (
	StatusNotStarted ChallengeStatus = "NOT_STARTED"
	StatusInProgress ChallengeStatus = "IN_PROGRESS"
	StatusCompleted  ChallengeStatus = "COMPLETED"
	StatusCancelled  ChallengeStatus = "CANCELLED"
)

// Valid reports whether s is one of the known statuses.
func (s ChallengeStatus) Valid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// ListType selects a group of statuses for challenge listings.
type ListType string

const (
	ListActive ListType = "active"
	ListPast   ListType = "past"
)

// Statuses returns the statuses belonging to t, or nil for an unknown type.
func (t ListType) Statuses() []ChallengeStatus {
	switch t {
	case ListActive:
		return []ChallengeStatus{StatusNotStarted, StatusInProgress}
	case ListPast:
		return []ChallengeStatus{StatusCompleted, StatusCancelled}
	}
	return nil
}

type Question struct {
	ID               string
	ChallengeID      string
	Title            string
	ProblemStatement string
	InputFormat      string
	OutputFormat     string
	Constraints      string
	TestCases        []TestCase
}

type TestCase struct {
	ID             string
	QuestionID     string
	Input          string
	ExpectedOutput string
}

// Participant is one row of the participant relation.
type Participant struct {
	UserID   string
	Name     string
	Username string
	JoinedAt time.Time
}

// ChallengeDetail is a challenge with its nested questions and participants.
type ChallengeDetail struct {
	Challenge
	Questions    []Question
	Participants []Participant
}
