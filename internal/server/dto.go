package server

import (
	"time"

	"github.com/devbattle/devbattle/internal/devbattle"
)

// UserResponse is the projected user returned by the API. The password hash
// never leaves the store.
type UserResponse struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	Name           string `json:"name"`
	Username       string `json:"username"`
	Bio            string `json:"bio"`
	ProfilePicture string `json:"profilePicture"`
}

type TestCaseResponse struct {
	ID             string `json:"id"`
	Input          string `json:"input"`
	ExpectedOutput string `json:"expectedOutput"`
}

type QuestionResponse struct {
	ID               string             `json:"id"`
	Title            string             `json:"title"`
	ProblemStatement string             `json:"problemStatement"`
	InputFormat      string             `json:"inputFormat"`
	OutputFormat     string             `json:"outputFormat"`
	Constraints      string             `json:"constraints"`
	TestCases        []TestCaseResponse `json:"testCases"`
}

// QuestionSummary is a question without test cases, used in listings.
type QuestionSummary struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	ProblemStatement string `json:"problemStatement"`
}

type ParticipantResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
	JoinedAt string `json:"joinedAt"`
}

// ChallengeResponse is a challenge with nested questions, test cases and
// participants.
type ChallengeResponse struct {
	ID           string                `json:"id"`
	Title        string                `json:"title"`
	Description  string                `json:"description"`
	Duration     int                   `json:"duration"`
	JoinCode     string                `json:"joinCode"`
	Status       string                `json:"status"`
	CreatorID    string                `json:"creatorId"`
	CreatedAt    string                `json:"createdAt"`
	Questions    []QuestionResponse    `json:"questions"`
	Participants []ParticipantResponse `json:"participants"`
}

// ChallengeSummary is returned by the listing endpoint.
type ChallengeSummary struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Duration    int               `json:"duration"`
	JoinCode    string            `json:"joinCode"`
	Status      string            `json:"status"`
	CreatedAt   string            `json:"createdAt"`
	Questions   []QuestionSummary `json:"questions"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func toUserResponse(u devbattle.User) UserResponse {
	return UserResponse{
		ID:             u.ID,
		Email:          u.Email,
		Name:           u.Name,
		Username:       u.Username,
		Bio:            u.Bio,
		ProfilePicture: u.ProfilePicture,
	}
}

func toChallengeResponse(d devbattle.ChallengeDetail) ChallengeResponse {
	resp := ChallengeResponse{
		ID:           d.ID,
		Title:        d.Title,
		Description:  d.Description,
		Duration:     d.Duration,
		JoinCode:     d.JoinCode,
		Status:       string(d.Status),
		CreatorID:    d.CreatorID,
		CreatedAt:    formatTime(d.CreatedAt),
		Questions:    make([]QuestionResponse, 0, len(d.Questions)),
		Participants: make([]ParticipantResponse, 0, len(d.Participants)),
	}
	for _, q := range d.Questions {
		qr := QuestionResponse{
			ID:               q.ID,
			Title:            q.Title,
			ProblemStatement: q.ProblemStatement,
			InputFormat:      q.InputFormat,
			OutputFormat:     q.OutputFormat,
			Constraints:      q.Constraints,
			TestCases:        make([]TestCaseResponse, 0, len(q.TestCases)),
		}
		for _, tc := range q.TestCases {
			qr.TestCases = append(qr.TestCases, TestCaseResponse{
				ID:             tc.ID,
				Input:          tc.Input,
				ExpectedOutput: tc.ExpectedOutput,
			})
		}
		resp.Questions = append(resp.Questions, qr)
	}
	for _, p := range d.Participants {
		resp.Participants = append(resp.Participants, ParticipantResponse{
			ID:       p.UserID,
			Name:     p.Name,
			Username: p.Username,
			JoinedAt: formatTime(p.JoinedAt),
		})
	}
	return resp
}

func toChallengeSummary(d devbattle.ChallengeDetail) ChallengeSummary {
	s := ChallengeSummary{
		ID:          d.ID,
		Title:       d.Title,
		Description: d.Description,
		Duration:    d.Duration,
		JoinCode:    d.JoinCode,
		Status:      string(d.Status),
		CreatedAt:   formatTime(d.CreatedAt),
		Questions:   make([]QuestionSummary, 0, len(d.Questions)),
	}
	for _, q := range d.Questions {
		s.Questions = append(s.Questions, QuestionSummary{
			ID:               q.ID,
			Title:            q.Title,
			ProblemStatement: q.ProblemStatement,
		})
	}
	return s
}
