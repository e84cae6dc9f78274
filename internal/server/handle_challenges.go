package server

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/devbattle/devbattle/internal/devbattle"
)

// CreateChallengeRequest is the request body for POST /api/createChallenge.
type CreateChallengeRequest struct {
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Duration    int               `json:"duration"`
	Questions   []QuestionRequest `json:"questions"`
}

type QuestionRequest struct {
	Title            string            `json:"title"`
	ProblemStatement string            `json:"problemStatement"`
	InputFormat      string            `json:"inputFormat"`
	OutputFormat     string            `json:"outputFormat"`
	Constraints      string            `json:"constraints"`
	TestCases        []TestCaseRequest `json:"testCases"`
}

type TestCaseRequest struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expectedOutput"`
}

// ChallengeEnvelope wraps a single challenge, e.g. {"challenge": {...}}.
type ChallengeEnvelope struct {
	Challenge ChallengeResponse `json:"challenge"`
}

// ChallengeListResponse is returned by GET /api/getChallenges.
type ChallengeListResponse struct {
	Challenges []ChallengeSummary `json:"challenges"`
}

func (req *CreateChallengeRequest) validate() string {
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return "title is required"
	}
	if req.Duration < 0 {
		return "duration must not be negative"
	}
	return ""
}

func (req *CreateChallengeRequest) questions() []devbattle.Question {
	questions := make([]devbattle.Question, 0, len(req.Questions))
	for _, q := range req.Questions {
		dq := devbattle.Question{
			Title:            q.Title,
			ProblemStatement: q.ProblemStatement,
			InputFormat:      q.InputFormat,
			OutputFormat:     q.OutputFormat,
			Constraints:      q.Constraints,
			TestCases:        make([]devbattle.TestCase, 0, len(q.TestCases)),
		}
		for _, tc := range q.TestCases {
			dq.TestCases = append(dq.TestCases, devbattle.TestCase{
				Input:          tc.Input,
				ExpectedOutput: tc.ExpectedOutput,
			})
		}
		questions = append(questions, dq)
	}
	return questions
}

func handleCreateChallenge(logger *slog.Logger, store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateChallengeRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if msg := req.validate(); msg != "" {
			writeError(w, http.StatusBadRequest, msg)
			return
		}

		user := userFrom(r)
		detail, err := store.CreateChallenge(r.Context(), devbattle.Challenge{
			Title:       req.Title,
			Description: req.Description,
			Duration:    req.Duration,
			CreatorID:   user.ID,
		}, req.questions())
		if err != nil {
			writeInternal(w, r, logger, "creating challenge", err)
			return
		}

		logger.Info("challenge created",
			"challenge_id", detail.ID,
			"creator_id", user.ID,
			"questions", len(detail.Questions),
		)
		writeJSON(w, http.StatusCreated, ChallengeEnvelope{Challenge: toChallengeResponse(detail)})
	}
}

func handleListChallenges(logger *slog.Logger, store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		statuses := devbattle.ListType(r.URL.Query().Get("type")).Statuses()
		if statuses == nil {
			writeError(w, http.StatusBadRequest, "invalid type query parameter")
			return
		}

		challenges, err := store.ListChallenges(r.Context(), userFrom(r).ID, statuses)
		if err != nil {
			writeInternal(w, r, logger, "fetching challenges", err)
			return
		}

		resp := ChallengeListResponse{Challenges: make([]ChallengeSummary, 0, len(challenges))}
		for _, c := range challenges {
			resp.Challenges = append(resp.Challenges, toChallengeSummary(c))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
