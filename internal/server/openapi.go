package server

import (
	"encoding/json"
	"net/http"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"
)

type challengePath struct {
	ChallengeID string `path:"challengeId"`
}

type updateStatusInput struct {
	ChallengeID string `path:"challengeId"`
	UpdateStatusRequest
}

type listChallengesQuery struct {
	Type string `query:"type" enum:"active,past" required:"true"`
}

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "DevBattle API"
	r.Spec.Info.Version = "0.1.0"
	r.Spec.Info.WithDescription("Backend API for hosting and joining coding challenges.")

	// POST /api/auth/login
	login, _ := r.NewOperationContext(http.MethodPost, "/api/auth/login")
	login.SetSummary("Sign in")
	login.SetDescription("Signs in with email and password, creating the account on first use. Sets the devbattle_session cookie.")
	login.AddReqStructure(LoginRequest{})
	login.AddRespStructure(UserEnvelope{}, openapi.WithHTTPStatus(http.StatusOK))
	login.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	login.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnauthorized))
	_ = r.AddOperation(login)

	// POST /api/auth/logout
	logout, _ := r.NewOperationContext(http.MethodPost, "/api/auth/logout")
	logout.SetSummary("Sign out")
	logout.SetDescription("Deletes the session and clears the cookie.")
	logout.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK))
	_ = r.AddOperation(logout)

	// GET /api/auth/session
	session, _ := r.NewOperationContext(http.MethodGet, "/api/auth/session")
	session.SetSummary("Current session")
	session.AddRespStructure(UserEnvelope{}, openapi.WithHTTPStatus(http.StatusOK))
	session.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnauthorized))
	_ = r.AddOperation(session)

	// GET /api/user
	getUser, _ := r.NewOperationContext(http.MethodGet, "/api/user")
	getUser.SetSummary("Current user")
	getUser.SetDescription("Returns the projected profile of the signed-in user.")
	getUser.AddRespStructure(UserEnvelope{}, openapi.WithHTTPStatus(http.StatusOK))
	getUser.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnauthorized))
	getUser.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(getUser)

	// PUT /api/completeprofile
	profile, _ := r.NewOperationContext(http.MethodPut, "/api/completeprofile")
	profile.SetSummary("Complete profile")
	profile.SetDescription("Sets the username and bio of the signed-in user.")
	profile.AddReqStructure(CompleteProfileRequest{})
	profile.AddRespStructure(UserEnvelope{}, openapi.WithHTTPStatus(http.StatusOK))
	profile.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnauthorized))
	profile.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	_ = r.AddOperation(profile)

	// GET /api/getChallenges
	list, _ := r.NewOperationContext(http.MethodGet, "/api/getChallenges")
	list.SetSummary("List own challenges")
	list.SetDescription("Lists challenges created by the caller. type=active selects NOT_STARTED and IN_PROGRESS, type=past selects COMPLETED and CANCELLED.")
	list.AddReqStructure(listChallengesQuery{})
	list.AddRespStructure(ChallengeListResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	list.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	list.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnauthorized))
	_ = r.AddOperation(list)

	// POST /api/createChallenge
	create, _ := r.NewOperationContext(http.MethodPost, "/api/createChallenge")
	create.SetSummary("Create challenge")
	create.SetDescription("Creates a challenge with its questions and test cases and assigns a join code.")
	create.AddReqStructure(CreateChallengeRequest{})
	create.AddRespStructure(ChallengeEnvelope{}, openapi.WithHTTPStatus(http.StatusCreated))
	create.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	create.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnauthorized))
	_ = r.AddOperation(create)

	// POST /api/challenge/join
	join, _ := r.NewOperationContext(http.MethodPost, "/api/challenge/join")
	join.SetSummary("Join challenge")
	join.SetDescription("Adds the caller to the participants of the challenge with the given join code.")
	join.AddReqStructure(JoinRequest{})
	join.AddRespStructure(JoinResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	join.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	join.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnauthorized))
	_ = r.AddOperation(join)

	// GET /api/challenge/{challengeId}
	get, _ := r.NewOperationContext(http.MethodGet, "/api/challenge/{challengeId}")
	get.SetSummary("Get challenge")
	get.SetDescription("Returns the challenge with questions, test cases and participants.")
	get.AddReqStructure(challengePath{})
	get.AddRespStructure(ChallengeResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	get.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(get)

	// PUT /api/challenge/{challengeId}/status
	status, _ := r.NewOperationContext(http.MethodPut, "/api/challenge/{challengeId}/status")
	status.SetSummary("Update challenge status")
	status.SetDescription("Moves the challenge to another status. Creator only.")
	status.AddReqStructure(updateStatusInput{})
	status.AddRespStructure(ChallengeEnvelope{}, openapi.WithHTTPStatus(http.StatusOK))
	status.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	status.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusForbidden))
	status.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(status)

	// GET /api/challenge/{challengeId}/events
	events, _ := r.NewOperationContext(http.MethodGet, "/api/challenge/{challengeId}/events")
	events.SetSummary("Room event stream")
	events.SetDescription("Server-Sent Events for the challenge room. Emits userJoined events.")
	events.AddReqStructure(challengePath{})
	events.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK),
		openapi.WithContentType("text/event-stream"))
	_ = r.AddOperation(events)

	// GET /api/socket
	socket, _ := r.NewOperationContext(http.MethodGet, "/api/socket")
	socket.SetSummary("Room WebSocket")
	socket.SetDescription("Upgrades to a WebSocket. Send joinChallengeRoom {challengeId} to receive userJoined {userId, userName}. Without an upgrade, reports the number of connected clients.")
	socket.AddRespStructure(SocketStatusResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	socket.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusSwitchingProtocols),
		openapi.WithContentType("text/plain"))
	_ = r.AddOperation(socket)

	return r.Spec
}

func handleOpenAPI() http.HandlerFunc {
	spec := newOpenAPISpec()
	data, _ := json.MarshalIndent(spec, "", "  ")

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
