package server

import (
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/swaggest/swgui/v5emb"

	"github.com/devbattle/devbattle/internal/room"
)

func addRoutes(r chi.Router, logger *slog.Logger, opts Options, store Store, rooms *room.Service) {
	auth := requireUser(logger, store)

	r.MethodNotAllowed(handleMethodNotAllowed)

	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", v5emb.New("DevBattle API", "/openapi.json", "/docs"))

	// Identity.
	r.Post("/api/auth/login", handleLogin(logger, store, opts.SessionTTL, opts.CookieSecure))
	r.Post("/api/auth/logout", handleLogout(logger, store, opts.CookieSecure))
	r.With(auth).Get("/api/auth/session", handleSession())

	// Profile.
	r.With(auth).Get("/api/user", handleGetUser(logger, store))
	r.With(auth).Put("/api/completeprofile", handleCompleteProfile(logger, store))

	// Challenges.
	r.With(auth).Get("/api/getChallenges", handleListChallenges(logger, store))
	r.With(auth).Post("/api/createChallenge", handleCreateChallenge(logger, store))
	r.Route("/api/challenge", func(r chi.Router) {
		r.With(auth).Post("/join", handleJoin(logger, store, rooms, opts.BroadcastOnJoin))
		// Without this, GET /join would match {challengeId}.
		r.Get("/join", handleMethodNotAllowed)
		r.Get("/{challengeId}", handleGetChallenge(logger, store))
		r.With(auth).Put("/{challengeId}/status", handleUpdateStatus(logger, store))
		r.Get("/{challengeId}/events", handleEvents(logger, rooms))
	})

	// Real-time room channel.
	r.Get("/api/socket", handleSocket(logger, rooms))

	if opts.SPADir != "" {
		if info, err := os.Stat(opts.SPADir); err == nil && info.IsDir() {
			logger.Info("serving SPA", "dir", opts.SPADir)
			r.NotFound(handleSPA(opts.SPADir))
			return
		}
	}
	r.NotFound(handleNotFound)
}
