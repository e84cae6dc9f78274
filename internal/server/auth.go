package server

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

const sessionCookieName = "devbattle_session"

var errNoSession = errors.New("no valid session")

// sessionToken reads the session ID from the cookie, falling back to a
// Bearer Authorization header.
func sessionToken(r *http.Request) string {
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if found {
		return strings.TrimSpace(token)
	}
	return ""
}

func setSessionCookie(w http.ResponseWriter, sessionID string, ttl time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
