package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jason-s-yu/crusty/internal/auth"
	"github.com/jason-s-yu/crusty/internal/catalog"
	"github.com/jason-s-yu/crusty/internal/game"
)

// AuthCookieName is the cookie carrying the player's token.
const AuthCookieName = "auth_token"

// MaxNameLength caps display names, in characters.
const MaxNameLength = 32

// extractCookieToken extracts a named cookie value from "Cookie" header, or returns empty if not found.
func extractCookieToken(cookieHeader, cookieName string) string {
	for _, part := range strings.Split(cookieHeader, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if ok && name == cookieName {
			return value
		}
	}
	return ""
}

// requestToken finds the caller's token in the auth cookie, a Bearer
// Authorization header, or the "token" query parameter, in that order.
// The query form exists for browser WebSocket clients, which cannot set headers.
func requestToken(r *http.Request) string {
	if token := extractCookieToken(r.Header.Get("Cookie"), AuthCookieName); token != "" {
		return token
	}
	if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(bearer)
	}
	return r.URL.Query().Get("token")
}

// authenticate resolves the caller's identity or fails with auth.ErrUnauthorized.
func (gs *GameServer) authenticate(r *http.Request) (auth.Identity, error) {
	token := requestToken(r)
	if token == "" {
		return auth.Identity{}, fmt.Errorf("%w: missing token", auth.ErrUnauthorized)
	}
	return gs.Keys.Authenticate(token)
}

// cleanName trims a display name and rejects one longer than MaxNameLength.
func cleanName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if n := utf8.RuneCountInString(name); n > MaxNameLength {
		return "", badRequest{fmt.Errorf("name has %d characters, the limit is %d", n, MaxNameLength)}
	}
	return name, nil
}

// gameIDFromPath parses the {id} path segment.
func gameIDFromPath(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid game id %q", r.PathValue("id"))
	}
	return id, nil
}

// errorStatus maps a command error onto an HTTP status and a stable code
// shared by the HTTP and WebSocket surfaces.
func errorStatus(err error) (int, string) {
	var bad badRequest
	switch {
	case errors.As(err, &bad):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, game.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, catalog.ErrUnknownPack):
		return http.StatusBadRequest, "unknown_pack"
	case errors.Is(err, game.ErrInvalidRules):
		return http.StatusBadRequest, "invalid_rules"
	case errors.Is(err, game.ErrInvalidSubmission):
		return http.StatusUnprocessableEntity, "invalid_submission"
	case errors.Is(err, game.ErrInvalidSelection):
		return http.StatusUnprocessableEntity, "invalid_selection"
	case errors.Is(err, game.ErrInvalidTarget):
		return http.StatusUnprocessableEntity, "invalid_target"
	case errors.Is(err, game.ErrInvalidMessage):
		return http.StatusUnprocessableEntity, "invalid_message"
	case errors.Is(err, game.ErrNotOwner):
		return http.StatusForbidden, "not_owner"
	case errors.Is(err, game.ErrBanned):
		return http.StatusForbidden, "banned"
	case errors.Is(err, game.ErrSessionFull):
		return http.StatusConflict, "session_full"
	case errors.Is(err, game.ErrSessionClosed):
		return http.StatusConflict, "session_closed"
	case errors.Is(err, game.ErrNotEnoughPlayers):
		return http.StatusConflict, "not_enough_players"
	case errors.Is(err, game.ErrAlreadyStarted):
		return http.StatusConflict, "already_started"
	case errors.Is(err, game.ErrNotStarted):
		return http.StatusConflict, "not_started"
	case errors.Is(err, game.ErrDeckExhausted):
		return http.StatusConflict, "deck_exhausted"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// badRequest marks a malformed request body.
type badRequest struct{ err error }

func (b badRequest) Error() string { return "malformed request body: " + b.err.Error() }
func (b badRequest) Unwrap() error { return b.err }

// errorBody is the JSON shape of every error reply.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}
	writeJSON(w, status, errorBody{Error: code, Message: msg})
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Message: msg})
}
