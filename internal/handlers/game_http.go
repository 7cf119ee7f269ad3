// internal/handlers/game_http.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/crusty/internal/auth"
	"github.com/jason-s-yu/crusty/internal/game"
	"github.com/jason-s-yu/crusty/internal/models"
)

// maxBodyBytes caps request bodies; commands are tiny.
const maxBodyBytes = 64 << 10

type submitRequest struct {
	CardIDs []string `json:"card_ids"`
}

type pickRequest struct {
	SubmissionID uuid.UUID `json:"submission_id"`
}

type targetRequest struct {
	PlayerID uuid.UUID `json:"player_id"`
}

type chatRequest struct {
	Text string `json:"text"`
}

type guestRequest struct {
	Name string `json:"name"`
}

type guestResponse struct {
	PlayerID uuid.UUID `json:"player_id"`
	Name     string    `json:"name"`
	Token    string    `json:"token"`
}

// Routes registers every HTTP and WebSocket endpoint on mux.
func (gs *GameServer) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /auth/guest", GuestTokenHandler(gs))
	mux.HandleFunc("GET /games", ListGamesHandler(gs))
	mux.HandleFunc("GET /games/{id}", GetStateHandler(gs))
	mux.HandleFunc("POST /games/{id}/join", JoinGameHandler(gs))
	mux.HandleFunc("POST /games/{id}/leave", gs.commandHandler(func(r *http.Request, gameID uuid.UUID, caller auth.Identity) (*CommandResult, error) {
		return gs.LeaveGame(r.Context(), gameID, caller.PlayerID)
	}))
	mux.HandleFunc("POST /games/{id}/submit", SubmitCardsHandler(gs))
	mux.HandleFunc("POST /games/{id}/retract", gs.commandHandler(func(r *http.Request, gameID uuid.UUID, caller auth.Identity) (*CommandResult, error) {
		return gs.RetractSubmission(r.Context(), gameID, caller.PlayerID)
	}))
	mux.HandleFunc("POST /games/{id}/pick", PickWinnerHandler(gs))
	mux.HandleFunc("POST /games/{id}/start", gs.commandHandler(func(r *http.Request, gameID uuid.UUID, caller auth.Identity) (*CommandResult, error) {
		return gs.StartGame(r.Context(), gameID, caller.PlayerID)
	}))
	mux.HandleFunc("POST /games/{id}/stop", gs.commandHandler(func(r *http.Request, gameID uuid.UUID, caller auth.Identity) (*CommandResult, error) {
		return gs.StopGame(r.Context(), gameID, caller.PlayerID)
	}))
	mux.HandleFunc("POST /games/{id}/kick", targetHandler(gs, gs.KickPlayer))
	mux.HandleFunc("POST /games/{id}/ban", targetHandler(gs, gs.BanPlayer))
	mux.HandleFunc("POST /games/{id}/unban", targetHandler(gs, gs.UnbanPlayer))
	mux.HandleFunc("POST /games/{id}/chat", PostMessageHandler(gs))
	mux.HandleFunc("GET /games/{id}/ws", GameWSHandler(gs))
	mux.HandleFunc("GET /packs", ListPacksHandler(gs))
	mux.HandleFunc("GET /cards", SearchCardsHandler(gs))
}

// commandHandler authenticates the caller, parses the game id and runs fn.
func (gs *GameServer) commandHandler(fn func(r *http.Request, gameID uuid.UUID, caller auth.Identity) (*CommandResult, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := gs.authenticate(r)
		if err != nil {
			writeError(w, err)
			return
		}
		gameID, err := gameIDFromPath(r)
		if err != nil {
			writeBadRequest(w, err.Error())
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		res, err := fn(r, gameID, caller)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// decodeBody reads a JSON body into v. An empty body leaves v untouched.
func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return badRequest{err}
	}
	return nil
}

// JoinGameHandler joins the caller to the game, creating it if needed.
// Optional JSON body: {"name", "game_name", "packs", "rules"}.
func JoinGameHandler(gs *GameServer) http.HandlerFunc {
	return gs.commandHandler(func(r *http.Request, gameID uuid.UUID, caller auth.Identity) (*CommandResult, error) {
		var req JoinRequest
		if err := decodeBody(r, &req); err != nil {
			return nil, err
		}
		return gs.JoinGame(r.Context(), gameID, caller, req)
	})
}

// SubmitCardsHandler expects {"card_ids": [...]}.
func SubmitCardsHandler(gs *GameServer) http.HandlerFunc {
	return gs.commandHandler(func(r *http.Request, gameID uuid.UUID, caller auth.Identity) (*CommandResult, error) {
		var req submitRequest
		if err := decodeBody(r, &req); err != nil {
			return nil, err
		}
		return gs.SubmitCards(r.Context(), gameID, caller.PlayerID, req.CardIDs)
	})
}

// PickWinnerHandler expects {"submission_id": "<entry uuid>"}, the id the
// winning submission is shown under while judging.
func PickWinnerHandler(gs *GameServer) http.HandlerFunc {
	return gs.commandHandler(func(r *http.Request, gameID uuid.UUID, caller auth.Identity) (*CommandResult, error) {
		var req pickRequest
		if err := decodeBody(r, &req); err != nil {
			return nil, err
		}
		return gs.PickWinner(r.Context(), gameID, caller.PlayerID, req.SubmissionID)
	})
}

// targetHandler serves the owner commands that act on another player.
// Expects {"player_id": "<uuid>"}.
func targetHandler(gs *GameServer, fn func(ctx context.Context, gameID, playerID, target uuid.UUID) (*CommandResult, error)) http.HandlerFunc {
	return gs.commandHandler(func(r *http.Request, gameID uuid.UUID, caller auth.Identity) (*CommandResult, error) {
		var req targetRequest
		if err := decodeBody(r, &req); err != nil {
			return nil, err
		}
		if req.PlayerID == uuid.Nil {
			return nil, badRequest{errors.New("player_id is required")}
		}
		return fn(r.Context(), gameID, caller.PlayerID, req.PlayerID)
	})
}

// PostMessageHandler expects {"text": "..."}.
func PostMessageHandler(gs *GameServer) http.HandlerFunc {
	return gs.commandHandler(func(r *http.Request, gameID uuid.UUID, caller auth.Identity) (*CommandResult, error) {
		var req chatRequest
		if err := decodeBody(r, &req); err != nil {
			return nil, err
		}
		return gs.PostMessage(r.Context(), gameID, caller.PlayerID, req.Text)
	})
}

// GetStateHandler returns the latest snapshot, plus the hand when the caller is seated.
func GetStateHandler(gs *GameServer) http.HandlerFunc {
	return gs.commandHandler(func(r *http.Request, gameID uuid.UUID, caller auth.Identity) (*CommandResult, error) {
		return gs.GetState(r.Context(), gameID, caller.PlayerID)
	})
}

// ListGamesHandler lists live games. Query parameters: q, status, min_free.
func ListGamesHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := gs.authenticate(r); err != nil {
			writeError(w, err)
			return
		}
		q := r.URL.Query()
		f := game.ListFilter{
			Query:  q.Get("q"),
			Status: game.Status(q.Get("status")),
		}
		if v := q.Get("min_free"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				writeBadRequest(w, "min_free must be a non-negative integer")
				return
			}
			f.MinFreeSeats = n
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"games": gs.ListGames(f)})
	}
}

// ListPacksHandler lists the card packs a new game can be built from.
func ListPacksHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"packs": gs.Catalog.Packs()})
	}
}

// SearchCardsHandler searches card text. Query parameters: q, kind, limit (default 50).
func SearchCardsHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		kind := models.CardKind(q.Get("kind"))
		if kind != "" && kind != models.CardKindPrompt && kind != models.CardKindResponse {
			writeBadRequest(w, "kind must be prompt or response")
			return
		}
		limit := 50
		if v := q.Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				writeBadRequest(w, "limit must be a positive integer")
				return
			}
			limit = n
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"cards": gs.Catalog.Search(q.Get("q"), kind, limit)})
	}
}

// GuestTokenHandler issues a token for a new guest player and sets it as the auth cookie.
func GuestTokenHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req guestRequest
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := decodeBody(r, &req); err != nil {
			writeBadRequest(w, err.Error())
			return
		}
		name, err := cleanName(req.Name)
		if err != nil {
			writeError(w, err)
			return
		}

		id := uuid.New()
		token, err := gs.Keys.CreateJWT(id, name)
		if err != nil {
			gs.log.Errorf("failed to issue guest token: %v", err)
			writeError(w, err)
			return
		}
		cookie := &http.Cookie{
			Name:     AuthCookieName,
			Value:    token,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		}
		if ttl := gs.Keys.TTL(); ttl > 0 {
			cookie.Expires = time.Now().Add(ttl)
		}
		http.SetCookie(w, cookie)
		writeJSON(w, http.StatusCreated, guestResponse{PlayerID: id, Name: name, Token: token})
	}
}
