// internal/handlers/game_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/crusty/internal/auth"
	"github.com/jason-s-yu/crusty/internal/events"
	"github.com/jason-s-yu/crusty/internal/game"
	"github.com/jason-s-yu/crusty/internal/middleware"
	"github.com/sirupsen/logrus"
)

// wsWriteTimeout bounds every write to a client socket.
const wsWriteTimeout = 5 * time.Second

// GameMessage is a command sent by the client over the game socket.
type GameMessage struct {
	Type string `json:"type"` // submit, retract, pick, start, stop, kick, ban, unban, chat, leave, state, ping
	// ID is echoed back on the reply so clients can match responses.
	ID           string    `json:"id,omitempty"`
	CardIDs      []string  `json:"card_ids,omitempty"`
	SubmissionID uuid.UUID `json:"submission_id"`
	PlayerID     uuid.UUID `json:"player_id"` // target of kick, ban and unban
	Text         string    `json:"text,omitempty"`
}

// wsMessage is everything the server writes to the socket.
type wsMessage struct {
	Type    string          `json:"type"` // joined, result, state, event, error, pong
	ID      string          `json:"id,omitempty"`
	Command string          `json:"command,omitempty"`
	Result  *CommandResult  `json:"result,omitempty"`
	Event   json.RawMessage `json:"event,omitempty"`
	Error   string          `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
}

// GameWSHandler upgrades the connection, joins (or reconnects) the caller to
// the game in the path, then serves commands until the socket closes. Live
// events for the game are relayed from the broker when a feed is configured.
// A dropped socket marks the player disconnected; it does not give up the seat.
func GameWSHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gameID, err := gameIDFromPath(r)
		if err != nil {
			writeBadRequest(w, err.Error())
			return
		}
		caller, authErr := gs.authenticate(r)

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"game"},
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			gs.log.Warnf("WebSocket accept error for game %s: %v", gameID, err)
			return
		}
		defer c.CloseNow()

		if c.Subprotocol() != "game" {
			gs.log.Warnf("Client for game %s connected with invalid subprotocol: %q", gameID, c.Subprotocol())
			c.Close(BadSubprotocolError, "client must use the 'game' subprotocol")
			return
		}
		if authErr != nil {
			gs.log.Debugf("WebSocket auth failed for game %s: %v", gameID, authErr)
			c.Close(InvalidAuthTokenError, "authentication failed")
			return
		}

		log := gs.log.WithFields(logrus.Fields{"game_id": gameID, "player_id": caller.PlayerID})
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		res, err := gs.openSocket(ctx, gameID, caller, r.URL.Query().Get("name"))
		if err != nil {
			_, code := errorStatus(err)
			sendWsError(ctx, c, "", "join", err)
			c.Close(JoinRejectedError, code)
			return
		}
		middleware.LogWebSocketConnect(gs.logger, r.RemoteAddr, gameID.String(), caller.PlayerID.String())
		sendWsMessage(ctx, c, wsMessage{Type: "joined", Result: res})

		if gs.Live != nil {
			go gs.relayEvents(ctx, c, gameID, caller.PlayerID, log)
		}

		left, readErr := gs.readGameMessages(ctx, c, gameID, caller.PlayerID, log)
		cancel()

		if err := gs.closeSocket(context.Background(), gameID, caller.PlayerID); err != nil && !errors.Is(err, game.ErrNotFound) {
			log.Warnf("failed to mark player disconnected: %v", err)
		}
		middleware.LogWebSocketDisconnect(gs.logger, r.RemoteAddr, gameID.String(), caller.PlayerID.String(), readErr)
		if left {
			c.Close(websocket.StatusNormalClosure, "left game")
		}
	}
}

// readGameMessages serves commands until the socket closes, the context is
// cancelled, or the player leaves. It reports whether the player left.
func (gs *GameServer) readGameMessages(ctx context.Context, c *websocket.Conn, gameID, playerID uuid.UUID, log *logrus.Entry) (bool, error) {
	for {
		msgType, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			switch {
			case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
				log.Debug("WebSocket closed normally")
				return false, nil
			case errors.Is(err, context.Canceled):
				log.Debug("WebSocket context canceled")
				return false, nil
			default:
				log.Debugf("Error reading from WebSocket: %v (status %d)", err, status)
				return false, err
			}
		}

		if msgType != websocket.MessageText {
			log.Warnf("Received non-text message type %d, ignoring", msgType)
			continue
		}

		var msg GameMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			sendWsError(ctx, c, "", "", badRequest{err})
			continue
		}

		if msg.Type == "ping" {
			sendWsMessage(ctx, c, wsMessage{Type: "pong", ID: msg.ID})
			continue
		}

		log.Tracef("Received command %q", msg.Type)
		res, err := gs.dispatch(ctx, gameID, playerID, msg)
		if err != nil {
			sendWsError(ctx, c, msg.ID, msg.Type, err)
			continue
		}
		sendWsMessage(ctx, c, wsMessage{Type: "result", ID: msg.ID, Command: msg.Type, Result: res})

		if msg.Type == "leave" {
			return true, nil
		}
	}
}

// dispatch routes one socket command to the matching gateway operation.
func (gs *GameServer) dispatch(ctx context.Context, gameID, playerID uuid.UUID, msg GameMessage) (*CommandResult, error) {
	switch msg.Type {
	case "submit":
		return gs.SubmitCards(ctx, gameID, playerID, msg.CardIDs)
	case "retract":
		return gs.RetractSubmission(ctx, gameID, playerID)
	case "pick":
		return gs.PickWinner(ctx, gameID, playerID, msg.SubmissionID)
	case "start":
		return gs.StartGame(ctx, gameID, playerID)
	case "stop":
		return gs.StopGame(ctx, gameID, playerID)
	case "kick":
		return gs.KickPlayer(ctx, gameID, playerID, msg.PlayerID)
	case "ban":
		return gs.BanPlayer(ctx, gameID, playerID, msg.PlayerID)
	case "unban":
		return gs.UnbanPlayer(ctx, gameID, playerID, msg.PlayerID)
	case "chat":
		return gs.PostMessage(ctx, gameID, playerID, msg.Text)
	case "leave":
		return gs.LeaveGame(ctx, gameID, playerID)
	case "state":
		return gs.GetState(ctx, gameID, playerID)
	default:
		return nil, badRequest{fmt.Errorf("unknown command %q", msg.Type)}
	}
}

// relayEvents forwards the game's published events to the socket. After each
// event the player also gets a fresh state with their hand, unless nothing
// has committed since the last one they were sent.
func (gs *GameServer) relayEvents(ctx context.Context, c *websocket.Conn, gameID, playerID uuid.UUID, log *logrus.Entry) {
	pubsub := gs.Live.Subscribe(ctx, gameID)
	defer pubsub.Close()

	var lastSeq uint64
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev relayedEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Warnf("dropping malformed event on %s", msg.Channel)
				continue
			}
			sendWsMessage(ctx, c, wsMessage{Type: "event", Event: json.RawMessage(msg.Payload)})
			if ev.removes(playerID) {
				c.Close(RemovedError, string(ev.Kind))
				return
			}

			h, err := gs.Registry.Get(gameID)
			if err != nil {
				continue
			}
			snap := h.Snapshot()
			if snap.Sequence <= lastSeq {
				continue
			}
			lastSeq = snap.Sequence
			sendWsMessage(ctx, c, wsMessage{Type: "state", Result: gs.result(snap, playerID)})
			if snap.Status.Terminal() {
				c.Close(GameClosedError, "game "+string(snap.Status))
				return
			}
		}
	}
}

// relayedEvent is the part of a broker event the relay inspects.
type relayedEvent struct {
	Kind    events.Kind `json:"kind"`
	Payload struct {
		PlayerID uuid.UUID `json:"player_id"`
	} `json:"payload"`
}

// removes reports whether the event took playerID's seat away from them.
func (ev relayedEvent) removes(playerID uuid.UUID) bool {
	return (ev.Kind == events.KindPlayerKicked || ev.Kind == events.KindPlayerBanned) && ev.Payload.PlayerID == playerID
}

// openSocket joins the caller and counts the socket in the same session
// command, so it cannot interleave with another of the player's sockets closing.
func (gs *GameServer) openSocket(ctx context.Context, gameID uuid.UUID, caller auth.Identity, name string) (*CommandResult, error) {
	return gs.join(ctx, gameID, caller, JoinRequest{Name: name}, func() {
		gs.trackConn(gameID, caller.PlayerID, 1)
	})
}

// closeSocket uncounts a socket. Closing the last one marks a seated player
// disconnected, under the same session lock the count changed in.
func (gs *GameServer) closeSocket(ctx context.Context, gameID, playerID uuid.UUID) error {
	_, span := gs.startSpan(ctx, "disconnect", gameID, playerID)
	defer span.End()

	counted := false
	h, err := gs.Registry.Get(gameID)
	if err == nil {
		_, err = h.Exec(func(s *game.Session) error {
			counted = true
			if gs.trackConn(gameID, playerID, -1) > 0 || !s.IsParticipant(playerID) {
				return nil
			}
			return s.Disconnect(playerID)
		})
	}
	if !counted {
		// the session is gone; only the count is left to fix
		gs.trackConn(gameID, playerID, -1)
	}
	return err
}

// trackConn adjusts the number of open sockets a player has on a game and
// returns the new count.
func (gs *GameServer) trackConn(gameID, playerID uuid.UUID, delta int) int {
	gs.connMu.Lock()
	defer gs.connMu.Unlock()
	key := connKey{gameID, playerID}
	n := gs.conns[key] + delta
	if n <= 0 {
		delete(gs.conns, key)
		return 0
	}
	gs.conns[key] = n
	return n
}

type connKey struct {
	game   uuid.UUID
	player uuid.UUID
}

// sendWsMessage marshals a message and writes it with a timeout. Write errors
// are left for the read loop to notice.
func sendWsMessage(ctx context.Context, c *websocket.Conn, message wsMessage) {
	msgBytes, err := json.Marshal(message)
	if err != nil {
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	_ = c.Write(writeCtx, websocket.MessageText, msgBytes)
}

// sendWsError sends a structured error reply using the same codes as the HTTP surface.
func sendWsError(ctx context.Context, c *websocket.Conn, id, command string, err error) {
	status, code := errorStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}
	sendWsMessage(ctx, c, wsMessage{
		Type:    "error",
		ID:      id,
		Command: command,
		Error:   code,
		Message: msg,
	})
}
