// internal/handlers/game_server.go
package handlers

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jason-s-yu/crusty/internal/auth"
	"github.com/jason-s-yu/crusty/internal/game"
	"github.com/jason-s-yu/crusty/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// CardCatalog is the read side of the card catalog the gateway needs.
type CardCatalog interface {
	Resolve(packIDs []string) (prompts, responses []models.Card, err error)
	Search(query string, kind models.CardKind, limit int) []models.Card
	Packs() []models.Pack
}

// LiveFeed streams the published events of one game.
type LiveFeed interface {
	Subscribe(ctx context.Context, gameID uuid.UUID) *redis.PubSub
}

// GameServer is the command gateway. It authenticates callers, checks they
// belong to the target game and forwards each command to the game's session.
// Game rules live in the session, not here.
type GameServer struct {
	Registry     *game.Registry
	Catalog      CardCatalog
	Keys         *auth.Keys
	Live         LiveFeed // optional
	Rules        game.Rules
	DefaultPacks []string

	logger *logrus.Logger
	log    *logrus.Entry
	tracer trace.Tracer

	connMu sync.Mutex
	conns  map[connKey]int
}

// NewGameServer wires a gateway. live may be nil, in which case WebSocket
// clients only receive replies to their own commands.
func NewGameServer(registry *game.Registry, catalog CardCatalog, keys *auth.Keys, live LiveFeed, rules game.Rules, defaultPacks []string, logger *logrus.Logger) *GameServer {
	return &GameServer{
		Registry:     registry,
		Catalog:      catalog,
		Keys:         keys,
		Live:         live,
		Rules:        rules,
		DefaultPacks: defaultPacks,
		logger:       logger,
		log:          logger.WithField("component", "gateway"),
		tracer:       otel.Tracer("github.com/jason-s-yu/crusty/internal/handlers"),
		conns:        make(map[connKey]int),
	}
}

// CommandResult is what every command returns: the public state plus the caller's hand.
type CommandResult struct {
	State *game.Snapshot `json:"state"`
	Hand  []models.Card  `json:"hand,omitempty"`
}

// JoinRequest carries the optional settings of a join. GameName, Packs and
// Rules only apply when the join creates the game.
type JoinRequest struct {
	Name     string                 `json:"name"`
	GameName string                 `json:"game_name"`
	Packs    []string               `json:"packs"`
	Rules    map[string]interface{} `json:"rules"`
}

// JoinGame seats the caller in gameID, creating the game on first join.
// A caller already seated is reconnected.
func (gs *GameServer) JoinGame(ctx context.Context, gameID uuid.UUID, caller auth.Identity, req JoinRequest) (*CommandResult, error) {
	return gs.join(ctx, gameID, caller, req, nil)
}

// join runs the join command. onJoined, when set, runs under the session lock
// once the join has succeeded.
func (gs *GameServer) join(ctx context.Context, gameID uuid.UUID, caller auth.Identity, req JoinRequest, onJoined func()) (*CommandResult, error) {
	_, span := gs.startSpan(ctx, "join", gameID, caller.PlayerID)
	defer span.End()

	name, err := cleanName(req.Name)
	if err != nil {
		return nil, gs.fail(span, "join", gameID, caller.PlayerID, err)
	}
	if name == "" {
		name = caller.Name
	}
	if name == "" {
		name = "Player " + caller.PlayerID.String()[:8]
	}

	join := func(s *game.Session) error {
		if err := s.Join(caller.PlayerID, name); err != nil {
			return err
		}
		if onJoined != nil {
			onJoined()
		}
		return nil
	}

	// A sweep may drop the session between lookup and join; the retry then creates a fresh one.
	var snap *game.Snapshot
	for attempt := 0; attempt < 2; attempt++ {
		var h *game.Handle
		var created bool
		h, created, err = gs.Registry.GetOrCreate(gameID, func() (*game.Session, error) {
			return gs.newSession(gameID, req)
		})
		if err != nil {
			break
		}
		if created {
			span.AddEvent("game created")
		}
		snap, err = h.Exec(join)
		if !errors.Is(err, game.ErrNotFound) {
			break
		}
	}
	if err != nil {
		return nil, gs.fail(span, "join", gameID, caller.PlayerID, err)
	}
	return gs.result(snap, caller.PlayerID), nil
}

func (gs *GameServer) newSession(gameID uuid.UUID, req JoinRequest) (*game.Session, error) {
	packs := req.Packs
	if len(packs) == 0 {
		packs = gs.DefaultPacks
	}
	prompts, responses, err := gs.Catalog.Resolve(packs)
	if err != nil {
		return nil, err
	}

	rules := gs.Rules
	if req.Rules != nil {
		if err := rules.Update(req.Rules); err != nil {
			return nil, err
		}
	}

	name := req.GameName
	if name == "" {
		name = "Game " + gameID.String()[:8]
	}
	return game.NewSession(game.SessionOptions{
		ID:        gameID,
		Name:      name,
		Rules:     rules,
		Prompts:   prompts,
		Responses: responses,
		Logger:    gs.logger,
	})
}

// LeaveGame removes the caller from the game.
func (gs *GameServer) LeaveGame(ctx context.Context, gameID, playerID uuid.UUID) (*CommandResult, error) {
	return gs.exec(ctx, "leave", gameID, playerID, func(s *game.Session) error {
		return s.Leave(playerID)
	})
}

// SubmitCards plays cards from the caller's hand against the current prompt.
func (gs *GameServer) SubmitCards(ctx context.Context, gameID, playerID uuid.UUID, cardIDs []string) (*CommandResult, error) {
	return gs.exec(ctx, "submit", gameID, playerID, func(s *game.Session) error {
		return s.Submit(playerID, cardIDs)
	})
}

// RetractSubmission takes the caller's submission back while the round is still collecting.
func (gs *GameServer) RetractSubmission(ctx context.Context, gameID, playerID uuid.UUID) (*CommandResult, error) {
	return gs.exec(ctx, "retract", gameID, playerID, func(s *game.Session) error {
		return s.Retract(playerID)
	})
}

// PickWinner lets the judge choose the winning submission by the entry id it
// is shown under while judging.
func (gs *GameServer) PickWinner(ctx context.Context, gameID, playerID, entryID uuid.UUID) (*CommandResult, error) {
	return gs.exec(ctx, "pick", gameID, playerID, func(s *game.Session) error {
		return s.PickWinner(playerID, entryID)
	})
}

// StartGame starts a game waiting in the lobby. Owner only.
func (gs *GameServer) StartGame(ctx context.Context, gameID, playerID uuid.UUID) (*CommandResult, error) {
	return gs.exec(ctx, "start", gameID, playerID, func(s *game.Session) error {
		return s.Start(playerID)
	})
}

// StopGame ends a running game and returns it to the lobby. Owner only.
func (gs *GameServer) StopGame(ctx context.Context, gameID, playerID uuid.UUID) (*CommandResult, error) {
	return gs.exec(ctx, "stop", gameID, playerID, func(s *game.Session) error {
		return s.Stop(playerID)
	})
}

// KickPlayer removes target from the game. Owner only.
func (gs *GameServer) KickPlayer(ctx context.Context, gameID, playerID, target uuid.UUID) (*CommandResult, error) {
	return gs.exec(ctx, "kick", gameID, playerID, func(s *game.Session) error {
		return s.Kick(playerID, target)
	})
}

// BanPlayer removes target and keeps them out. Owner only.
func (gs *GameServer) BanPlayer(ctx context.Context, gameID, playerID, target uuid.UUID) (*CommandResult, error) {
	return gs.exec(ctx, "ban", gameID, playerID, func(s *game.Session) error {
		return s.Ban(playerID, target)
	})
}

// UnbanPlayer lifts a ban. Owner only.
func (gs *GameServer) UnbanPlayer(ctx context.Context, gameID, playerID, target uuid.UUID) (*CommandResult, error) {
	return gs.exec(ctx, "unban", gameID, playerID, func(s *game.Session) error {
		return s.Unban(playerID, target)
	})
}

// PostMessage adds a chat message from the caller.
func (gs *GameServer) PostMessage(ctx context.Context, gameID, playerID uuid.UUID, text string) (*CommandResult, error) {
	return gs.exec(ctx, "chat", gameID, playerID, func(s *game.Session) error {
		return s.PostMessage(playerID, text)
	})
}

// GetState returns the latest snapshot without waiting for in-flight commands.
// The hand is only filled in for a seated caller.
func (gs *GameServer) GetState(ctx context.Context, gameID, playerID uuid.UUID) (*CommandResult, error) {
	_, span := gs.startSpan(ctx, "state", gameID, playerID)
	defer span.End()

	h, err := gs.Registry.Get(gameID)
	if err != nil {
		return nil, gs.fail(span, "state", gameID, playerID, err)
	}
	return gs.result(h.Snapshot(), playerID), nil
}

// ListGames summarizes the live games matching f.
func (gs *GameServer) ListGames(f game.ListFilter) []game.Summary {
	return gs.Registry.List(f)
}

func (gs *GameServer) exec(ctx context.Context, op string, gameID, playerID uuid.UUID, fn func(s *game.Session) error) (*CommandResult, error) {
	_, span := gs.startSpan(ctx, op, gameID, playerID)
	defer span.End()

	h, err := gs.Registry.Get(gameID)
	if err != nil {
		return nil, gs.fail(span, op, gameID, playerID, err)
	}
	snap, err := h.Exec(func(s *game.Session) error {
		if !s.IsParticipant(playerID) {
			return fmt.Errorf("%w: player %s is not in game %s", game.ErrNotFound, playerID, gameID)
		}
		return fn(s)
	})
	if err != nil {
		return nil, gs.fail(span, op, gameID, playerID, err)
	}
	return gs.result(snap, playerID), nil
}

func (gs *GameServer) result(snap *game.Snapshot, playerID uuid.UUID) *CommandResult {
	res := &CommandResult{State: snap}
	if hand, ok := snap.Hand(playerID); ok {
		res.Hand = hand
	}
	return res
}

func (gs *GameServer) startSpan(ctx context.Context, op string, gameID, playerID uuid.UUID) (context.Context, trace.Span) {
	return gs.tracer.Start(ctx, "game."+op, trace.WithAttributes(
		attribute.String("game.id", gameID.String()),
		attribute.String("player.id", playerID.String()),
	))
}

// fail records err on the span and logs it. Player mistakes log at debug,
// anything unexpected at error.
func (gs *GameServer) fail(span trace.Span, op string, gameID, playerID uuid.UUID, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	entry := gs.log.WithFields(logrus.Fields{
		"op":        op,
		"game_id":   gameID,
		"player_id": playerID,
	})
	if status, _ := errorStatus(err); status >= 500 {
		entry.Errorf("command failed: %v", err)
	} else {
		entry.Debugf("command rejected: %v", err)
	}
	return err
}
