// internal/game/owner_actions.go
package game

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/jason-s-yu/crusty/internal/events"
)

// checkOwner validates that by may run an owner command on an open session.
func (s *Session) checkOwner(by uuid.UUID) error {
	if !s.IsParticipant(by) {
		return fmt.Errorf("%w: player %s is not in game %s", ErrNotFound, by, s.ID)
	}
	if s.Status.Terminal() {
		return fmt.Errorf("%w: game %s is %s", ErrSessionClosed, s.ID, s.Status)
	}
	if by != s.Owner() {
		return fmt.Errorf("%w: player %s does not own game %s", ErrNotOwner, by, s.ID)
	}
	return nil
}

// Stop ends a running game and puts it back in the lobby. Hands and the
// current round go to the discard piles; scores reset on the next Start.
func (s *Session) Stop(by uuid.UUID) error {
	if err := s.checkOwner(by); err != nil {
		return err
	}
	if s.Status != StatusActive {
		return fmt.Errorf("%w: game %s is %s", ErrNotStarted, s.ID, s.Status)
	}

	s.discardRound()
	for _, p := range s.Players {
		s.Responses.Discard(p.Hand...)
		p.Hand = nil
	}
	s.Status = StatusLobby
	s.emit(events.KindGameStopped, map[string]interface{}{
		"by":     by,
		"scores": s.scores(),
	})
	s.log.Infof("game stopped by %s", by)
	return nil
}

// Kick removes another player from the game. They may join again.
func (s *Session) Kick(by, target uuid.UUID) error {
	if err := s.checkOwner(by); err != nil {
		return err
	}
	if target == by {
		return fmt.Errorf("%w: cannot kick yourself", ErrInvalidTarget)
	}
	idx := s.playerIndex(target)
	if idx < 0 {
		return fmt.Errorf("%w: player %s is not in game %s", ErrInvalidTarget, target, s.ID)
	}
	return s.removePlayer(idx, events.KindPlayerKicked, map[string]interface{}{"by": by})
}

// Ban keeps target out of the game, removing them first if they are seated.
func (s *Session) Ban(by, target uuid.UUID) error {
	if err := s.checkOwner(by); err != nil {
		return err
	}
	if target == by {
		return fmt.Errorf("%w: cannot ban yourself", ErrInvalidTarget)
	}
	if s.banned[target] {
		return fmt.Errorf("%w: player %s is already banned", ErrInvalidTarget, target)
	}

	s.banned[target] = true
	extra := map[string]interface{}{"by": by}
	if idx := s.playerIndex(target); idx >= 0 {
		return s.removePlayer(idx, events.KindPlayerBanned, extra)
	}
	extra["player_id"] = target
	s.emit(events.KindPlayerBanned, extra)
	return nil
}

// Unban lets target join again.
func (s *Session) Unban(by, target uuid.UUID) error {
	if err := s.checkOwner(by); err != nil {
		return err
	}
	if !s.banned[target] {
		return fmt.Errorf("%w: player %s is not banned", ErrInvalidTarget, target)
	}
	delete(s.banned, target)
	s.emit(events.KindPlayerUnbanned, map[string]interface{}{
		"player_id": target,
		"by":        by,
	})
	return nil
}

// Banned lists the banned player ids in a stable order.
func (s *Session) Banned() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(s.banned))
	for id := range s.banned {
		out = append(out, id)
	}
	slices.SortFunc(out, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })
	return out
}
