// internal/game/snapshot.go
package game

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/crusty/internal/models"
)

// Snapshot is an immutable public view of a session taken at the end of a
// command. Hands are kept private and handed out per player through Hand.
type Snapshot struct {
	GameID      uuid.UUID           `json:"game_id"`
	Name        string              `json:"name"`
	Status      Status              `json:"status"`
	Sequence    uint64              `json:"sequence"`
	Owner       uuid.UUID           `json:"owner"`
	Rules       Rules               `json:"rules"`
	Players     []models.PlayerInfo `json:"players"`
	Round       *RoundView          `json:"round,omitempty"`
	LastRound   *RoundSummary       `json:"last_round,omitempty"`
	Chat        []ChatMessage       `json:"chat,omitempty"`
	Banned      []uuid.UUID         `json:"banned,omitempty"`
	DrawPile    int                 `json:"draw_pile"`
	DiscardPile int                 `json:"discard_pile"`
	CreatedAt   time.Time           `json:"created_at"`
	TakenAt     time.Time           `json:"taken_at"`

	hands map[uuid.UUID][]models.Card
}

// RoundView is the public part of the current round. Submitted cards are only
// revealed once judging starts.
type RoundView struct {
	Number      int              `json:"number"`
	Phase       Phase            `json:"phase"`
	Judge       uuid.UUID        `json:"judge"`
	Prompt      models.Card      `json:"prompt"`
	Responses   int              `json:"responses"`
	Submitted   int              `json:"submitted"`
	Submissions []SubmissionView `json:"submissions,omitempty"`
}

// SubmissionView is one revealed submission. While judging it is only known
// by its entry id; the submitter is filled in once the round is scored.
type SubmissionView struct {
	ID       uuid.UUID     `json:"id"`
	PlayerID *uuid.UUID    `json:"player_id,omitempty"`
	Cards    []models.Card `json:"cards"`
}

// Hand returns the hand of a player as it was when the snapshot was taken.
func (snap *Snapshot) Hand(playerID uuid.UUID) ([]models.Card, bool) {
	h, ok := snap.hands[playerID]
	return h, ok
}

// Player returns the public info of a seated player.
func (snap *Snapshot) Player(playerID uuid.UUID) (models.PlayerInfo, bool) {
	for _, p := range snap.Players {
		if p.ID == playerID {
			return p, true
		}
	}
	return models.PlayerInfo{}, false
}

// Snapshot builds a fresh immutable view. Assumes the session lock is held.
func (s *Session) Snapshot() *Snapshot {
	snap := &Snapshot{
		GameID:      s.ID,
		Name:        s.Name,
		Status:      s.Status,
		Sequence:    s.seq,
		Owner:       s.Owner(),
		Rules:       s.Rules,
		Players:     make([]models.PlayerInfo, 0, len(s.Players)),
		DrawPile:    s.Responses.DrawSize(),
		DiscardPile: s.Responses.DiscardSize(),
		CreatedAt:   s.CreatedAt,
		TakenAt:     s.now(),
		hands:       make(map[uuid.UUID][]models.Card, len(s.Players)),
	}
	if len(s.chat) > 0 {
		snap.Chat = slices.Clone(s.chat)
	}
	if len(s.banned) > 0 {
		snap.Banned = s.Banned()
	}
	if s.lastRound != nil {
		lr := *s.lastRound
		snap.LastRound = &lr
	}

	for _, p := range s.Players {
		info := models.PlayerInfo{
			ID:        p.ID,
			Name:      p.Name,
			Score:     p.Score,
			HandSize:  len(p.Hand),
			Connected: p.Connected,
			JoinedAt:  p.JoinedAt,
		}
		if s.Round != nil {
			info.IsJudge = s.Round.Judge == p.ID
			_, info.Submitted = s.Round.Submissions[p.ID]
		}
		snap.Players = append(snap.Players, info)
		snap.hands[p.ID] = s.lookup(p.Hand)
	}

	if r := s.Round; r != nil {
		rv := &RoundView{
			Number:    r.Number,
			Phase:     r.Phase,
			Judge:     r.Judge,
			Prompt:    r.Prompt,
			Responses: r.Prompt.Responses(),
			Submitted: len(r.Submissions),
		}
		if r.Phase == PhaseJudging {
			rv.Submissions = s.submissionViews(false)
		}
		snap.Round = rv
	}
	return snap
}

// submissionViews lists the current submissions in presentation order,
// naming the submitters only when reveal is set.
func (s *Session) submissionViews(reveal bool) []SubmissionView {
	out := make([]SubmissionView, 0, len(s.Round.order))
	for _, pid := range s.Round.order {
		v := SubmissionView{
			ID:    s.Round.entries[pid],
			Cards: s.lookup(s.Round.Submissions[pid]),
		}
		if reveal {
			v.PlayerID = &pid
		}
		out = append(out, v)
	}
	return out
}
