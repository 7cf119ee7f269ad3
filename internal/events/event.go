// internal/events/event.go
package events

import (
	"github.com/google/uuid"
)

// Kind names a committed state transition.
type Kind string

const (
	KindPlayerJoined        Kind = "player_joined"
	KindPlayerLeft          Kind = "player_left"
	KindPlayerKicked        Kind = "player_kicked"
	KindPlayerBanned        Kind = "player_banned"
	KindPlayerUnbanned      Kind = "player_unbanned"
	KindPlayerDisconnected  Kind = "player_disconnected"
	KindPlayerReconnected   Kind = "player_reconnected"
	KindChatMessage         Kind = "chat_message"
	KindGameStarted         Kind = "game_started"
	KindGameStopped         Kind = "game_stopped"
	KindRoundDealing        Kind = "round_dealing"
	KindRoundCollecting     Kind = "round_collecting"
	KindCardSubmitted       Kind = "card_submitted"
	KindSubmissionRetracted Kind = "submission_retracted"
	KindRoundJudging        Kind = "round_judging"
	KindRoundComplete       Kind = "round_complete"
	KindRoundAbandoned      Kind = "round_abandoned"
	KindGameCompleted       Kind = "game_completed"
	KindGameAbandoned       Kind = "game_abandoned"
)

// Event is one outbound notification. Sequence is assigned once, when the
// owning session commits, and is strictly increasing per game.
type Event struct {
	GameID    uuid.UUID              `json:"game_id"`
	Sequence  uint64                 `json:"sequence"`
	Kind      Kind                   `json:"kind"`
	Round     int                    `json:"round,omitempty"`
	Phase     string                 `json:"phase,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}
