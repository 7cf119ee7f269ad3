package models

import (
	"time"

	"github.com/google/uuid"
)

// PlayerInfo is the public view of a seated player.
type PlayerInfo struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Score     int       `json:"score"`
	HandSize  int       `json:"hand_size"`
	Connected bool      `json:"connected"`
	IsJudge   bool      `json:"is_judge"`
	Submitted bool      `json:"submitted"`
	JoinedAt  time.Time `json:"joined_at"`
}
