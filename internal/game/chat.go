// internal/game/chat.go
package game

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jason-s-yu/crusty/internal/events"
)

const (
	// MaxChatMessages is how many messages a game keeps; older ones fall off.
	MaxChatMessages = 100
	// MaxChatLength caps one message, in characters.
	MaxChatLength = 500
)

// ChatMessage is one line of in-game chat.
type ChatMessage struct {
	PlayerID uuid.UUID `json:"player_id"`
	Name     string    `json:"name"`
	Text     string    `json:"text"`
	SentAt   time.Time `json:"sent_at"`
}

// PostMessage adds a chat message from a seated player.
func (s *Session) PostMessage(id uuid.UUID, text string) error {
	p, ok := s.Player(id)
	if !ok {
		return fmt.Errorf("%w: player %s is not in game %s", ErrNotFound, id, s.ID)
	}
	if s.Status.Terminal() {
		return fmt.Errorf("%w: game %s is %s", ErrSessionClosed, s.ID, s.Status)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("%w: message is empty", ErrInvalidMessage)
	}
	if n := utf8.RuneCountInString(text); n > MaxChatLength {
		return fmt.Errorf("%w: message has %d characters, the limit is %d", ErrInvalidMessage, n, MaxChatLength)
	}

	msg := ChatMessage{PlayerID: p.ID, Name: p.Name, Text: text, SentAt: s.now()}
	s.chat = append(s.chat, msg)
	if over := len(s.chat) - MaxChatMessages; over > 0 {
		s.chat = append(s.chat[:0], s.chat[over:]...)
	}
	s.emit(events.KindChatMessage, map[string]interface{}{
		"player_id": msg.PlayerID,
		"name":      msg.Name,
		"text":      msg.Text,
	})
	return nil
}
