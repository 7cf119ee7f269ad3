// internal/game/errors.go
package game

import "errors"

// Errors returned by session commands. Callers match them with errors.Is;
// the wrapped message carries the specifics.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidSubmission = errors.New("invalid submission")
	ErrInvalidSelection  = errors.New("invalid selection")
	ErrDeckExhausted     = errors.New("deck exhausted")
	ErrSessionFull       = errors.New("session full")
	ErrSessionClosed     = errors.New("session closed")
	ErrNotOwner          = errors.New("not the game owner")
	ErrNotEnoughPlayers  = errors.New("not enough players")
	ErrAlreadyStarted    = errors.New("game already started")
	ErrInvalidRules      = errors.New("invalid rules")
	ErrNotStarted        = errors.New("game not started")
	ErrInvalidTarget     = errors.New("invalid target")
	ErrBanned            = errors.New("banned from game")
	ErrInvalidMessage    = errors.New("invalid message")
)
