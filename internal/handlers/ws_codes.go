// internal/handlers/ws_codes.go
package handlers

// Custom WebSocket close codes used by the game handler.
const (
	BadSubprotocolError   = 3000 // Client connected with an unsupported subprotocol.
	InvalidAuthTokenError = 3001 // Auth token was missing, invalid or expired.
	GameClosedError       = 3002 // The game finished or was abandoned.
	JoinRejectedError     = 3003 // The join itself failed (game full, closed, bad rules).
	RemovedError          = 3004 // The owner kicked or banned the player.
)
