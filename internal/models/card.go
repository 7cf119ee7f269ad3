// internal/models/card.go
package models

// CardKind distinguishes prompt cards from response cards.
type CardKind string

const (
	CardKindPrompt   CardKind = "prompt"
	CardKindResponse CardKind = "response"
)

// Card is a single catalog card. Cards are immutable once loaded.
type Card struct {
	ID     string   `json:"id"`
	PackID string   `json:"pack_id"`
	Kind   CardKind `json:"kind"`
	Text   string   `json:"text"`

	// Blanks is the number of response cards a prompt asks for. Ignored for responses.
	Blanks int `json:"blanks,omitempty"`
}

// MaxBlanks caps how many response cards a single prompt may require.
const MaxBlanks = 3

// Responses returns how many response cards must be submitted against this prompt.
// A prompt without an explicit blank count takes a single response.
func (c Card) Responses() int {
	if c.Kind != CardKindPrompt {
		return 0
	}
	if c.Blanks <= 0 {
		return 1
	}
	if c.Blanks > MaxBlanks {
		return MaxBlanks
	}
	return c.Blanks
}

// IsPrompt reports whether the card is a prompt card.
func (c Card) IsPrompt() bool { return c.Kind == CardKindPrompt }

// Pack groups cards under a single identifier. CardIDs keeps the pack's own ordering.
type Pack struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	CardIDs []string `json:"card_ids"`
}
