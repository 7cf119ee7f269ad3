// internal/game/deck.go
package game

import (
	"math/rand/v2"
)

// Deck is one pile of card ids split into a draw pile and a discard pile.
// Index 0 of the draw pile is the top card. Not safe for concurrent use; the
// owning session serializes access.
type Deck struct {
	draw    []string
	discard []string
	rng     *rand.Rand
}

// NewDeck copies ids, shuffles them with rng and returns a deck with an empty discard pile.
func NewDeck(ids []string, rng *rand.Rand) *Deck {
	d := &Deck{
		draw: append([]string(nil), ids...),
		rng:  rng,
	}
	d.shuffle(d.draw)
	return d
}

// Draw removes up to n cards from the top of the draw pile. When the draw pile
// runs out part way, the discard pile is shuffled into it and drawing continues.
// Fewer than n cards are returned only if both piles run dry. ErrDeckExhausted
// is returned when a draw is requested and both piles are already empty.
func (d *Deck) Draw(n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	if len(d.draw) == 0 && len(d.discard) == 0 {
		return nil, ErrDeckExhausted
	}

	out := make([]string, 0, n)
	for len(out) < n {
		if len(d.draw) == 0 {
			if len(d.discard) == 0 {
				break
			}
			d.reshuffle()
		}
		take := min(n-len(out), len(d.draw))
		out = append(out, d.draw[:take]...)
		d.draw = d.draw[take:]
	}
	return out, nil
}

// DrawOne draws the top card.
func (d *Deck) DrawOne() (string, error) {
	ids, err := d.Draw(1)
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// Discard puts cards on the discard pile.
func (d *Deck) Discard(ids ...string) {
	d.discard = append(d.discard, ids...)
}

// DrawSize is the number of cards left in the draw pile.
func (d *Deck) DrawSize() int { return len(d.draw) }

// DiscardSize is the number of cards in the discard pile.
func (d *Deck) DiscardSize() int { return len(d.discard) }

// Cards returns a copy of every card id held by the deck, draw pile first.
func (d *Deck) Cards() []string {
	out := make([]string, 0, len(d.draw)+len(d.discard))
	out = append(out, d.draw...)
	return append(out, d.discard...)
}

func (d *Deck) reshuffle() {
	d.draw = append(d.draw[:0], d.discard...)
	d.discard = d.discard[:0]
	d.shuffle(d.draw)
}

func (d *Deck) shuffle(ids []string) {
	d.rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
}
