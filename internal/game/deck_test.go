package game

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cardIDs(prefix string, n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("%s-%d", prefix, i)
	}
	return ids
}

// TestDeckDrawFromTop checks cards come off the top in shuffle order.
func TestDeckDrawFromTop(t *testing.T) {
	d := NewDeck(cardIDs("r", 10), rand.New(rand.NewPCG(1, 2)))
	top := slices.Clone(d.draw[:3])

	got, err := d.Draw(3)
	require.NoError(t, err)
	assert.Equal(t, top, got)
	assert.Equal(t, 7, d.DrawSize())
	assert.Equal(t, 0, d.DiscardSize())
}

// TestDeckReshufflesDiscardWhenShort: a draw pile of 2 and a discard pile of 10
// still satisfy a draw of 5.
func TestDeckReshufflesDiscardWhenShort(t *testing.T) {
	ids := cardIDs("r", 12)
	d := NewDeck(ids, rand.New(rand.NewPCG(7, 7)))
	drawn, err := d.Draw(10)
	require.NoError(t, err)
	d.Discard(drawn...)
	remaining := slices.Clone(d.draw)
	require.Equal(t, 2, d.DrawSize())
	require.Equal(t, 10, d.DiscardSize())

	got, err := d.Draw(5)
	require.NoError(t, err)
	assert.Len(t, got, 5)
	assert.Equal(t, remaining, got[:2], "the remaining draw pile is used first")
	assert.Equal(t, 7, d.DrawSize())
	assert.Equal(t, 0, d.DiscardSize())

	for _, id := range got[2:] {
		assert.Contains(t, drawn, id)
	}
	assert.ElementsMatch(t, ids, append(d.Cards(), got...), "no card lost or duplicated")
}

// TestDeckDrawShortWhenBothPilesRunDry returns what is left instead of failing.
func TestDeckDrawShortWhenBothPilesRunDry(t *testing.T) {
	d := NewDeck(cardIDs("r", 3), rand.New(rand.NewPCG(1, 1)))
	d.Discard("d-1")

	got, err := d.Draw(10)
	require.NoError(t, err)
	assert.Len(t, got, 4)
	assert.Equal(t, 0, d.DrawSize())
	assert.Equal(t, 0, d.DiscardSize())
}

func TestDeckExhausted(t *testing.T) {
	d := NewDeck(nil, rand.New(rand.NewPCG(1, 1)))

	_, err := d.Draw(1)
	assert.ErrorIs(t, err, ErrDeckExhausted)

	_, err = d.DrawOne()
	assert.ErrorIs(t, err, ErrDeckExhausted)

	got, err := d.Draw(0)
	assert.NoError(t, err, "an empty draw never fails")
	assert.Empty(t, got)
}

// TestDeckSeededShuffleIsDeterministic: same seed, same order.
func TestDeckSeededShuffleIsDeterministic(t *testing.T) {
	a := NewDeck(cardIDs("r", 50), rand.New(rand.NewPCG(99, 3)))
	b := NewDeck(cardIDs("r", 50), rand.New(rand.NewPCG(99, 3)))
	assert.Equal(t, a.Cards(), b.Cards())
	assert.ElementsMatch(t, cardIDs("r", 50), a.Cards())
}
