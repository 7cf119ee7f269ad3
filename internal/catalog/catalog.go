// internal/catalog/catalog.go
package catalog

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jason-s-yu/crusty/internal/models"
	"github.com/sirupsen/logrus"
)

// ErrUnknownPack is returned by Resolve for a pack id the catalog does not hold.
var ErrUnknownPack = errors.New("unknown card pack")

// ErrEmptyCatalog is returned by Reload when the source yields no usable packs.
var ErrEmptyCatalog = errors.New("catalog is empty")

// Catalog is an in-memory, read-mostly copy of the card packs. Games resolve
// their cards from it at creation time.
type Catalog struct {
	source Source
	log    *logrus.Entry

	mu       sync.RWMutex
	packs    map[string]models.Pack
	cards    map[string]models.Card
	loadedAt time.Time
}

// New returns an empty catalog backed by source. Call Reload before use.
func New(source Source, logger *logrus.Logger) *Catalog {
	return &Catalog{
		source: source,
		log:    logger.WithField("component", "catalog"),
		packs:  make(map[string]models.Pack),
		cards:  make(map[string]models.Card),
	}
}

// Reload fetches everything from the source and swaps it in. Malformed cards
// are skipped with a warning. On error the previous contents stay in place.
func (c *Catalog) Reload(ctx context.Context) error {
	packs, cards, err := c.source.Load(ctx)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	cardIndex := make(map[string]models.Card, len(cards))
	for _, card := range cards {
		if reason := invalidCard(card); reason != "" {
			c.log.WithField("card_id", card.ID).Warnf("skipping card: %s", reason)
			continue
		}
		cardIndex[card.ID] = card
	}

	packIndex := make(map[string]models.Pack, len(packs))
	for _, p := range packs {
		kept := make([]string, 0, len(p.CardIDs))
		for _, id := range p.CardIDs {
			if _, ok := cardIndex[id]; ok {
				kept = append(kept, id)
			}
		}
		p.CardIDs = kept
		packIndex[p.ID] = p
	}
	if len(packIndex) == 0 {
		return ErrEmptyCatalog
	}

	c.mu.Lock()
	c.packs = packIndex
	c.cards = cardIndex
	c.loadedAt = time.Now()
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{
		"packs": len(packIndex),
		"cards": len(cardIndex),
	}).Info("catalog loaded")
	return nil
}

func invalidCard(card models.Card) string {
	switch {
	case card.ID == "":
		return "missing id"
	case strings.TrimSpace(card.Text) == "":
		return "empty text"
	case card.Kind != models.CardKindPrompt && card.Kind != models.CardKindResponse:
		return fmt.Sprintf("unknown kind %q", card.Kind)
	case card.Kind == models.CardKindPrompt && card.Blanks > models.MaxBlanks:
		return fmt.Sprintf("prompt asks for %d responses, at most %d allowed", card.Blanks, models.MaxBlanks)
	}
	return ""
}

// RunRefresher reloads the catalog every interval until ctx is cancelled.
// Failed reloads are logged and the old contents are kept.
func (c *Catalog) RunRefresher(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.Reload(ctx); err != nil {
				c.log.Warnf("catalog refresh failed: %v", err)
			}
		}
	}
}

// Packs lists every pack, sorted by id.
func (c *Catalog) Packs() []models.Pack {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.Pack, 0, len(c.packs))
	for _, p := range c.packs {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b models.Pack) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// Resolve returns the prompt and response cards of the given packs. A card
// shared by several packs appears once.
func (c *Catalog) Resolve(packIDs []string) (prompts, responses []models.Card, err error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[string]bool)
	for _, pid := range packIDs {
		p, ok := c.packs[pid]
		if !ok {
			return nil, nil, fmt.Errorf("%w: %s", ErrUnknownPack, pid)
		}
		for _, id := range p.CardIDs {
			if seen[id] {
				continue
			}
			seen[id] = true
			card := c.cards[id]
			if card.IsPrompt() {
				prompts = append(prompts, card)
			} else {
				responses = append(responses, card)
			}
		}
	}
	return prompts, responses, nil
}

// Search returns up to limit cards whose text contains query, case-insensitively.
// An empty kind matches both kinds.
func (c *Catalog) Search(query string, kind models.CardKind, limit int) []models.Card {
	q := strings.ToLower(strings.TrimSpace(query))
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := []models.Card{}
	for _, card := range c.cards {
		if kind != "" && card.Kind != kind {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(card.Text), q) {
			continue
		}
		out = append(out, card)
	}
	slices.SortFunc(out, func(a, b models.Card) int { return strings.Compare(a.ID, b.ID) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// LoadedAt is when the catalog was last reloaded successfully.
func (c *Catalog) LoadedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadedAt
}
