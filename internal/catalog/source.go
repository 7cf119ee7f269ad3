// internal/catalog/source.go
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/crusty/internal/models"
)

// Source loads every pack and card the catalog should serve.
type Source interface {
	Load(ctx context.Context) ([]models.Pack, []models.Card, error)
}

// Querier is the subset of a pgx pool or connection the Postgres source needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresSource reads packs and cards from the API service's tables.
type PostgresSource struct {
	DB Querier
}

// Load reads card_packs and cards. Card order inside a pack follows the position column.
func (src *PostgresSource) Load(ctx context.Context) ([]models.Pack, []models.Card, error) {
	packRows, err := src.DB.Query(ctx, `SELECT id, name FROM card_packs ORDER BY id`)
	if err != nil {
		return nil, nil, fmt.Errorf("query card_packs: %w", err)
	}
	defer packRows.Close()

	var packs []models.Pack
	index := make(map[string]int)
	for packRows.Next() {
		var p models.Pack
		if err := packRows.Scan(&p.ID, &p.Name); err != nil {
			return nil, nil, fmt.Errorf("scan card_packs: %w", err)
		}
		index[p.ID] = len(packs)
		packs = append(packs, p)
	}
	if err := packRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("read card_packs: %w", err)
	}

	cardRows, err := src.DB.Query(ctx, `
		SELECT id, pack_id, kind, text, COALESCE(blanks, 0)
		FROM cards
		ORDER BY pack_id, position, id
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("query cards: %w", err)
	}
	defer cardRows.Close()

	var cards []models.Card
	for cardRows.Next() {
		var c models.Card
		var kind string
		if err := cardRows.Scan(&c.ID, &c.PackID, &kind, &c.Text, &c.Blanks); err != nil {
			return nil, nil, fmt.Errorf("scan cards: %w", err)
		}
		c.Kind = models.CardKind(kind)
		cards = append(cards, c)
		if i, ok := index[c.PackID]; ok {
			packs[i].CardIDs = append(packs[i].CardIDs, c.ID)
		}
	}
	if err := cardRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("read cards: %w", err)
	}
	return packs, cards, nil
}

// fileDocument is the on-disk layout read by FileSource.
type fileDocument struct {
	Packs []struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Prompts []struct {
			ID     string `json:"id"`
			Text   string `json:"text"`
			Blanks int    `json:"blanks"`
		} `json:"prompts"`
		Responses []struct {
			ID   string `json:"id"`
			Text string `json:"text"`
		} `json:"responses"`
	} `json:"packs"`
}

// FileSource reads a JSON catalog document, for local runs without the API database.
type FileSource struct {
	Path string
}

func (src *FileSource) Load(ctx context.Context) ([]models.Pack, []models.Card, error) {
	data, err := os.ReadFile(src.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("read catalog file: %w", err)
	}
	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("decode catalog file %s: %w", src.Path, err)
	}

	var packs []models.Pack
	var cards []models.Card
	for _, dp := range doc.Packs {
		p := models.Pack{ID: dp.ID, Name: dp.Name}
		for _, pr := range dp.Prompts {
			cards = append(cards, models.Card{ID: pr.ID, PackID: dp.ID, Kind: models.CardKindPrompt, Text: pr.Text, Blanks: pr.Blanks})
			p.CardIDs = append(p.CardIDs, pr.ID)
		}
		for _, rs := range dp.Responses {
			cards = append(cards, models.Card{ID: rs.ID, PackID: dp.ID, Kind: models.CardKindResponse, Text: rs.Text})
			p.CardIDs = append(p.CardIDs, rs.ID)
		}
		packs = append(packs, p)
	}
	return packs, cards, nil
}

// StaticSource serves a fixed set of packs and cards.
type StaticSource struct {
	Packs []models.Pack
	Cards []models.Card
}

func (src *StaticSource) Load(context.Context) ([]models.Pack, []models.Card, error) {
	return src.Packs, src.Cards, nil
}
