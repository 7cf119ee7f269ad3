// internal/historian/store.go
package historian

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/crusty/internal/events"
)

// TxBeginner is the part of *pgxpool.Pool the store needs.
type TxBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// PostgresStore appends events to game_events and keeps the games row's
// status in step with lifecycle events.
type PostgresStore struct {
	DB TxBeginner
}

const insertEventQ = `
	INSERT INTO game_events (game_id, sequence, kind, round, phase, payload, occurred_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (game_id, sequence) DO NOTHING
`

const upsertGameQ = `
	INSERT INTO games (id, status, updated_at)
	VALUES ($1, $2, $3)
	ON CONFLICT (id)
	DO UPDATE SET status = EXCLUDED.status, updated_at = EXCLUDED.updated_at
	WHERE games.status NOT IN ('completed', 'abandoned')
`

// SaveBatch writes every event in one transaction.
func (s *PostgresStore) SaveBatch(ctx context.Context, evs []events.Event) error {
	return beginTxFunc(ctx, s.DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, ev := range evs {
			if err := insertEventTx(ctx, tx, ev); err != nil {
				return fmt.Errorf("game %s event %d: %w", ev.GameID, ev.Sequence, err)
			}
		}
		return nil
	})
}

func insertEventTx(ctx context.Context, tx pgx.Tx, ev events.Event) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return err
	}
	at := time.UnixMilli(ev.Timestamp).UTC()
	if _, err := tx.Exec(ctx, insertEventQ, ev.GameID, int64(ev.Sequence), string(ev.Kind), ev.Round, ev.Phase, payload, at); err != nil {
		return err
	}
	if status, ok := gameStatus(ev.Kind); ok {
		if _, err := tx.Exec(ctx, upsertGameQ, ev.GameID, status, at); err != nil {
			return err
		}
	}
	return nil
}

// gameStatus maps lifecycle events onto the games.status column.
func gameStatus(kind events.Kind) (string, bool) {
	switch kind {
	case events.KindGameStarted:
		return "active", true
	case events.KindGameStopped:
		return "lobby", true
	case events.KindGameCompleted:
		return "completed", true
	case events.KindGameAbandoned:
		return "abandoned", true
	}
	return "", false
}

// beginTxFunc starts a transaction, calls f with it, and commits or rolls back as needed.
func beginTxFunc(ctx context.Context, db TxBeginner, txOptions pgx.TxOptions, f func(tx pgx.Tx) error) error {
	tx, err := db.BeginTx(ctx, txOptions)
	if err != nil {
		return err
	}
	if err := f(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("tx rollback error: %v; original error: %w", rbErr, err)
		}
		return err
	}
	return tx.Commit(ctx)
}
