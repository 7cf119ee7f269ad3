// internal/broker/redis.go
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/crusty/internal/events"
	"github.com/redis/go-redis/v9"
)

// DefaultQueueName is the Redis list the API service drains for persistence and search sync.
const DefaultQueueName = "crusty_game_events"

// DefaultChannelPrefix prefixes the per-game pub/sub channel used for live updates.
const DefaultChannelPrefix = "game:"

// Connect opens a Redis client and pings it.
func Connect(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// RedisBroker delivers events to a durable Redis list and to a per-game
// pub/sub channel in one round trip.
type RedisBroker struct {
	rdb           *redis.Client
	queue         string
	channelPrefix string
}

// NewRedisBroker wraps rdb. Empty names fall back to the defaults.
func NewRedisBroker(rdb *redis.Client, queue, channelPrefix string) *RedisBroker {
	if queue == "" {
		queue = DefaultQueueName
	}
	if channelPrefix == "" {
		channelPrefix = DefaultChannelPrefix
	}
	return &RedisBroker{rdb: rdb, queue: queue, channelPrefix: channelPrefix}
}

// Channel is the pub/sub channel carrying live events of one game.
func (b *RedisBroker) Channel(gameID uuid.UUID) string {
	return b.channelPrefix + gameID.String() + ":events"
}

// Publish serializes ev to JSON, then RPUSHes it to the queue and PUBLISHes it
// on the game's channel.
func (b *RedisBroker) Publish(ctx context.Context, ev events.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = b.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, b.queue, data)
		pipe.Publish(ctx, b.Channel(ev.GameID), data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to publish event %d of game %s: %w", ev.Sequence, ev.GameID, err)
	}
	return nil
}

// Subscribe follows the live events of one game. The caller must close the
// returned subscription.
func (b *RedisBroker) Subscribe(ctx context.Context, gameID uuid.UUID) *redis.PubSub {
	return b.rdb.Subscribe(ctx, b.Channel(gameID))
}
