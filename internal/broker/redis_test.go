package broker

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/crusty/internal/events"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

// unreachableClient points at a port nothing listens on.
func unreachableClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func TestChannelNames(t *testing.T) {
	id := uuid.MustParse("6f1c1b0e-8f53-4c1c-9d55-0c5a3f5e8a11")

	b := NewRedisBroker(unreachableClient(), "", "")
	assert.Equal(t, "game:6f1c1b0e-8f53-4c1c-9d55-0c5a3f5e8a11:events", b.Channel(id))
	assert.Equal(t, DefaultQueueName, b.queue)

	custom := NewRedisBroker(unreachableClient(), "q", "live:")
	assert.Equal(t, "live:6f1c1b0e-8f53-4c1c-9d55-0c5a3f5e8a11:events", custom.Channel(id))
}

func TestPublishReportsConnectionErrors(t *testing.T) {
	b := NewRedisBroker(unreachableClient(), "", "")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := b.Publish(ctx, events.Event{GameID: uuid.New(), Sequence: 1, Kind: events.KindPlayerJoined})
	assert.Error(t, err)
}

func TestConnectFailsFast(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := Connect(ctx, "127.0.0.1:1", 0)
	assert.Error(t, err)
}
