// internal/historian/historian.go
package historian

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jason-s-yu/crusty/internal/events"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Queue hands out raw event payloads one at a time. Pop returns "" with a nil
// error when nothing arrived within timeout.
type Queue interface {
	Pop(ctx context.Context, timeout time.Duration) (string, error)
}

// Store persists a batch of events. Saving the same event twice is a no-op.
type Store interface {
	SaveBatch(ctx context.Context, evs []events.Event) error
}

// RedisQueue pops from the list the game service RPUSHes events onto.
type RedisQueue struct {
	Client *redis.Client
	Name   string
}

func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) (string, error) {
	res, err := q.Client.BLPop(ctx, timeout, q.Name).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	// res[0] is the queue name and res[1] the payload.
	if len(res) < 2 {
		return "", nil
	}
	return res[1], nil
}

// Options tunes batching.
type Options struct {
	BatchSize  int
	FlushDelay time.Duration
	PopTimeout time.Duration
	// MaxPending bounds how many unsaved events are held while the store is failing.
	MaxPending int
}

// Historian drains the event queue into the store in batches.
type Historian struct {
	queue Queue
	store Store
	opts  Options
	log   *logrus.Entry

	batch     []events.Event
	lastFlush time.Time
	now       func() time.Time
}

// New builds a historian. Zero options fall back to defaults.
func New(queue Queue, store Store, opts Options, logger *logrus.Logger) *Historian {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	if opts.FlushDelay <= 0 {
		opts.FlushDelay = 500 * time.Millisecond
	}
	if opts.PopTimeout <= 0 {
		opts.PopTimeout = 3 * time.Second
	}
	if opts.MaxPending < opts.BatchSize {
		opts.MaxPending = 50 * opts.BatchSize
	}
	return &Historian{
		queue: queue,
		store: store,
		opts:  opts,
		log:   logger.WithField("component", "historian"),
		batch: make([]events.Event, 0, opts.BatchSize),
		now:   time.Now,
	}
}

// Run pops events until ctx is cancelled, flushing whenever the batch is full
// or FlushDelay has passed. What is left is flushed before returning.
func (h *Historian) Run(ctx context.Context) error {
	h.lastFlush = h.now()
	for {
		if ctx.Err() != nil {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			h.flush(flushCtx)
			cancel()
			return nil
		}

		payload, err := h.queue.Pop(ctx, h.opts.PopTimeout)
		if err != nil && ctx.Err() == nil {
			h.log.Errorf("pop: %v", err)
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}
		if payload != "" {
			h.accept(payload)
		}

		if len(h.batch) >= h.opts.BatchSize || (len(h.batch) > 0 && h.now().Sub(h.lastFlush) >= h.opts.FlushDelay) {
			h.flush(ctx)
		}
	}
}

func (h *Historian) accept(payload string) {
	var ev events.Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		h.log.Warnf("invalid event record: %v", err)
		return
	}
	if ev.Sequence == 0 {
		h.log.Warnf("event %s for game %s has no sequence, skipping", ev.Kind, ev.GameID)
		return
	}
	h.batch = append(h.batch, ev)
}

// flush saves the batch. A failed batch is kept for the next flush, dropping
// the oldest events beyond MaxPending.
func (h *Historian) flush(ctx context.Context) {
	h.lastFlush = h.now()
	if len(h.batch) == 0 {
		return
	}
	if err := h.store.SaveBatch(ctx, h.batch); err != nil {
		h.log.Errorf("flush %d event(s): %v", len(h.batch), err)
		if over := len(h.batch) - h.opts.MaxPending; over > 0 {
			h.log.Errorf("dropping %d unsaved event(s)", over)
			h.batch = append(h.batch[:0], h.batch[over:]...)
		}
		return
	}
	h.log.Debugf("flushed %d event(s)", len(h.batch))
	h.batch = h.batch[:0]
}

// Pending is the number of events waiting to be saved.
func (h *Historian) Pending() int {
	return len(h.batch)
}
