// internal/events/publisher.go
package events

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"
)

// ErrPublishFailure matches every *PublishFailure via errors.Is.
var ErrPublishFailure = errors.New("publish failure")

// ErrQueueFull is the cause recorded when an event could not be queued at all.
var ErrQueueFull = errors.New("publish queue full")

// Broker delivers a single event to the message broker.
type Broker interface {
	Publish(ctx context.Context, ev Event) error
}

// PublishFailure reports an event that was dropped after exhausting delivery attempts.
type PublishFailure struct {
	Event    Event
	Attempts int
	Err      error
}

func (f *PublishFailure) Error() string {
	return fmt.Sprintf("publish %s #%d for game %s failed after %d attempt(s): %v",
		f.Event.Kind, f.Event.Sequence, f.Event.GameID, f.Attempts, f.Err)
}

func (f *PublishFailure) Unwrap() error { return f.Err }

func (f *PublishFailure) Is(target error) bool { return target == ErrPublishFailure }

// Options tunes the publisher's queueing and retry behaviour.
type Options struct {
	QueueSize      int
	Workers        int
	MaxAttempts    uint
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Timeout        time.Duration // per attempt
	DrainTimeout   time.Duration
}

// DefaultOptions returns the settings used when none are configured.
func DefaultOptions() Options {
	return Options{
		QueueSize:      1024,
		Workers:        4,
		MaxAttempts:    5,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		Timeout:        2 * time.Second,
		DrainTimeout:   5 * time.Second,
	}
}

// Publisher hands committed events to the broker off the gameplay path.
// Events of one game always land on the same worker, so they leave in commit
// order unless a retry is in progress.
type Publisher struct {
	broker   Broker
	opts     Options
	queues   []chan Event
	failures chan *PublishFailure
	log      *logrus.Entry
}

// NewPublisher builds a publisher. Call Run to start delivering.
func NewPublisher(broker Broker, opts Options, logger *logrus.Logger) *Publisher {
	def := DefaultOptions()
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = def.QueueSize
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = def.MaxAttempts
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = def.InitialBackoff
	}
	if opts.MaxBackoff < opts.InitialBackoff {
		opts.MaxBackoff = opts.InitialBackoff
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = def.DrainTimeout
	}

	perWorker := opts.QueueSize / opts.Workers
	if perWorker < 1 {
		perWorker = 1
	}
	queues := make([]chan Event, opts.Workers)
	for i := range queues {
		queues[i] = make(chan Event, perWorker)
	}

	return &Publisher{
		broker:   broker,
		opts:     opts,
		queues:   queues,
		failures: make(chan *PublishFailure, 64),
		log:      logger.WithField("component", "publisher"),
	}
}

// Enqueue queues ev for delivery without blocking. A full queue drops the
// event and reports a PublishFailure.
func (p *Publisher) Enqueue(ev Event) {
	q := p.queues[p.shard(ev)]
	select {
	case q <- ev:
	default:
		p.report(&PublishFailure{Event: ev, Attempts: 0, Err: ErrQueueFull})
	}
}

// Failures is the operator-facing channel of dropped events. Reports are
// discarded (after logging) if nobody drains it.
func (p *Publisher) Failures() <-chan *PublishFailure {
	return p.failures
}

// Run delivers events until ctx is cancelled, then drains what is left in the
// queues within DrainTimeout.
func (p *Publisher) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := range p.queues {
		wg.Add(1)
		go func(q chan Event) {
			defer wg.Done()
			p.work(ctx, q)
		}(p.queues[i])
	}
	wg.Wait()
	return nil
}

func (p *Publisher) work(ctx context.Context, q chan Event) {
	for {
		select {
		case ev := <-q:
			if ctx.Err() != nil {
				p.drain(q, ev)
				return
			}
			p.deliver(ctx, ev)
		case <-ctx.Done():
			p.drain(q)
			return
		}
	}
}

func (p *Publisher) drain(q chan Event, pending ...Event) {
	ctx, cancel := context.WithTimeout(context.Background(), p.opts.DrainTimeout)
	defer cancel()
	for _, ev := range pending {
		p.deliver(ctx, ev)
	}
	for {
		select {
		case ev := <-q:
			p.deliver(ctx, ev)
		default:
			return
		}
	}
}

// deliver retries a single event with exponential backoff. The event is never
// modified between attempts, so its sequence number stays stable.
func (p *Publisher) deliver(ctx context.Context, ev Event) {
	attempts := 0
	op := func() (struct{}, error) {
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
		return struct{}{}, p.broker.Publish(attemptCtx, ev)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.opts.InitialBackoff
	b.MaxInterval = p.opts.MaxBackoff

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(p.opts.MaxAttempts),
		backoff.WithNotify(func(err error, wait time.Duration) {
			p.log.WithFields(logrus.Fields{
				"game_id":  ev.GameID,
				"sequence": ev.Sequence,
				"kind":     ev.Kind,
				"retry_in": wait,
			}).Debugf("publish attempt failed: %v", err)
		}),
	)
	if err != nil {
		p.report(&PublishFailure{Event: ev, Attempts: attempts, Err: err})
	}
}

func (p *Publisher) report(f *PublishFailure) {
	p.log.WithFields(logrus.Fields{
		"game_id":  f.Event.GameID,
		"sequence": f.Event.Sequence,
		"kind":     f.Event.Kind,
		"attempts": f.Attempts,
	}).Errorf("dropping event: %v", f.Err)

	select {
	case p.failures <- f:
	default:
	}
}

func (p *Publisher) shard(ev Event) int {
	return int(binary.BigEndian.Uint32(ev.GameID[:4]) % uint32(len(p.queues)))
}
