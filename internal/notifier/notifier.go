// Package notifier delivers human-readable alerts without ever blocking the trading path.
package notifier

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ramihomecare1-commits/Scalper/internal/metrics"
)

const (
	defaultQueueSize = 64
	defaultRetries   = 2
	defaultBackoff   = time.Second
)

// Sink sends one message to an external channel.
type Sink interface {
	Send(ctx context.Context, text string) error
}

// Notifier queues messages and sends them one at a time from a background goroutine.
type Notifier struct {
	sink    Sink
	log     zerolog.Logger
	retries int
	backoff time.Duration

	mu     sync.Mutex
	queue  chan string
	closed bool
	done   chan struct{}
}

// Option tunes retry behaviour.
type Option func(*Notifier)

// WithRetry sets how many times a failed send is retried and the first backoff step.
func WithRetry(retries int, backoff time.Duration) Option {
	return func(n *Notifier) {
		if retries >= 0 {
			n.retries = retries
		}
		if backoff > 0 {
			n.backoff = backoff
		}
	}
}

// New builds a notifier with a bounded queue. Call Run to start delivery.
func New(sink Sink, queueSize int, log zerolog.Logger, opts ...Option) *Notifier {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	n := &Notifier{
		sink:    sink,
		log:     log,
		retries: defaultRetries,
		backoff: defaultBackoff,
		queue:   make(chan string, queueSize),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify enqueues text. It never blocks: when the queue is full or the notifier
// is closed the message is dropped and false is returned.
func (n *Notifier) Notify(text string) bool {
	if n == nil || text == "" {
		return false
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return false
	}
	select {
	case n.queue <- text:
		return true
	default:
		metrics.NotificationsDroppedTotal.Inc()
		n.log.Warn().Msg("notification queue full, dropping message")
		return false
	}
}

// Run delivers queued messages until Close drains the queue. ctx bounds every send.
func (n *Notifier) Run(ctx context.Context) {
	defer close(n.done)
	for text := range n.queue {
		if err := n.send(ctx, text); err != nil {
			n.log.Warn().Err(err).Msg("notification not delivered")
		}
	}
}

func (n *Notifier) send(ctx context.Context, text string) error {
	var lastErr error
	backoff := n.backoff
	for attempt := 0; attempt <= n.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		if lastErr = n.sink.Send(ctx, text); lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return lastErr
}

// ErrDrainTimeout is returned by Close when ctx ends before the queue is empty.
var ErrDrainTimeout = errors.New("notification drain timed out")

// Close stops intake and waits for queued messages to be sent, bounded by ctx.
// Run must have been started for the drain to make progress.
func (n *Notifier) Close(ctx context.Context) error {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.queue)
	}
	n.mu.Unlock()
	select {
	case <-n.done:
		return nil
	case <-ctx.Done():
		return ErrDrainTimeout
	}
}
