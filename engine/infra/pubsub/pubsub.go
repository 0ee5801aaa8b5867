// Package pubsub abstracts the broker that fans conversation channels out to
// live websocket sessions. Redis and embedded SugarDB both implement Provider.
package pubsub

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is reported by a subscription that was closed by its owner.
var ErrClosed = errors.New("pubsub: subscription closed")

// Message is one payload received on Channel.
type Message struct {
	Channel string
	Payload []byte
}

// Subscription delivers messages for one channel until Done is closed.
// Close is idempotent; Err reports why delivery stopped.
type Subscription interface {
	Messages() <-chan Message
	Done() <-chan struct{}
	Err() error
	Close() error
}

// Provider publishes to and subscribes on named channels. Publishing to a
// channel nobody listens on is not an error.
type Provider interface {
	Subscribe(ctx context.Context, channel string) (Subscription, error)
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Feed is the delivery half of a Subscription shared by the broker adapters.
// The adapter's reader goroutine owns the message channel and closes it with
// CloseMessages when it exits.
type Feed struct {
	messages chan Message
	done     chan struct{}
	doneOnce sync.Once
	mu       sync.Mutex
	err      error
}

// NewFeed returns a feed whose message channel holds up to buffer messages.
func NewFeed(buffer int) *Feed {
	if buffer < 0 {
		buffer = 0
	}
	return &Feed{
		messages: make(chan Message, buffer),
		done:     make(chan struct{}),
	}
}

// Deliver hands msg to the consumer. It returns false when ctx ends or the
// feed finished before the consumer took the message.
func (f *Feed) Deliver(ctx context.Context, msg Message) bool {
	select {
	case f.messages <- msg:
		return true
	case <-f.done:
		return false
	case <-ctx.Done():
		f.Finish(ctx.Err())
		return false
	}
}

// Finish marks the feed done. The first non-nil error is kept.
func (f *Feed) Finish(err error) {
	f.mu.Lock()
	if f.err == nil && err != nil {
		f.err = err
	}
	f.mu.Unlock()
	f.doneOnce.Do(func() { close(f.done) })
}

// CloseMessages closes the message channel. Only the reader may call it.
func (f *Feed) CloseMessages() { close(f.messages) }

func (f *Feed) Messages() <-chan Message { return f.messages }

func (f *Feed) Done() <-chan struct{} { return f.done }

func (f *Feed) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}
