package sugardb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/compozy/statusstream/engine/infra/pubsub"
	sdk "github.com/echovault/sugardb/sugardb"
)

const defaultBuffer = 64

var subscriberSeq atomic.Uint64

// Provider implements pubsub.Provider on top of SugarDB pub/sub.
type Provider struct {
	db     *sdk.SugarDB
	buffer int
}

// NewProvider wraps db as a pub/sub provider.
func NewProvider(db *sdk.SugarDB) (*Provider, error) {
	if db == nil {
		return nil, fmt.Errorf("sugardb instance cannot be nil")
	}
	return &Provider{db: db, buffer: defaultBuffer}, nil
}

// Publish forwards payload to the channel subscribers.
func (p *Provider) Publish(_ context.Context, channel string, payload []byte) error {
	ok, err := p.db.Publish(channel, string(payload))
	if err != nil {
		return fmt.Errorf("sugardb: publish %s: %w", channel, err)
	}
	if !ok {
		return fmt.Errorf("sugardb: publish %s failed", channel)
	}
	return nil
}

// Subscribe attaches to a single channel.
func (p *Provider) Subscribe(ctx context.Context, channel string) (pubsub.Subscription, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	tag := fmt.Sprintf("sub_%d_%d", time.Now().UnixNano(), subscriberSeq.Add(1))
	read, err := p.db.Subscribe(tag, channel)
	if err != nil {
		return nil, fmt.Errorf("sugardb: subscribe %s: %w", channel, err)
	}
	sub := &subscription{
		Feed:    pubsub.NewFeed(p.buffer),
		closeCh: make(chan struct{}),
	}
	go sub.loopRead(ctx, read)
	return sub, nil
}

type subscription struct {
	*pubsub.Feed
	closeCh   chan struct{}
	closeOnce sync.Once
}

// loopRead polls the SugarDB reader. read blocks until the next broker
// message, so Close finishes the feed directly instead of waiting on it.
func (s *subscription) loopRead(ctx context.Context, read sdk.ReadPubSubMessage) {
	defer s.CloseMessages()
	for {
		select {
		case <-s.closeCh:
			return
		case <-ctx.Done():
			s.Finish(ctx.Err())
			return
		default:
		}
		msg := read()
		if len(msg) < 3 || msg[0] != "message" {
			time.Sleep(time.Millisecond)
			continue
		}
		if !s.Deliver(ctx, pubsub.Message{Channel: msg[1], Payload: []byte(msg[2])}) {
			return
		}
	}
}

func (s *subscription) Close() error {
	s.closeOnce.Do(func() {
		s.Finish(pubsub.ErrClosed)
		close(s.closeCh)
	})
	return nil
}

var _ pubsub.Provider = (*Provider)(nil)
