package pubsub

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

const subscriptionBuffer = 64

// RedisProvider implements the Provider interface using Redis Pub/Sub.
type RedisProvider struct {
	client redis.UniversalClient
}

// NewRedisProvider constructs a Provider backed by a Redis client.
func NewRedisProvider(client redis.UniversalClient) (*RedisProvider, error) {
	if client == nil {
		return nil, errors.New("pubsub: redis client is nil")
	}
	return &RedisProvider{client: client}, nil
}

// Publish forwards payload to every subscriber currently attached to channel.
func (p *RedisProvider) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := p.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("pubsub: publish %s: %w", channel, err)
	}
	return nil
}

func (p *RedisProvider) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ps := p.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("pubsub: subscribe %s: %w", channel, err)
	}
	subCtx, cancel := context.WithCancel(ctx)
	sub := &redisSubscription{
		Feed:   NewFeed(subscriptionBuffer),
		pubsub: ps,
		cancel: cancel,
	}
	go sub.pump(subCtx, ps.Channel())
	return sub, nil
}

type redisSubscription struct {
	*Feed
	pubsub    *redis.PubSub
	cancel    context.CancelFunc
	closeOnce sync.Once
	closeErr  error
}

func (s *redisSubscription) pump(ctx context.Context, in <-chan *redis.Message) {
	defer s.CloseMessages()
	for {
		select {
		case <-ctx.Done():
			s.Finish(ctx.Err())
			return
		case msg, ok := <-in:
			if !ok {
				s.Finish(errors.New("pubsub: redis channel closed"))
				return
			}
			if msg == nil {
				continue
			}
			if !s.Deliver(ctx, Message{Channel: msg.Channel, Payload: []byte(msg.Payload)}) {
				return
			}
		}
	}
}

// Close stops the pump and releases the Redis connection.
func (s *redisSubscription) Close() error {
	s.closeOnce.Do(func() {
		s.Finish(ErrClosed)
		s.cancel()
		s.closeErr = s.pubsub.Close()
	})
	return s.closeErr
}

var _ Provider = (*RedisProvider)(nil)
