package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T) *RedisProvider {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	p, err := NewRedisProvider(client)
	require.NoError(t, err)
	return p
}

func TestRedisProvider(t *testing.T) {
	t.Run("Should reject a nil client", func(t *testing.T) {
		_, err := NewRedisProvider(nil)
		assert.Error(t, err)
	})

	t.Run("Should deliver published payloads to subscribers", func(t *testing.T) {
		ctx := context.Background()
		p := newTestProvider(t)
		sub, err := p.Subscribe(ctx, "conversation.1.status")
		require.NoError(t, err)
		defer sub.Close()

		require.NoError(t, p.Publish(ctx, "conversation.1.status", []byte(`{"n":1}`)))

		select {
		case msg := <-sub.Messages():
			assert.Equal(t, "conversation.1.status", msg.Channel)
			assert.JSONEq(t, `{"n":1}`, string(msg.Payload))
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for message")
		}
	})

	t.Run("Should not buffer for subscribers that arrive later", func(t *testing.T) {
		ctx := context.Background()
		p := newTestProvider(t)
		require.NoError(t, p.Publish(ctx, "conversation.2.status", []byte(`{"early":true}`)))

		sub, err := p.Subscribe(ctx, "conversation.2.status")
		require.NoError(t, err)
		defer sub.Close()

		select {
		case msg := <-sub.Messages():
			t.Fatalf("unexpected message %s", msg.Payload)
		case <-time.After(100 * time.Millisecond):
		}
	})

	t.Run("Should signal done and report closure after Close", func(t *testing.T) {
		p := newTestProvider(t)
		sub, err := p.Subscribe(context.Background(), "conversation.3.status")
		require.NoError(t, err)

		require.NoError(t, sub.Close())
		assert.NoError(t, sub.Close())

		select {
		case <-sub.Done():
		case <-time.After(2 * time.Second):
			t.Fatal("subscription did not finish")
		}
		assert.ErrorIs(t, sub.Err(), ErrClosed)
	})
}
