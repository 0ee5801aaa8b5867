package sugardb

import (
	"context"
	"testing"
	"time"

	"github.com/compozy/statusstream/engine/infra/pubsub"
	sdk "github.com/echovault/sugardb/sugardb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	db, err := sdk.NewSugarDB()
	require.NoError(t, err)
	p, err := NewProvider(db)
	require.NoError(t, err)
	return p
}

func TestProvider(t *testing.T) {
	t.Run("Should reject a nil database", func(t *testing.T) {
		_, err := NewProvider(nil)
		assert.Error(t, err)
	})
	t.Run("Should deliver published payloads to subscribers", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		p := newTestProvider(t)
		sub, err := p.Subscribe(ctx, "conversation.c1.status")
		require.NoError(t, err)
		defer sub.Close()
		require.Eventually(t, func() bool {
			_ = p.Publish(ctx, "conversation.c1.status", []byte(`{"event":"step_added"}`))
			select {
			case msg := <-sub.Messages():
				return msg.Channel == "conversation.c1.status" && string(msg.Payload) == `{"event":"step_added"}`
			case <-time.After(50 * time.Millisecond):
				return false
			}
		}, 3*time.Second, 10*time.Millisecond)
	})
	t.Run("Should report closed subscriptions", func(t *testing.T) {
		p := newTestProvider(t)
		sub, err := p.Subscribe(context.Background(), "conversation.c2.status")
		require.NoError(t, err)
		require.NoError(t, sub.Close())
		require.NoError(t, sub.Close())
		select {
		case <-sub.Done():
		case <-time.After(time.Second):
			t.Fatal("subscription not done after close")
		}
		assert.ErrorIs(t, sub.Err(), pubsub.ErrClosed)
	})
}
