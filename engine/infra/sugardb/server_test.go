package sugardb

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroker(t *testing.T) {
	t.Run("Should pass concurrent health probes and close idempotently", func(t *testing.T) {
		ctx := context.Background()
		broker, err := NewEmbedded(ctx, t.TempDir())
		require.NoError(t, err)
		var wg sync.WaitGroup
		errs := make(chan error, 4)
		for range 4 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- broker.HealthCheck(ctx)
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			assert.NoError(t, err)
		}
		assert.NotPanics(t, func() {
			broker.Close()
			broker.Close()
		})
	})
}
