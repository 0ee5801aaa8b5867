package streamrouter

import (
	"net/http"
	"testing"

	"github.com/compozy/statusstream/engine/infra/server/routes"
	"github.com/compozy/statusstream/engine/streaming"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDrainEvents(t *testing.T) {
	t.Run("Should return queued events oldest first and clear the queue", func(t *testing.T) {
		env := newTestEnv(t, 100)
		env.seed(t, "conv-1", "alice")
		ctx := t.Context()
		for _, msg := range []string{"one", "two", "three"} {
			require.NoError(t, env.state.Emitter.Step(ctx, "conv-1", "agent", msg, false))
		}
		w := env.do(t, http.MethodGet, routes.ConversationEvents("conv-1"), "alice", nil)
		require.Equal(t, http.StatusOK, w.Code)
		out := decodeBody[DrainResponse](t, w)
		require.Equal(t, 3, out.Count)
		var steps []string
		for _, e := range out.Events {
			var step streaming.StepPayload
			require.NoError(t, e.Decode(&step))
			steps = append(steps, step.Message)
		}
		assert.Equal(t, []string{"one", "two", "three"}, steps)

		w = env.do(t, http.MethodGet, routes.ConversationEvents("conv-1"), "alice", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 0, decodeBody[DrainResponse](t, w).Count)
	})

	t.Run("Should answer foreign and missing conversations with the same forbidden body", func(t *testing.T) {
		env := newTestEnv(t, 100)
		env.seed(t, "conv-1", "alice")
		foreign := env.do(t, http.MethodGet, routes.ConversationEvents("conv-1"), "mallory", nil)
		missing := env.do(t, http.MethodGet, routes.ConversationEvents("conv-404"), "mallory", nil)
		assert.Equal(t, http.StatusForbidden, foreign.Code)
		assert.Equal(t, http.StatusForbidden, missing.Code)
		assert.Equal(t, foreign.Body.String(), missing.Body.String())
	})

	t.Run("Should not drain the owner's queue for another user", func(t *testing.T) {
		env := newTestEnv(t, 100)
		env.seed(t, "conv-1", "alice")
		require.NoError(t, env.state.Emitter.Step(t.Context(), "conv-1", "agent", "private", false))
		w := env.do(t, http.MethodGet, routes.ConversationEvents("conv-1"), "mallory", nil)
		require.Equal(t, http.StatusForbidden, w.Code)
		n, err := env.queue.Len(t.Context(), "alice", "conv-1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("Should require an authenticated caller", func(t *testing.T) {
		env := newTestEnv(t, 100)
		w := env.do(t, http.MethodGet, routes.ConversationEvents("conv-1"), "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "UNAUTHORIZED", problemCode(t, w))
	})

	t.Run("Should reject conversation ids with reserved characters", func(t *testing.T) {
		env := newTestEnv(t, 100)
		w := env.do(t, http.MethodGet, routes.ConversationEvents("conv*1"), "alice", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Should return an empty list when the queue is unavailable", func(t *testing.T) {
		env := newTestEnv(t, 100)
		env.seed(t, "conv-1", "alice")
		env.redis.Close()
		w := env.do(t, http.MethodGet, routes.ConversationEvents("conv-1"), "alice", nil)
		require.Equal(t, http.StatusOK, w.Code)
		out := decodeBody[DrainResponse](t, w)
		assert.Equal(t, 0, out.Count)
		assert.NotNil(t, out.Events)
	})
}

func TestEmitEvent(t *testing.T) {
	t.Run("Should emit an event for the owner", func(t *testing.T) {
		env := newTestEnv(t, 100)
		env.seed(t, "conv-1", "alice")
		w := env.do(t, http.MethodPost, routes.ConversationEvents("conv-1"), "alice", map[string]any{
			"type":           "step_added",
			"payload":        map[string]any{"source": "cli", "message": "hello"},
			"is_significant": true,
		})
		require.Equal(t, http.StatusAccepted, w.Code)
		out := decodeBody[streaming.Envelope](t, w)
		assert.Equal(t, streaming.EventTypeStepAdded, out.Type)
		assert.True(t, out.Significant)
		n, err := env.queue.Len(t.Context(), "alice", "conv-1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("Should let the system identity emit", func(t *testing.T) {
		env := newTestEnv(t, 100)
		env.seed(t, "conv-1", "alice")
		w := env.do(t, http.MethodPost, routes.ConversationEvents("conv-1"), "system", map[string]any{
			"type":    "answer_stream",
			"payload": map[string]any{"text": "chunk"},
		})
		assert.Equal(t, http.StatusAccepted, w.Code)
	})

	t.Run("Should forbid emitting into a foreign conversation", func(t *testing.T) {
		env := newTestEnv(t, 100)
		env.seed(t, "conv-1", "alice")
		w := env.do(t, http.MethodPost, routes.ConversationEvents("conv-1"), "mallory", map[string]any{
			"type": "step_added",
		})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("Should reject unknown event types", func(t *testing.T) {
		env := newTestEnv(t, 100)
		env.seed(t, "conv-1", "alice")
		w := env.do(t, http.MethodPost, routes.ConversationEvents("conv-1"), "alice", map[string]any{
			"type": "bogus",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Should answer 429 once the emission budget is spent", func(t *testing.T) {
		env := newTestEnv(t, 2)
		env.seed(t, "conv-1", "alice")
		body := map[string]any{"type": "step_added", "payload": map[string]any{"message": "x"}}
		for range 2 {
			w := env.do(t, http.MethodPost, routes.ConversationEvents("conv-1"), "alice", body)
			require.Equal(t, http.StatusAccepted, w.Code)
		}
		w := env.do(t, http.MethodPost, routes.ConversationEvents("conv-1"), "alice", body)
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "RATE_LIMITED", problemCode(t, w))
	})
}
