package streaming

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelope(t *testing.T) {
	t.Run("Should build an envelope with a fresh id and UTC timestamp", func(t *testing.T) {
		loc := time.FixedZone("UTC+3", 3*60*60)
		ts := time.Date(2025, 1, 2, 15, 4, 5, 0, loc)
		env, err := NewEnvelope("conv-1", EventTypeStepAdded, StepPayload{Source: "planner", Message: "hi"}, true, ts)
		require.NoError(t, err)
		assert.False(t, env.ID.IsZero())
		assert.Equal(t, "conv-1", env.ConversationID)
		assert.Equal(t, time.UTC, env.Timestamp.Location())
		assert.True(t, env.Timestamp.Equal(ts))
		assert.True(t, env.Significant)
		var step StepPayload
		require.NoError(t, env.Decode(&step))
		assert.Equal(t, "planner", step.Source)
	})
	t.Run("Should assign distinct ids", func(t *testing.T) {
		a, err := NewEnvelope("conv-1", EventTypeStepAdded, nil, false, time.Now())
		require.NoError(t, err)
		b, err := NewEnvelope("conv-1", EventTypeStepAdded, nil, false, time.Now())
		require.NoError(t, err)
		assert.NotEqual(t, a.ID, b.ID)
		assert.JSONEq(t, "{}", string(a.Payload))
	})
	t.Run("Should reject missing conversation id or type", func(t *testing.T) {
		_, err := NewEnvelope("", EventTypeStepAdded, nil, false, time.Now())
		assert.ErrorIs(t, err, ErrInvalidEvent)
		_, err = NewEnvelope("conv-1", "", nil, false, time.Now())
		assert.ErrorIs(t, err, ErrInvalidEvent)
	})
	t.Run("Should reject invalid raw payloads", func(t *testing.T) {
		_, err := NewEnvelope("conv-1", EventTypeStepAdded, json.RawMessage("{oops"), false, time.Now())
		assert.ErrorIs(t, err, ErrInvalidEvent)
	})
	t.Run("Should copy raw payloads", func(t *testing.T) {
		raw := json.RawMessage(`{"a":1}`)
		env, err := NewEnvelope("conv-1", EventTypeStepAdded, raw, false, time.Now())
		require.NoError(t, err)
		raw[2] = 'b'
		assert.JSONEq(t, `{"a":1}`, string(env.Payload))
	})
	t.Run("Should serialize with wire field names", func(t *testing.T) {
		env, err := NewEnvelope("conv-1", EventTypeAnswerStream, ChunkPayload{Text: "x"}, false, time.Now())
		require.NoError(t, err)
		data, err := json.Marshal(env)
		require.NoError(t, err)
		var fields map[string]any
		require.NoError(t, json.Unmarshal(data, &fields))
		for _, key := range []string{"id", "conversation_id", "type", "payload", "timestamp", "is_significant"} {
			assert.Contains(t, fields, key)
		}
	})
}

func TestEventType(t *testing.T) {
	t.Run("Should flag completion types", func(t *testing.T) {
		assert.True(t, EventTypeResearchComplete.IsCompletion())
		assert.True(t, EventTypeWorkflowCompleted.IsCompletion())
		assert.True(t, EventTypeWorkflowFailed.IsCompletion())
		assert.False(t, EventTypeStepAdded.IsCompletion())
		assert.False(t, EventTypeAnswerStream.IsCompletion())
	})
	t.Run("Should flag content chunks", func(t *testing.T) {
		assert.True(t, EventTypeAnswerStream.IsContentChunk())
		assert.True(t, EventTypeThinkingStream.IsContentChunk())
		assert.False(t, EventTypeSourceAdded.IsContentChunk())
	})
	t.Run("Should know declared types only", func(t *testing.T) {
		assert.True(t, EventTypeKnowledgeSourceAdded.IsKnown())
		assert.False(t, EventType("bogus").IsKnown())
	})
}
