package streaming

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/compozy/statusstream/engine/auth/userctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errLimited = errors.New("rate limit exceeded")

type queuedEvent struct {
	owner string
	env   Envelope
}

type fakeQueue struct {
	mu     sync.Mutex
	err    error
	events []queuedEvent
}

func (q *fakeQueue) Publish(_ context.Context, userID, _ string, env Envelope) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.events = append(q.events, queuedEvent{owner: userID, env: env})
	return nil
}

func (q *fakeQueue) DrainAll(context.Context, string, string) ([]Envelope, error) {
	return nil, nil
}

type routedEvent struct {
	channel string
	event   string
	env     Envelope
}

type fakePublisher struct {
	mu     sync.Mutex
	err    error
	events []routedEvent
}

func (p *fakePublisher) Publish(_ context.Context, channel, eventName string, env Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, routedEvent{channel: channel, event: eventName, env: env})
	return nil
}

type fakeOwners map[string]string

func (o fakeOwners) Owner(_ context.Context, conversationID string) (string, error) {
	owner, ok := o[conversationID]
	if !ok {
		return "", errors.New("conversation not found")
	}
	return owner, nil
}

type countingLimiter struct {
	mu     sync.Mutex
	limit  int
	counts map[string]int
}

func (l *countingLimiter) CheckAndIncrement(_ context.Context, userID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.counts == nil {
		l.counts = make(map[string]int)
	}
	l.counts[userID]++
	if l.counts[userID] > l.limit {
		return errLimited
	}
	return nil
}

type fakeRecorder struct {
	mu           sync.Mutex
	emitted      int
	failures     map[string]int
	rateLimited  int
	hookFailures int
}

func (r *fakeRecorder) RecordEmit(context.Context, string) {
	r.mu.Lock()
	r.emitted++
	r.mu.Unlock()
}

func (r *fakeRecorder) RecordPublishFailure(_ context.Context, sink string) {
	r.mu.Lock()
	if r.failures == nil {
		r.failures = make(map[string]int)
	}
	r.failures[sink]++
	r.mu.Unlock()
}

func (r *fakeRecorder) RecordRateLimited(context.Context) {
	r.mu.Lock()
	r.rateLimited++
	r.mu.Unlock()
}

func (r *fakeRecorder) RecordHookFailure(_ context.Context, count int) {
	r.mu.Lock()
	r.hookFailures += count
	r.mu.Unlock()
}

type emitterFixture struct {
	queue    *fakeQueue
	router   *fakePublisher
	recorder *fakeRecorder
	emitter  *Emitter
}

func newEmitterFixture(t *testing.T, opts ...Option) *emitterFixture {
	t.Helper()
	f := &emitterFixture{queue: &fakeQueue{}, router: &fakePublisher{}, recorder: &fakeRecorder{}}
	opts = append([]Option{WithRecorder(f.recorder)}, opts...)
	emitter, err := NewEmitter(f.queue, f.router, fakeOwners{"c1": "owner-1"}, opts...)
	require.NoError(t, err)
	f.emitter = emitter
	return f
}

func TestNewEmitter(t *testing.T) {
	t.Run("Should require collaborators", func(t *testing.T) {
		_, err := NewEmitter(nil, &fakePublisher{}, fakeOwners{})
		assert.Error(t, err)
		_, err = NewEmitter(&fakeQueue{}, nil, fakeOwners{})
		assert.Error(t, err)
		_, err = NewEmitter(&fakeQueue{}, &fakePublisher{}, nil)
		assert.Error(t, err)
	})
}

func TestEmitter_Emit(t *testing.T) {
	ctx := context.Background()
	t.Run("Should queue for the owner and broadcast on the purpose channel", func(t *testing.T) {
		f := newEmitterFixture(t)
		env, err := f.emitter.Emit(ctx, "c1", EventTypeSourceAdded, SourcePayload{Title: "Doc"}, false)
		require.NoError(t, err)
		require.Len(t, f.queue.events, 1)
		assert.Equal(t, "owner-1", f.queue.events[0].owner)
		assert.Equal(t, env.ID, f.queue.events[0].env.ID)
		require.Len(t, f.router.events, 1)
		assert.Equal(t, "conversation.c1.sources", f.router.events[0].channel)
		assert.Equal(t, "source_added", f.router.events[0].event)
		assert.Equal(t, env, f.router.events[0].env)
		assert.Equal(t, 1, f.recorder.emitted)
	})
	t.Run("Should fall back to the system owner for unknown conversations", func(t *testing.T) {
		f := newEmitterFixture(t)
		_, err := f.emitter.Emit(ctx, "unknown", EventTypeStepAdded, nil, false)
		require.NoError(t, err)
		require.Len(t, f.queue.events, 1)
		assert.Equal(t, userctx.SystemUser, f.queue.events[0].owner)
	})
	t.Run("Should still broadcast when the queue is unavailable", func(t *testing.T) {
		f := newEmitterFixture(t)
		f.queue.err = ErrTransportUnavailable
		_, err := f.emitter.Emit(ctx, "c1", EventTypeStepAdded, nil, false)
		require.NoError(t, err)
		assert.Len(t, f.router.events, 1)
		assert.Equal(t, 1, f.recorder.failures[sinkQueue])
	})
	t.Run("Should still queue when the router is unavailable", func(t *testing.T) {
		f := newEmitterFixture(t)
		f.router.err = ErrTransportUnavailable
		_, err := f.emitter.Emit(ctx, "c1", EventTypeStepAdded, nil, false)
		require.NoError(t, err)
		assert.Len(t, f.queue.events, 1)
		assert.Equal(t, 1, f.recorder.failures[sinkRouter])
	})
	t.Run("Should reject invalid conversation ids and unknown types", func(t *testing.T) {
		f := newEmitterFixture(t)
		_, err := f.emitter.Emit(ctx, "", EventTypeStepAdded, nil, false)
		assert.ErrorIs(t, err, ErrInvalidEvent)
		_, err = f.emitter.Emit(ctx, "c1", EventType("bogus"), nil, false)
		assert.ErrorIs(t, err, ErrInvalidEvent)
		assert.Empty(t, f.queue.events)
		assert.Empty(t, f.router.events)
	})
	t.Run("Should stamp events with the configured clock", func(t *testing.T) {
		fixed := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
		f := newEmitterFixture(t, WithClock(func() time.Time { return fixed }))
		env, err := f.emitter.Emit(ctx, "c1", EventTypeStepAdded, nil, true)
		require.NoError(t, err)
		assert.Equal(t, fixed, env.Timestamp)
		assert.True(t, env.Significant)
	})
}

func TestEmitter_RateLimit(t *testing.T) {
	t.Run("Should allow the limit and reject the next emission", func(t *testing.T) {
		f := newEmitterFixture(t, WithRateLimiter(&countingLimiter{limit: 100}))
		ctx := userctx.WithUserID(context.Background(), "actor-1")
		for i := range 100 {
			_, err := f.emitter.Emit(ctx, "c1", EventTypeStepAdded, nil, false)
			require.NoError(t, err, "emission %d", i+1)
		}
		_, err := f.emitter.Emit(ctx, "c1", EventTypeStepAdded, nil, false)
		assert.ErrorIs(t, err, errLimited)
		assert.Len(t, f.queue.events, 100)
		assert.Len(t, f.router.events, 100)
		assert.Equal(t, 1, f.recorder.rateLimited)
	})
	t.Run("Should count per acting user", func(t *testing.T) {
		f := newEmitterFixture(t, WithRateLimiter(&countingLimiter{limit: 1}))
		_, err := f.emitter.Emit(userctx.WithUserID(context.Background(), "a"), "c1", EventTypeStepAdded, nil, false)
		require.NoError(t, err)
		_, err = f.emitter.Emit(userctx.WithUserID(context.Background(), "b"), "c1", EventTypeStepAdded, nil, false)
		require.NoError(t, err)
	})
	t.Run("Should bypass the limiter for system and anonymous callers", func(t *testing.T) {
		f := newEmitterFixture(t, WithRateLimiter(&countingLimiter{limit: 0}))
		_, err := f.emitter.Emit(context.Background(), "c1", EventTypeStepAdded, nil, false)
		require.NoError(t, err)
		sys := userctx.WithUserID(context.Background(), userctx.SystemUser)
		_, err = f.emitter.Emit(sys, "c1", EventTypeStepAdded, nil, false)
		require.NoError(t, err)
	})
}

func TestEmitter_Hooks(t *testing.T) {
	ctx := context.Background()
	t.Run("Should run hooks on completion events only", func(t *testing.T) {
		var calls []EventType
		hook := HookFunc{HookName: "record", Fn: func(_ context.Context, env Envelope) error {
			calls = append(calls, env.Type)
			return nil
		}}
		f := newEmitterFixture(t, WithHooks(hook))
		require.NoError(t, f.emitter.Step(ctx, "c1", "planner", "thinking", false))
		require.NoError(t, f.emitter.ResearchComplete(ctx, "c1", "answer", nil))
		require.NoError(t, f.emitter.WorkflowCompleted(ctx, "c1", "wf-1", nil))
		require.NoError(t, f.emitter.WorkflowFailed(ctx, "c1", "wf-1", errors.New("boom")))
		assert.Equal(t, []EventType{
			EventTypeResearchComplete,
			EventTypeWorkflowCompleted,
			EventTypeWorkflowFailed,
		}, calls)
	})
	t.Run("Should isolate failing and panicking hooks", func(t *testing.T) {
		var ran bool
		failing := HookFunc{HookName: "fail", Fn: func(context.Context, Envelope) error { return errors.New("boom") }}
		panicking := HookFunc{HookName: "panic", Fn: func(context.Context, Envelope) error { panic("kaboom") }}
		last := HookFunc{HookName: "last", Fn: func(context.Context, Envelope) error {
			ran = true
			return nil
		}}
		f := newEmitterFixture(t, WithHooks(failing, panicking, last))
		require.NoError(t, f.emitter.ResearchComplete(ctx, "c1", "answer", nil))
		assert.True(t, ran)
		assert.Equal(t, 2, f.recorder.hookFailures)
		assert.Len(t, f.queue.events, 1)
	})
}

func TestEmitter_ConvenienceMethods(t *testing.T) {
	ctx := context.Background()
	t.Run("Should truncate oversized answers", func(t *testing.T) {
		f := newEmitterFixture(t, WithMaxPayloadAnswer(10))
		answer := strings.Repeat("a", 25)
		require.NoError(t, f.emitter.ResearchComplete(ctx, "c1", answer, nil))
		var payload CompletionPayload
		require.NoError(t, f.queue.events[0].env.Decode(&payload))
		assert.True(t, payload.Truncated)
		assert.Len(t, payload.Answer, 10)
		assert.Equal(t, 25, payload.Length)
	})
	t.Run("Should keep answers within the limit intact", func(t *testing.T) {
		f := newEmitterFixture(t)
		require.NoError(t, f.emitter.ResearchComplete(ctx, "c1", "short", nil))
		var payload CompletionPayload
		require.NoError(t, f.queue.events[0].env.Decode(&payload))
		assert.False(t, payload.Truncated)
		assert.Equal(t, "short", payload.Answer)
	})
	t.Run("Should not split multibyte characters", func(t *testing.T) {
		assert.Equal(t, "ab", truncateUTF8("abé", 3))
		assert.Equal(t, "abé", truncateUTF8("abé", 4))
	})
	t.Run("Should route each helper to its channel", func(t *testing.T) {
		f := newEmitterFixture(t)
		require.NoError(t, f.emitter.SourceAdded(ctx, "c1", SourcePayload{Title: "a"}))
		require.NoError(t, f.emitter.KnowledgeSourceAdded(ctx, "c1", SourcePayload{Title: "b"}))
		require.NoError(t, f.emitter.ArtifactAdded(ctx, "c1", ArtifactPayload{ID: "x", Kind: "chart"}))
		require.NoError(t, f.emitter.InteractionUpdated(ctx, "c1", map[string]any{"title": "t"}))
		require.NoError(t, f.emitter.AnswerChunk(ctx, "c1", "Hel"))
		require.NoError(t, f.emitter.ThinkingChunk(ctx, "c1", "hmm"))
		channels := make([]string, 0, len(f.router.events))
		for _, ev := range f.router.events {
			channels = append(channels, ev.channel)
		}
		assert.Equal(t, []string{
			"conversation.c1.sources",
			"conversation.c1.sources",
			"conversation.c1.artifacts",
			"conversation.c1.interaction",
			"conversation.c1.interaction",
			"conversation.c1.status",
		}, channels)
	})
}
