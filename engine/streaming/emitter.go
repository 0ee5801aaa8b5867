package streaming

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/compozy/statusstream/engine/auth/userctx"
	"github.com/compozy/statusstream/pkg/logger"
)

// OwnershipResolver finds the user that owns a conversation.
type OwnershipResolver interface {
	Owner(ctx context.Context, conversationID string) (string, error)
}

// RateLimiter counts emissions per acting user and rejects callers that
// exceed their budget.
type RateLimiter interface {
	CheckAndIncrement(ctx context.Context, userID string) error
}

// Recorder receives emitter telemetry.
type Recorder interface {
	RecordEmit(ctx context.Context, eventType string)
	RecordPublishFailure(ctx context.Context, sink string)
	RecordRateLimited(ctx context.Context)
	RecordHookFailure(ctx context.Context, count int)
}

const (
	sinkQueue  = "queue"
	sinkRouter = "router"

	// DefaultMaxPayloadAnswer bounds the answer embedded in a research_complete event.
	DefaultMaxPayloadAnswer = 8192
)

// Emitter is the single entry point producers use to report progress. Every
// event is queued for the owning user and broadcast on the matching channel.
type Emitter struct {
	queue     QueueStore
	router    Publisher
	owners    OwnershipResolver
	limiter   RateLimiter
	hooks     []InteractionHook
	recorder  Recorder
	now       func() time.Time
	maxAnswer int
}

// Option configures an Emitter.
type Option func(*Emitter)

// WithRateLimiter enables per-user emission limits.
func WithRateLimiter(l RateLimiter) Option {
	return func(e *Emitter) {
		e.limiter = l
	}
}

// WithHooks registers hooks run after completion events.
func WithHooks(hooks ...InteractionHook) Option {
	return func(e *Emitter) {
		for _, h := range hooks {
			if h != nil {
				e.hooks = append(e.hooks, h)
			}
		}
	}
}

// WithRecorder attaches a telemetry recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Emitter) {
		if r != nil {
			e.recorder = r
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Emitter) {
		if now != nil {
			e.now = now
		}
	}
}

// WithMaxPayloadAnswer sets the answer size above which research_complete
// payloads are truncated. Zero disables truncation.
func WithMaxPayloadAnswer(n int) Option {
	return func(e *Emitter) {
		if n >= 0 {
			e.maxAnswer = n
		}
	}
}

// NewEmitter wires an emitter over a queue store, a channel publisher and an
// ownership resolver.
func NewEmitter(queue QueueStore, router Publisher, owners OwnershipResolver, opts ...Option) (*Emitter, error) {
	if queue == nil {
		return nil, errors.New("streaming: queue store is required")
	}
	if router == nil {
		return nil, errors.New("streaming: channel publisher is required")
	}
	if owners == nil {
		return nil, errors.New("streaming: ownership resolver is required")
	}
	e := &Emitter{
		queue:     queue,
		router:    router,
		owners:    owners,
		recorder:  nopRecorder{},
		now:       time.Now,
		maxAnswer: DefaultMaxPayloadAnswer,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Emit publishes one event for conversationID. Transport failures are logged
// and swallowed. Only validation and rate limit errors reach the caller.
func (e *Emitter) Emit(
	ctx context.Context,
	conversationID string,
	eventType EventType,
	payload any,
	significant bool,
) (Envelope, error) {
	log := logger.FromContext(ctx).With("conversation_id", conversationID, "event_type", eventType)
	if err := ValidateConversationID(conversationID); err != nil {
		return Envelope{}, err
	}
	if !eventType.IsKnown() {
		return Envelope{}, fmt.Errorf("%w: unknown event type %q", ErrInvalidEvent, eventType)
	}
	owner := e.resolveOwner(ctx, conversationID)
	if err := e.checkRate(ctx); err != nil {
		e.recorder.RecordRateLimited(ctx)
		log.Warn("Event rejected by rate limiter", "error", err)
		return Envelope{}, err
	}
	env, err := NewEnvelope(conversationID, eventType, payload, significant, e.now())
	if err != nil {
		return Envelope{}, err
	}
	if err := e.queue.Publish(ctx, owner, conversationID, env); err != nil {
		e.recorder.RecordPublishFailure(ctx, sinkQueue)
		log.Warn("Failed to queue event", "owner", owner, "error", err)
	}
	channel := ChannelName(conversationID, PurposeFor(eventType))
	if err := e.router.Publish(ctx, channel, eventType.String(), env); err != nil {
		e.recorder.RecordPublishFailure(ctx, sinkRouter)
		log.Warn("Failed to broadcast event", "channel", channel, "error", err)
	}
	e.recorder.RecordEmit(ctx, eventType.String())
	if eventType.IsCompletion() && len(e.hooks) > 0 {
		if failed := runHooks(ctx, e.hooks, env); failed > 0 {
			e.recorder.RecordHookFailure(ctx, failed)
		}
	}
	return env, nil
}

func (e *Emitter) resolveOwner(ctx context.Context, conversationID string) string {
	owner, err := e.owners.Owner(ctx, conversationID)
	if err != nil || owner == "" {
		if err != nil {
			logger.FromContext(ctx).Debug(
				"Conversation owner not resolved, using system queue",
				"conversation_id", conversationID,
				"error", err,
			)
		}
		return userctx.SystemUser
	}
	return owner
}

func (e *Emitter) checkRate(ctx context.Context) error {
	if e.limiter == nil {
		return nil
	}
	actor, ok := userctx.UserIDFromContext(ctx)
	if !ok || userctx.IsSystem(actor) {
		return nil
	}
	return e.limiter.CheckAndIncrement(ctx, actor)
}

// Step records a timeline entry. Significant steps render as milestones.
func (e *Emitter) Step(ctx context.Context, conversationID, source, message string, significant bool) error {
	_, err := e.Emit(ctx, conversationID, EventTypeStepAdded, StepPayload{Source: source, Message: message}, significant)
	return err
}

// SourceAdded reports a research source.
func (e *Emitter) SourceAdded(ctx context.Context, conversationID string, src SourcePayload) error {
	_, err := e.Emit(ctx, conversationID, EventTypeSourceAdded, src, false)
	return err
}

// KnowledgeSourceAdded reports a source retrieved from the knowledge base.
func (e *Emitter) KnowledgeSourceAdded(ctx context.Context, conversationID string, src SourcePayload) error {
	_, err := e.Emit(ctx, conversationID, EventTypeKnowledgeSourceAdded, src, false)
	return err
}

// ArtifactAdded reports an artifact produced during the run.
func (e *Emitter) ArtifactAdded(ctx context.Context, conversationID string, artifact ArtifactPayload) error {
	_, err := e.Emit(ctx, conversationID, EventTypeArtifactAdded, artifact, true)
	return err
}

// InteractionUpdated reports a change to the conversation record.
func (e *Emitter) InteractionUpdated(ctx context.Context, conversationID string, fields map[string]any) error {
	_, err := e.Emit(ctx, conversationID, EventTypeInteractionUpdated, fields, false)
	return err
}

// AnswerChunk streams a fragment of the answer.
func (e *Emitter) AnswerChunk(ctx context.Context, conversationID, text string) error {
	_, err := e.Emit(ctx, conversationID, EventTypeAnswerStream, ChunkPayload{Text: text}, false)
	return err
}

// ThinkingChunk streams a fragment of intermediate reasoning.
func (e *Emitter) ThinkingChunk(ctx context.Context, conversationID, text string) error {
	_, err := e.Emit(ctx, conversationID, EventTypeThinkingStream, ChunkPayload{Text: text}, false)
	return err
}

// ResearchComplete reports the final answer, truncating it when it exceeds
// the configured payload limit.
func (e *Emitter) ResearchComplete(
	ctx context.Context,
	conversationID string,
	answer string,
	meta map[string]any,
) error {
	payload := CompletionPayload{Answer: answer, Length: len(answer), Meta: meta}
	if e.maxAnswer > 0 && len(answer) > e.maxAnswer {
		payload.Answer = truncateUTF8(answer, e.maxAnswer)
		payload.Truncated = true
	}
	_, err := e.Emit(ctx, conversationID, EventTypeResearchComplete, payload, true)
	return err
}

// WorkflowCompleted reports successful workflow termination.
func (e *Emitter) WorkflowCompleted(
	ctx context.Context,
	conversationID string,
	workflowID string,
	result map[string]any,
) error {
	_, err := e.Emit(
		ctx,
		conversationID,
		EventTypeWorkflowCompleted,
		WorkflowPayload{WorkflowID: workflowID, Result: result},
		true,
	)
	return err
}

// WorkflowFailed reports workflow failure.
func (e *Emitter) WorkflowFailed(ctx context.Context, conversationID string, workflowID string, cause error) error {
	payload := WorkflowPayload{WorkflowID: workflowID}
	if cause != nil {
		payload.Error = cause.Error()
	}
	_, err := e.Emit(ctx, conversationID, EventTypeWorkflowFailed, payload, true)
	return err
}

func truncateUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

type nopRecorder struct{}

func (nopRecorder) RecordEmit(context.Context, string)           {}
func (nopRecorder) RecordPublishFailure(context.Context, string) {}
func (nopRecorder) RecordRateLimited(context.Context)            {}
func (nopRecorder) RecordHookFailure(context.Context, int)       {}
