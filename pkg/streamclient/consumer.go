package streamclient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/compozy/statusstream/engine/streaming"
	"github.com/compozy/statusstream/pkg/logger"
)

const defaultReloadTimeout = 5 * time.Second

// Snapshot is the persisted conversation a viewer reconciles against.
type Snapshot struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Answer string `json:"answer"`
	Error  string `json:"error,omitempty"`
}

// Loader reads the authoritative conversation content.
type Loader interface {
	LoadConversation(ctx context.Context, conversationID string) (*Snapshot, error)
}

// Consumer turns inbound envelopes into view state for one active
// conversation. It is not safe for concurrent use; Client calls it from
// its event loop only.
type Consumer struct {
	log           logger.Logger
	renderer      Renderer
	loader        Loader
	dedup         *dedupSet
	reloadTimeout time.Duration

	conversationID string
	timeline       []TimelineEntry
	content        map[ContentKind]*strings.Builder
	completion     *Completion
}

// NewConsumer creates a consumer. loader may be nil, in which case
// completion payloads are trusted as-is.
func NewConsumer(renderer Renderer, loader Loader, dedupCapacity int, log logger.Logger) (*Consumer, error) {
	if renderer == nil {
		renderer = NopRenderer{}
	}
	if log == nil {
		log = logger.GetDefault()
	}
	dedup, err := newDedupSet(dedupCapacity)
	if err != nil {
		return nil, err
	}
	return &Consumer{
		log:           log,
		renderer:      renderer,
		loader:        loader,
		dedup:         dedup,
		reloadTimeout: defaultReloadTimeout,
		content:       make(map[ContentKind]*strings.Builder),
	}, nil
}

// Reset makes conversationID the active conversation and clears the view.
func (c *Consumer) Reset(conversationID string) {
	c.conversationID = conversationID
	c.timeline = nil
	c.content = make(map[ContentKind]*strings.Builder)
	c.completion = nil
	c.dedup.Reset()
}

func (c *Consumer) ConversationID() string {
	return c.conversationID
}

// Timeline returns a copy of the rendered timeline.
func (c *Consumer) Timeline() []TimelineEntry {
	out := make([]TimelineEntry, len(c.timeline))
	copy(out, c.timeline)
	return out
}

// Content returns the accumulated text for kind.
func (c *Consumer) Content(kind ContentKind) string {
	if b, ok := c.content[kind]; ok {
		return b.String()
	}
	return ""
}

// Completion returns the completion of the active conversation, or nil.
func (c *Consumer) Completion() *Completion {
	if c.completion == nil {
		return nil
	}
	out := *c.completion
	return &out
}

// ProcessStatusEvent is the single entry point for live and polled events.
// Errors are returned for the caller to log; none of them should stop the
// caller from feeding the next event.
func (c *Consumer) ProcessStatusEvent(ctx context.Context, raw []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic while processing: %v", ErrMalformedEvent, r)
		}
	}()
	ev, err := parseEvent(raw)
	if err != nil {
		return err
	}
	if ev.ConversationID != c.conversationID {
		c.log.Debug("Dropping event for inactive conversation",
			"conversation_id", ev.ConversationID, "active", c.conversationID, "type", ev.Type)
		return nil
	}
	if c.dedup.Observe(ev.fingerprint()) {
		return nil
	}
	switch {
	case ev.Type.IsContentChunk():
		c.appendChunk(ev)
	case ev.Type.IsCompletion():
		c.complete(ctx, ev)
	default:
		c.appendTimeline(ev)
	}
	return nil
}

func (c *Consumer) appendChunk(ev inboundEvent) {
	kind := ContentAnswer
	if ev.Type == streaming.EventTypeThinkingStream {
		kind = ContentThinking
	}
	b, ok := c.content[kind]
	if !ok {
		b = &strings.Builder{}
		c.content[kind] = b
	}
	b.WriteString(ev.Payload.Get("text").String())
	c.renderer.ContentUpdated(kind, b.String())
}

func (c *Consumer) appendTimeline(ev inboundEvent) {
	source, message := ev.sourceAndMessage()
	entry := TimelineEntry{
		EventID:   ev.ID,
		Type:      ev.Type,
		Source:    source,
		Message:   message,
		Marker:    MarkerDot,
		Timestamp: ev.Timestamp,
	}
	if ev.Significant {
		entry.Marker = MarkerMilestone
	}
	c.timeline = append(c.timeline, entry)
	c.renderer.TimelineAppended(entry)
}

func (c *Consumer) complete(ctx context.Context, ev inboundEvent) {
	if c.completion != nil {
		c.log.Debug("Ignoring repeated completion", "conversation_id", ev.ConversationID, "type", ev.Type)
		return
	}
	done := Completion{ConversationID: ev.ConversationID, Type: ev.Type}
	if ev.Type == streaming.EventTypeWorkflowFailed {
		done.Failed = true
		done.Error = ev.Payload.Get("error").String()
		c.finish(done)
		return
	}
	done.Answer = ev.Payload.Get("answer").String()
	if done.Answer == "" {
		done.Answer = c.Content(ContentAnswer)
	}
	if ev.Payload.Get("truncated").Bool() || ev.Payload.Get("answer").String() == "" {
		c.reload(ctx, &done)
	}
	c.finish(done)
}

// reload replaces the answer with the persisted one. On failure the best
// local answer is kept.
func (c *Consumer) reload(ctx context.Context, done *Completion) {
	if c.loader == nil {
		return
	}
	rctx, cancel := context.WithTimeout(ctx, c.reloadTimeout)
	defer cancel()
	snap, err := c.loader.LoadConversation(rctx, done.ConversationID)
	if err != nil {
		c.log.Warn("Failed to reload conversation after completion",
			"conversation_id", done.ConversationID, "error", err)
		return
	}
	if snap.Answer != "" {
		done.Answer = snap.Answer
		done.Reloaded = true
	}
	if snap.Status == "failed" {
		done.Failed = true
		done.Error = snap.Error
	}
}

func (c *Consumer) finish(done Completion) {
	c.completion = &done
	c.renderer.Completed(done)
}
