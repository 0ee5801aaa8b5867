package streaming

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/compozy/statusstream/engine/core"
)

// EventType enumerates the progress events surfaced to conversation viewers.
type EventType string

const (
	EventTypeStepAdded            EventType = "step_added"
	EventTypeSourceAdded          EventType = "source_added"
	EventTypeArtifactAdded        EventType = "artifact_added"
	EventTypeInteractionUpdated   EventType = "interaction_updated"
	EventTypeResearchComplete     EventType = "research_complete"
	EventTypeKnowledgeSourceAdded EventType = "knowledge_source_added"
	EventTypeWorkflowCompleted    EventType = "workflow_completed"
	EventTypeWorkflowFailed       EventType = "workflow_failed"
	EventTypeAnswerStream         EventType = "answer_stream"
	EventTypeThinkingStream       EventType = "thinking_stream"
)

var knownEventTypes = map[EventType]struct{}{
	EventTypeStepAdded:            {},
	EventTypeSourceAdded:          {},
	EventTypeArtifactAdded:        {},
	EventTypeInteractionUpdated:   {},
	EventTypeResearchComplete:     {},
	EventTypeKnowledgeSourceAdded: {},
	EventTypeWorkflowCompleted:    {},
	EventTypeWorkflowFailed:       {},
	EventTypeAnswerStream:         {},
	EventTypeThinkingStream:       {},
}

func (t EventType) String() string {
	return string(t)
}

// IsKnown reports whether t is one of the declared event types.
func (t EventType) IsKnown() bool {
	_, ok := knownEventTypes[t]
	return ok
}

// IsCompletion reports whether the event marks the end of a conversation run.
func (t EventType) IsCompletion() bool {
	switch t {
	case EventTypeResearchComplete, EventTypeWorkflowCompleted, EventTypeWorkflowFailed:
		return true
	default:
		return false
	}
}

// IsContentChunk reports whether the event carries an incremental text chunk.
func (t EventType) IsContentChunk() bool {
	return t == EventTypeAnswerStream || t == EventTypeThinkingStream
}

// Envelope is the transport representation queued for polling and broadcast
// to subscribers. Envelopes are values and are never mutated after creation.
type Envelope struct {
	ID             core.ID         `json:"id"`
	ConversationID string          `json:"conversation_id"`
	Type           EventType       `json:"type"`
	Payload        json.RawMessage `json:"payload"`
	Timestamp      time.Time       `json:"timestamp"`
	Significant    bool            `json:"is_significant"`
}

// NewEnvelope constructs an envelope with a fresh identifier.
func NewEnvelope(
	conversationID string,
	eventType EventType,
	payload any,
	significant bool,
	ts time.Time,
) (Envelope, error) {
	if err := ValidateConversationID(conversationID); err != nil {
		return Envelope{}, err
	}
	if eventType == "" {
		return Envelope{}, fmt.Errorf("%w: event type is required", ErrInvalidEvent)
	}
	data, err := marshalPayload(payload)
	if err != nil {
		return Envelope{}, err
	}
	id, err := core.NewID()
	if err != nil {
		return Envelope{}, fmt.Errorf("streaming: generate envelope id: %w", err)
	}
	return Envelope{
		ID:             id,
		ConversationID: conversationID,
		Type:           eventType,
		Payload:        data,
		Timestamp:      ts.UTC(),
		Significant:    significant,
	}, nil
}

func marshalPayload(payload any) (json.RawMessage, error) {
	switch v := payload.(type) {
	case nil:
		return json.RawMessage("{}"), nil
	case json.RawMessage:
		if !json.Valid(v) {
			return nil, fmt.Errorf("%w: payload is not valid JSON", ErrInvalidEvent)
		}
		out := make(json.RawMessage, len(v))
		copy(out, v)
		return out, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: marshal payload: %w", ErrInvalidEvent, err)
		}
		return data, nil
	}
}

// Decode unmarshals the envelope payload into dst.
func (e Envelope) Decode(dst any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("streaming: decode %s payload: %w", e.Type, err)
	}
	return nil
}

// StepPayload describes a timeline entry produced by a workflow step.
type StepPayload struct {
	Source  string         `json:"source"`
	Message string         `json:"message"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// SourcePayload describes a research or knowledge source that was consulted.
type SourcePayload struct {
	Title   string `json:"title"`
	URL     string `json:"url,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

// ArtifactPayload describes an artifact produced during a run.
type ArtifactPayload struct {
	ID    string `json:"id"`
	Kind  string `json:"kind"`
	Title string `json:"title,omitempty"`
	URI   string `json:"uri,omitempty"`
}

// ChunkPayload carries an incremental answer or thinking fragment.
type ChunkPayload struct {
	Text string `json:"text"`
}

// CompletionPayload carries the final answer of a research run. Truncated is
// set when Answer was cut and viewers must reload the persisted conversation.
type CompletionPayload struct {
	Answer    string         `json:"answer,omitempty"`
	Truncated bool           `json:"truncated,omitempty"`
	Length    int            `json:"length"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// WorkflowPayload describes the terminal state of a workflow.
type WorkflowPayload struct {
	WorkflowID string         `json:"workflow_id"`
	Error      string         `json:"error,omitempty"`
	Result     map[string]any `json:"result,omitempty"`
}
