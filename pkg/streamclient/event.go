package streamclient

import (
	"fmt"
	"time"

	"github.com/compozy/statusstream/engine/streaming"
	"github.com/tidwall/gjson"
)

// inboundEvent is the client view of one envelope. The payload stays a
// gjson result so unknown fields never fail the parse.
type inboundEvent struct {
	ID             string
	ConversationID string
	Type           streaming.EventType
	Significant    bool
	Timestamp      time.Time
	Payload        gjson.Result
}

func parseEvent(raw []byte) (inboundEvent, error) {
	if !gjson.ValidBytes(raw) {
		return inboundEvent{}, fmt.Errorf("%w: invalid JSON", ErrMalformedEvent)
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return inboundEvent{}, fmt.Errorf("%w: envelope is not an object", ErrMalformedEvent)
	}
	ev := inboundEvent{
		ID:             doc.Get("id").String(),
		ConversationID: doc.Get("conversation_id").String(),
		Type:           streaming.EventType(doc.Get("type").String()),
		Significant:    doc.Get("is_significant").Bool(),
		Timestamp:      doc.Get("timestamp").Time(),
		Payload:        doc.Get("payload"),
	}
	switch {
	case ev.Type == "":
		return inboundEvent{}, fmt.Errorf("%w: missing type", ErrMalformedEvent)
	case !ev.Type.IsKnown():
		return inboundEvent{}, fmt.Errorf("%w: unknown type %q", ErrMalformedEvent, ev.Type)
	case ev.ConversationID == "":
		return inboundEvent{}, fmt.Errorf("%w: missing conversation_id", ErrMalformedEvent)
	case ev.Payload.Exists() && !ev.Payload.IsObject():
		return inboundEvent{}, fmt.Errorf("%w: payload is not an object", ErrMalformedEvent)
	}
	return ev, nil
}

// fingerprint is the dedup key. Chunks repeat text legitimately and status
// updates may revisit an earlier status, so both are keyed by envelope id.
// Timeline events are keyed by content plus the identity of what they name.
func (e inboundEvent) fingerprint() string {
	if e.Type.IsContentChunk() || e.Type == streaming.EventTypeInteractionUpdated {
		if e.ID != "" {
			return "id:" + e.ID
		}
		return "raw:" + e.Type.String() + "\x00" + e.Timestamp.String() + "\x00" + e.Payload.Raw
	}
	if source, message := e.sourceAndMessage(); message != "" {
		return "msg:" + source + "\x00" + message + "\x00" + e.identity()
	}
	return "raw:" + e.Type.String() + "\x00" + e.Payload.Raw
}

// identity distinguishes sources and artifacts that share a title.
func (e inboundEvent) identity() string {
	p := e.Payload
	switch e.Type {
	case streaming.EventTypeSourceAdded, streaming.EventTypeKnowledgeSourceAdded:
		return p.Get("url").String()
	case streaming.EventTypeArtifactAdded:
		return p.Get("id").String() + "\x00" + p.Get("uri").String()
	default:
		return ""
	}
}

// sourceAndMessage extracts the timeline text for discrete events.
func (e inboundEvent) sourceAndMessage() (string, string) {
	p := e.Payload
	switch e.Type {
	case streaming.EventTypeSourceAdded, streaming.EventTypeKnowledgeSourceAdded:
		message := p.Get("title").String()
		if message == "" {
			message = p.Get("url").String()
		}
		return e.Type.String(), message
	case streaming.EventTypeArtifactAdded:
		message := p.Get("title").String()
		if message == "" {
			message = p.Get("id").String()
		}
		return e.Type.String(), message
	case streaming.EventTypeInteractionUpdated:
		message := p.Get("message").String()
		if message == "" {
			message = p.Get("status").String()
		}
		return "interaction", message
	default:
		return p.Get("source").String(), p.Get("message").String()
	}
}
