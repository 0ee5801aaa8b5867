package streamrouter

import (
	"encoding/json"

	"github.com/compozy/statusstream/engine/streaming"
)

// CreateConversationRequest is the body of POST /conversations.
type CreateConversationRequest struct {
	ID    string `json:"id,omitempty"`
	Title string `json:"title"`
}

// SaveAnswerRequest is the body of PUT /conversations/:id/answer.
type SaveAnswerRequest struct {
	Answer string `json:"answer" binding:"required"`
}

// EmitEventRequest is the body of POST /conversations/:id/events.
type EmitEventRequest struct {
	Type        streaming.EventType `json:"type"           binding:"required"`
	Payload     json.RawMessage     `json:"payload"`
	Significant bool                `json:"is_significant"`
}

// DrainResponse lists the events removed from the queue, oldest first.
type DrainResponse struct {
	Events []streaming.Envelope `json:"events"`
	Count  int                  `json:"count"`
}
