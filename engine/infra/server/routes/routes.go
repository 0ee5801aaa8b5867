package routes

import "fmt"

// APIVersion is the version segment of every API route.
const APIVersion = "v0"

// Version returns the API version string used in routing (e.g., "v0").
func Version() string {
	return APIVersion
}

// Base returns the versioned API base path (e.g., "/api/v0").
func Base() string {
	return fmt.Sprintf("/api/%s", Version())
}

// Conversations returns the conversations base path (e.g., "/api/v0/conversations").
func Conversations() string {
	return Base() + "/conversations"
}

// ConversationEvents returns the drain path for one conversation.
func ConversationEvents(conversationID string) string {
	return Conversations() + "/" + conversationID + "/events"
}

// Conversation returns the read path for one conversation.
func Conversation(conversationID string) string {
	return Conversations() + "/" + conversationID
}

// WS returns the websocket channel hub path (e.g., "/api/v0/ws").
func WS() string {
	return Base() + "/ws"
}

// HealthVersioned returns the versioned health path (e.g., "/api/v0/health").
func HealthVersioned() string {
	return Base() + "/health"
}
