package streamrouter

import "github.com/gin-gonic/gin"

// Register mounts the conversation stream routes under apiBase. hub serves
// the websocket channel endpoint.
func Register(apiBase *gin.RouterGroup, hub *Hub) {
	conversationsGroup := apiBase.Group("/conversations")
	{
		// POST /api/v0/conversations
		// Create a conversation owned by the caller
		conversationsGroup.POST("", createConversation)

		// GET /api/v0/conversations/:conversation_id
		// Read the persisted conversation
		conversationsGroup.GET("/:conversation_id", getConversation)

		// PUT /api/v0/conversations/:conversation_id/answer
		// Persist the final answer before completion is emitted
		conversationsGroup.PUT("/:conversation_id/answer", saveAnswer)

		// GET /api/v0/conversations/:conversation_id/events
		// Drain every queued event for the conversation
		conversationsGroup.GET("/:conversation_id/events", drainEvents)

		// POST /api/v0/conversations/:conversation_id/events
		// Emit one event
		conversationsGroup.POST("/:conversation_id/events", emitEvent)
	}

	// GET /api/v0/ws
	// Websocket channel hub
	if hub != nil {
		apiBase.GET("/ws", hub.Handle)
	}
}
