package streamrouter

import (
	"errors"
	"net/http"
	"strings"

	"github.com/compozy/statusstream/engine/auth/userctx"
	"github.com/compozy/statusstream/engine/conversation"
	"github.com/compozy/statusstream/engine/infra/server/router"
	"github.com/compozy/statusstream/engine/streaming"
	"github.com/compozy/statusstream/pkg/logger"
	"github.com/gin-gonic/gin"
)

// createConversation stores a new conversation owned by the caller.
func createConversation(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	state := router.GetAppState(c)
	if state == nil {
		return
	}
	var body CreateConversationRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		router.RespondProblemWithCode(c, http.StatusBadRequest, router.ErrBadRequestCode, "invalid request body")
		return
	}
	conv := &conversation.Conversation{
		ID:      strings.TrimSpace(body.ID),
		OwnerID: userID,
		Title:   body.Title,
	}
	if err := state.Conversations.Create(c.Request.Context(), conv); err != nil {
		switch {
		case errors.Is(err, conversation.ErrAlreadyExists):
			router.RespondProblemWithCode(c, http.StatusConflict, router.ErrConflictCode, "conversation already exists")
		case errors.Is(err, streaming.ErrInvalidEvent):
			router.RespondProblemWithCode(c, http.StatusBadRequest, router.ErrBadRequestCode, "invalid conversation id")
		default:
			router.RespondError(c, router.WrapServerError(router.ErrInternalCode, "failed to create conversation", err))
		}
		return
	}
	logger.FromContext(c.Request.Context()).Info("Conversation created", "conversation_id", conv.ID)
	router.RespondCreated(c, "conversation created", conv)
}

// getConversation returns the persisted conversation to its owner. Missing
// and foreign conversations get the same forbidden response.
func getConversation(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}
	userID, ok := callerID(c)
	if !ok {
		return
	}
	state := router.GetAppState(c)
	if state == nil {
		return
	}
	ctx := c.Request.Context()
	if _, err := state.Guard.AuthorizeConversation(ctx, userID, id); err != nil {
		router.RespondForbidden(c)
		return
	}
	conv, err := state.Conversations.Get(ctx, id)
	if err != nil {
		if errors.Is(err, conversation.ErrNotFound) {
			router.RespondForbidden(c)
			return
		}
		router.RespondError(c, router.WrapServerError(router.ErrInternalCode, "failed to load conversation", err))
		return
	}
	router.RespondOK(c, "conversation retrieved", conv)
}

// saveAnswer persists the final answer. The owner and the system identity
// may write it.
func saveAnswer(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}
	userID, ok := callerID(c)
	if !ok {
		return
	}
	state := router.GetAppState(c)
	if state == nil {
		return
	}
	ctx := c.Request.Context()
	if err := state.Guard.AuthorizeEmit(ctx, userID, id); err != nil {
		router.RespondForbidden(c)
		return
	}
	var body SaveAnswerRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		router.RespondProblemWithCode(c, http.StatusBadRequest, router.ErrBadRequestCode, "answer is required")
		return
	}
	if err := state.Conversations.SaveAnswer(ctx, id, body.Answer); err != nil {
		if errors.Is(err, conversation.ErrNotFound) {
			router.RespondForbidden(c)
			return
		}
		router.RespondError(c, router.WrapServerError(router.ErrInternalCode, "failed to save answer", err))
		return
	}
	logger.FromContext(ctx).Debug(
		"Conversation answer saved",
		"conversation_id", id,
		"length", len(body.Answer),
		"system", userctx.IsSystem(userID),
	)
	router.RespondOK(c, "answer saved", gin.H{"conversation_id": id, "length": len(body.Answer)})
}
