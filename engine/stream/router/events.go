package streamrouter

import (
	"errors"
	"net/http"

	"github.com/compozy/statusstream/engine/infra/server/middleware/ratelimit"
	"github.com/compozy/statusstream/engine/infra/server/router"
	"github.com/compozy/statusstream/engine/streaming"
	"github.com/compozy/statusstream/pkg/logger"
	"github.com/gin-gonic/gin"
)

// drainEvents returns and clears every queued event of a conversation owned
// by the caller. Queue failures yield an empty list so pollers keep going.
func drainEvents(c *gin.Context) {
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
	log := logger.FromContext(ctx).With("conversation_id", id)
	owner, err := state.Guard.AuthorizeConversation(ctx, userID, id)
	if err != nil {
		log.Debug("Drain rejected", "error", err)
		router.RespondForbidden(c)
		return
	}
	events, err := state.Queue.DrainAll(ctx, owner, id)
	if err != nil {
		log.Warn("Failed to drain event queue", "error", err)
		events = nil
	}
	if events == nil {
		events = []streaming.Envelope{}
	}
	state.Metrics.RecordDrain(ctx, len(events))
	router.RespondOK(c, "events drained", DrainResponse{Events: events, Count: len(events)})
}

// emitEvent publishes one event on behalf of the caller. Only the owner and
// the system identity may emit.
func emitEvent(c *gin.Context) {
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
	var body EmitEventRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		router.RespondProblemWithCode(c, http.StatusBadRequest, router.ErrBadRequestCode, "invalid event body")
		return
	}
	var payload any
	if len(body.Payload) > 0 {
		payload = body.Payload
	}
	env, err := state.Emitter.Emit(ctx, id, body.Type, payload, body.Significant)
	if err != nil {
		switch {
		case errors.Is(err, ratelimit.ErrRateLimitExceeded):
			router.RespondProblemWithCode(c, http.StatusTooManyRequests, router.ErrRateLimitedCode, "event rate limit exceeded")
		case errors.Is(err, streaming.ErrInvalidEvent):
			router.RespondProblemWithCode(c, http.StatusBadRequest, router.ErrBadRequestCode, err.Error())
		default:
			router.RespondError(c, router.WrapServerError(router.ErrInternalCode, "failed to emit event", err))
		}
		return
	}
	router.RespondAccepted(c, "event emitted", env)
}
