package conversation

import (
	"context"

	"github.com/compozy/statusstream/engine/streaming"
	"github.com/compozy/statusstream/pkg/logger"
)

// StatusHook moves the persisted conversation into its terminal status when
// a completion event is emitted.
type StatusHook struct {
	repo Repository
}

func NewStatusHook(repo Repository) *StatusHook {
	return &StatusHook{repo: repo}
}

func (h *StatusHook) Name() string { return "conversation-status" }

func (h *StatusHook) OnCompletion(ctx context.Context, env streaming.Envelope) error {
	status, errMsg := StatusCompleted, ""
	if env.Type == streaming.EventTypeWorkflowFailed {
		status = StatusFailed
		var payload streaming.WorkflowPayload
		if err := env.Decode(&payload); err != nil {
			logger.FromContext(ctx).Warn("Failed to decode workflow failure payload",
				"conversation_id", env.ConversationID, "error", err)
		}
		errMsg = payload.Error
	}
	return h.repo.MarkStatus(ctx, env.ConversationID, status, errMsg)
}
