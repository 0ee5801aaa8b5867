package streaming

import (
	"context"
	"fmt"

	"github.com/compozy/statusstream/pkg/logger"
)

// InteractionHook reacts to completion events after they were published.
// Hooks are registered explicitly on the Emitter and run in order.
type InteractionHook interface {
	Name() string
	OnCompletion(ctx context.Context, env Envelope) error
}

// HookFunc adapts a function to InteractionHook.
type HookFunc struct {
	HookName string
	Fn       func(ctx context.Context, env Envelope) error
}

func (h HookFunc) Name() string {
	return h.HookName
}

func (h HookFunc) OnCompletion(ctx context.Context, env Envelope) error {
	if h.Fn == nil {
		return nil
	}
	return h.Fn(ctx, env)
}

// runHooks invokes every hook and isolates failures. It returns the number of
// hooks that failed.
func runHooks(ctx context.Context, hooks []InteractionHook, env Envelope) int {
	failed := 0
	for _, hook := range hooks {
		if err := safeInvoke(ctx, hook, env); err != nil {
			failed++
			logger.FromContext(ctx).Error(
				"Interaction hook failed",
				"hook", hook.Name(),
				"conversation_id", env.ConversationID,
				"event_type", env.Type,
				"error", err,
			)
		}
	}
	return failed
}

func safeInvoke(ctx context.Context, hook InteractionHook, env Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hook panicked: %v", r)
		}
	}()
	return hook.OnCompletion(ctx, env)
}
