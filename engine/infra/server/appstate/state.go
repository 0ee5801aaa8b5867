package appstate

import (
	"context"
	"fmt"

	"github.com/compozy/statusstream/engine/auth"
	"github.com/compozy/statusstream/engine/conversation"
	"github.com/compozy/statusstream/engine/infra/monitoring"
	"github.com/compozy/statusstream/engine/infra/pubsub"
	"github.com/compozy/statusstream/engine/streaming"
	"github.com/compozy/statusstream/pkg/config"
	"github.com/gin-gonic/gin"
)

type contextKey string

const stateKey contextKey = "app_state"

// Subscriber opens a live subscription on a conversation channel.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (pubsub.Subscription, error)
}

// BaseDeps groups the collaborators every stream handler needs.
type BaseDeps struct {
	Queue         streaming.QueueStore
	Channels      Subscriber
	Emitter       *streaming.Emitter
	Conversations conversation.Repository
	Guard         *auth.Guard
}

// State is the per-process dependency container attached to every request.
type State struct {
	BaseDeps
	Config  *config.Config
	Metrics *monitoring.StreamMetrics
}

// NewState validates deps and builds the container.
func NewState(cfg *config.Config, deps BaseDeps, metrics *monitoring.StreamMetrics) (*State, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	switch {
	case deps.Queue == nil:
		return nil, fmt.Errorf("queue store is required")
	case deps.Channels == nil:
		return nil, fmt.Errorf("channel subscriber is required")
	case deps.Emitter == nil:
		return nil, fmt.Errorf("emitter is required")
	case deps.Conversations == nil:
		return nil, fmt.Errorf("conversation repository is required")
	case deps.Guard == nil:
		return nil, fmt.Errorf("authorization guard is required")
	}
	if metrics == nil {
		metrics = &monitoring.StreamMetrics{}
	}
	return &State{BaseDeps: deps, Config: cfg, Metrics: metrics}, nil
}

func WithState(ctx context.Context, state *State) context.Context {
	return context.WithValue(ctx, stateKey, state)
}

func GetState(ctx context.Context) (*State, error) {
	state, ok := ctx.Value(stateKey).(*State)
	if !ok || state == nil {
		return nil, fmt.Errorf("app state not found in context")
	}
	return state, nil
}

func StateMiddleware(state *State) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := WithState(c.Request.Context(), state)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
