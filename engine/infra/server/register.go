package server

import (
	"context"

	"github.com/compozy/statusstream/engine/infra/server/appstate"
	"github.com/compozy/statusstream/engine/infra/server/routes"
	streamrouter "github.com/compozy/statusstream/engine/stream/router"
	"github.com/compozy/statusstream/pkg/logger"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the health probes and the versioned stream API.
func RegisterRoutes(ctx context.Context, r *gin.Engine, state *appstate.State, server *Server) error {
	health := CreateHealthHandler(server)
	r.GET("/health", health)
	apiBase := r.Group(routes.Base())
	apiBase.GET("/health", health)
	streamrouter.Register(apiBase, server.hub)
	logger.FromContext(ctx).Info("Completed route registration",
		"api_base", routes.Base(),
		"websocket", routes.WS(),
		"auth_enabled", state.Config.Auth.Enabled,
	)
	return nil
}
