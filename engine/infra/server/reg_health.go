package server

import (
	"context"
	"net/http"

	"github.com/compozy/statusstream/pkg/version"
	"github.com/gin-gonic/gin"
)

// CreateHealthHandler reports every registered dependency probe. Any failing
// probe turns the response into a 503.
func CreateHealthHandler(server *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthProbeTimeout)
		defer cancel()
		ready, components := gatherComponentStatus(ctx, server)
		status := statusHealthy
		if !ready {
			status = statusDegraded
		}
		response := gin.H{
			"status":     status,
			"version":    version.Get().Version,
			"ready":      ready,
			"components": components,
		}
		if server != nil {
			response["drivers"] = gin.H{
				"store":  server.storeDriverLabel,
				"broker": server.brokerDriverLabel,
				"cache":  server.cacheDriverLabel,
			}
			if server.hub != nil {
				response["websocket_sessions"] = server.hub.Sessions()
			}
		}
		c.JSON(determineHealthStatusCode(ready), gin.H{
			"data":    response,
			"message": "Success",
		})
	}
}

func gatherComponentStatus(ctx context.Context, server *Server) (bool, gin.H) {
	components := gin.H{}
	ready := true
	if server == nil {
		return ready, components
	}
	for _, probe := range server.healthProbes() {
		entry := gin.H{"healthy": true}
		if err := probe.check(ctx); err != nil {
			entry["healthy"] = false
			entry["error"] = err.Error()
			ready = false
		}
		components[probe.name] = entry
	}
	return ready, components
}

func determineHealthStatusCode(ready bool) int {
	if !ready {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}
