package cli

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/common-nighthawk/go-figure"
	"github.com/compozy/statusstream/engine/infra/server"
	"github.com/compozy/statusstream/pkg/config"
	"github.com/compozy/statusstream/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

const productionEnvironment = "production"

// ServeCmd starts the HTTP server with the queue, channel hub and emitter.
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start the statusstream server",
		RunE:    runServe,
	}
	cmd.Flags().String("host", "", "Interface to bind")
	cmd.Flags().Int("port", 0, "Port to listen on")
	cmd.Flags().String("mode", "", "Deployment mode: standalone or distributed")
	cmd.Flags().String("redis-url", "", "Redis URL used in distributed mode")
	cmd.Flags().String("db", "", "SQLite database path")
	cmd.Flags().Bool("no-banner", false, "Skip the startup banner")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg := config.FromContext(ctx)
	if cfg == nil {
		return fmt.Errorf("configuration missing from context; attach a manager with config.ContextWithManager")
	}
	if cfg.Runtime.Environment == productionEnvironment {
		gin.SetMode(gin.ReleaseMode)
	}
	log := logger.FromContext(ctx)
	logSecurityWarnings(log, cfg)
	if !isPortAvailable(ctx, cfg.Server.Host, cfg.Server.Port) {
		return fmt.Errorf("port %d is not available on host %s", cfg.Server.Port, cfg.Server.Host)
	}
	if noBanner, _ := cmd.Flags().GetBool("no-banner"); !noBanner && isInteractive(os.Stdout) {
		fmt.Fprintln(cmd.OutOrStdout(), renderBanner())
	}
	manager := config.ManagerFromContext(ctx)
	defer func() {
		if err := manager.Close(ctx); err != nil {
			log.Warn("Failed to close configuration sources", "error", err)
		}
	}()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		if err := manager.Watch(ctx, path); err != nil {
			log.Warn("Configuration hot reload disabled", "path", path, "error", err)
		}
	}
	srv, err := server.NewServer(ctx)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	return srv.Run()
}

func renderBanner() string {
	logo := figure.NewFigure("statusstream", "small", true)
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("#04B575")).
		Bold(true).
		Render(logo.String())
}

func logSecurityWarnings(log logger.Logger, cfg *config.Config) {
	if !cfg.Auth.Enabled {
		log.Warn("Authentication is disabled; callers are identified by the X-User-ID header")
	}
	if cfg.Runtime.Environment == productionEnvironment && cfg.Mode == config.ModeStandalone {
		log.Warn("Standalone mode keeps the queue in an embedded Redis; events are lost on restart")
	}
}

// isPortAvailable checks that host:port can be bound right now.
func isPortAvailable(ctx context.Context, host string, port int) bool {
	lc := net.ListenConfig{}
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}
