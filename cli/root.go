package cli

import (
	"context"
	"fmt"

	"github.com/compozy/statusstream/pkg/config"
	"github.com/compozy/statusstream/pkg/logger"
	"github.com/spf13/cobra"
)

const defaultEnvFile = ".env"

// RootCmd builds the statusstream command tree.
func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "statusstream",
		Short:         "Real-time conversation status streaming",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return SetupGlobalConfig(cmd)
		},
	}
	logger.AddFlags(root)
	flags := root.PersistentFlags()
	flags.String("config", "", "Path to a YAML configuration file")
	flags.String("env-file", defaultEnvFile, "Path to an environment file")
	flags.String("base-url", "", "Server base URL used by client commands")
	flags.String("token", "", "Session token used by client commands")
	flags.String("user", "", "Development user id sent when the server runs without auth")

	root.AddCommand(
		ServeCmd(),
		WatchCmd(),
		EmitCmd(),
		SimulateCmd(),
		TokenCmd(),
		ConfigCmd(),
		VersionCmd(),
	)
	return root
}

// SetupGlobalConfig loads the env file, configuration and logger and
// attaches them to the command context.
func SetupGlobalConfig(cmd *cobra.Command) error {
	if _, err := loadEnvFile(cmd); err != nil {
		return err
	}
	configFile, err := cmd.Flags().GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	manager := config.NewManager(config.NewService())
	cfg, err := manager.Load(ctx, buildSources(cmd, configFile)...)
	if err != nil {
		return err
	}
	logOpts, err := logger.OptionsFromFlags(cmd)
	if err != nil {
		return err
	}
	if !cmd.Flags().Changed("log-level") && cfg.Runtime.LogLevel != "" {
		logOpts.Level = cfg.Runtime.LogLevel
	}
	ctx = logger.ContextWithLogger(ctx, logger.Setup(logOpts))
	cmd.SetContext(config.ContextWithManager(ctx, manager))
	return nil
}

func buildSources(cmd *cobra.Command, configFile string) []config.Source {
	sources := []config.Source{config.NewEnvProvider()}
	if configFile != "" {
		sources = append(sources, config.NewYAMLProvider(configFile))
	}
	flags := make(map[string]any)
	extractCLIFlags(cmd, flags)
	if len(flags) > 0 {
		sources = append(sources, config.NewCLIProvider(flags))
	}
	return sources
}
