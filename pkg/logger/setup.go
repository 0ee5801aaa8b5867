package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// Options are the logging settings shared by every command.
type Options struct {
	Level  string
	JSON   bool
	Source bool
	Output io.Writer
}

// AddFlags registers the logging flags on cmd and all its children.
func AddFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.String("log-level", InfoLevel.String(), "Log level (debug, info, warn, error, disabled)")
	flags.Bool("log-json", false, "Emit logs as JSON")
	flags.Bool("log-source", false, "Include caller information in logs")
}

// OptionsFromFlags reads the flags registered by AddFlags. Logs go to the
// command's stderr so stdout stays reserved for command output.
func OptionsFromFlags(cmd *cobra.Command) (Options, error) {
	flags := cmd.Flags()
	level, err := flags.GetString("log-level")
	if err != nil {
		return Options{}, fmt.Errorf("failed to get log-level flag: %w", err)
	}
	asJSON, err := flags.GetBool("log-json")
	if err != nil {
		return Options{}, fmt.Errorf("failed to get log-json flag: %w", err)
	}
	source, err := flags.GetBool("log-source")
	if err != nil {
		return Options{}, fmt.Errorf("failed to get log-source flag: %w", err)
	}
	return Options{Level: level, JSON: asJSON, Source: source, Output: cmd.ErrOrStderr()}, nil
}

// Setup installs a process default logger built from opts and returns it.
func Setup(opts Options) Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	cfg := DefaultConfig()
	cfg.Level = ParseLevel(opts.Level)
	cfg.Output = out
	cfg.JSON = opts.JSON
	cfg.AddSource = opts.Source
	l := NewLogger(cfg)
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
	return l
}
