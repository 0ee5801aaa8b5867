package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/compozy/statusstream/pkg/config"
	"github.com/spf13/cobra"
)

// extractCLIFlags copies the bound flags the user set explicitly into
// flags, keyed by flag name.
func extractCLIFlags(cmd *cobra.Command, flags map[string]any) {
	for _, name := range config.CLIFlags() {
		f := cmd.Flags().Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		switch f.Value.Type() {
		case "int":
			if v, err := cmd.Flags().GetInt(name); err == nil {
				flags[name] = v
			}
		case "bool":
			if v, err := cmd.Flags().GetBool(name); err == nil {
				flags[name] = v
			}
		default:
			flags[name] = f.Value.String()
		}
	}
}

// loadEnvFile loads the env file named by --env-file. Relative paths resolve
// against the working directory and may not escape it.
func loadEnvFile(cmd *cobra.Command) (string, error) {
	envFile, err := cmd.Flags().GetString("env-file")
	if err != nil {
		return "", fmt.Errorf("failed to get env-file flag: %w", err)
	}
	if envFile == "" {
		return "", nil
	}
	pwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current working directory: %w", err)
	}
	absPath := envFile
	if !filepath.IsAbs(absPath) {
		absPath = filepath.Join(pwd, absPath)
	}
	absPath = filepath.Clean(absPath)
	if !isPathWithinDirectory(absPath, pwd) {
		return "", fmt.Errorf("env file path '%s' is outside the working directory", envFile)
	}
	if err := config.LoadEnvFile(absPath); err != nil {
		return "", err
	}
	return absPath, nil
}

// isPathWithinDirectory checks if a given path is within the specified directory
func isPathWithinDirectory(path, dir string) bool {
	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return false
	}
	absDir, err := filepath.Abs(filepath.Clean(dir))
	if err != nil {
		return false
	}
	if !strings.HasSuffix(absDir, string(filepath.Separator)) {
		absDir += string(filepath.Separator)
	}
	return strings.HasPrefix(absPath, absDir) || absPath == strings.TrimSuffix(absDir, string(filepath.Separator))
}

// clientIdentity resolves the token and development user for client
// commands. Flags win over configuration.
func clientIdentity(cmd *cobra.Command, configToken string) (string, string) {
	token := configToken
	if v, err := cmd.Flags().GetString("token"); err == nil && v != "" {
		token = v
	}
	user, _ := cmd.Flags().GetString("user")
	return token, strings.TrimSpace(user)
}
