package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/compozy/statusstream/engine/auth"
	"github.com/compozy/statusstream/pkg/config"
	"github.com/spf13/cobra"
	str2duration "github.com/xhit/go-str2duration/v2"
)

// TokenCmd mints a session token for a user with the configured secret.
func TokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Mint a development session token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromContext(cmd.Context())
			ttl, err := parseTTL(cmd)
			if err != nil {
				return err
			}
			userID := strings.TrimSpace(args[0])
			if userID == "" {
				return fmt.Errorf("user id is required")
			}
			issuer, err := auth.NewTokenIssuer(cfg.Auth.Secret.Value(), cfg.Auth.Issuer, cfg.Auth.TokenTTL)
			if err != nil {
				return fmt.Errorf("set auth.secret or AUTH_SECRET to mint tokens: %w", err)
			}
			token, err := issuer.Issue(userID, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().String("ttl", "", "Token lifetime such as 90m or 7d (defaults to auth.token_ttl)")
	return cmd
}

// parseTTL accepts Go durations plus day and week units.
func parseTTL(cmd *cobra.Command) (time.Duration, error) {
	raw, err := cmd.Flags().GetString("ttl")
	if err != nil {
		return 0, fmt.Errorf("failed to get ttl flag: %w", err)
	}
	if strings.TrimSpace(raw) == "" {
		return 0, nil
	}
	ttl, err := str2duration.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid ttl %q: %w", raw, err)
	}
	if ttl < 0 {
		return 0, fmt.Errorf("ttl must not be negative")
	}
	return ttl, nil
}
