package cli

import (
	"fmt"

	"github.com/compozy/statusstream/pkg/config"
	"github.com/compozy/statusstream/pkg/streamclient"
	"github.com/spf13/cobra"
)

// clientSettings is what every client command needs to reach the server.
type clientSettings struct {
	cfg     *config.Config
	baseURL string
	token   string
	userID  string
}

func resolveClientSettings(cmd *cobra.Command) (*clientSettings, error) {
	cfg := config.FromContext(cmd.Context())
	if cfg == nil {
		return nil, fmt.Errorf("configuration missing from context")
	}
	token, user := clientIdentity(cmd, cfg.Client.Token.Value())
	if token == "" && user == "" {
		return nil, fmt.Errorf("either --token (or client.token) or --user is required")
	}
	return &clientSettings{cfg: cfg, baseURL: cfg.Client.BaseURL, token: token, userID: user}, nil
}

func (s *clientSettings) api() (*streamclient.APIClient, error) {
	return streamclient.NewAPIClient(streamclient.APIOptions{
		BaseURL: s.baseURL,
		Token:   s.token,
		UserID:  s.userID,
		Debug:   s.cfg.Runtime.LogLevel == "debug",
	})
}
