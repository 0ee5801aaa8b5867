package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/atotto/clipboard"
	"github.com/compozy/statusstream/pkg/logger"
	"github.com/compozy/statusstream/pkg/streamclient"
	"github.com/spf13/cobra"
)

// WatchCmd follows one conversation live in the terminal.
func WatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [conversation-id]",
		Short: "Follow a conversation's progress events",
		Long: `Subscribe to a conversation's channels and render progress as it happens.
The conversation id can be given directly or discovered from a page that embeds it
(<meta name="conversation-id"> or a data-conversation-id attribute).`,
		Args: cobra.MaximumNArgs(1),
		RunE: runWatch,
	}
	cmd.Flags().String("page", "", "Discover the conversation id from this page URL")
	cmd.Flags().Bool("copy", false, "Copy the final answer to the clipboard")
	cmd.Flags().Bool("thinking", false, "Show streamed reasoning")
	cmd.Flags().Bool("follow", false, "Keep watching after the conversation completes")
	cmd.Flags().Bool("plain", false, "Disable colors")
	return cmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	settings, err := resolveClientSettings(cmd)
	if err != nil {
		return err
	}
	api, err := settings.api()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	conversationID, err := watchTarget(ctx, cmd, api, args)
	if err != nil {
		return err
	}
	log := logger.FromContext(ctx)
	transport, err := streamclient.NewWSTransport(streamclient.WSOptions{
		BaseURL: settings.baseURL,
		Token:   settings.token,
		UserID:  settings.userID,
		Logger:  log,
	})
	if err != nil {
		return err
	}
	plain, _ := cmd.Flags().GetBool("plain")
	thinking, _ := cmd.Flags().GetBool("thinking")
	copyAnswer, _ := cmd.Flags().GetBool("copy")
	follow, _ := cmd.Flags().GetBool("follow")
	out := cmd.OutOrStdout()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	renderer := &watchRenderer{
		Renderer: streamclient.NewTerminalRenderer(out, plain || !isInteractive(out), thinking),
		copy:     copyAnswer,
		follow:   follow,
		stop:     cancel,
		log:      log,
	}
	client, err := streamclient.New(transport, api, renderer,
		streamclient.WithLoader(api),
		streamclient.WithLogger(log),
		streamclient.WithOptions(streamclient.OptionsFromConfig(&settings.cfg.Client)),
	)
	if err != nil {
		return err
	}
	log.Info("Watching conversation", "conversation_id", conversationID, "base_url", settings.baseURL)
	if err := client.Run(runCtx, conversationID); err != nil {
		return err
	}
	return renderer.err
}

func watchTarget(ctx context.Context, cmd *cobra.Command, api *streamclient.APIClient, args []string) (string, error) {
	page, _ := cmd.Flags().GetString("page")
	switch {
	case len(args) == 1 && page != "":
		return "", fmt.Errorf("pass either a conversation id or --page, not both")
	case len(args) == 1:
		return args[0], nil
	case page != "":
		return api.DiscoverConversation(ctx, page)
	default:
		return "", fmt.Errorf("a conversation id or --page is required")
	}
}

// watchRenderer stops the watch on completion or terminal failure.
type watchRenderer struct {
	streamclient.Renderer
	copy   bool
	follow bool
	stop   context.CancelFunc
	log    logger.Logger
	err    error
}

func (r *watchRenderer) Completed(completion streamclient.Completion) {
	r.Renderer.Completed(completion)
	if r.copy && completion.Answer != "" {
		if err := clipboard.WriteAll(completion.Answer); err != nil {
			r.log.Warn("Failed to copy answer to clipboard", "error", err)
		}
	}
	if completion.Failed {
		r.err = fmt.Errorf("conversation failed: %s", completion.Error)
	}
	if !r.follow {
		r.stop()
	}
}

func (r *watchRenderer) Notify(notice streamclient.Notice) {
	r.Renderer.Notify(notice)
	if errors.Is(notice.Err, streamclient.ErrReconnectExhausted) {
		r.err = notice.Err
		r.stop()
	}
}
