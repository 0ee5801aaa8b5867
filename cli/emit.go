package cli

import (
	"encoding/json"
	"fmt"

	"github.com/compozy/statusstream/engine/streaming"
	"github.com/spf13/cobra"
)

// EmitCmd publishes one event to a conversation through the HTTP API.
func EmitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "emit <conversation-id> <type>",
		Short: "Publish one progress event",
		Example: `  statusstream emit conv-1 step_added --payload '{"source":"search","message":"Searching"}'
  statusstream emit conv-1 research_complete --payload '{"answer":"42"}' --significant`,
		Args: cobra.ExactArgs(2),
		RunE: runEmit,
	}
	cmd.Flags().String("payload", "", "Event payload as a JSON object")
	cmd.Flags().Bool("significant", false, "Render the event as a milestone")
	return cmd
}

func runEmit(cmd *cobra.Command, args []string) error {
	settings, err := resolveClientSettings(cmd)
	if err != nil {
		return err
	}
	eventType := streaming.EventType(args[1])
	if !eventType.IsKnown() {
		return fmt.Errorf("unknown event type %q", args[1])
	}
	payload, err := parsePayload(cmd)
	if err != nil {
		return err
	}
	significant, _ := cmd.Flags().GetBool("significant")
	api, err := settings.api()
	if err != nil {
		return err
	}
	env, err := api.Emit(cmd.Context(), args[0], eventType, payload, significant)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(formatJSON(cmd.OutOrStdout(), env))
	return err
}

func parsePayload(cmd *cobra.Command) (json.RawMessage, error) {
	raw, err := cmd.Flags().GetString("payload")
	if err != nil {
		return nil, fmt.Errorf("failed to get payload flag: %w", err)
	}
	if raw == "" {
		return nil, nil
	}
	var object map[string]any
	if err := json.Unmarshal([]byte(raw), &object); err != nil {
		return nil, fmt.Errorf("payload must be a JSON object: %w", err)
	}
	if object == nil {
		return nil, fmt.Errorf("payload must be a JSON object")
	}
	return json.RawMessage(raw), nil
}
