package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/compozy/statusstream/engine/core"
	"github.com/compozy/statusstream/engine/streaming"
	"github.com/compozy/statusstream/pkg/logger"
	"github.com/compozy/statusstream/pkg/streamclient"
	"github.com/spf13/cobra"
)

const defaultSimulatedAnswer = "Redis lists give each conversation an ordered queue that expires on its own, " +
	"while pub/sub channels push the same events to live viewers. Together they cover " +
	"both latency and delivery across disconnects."

// simulatedEvent is one scripted step of a fake agent run.
type simulatedEvent struct {
	Type        streaming.EventType
	Payload     any
	Significant bool
}

// SimulateCmd plays a synthetic agent run against a conversation.
func SimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate [conversation-id]",
		Short: "Play a synthetic agent run for testing viewers",
		Long: `Create a conversation (when missing) and emit a scripted run: steps, sources,
an artifact, streamed reasoning and answer chunks. The full answer is saved before
research_complete is emitted; a completion payload above --max-answer is truncated
so viewers reload the persisted answer.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runSimulate,
	}
	cmd.Flags().Duration("delay", 300*time.Millisecond, "Pause between events")
	cmd.Flags().String("answer", defaultSimulatedAnswer, "Final answer to stream")
	cmd.Flags().Int("max-answer", 64, "Bytes of the answer carried by the completion event (0 keeps it whole)")
	return cmd
}

func runSimulate(cmd *cobra.Command, args []string) error {
	settings, err := resolveClientSettings(cmd)
	if err != nil {
		return err
	}
	api, err := settings.api()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	log := logger.FromContext(ctx)
	conversationID, err := ensureConversation(ctx, api, args)
	if err != nil {
		return err
	}
	delay, _ := cmd.Flags().GetDuration("delay")
	answer, _ := cmd.Flags().GetString("answer")
	maxAnswer, _ := cmd.Flags().GetInt("max-answer")
	fmt.Fprintf(cmd.OutOrStdout(), "simulating conversation %s\n", conversationID)

	for _, ev := range simulationPlan(answer, maxAnswer) {
		if ev.Type == streaming.EventTypeResearchComplete {
			if err := api.SaveAnswer(ctx, conversationID, answer); err != nil {
				return fmt.Errorf("save answer: %w", err)
			}
		}
		payload, err := json.Marshal(ev.Payload)
		if err != nil {
			return err
		}
		_, err = api.Emit(ctx, conversationID, ev.Type, payload, ev.Significant)
		switch {
		case errors.Is(err, streamclient.ErrRateLimited):
			log.Warn("Event dropped by rate limit", "type", ev.Type)
		case err != nil:
			return err
		default:
			fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", ev.Type)
		}
		if err := sleepCtx(ctx, delay); err != nil {
			return err
		}
	}
	return nil
}

func ensureConversation(ctx context.Context, api *streamclient.APIClient, args []string) (string, error) {
	id := ""
	if len(args) == 1 {
		id = args[0]
	} else {
		generated, err := core.NewID()
		if err != nil {
			return "", err
		}
		id = generated.String()
	}
	_, err := api.CreateConversation(ctx, id, "Simulated run")
	if err != nil && !errors.Is(err, streamclient.ErrConflict) {
		return "", fmt.Errorf("create conversation: %w", err)
	}
	return id, nil
}

// simulationPlan scripts a run. Chunks split the answer on word
// boundaries; the completion payload is cut at maxAnswer bytes.
func simulationPlan(answer string, maxAnswer int) []simulatedEvent {
	plan := []simulatedEvent{
		{streaming.EventTypeStepAdded, streaming.StepPayload{Source: "planner", Message: "Planning research"}, true},
		{streaming.EventTypeThinkingStream, streaming.ChunkPayload{Text: "Which sources cover queue expiry? "}, false},
		{streaming.EventTypeStepAdded, streaming.StepPayload{Source: "search", Message: "Searching the web"}, false},
		{streaming.EventTypeSourceAdded, streaming.SourcePayload{Title: "Redis lists", URL: "https://redis.io/docs/latest/develop/data-types/lists/"}, false},
		{streaming.EventTypeSourceAdded, streaming.SourcePayload{Title: "Redis pub/sub", URL: "https://redis.io/docs/latest/develop/interact/pubsub/"}, false},
		{streaming.EventTypeStepAdded, streaming.StepPayload{Source: "reader", Message: "Reading sources"}, false},
		{streaming.EventTypeArtifactAdded, streaming.ArtifactPayload{ID: "notes-1", Kind: "notes", Title: "Research notes"}, false},
		{streaming.EventTypeStepAdded, streaming.StepPayload{Source: "writer", Message: "Writing the answer"}, true},
	}
	for _, chunk := range chunkWords(answer, 4) {
		plan = append(plan, simulatedEvent{streaming.EventTypeAnswerStream, streaming.ChunkPayload{Text: chunk}, false})
	}
	done := streaming.CompletionPayload{Answer: answer, Length: len(answer)}
	if maxAnswer > 0 && len(answer) > maxAnswer {
		done.Answer = strings.ToValidUTF8(answer[:maxAnswer], "")
		done.Truncated = true
	}
	return append(plan, simulatedEvent{streaming.EventTypeResearchComplete, done, true})
}

// chunkWords groups words n at a time, keeping the separating spaces.
func chunkWords(text string, n int) []string {
	words := strings.SplitAfter(text, " ")
	var out []string
	for i := 0; i < len(words); i += n {
		end := min(i+n, len(words))
		if chunk := strings.Join(words[i:end], ""); chunk != "" {
			out = append(out, chunk)
		}
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
