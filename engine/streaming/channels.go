package streaming

import (
	"fmt"
	"strings"
)

// Purpose names the logical stream a channel carries for one conversation.
type Purpose string

const (
	PurposeStatus      Purpose = "status"
	PurposeInteraction Purpose = "interaction"
	PurposeSources     Purpose = "sources"
	PurposeArtifacts   Purpose = "artifacts"
)

const channelRoot = "conversation."

// Purposes lists every channel purpose in subscription order.
var Purposes = []Purpose{PurposeStatus, PurposeInteraction, PurposeSources, PurposeArtifacts}

func (p Purpose) valid() bool {
	switch p {
	case PurposeStatus, PurposeInteraction, PurposeSources, PurposeArtifacts:
		return true
	default:
		return false
	}
}

// ValidateConversationID rejects ids that cannot be embedded in a channel name.
func ValidateConversationID(conversationID string) error {
	if conversationID == "" {
		return fmt.Errorf("%w: conversation id is required", ErrInvalidEvent)
	}
	if strings.ContainsAny(conversationID, ".: \t\r\n*?[]") {
		return fmt.Errorf("%w: conversation id %q contains reserved characters", ErrInvalidEvent, conversationID)
	}
	return nil
}

// ChannelName returns the channel for a conversation and purpose.
func ChannelName(conversationID string, purpose Purpose) string {
	return channelRoot + conversationID + "." + string(purpose)
}

// ChannelsFor returns the four channels a viewer of conversationID subscribes to.
func ChannelsFor(conversationID string) []string {
	out := make([]string, 0, len(Purposes))
	for _, p := range Purposes {
		out = append(out, ChannelName(conversationID, p))
	}
	return out
}

// ParseChannel splits a channel name into its conversation id and purpose.
func ParseChannel(name string) (string, Purpose, bool) {
	rest, ok := strings.CutPrefix(name, channelRoot)
	if !ok {
		return "", "", false
	}
	idx := strings.LastIndexByte(rest, '.')
	if idx <= 0 {
		return "", "", false
	}
	conversationID, purpose := rest[:idx], Purpose(rest[idx+1:])
	if !purpose.valid() || ValidateConversationID(conversationID) != nil {
		return "", "", false
	}
	return conversationID, purpose, true
}

// PurposeFor maps an event type onto the channel that carries it.
func PurposeFor(eventType EventType) Purpose {
	switch eventType {
	case EventTypeSourceAdded, EventTypeKnowledgeSourceAdded:
		return PurposeSources
	case EventTypeArtifactAdded:
		return PurposeArtifacts
	case EventTypeInteractionUpdated,
		EventTypeResearchComplete,
		EventTypeWorkflowCompleted,
		EventTypeWorkflowFailed,
		EventTypeAnswerStream:
		return PurposeInteraction
	default:
		return PurposeStatus
	}
}
