package streaming

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/compozy/statusstream/engine/infra/pubsub"
)

// ChannelMessage is the payload fanned out on a conversation channel.
type ChannelMessage struct {
	Event   string   `json:"event"`
	Channel string   `json:"channel"`
	Data    Envelope `json:"data"`
}

// Publisher broadcasts envelopes to live subscribers of a logical channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, eventName string, env Envelope) error
}

// ChannelRouter maps logical conversation channels onto pub/sub topics.
// Delivery is best effort: subscribers that are not attached miss the message.
type ChannelRouter struct {
	provider pubsub.Provider
	prefix   string
}

const defaultChannelPrefix = "statusstream:"

// NewChannelRouter constructs a router over provider. Every logical channel is
// namespaced with prefix on the wire.
func NewChannelRouter(provider pubsub.Provider, prefix string) (*ChannelRouter, error) {
	if provider == nil {
		return nil, errors.New("streaming: pubsub provider is required")
	}
	return &ChannelRouter{provider: provider, prefix: chooseOrDefault(prefix, defaultChannelPrefix)}, nil
}

// Topic returns the transport topic for a logical channel.
func (r *ChannelRouter) Topic(channel string) string {
	return r.prefix + channel
}

// Publish delivers env to every subscriber of channel under eventName.
func (r *ChannelRouter) Publish(ctx context.Context, channel string, eventName string, env Envelope) error {
	if channel == "" {
		return fmt.Errorf("%w: channel is required", ErrInvalidEvent)
	}
	payload, err := json.Marshal(ChannelMessage{Event: eventName, Channel: channel, Data: env})
	if err != nil {
		return fmt.Errorf("streaming: marshal channel message: %w", err)
	}
	if err := r.provider.Publish(ctx, r.Topic(channel), payload); err != nil {
		return fmt.Errorf("%w: %w", ErrTransportUnavailable, err)
	}
	return nil
}

// Subscribe attaches to a logical channel. Callers own the subscription and
// must close it.
func (r *ChannelRouter) Subscribe(ctx context.Context, channel string) (pubsub.Subscription, error) {
	sub, err := r.provider.Subscribe(ctx, r.Topic(channel))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransportUnavailable, err)
	}
	return sub, nil
}

// DecodeChannelMessage parses a payload received from a subscription.
func DecodeChannelMessage(payload []byte) (ChannelMessage, error) {
	var msg ChannelMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return ChannelMessage{}, fmt.Errorf("streaming: decode channel message: %w", err)
	}
	return msg, nil
}
