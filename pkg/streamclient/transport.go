package streamclient

import "context"

// Handler receives transport callbacks. Both may be invoked from the
// transport's reader goroutine.
type Handler struct {
	// OnEvent delivers one envelope published on channel.
	OnEvent func(channel string, envelope []byte)
	// OnClose reports that the connection is gone.
	OnClose func(err error)
}

// Transport is a live channel connection. Subscribe and Unsubscribe return
// once the server has acknowledged the request.
type Transport interface {
	Connect(ctx context.Context, handler Handler) error
	Subscribe(ctx context.Context, channel string) error
	Unsubscribe(ctx context.Context, channel string) error
	Connected() bool
	Close() error
}

// EventSource drains queued envelopes for the poll fallback.
type EventSource interface {
	DrainEvents(ctx context.Context, conversationID string) ([][]byte, error)
}
