package streaming

// SocketAction is a command sent by a websocket client to the channel hub.
type SocketAction string

const (
	SocketActionSubscribe   SocketAction = "subscribe"
	SocketActionUnsubscribe SocketAction = "unsubscribe"
	SocketActionPing        SocketAction = "ping"
)

// SocketFrameType tags frames written by the channel hub.
type SocketFrameType string

const (
	SocketFrameSession      SocketFrameType = "session"
	SocketFrameSubscribed   SocketFrameType = "subscribed"
	SocketFrameUnsubscribed SocketFrameType = "unsubscribed"
	SocketFrameEvent        SocketFrameType = "event"
	SocketFramePong         SocketFrameType = "pong"
	SocketFrameError        SocketFrameType = "error"
)

// SocketRequest is one client command. Ref is echoed back on the
// acknowledgement so callers can wait for it.
type SocketRequest struct {
	Action  SocketAction `json:"action"`
	Channel string       `json:"channel,omitempty"`
	Ref     string       `json:"ref,omitempty"`
}

// SocketFrame is one server message. Data is only set on event frames.
type SocketFrame struct {
	Type      SocketFrameType `json:"type"`
	Channel   string          `json:"channel,omitempty"`
	Event     string          `json:"event,omitempty"`
	Ref       string          `json:"ref,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	Error     string          `json:"error,omitempty"`
	Data      *Envelope       `json:"data,omitempty"`
}
