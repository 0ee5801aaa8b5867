package streamclient

import "errors"

var (
	// ErrMalformedEvent marks an inbound event that could not be parsed or
	// processed. The event is discarded and processing continues.
	ErrMalformedEvent = errors.New("streamclient: malformed event")
	// ErrReconnectExhausted is surfaced once the reconnection budget is spent.
	ErrReconnectExhausted = errors.New("streamclient: reconnect attempts exhausted")
	// ErrTransportUnhealthy is reported when the health check finds the
	// transport disconnected while the client believed it was connected.
	ErrTransportUnhealthy = errors.New("streamclient: transport unhealthy")
	// ErrNotConnected is returned by transports used before Connect.
	ErrNotConnected = errors.New("streamclient: not connected")
	// ErrForbidden is returned by the HTTP API when the caller does not own
	// the conversation or it does not exist.
	ErrForbidden = errors.New("streamclient: access denied")
	// ErrClosed is returned once the client has been shut down.
	ErrClosed = errors.New("streamclient: client closed")
)
