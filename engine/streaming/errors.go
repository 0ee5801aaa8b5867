package streaming

import "errors"

var (
	// ErrTransportUnavailable wraps every failure talking to the backing store.
	ErrTransportUnavailable = errors.New("streaming: transport unavailable")
	// ErrInvalidEvent is returned for malformed conversation ids, types or payloads.
	ErrInvalidEvent = errors.New("streaming: invalid event")
)
