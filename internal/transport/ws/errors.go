package ws

import "errors"

var (
	// ErrHandshakeTimeout indicates the websocket handshake exceeded the configured timeout.
	ErrHandshakeTimeout = errors.New("websocket handshake timed out")
	// ErrSessionShutdown is emitted when the server requests a session shutdown.
	ErrSessionShutdown = errors.New("websocket session shutdown")
	// ErrUnauthorized rejects an upgrade whose bearer token was missing or failed verification.
	ErrUnauthorized = errors.New("websocket handshake unauthorized")
)
