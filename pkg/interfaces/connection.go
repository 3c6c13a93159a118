package interfaces

import "chathub/pkg/types"

// Connection is one live client session as seen by the hub components.
type Connection interface {
	// ID returns the opaque, process-unique connection id.
	ID() string

	// UserID returns the handshake identity, or "" for an anonymous session.
	UserID() string

	// Send queues an event for the client without blocking. Implementations
	// return an error when the connection is closed or its buffer is full.
	Send(event *types.Outbound) error

	// Close terminates the session. Safe to call more than once.
	Close() error
}
