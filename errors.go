package relay

import "errors"

// Sentinel errors for common failure modes.
var (
	// ErrSourceClosed indicates an operation on a closed raw-event source.
	ErrSourceClosed = errors.New("source closed")

	// ErrInvalidRecord indicates a raw record that could not be decoded.
	ErrInvalidRecord = errors.New("invalid raw event record")
)
