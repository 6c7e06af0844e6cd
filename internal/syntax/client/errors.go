package client

import "errors"

// Standard client errors.
var (
	// ErrDuplicateBuffer is returned when creating a buffer whose id is
	// already registered.
	ErrDuplicateBuffer = errors.New("client: buffer already exists")

	// ErrUnknownBuffer is returned for operations on an unregistered buffer.
	ErrUnknownBuffer = errors.New("client: unknown buffer")

	// ErrDestroyed is returned for operations on a destroyed client.
	ErrDestroyed = errors.New("client: destroyed")

	// ErrDestroyedDuringInit is returned when the client is destroyed while
	// initialization is still in flight. It is distinct from ErrInitTimeout
	// so callers can tell shutdown from a stuck engine.
	ErrDestroyedDuringInit = errors.New("client: destroyed during initialization")

	// ErrInitTimeout is returned when the engine does not acknowledge
	// initialization within the configured timeout.
	ErrInitTimeout = errors.New("client: initialization timed out")

	// ErrTransportClosed is returned when the engine connection is closed.
	ErrTransportClosed = errors.New("client: transport closed")

	// ErrNotInitialized is returned when an operation requires a completed
	// initialization.
	ErrNotInitialized = errors.New("client: not initialized")
)
