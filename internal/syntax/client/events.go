package client

import "github.com/mosaicterm/treelight/internal/syntax"

// HighlightEvent delivers per-line highlight data for a tracked buffer.
// Version echoes the version supplied with the triggering operation so
// consumers can discard stale deliveries.
type HighlightEvent struct {
	BufferID string
	Version  int
	Lines    map[uint][]syntax.LineSpan
	Dropped  map[uint][]syntax.LineSpan
}

// WarningEvent delivers an advisory condition, e.g. edits for a buffer the
// engine is not tracking.
type WarningEvent struct {
	BufferID string
	Message  string
}

// ErrorEvent delivers a failed operation. The session stays usable.
type ErrorEvent struct {
	BufferID string
	Message  string
	Stack    string
}

// LogEvent delivers a diagnostic line from the engine.
type LogEvent struct {
	Level   string
	Message string
}

// DisposedEvent confirms a buffer was released engine-side.
type DisposedEvent struct {
	BufferID string
}

// handlers holds the registered event callbacks. Nil callbacks drop their
// events.
type handlers struct {
	onHighlights func(HighlightEvent)
	onWarning    func(WarningEvent)
	onError      func(ErrorEvent)
	onLog        func(LogEvent)
	onDisposed   func(DisposedEvent)
}

// OnHighlights registers the highlight delivery callback.
func OnHighlights(fn func(HighlightEvent)) Option {
	return func(c *Client) { c.handlers.onHighlights = fn }
}

// OnWarning registers the warning callback.
func OnWarning(fn func(WarningEvent)) Option {
	return func(c *Client) { c.handlers.onWarning = fn }
}

// OnError registers the error callback.
func OnError(fn func(ErrorEvent)) Option {
	return func(c *Client) { c.handlers.onError = fn }
}

// OnLog registers the engine log callback.
func OnLog(fn func(LogEvent)) Option {
	return func(c *Client) { c.handlers.onLog = fn }
}

// OnDisposed registers the buffer disposal callback.
func OnDisposed(fn func(DisposedEvent)) Option {
	return func(c *Client) { c.handlers.onDisposed = fn }
}
