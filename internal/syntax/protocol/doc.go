// Package protocol defines the typed message envelopes exchanged between the
// client facade and the parser engine, and the in-process transport that
// carries them.
//
// The engine is a single logical actor: it consumes one message at a time
// from its end of a Pipe and replies on the same pipe. Requests that expect a
// response carry a caller-generated correlation ID which the engine echoes
// back; unsolicited messages (highlight pushes after a buffer parse, worker
// log lines) carry no ID and are routed by kind on the client side.
//
// The transport delivers messages in order per direction and does not drop
// them; closing either end releases both sides.
package protocol
