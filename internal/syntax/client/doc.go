// Package client is the synchronous-feeling facade over the parser engine.
//
// A Client owns one end of the protocol pipe and a background read loop.
// Request/response calls register a correlation id before sending and block
// on the matching response; everything else coming off the pipe — highlight
// payloads, warnings, errors, engine log lines, disposal confirmations — is
// routed to the registered event callbacks.
//
// The client also keeps the externally visible buffer registry. Duplicate
// buffer creation is rejected here, synchronously, before anything reaches
// the engine, and initialization is collapsed so concurrent callers share
// one round trip.
package client
