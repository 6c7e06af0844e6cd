// Package engine implements the parser engine: the single actor that owns
// every compiled grammar, query, and live parse tree, reached only through
// the protocol channel.
//
// # Execution model
//
// Serve consumes one message at a time from the engine end of a
// protocol.Pipe. Because exactly one handler runs at a time and handlers are
// never reentered, all engine state (parser caches, buffer map, in-flight
// load bookkeeping) is mutated without locking; the single-consumer loop is
// the concurrency control. Handlers recover panics and convert them into
// per-request error responses, so a misbehaving grammar or query can fail an
// operation but never the actor.
//
// # Resource rules
//
// A loaded filetype parser is built at most once per filetype while live:
// concurrent demand during a load collapses onto one in-flight build, and
// only successful builds are cached so a later retry can succeed once the
// cause is fixed. Reusable injected parsers live for the engine's lifetime
// and are recreated only after an explicit cache clear. Buffer parse trees
// are owned exclusively by their buffer state and freed on dispose or engine
// shutdown; cache clears never touch them.
package engine
