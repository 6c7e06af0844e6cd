// Package syntax defines the shared data model for the highlighting engine:
// edits, highlight spans in both their per-line and flat forms, filetype
// parser configuration, and performance statistics.
//
// The types in this package cross the message boundary between the client
// facade (internal/syntax/client) and the parser engine
// (internal/syntax/engine). They are plain data with no tree-sitter
// dependencies so that protocol and client code stays free of cgo.
//
// Positions follow tree-sitter conventions: rows and columns are zero-based,
// columns and offsets are measured in bytes.
package syntax
