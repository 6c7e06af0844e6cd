package syntax

import "fmt"

// Point is a zero-based row/column position. Column is a byte offset within
// the row.
type Point struct {
	Row    uint
	Column uint
}

// String returns a human-readable representation of the point.
func (p Point) String() string {
	return fmt.Sprintf("(%d,%d)", p.Row, p.Column)
}

// Edit describes a single text change in terms of the byte offsets and
// positions before and after the change. The caller computes these against
// its own copy of the text, mirroring how it would report the change to any
// incremental parser.
type Edit struct {
	StartByte  uint
	OldEndByte uint
	NewEndByte uint

	StartPosition  Point
	OldEndPosition Point
	NewEndPosition Point
}

// String returns a human-readable representation of the edit.
func (e Edit) String() string {
	return fmt.Sprintf("edit [%d..%d)->[%d..%d)", e.StartByte, e.OldEndByte, e.StartByte, e.NewEndByte)
}

// LineSpan is a single highlight span on one line of a tracked buffer.
type LineSpan struct {
	// StartCol is the starting byte column on the line.
	StartCol uint

	// EndCol is the ending byte column (exclusive).
	EndCol uint

	// Group is the highlight group name, e.g. "keyword" or "string".
	Group string
}

// LineHighlights is the per-line view of a buffer's highlights delivered with
// a highlight response. Lines holds the display spans for each touched line.
// Dropped holds spans that were superseded on the same line by a later
// capture on the same node; the last capture wins for display but the
// superseded data stays available to consumers that want it.
type LineHighlights struct {
	Lines   map[uint][]LineSpan
	Dropped map[uint][]LineSpan
}

// CaptureMeta carries optional metadata on a flat highlight tuple.
type CaptureMeta struct {
	// Conceal is replacement text from a "conceal" pattern property on the
	// capture's originating query, nil when the pattern sets none.
	Conceal *string

	// ConcealLines is the value of a "conceal_lines" pattern property.
	ConcealLines *string

	// IsInjection is true when the capture's range lies fully inside exactly
	// one injected-language region. InjectionLanguage names that language.
	IsInjection       bool
	InjectionLanguage string

	// ContainsInjection is true when the capture's range fully contains an
	// injected region without being contained by one, e.g. a fenced code
	// block node spanning an embedded language.
	ContainsInjection bool
}

// Empty reports whether the metadata carries no information; empty metadata
// is omitted from the flat tuple entirely.
func (m *CaptureMeta) Empty() bool {
	return m.Conceal == nil && m.ConcealLines == nil && !m.IsInjection && !m.ContainsInjection
}

// FlatCapture is one element of the flat, globally sorted highlight form
// returned by one-shot highlighting: a byte range, a group, and optional
// metadata.
type FlatCapture struct {
	StartByte uint
	EndByte   uint
	Group     string
	Meta      *CaptureMeta
}

// PerformanceStats reports rolling averages over the engine's most recent
// parse and query operations. The window size is engine-configured.
type PerformanceStats struct {
	// AvgParseNanos is the mean duration of the last parse operations.
	AvgParseNanos int64

	// AvgQueryNanos is the mean duration of the last query operations.
	AvgQueryNanos int64

	// ParseSamples and QuerySamples report how many samples each average
	// currently covers (at most the window size).
	ParseSamples int
	QuerySamples int
}
