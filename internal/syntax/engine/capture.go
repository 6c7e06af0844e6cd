package engine

import (
	sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/mosaicterm/treelight/internal/syntax"
)

// patternProps holds the property settings extracted from one query pattern.
// Only conceal directives are recognized; everything else is ignored.
type patternProps struct {
	conceal      *string
	concealLines *string
}

// loadedQuery pairs a compiled query with its capture names and per-pattern
// properties so captures can be classified without re-walking the query.
type loadedQuery struct {
	query *sitter.Query
	names []string
	props map[uint]patternProps
}

// close releases the compiled query.
func (q *loadedQuery) close() {
	if q != nil && q.query != nil {
		q.query.Close()
		q.query = nil
	}
}

// byteRange is a half-open [start, end) byte interval.
type byteRange struct {
	start uint
	end   uint
}

func (r byteRange) contains(other byteRange) bool {
	return r.start <= other.start && other.end <= r.end
}

// capture is a query capture materialized into plain values. Materializing
// matters for injections: captures from a sub-parse must outlive the
// sub-tree they came from, so no node handle is retained.
type capture struct {
	startByte  uint
	endByte    uint
	startPoint syntax.Point
	endPoint   syntax.Point

	// nodeID identifies the captured node within its tree. Spans keyed by
	// node identity let an incremental pass replace a node's previous span
	// in place.
	nodeID uintptr

	group   string
	pattern uint

	// source is the query that produced this capture. Conceal properties are
	// resolved against it, which keeps injected captures tied to the injected
	// language's own query rather than the host's.
	source *loadedQuery

	// injected marks captures produced by a sub-language parse; language
	// names the sub-language.
	injected bool
	language string
}

func (c capture) byteRange() byteRange {
	return byteRange{start: c.startByte, end: c.endByte}
}

// runQuery executes a compiled query against node and materializes every
// capture. A non-nil window restricts matching to a byte range.
func runQuery(lq *loadedQuery, node *sitter.Node, source []byte, window *byteRange) []capture {
	qc := sitter.NewQueryCursor()
	defer qc.Close()
	if window != nil {
		qc.SetByteRange(window.start, window.end)
	}

	var out []capture
	matches := qc.Matches(lq.query, node, source)
	for m := matches.Next(); m != nil; m = matches.Next() {
		for _, qcap := range m.Captures {
			n := qcap.Node
			out = append(out, capture{
				startByte:  uint(n.StartByte()),
				endByte:    uint(n.EndByte()),
				startPoint: pointOf(n.StartPosition()),
				endPoint:   pointOf(n.EndPosition()),
				nodeID:     n.Id(),
				group:      lq.names[qcap.Index],
				pattern:    uint(m.PatternIndex),
				source:     lq,
			})
		}
	}
	return out
}

func pointOf(p sitter.Point) syntax.Point {
	return syntax.Point{Row: uint(p.Row), Column: uint(p.Column)}
}
