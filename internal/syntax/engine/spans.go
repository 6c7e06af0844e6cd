package engine

import (
	"sort"

	"github.com/mosaicterm/treelight/internal/syntax"
)

// lineStore holds the stateful per-line span map for one tracked buffer.
// Spans are keyed by the capturing node's identity so an incremental pass
// that re-captures a node replaces its previous span; the replaced span is
// remembered per row so consumers can clear stale decorations.
type lineStore struct {
	lines   map[uint]map[uintptr]syntax.LineSpan
	dropped map[uint][]syntax.LineSpan
}

func newLineStore() *lineStore {
	return &lineStore{
		lines:   make(map[uint]map[uintptr]syntax.LineSpan),
		dropped: make(map[uint][]syntax.LineSpan),
	}
}

// reset discards all stored spans.
func (s *lineStore) reset() {
	s.lines = make(map[uint]map[uintptr]syntax.LineSpan)
	s.dropped = make(map[uint][]syntax.LineSpan)
}

// add splits a capture into one span per row it covers and records each.
// Continuation rows of a multi-row capture span from column zero; interior
// rows run to the row's full length.
func (s *lineStore) add(c capture, lineLens []uint) {
	for row := c.startPoint.Row; row <= c.endPoint.Row; row++ {
		span := syntax.LineSpan{Group: c.group}
		switch {
		case row == c.startPoint.Row && row == c.endPoint.Row:
			span.StartCol = c.startPoint.Column
			span.EndCol = c.endPoint.Column
		case row == c.startPoint.Row:
			span.StartCol = c.startPoint.Column
			span.EndCol = lineLen(lineLens, row)
		case row == c.endPoint.Row:
			span.EndCol = c.endPoint.Column
		default:
			span.EndCol = lineLen(lineLens, row)
		}
		if span.EndCol <= span.StartCol {
			continue
		}
		s.put(row, c.nodeID, span)
	}
}

// put stores a span for a node on a row, recording any span it displaces.
func (s *lineStore) put(row uint, nodeID uintptr, span syntax.LineSpan) {
	m := s.lines[row]
	if m == nil {
		m = make(map[uintptr]syntax.LineSpan)
		s.lines[row] = m
	}
	if prev, ok := m[nodeID]; ok && prev != span {
		s.dropped[row] = append(s.dropped[row], prev)
	}
	m[nodeID] = span
}

// clearRows removes all spans on the given rows. The removed spans are
// recorded as dropped so the next view tells consumers to repaint them.
func (s *lineStore) clearRows(rows map[uint]struct{}) {
	for row := range rows {
		m, ok := s.lines[row]
		if !ok {
			continue
		}
		for _, span := range m {
			s.dropped[row] = append(s.dropped[row], span)
		}
		delete(s.lines, row)
	}
}

// removeSpans deletes the given node-keyed spans from a row, recording each
// removed span as dropped.
func (s *lineStore) removeSpans(row uint, ids []uintptr) {
	m, ok := s.lines[row]
	if !ok {
		return
	}
	for _, id := range ids {
		if span, live := m[id]; live {
			s.dropped[row] = append(s.dropped[row], span)
			delete(m, id)
		}
	}
	if len(m) == 0 {
		delete(s.lines, row)
	}
}

// shiftRowsFrom moves every row at or after fromRow by delta rows. Rows
// shifted to a negative index are discarded.
func (s *lineStore) shiftRowsFrom(fromRow uint, delta int) {
	if delta == 0 {
		return
	}
	s.lines = shiftKeys(s.lines, fromRow, delta)
	s.dropped = shiftKeys(s.dropped, fromRow, delta)
}

func shiftKeys[V any](m map[uint]V, fromRow uint, delta int) map[uint]V {
	out := make(map[uint]V, len(m))
	for row, v := range m {
		if row < fromRow {
			out[row] = v
			continue
		}
		shifted := int(row) + delta
		if shifted < 0 {
			continue
		}
		out[uint(shifted)] = v
	}
	return out
}

// view returns the spans and dropped spans for the given rows, sorted by
// start column, and forgets the dropped spans it reports.
func (s *lineStore) view(rows map[uint]struct{}) (map[uint][]syntax.LineSpan, map[uint][]syntax.LineSpan) {
	lines := make(map[uint][]syntax.LineSpan, len(rows))
	dropped := make(map[uint][]syntax.LineSpan)
	for row := range rows {
		if spans := s.rowSpans(row); spans != nil {
			lines[row] = spans
		}
		if d, ok := s.dropped[row]; ok {
			dropped[row] = sortSpans(d)
			delete(s.dropped, row)
		}
	}
	return lines, dropped
}

// viewAll returns every stored row, sorted, and flushes all dropped spans.
func (s *lineStore) viewAll() (map[uint][]syntax.LineSpan, map[uint][]syntax.LineSpan) {
	lines := make(map[uint][]syntax.LineSpan, len(s.lines))
	for row := range s.lines {
		lines[row] = s.rowSpans(row)
	}
	dropped := make(map[uint][]syntax.LineSpan, len(s.dropped))
	for row, d := range s.dropped {
		dropped[row] = sortSpans(d)
	}
	s.dropped = make(map[uint][]syntax.LineSpan)
	return lines, dropped
}

func (s *lineStore) rowSpans(row uint) []syntax.LineSpan {
	m, ok := s.lines[row]
	if !ok || len(m) == 0 {
		return nil
	}
	spans := make([]syntax.LineSpan, 0, len(m))
	for _, span := range m {
		spans = append(spans, span)
	}
	return sortSpans(spans)
}

func sortSpans(spans []syntax.LineSpan) []syntax.LineSpan {
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].StartCol != spans[j].StartCol {
			return spans[i].StartCol < spans[j].StartCol
		}
		if spans[i].EndCol != spans[j].EndCol {
			return spans[i].EndCol < spans[j].EndCol
		}
		return spans[i].Group < spans[j].Group
	})
	return spans
}

// lineLengths returns the byte length of each line of source, excluding
// newlines.
func lineLengths(source []byte) []uint {
	var lens []uint
	start := 0
	for i, b := range source {
		if b == '\n' {
			lens = append(lens, uint(i-start))
			start = i + 1
		}
	}
	lens = append(lens, uint(len(source)-start))
	return lens
}

func lineLen(lens []uint, row uint) uint {
	if row < uint(len(lens)) {
		return lens[row]
	}
	return 0
}

// buildFlat converts materialized captures into the stateless flat shape:
// sorted tuples with conceal and injection metadata attached.
//
// injections maps a sub-language to the host byte ranges it was parsed in.
// A capture wholly inside exactly one such range is an injected capture; a
// capture that itself encloses a range contains an injection.
func buildFlat(captures []capture, injections map[string][]byteRange) []syntax.FlatCapture {
	out := make([]syntax.FlatCapture, 0, len(captures))
	for _, c := range captures {
		meta := syntax.CaptureMeta{}
		if c.source != nil {
			if pp, ok := c.source.props[c.pattern]; ok {
				meta.Conceal = pp.conceal
				meta.ConcealLines = pp.concealLines
			}
		}
		classifyInjection(&meta, c, injections)

		fc := syntax.FlatCapture{
			StartByte: c.startByte,
			EndByte:   c.endByte,
			Group:     c.group,
		}
		if !meta.Empty() {
			m := meta
			fc.Meta = &m
		}
		out = append(out, fc)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].StartByte != out[j].StartByte {
			return out[i].StartByte < out[j].StartByte
		}
		return out[i].EndByte < out[j].EndByte
	})
	return out
}

// classifyInjection marks meta when the capture sits inside exactly one
// recorded injection range, or when it encloses one.
func classifyInjection(meta *syntax.CaptureMeta, c capture, injections map[string][]byteRange) {
	cr := c.byteRange()
	insideCount := 0
	insideLang := ""
	contains := false
	for lang, ranges := range injections {
		for _, r := range ranges {
			if r.contains(cr) {
				insideCount++
				insideLang = lang
			} else if cr.contains(r) {
				contains = true
			}
		}
	}
	switch {
	case insideCount == 1:
		meta.IsInjection = true
		meta.InjectionLanguage = insideLang
	case contains:
		meta.ContainsInjection = true
	}
}
