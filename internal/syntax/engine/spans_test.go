package engine

import (
	"reflect"
	"testing"

	"github.com/mosaicterm/treelight/internal/syntax"
)

func TestLineLengths(t *testing.T) {
	tests := []struct {
		source string
		want   []uint
	}{
		{"", []uint{0}},
		{"abc", []uint{3}},
		{"abc\n", []uint{3, 0}},
		{"ab\ncdef\n\ng", []uint{2, 4, 0, 1}},
	}
	for _, tt := range tests {
		if got := lineLengths([]byte(tt.source)); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("lineLengths(%q) = %v, want %v", tt.source, got, tt.want)
		}
	}
}

func TestLineStoreSingleRowCapture(t *testing.T) {
	s := newLineStore()
	s.add(capture{
		startPoint: syntax.Point{Row: 2, Column: 4},
		endPoint:   syntax.Point{Row: 2, Column: 9},
		nodeID:     1,
		group:      "keyword",
	}, []uint{10, 10, 10})

	lines, dropped := s.viewAll()
	want := []syntax.LineSpan{{StartCol: 4, EndCol: 9, Group: "keyword"}}
	if !reflect.DeepEqual(lines[2], want) {
		t.Errorf("row 2 = %v, want %v", lines[2], want)
	}
	if len(dropped) != 0 {
		t.Errorf("dropped = %v, want empty", dropped)
	}
}

func TestLineStoreMultiRowCapture(t *testing.T) {
	// A capture spanning rows 0..2: first row runs from its column to the
	// line end, interior rows cover the whole line, the last row runs from
	// column zero to the end column.
	s := newLineStore()
	s.add(capture{
		startPoint: syntax.Point{Row: 0, Column: 3},
		endPoint:   syntax.Point{Row: 2, Column: 5},
		nodeID:     7,
		group:      "string",
	}, []uint{8, 6, 9})

	lines, _ := s.viewAll()
	checks := map[uint]syntax.LineSpan{
		0: {StartCol: 3, EndCol: 8, Group: "string"},
		1: {StartCol: 0, EndCol: 6, Group: "string"},
		2: {StartCol: 0, EndCol: 5, Group: "string"},
	}
	for row, want := range checks {
		got := lines[row]
		if len(got) != 1 || got[0] != want {
			t.Errorf("row %d = %v, want [%v]", row, got, want)
		}
	}
}

func TestLineStoreReplacementRecordsDropped(t *testing.T) {
	s := newLineStore()
	lens := []uint{20}

	s.add(capture{
		startPoint: syntax.Point{Row: 0, Column: 0},
		endPoint:   syntax.Point{Row: 0, Column: 5},
		nodeID:     1,
		group:      "variable",
	}, lens)
	s.add(capture{
		startPoint: syntax.Point{Row: 0, Column: 0},
		endPoint:   syntax.Point{Row: 0, Column: 7},
		nodeID:     1,
		group:      "function",
	}, lens)

	lines, dropped := s.viewAll()
	if want := (syntax.LineSpan{StartCol: 0, EndCol: 7, Group: "function"}); lines[0][0] != want {
		t.Errorf("live span = %v, want %v", lines[0][0], want)
	}
	if want := (syntax.LineSpan{StartCol: 0, EndCol: 5, Group: "variable"}); len(dropped[0]) != 1 || dropped[0][0] != want {
		t.Errorf("dropped = %v, want [%v]", dropped[0], want)
	}

	// Dropped spans are reported once.
	_, dropped = s.viewAll()
	if len(dropped) != 0 {
		t.Errorf("second view dropped = %v, want empty", dropped)
	}
}

func TestLineStoreSkipsEmptySpans(t *testing.T) {
	s := newLineStore()
	s.add(capture{
		startPoint: syntax.Point{Row: 0, Column: 5},
		endPoint:   syntax.Point{Row: 0, Column: 5},
		nodeID:     1,
		group:      "keyword",
	}, []uint{10})

	lines, _ := s.viewAll()
	if len(lines) != 0 {
		t.Errorf("lines = %v, want empty", lines)
	}
}

func TestLineStoreShiftRows(t *testing.T) {
	s := newLineStore()
	lens := []uint{10, 10, 10, 10, 10}
	for row := uint(0); row < 4; row++ {
		s.add(capture{
			startPoint: syntax.Point{Row: row, Column: 0},
			endPoint:   syntax.Point{Row: row, Column: 3},
			nodeID:     uintptr(row + 1),
			group:      "comment",
		}, lens)
	}

	// Insert two rows before row 2: rows 2 and 3 move to 4 and 5.
	s.shiftRowsFrom(2, 2)
	lines, _ := s.viewAll()
	for _, row := range []uint{0, 1, 4, 5} {
		if len(lines[row]) != 1 {
			t.Errorf("row %d missing after shift: %v", row, lines)
		}
	}
	for _, row := range []uint{2, 3} {
		if len(lines[row]) != 0 {
			t.Errorf("row %d should be empty after shift", row)
		}
	}
}

func TestLineStoreShiftRowsFromIncludesStartRow(t *testing.T) {
	// A line inserted at the very top of the buffer moves every row,
	// including row 0.
	s := newLineStore()
	lens := []uint{10, 10}
	s.add(capture{
		startPoint: syntax.Point{Row: 0, Column: 0},
		endPoint:   syntax.Point{Row: 0, Column: 3},
		nodeID:     1,
		group:      "markup.heading",
	}, lens)

	s.shiftRowsFrom(0, 1)
	lines, _ := s.viewAll()
	if len(lines[0]) != 0 {
		t.Errorf("row 0 = %v, want empty", lines[0])
	}
	want := []syntax.LineSpan{{StartCol: 0, EndCol: 3, Group: "markup.heading"}}
	if !reflect.DeepEqual(lines[1], want) {
		t.Errorf("row 1 = %v, want %v", lines[1], want)
	}
}

func TestLineStoreShiftRowsDiscardsNegative(t *testing.T) {
	s := newLineStore()
	lens := []uint{10, 10, 10}
	s.add(capture{
		startPoint: syntax.Point{Row: 2, Column: 0},
		endPoint:   syntax.Point{Row: 2, Column: 3},
		nodeID:     1,
		group:      "comment",
	}, lens)

	s.shiftRowsFrom(0, -5)
	lines, _ := s.viewAll()
	if len(lines) != 0 {
		t.Errorf("lines = %v, want empty", lines)
	}
}

func TestLineStoreRemoveSpans(t *testing.T) {
	s := newLineStore()
	lens := []uint{20}
	s.add(capture{
		startPoint: syntax.Point{Row: 0, Column: 0},
		endPoint:   syntax.Point{Row: 0, Column: 5},
		nodeID:     1,
		group:      "keyword",
	}, lens)
	s.add(capture{
		startPoint: syntax.Point{Row: 0, Column: 8},
		endPoint:   syntax.Point{Row: 0, Column: 12},
		nodeID:     2,
		group:      "number",
	}, lens)

	// Removing one key leaves the other span on the row and reports the
	// removed span as dropped.
	s.removeSpans(0, []uintptr{2})
	lines, dropped := s.viewAll()
	want := []syntax.LineSpan{{StartCol: 0, EndCol: 5, Group: "keyword"}}
	if !reflect.DeepEqual(lines[0], want) {
		t.Errorf("row 0 = %v, want %v", lines[0], want)
	}
	if wantDrop := (syntax.LineSpan{StartCol: 8, EndCol: 12, Group: "number"}); len(dropped[0]) != 1 || dropped[0][0] != wantDrop {
		t.Errorf("dropped = %v, want [%v]", dropped[0], wantDrop)
	}

	// Unknown rows and keys are no-ops.
	s.removeSpans(5, []uintptr{1})
	s.removeSpans(0, []uintptr{99})
	lines, _ = s.viewAll()
	if !reflect.DeepEqual(lines[0], want) {
		t.Errorf("row 0 after no-op removals = %v, want %v", lines[0], want)
	}
}

func TestLineStoreClearRows(t *testing.T) {
	s := newLineStore()
	lens := []uint{10, 10}
	s.add(capture{
		startPoint: syntax.Point{Row: 0, Column: 0},
		endPoint:   syntax.Point{Row: 0, Column: 4},
		nodeID:     1,
		group:      "keyword",
	}, lens)
	s.add(capture{
		startPoint: syntax.Point{Row: 1, Column: 0},
		endPoint:   syntax.Point{Row: 1, Column: 4},
		nodeID:     2,
		group:      "keyword",
	}, lens)

	s.clearRows(map[uint]struct{}{0: {}})
	lines, dropped := s.viewAll()
	if len(lines[0]) != 0 {
		t.Errorf("row 0 = %v, want empty", lines[0])
	}
	if len(lines[1]) != 1 {
		t.Errorf("row 1 = %v, want 1 span", lines[1])
	}
	if len(dropped[0]) != 1 {
		t.Errorf("dropped[0] = %v, want the cleared span", dropped[0])
	}
}

func TestViewSortsByStartCol(t *testing.T) {
	s := newLineStore()
	lens := []uint{30}
	cols := []uint{20, 5, 12}
	for i, col := range cols {
		s.add(capture{
			startPoint: syntax.Point{Row: 0, Column: col},
			endPoint:   syntax.Point{Row: 0, Column: col + 2},
			nodeID:     uintptr(i + 1),
			group:      "number",
		}, lens)
	}

	lines, _ := s.view(map[uint]struct{}{0: {}})
	spans := lines[0]
	for i := 1; i < len(spans); i++ {
		if spans[i-1].StartCol > spans[i].StartCol {
			t.Fatalf("spans not sorted: %v", spans)
		}
	}
}

func TestBuildFlatSortsAndClassifies(t *testing.T) {
	conceal := ""
	host := &loadedQuery{props: map[uint]patternProps{3: {conceal: &conceal}}}

	caps := []capture{
		{startByte: 40, endByte: 43, group: "punctuation", source: host, pattern: 3},
		{startByte: 0, endByte: 43, group: "markup", source: host},
		{startByte: 23, endByte: 28, group: "keyword", injected: true, language: "typescript"},
		{startByte: 33, endByte: 35, group: "number", injected: true, language: "typescript"},
	}
	injections := map[string][]byteRange{
		"typescript": {{start: 23, end: 40}},
	}

	flat := buildFlat(caps, injections)
	if len(flat) != 4 {
		t.Fatalf("got %d tuples", len(flat))
	}
	for i := 1; i < len(flat); i++ {
		if flat[i-1].StartByte > flat[i].StartByte {
			t.Fatalf("flat output not sorted: %+v", flat)
		}
	}

	// The enclosing markup capture contains the injection.
	if flat[0].Group != "markup" || flat[0].Meta == nil || !flat[0].Meta.ContainsInjection {
		t.Errorf("enclosing tuple = %+v", flat[0])
	}
	// The injected keyword is inside exactly one injection range.
	kw := flat[1]
	if kw.Group != "keyword" || kw.Meta == nil || !kw.Meta.IsInjection || kw.Meta.InjectionLanguage != "typescript" {
		t.Errorf("injected tuple = %+v", kw)
	}
	// The conceal pattern property rides along, even when empty.
	pc := flat[3]
	if pc.Group != "punctuation" || pc.Meta == nil || pc.Meta.Conceal == nil || *pc.Meta.Conceal != "" {
		t.Errorf("conceal tuple = %+v", pc)
	}
}

func TestBuildFlatOmitsEmptyMeta(t *testing.T) {
	flat := buildFlat([]capture{{startByte: 0, endByte: 5, group: "keyword"}}, nil)
	if len(flat) != 1 {
		t.Fatalf("got %d tuples", len(flat))
	}
	if flat[0].Meta != nil {
		t.Errorf("meta = %+v, want nil", flat[0].Meta)
	}
}
