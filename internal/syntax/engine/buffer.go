package engine

import (
	"context"
	"fmt"
	"time"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/mosaicterm/treelight/internal/syntax"
)

// Fallback window pads, in bytes. Changed ranges reported after a reparse
// are occasionally empty or clipped at edit boundaries; when ascending from
// a changed range reaches the tree root, the engine instead queries a
// bounded byte window around the range. The asymmetric pads favor the text
// after the edit, where typing invalidates the most structure. There is a
// pinned regression test covering constructs that straddle the window edge.
var (
	editWindowBackPad    uint = 256
	editWindowForwardPad uint = 1024
)

// bufferState tracks one live buffer: its parser, current tree, source, and
// the per-line span store built from past highlight passes.
type bufferState struct {
	id       string
	filetype string
	version  int

	parser *sitter.Parser
	tree   *sitter.Tree
	source []byte
	loaded *loadedParser

	store *lineStore

	// injectionSpans records, per row, the span keys written by injected
	// captures in the last pass. Injections are fully reprocessed on every
	// edit, so these spans must be removed before the new pass writes its
	// own; host spans on the same rows stay untouched.
	injectionSpans map[uint][]uintptr
}

func (b *bufferState) dispose() {
	if b.tree != nil {
		b.tree.Close()
		b.tree = nil
	}
	if b.parser != nil {
		b.parser.Close()
		b.parser = nil
	}
}

// createBuffer builds the tracked state for a new buffer and runs the first
// full highlight pass.
func (e *Engine) createBuffer(ctx context.Context, id, content, filetype string, version int) (*bufferState, error) {
	if _, exists := e.buffers[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateBuffer, id)
	}
	loaded, err := e.loader.Resolve(ctx, filetype)
	if err != nil {
		return nil, err
	}
	parser, err := newParserFor(loaded.language)
	if err != nil {
		return nil, err
	}

	buf := &bufferState{
		id:             id,
		filetype:       filetype,
		version:        version,
		parser:         parser,
		source:         []byte(content),
		loaded:         loaded,
		store:          newLineStore(),
		injectionSpans: make(map[uint][]uintptr),
	}
	if err := e.fullPass(ctx, buf); err != nil {
		buf.dispose()
		return nil, err
	}
	e.buffers[id] = buf
	return buf, nil
}

// fullPass reparses the whole buffer and rebuilds its span store from
// scratch: host captures plus fully reprocessed injections.
func (e *Engine) fullPass(ctx context.Context, buf *bufferState) error {
	start := time.Now()
	tree := buf.parser.Parse(buf.source, nil)
	e.perf.recordParse(time.Since(start))
	if tree == nil {
		return ErrParseFailed
	}
	if buf.tree != nil {
		buf.tree.Close()
	}
	buf.tree = tree

	caps := e.timedQuery(buf.loaded.highlights, tree.RootNode(), buf.source, nil)
	injCaps, _ := e.processInjections(ctx, buf.loaded, tree.RootNode(), buf.source)

	buf.store.reset()
	lens := lineLengths(buf.source)
	for _, c := range caps {
		buf.store.add(c, lens)
	}
	buf.injectionSpans = make(map[uint][]uintptr)
	for _, c := range injCaps {
		buf.store.add(c, lens)
		recordInjectionSpans(buf.injectionSpans, c)
	}
	return nil
}

// applyEdits runs the incremental pipeline: inform the old tree of the
// edits, reparse against it, and re-highlight only the regions the reparse
// reports as changed, plus every injection region. It returns the rows
// whose spans were recomputed.
func (e *Engine) applyEdits(ctx context.Context, buf *bufferState, content string, version int, edits []syntax.Edit) (map[uint]struct{}, error) {
	// Edits go into a clone of the current tree so a failed reparse leaves
	// the buffer exactly as it was.
	edited := buf.tree.Clone()
	for _, ed := range edits {
		edited.Edit(&sitter.InputEdit{
			StartByte:      ed.StartByte,
			OldEndByte:     ed.OldEndByte,
			NewEndByte:     ed.NewEndByte,
			StartPosition:  sitterPoint(ed.StartPosition),
			OldEndPosition: sitterPoint(ed.OldEndPosition),
			NewEndPosition: sitterPoint(ed.NewEndPosition),
		})
	}

	newSource := []byte(content)
	start := time.Now()
	newTree := buf.parser.Parse(newSource, edited)
	e.perf.recordParse(time.Since(start))
	if newTree == nil {
		edited.Close()
		return nil, ErrParseFailed
	}

	changed := edited.ChangedRanges(newTree)
	edited.Close()
	buf.tree.Close()
	buf.tree = newTree
	buf.source = newSource
	buf.version = version

	// Rows past an edit keep their spans but move with the text. A pure
	// insertion at the start of a line pushes the start row itself down.
	for _, ed := range edits {
		delta := int(ed.NewEndPosition.Row) - int(ed.OldEndPosition.Row)
		if delta == 0 {
			continue
		}
		fromRow := ed.StartPosition.Row + 1
		if ed.StartPosition.Column == 0 && ed.OldEndByte == ed.StartByte {
			fromRow = ed.StartPosition.Row
		}
		buf.store.shiftRowsFrom(fromRow, delta)
		buf.injectionSpans = shiftKeys(buf.injectionSpans, fromRow, delta)
	}

	regions := changedRegions(changed, edits, uint(len(newSource)))
	lens := lineLengths(newSource)
	root := newTree.RootNode()

	touched := make(map[uint]struct{})
	regionRows := make(map[uint]struct{})
	var fresh []capture
	for _, r := range regions {
		caps, rows := e.regionCaptures(buf, root, r, newSource)
		fresh = append(fresh, caps...)
		for row := range rows {
			regionRows[row] = struct{}{}
			touched[row] = struct{}{}
		}
	}

	injCaps, _ := e.processInjections(ctx, buf.loaded, root, newSource)

	// Injections are recomputed wholesale each edit. Previous injected
	// spans on rows the regions did not requery are removed one by one so
	// the host spans sharing those rows survive.
	for row, ids := range buf.injectionSpans {
		touched[row] = struct{}{}
		if _, requeried := regionRows[row]; !requeried {
			buf.store.removeSpans(row, ids)
		}
	}

	buf.store.clearRows(regionRows)
	for _, c := range fresh {
		buf.store.add(c, lens)
	}
	buf.injectionSpans = make(map[uint][]uintptr)
	for _, c := range injCaps {
		buf.store.add(c, lens)
		recordInjectionSpans(buf.injectionSpans, c)
		markRows(touched, c)
	}
	return touched, nil
}

// resetBuffer replaces the buffer's content outright and rebuilds all
// highlight state, discarding the old tree instead of editing it. A failed
// reparse restores the previous content and version.
func (e *Engine) resetBuffer(ctx context.Context, buf *bufferState, content string, version int) error {
	oldSource, oldVersion := buf.source, buf.version
	buf.source = []byte(content)
	buf.version = version
	if err := e.fullPass(ctx, buf); err != nil {
		buf.source = oldSource
		buf.version = oldVersion
		return err
	}
	return nil
}

// regionCaptures highlights one changed region. It ascends from the region
// to the smallest named node enclosing it and queries that subtree; if the
// ascent reaches the root, it falls back to a padded byte window so a small
// edit near the top of a large file does not trigger a whole-file query.
func (e *Engine) regionCaptures(buf *bufferState, root *sitter.Node, r byteRange, source []byte) ([]capture, map[uint]struct{}) {
	node := root.NamedDescendantForByteRange(r.start, r.start)
	for node != nil && !(uint(node.StartByte()) <= r.start && uint(node.EndByte()) >= r.end) {
		node = node.Parent()
	}

	if node != nil && node.Id() != root.Id() {
		caps := e.timedQuery(buf.loaded.highlights, node, source, nil)
		startRow := uint(node.StartPosition().Row)
		endRow := uint(node.EndPosition().Row)
		// A node ending at column zero owns nothing on its end row; claiming
		// that row would clear spans the query cannot restore.
		if endRow > startRow && node.EndPosition().Column == 0 {
			endRow--
		}
		return caps, rowRange(startRow, endRow)
	}

	window := byteRange{
		start: satSub(r.start, editWindowBackPad),
		end:   minUint(r.end+editWindowForwardPad, uint(len(source))),
	}
	caps := e.timedQuery(buf.loaded.highlights, root, source, &window)
	endByte := window.end
	if endByte > window.start {
		endByte--
	}
	rows := rowRange(rowOfByte(source, window.start), rowOfByte(source, endByte))
	return caps, rows
}

// parseTimed runs a parse and records its duration.
func parseTimed(perf *perfTracker, p *sitter.Parser, source []byte) *sitter.Tree {
	start := time.Now()
	tree := p.Parse(source, nil)
	perf.recordParse(time.Since(start))
	return tree
}

// timedQuery runs a highlight query and records its duration.
func (e *Engine) timedQuery(lq *loadedQuery, node *sitter.Node, source []byte, window *byteRange) []capture {
	start := time.Now()
	caps := runQuery(lq, node, source, window)
	e.perf.recordQuery(time.Since(start))
	return caps
}

// changedRegions converts the reparse's changed ranges into query regions,
// falling back to the raw edit ranges when the reparse reports nothing.
func changedRegions(changed []sitter.Range, edits []syntax.Edit, sourceLen uint) []byteRange {
	var regions []byteRange
	for _, cr := range changed {
		r := byteRange{start: uint(cr.StartByte), end: uint(cr.EndByte)}
		if r.end > sourceLen {
			r.end = sourceLen
		}
		if r.end > r.start {
			regions = append(regions, r)
		}
	}
	if len(regions) > 0 {
		return regions
	}
	for _, ed := range edits {
		r := byteRange{start: ed.StartByte, end: ed.NewEndByte}
		if r.end > sourceLen {
			r.end = sourceLen
		}
		if r.end >= r.start {
			if r.end == r.start {
				// Pure deletions still need their surroundings requeried.
				r.end = minUint(r.start+1, sourceLen)
			}
			regions = append(regions, r)
		}
	}
	return regions
}

func markRows(rows map[uint]struct{}, c capture) {
	for row := c.startPoint.Row; row <= c.endPoint.Row; row++ {
		rows[row] = struct{}{}
	}
}

// recordInjectionSpans notes the span key an injected capture wrote on each
// row it covers.
func recordInjectionSpans(spans map[uint][]uintptr, c capture) {
	for row := c.startPoint.Row; row <= c.endPoint.Row; row++ {
		spans[row] = append(spans[row], c.nodeID)
	}
}

func rowRange(start, end uint) map[uint]struct{} {
	rows := make(map[uint]struct{}, end-start+1)
	for row := start; row <= end; row++ {
		rows[row] = struct{}{}
	}
	return rows
}

// rowOfByte returns the row containing the given byte offset.
func rowOfByte(source []byte, offset uint) uint {
	if offset > uint(len(source)) {
		offset = uint(len(source))
	}
	var row uint
	for _, b := range source[:offset] {
		if b == '\n' {
			row++
		}
	}
	return row
}

func sitterPoint(p syntax.Point) sitter.Point {
	return sitter.Point{Row: uint(p.Row), Column: uint(p.Column)}
}

func satSub(a, b uint) uint {
	if a < b {
		return 0
	}
	return a - b
}

func minUint(a, b uint) uint {
	if a < b {
		return a
	}
	return b
}
