package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/mosaicterm/treelight/internal/syntax"
	"github.com/mosaicterm/treelight/internal/syntax/assets"
	"github.com/mosaicterm/treelight/internal/syntax/protocol"
)

// Engine is the parser engine actor. All fields are owned by the Serve
// goroutine; the only way in is the protocol connection.
type Engine struct {
	conn   *protocol.Conn
	assets assets.Provider
	loader *loader
	perf   *perfTracker
	log    *log.Logger

	buffers map[string]*bufferState

	statsWindow int
	initialized bool
	initErr     error
}

// Option configures an Engine.
type Option func(*Engine)

// WithAssetProvider replaces the default disk-backed asset provider.
func WithAssetProvider(p assets.Provider) Option {
	return func(e *Engine) { e.assets = p }
}

// WithLogger sets the engine's logger. The default logger forwards records
// over the protocol connection as WorkerLog messages.
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) { e.log = logger }
}

// WithStatsWindow sets the sample window for the rolling performance
// averages.
func WithStatsWindow(n int) Option {
	return func(e *Engine) { e.statsWindow = n }
}

// New creates an engine bound to the engine side of a protocol pipe. Call
// Serve to start it.
func New(conn *protocol.Conn, opts ...Option) *Engine {
	e := &Engine{
		conn:        conn,
		buffers:     make(map[string]*bufferState),
		statsWindow: defaultStatsWindow,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = log.New(&workerLogWriter{conn: conn})
		e.log.SetLevel(log.DebugLevel)
	}
	if e.assets == nil {
		e.assets = assets.NewDiskProvider("")
	}
	e.perf = newPerfTracker(e.statsWindow)
	e.loader = newLoader(e.assets, e.log)
	return e
}

// Serve consumes messages until the connection closes, then releases every
// parser, tree, and query the engine owns.
func (e *Engine) Serve() {
	defer e.shutdown()
	for {
		msg, ok := e.conn.Recv()
		if !ok {
			return
		}
		e.handle(msg)
	}
}

func (e *Engine) shutdown() {
	for _, buf := range e.buffers {
		buf.dispose()
	}
	e.buffers = make(map[string]*bufferState)
	e.loader.Close()
}

// handle dispatches one message. Panics become per-request Error messages
// so a bad grammar or query fails the operation, not the actor.
func (e *Engine) handle(msg protocol.Message) {
	defer func() {
		if r := recover(); r != nil {
			e.reply(msg.ID, protocol.KindError, protocol.Error{
				Message: fmt.Sprintf("%s: %v", msg.Kind, r),
				Stack:   string(debug.Stack()),
			})
		}
	}()

	ctx := context.Background()
	switch msg.Kind {
	case protocol.KindInit:
		e.handleInit(msg)
	case protocol.KindAddFiletypeParser:
		if body, ok := msg.Body.(protocol.AddFiletypeParser); ok {
			e.loader.Register(body.Config)
		}
	case protocol.KindPreloadParser:
		e.handlePreload(ctx, msg)
	case protocol.KindInitializeParser:
		e.handleInitializeParser(ctx, msg)
	case protocol.KindHandleEdits:
		e.handleEdits(ctx, msg)
	case protocol.KindResetBuffer:
		e.handleReset(ctx, msg)
	case protocol.KindDisposeBuffer:
		e.handleDispose(msg)
	case protocol.KindOneshotHighlight:
		e.handleOneshot(ctx, msg)
	case protocol.KindGetPerformance:
		e.reply(msg.ID, protocol.KindPerformanceResponse, protocol.PerformanceResult{Stats: e.perf.snapshot()})
	case protocol.KindUpdateDataPath:
		e.handleUpdateDataPath(msg)
	case protocol.KindClearCache:
		e.handleClearCache(msg)
	default:
		e.log.Warn("unhandled message kind", "kind", msg.Kind)
	}
}

// handleInit prepares the asset provider. Repeat inits are idempotent: the
// first outcome is cached and replayed.
func (e *Engine) handleInit(msg protocol.Message) {
	if !e.initialized {
		e.initialized = true
		if body, ok := msg.Body.(protocol.Init); ok && body.DataRoot != "" {
			e.initErr = e.assets.SetRoot(body.DataRoot)
		} else {
			e.initErr = e.assets.Prepare()
		}
	}
	e.reply(msg.ID, protocol.KindInitResponse, protocol.InitResult{Err: errString(e.initErr)})
}

func (e *Engine) handlePreload(ctx context.Context, msg protocol.Message) {
	body, ok := msg.Body.(protocol.PreloadParser)
	if !ok {
		e.reply(msg.ID, protocol.KindPreloadParserResponse, protocol.PreloadParserResult{})
		return
	}
	p, err := e.loader.Resolve(ctx, body.Filetype)
	e.reply(msg.ID, protocol.KindPreloadParserResponse, protocol.PreloadParserResult{
		HasParser: err == nil && p != nil,
	})
}

// handleInitializeParser creates a tracked buffer, replies with the parser
// outcome, then sends the first full highlight pass as an unsolicited
// highlight response.
func (e *Engine) handleInitializeParser(ctx context.Context, msg protocol.Message) {
	body, ok := msg.Body.(protocol.InitializeParser)
	if !ok {
		e.reply(msg.ID, protocol.KindParserInitResponse, protocol.ParserInitResult{Err: "malformed initialize-parser body"})
		return
	}

	buf, err := e.createBuffer(ctx, body.BufferID, body.Content, body.Filetype, body.Version)
	if err != nil {
		res := protocol.ParserInitResult{BufferID: body.BufferID}
		// A missing or unloadable config is an expected outcome, reported as
		// hasParser=false; anything else failed an operation that should
		// have worked.
		if isLoadFailure(err) {
			res.Warning = err.Error()
		} else {
			res.Err = err.Error()
		}
		e.reply(msg.ID, protocol.KindParserInitResponse, res)
		return
	}

	e.reply(msg.ID, protocol.KindParserInitResponse, protocol.ParserInitResult{
		BufferID:  body.BufferID,
		HasParser: true,
	})
	e.sendHighlights(buf, nil)
}

func (e *Engine) handleEdits(ctx context.Context, msg protocol.Message) {
	body, ok := msg.Body.(protocol.HandleEdits)
	if !ok {
		return
	}
	buf, exists := e.buffers[body.BufferID]
	if !exists {
		e.reply(msg.ID, protocol.KindWarning, protocol.Warning{
			BufferID: body.BufferID,
			Message:  "edits for unknown buffer",
		})
		return
	}
	touched, err := e.applyEdits(ctx, buf, body.Content, body.Version, body.Edits)
	if err != nil {
		e.reply(msg.ID, protocol.KindError, protocol.Error{
			BufferID: body.BufferID,
			Message:  fmt.Sprintf("apply edits: %v", err),
		})
		return
	}
	e.sendHighlights(buf, touched)
}

func (e *Engine) handleReset(ctx context.Context, msg protocol.Message) {
	body, ok := msg.Body.(protocol.ResetBuffer)
	if !ok {
		return
	}
	buf, exists := e.buffers[body.BufferID]
	if !exists {
		e.reply(msg.ID, protocol.KindWarning, protocol.Warning{
			BufferID: body.BufferID,
			Message:  "reset for unknown buffer",
		})
		return
	}
	if err := e.resetBuffer(ctx, buf, body.Content, body.Version); err != nil {
		e.reply(msg.ID, protocol.KindError, protocol.Error{
			BufferID: body.BufferID,
			Message:  fmt.Sprintf("reset buffer: %v", err),
		})
		return
	}
	e.sendHighlights(buf, nil)
}

func (e *Engine) handleDispose(msg protocol.Message) {
	body, ok := msg.Body.(protocol.DisposeBuffer)
	if !ok {
		return
	}
	if buf, exists := e.buffers[body.BufferID]; exists {
		buf.dispose()
		delete(e.buffers, body.BufferID)
	}
	// Disposal of an unknown buffer still gets confirmed; dispose is
	// idempotent from the facade's point of view.
	e.reply(msg.ID, protocol.KindBufferDisposed, protocol.BufferDisposed{BufferID: body.BufferID})
}

// handleOneshot highlights a standalone blob with the filetype's shared
// parser and returns the flat sorted form.
func (e *Engine) handleOneshot(ctx context.Context, msg protocol.Message) {
	body, ok := msg.Body.(protocol.OneshotHighlight)
	if !ok {
		e.reply(msg.ID, protocol.KindOneshotHighlightResponse, protocol.OneshotHighlightResult{Err: "malformed oneshot-highlight body"})
		return
	}

	rp, err := e.loader.ResolveReusable(ctx, body.Filetype)
	if err != nil {
		res := protocol.OneshotHighlightResult{}
		if isLoadFailure(err) {
			res.Warning = err.Error()
		} else {
			res.Err = err.Error()
		}
		e.reply(msg.ID, protocol.KindOneshotHighlightResponse, res)
		return
	}

	flat, err := e.oneshot(ctx, rp, []byte(body.Content))
	if err != nil {
		e.reply(msg.ID, protocol.KindOneshotHighlightResponse, protocol.OneshotHighlightResult{
			HasParser: true,
			Err:       err.Error(),
		})
		return
	}
	e.reply(msg.ID, protocol.KindOneshotHighlightResponse, protocol.OneshotHighlightResult{
		HasParser:  true,
		Highlights: flat,
	})
}

func (e *Engine) oneshot(ctx context.Context, rp *reusableParser, source []byte) ([]syntax.FlatCapture, error) {
	tree := parseTimed(e.perf, rp.parser, source)
	if tree == nil {
		return nil, ErrParseFailed
	}
	defer tree.Close()

	caps := e.timedQuery(rp.loaded.highlights, tree.RootNode(), source, nil)
	injCaps, injRanges := e.processInjections(ctx, rp.loaded, tree.RootNode(), source)
	caps = append(caps, injCaps...)
	return buildFlat(caps, injRanges), nil
}

func (e *Engine) handleUpdateDataPath(msg protocol.Message) {
	body, ok := msg.Body.(protocol.UpdateDataPath)
	if !ok {
		e.reply(msg.ID, protocol.KindUpdateDataPathResponse, protocol.Ack{Err: "malformed update-data-path body"})
		return
	}
	err := e.assets.SetRoot(body.DataRoot)
	e.reply(msg.ID, protocol.KindUpdateDataPathResponse, protocol.Ack{Err: errString(err)})
}

// handleClearCache drops caches but leaves live buffers alone: their
// parsers and trees stay valid and keep highlighting.
func (e *Engine) handleClearCache(msg protocol.Message) {
	err := e.loader.ClearCache()
	e.reply(msg.ID, protocol.KindClearCacheResponse, protocol.Ack{Err: errString(err)})
}

// sendHighlights emits the per-line view for the given rows, or for every
// stored row when rows is nil, as an unsolicited highlight response.
func (e *Engine) sendHighlights(buf *bufferState, rows map[uint]struct{}) {
	var lines, dropped map[uint][]syntax.LineSpan
	if rows == nil {
		lines, dropped = buf.store.viewAll()
	} else {
		lines, dropped = buf.store.view(rows)
	}
	e.reply("", protocol.KindHighlightResponse, protocol.Highlights{
		BufferID: buf.id,
		Version:  buf.version,
		Lines:    lines,
		Dropped:  dropped,
	})
}

func (e *Engine) reply(id string, kind protocol.Kind, body any) {
	if err := e.conn.Send(protocol.Message{Kind: kind, ID: id, Body: body}); err != nil {
		// Connection closed mid-operation; Serve exits on the next Recv.
		return
	}
}

// isLoadFailure reports whether err is an expected parser-availability
// failure rather than an operational fault.
func isLoadFailure(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range []error{ErrNoConfig, ErrUnknownGrammar, ErrNoHighlightQuery} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// workerLogWriter forwards formatted log lines over the protocol connection.
// The level is recovered from the formatted prefix so the facade can route
// records into its own logger at the right level.
type workerLogWriter struct {
	conn *protocol.Conn
}

func (w *workerLogWriter) Write(p []byte) (int, error) {
	line := strings.TrimRight(string(p), "\n")
	level := "info"
	switch {
	case strings.HasPrefix(line, "DEBU"):
		level = "debug"
	case strings.HasPrefix(line, "WARN"):
		level = "warn"
	case strings.HasPrefix(line, "ERRO"):
		level = "error"
	}
	_ = w.conn.Send(protocol.Message{
		Kind: protocol.KindWorkerLog,
		Body: protocol.WorkerLog{Level: level, Message: line},
	})
	return len(p), nil
}
