package client

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/mosaicterm/treelight/internal/config/notify"
	"github.com/mosaicterm/treelight/internal/syntax"
	"github.com/mosaicterm/treelight/internal/syntax/engine"
	"github.com/mosaicterm/treelight/internal/syntax/protocol"
)

// defaultInitTimeout bounds how long Initialize waits for the engine before
// giving up.
const defaultInitTimeout = 10 * time.Second

// pipeBuffer is the channel depth of the in-process engine pipe.
const pipeBuffer = 64

type initState int

const (
	initIdle initState = iota
	initPending
	initDone
)

// BufferInfo is the externally visible state of a registered buffer.
type BufferInfo struct {
	ID       string
	Filetype string
	Version  int
	Content  string

	// HasParser is false when no parser could be loaded for the filetype;
	// the buffer stays registered and simply renders unhighlighted.
	HasParser bool
}

// Client is the facade over the parser engine. Safe for concurrent use.
type Client struct {
	conn     *protocol.Conn
	log      *log.Logger
	handlers handlers

	notifier    *notify.Notifier
	dataRoot    string
	initTimeout time.Duration
	engineOpts  []engine.Option

	done chan struct{}

	mu        sync.Mutex
	destroyed bool
	pending   map[string]chan protocol.Message
	buffers   map[string]*BufferInfo
	configs   []syntax.FiletypeConfig
	sub       *notify.Subscription

	initState initState
	initErr   error
	initDone  chan struct{}
}

// Option configures a Client.
type Option func(*Client)

// WithDataRoot sets the directory the engine resolves query assets from.
func WithDataRoot(root string) Option {
	return func(c *Client) { c.dataRoot = root }
}

// WithInitTimeout overrides the initialization timeout.
func WithInitTimeout(d time.Duration) Option {
	return func(c *Client) { c.initTimeout = d }
}

// WithFiletypes registers filetype configurations to be sent to the engine
// on initialization.
func WithFiletypes(cfgs ...syntax.FiletypeConfig) Option {
	return func(c *Client) { c.configs = append(c.configs, cfgs...) }
}

// WithNotifier subscribes the client to data root change notifications; a
// change forwards the new root to the engine. The subscription is released
// on Destroy.
func WithNotifier(n *notify.Notifier) Option {
	return func(c *Client) { c.notifier = n }
}

// WithClientLogger sets the logger engine log lines are surfaced through.
func WithClientLogger(logger *log.Logger) Option {
	return func(c *Client) { c.log = logger }
}

// WithEngineOptions passes options to the embedded engine. Ignored by
// NewWithConn.
func WithEngineOptions(opts ...engine.Option) Option {
	return func(c *Client) { c.engineOpts = append(c.engineOpts, opts...) }
}

// New creates a client with its own embedded engine running on an
// in-process pipe.
func New(opts ...Option) *Client {
	c := newClient(opts...)
	facadeEnd, engineEnd := protocol.Pipe(pipeBuffer)
	c.conn = facadeEnd
	eng := engine.New(engineEnd, c.engineOpts...)
	go eng.Serve()
	c.start()
	return c
}

// NewWithConn creates a client speaking to an already running engine (or a
// test double) over conn.
func NewWithConn(conn *protocol.Conn, opts ...Option) *Client {
	c := newClient(opts...)
	c.conn = conn
	c.start()
	return c
}

func newClient(opts ...Option) *Client {
	c := &Client{
		initTimeout: defaultInitTimeout,
		done:        make(chan struct{}),
		pending:     make(map[string]chan protocol.Message),
		buffers:     make(map[string]*BufferInfo),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = log.Default()
	}
	return c
}

func (c *Client) start() {
	if c.notifier != nil {
		c.sub = c.notifier.Subscribe(func(change notify.PathChange) {
			go func() {
				if err := c.UpdateDataRoot(context.Background(), change.NewRoot); err != nil {
					c.log.Warn("data root update failed", "root", change.NewRoot, "err", err)
				}
			}()
		})
	}
	go c.readLoop()
}

// Initialize performs the engine handshake. Concurrent and repeat calls
// collapse onto a single round trip; the first outcome is cached.
func (c *Client) Initialize(ctx context.Context) error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return ErrDestroyed
	}
	switch c.initState {
	case initDone:
		err := c.initErr
		c.mu.Unlock()
		return err
	case initPending:
		doneCh := c.initDone
		c.mu.Unlock()
		select {
		case <-doneCh:
			c.mu.Lock()
			err := c.initErr
			c.mu.Unlock()
			return err
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return ErrDestroyedDuringInit
		}
	}
	c.initState = initPending
	c.initDone = make(chan struct{})
	configs := make([]syntax.FiletypeConfig, len(c.configs))
	copy(configs, c.configs)
	doneCh := c.initDone
	c.mu.Unlock()

	err := c.doInit(ctx, configs)

	c.mu.Lock()
	c.initState = initDone
	c.initErr = err
	c.mu.Unlock()
	close(doneCh)
	return err
}

func (c *Client) doInit(ctx context.Context, configs []syntax.FiletypeConfig) error {
	for _, cfg := range configs {
		if err := c.send(protocol.KindAddFiletypeParser, protocol.AddFiletypeParser{Config: cfg}); err != nil {
			return err
		}
	}
	resp, err := c.call(ctx, protocol.KindInit, protocol.Init{DataRoot: c.dataRoot}, c.initTimeout)
	if err != nil {
		if err == ErrDestroyed {
			return ErrDestroyedDuringInit
		}
		return err
	}
	res, ok := resp.Body.(protocol.InitResult)
	if !ok {
		return fmt.Errorf("client: unexpected init response %s", resp.Kind)
	}
	if res.Err != "" {
		return fmt.Errorf("client: engine init: %s", res.Err)
	}
	return nil
}

// IsInitialized reports whether the handshake completed successfully. Always
// false after Destroy.
func (c *Client) IsInitialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.destroyed && c.initState == initDone && c.initErr == nil
}

// RegisterFiletype adds a filetype configuration. If the client is already
// initialized the configuration is sent to the engine immediately; otherwise
// it is queued for the handshake.
func (c *Client) RegisterFiletype(cfg syntax.FiletypeConfig) error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return ErrDestroyed
	}
	initialized := c.initState == initDone && c.initErr == nil
	if !initialized {
		c.configs = append(c.configs, cfg)
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	return c.send(protocol.KindAddFiletypeParser, protocol.AddFiletypeParser{Config: cfg})
}

// CreateOption adjusts a single CreateBuffer call.
type CreateOption func(*createConfig)

type createConfig struct {
	autoInit bool
}

// WithoutAutoInit makes CreateBuffer require a prior successful Initialize
// instead of initializing on demand; without one the call fails with
// ErrNotInitialized.
func WithoutAutoInit() CreateOption {
	return func(cfg *createConfig) { cfg.autoInit = false }
}

// CreateBuffer registers a buffer and asks the engine to start tracking it.
// Duplicate ids are rejected synchronously. Initialization is performed
// automatically if it has not happened yet, unless WithoutAutoInit is given.
// The returned bool reports whether a parser is available for the filetype;
// the buffer is registered either way. The initial highlight pass arrives
// via OnHighlights.
func (c *Client) CreateBuffer(ctx context.Context, id, content, filetype string, version int, opts ...CreateOption) (bool, error) {
	cfg := createConfig{autoInit: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return false, ErrDestroyed
	}
	if _, exists := c.buffers[id]; exists {
		c.mu.Unlock()
		return false, fmt.Errorf("%w: %s", ErrDuplicateBuffer, id)
	}
	c.buffers[id] = &BufferInfo{ID: id, Filetype: filetype, Version: version, Content: content}
	c.mu.Unlock()

	if cfg.autoInit {
		if err := c.Initialize(ctx); err != nil {
			c.unregister(id)
			return false, err
		}
	} else if !c.IsInitialized() {
		c.unregister(id)
		return false, ErrNotInitialized
	}

	resp, err := c.call(ctx, protocol.KindInitializeParser, protocol.InitializeParser{
		BufferID: id,
		Content:  content,
		Filetype: filetype,
		Version:  version,
	}, 0)
	if err != nil {
		c.unregister(id)
		return false, err
	}
	res, ok := resp.Body.(protocol.ParserInitResult)
	if !ok {
		c.unregister(id)
		return false, fmt.Errorf("client: unexpected create response %s", resp.Kind)
	}
	if res.Err != "" {
		c.unregister(id)
		c.emitError(ErrorEvent{BufferID: id, Message: res.Err})
		return false, fmt.Errorf("client: create buffer %s: %s", id, res.Err)
	}
	if res.Warning != "" {
		c.emitWarning(WarningEvent{BufferID: id, Message: res.Warning})
	}

	c.mu.Lock()
	if info, exists := c.buffers[id]; exists {
		info.HasParser = res.HasParser
	}
	c.mu.Unlock()
	return res.HasParser, nil
}

// UpdateBuffer forwards incremental edits. The resulting highlights arrive
// via OnHighlights; edits for a buffer the engine does not track come back
// as a warning, not an error.
func (c *Client) UpdateBuffer(ctx context.Context, id, content string, version int, edits []syntax.Edit) error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return ErrDestroyed
	}
	if info, exists := c.buffers[id]; exists {
		info.Version = version
		info.Content = content
	}
	c.mu.Unlock()

	return c.send(protocol.KindHandleEdits, protocol.HandleEdits{
		BufferID: id,
		Version:  version,
		Content:  content,
		Edits:    edits,
	})
}

// ResetBuffer replaces a buffer's content wholesale, discarding incremental
// state engine-side. A full highlight pass arrives via OnHighlights.
func (c *Client) ResetBuffer(ctx context.Context, id, content string, version int) error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return ErrDestroyed
	}
	if info, exists := c.buffers[id]; exists {
		info.Version = version
		info.Content = content
	}
	c.mu.Unlock()

	return c.send(protocol.KindResetBuffer, protocol.ResetBuffer{
		BufferID: id,
		Version:  version,
		Content:  content,
	})
}

// RemoveBuffer unregisters a buffer and waits for the engine to release its
// resources. Removing an unknown buffer is a no-op.
func (c *Client) RemoveBuffer(ctx context.Context, id string) error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return ErrDestroyed
	}
	delete(c.buffers, id)
	c.mu.Unlock()

	resp, err := c.call(ctx, protocol.KindDisposeBuffer, protocol.DisposeBuffer{BufferID: id}, 0)
	if err != nil {
		return err
	}
	if _, ok := resp.Body.(protocol.BufferDisposed); ok {
		c.emitDisposed(DisposedEvent{BufferID: id})
	}
	return nil
}

// HighlightOnce highlights a standalone blob and returns the flat sorted
// tuples. No buffer state is created. Returns nil tuples (and no error)
// when no parser is available for the filetype.
func (c *Client) HighlightOnce(ctx context.Context, content, filetype string) ([]syntax.FlatCapture, error) {
	if err := c.Initialize(ctx); err != nil {
		return nil, err
	}
	resp, err := c.call(ctx, protocol.KindOneshotHighlight, protocol.OneshotHighlight{
		Content:  content,
		Filetype: filetype,
	}, 0)
	if err != nil {
		return nil, err
	}
	res, ok := resp.Body.(protocol.OneshotHighlightResult)
	if !ok {
		return nil, fmt.Errorf("client: unexpected oneshot response %s", resp.Kind)
	}
	if res.Err != "" {
		return nil, fmt.Errorf("client: oneshot highlight: %s", res.Err)
	}
	if !res.HasParser {
		if res.Warning != "" {
			c.emitWarning(WarningEvent{Message: res.Warning})
		}
		return nil, nil
	}
	return res.Highlights, nil
}

// PreloadParser warms the engine's parser cache for a filetype and reports
// whether a parser is available.
func (c *Client) PreloadParser(ctx context.Context, filetype string) (bool, error) {
	if err := c.Initialize(ctx); err != nil {
		return false, err
	}
	resp, err := c.call(ctx, protocol.KindPreloadParser, protocol.PreloadParser{Filetype: filetype}, 0)
	if err != nil {
		return false, err
	}
	res, ok := resp.Body.(protocol.PreloadParserResult)
	if !ok {
		return false, fmt.Errorf("client: unexpected preload response %s", resp.Kind)
	}
	return res.HasParser, nil
}

// Stats returns the engine's rolling performance averages.
func (c *Client) Stats(ctx context.Context) (syntax.PerformanceStats, error) {
	resp, err := c.call(ctx, protocol.KindGetPerformance, protocol.GetPerformance{}, 0)
	if err != nil {
		return syntax.PerformanceStats{}, err
	}
	res, ok := resp.Body.(protocol.PerformanceResult)
	if !ok {
		return syntax.PerformanceStats{}, fmt.Errorf("client: unexpected stats response %s", resp.Kind)
	}
	return res.Stats, nil
}

// ClearCache empties the engine's parser, query, and asset caches. Live
// buffers keep highlighting.
func (c *Client) ClearCache(ctx context.Context) error {
	resp, err := c.call(ctx, protocol.KindClearCache, protocol.ClearCache{}, 0)
	if err != nil {
		return err
	}
	return ackErr(resp, "clear cache")
}

// UpdateDataRoot points the engine at a new query asset directory.
func (c *Client) UpdateDataRoot(ctx context.Context, root string) error {
	resp, err := c.call(ctx, protocol.KindUpdateDataPath, protocol.UpdateDataPath{DataRoot: root}, 0)
	if err != nil {
		return err
	}
	return ackErr(resp, "update data root")
}

// Buffer returns a copy of a registered buffer's state.
func (c *Client) Buffer(id string) (BufferInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.buffers[id]
	if !ok {
		return BufferInfo{}, false
	}
	return *info, true
}

// Buffers returns copies of all registered buffers sorted by id. Empty
// after Destroy.
func (c *Client) Buffers() []BufferInfo {
	c.mu.Lock()
	out := make([]BufferInfo, 0, len(c.buffers))
	for _, info := range c.buffers {
		out = append(out, *info)
	}
	c.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Destroy tears the client down: the buffer registry empties, the notifier
// subscription is released, in-flight calls fail, and the engine connection
// closes, which makes the engine free every parser and tree it owns. Safe to
// call more than once.
func (c *Client) Destroy() {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	c.destroyed = true
	c.buffers = make(map[string]*BufferInfo)
	sub := c.sub
	c.sub = nil
	c.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
	close(c.done)
	c.conn.Close()
}

// call sends a correlated request and blocks for its response. A zero
// timeout means no deadline beyond ctx.
func (c *Client) call(ctx context.Context, kind protocol.Kind, body any, timeout time.Duration) (protocol.Message, error) {
	id := uuid.NewString()
	ch := make(chan protocol.Message, 1)

	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return protocol.Message{}, ErrDestroyed
	}
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.conn.Send(protocol.Message{Kind: kind, ID: id, Body: body}); err != nil {
		return protocol.Message{}, ErrTransportClosed
	}

	var timeoutC <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timeoutC = t.C
	}
	select {
	case msg := <-ch:
		return msg, nil
	case <-ctx.Done():
		return protocol.Message{}, ctx.Err()
	case <-c.done:
		return protocol.Message{}, ErrDestroyed
	case <-c.conn.Done():
		return protocol.Message{}, ErrTransportClosed
	case <-timeoutC:
		return protocol.Message{}, ErrInitTimeout
	}
}

// send fires a message with no correlation id.
func (c *Client) send(kind protocol.Kind, body any) error {
	if err := c.conn.Send(protocol.Message{Kind: kind, Body: body}); err != nil {
		return ErrTransportClosed
	}
	return nil
}

// readLoop routes incoming messages: correlated responses wake their
// waiting call, everything else becomes an event.
func (c *Client) readLoop() {
	for {
		msg, ok := c.conn.Recv()
		if !ok {
			return
		}
		if msg.ID != "" {
			c.mu.Lock()
			ch, waiting := c.pending[msg.ID]
			if waiting {
				delete(c.pending, msg.ID)
			}
			c.mu.Unlock()
			if waiting {
				ch <- msg
				continue
			}
		}
		c.route(msg)
	}
}

func (c *Client) route(msg protocol.Message) {
	switch body := msg.Body.(type) {
	case protocol.Highlights:
		if c.handlers.onHighlights != nil {
			c.handlers.onHighlights(HighlightEvent{
				BufferID: body.BufferID,
				Version:  body.Version,
				Lines:    body.Lines,
				Dropped:  body.Dropped,
			})
		}
	case protocol.Warning:
		c.emitWarning(WarningEvent{BufferID: body.BufferID, Message: body.Message})
	case protocol.Error:
		c.emitError(ErrorEvent{BufferID: body.BufferID, Message: body.Message, Stack: body.Stack})
	case protocol.BufferDisposed:
		c.emitDisposed(DisposedEvent{BufferID: body.BufferID})
	case protocol.WorkerLog:
		c.emitLog(body)
	default:
		c.log.Debug("unrouted message", "kind", msg.Kind)
	}
}

func (c *Client) emitWarning(ev WarningEvent) {
	c.log.Warn("engine warning", "buffer", ev.BufferID, "msg", ev.Message)
	if c.handlers.onWarning != nil {
		c.handlers.onWarning(ev)
	}
}

func (c *Client) emitError(ev ErrorEvent) {
	c.log.Error("engine error", "buffer", ev.BufferID, "msg", ev.Message)
	if c.handlers.onError != nil {
		c.handlers.onError(ev)
	}
}

func (c *Client) emitDisposed(ev DisposedEvent) {
	if c.handlers.onDisposed != nil {
		c.handlers.onDisposed(ev)
	}
}

func (c *Client) emitLog(body protocol.WorkerLog) {
	switch body.Level {
	case "debug":
		c.log.Debug(body.Message)
	case "warn":
		c.log.Warn(body.Message)
	case "error":
		c.log.Error(body.Message)
	default:
		c.log.Info(body.Message)
	}
	if c.handlers.onLog != nil {
		c.handlers.onLog(LogEvent{Level: body.Level, Message: body.Message})
	}
}

func (c *Client) unregister(id string) {
	c.mu.Lock()
	delete(c.buffers, id)
	c.mu.Unlock()
}

func ackErr(resp protocol.Message, op string) error {
	res, ok := resp.Body.(protocol.Ack)
	if !ok {
		return fmt.Errorf("client: unexpected %s response %s", op, resp.Kind)
	}
	if res.Err != "" {
		return fmt.Errorf("client: %s: %s", op, res.Err)
	}
	return nil
}
