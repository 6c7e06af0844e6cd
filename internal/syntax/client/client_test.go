package client

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mosaicterm/treelight/internal/config/notify"
	"github.com/mosaicterm/treelight/internal/syntax/protocol"
)

// fakeEngine answers protocol messages with canned handlers so facade
// behavior can be tested without real grammars.
type fakeEngine struct {
	conn *protocol.Conn

	mu        sync.Mutex
	initCount int
	initDelay time.Duration
	initErr   string
	silent    bool
}

func startFakeEngine(t *testing.T) (*fakeEngine, *protocol.Conn) {
	t.Helper()
	facadeEnd, engineEnd := protocol.Pipe(16)
	fe := &fakeEngine{conn: engineEnd}
	go fe.serve()
	t.Cleanup(func() { facadeEnd.Close() })
	return fe, facadeEnd
}

func (fe *fakeEngine) serve() {
	for {
		msg, ok := fe.conn.Recv()
		if !ok {
			return
		}
		fe.mu.Lock()
		silent := fe.silent
		initDelay := fe.initDelay
		initErr := fe.initErr
		fe.mu.Unlock()
		if silent {
			continue
		}

		switch msg.Kind {
		case protocol.KindInit:
			fe.mu.Lock()
			fe.initCount++
			fe.mu.Unlock()
			if initDelay > 0 {
				time.Sleep(initDelay)
			}
			fe.reply(msg.ID, protocol.KindInitResponse, protocol.InitResult{Err: initErr})
		case protocol.KindAddFiletypeParser:
			// Fire-and-forget.
		case protocol.KindInitializeParser:
			body := msg.Body.(protocol.InitializeParser)
			fe.reply(msg.ID, protocol.KindParserInitResponse, protocol.ParserInitResult{
				BufferID:  body.BufferID,
				HasParser: body.Filetype != "fortran",
			})
			fe.reply("", protocol.KindHighlightResponse, protocol.Highlights{
				BufferID: body.BufferID,
				Version:  body.Version,
			})
		case protocol.KindHandleEdits:
			body := msg.Body.(protocol.HandleEdits)
			if body.BufferID == "ghost" {
				fe.reply(msg.ID, protocol.KindWarning, protocol.Warning{
					BufferID: body.BufferID,
					Message:  "edits for unknown buffer",
				})
				break
			}
			fe.reply("", protocol.KindHighlightResponse, protocol.Highlights{
				BufferID: body.BufferID,
				Version:  body.Version,
			})
		case protocol.KindDisposeBuffer:
			body := msg.Body.(protocol.DisposeBuffer)
			fe.reply(msg.ID, protocol.KindBufferDisposed, protocol.BufferDisposed{BufferID: body.BufferID})
		case protocol.KindUpdateDataPath:
			fe.reply(msg.ID, protocol.KindUpdateDataPathResponse, protocol.Ack{})
		case protocol.KindGetPerformance:
			fe.reply(msg.ID, protocol.KindPerformanceResponse, protocol.PerformanceResult{})
		}
	}
}

func (fe *fakeEngine) reply(id string, kind protocol.Kind, body any) {
	_ = fe.conn.Send(protocol.Message{Kind: kind, ID: id, Body: body})
}

func (fe *fakeEngine) inits() int {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.initCount
}

func TestInitializeSingleFlight(t *testing.T) {
	fe, conn := startFakeEngine(t)
	fe.mu.Lock()
	fe.initDelay = 30 * time.Millisecond
	fe.mu.Unlock()

	c := NewWithConn(conn)
	defer c.Destroy()

	const callers = 8
	var wg sync.WaitGroup
	var failures atomic.Int64
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Initialize(context.Background()); err != nil {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()

	if failures.Load() != 0 {
		t.Errorf("%d initializations failed", failures.Load())
	}
	if got := fe.inits(); got != 1 {
		t.Errorf("engine saw %d init requests, want 1", got)
	}
	if !c.IsInitialized() {
		t.Error("IsInitialized = false after successful init")
	}

	// A later call reuses the cached outcome.
	if err := c.Initialize(context.Background()); err != nil {
		t.Errorf("repeat initialize: %v", err)
	}
	if got := fe.inits(); got != 1 {
		t.Errorf("repeat initialize hit the engine: %d requests", got)
	}
}

func TestInitializeEngineFailureCached(t *testing.T) {
	fe, conn := startFakeEngine(t)
	fe.mu.Lock()
	fe.initErr = "no data root"
	fe.mu.Unlock()

	c := NewWithConn(conn)
	defer c.Destroy()

	err := c.Initialize(context.Background())
	if err == nil {
		t.Fatal("expected init failure")
	}
	if c.IsInitialized() {
		t.Error("IsInitialized = true after failed init")
	}
	// The outcome is cached, not retried.
	if err2 := c.Initialize(context.Background()); err2 == nil || err2.Error() != err.Error() {
		t.Errorf("second init = %v, want cached %v", err2, err)
	}
	if got := fe.inits(); got != 1 {
		t.Errorf("engine saw %d init requests, want 1", got)
	}
}

func TestInitializeTimeout(t *testing.T) {
	fe, conn := startFakeEngine(t)
	fe.mu.Lock()
	fe.silent = true
	fe.mu.Unlock()

	c := NewWithConn(conn, WithInitTimeout(20*time.Millisecond))
	defer c.Destroy()

	if err := c.Initialize(context.Background()); !errors.Is(err, ErrInitTimeout) {
		t.Errorf("got %v, want ErrInitTimeout", err)
	}
}

func TestDestroyDuringInit(t *testing.T) {
	fe, conn := startFakeEngine(t)
	fe.mu.Lock()
	fe.silent = true
	fe.mu.Unlock()

	c := NewWithConn(conn)

	errCh := make(chan error, 1)
	go func() { errCh <- c.Initialize(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	c.Destroy()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrDestroyedDuringInit) {
			t.Errorf("got %v, want ErrDestroyedDuringInit", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Initialize did not unblock on destroy")
	}
	if c.IsInitialized() {
		t.Error("IsInitialized = true after destroy")
	}
}

func TestCreateBufferDuplicateRejectedSynchronously(t *testing.T) {
	_, conn := startFakeEngine(t)
	c := NewWithConn(conn)
	defer c.Destroy()

	if _, err := c.CreateBuffer(context.Background(), "buf-1", "x", "go", 1); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := c.CreateBuffer(context.Background(), "buf-1", "y", "go", 2); !errors.Is(err, ErrDuplicateBuffer) {
		t.Errorf("got %v, want ErrDuplicateBuffer", err)
	}

	// The original registration is untouched.
	info, ok := c.Buffer("buf-1")
	if !ok || info.Version != 1 || info.Content != "x" {
		t.Errorf("buffer info = %+v, %v", info, ok)
	}
}

func TestCreateBufferWithoutParserStillRegistered(t *testing.T) {
	_, conn := startFakeEngine(t)
	c := NewWithConn(conn)
	defer c.Destroy()

	hasParser, err := c.CreateBuffer(context.Background(), "buf-1", "x", "fortran", 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if hasParser {
		t.Error("fortran should report hasParser=false")
	}
	info, ok := c.Buffer("buf-1")
	if !ok {
		t.Fatal("buffer not registered")
	}
	if info.HasParser {
		t.Error("info.HasParser = true")
	}
}

func TestCreateBufferAutoInitializes(t *testing.T) {
	fe, conn := startFakeEngine(t)
	c := NewWithConn(conn)
	defer c.Destroy()

	if _, err := c.CreateBuffer(context.Background(), "buf-1", "x", "go", 1); err != nil {
		t.Fatalf("create: %v", err)
	}
	if got := fe.inits(); got != 1 {
		t.Errorf("engine saw %d init requests, want 1", got)
	}
	if !c.IsInitialized() {
		t.Error("create did not initialize the client")
	}
}

func TestCreateBufferWithoutAutoInit(t *testing.T) {
	fe, conn := startFakeEngine(t)
	c := NewWithConn(conn)
	defer c.Destroy()

	if _, err := c.CreateBuffer(context.Background(), "buf-1", "x", "go", 1, WithoutAutoInit()); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("got %v, want ErrNotInitialized", err)
	}
	if _, ok := c.Buffer("buf-1"); ok {
		t.Error("rejected create left a registration behind")
	}
	if got := fe.inits(); got != 0 {
		t.Errorf("engine saw %d init requests, want 0", got)
	}

	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if _, err := c.CreateBuffer(context.Background(), "buf-1", "x", "go", 1, WithoutAutoInit()); err != nil {
		t.Errorf("create after initialize: %v", err)
	}
}

func TestUpdateBufferRoutesHighlightEvent(t *testing.T) {
	_, conn := startFakeEngine(t)

	events := make(chan HighlightEvent, 4)
	c := NewWithConn(conn, OnHighlights(func(ev HighlightEvent) { events <- ev }))
	defer c.Destroy()

	if _, err := c.CreateBuffer(context.Background(), "buf-1", "x", "go", 1); err != nil {
		t.Fatal(err)
	}
	<-events // initial pass

	if err := c.UpdateBuffer(context.Background(), "buf-1", "xy", 2, nil); err != nil {
		t.Fatalf("update: %v", err)
	}
	select {
	case ev := <-events:
		if ev.BufferID != "buf-1" || ev.Version != 2 {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no highlight event for update")
	}

	info, _ := c.Buffer("buf-1")
	if info.Version != 2 || info.Content != "xy" {
		t.Errorf("registry not updated: %+v", info)
	}
}

func TestUnknownBufferWarningEvent(t *testing.T) {
	_, conn := startFakeEngine(t)

	warnings := make(chan WarningEvent, 1)
	c := NewWithConn(conn, OnWarning(func(ev WarningEvent) { warnings <- ev }))
	defer c.Destroy()

	if err := c.UpdateBuffer(context.Background(), "ghost", "x", 1, nil); err != nil {
		t.Fatalf("update: %v", err)
	}
	select {
	case ev := <-warnings:
		if ev.BufferID != "ghost" {
			t.Errorf("warning = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no warning event")
	}
}

func TestRemoveBuffer(t *testing.T) {
	_, conn := startFakeEngine(t)

	disposed := make(chan DisposedEvent, 1)
	c := NewWithConn(conn, OnDisposed(func(ev DisposedEvent) { disposed <- ev }))
	defer c.Destroy()

	if _, err := c.CreateBuffer(context.Background(), "buf-1", "x", "go", 1); err != nil {
		t.Fatal(err)
	}
	if err := c.RemoveBuffer(context.Background(), "buf-1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	select {
	case ev := <-disposed:
		if ev.BufferID != "buf-1" {
			t.Errorf("disposed = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no disposed event")
	}
	if _, ok := c.Buffer("buf-1"); ok {
		t.Error("buffer still registered after remove")
	}
	// Removing again is a no-op.
	if err := c.RemoveBuffer(context.Background(), "buf-1"); err != nil {
		t.Errorf("second remove: %v", err)
	}
}

func TestDestroyEmptiesRegistryAndRejectsOperations(t *testing.T) {
	_, conn := startFakeEngine(t)
	c := NewWithConn(conn)

	if _, err := c.CreateBuffer(context.Background(), "buf-1", "x", "go", 1); err != nil {
		t.Fatal(err)
	}
	c.Destroy()
	c.Destroy() // idempotent

	if got := c.Buffers(); len(got) != 0 {
		t.Errorf("Buffers() after destroy = %v, want empty", got)
	}
	if c.IsInitialized() {
		t.Error("IsInitialized after destroy")
	}
	if _, err := c.CreateBuffer(context.Background(), "buf-2", "x", "go", 1); !errors.Is(err, ErrDestroyed) {
		t.Errorf("create after destroy = %v, want ErrDestroyed", err)
	}
	if err := c.UpdateBuffer(context.Background(), "buf-1", "x", 2, nil); !errors.Is(err, ErrDestroyed) {
		t.Errorf("update after destroy = %v, want ErrDestroyed", err)
	}
}

func TestNotifierSubscriptionHygiene(t *testing.T) {
	_, conn := startFakeEngine(t)
	n := notify.New()
	defer n.Close()

	c := NewWithConn(conn, WithNotifier(n))
	if got := n.ObserverCount(); got != 1 {
		t.Fatalf("ObserverCount after attach = %d, want 1", got)
	}

	c.Destroy()
	if got := n.ObserverCount(); got != 0 {
		t.Errorf("ObserverCount after destroy = %d, want 0", got)
	}
}

func TestNotifierForwardsDataRoot(t *testing.T) {
	fe, conn := startFakeEngine(t)
	_ = fe
	n := notify.New()
	defer n.Close()

	c := NewWithConn(conn, WithNotifier(n))
	defer c.Destroy()

	n.Notify(notify.PathChange{NewRoot: "/new/root", Source: "settings"})

	// The forward happens asynchronously; the observable effect here is that
	// the subscription stays healthy and the client keeps working.
	deadline := time.After(time.Second)
	for n.ObserverCount() != 1 {
		select {
		case <-deadline:
			t.Fatal("subscription lost after notify")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	if err := c.UpdateDataRoot(context.Background(), "/direct"); err != nil {
		t.Errorf("direct update after notify: %v", err)
	}
}

func TestBuffersSorted(t *testing.T) {
	_, conn := startFakeEngine(t)
	c := NewWithConn(conn)
	defer c.Destroy()

	for _, id := range []string{"charlie", "alpha", "bravo"} {
		if _, err := c.CreateBuffer(context.Background(), id, "x", "go", 1); err != nil {
			t.Fatal(err)
		}
	}
	got := c.Buffers()
	if len(got) != 3 || got[0].ID != "alpha" || got[1].ID != "bravo" || got[2].ID != "charlie" {
		t.Errorf("Buffers() = %v", got)
	}
}
