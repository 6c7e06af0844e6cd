package notify

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func writeTempFile(dir, name, content string) error {
	return os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644)
}

func TestSubscribeAndNotify(t *testing.T) {
	n := New()
	defer n.Close()

	var got []PathChange
	sub := n.Subscribe(func(c PathChange) { got = append(got, c) })
	defer sub.Unsubscribe()

	n.Notify(PathChange{NewRoot: "/data", Source: "settings"})

	if len(got) != 1 {
		t.Fatalf("got %d deliveries, want 1", len(got))
	}
	if got[0].NewRoot != "/data" || got[0].Source != "settings" {
		t.Errorf("got %+v", got[0])
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	n := New()
	defer n.Close()

	count := 0
	sub := n.Subscribe(func(PathChange) { count++ })

	n.Notify(PathChange{NewRoot: "/a"})
	sub.Unsubscribe()
	n.Notify(PathChange{NewRoot: "/b"})

	if count != 1 {
		t.Errorf("got %d deliveries, want 1", count)
	}
}

func TestUnsubscribeIdempotent(t *testing.T) {
	n := New()
	defer n.Close()

	sub := n.Subscribe(func(PathChange) {})
	sub.Unsubscribe()
	sub.Unsubscribe()

	if got := n.ObserverCount(); got != 0 {
		t.Errorf("ObserverCount = %d, want 0", got)
	}
}

func TestObserverCount(t *testing.T) {
	n := New()
	defer n.Close()

	if got := n.ObserverCount(); got != 0 {
		t.Fatalf("initial count = %d, want 0", got)
	}
	s1 := n.Subscribe(func(PathChange) {})
	s2 := n.Subscribe(func(PathChange) {})
	if got := n.ObserverCount(); got != 2 {
		t.Errorf("count = %d, want 2", got)
	}
	s1.Unsubscribe()
	s2.Unsubscribe()
	if got := n.ObserverCount(); got != 0 {
		t.Errorf("count after unsubscribe = %d, want 0", got)
	}
}

func TestAsyncDelivery(t *testing.T) {
	n := New(WithAsync(8))
	defer n.Close()

	var mu sync.Mutex
	var got []string
	done := make(chan struct{})
	n.Subscribe(func(c PathChange) {
		mu.Lock()
		got = append(got, c.NewRoot)
		if len(got) == 3 {
			close(done)
		}
		mu.Unlock()
	})

	n.Notify(PathChange{NewRoot: "/1"})
	n.Notify(PathChange{NewRoot: "/2"})
	n.Notify(PathChange{NewRoot: "/3"})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("async deliveries did not arrive")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, want := range []string{"/1", "/2", "/3"} {
		if got[i] != want {
			t.Errorf("delivery %d = %q, want %q", i, got[i], want)
		}
	}
}

func TestNotifyAfterClose(t *testing.T) {
	n := New()
	count := 0
	n.Subscribe(func(PathChange) { count++ })
	n.Close()
	n.Close() // idempotent

	n.Notify(PathChange{NewRoot: "/late"})
	if count != 0 {
		t.Errorf("got %d deliveries after close, want 0", count)
	}
}

func TestWatcherPublishesChanges(t *testing.T) {
	dir := t.TempDir()
	n := New()
	defer n.Close()

	changes := make(chan PathChange, 8)
	n.Subscribe(func(c PathChange) { changes <- c })

	w, err := NewWatcher(dir, n)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	if err := writeTempFile(dir, "highlights.scm", "(comment) @comment"); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case c := <-changes:
		if c.NewRoot != dir {
			t.Errorf("NewRoot = %q, want %q", c.NewRoot, dir)
		}
		if c.Source != "watcher" {
			t.Errorf("Source = %q, want watcher", c.Source)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no change delivered for file write")
	}
}

func TestWatcherCloseIdempotent(t *testing.T) {
	dir := t.TempDir()
	n := New()
	defer n.Close()

	w, err := NewWatcher(dir, n)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("first close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}
