package protocol

import (
	"errors"
	"sync"
)

// ErrClosed is returned by Send after either end of the pipe has been closed.
var ErrClosed = errors.New("protocol: pipe closed")

// Conn is one end of an in-process message pipe. Send never blocks
// indefinitely against a closed peer: closing either end unblocks all
// senders and receivers on both ends.
type Conn struct {
	send chan<- Message
	recv <-chan Message

	done      chan struct{}
	closeOnce *sync.Once
}

// Pipe creates a connected pair of ends with the given per-direction buffer.
// Messages are delivered in order within each direction.
func Pipe(buffer int) (a, b *Conn) {
	if buffer < 0 {
		buffer = 0
	}
	ab := make(chan Message, buffer)
	ba := make(chan Message, buffer)
	done := make(chan struct{})
	once := &sync.Once{}

	a = &Conn{send: ab, recv: ba, done: done, closeOnce: once}
	b = &Conn{send: ba, recv: ab, done: done, closeOnce: once}
	return a, b
}

// Send delivers a message to the peer. It returns ErrClosed if the pipe has
// been closed before or while waiting to deliver.
func (c *Conn) Send(msg Message) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- msg:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Recv blocks until a message arrives or the pipe is closed. The second
// return value is false once the pipe is closed and drained.
func (c *Conn) Recv() (Message, bool) {
	// Drain buffered messages even after close so in-flight work completes.
	select {
	case msg := <-c.recv:
		return msg, true
	default:
	}
	select {
	case msg := <-c.recv:
		return msg, true
	case <-c.done:
		// One final drain pass in case a send raced the close.
		select {
		case msg := <-c.recv:
			return msg, true
		default:
			return Message{}, false
		}
	}
}

// Close releases both ends. It is safe to call multiple times and from
// either end.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// Done is closed when either end closes the pipe.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// IsClosed reports whether the pipe has been closed.
func (c *Conn) IsClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
