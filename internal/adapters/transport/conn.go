package transport

import (
	"bytes"
	"context"
	"io"
	"net"
	"sync"
)

// readChunk is the size of the fill goroutine's read buffer. Frames top out
// at 258 bytes on the wire, so one chunk always holds a full frame.
const readChunk = 512

// Conn adapts an io.ReadWriteCloser (a net.Conn, a serial port handle) to the
// Transport interface. A background fill goroutine pumps the stream into an
// internal buffer, which is what provides BytesToRead and cancellable reads
// over a plain blocking stream.
type Conn struct {
	rwc io.ReadWriteCloser

	mu      sync.Mutex
	buf     bytes.Buffer
	fillErr error // sticky; reported once the buffer drains

	data chan struct{}
	done chan struct{}
}

// NewConn wraps an open stream and starts the fill goroutine.
func NewConn(rwc io.ReadWriteCloser) *Conn {
	c := &Conn{
		rwc:  rwc,
		data: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go c.fill()
	return c
}

// Dial opens a TCP connection to a serial bridge and wraps it.
func Dial(ctx context.Context, address string) (*Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	return NewConn(conn), nil
}

func (c *Conn) fill() {
	defer close(c.done)
	chunk := make([]byte, readChunk)
	for {
		n, err := c.rwc.Read(chunk)
		c.mu.Lock()
		if n > 0 {
			c.buf.Write(chunk[:n])
		}
		if err != nil {
			c.fillErr = err
			c.mu.Unlock()
			c.wake()
			return
		}
		c.mu.Unlock()
		c.wake()
	}
}

// BytesToRead returns how many bytes are buffered for read.
func (c *Conn) BytesToRead() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Len()
}

// Read reads up to len(p) buffered bytes, suspending until the fill
// goroutine delivers data, the stream fails, or the context is cancelled.
func (c *Conn) Read(ctx context.Context, p []byte) (int, error) {
	for {
		c.mu.Lock()
		if c.buf.Len() > 0 {
			n, _ := c.buf.Read(p)
			c.mu.Unlock()
			return n, nil
		}
		err := c.fillErr
		c.mu.Unlock()
		if err != nil {
			return 0, err
		}

		select {
		case <-c.data:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// Write writes all of p to the underlying stream. The write is not torn on
// cancellation; the context only gates starting it.
func (c *Conn) Write(ctx context.Context, p []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return c.rwc.Write(p)
}

// Close closes the underlying stream; the fill goroutine exits on its next
// read and blocked readers observe the resulting error.
func (c *Conn) Close() error {
	err := c.rwc.Close()
	<-c.done
	return err
}

func (c *Conn) wake() {
	select {
	case c.data <- struct{}{}:
	default:
	}
}
