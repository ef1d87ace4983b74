package transport

import (
	"bytes"
	"context"
	"io"
	"sync"
)

// Pipe returns two connected in-memory transports: bytes written on one side
// become readable on the other. Used by tests and by callers embedding the
// engine against a simulated peer.
func Pipe() (*PipeEnd, *PipeEnd) {
	a := newPipeEnd()
	b := newPipeEnd()
	a.peer, b.peer = b, a
	return a, b
}

// PipeEnd is one side of an in-memory duplex byte stream.
type PipeEnd struct {
	peer *PipeEnd

	mu     sync.Mutex
	buf    bytes.Buffer // bytes waiting to be read from this end
	data   chan struct{}
	closed chan struct{}
	once   sync.Once
}

func newPipeEnd() *PipeEnd {
	return &PipeEnd{
		data:   make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

// BytesToRead returns how many bytes are buffered for read.
func (p *PipeEnd) BytesToRead() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.Len()
}

// Read reads up to len(b) bytes, suspending until data arrives, the context
// is cancelled, or the pipe is closed. A closed pipe reports io.EOF once the
// buffer is drained.
func (p *PipeEnd) Read(ctx context.Context, b []byte) (int, error) {
	for {
		p.mu.Lock()
		if p.buf.Len() > 0 {
			n, _ := p.buf.Read(b)
			p.mu.Unlock()
			return n, nil
		}
		p.mu.Unlock()

		select {
		case <-p.closed:
			return 0, io.EOF
		case <-p.peer.closed:
			return 0, io.EOF
		default:
		}

		select {
		case <-p.data:
		case <-p.closed:
			return 0, io.EOF
		case <-p.peer.closed:
			return 0, io.EOF
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// Write delivers all of b to the peer's read buffer.
func (p *PipeEnd) Write(ctx context.Context, b []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	peer := p.peer
	select {
	case <-peer.closed:
		return 0, io.ErrClosedPipe
	case <-p.closed:
		return 0, io.ErrClosedPipe
	default:
	}

	peer.mu.Lock()
	peer.buf.Write(b)
	peer.mu.Unlock()
	peer.wake()
	return len(b), nil
}

// Close closes both directions of this end. Blocked reads on either side
// observe the close.
func (p *PipeEnd) Close() error {
	p.once.Do(func() {
		close(p.closed)
		p.peer.wake()
	})
	return nil
}

// wake nudges a blocked reader; the buffered channel makes the signal sticky
// so a writer racing a reader's empty-buffer check is never lost.
func (p *PipeEnd) wake() {
	select {
	case p.data <- struct{}{}:
	default:
	}
}
