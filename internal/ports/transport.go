package ports

import "context"

// Transport is the duplex byte stream the frame codec runs over, typically a
// serial line or a TCP connection to a serial bridge.
//
// The engine gives the read side and the write side each a single owner
// goroutine; implementations do not need to support concurrent calls to the
// same method, but Read and Write may be called concurrently with each other.
type Transport interface {
	// BytesToRead returns how many bytes are currently buffered for read
	// without suspending.
	BytesToRead() int

	// Read reads up to len(p) bytes, suspending until at least one byte is
	// available, the context is cancelled, or the stream fails.
	Read(ctx context.Context, p []byte) (int, error)

	// Write writes all of p, suspending as needed. A frame is always handed
	// to Write as a single call so a started frame is never torn mid-byte.
	Write(ctx context.Context, p []byte) (int, error)

	// Close releases the underlying stream. Blocked reads and writes fail
	// after Close.
	Close() error
}
