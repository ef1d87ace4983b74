// Package framelink implements a half-duplex, frame-oriented link protocol
// engine over a raw byte stream such as a serial line.
//
// A [Link] offers two primitives: Send transmits a frame and waits only for
// the link-level handshake, Query transmits a frame and waits for the
// device's answering frame. Frames the device sends on its own initiative
// are available through Subscribe.
//
// Example usage:
//
//	l, err := framelink.Dial(ctx, "localhost:3333")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer l.Shutdown(context.Background())
//
//	answer, err := l.Query(ctx, framelink.NewDataFrame([]byte{0x15}))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("%x\n", answer.Payload)
package framelink

import (
	"context"
	"io"

	"github.com/vbfox/framelink/internal/adapters/transport"
	"github.com/vbfox/framelink/internal/domain"
	"github.com/vbfox/framelink/internal/link"
	"github.com/vbfox/framelink/internal/ports"
	"github.com/vbfox/framelink/pkg/log"
)

// Frame is one protocol unit: a control marker or a data frame with checksum.
type Frame = domain.Frame

// Kind identifies the header of a frame.
type Kind = domain.Kind

// The four frame headers of the protocol.
const (
	KindData   = domain.KindData
	KindAck    = domain.KindAck
	KindNak    = domain.KindNak
	KindCancel = domain.KindCancel
)

// MaxPayload is the largest payload a data frame can carry.
const MaxPayload = domain.MaxPayload

// Errors returned by link operations; check with errors.Is / errors.As.
var (
	ErrLinkClosed      = domain.ErrLinkClosed
	ErrUnexpectedAck   = domain.ErrUnexpectedAck
	ErrPayloadTooLarge = domain.ErrPayloadTooLarge
)

// TransportError reports that the underlying byte stream closed or faulted.
type TransportError = domain.TransportError

// Transport is the duplex byte stream abstraction the engine runs over.
type Transport = ports.Transport

// Link sequences one operation at a time through the wire handshake.
type Link = link.Link

// Logger is the structured logging abstraction from pkg/log.
type Logger = log.Logger

// NewDataFrame builds a data frame for the payload with its checksum set.
func NewDataFrame(payload []byte) Frame {
	return domain.NewDataFrame(payload)
}

// Option configures optional behavior of a Link.
type Option func(*options)

type options struct {
	logger log.Logger
}

// WithLogger sets a custom logger for structured logging.
// If not provided, a no-op logger is used (no output).
func WithLogger(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// New creates a link over an existing transport and starts its processing
// goroutines. The link owns the transport; Shutdown closes it.
func New(t Transport, opts ...Option) *Link {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return link.New(t, o.logger)
}

// Dial connects to a TCP serial bridge and builds a link over it.
func Dial(ctx context.Context, address string, opts ...Option) (*Link, error) {
	conn, err := transport.Dial(ctx, address)
	if err != nil {
		return nil, err
	}
	return New(conn, opts...), nil
}

// Wrap builds a link over any open stream, such as a serial port handle.
func Wrap(rwc io.ReadWriteCloser, opts ...Option) *Link {
	return New(transport.NewConn(rwc), opts...)
}

// Pipe returns two connected in-memory transports for tests and simulations;
// hand one side to New and drive the other as the peer.
func Pipe() (Transport, Transport) {
	a, b := transport.Pipe()
	return a, b
}
