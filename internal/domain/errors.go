package domain

import (
	"errors"
	"fmt"
)

// Domain errors returned by the public API; check with errors.Is.
var (
	// ErrLinkClosed is returned for operations admitted after shutdown began.
	ErrLinkClosed = errors.New("framelink: link closed")

	// ErrUnexpectedAck is returned when a query receives a second bare Ack
	// where the application answer was expected. The peer violated the
	// handshake; resolving the operation keeps the caller from hanging.
	ErrUnexpectedAck = errors.New("framelink: unexpected ack in place of answer")

	// ErrPayloadTooLarge is returned when a payload exceeds MaxPayload.
	ErrPayloadTooLarge = errors.New("framelink: payload exceeds 255 bytes")
)

// TransportError reports that the underlying byte stream closed or faulted.
// It is fatal to the connection: the processing loop terminates and the error
// surfaces to the in-flight operation and to Shutdown.
type TransportError struct {
	Op  string // "read" or "write"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("framelink: transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransportError reports whether err is (or wraps) a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
