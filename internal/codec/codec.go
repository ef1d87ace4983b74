package codec

import (
	"context"
	"fmt"

	"github.com/vbfox/framelink/internal/domain"
	"github.com/vbfox/framelink/internal/ports"
	"github.com/vbfox/framelink/pkg/log"
)

// Codec converts bytes to frames and back over a Transport. It holds no
// protocol state beyond the stream position: control markers become frames on
// their own, a data marker pulls in length, payload and checksum.
//
// ReadFrame and WriteFrame each expect a single calling goroutine; the link's
// frame pump owns reads and its processing loop owns writes.
type Codec struct {
	transport ports.Transport
	logger    ports.Logger
}

// New creates a codec over the given transport.
func New(transport ports.Transport, logger ports.Logger) *Codec {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Codec{transport: transport, logger: logger}
}

// Encode serializes a frame to its wire form, computing the checksum for data
// frames. Pure function; does not touch the transport.
func Encode(f domain.Frame) ([]byte, error) {
	switch f.Kind {
	case domain.KindAck:
		return []byte{domain.MarkerAck}, nil
	case domain.KindNak:
		return []byte{domain.MarkerNak}, nil
	case domain.KindCancel:
		return []byte{domain.MarkerCancel}, nil
	case domain.KindData:
		if len(f.Payload) > domain.MaxPayload {
			return nil, domain.ErrPayloadTooLarge
		}
		buf := make([]byte, 0, len(f.Payload)+3)
		buf = append(buf, domain.MarkerData, byte(len(f.Payload)))
		buf = append(buf, f.Payload...)
		buf = append(buf, domain.Checksum(f.Payload))
		return buf, nil
	default:
		return nil, fmt.Errorf("framelink: cannot encode frame kind %#x", byte(f.Kind))
	}
}

// Decode parses one frame from the front of data, returning the frame and the
// remaining bytes. Returns ok=false when data does not yet hold a complete
// frame. Bytes before the first recognized marker are skipped.
func Decode(data []byte) (f domain.Frame, rest []byte, ok bool) {
	for len(data) > 0 {
		switch data[0] {
		case domain.MarkerAck:
			return domain.AckFrame, data[1:], true
		case domain.MarkerNak:
			return domain.NakFrame, data[1:], true
		case domain.MarkerCancel:
			return domain.CancelFrame, data[1:], true
		case domain.MarkerData:
			if len(data) < 2 {
				return domain.Frame{}, data, false
			}
			length := int(data[1])
			if len(data) < 2+length+1 {
				return domain.Frame{}, data, false
			}
			payload := append([]byte(nil), data[2:2+length]...)
			return domain.Frame{
				Kind:     domain.KindData,
				Payload:  payload,
				Checksum: data[2+length],
			}, data[2+length+1:], true
		default:
			data = data[1:]
		}
	}
	return domain.Frame{}, data, false
}

// ReadFrame suspends until a complete frame arrives, the context is
// cancelled, or the stream fails. Bytes that are not a marker are discarded
// while scanning for the start of the next frame; partial frame bytes are
// discarded on cancellation and the codec resynchronizes on the next marker.
func (c *Codec) ReadFrame(ctx context.Context) (domain.Frame, error) {
	for {
		marker, err := c.readByte(ctx)
		if err != nil {
			return domain.Frame{}, err
		}

		switch marker {
		case domain.MarkerAck:
			return domain.AckFrame, nil
		case domain.MarkerNak:
			return domain.NakFrame, nil
		case domain.MarkerCancel:
			return domain.CancelFrame, nil
		case domain.MarkerData:
			return c.readDataFrame(ctx)
		default:
			c.logger.Debug("discarding byte outside frame", log.Int("byte", int(marker)))
		}
	}
}

func (c *Codec) readDataFrame(ctx context.Context) (domain.Frame, error) {
	length, err := c.readByte(ctx)
	if err != nil {
		return domain.Frame{}, err
	}

	body := make([]byte, int(length)+1) // payload + checksum byte
	if err := c.readFull(ctx, body); err != nil {
		return domain.Frame{}, err
	}

	return domain.Frame{
		Kind:     domain.KindData,
		Payload:  body[:length],
		Checksum: body[length],
	}, nil
}

// WriteFrame serializes the frame and writes it to the stream in a single
// call. Cancellation is honored before the write starts; once started the
// write runs to completion so the peer never sees a torn frame.
func (c *Codec) WriteFrame(ctx context.Context, f domain.Frame) error {
	data, err := Encode(f)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.transport.Write(context.WithoutCancel(ctx), data); err != nil {
		return &domain.TransportError{Op: "write", Err: err}
	}
	return nil
}

func (c *Codec) readByte(ctx context.Context) (byte, error) {
	var buf [1]byte
	if err := c.readFull(ctx, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func (c *Codec) readFull(ctx context.Context, p []byte) error {
	for read := 0; read < len(p); {
		n, err := c.transport.Read(ctx, p[read:])
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &domain.TransportError{Op: "read", Err: err}
		}
		read += n
	}
	return nil
}
