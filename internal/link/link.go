package link

import (
	"context"
	"errors"

	"github.com/vbfox/framelink/internal/codec"
	"github.com/vbfox/framelink/internal/domain"
	"github.com/vbfox/framelink/internal/ports"
	"github.com/vbfox/framelink/pkg/log"
)

// operation is one caller-initiated request waiting for or holding the
// single processing slot.
type operation struct {
	ctx        context.Context
	frame      domain.Frame
	wantsReply bool
	outcome    *outcomeSlot
}

// Link sequences exactly one operation at a time through the wire handshake,
// relays unsolicited inbound frames to subscribers, and owns the connection
// lifecycle.
//
// Two goroutines own the transport between them: the frame pump owns the read
// side and the processing loop owns the write side. Callers never touch the
// transport; they hand operations through the admission channel and wait on
// the operation's outcome slot. The Go runtime queues blocked channel senders
// first-come-first-served, which gives the admission gate its fairness.
type Link struct {
	transport ports.Transport
	codec     *codec.Codec
	logger    ports.Logger
	broadcast *broadcaster

	admit   chan *operation
	inbound chan domain.Frame

	lifetime context.Context
	fail     context.CancelCauseFunc
	loopDone chan struct{}
	pumpDone chan struct{}
}

// New creates a link over the transport and starts its goroutines. The link
// owns the transport from here on; Shutdown closes it.
func New(transport ports.Transport, logger ports.Logger) *Link {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	lifetime, fail := context.WithCancelCause(context.Background())
	l := &Link{
		transport: transport,
		codec:     codec.New(transport, logger),
		logger:    logger,
		broadcast: newBroadcaster(logger),
		admit:     make(chan *operation),
		inbound:   make(chan domain.Frame),
		lifetime:  lifetime,
		fail:      fail,
		loopDone:  make(chan struct{}),
		pumpDone:  make(chan struct{}),
	}
	go l.pump()
	go l.run()
	return l
}

// Send transmits a fire-and-forget frame. It suspends until the handshake
// for it resolves; the peer's answering frame (typically an Ack) is consumed
// by the handshake and not returned.
func (l *Link) Send(ctx context.Context, frame domain.Frame) error {
	_, err := l.submit(ctx, frame, false)
	return err
}

// Query transmits a frame and suspends until the peer's application-level
// answer arrives, returning that frame.
func (l *Link) Query(ctx context.Context, frame domain.Frame) (domain.Frame, error) {
	return l.submit(ctx, frame, true)
}

// Subscribe returns a channel of unsolicited inbound data frames in arrival
// order, plus a cancel function releasing the subscription. Delivery is
// best-effort per subscriber; the processing loop never waits for a slow one.
func (l *Link) Subscribe() (<-chan domain.Frame, func()) {
	return l.broadcast.subscribe()
}

// Shutdown cancels the processing loop, waits for in-flight work to unwind,
// and closes the transport. The in-flight operation (if any) resolves as
// failed; operations admitted afterwards fail with ErrLinkClosed. If the
// connection died from a transport fault, that fault is returned.
func (l *Link) Shutdown(ctx context.Context) error {
	l.fail(domain.ErrLinkClosed)

	select {
	case <-l.loopDone:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-l.pumpDone:
	case <-ctx.Done():
		return ctx.Err()
	}

	closeErr := l.transport.Close()
	if cause := context.Cause(l.lifetime); cause != nil && !errors.Is(cause, domain.ErrLinkClosed) {
		return cause
	}
	return closeErr
}

func (l *Link) submit(ctx context.Context, frame domain.Frame, wantsReply bool) (domain.Frame, error) {
	op := &operation{
		ctx:        ctx,
		frame:      frame,
		wantsReply: wantsReply,
		outcome:    newOutcomeSlot(),
	}

	select {
	case l.admit <- op:
	case <-ctx.Done():
		return domain.Frame{}, ctx.Err()
	case <-l.lifetime.Done():
		return domain.Frame{}, l.closeReason()
	}

	// From here the loop owns the operation and resolves it exactly once.
	return op.outcome.wait()
}

// pump owns the read side of the transport: it decodes frames continuously
// and feeds them to the processing loop. A read fault is fatal and tears the
// link down with its cause.
func (l *Link) pump() {
	defer close(l.pumpDone)
	for {
		f, err := l.codec.ReadFrame(l.lifetime)
		if err != nil {
			if l.lifetime.Err() == nil {
				l.logger.Error("transport read failed", log.Err(err))
				l.fail(err)
			}
			return
		}
		select {
		case l.inbound <- f:
		case <-l.lifetime.Done():
			return
		}
	}
}

// run is the processing loop: idle until an operation is admitted or an
// unsolicited frame arrives, then handle exactly one of them.
func (l *Link) run() {
	defer close(l.loopDone)
	defer l.broadcast.close()
	for {
		select {
		case <-l.lifetime.Done():
			return
		case f := <-l.inbound:
			l.relayUnsolicited(f)
		case op := <-l.admit:
			l.process(op)
		}
	}
}

// process drives one operation through the handshake: write the frame, await
// the response frames, ack or nak received data, resolve the outcome once.
func (l *Link) process(op *operation) {
	ctx, cancel := l.opContext(op)
	defer cancel()

	if err := l.codec.WriteFrame(ctx, op.frame); err != nil {
		op.outcome.resolve(domain.Frame{}, l.mapFailure(op, err))
		return
	}

	sawAck := false
	for {
		f, err := l.awaitFrame(ctx)
		if err != nil {
			op.outcome.resolve(domain.Frame{}, l.mapFailure(op, err))
			return
		}

		if f.Kind == domain.KindAck && op.wantsReply {
			if sawAck {
				// The peer acked twice without answering; resolving as a
				// protocol error beats hanging the caller.
				op.outcome.resolve(domain.Frame{}, domain.ErrUnexpectedAck)
				return
			}
			// Link-level acknowledgment of our write; the application
			// answer follows as a second frame.
			sawAck = true
			continue
		}

		if f.IsData() {
			valid, err := l.acknowledge(ctx, f)
			if err != nil {
				op.outcome.resolve(domain.Frame{}, l.mapFailure(op, err))
				return
			}
			if !valid {
				// Nak asks for retransmission; keep awaiting the answer.
				continue
			}
		}

		op.outcome.resolve(f, nil)
		return
	}
}

// relayUnsolicited handles a data frame read while no operation is in
// flight: validate, ack or nak, and publish only valid frames.
func (l *Link) relayUnsolicited(f domain.Frame) {
	if !f.IsData() {
		l.logger.Debug("ignoring stray control frame", log.String("kind", f.Kind.String()))
		return
	}
	valid, err := l.acknowledge(l.lifetime, f)
	if err != nil {
		return
	}
	if !valid {
		return
	}
	l.broadcast.publish(f)
}

// acknowledge is the shared validate → ack-or-nak step for received data
// frames: a valid checksum is answered with Ack, a mismatch with Nak. The
// mismatch is local policy, never an error surfaced to callers.
func (l *Link) acknowledge(ctx context.Context, f domain.Frame) (bool, error) {
	if !f.ChecksumValid() {
		l.logger.Warn("checksum mismatch, requesting retransmission",
			log.Int("payload_len", len(f.Payload)))
		return false, l.codec.WriteFrame(ctx, domain.NakFrame)
	}
	return true, l.codec.WriteFrame(ctx, domain.AckFrame)
}

func (l *Link) awaitFrame(ctx context.Context) (domain.Frame, error) {
	select {
	case f := <-l.inbound:
		return f, nil
	case <-ctx.Done():
		return domain.Frame{}, ctx.Err()
	}
}

// opContext combines the operation's cancellation with the link lifetime so
// either signal aborts the current handshake step.
func (l *Link) opContext(op *operation) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(op.ctx)
	stop := context.AfterFunc(l.lifetime, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// mapFailure translates a handshake step failure into the operation's
// outcome error, distinguishing "abandon this operation" from "tear down the
// connection". Transport faults latch as the link's cause of death.
func (l *Link) mapFailure(op *operation, err error) error {
	if domain.IsTransportError(err) {
		l.fail(err)
		return err
	}
	if l.lifetime.Err() != nil {
		return l.closeReason()
	}
	if op.ctx.Err() != nil {
		return op.ctx.Err()
	}
	return err
}

func (l *Link) closeReason() error {
	if cause := context.Cause(l.lifetime); cause != nil {
		return cause
	}
	return domain.ErrLinkClosed
}
