package link

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vbfox/framelink/internal/adapters/transport"
	"github.com/vbfox/framelink/internal/codec"
	"github.com/vbfox/framelink/internal/domain"
)

const testTimeout = 2 * time.Second

// peer drives the remote end of the pipe, playing the device's role in
// handshakes.
type peer struct {
	t     *testing.T
	end   *transport.PipeEnd
	codec *codec.Codec
}

func newTestLink(t *testing.T) (*Link, *peer) {
	t.Helper()
	local, remote := transport.Pipe()
	l := New(local, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
		defer cancel()
		l.Shutdown(ctx)
		remote.Close()
	})
	return l, &peer{t: t, end: remote, codec: codec.New(remote, nil)}
}

func (p *peer) read() domain.Frame {
	p.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	f, err := p.codec.ReadFrame(ctx)
	if err != nil {
		p.t.Fatalf("peer read: %v", err)
	}
	return f
}

func (p *peer) write(f domain.Frame) {
	p.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	if err := p.codec.WriteFrame(ctx, f); err != nil {
		p.t.Fatalf("peer write: %v", err)
	}
}

// writeRaw puts bytes on the wire verbatim, for malformed frames.
func (p *peer) writeRaw(b []byte) {
	p.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	if _, err := p.end.Write(ctx, b); err != nil {
		p.t.Fatalf("peer raw write: %v", err)
	}
}

func TestQuery_AckThenData(t *testing.T) {
	l, p := newTestLink(t)
	answer := []byte{0x10, 0x20}

	go func() {
		p.read() // the query frame
		p.write(domain.AckFrame)
		p.write(domain.NewDataFrame(answer))
	}()

	got, err := l.Query(context.Background(), domain.NewDataFrame([]byte{0x01}))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got.Payload, answer) {
		t.Errorf("answer payload = %v, want %v", got.Payload, answer)
	}

	// The answering data frame must be acked back.
	if f := p.read(); f.Kind != domain.KindAck {
		t.Errorf("peer received %v, want Ack", f.Kind)
	}
}

func TestQuery_DirectDataWithoutAck(t *testing.T) {
	l, p := newTestLink(t)
	answer := []byte{0x42}

	go func() {
		p.read()
		p.write(domain.NewDataFrame(answer))
	}()

	got, err := l.Query(context.Background(), domain.NewDataFrame([]byte{0x02}))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got.Payload, answer) {
		t.Errorf("answer payload = %v, want %v", got.Payload, answer)
	}
	if f := p.read(); f.Kind != domain.KindAck {
		t.Errorf("peer received %v, want Ack", f.Kind)
	}
}

func TestQuery_AckAckIsProtocolError(t *testing.T) {
	l, p := newTestLink(t)

	go func() {
		p.read()
		p.write(domain.AckFrame)
		p.write(domain.AckFrame)
	}()

	_, err := l.Query(context.Background(), domain.NewDataFrame([]byte{0x03}))
	if !errors.Is(err, domain.ErrUnexpectedAck) {
		t.Errorf("err = %v, want ErrUnexpectedAck", err)
	}
}

func TestSend_ResolvedByAck(t *testing.T) {
	l, p := newTestLink(t)

	go func() {
		p.read()
		p.write(domain.AckFrame)
	}()

	start := time.Now()
	if err := l.Send(context.Background(), domain.NewDataFrame([]byte{0x04})); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > testTimeout/2 {
		t.Errorf("send waited %v for a second frame it must not expect", elapsed)
	}
}

func TestQuery_CorruptAnswerNakedThenRetransmitted(t *testing.T) {
	l, p := newTestLink(t)
	answer := []byte{0x55, 0x66}

	peerDone := make(chan struct{})
	go func() {
		defer close(peerDone)
		p.read()
		p.write(domain.AckFrame)
		// Corrupt answer: checksum off by one.
		p.writeRaw([]byte{domain.MarkerData, 0x02, 0x55, 0x66, domain.Checksum(answer) ^ 0x01})
	}()

	done := make(chan struct{})
	var got domain.Frame
	var qerr error
	go func() {
		defer close(done)
		got, qerr = l.Query(context.Background(), domain.NewDataFrame([]byte{0x05}))
	}()

	// The corrupt frame must be answered with Nak, then the retransmission
	// completes the query.
	<-peerDone
	if f := p.read(); f.Kind != domain.KindNak {
		t.Fatalf("peer received %v, want Nak", f.Kind)
	}
	p.write(domain.NewDataFrame(answer))

	<-done
	if qerr != nil {
		t.Fatal(qerr)
	}
	if !bytes.Equal(got.Payload, answer) {
		t.Errorf("answer payload = %v, want %v", got.Payload, answer)
	}
	if f := p.read(); f.Kind != domain.KindAck {
		t.Errorf("peer received %v, want Ack for retransmission", f.Kind)
	}
}

func TestOperations_SingleInFlight(t *testing.T) {
	l, p := newTestLink(t)
	const n = 5

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := l.Send(context.Background(), domain.NewDataFrame([]byte{byte(i)})); err != nil {
				t.Errorf("send %d: %v", i, err)
			}
		}(i)
	}

	seen := make(map[byte]bool)
	for i := 0; i < n; i++ {
		f := p.read()
		if f.Kind != domain.KindData {
			t.Fatalf("peer received %v, want Data", f.Kind)
		}
		// While this operation is unresolved no other operation may have
		// started writing.
		time.Sleep(5 * time.Millisecond)
		if waiting := p.end.BytesToRead(); waiting != 0 {
			t.Errorf("operation %d: %d bytes on the wire before handshake resolved", i, waiting)
		}
		if seen[f.Payload[0]] {
			t.Errorf("payload %d transmitted twice", f.Payload[0])
		}
		seen[f.Payload[0]] = true
		p.write(domain.AckFrame)
	}
	wg.Wait()

	if len(seen) != n {
		t.Errorf("distinct operations on the wire = %d, want %d", len(seen), n)
	}
}

func TestQuery_CancelledLeavesLoopHealthy(t *testing.T) {
	l, p := newTestLink(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		p.read() // swallow the query, never answer
		cancel()
	}()

	_, err := l.Query(ctx, domain.NewDataFrame([]byte{0x06}))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}

	// The loop must still process the next operation.
	go func() {
		p.read()
		p.write(domain.AckFrame)
	}()
	if err := l.Send(context.Background(), domain.NewDataFrame([]byte{0x07})); err != nil {
		t.Errorf("send after cancelled query: %v", err)
	}
}

func TestShutdown_ResolvesInFlightAndRejectsLater(t *testing.T) {
	local, remote := transport.Pipe()
	defer remote.Close()
	l := New(local, nil)
	p := &peer{t: t, end: remote, codec: codec.New(remote, nil)}

	queryDone := make(chan error, 1)
	go func() {
		_, err := l.Query(context.Background(), domain.NewDataFrame([]byte{0x08}))
		queryDone <- err
	}()
	p.read() // query is on the wire and in flight

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	if err := l.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	select {
	case err := <-queryDone:
		if !errors.Is(err, domain.ErrLinkClosed) {
			t.Errorf("in-flight query err = %v, want ErrLinkClosed", err)
		}
	case <-time.After(testTimeout):
		t.Fatal("in-flight query not resolved by shutdown")
	}

	if err := l.Send(context.Background(), domain.NewDataFrame([]byte{0x09})); !errors.Is(err, domain.ErrLinkClosed) {
		t.Errorf("post-shutdown send err = %v, want ErrLinkClosed", err)
	}
}

func TestUnsolicited_ValidFrameAckedAndPublished(t *testing.T) {
	l, p := newTestLink(t)
	frames, cancel := l.Subscribe()
	defer cancel()

	payload := []byte{0xAA, 0xBB}
	p.write(domain.NewDataFrame(payload))

	if f := p.read(); f.Kind != domain.KindAck {
		t.Errorf("peer received %v, want Ack", f.Kind)
	}

	select {
	case f := <-frames:
		if !bytes.Equal(f.Payload, payload) {
			t.Errorf("published payload = %v, want %v", f.Payload, payload)
		}
	case <-time.After(testTimeout):
		t.Fatal("valid unsolicited frame not published")
	}

	// Exactly once.
	select {
	case f := <-frames:
		t.Errorf("unexpected second delivery: %v", f)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestUnsolicited_CorruptFrameNakedAndSuppressed(t *testing.T) {
	l, p := newTestLink(t)
	frames, cancel := l.Subscribe()
	defer cancel()

	payload := []byte{0xAA, 0xBB}
	p.writeRaw([]byte{domain.MarkerData, 0x02, 0xAA, 0xBB, domain.Checksum(payload) ^ 0xFF})

	if f := p.read(); f.Kind != domain.KindNak {
		t.Errorf("peer received %v, want Nak", f.Kind)
	}

	select {
	case f := <-frames:
		t.Errorf("corrupt frame delivered to subscriber: %v", f)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestUnsolicited_StrayControlFrameIgnored(t *testing.T) {
	l, p := newTestLink(t)
	frames, cancel := l.Subscribe()
	defer cancel()

	p.write(domain.CancelFrame)

	select {
	case f := <-frames:
		t.Errorf("stray control frame delivered: %v", f)
	case <-time.After(20 * time.Millisecond):
	}

	// The loop is still live for real traffic.
	go func() {
		p.read()
		p.write(domain.AckFrame)
	}()
	if err := l.Send(context.Background(), domain.NewDataFrame([]byte{0x0A})); err != nil {
		t.Errorf("send after stray control frame: %v", err)
	}
}

func TestTransportFault_FailsInFlightAndShutdown(t *testing.T) {
	local, remote := transport.Pipe()
	l := New(local, nil)
	p := &peer{t: t, end: remote, codec: codec.New(remote, nil)}

	queryDone := make(chan error, 1)
	go func() {
		_, err := l.Query(context.Background(), domain.NewDataFrame([]byte{0x0B}))
		queryDone <- err
	}()
	p.read()
	remote.Close() // the line drops mid-handshake

	select {
	case err := <-queryDone:
		if !domain.IsTransportError(err) {
			t.Errorf("in-flight query err = %v, want TransportError", err)
		}
	case <-time.After(testTimeout):
		t.Fatal("in-flight query not resolved by transport fault")
	}

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	if err := l.Shutdown(ctx); !domain.IsTransportError(err) {
		t.Errorf("shutdown err = %v, want TransportError", err)
	}
}
