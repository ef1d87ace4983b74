package link

import (
	"sync"

	"github.com/vbfox/framelink/internal/domain"
	"github.com/vbfox/framelink/internal/ports"
	"github.com/vbfox/framelink/pkg/log"
)

// subscriberBuffer is the per-subscriber channel capacity. A subscriber that
// falls further behind loses frames rather than stalling the processing loop.
const subscriberBuffer = 16

// broadcaster fans frames out to zero or more subscribers. Publishing never
// blocks; delivery order per subscriber matches publish order.
type broadcaster struct {
	logger ports.Logger

	mu     sync.Mutex
	subs   map[chan domain.Frame]struct{}
	closed bool
}

func newBroadcaster(logger ports.Logger) *broadcaster {
	return &broadcaster{
		logger: logger,
		subs:   make(map[chan domain.Frame]struct{}),
	}
}

// subscribe registers a new subscriber and returns its channel with a cancel
// function. The channel is closed on cancel and when the link shuts down;
// subscribing after shutdown yields an already-closed channel.
func (b *broadcaster) subscribe() (<-chan domain.Frame, func()) {
	ch := make(chan domain.Frame, subscriberBuffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subs[ch] = struct{}{}

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, live := b.subs[ch]; live {
			delete(b.subs, ch)
			close(ch)
		}
	}
	return ch, cancel
}

// publish delivers the frame to every subscriber without blocking. A frame
// that does not fit a subscriber's buffer is dropped for that subscriber.
func (b *broadcaster) publish(f domain.Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- f:
		default:
			b.logger.Warn("dropping unsolicited frame for slow subscriber",
				log.Int("payload_len", len(f.Payload)))
		}
	}
}

// close closes every subscriber channel and rejects future subscriptions.
func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}
