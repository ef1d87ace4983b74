package natsbridge

import (
	"context"
	"encoding/json"
	"time"

	"github.com/vbfox/framelink/internal/domain"
	"github.com/vbfox/framelink/internal/ports"
	"github.com/vbfox/framelink/pkg/log"
)

// Publisher is the subset of the NATS client the bridge needs.
// *nats.Conn satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Envelope is the JSON message published per unsolicited frame. Payload is
// base64-encoded by encoding/json.
type Envelope struct {
	ReceivedAt time.Time `json:"received_at"`
	Payload    []byte    `json:"payload"`
}

// Bridge republishes unsolicited frames from a link subscription to a NATS
// subject, so downstream consumers see device-initiated traffic without
// holding the serial line themselves.
type Bridge struct {
	publisher Publisher
	subject   string
	logger    ports.Logger
}

// New creates a bridge publishing to the given subject.
func New(publisher Publisher, subject string, logger ports.Logger) *Bridge {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Bridge{publisher: publisher, subject: subject, logger: logger}
}

// Run consumes frames until the channel closes or the context is cancelled.
// Publish failures are logged and skipped; a flaky broker must not stop
// frame consumption.
func (b *Bridge) Run(ctx context.Context, frames <-chan domain.Frame) {
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			b.publish(f)
		}
	}
}

func (b *Bridge) publish(f domain.Frame) {
	data, err := json.Marshal(Envelope{
		ReceivedAt: time.Now().UTC(),
		Payload:    f.Payload,
	})
	if err != nil {
		b.logger.Error("marshal frame envelope", log.Err(err))
		return
	}
	if err := b.publisher.Publish(b.subject, data); err != nil {
		b.logger.Warn("publish unsolicited frame", log.Err(err),
			log.String("subject", b.subject))
		return
	}
	b.logger.Debug("published unsolicited frame",
		log.String("subject", b.subject), log.Hex("payload", f.Payload))
}
