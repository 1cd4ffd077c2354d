// Package eventbus mirrors orchestrator progress events onto a NATS
// JetStream subject via Watermill, for out-of-process observers (a
// dashboard, a second CLI invocation watching a long run). It is purely
// additive: a publish failure is logged, never surfaced to
// the orchestrator, and the archive it produces is unaffected whether
// or not this package is wired up at all.
package eventbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"

	"github.com/dwca-toolkit/downloader/internal/config"
	"github.com/dwca-toolkit/downloader/internal/logging"
	"github.com/dwca-toolkit/downloader/internal/orchestrator"
)

// wireEvent is the JSON shape published to the subject. Only coarse
// progress counters cross the bus, never occurrence rows.
type wireEvent struct {
	Stage               string `json:"stage"`
	ObservationsCurrent int    `json:"observations_current"`
	ObservationsTotal   int    `json:"observations_total"`
	PhotosCurrent       int    `json:"photos_current"`
	PhotosTotal         int    `json:"photos_total"`
}

// Publisher publishes orchestrator.Progress events to a NATS subject.
// It satisfies orchestrator.EventPublisher.
type Publisher struct {
	publisher message.Publisher
	subject   string
	log       *logging.EventLogger

	mu     sync.RWMutex
	closed bool
}

// NewPublisher connects to the configured NATS server and returns a
// Publisher ready to mirror progress events.
func NewPublisher(cfg config.EventBusConfig) (*Publisher, error) {
	logger := watermill.NewStdLogger(false, false)

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(5),
		natsgo.ReconnectWait(time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logging.Warn().Err(err).Msg("eventbus: NATS disconnected")
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logging.Info().Str("url", nc.ConnectedUrl()).Msg("eventbus: NATS reconnected")
		}),
	}

	wmConfig := nats.PublisherConfig{
		URL:         cfg.NATSURL,
		NatsOptions: natsOpts,
		Marshaler:   &nats.NATSMarshaler{},
		JetStream: nats.JetStreamConfig{
			Disabled:      false,
			AutoProvision: true,
		},
	}

	pub, err := nats.NewPublisher(wmConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("eventbus: create watermill publisher: %w", err)
	}

	return &Publisher{publisher: pub, subject: cfg.Subject, log: logging.NewEventLogger()}, nil
}

// newWithPublisher wraps an already-constructed Watermill publisher.
// Exercised directly by tests with a fake message.Publisher; production
// callers use NewPublisher.
func newWithPublisher(pub message.Publisher, subject string) *Publisher {
	return &Publisher{publisher: pub, subject: subject, log: logging.NewEventLogger()}
}

// Publish mirrors one progress event. Failures are logged but never
// returned to the orchestrator — per package doc, a broken
// event bus must never abort or slow the download.
func (p *Publisher) Publish(ctx context.Context, progress orchestrator.Progress) {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return
	}

	payload := wireEvent{
		Stage:               string(progress.Stage),
		ObservationsCurrent: progress.ObservationsCurrent,
		ObservationsTotal:   progress.ObservationsTotal,
		PhotosCurrent:       progress.PhotosCurrent,
		PhotosTotal:         progress.PhotosTotal,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		p.log.LogPublishFailed(ctx, payload.Stage, err)
		return
	}

	msg := message.NewMessage(uuid.NewString(), data)
	if err := p.publisher.Publish(p.subject, msg); err != nil {
		p.log.LogPublishFailed(ctx, payload.Stage, err)
		return
	}
	p.log.LogEventPublished(ctx, payload.Stage, p.subject)
}

// Close releases the underlying NATS connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.publisher.Close()
}
