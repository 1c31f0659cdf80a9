package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
)

// EventPublisher sends lifecycle events to whatever consumes them
type EventPublisher interface {
	PublishEvent(ctx context.Context, event *Event) error
	Close() error
}

type PublisherConfig struct {
	KafkaBrokers []string
	TopicName    string
	Logger       *slog.Logger
}

// WatermillPublisher writes events as JSON messages to a single topic of
// any watermill backend. Production uses Kafka.
type WatermillPublisher struct {
	backend message.Publisher
	topic   string
	logger  *slog.Logger
}

func NewKafkaEventPublisher(cfg PublisherConfig) (*WatermillPublisher, error) {
	backend, err := kafka.NewPublisher(kafka.PublisherConfig{
		Brokers:   cfg.KafkaBrokers,
		Marshaler: kafka.DefaultMarshaler{},
	}, watermill.NewSlogLogger(cfg.Logger))
	if err != nil {
		return nil, fmt.Errorf("create kafka publisher: %w", err)
	}
	return NewWatermillPublisher(backend, cfg.TopicName, cfg.Logger), nil
}

func NewWatermillPublisher(backend message.Publisher, topic string, logger *slog.Logger) *WatermillPublisher {
	return &WatermillPublisher{backend: backend, topic: topic, logger: logger}
}

func (p *WatermillPublisher) PublishEvent(ctx context.Context, event *Event) error {
	msg, err := encodeEvent(ctx, event)
	if err != nil {
		return err
	}

	log := p.logger.With("event_id", event.ID, "event_type", event.Type, "topic", p.topic)
	if err := p.backend.Publish(p.topic, msg); err != nil {
		log.Error("Event not published", "error", err)
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	log.Debug("Event published")
	return nil
}

func (p *WatermillPublisher) Close() error {
	return p.backend.Close()
}

// encodeEvent keeps the envelope fields in metadata so consumers can route
// without decoding the payload
func encodeEvent(ctx context.Context, event *Event) (*message.Message, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", event.Type, err)
	}

	msg := message.NewMessage(event.ID, body)
	msg.SetContext(ctx)
	msg.Metadata = message.Metadata{
		"event_type": string(event.Type),
		"source":     event.Source,
		"version":    event.Version,
		"timestamp":  event.Timestamp.Format(time.RFC3339),
	}
	return msg, nil
}

// MemoryPublisher records events instead of sending them. It backs the
// disabled mode and the tests.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
	logger *slog.Logger
}

func NewMemoryPublisher(logger *slog.Logger) *MemoryPublisher {
	return &MemoryPublisher{logger: logger}
}

func (m *MemoryPublisher) PublishEvent(_ context.Context, event *Event) error {
	m.mu.Lock()
	m.events = append(m.events, *event)
	m.mu.Unlock()

	m.logger.Debug("Event recorded", "event_id", event.ID, "event_type", event.Type)
	return nil
}

func (m *MemoryPublisher) Close() error { return nil }

// Published returns a snapshot of everything recorded so far
func (m *MemoryPublisher) Published() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

func (m *MemoryPublisher) OfType(eventType EventType) []Event {
	var out []Event
	for _, e := range m.Published() {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (m *MemoryPublisher) Reset() {
	m.mu.Lock()
	m.events = nil
	m.mu.Unlock()
}
