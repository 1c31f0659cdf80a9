package config

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/SAP-F-2025/testportal-service/internal/events"
)

// Publisher kinds accepted by EVENTS_PUBLISHER
const (
	PublisherKafka = "kafka"
	PublisherMock  = "mock"
)

var errNoKafkaBrokers = errors.New("kafka publisher selected but KAFKA_BROKERS is empty")

// EventConfig controls where attempt and test lifecycle events go
type EventConfig struct {
	Enabled      bool
	Publisher    string
	KafkaBrokers string
	Topic        string
}

func (c *EventConfig) GetKafkaBrokers() []string {
	return splitList(c.KafkaBrokers)
}

// CreateEventPublisher builds the configured publisher. Disabled or unknown
// publishers fall back to the in-memory one.
func (c *EventConfig) CreateEventPublisher(logger *slog.Logger) (events.EventPublisher, error) {
	if !c.Enabled {
		logger.Info("Event publishing disabled, events are kept in memory")
		return events.NewMemoryPublisher(logger), nil
	}

	switch kind := strings.ToLower(strings.TrimSpace(c.Publisher)); kind {
	case PublisherKafka:
		brokers := c.GetKafkaBrokers()
		if len(brokers) == 0 {
			return nil, errNoKafkaBrokers
		}
		logger.Info("Publishing lifecycle events to Kafka", "brokers", brokers, "topic", c.Topic)
		publisher, err := events.NewKafkaEventPublisher(events.PublisherConfig{
			KafkaBrokers: brokers,
			TopicName:    c.Topic,
			Logger:       logger,
		})
		if err != nil {
			return nil, err
		}
		return publisher, nil
	case PublisherMock:
		return events.NewMemoryPublisher(logger), nil
	default:
		logger.Warn("Unknown event publisher, keeping events in memory", "publisher", kind)
		return events.NewMemoryPublisher(logger), nil
	}
}
