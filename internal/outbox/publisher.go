package outbox

import (
	"context"
	"time"

	"github.com/ksred/fexp-api/internal/types"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// Publisher delivers match events to downstream consumers
type Publisher interface {
	Publish(ctx context.Context, event types.MatchEvent) error
	Close() error
}

// KafkaPublisher writes events to a topic, keyed by match so a match's events stay ordered
// within a partition
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event types.MatchEvent) error {
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.MatchUUID),
		Value: []byte(event.Payload),
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(event.EventID)},
			{Key: "event_type", Value: []byte(event.Type)},
		},
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// LogPublisher logs events instead of sending them. Used when no brokers are configured.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, event types.MatchEvent) error {
	log.Info().
		Str("component", "outbox").
		Str("event_id", event.EventID).
		Str("event_type", string(event.Type)).
		Str("match_uuid", event.MatchUUID).
		RawJSON("payload", []byte(event.Payload)).
		Msg("match event")
	return nil
}

func (LogPublisher) Close() error {
	return nil
}

// NewPublisher returns a Kafka publisher, or a log publisher when brokers is empty
func NewPublisher(brokers []string, topic string) Publisher {
	if len(brokers) == 0 {
		return LogPublisher{}
	}
	return NewKafkaPublisher(brokers, topic)
}
