package notify

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// Kafka publishes events to a notification topic. Messages are keyed by
// recipient so per-user ordering is preserved within a partition.
type Kafka struct {
	writer *kafka.Writer
}

// NewKafka builds a producer for the given brokers and topic.
func NewKafka(brokers []string, topic string) *Kafka {
	return &Kafka{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			Async:        true, // fire-and-forget
		},
	}
}

func (k *Kafka) Publish(ctx context.Context, ev Event) error {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	value, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(ev.RecipientID, 10)),
		Value: value,
	})
}

// Close flushes and shuts the underlying writer down.
func (k *Kafka) Close() error { return k.writer.Close() }
