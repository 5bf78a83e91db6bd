package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// KafkaPublisher streams balance changes to a Kafka topic, keyed by account
// code so that a consumer sees one account's changes in commit order.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher builds an asynchronous writer for the given brokers.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			Async:        true,
		},
	}
}

// Publish implements Publisher.
func (p *KafkaPublisher) Publish(ctx context.Context, event BalanceChanged) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode balance event: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.AccountCode),
		Value: data,
	})
}

// Close flushes pending messages.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
