package report

import (
	"context"
	"fmt"
	"sync"

	"github.com/segmentio/kafka-go"
)

// messageWriter is the part of *kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes each report as one message keyed by txid.
type KafkaSink struct {
	writer messageWriter
	mu     sync.Mutex
}

// NewKafkaSink returns a sink publishing to topic on brokerAddress.
func NewKafkaSink(brokerAddress, topic string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokerAddress),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

func (k *KafkaSink) Deliver(ctx context.Context, key string, body []byte) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.writer == nil {
		return fmt.Errorf("kafka sink is closed")
	}
	err := k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: body,
	})
	if err != nil {
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}
	return nil
}

func (k *KafkaSink) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.writer != nil {
		err := k.writer.Close()
		k.writer = nil
		return err
	}
	return nil
}
