package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"
)

// Kafka publishes each message to a topic, keyed by creator id so a
// creator's items stay ordered within one partition.
type Kafka struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger
}

// DialKafka connects a synchronous producer to brokers.
func DialKafka(brokers []string, topic string, logger *slog.Logger) (*Kafka, error) {
	cfg := sarama.NewConfig()
	// SyncProducer requires Return.Successes
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Retry.Max = 3
	cfg.ClientID = "creatorwatch"

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka: connect %v: %w", brokers, err)
	}
	return NewKafka(producer, topic, logger), nil
}

// NewKafka wraps an existing producer. The sink owns producer from now on.
func NewKafka(producer sarama.SyncProducer, topic string, logger *slog.Logger) *Kafka {
	if logger == nil {
		logger = slog.Default()
	}
	return &Kafka{producer: producer, topic: topic, logger: logger}
}

func (k *Kafka) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("kafka: %w", err)
	}
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("kafka: marshal: %w", err)
	}

	partition, offset, err := k.producer.SendMessage(&sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(msg.CreatorID),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("message_id"), Value: []byte(msg.ID)},
		},
	})
	if err != nil {
		return fmt.Errorf("kafka: send to %s: %w", k.topic, err)
	}
	k.logger.Debug("kafka: message sent", "topic", k.topic, "partition", partition, "offset", offset, "item_id", msg.ItemID)
	return nil
}

func (k *Kafka) Close() error {
	return k.producer.Close()
}
