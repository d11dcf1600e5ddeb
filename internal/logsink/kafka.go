package logsink

import (
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"

	"github.com/flowforge/enginecore/internal/execlog"
)

// KafkaConfig configures the KafkaSink's producer.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// KafkaSink publishes each LogEntry to a Kafka topic, keyed by
// execution id so all of one execution's entries land on the same
// partition. Adapted from the publisher-per-event pattern used
// elsewhere in the ambient stack, narrowed to the one message shape
// this sink needs.
type KafkaSink struct {
	producer sarama.AsyncProducer
	topic    string
}

// NewKafkaSink dials brokers and returns a ready KafkaSink.
func NewKafkaSink(cfg KafkaConfig) (*KafkaSink, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Retry.Max = 5
	saramaConfig.Producer.Return.Successes = false
	saramaConfig.Producer.Return.Errors = false
	saramaConfig.Producer.Compression = sarama.CompressionSnappy

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("logsink: create kafka producer: %w", err)
	}

	return &KafkaSink{producer: producer, topic: cfg.Topic}, nil
}

func (s *KafkaSink) Handle(entry execlog.LogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(entry.ExecutionID),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("category"), Value: []byte(entry.Category)},
			{Key: []byte("level"), Value: []byte(entry.Level)},
		},
	}
	select {
	case s.producer.Input() <- msg:
		return nil
	default:
		return fmt.Errorf("logsink: kafka producer input full")
	}
}

// Close releases the underlying producer.
func (s *KafkaSink) Close() error {
	return s.producer.Close()
}
