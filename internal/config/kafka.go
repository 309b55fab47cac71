package config

import (
	"os"
	"strings"

	"github.com/segmentio/kafka-go"

	"lifecycle-service/internal/bus"
)

func getKafkaBrokerURLs() []string {
	brokers := os.Getenv("KAFKA_BROKERS")
	if brokers == "" {
		brokers = "localhost:9092,localhost:9093,localhost:9094" // Default brokers
	}
	return strings.Split(brokers, ",")
}

// NewKafkaWriter returns a writer without a fixed topic; every message names
// its physical topic. The hash balancer keeps one entity on one partition.
func NewKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

// NewKafkaReaderFactory opens consumer-group readers on brokers. A new group
// starts at the end of the log: sessions load current state over the API and
// only follow changes from then on.
func NewKafkaReaderFactory(brokers []string) bus.ReaderFactory {
	return func(topics []string, groupID string) bus.MessageReader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:     brokers,
			GroupID:     groupID,
			GroupTopics: topics,
			StartOffset: kafka.LastOffset,
			MinBytes:    1,
			MaxBytes:    10e6,
		})
	}
}
