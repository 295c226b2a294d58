package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// ErrUnavailable is returned by the fallback producer used when no broker
// could be reached.
var ErrUnavailable = errors.New("kafka is unavailable")

type Producer interface {
	SendMessage(ctx context.Context, topic, key string, message any) error
	Close() error
}

type kafkaProducer struct {
	writer *kafka.Writer
	logger logrus.FieldLogger
}

// NewProducer connects to the first broker, creates the given topics and
// returns a producer writing to them. When Kafka is unreachable a producer
// that rejects every message with ErrUnavailable is returned so the API keeps
// serving and callers can fail fast.
func NewProducer(brokers []string, topics []string, logger logrus.FieldLogger) Producer {
	if len(brokers) == 0 {
		logger.Warn("No Kafka brokers configured, using mock producer")
		return &mockProducer{logger: logger}
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		logger.WithError(err).Warn("Kafka connection failed, using mock producer")
		return &mockProducer{logger: logger}
	}
	defer conn.Close()

	configs := make([]kafka.TopicConfig, 0, len(topics))
	for _, topic := range topics {
		configs = append(configs, kafka.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1})
	}
	if err := conn.CreateTopics(configs...); err != nil {
		logger.WithError(err).Debug("Could not create topics (might already exist)")
	}

	logger.WithField("brokers", brokers).Info("Connected to Kafka")
	return &kafkaProducer{writer: writer, logger: logger}
}

func (p *kafkaProducer) SendMessage(ctx context.Context, topic, key string, message any) error {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: messageBytes,
		Time:  time.Now(),
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return err
	}

	p.logger.WithFields(logrus.Fields{"topic": topic, "key": key}).Debug("Message sent")
	return nil
}

func (p *kafkaProducer) Close() error {
	return p.writer.Close()
}

type mockProducer struct {
	logger logrus.FieldLogger
}

func (m *mockProducer) SendMessage(ctx context.Context, topic, key string, message any) error {
	m.logger.WithFields(logrus.Fields{"topic": topic, "key": key}).Debug("MOCK: message rejected")
	return fmt.Errorf("%w: message for %s not sent", ErrUnavailable, topic)
}

func (m *mockProducer) Close() error {
	return nil
}
