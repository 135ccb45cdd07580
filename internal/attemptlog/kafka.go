package attemptlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/MrWong99/learnchars/internal/assessment"
)

// MessageWriter is the subset of [kafka.Writer] used by KafkaPublisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ MessageWriter = (*kafka.Writer)(nil)

// KafkaPublisher writes each record as JSON keyed by attempt id, so every
// write for one attempt lands on the same partition.
type KafkaPublisher struct {
	w     MessageWriter
	topic string
}

var _ assessment.ResultSink = (*KafkaPublisher)(nil)

// NewKafkaPublisher builds a writer for topic on brokers.
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("attemptlog: kafka brokers must not be empty")
	}
	if topic == "" {
		return nil, errors.New("attemptlog: kafka topic must not be empty")
	}
	dialer := &kafka.Dialer{Timeout: 10 * time.Second, DualStack: true}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    &kafka.Transport{Dial: dialer.DialFunc},
	}
	return &KafkaPublisher{w: w, topic: topic}, nil
}

// NewKafkaPublisherWithWriter wraps an existing writer.
func NewKafkaPublisherWithWriter(w MessageWriter, topic string) *KafkaPublisher {
	return &KafkaPublisher{w: w, topic: topic}
}

// Record implements assessment.ResultSink.
func (p *KafkaPublisher) Record(ctx context.Context, rec assessment.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("attemptlog: marshal %s: %w", rec.AttemptID, err)
	}
	msg := kafka.Message{
		Key:   []byte(rec.AttemptID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "outcome", Value: []byte(rec.Outcome)},
			{Key: "tier", Value: []byte(rec.Tier)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("attemptlog: kafka write %s: %w", p.topic, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error { return p.w.Close() }
