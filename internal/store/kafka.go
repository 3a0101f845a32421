package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaRecorder publishes monitor events and record snapshots keyed by
// monitor id, so a partition sees one monitor's history in order.
type KafkaRecorder struct {
	writer messageWriter
}

// NewKafkaRecorder creates a synchronous producer for topic.
func NewKafkaRecorder(brokers []string, topic string) *KafkaRecorder {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		MaxAttempts:            5,
		ReadTimeout:            10 * time.Second,
		WriteTimeout:           10 * time.Second,
		Async:                  false,
		AllowAutoTopicCreation: true,
	}
	return &KafkaRecorder{writer: w}
}

func (k *KafkaRecorder) RecordMonitorEvent(ctx context.Context, monitorID string, fields Fields) error {
	return k.publish(ctx, "monitor_event", monitorID, fields)
}

func (k *KafkaRecorder) UpdateMonitorRecord(ctx context.Context, monitorID string, fields Fields) error {
	return k.publish(ctx, "monitor_record", monitorID, fields)
}

func (k *KafkaRecorder) publish(ctx context.Context, kind, monitorID string, fields Fields) error {
	value, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode %s: %w", kind, err)
	}
	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(monitorID),
		Value:   value,
		Headers: []kafka.Header{{Key: "type", Value: []byte(kind)}},
	})
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", kind, err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (k *KafkaRecorder) Close() error {
	return k.writer.Close()
}
