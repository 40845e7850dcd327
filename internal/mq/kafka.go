package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/glendonC/mallards/internal/contracts"
)

// NewWriter hashes on the message key so every message of one dataset
// lands on the same partition and keeps its order.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 100 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
}

func NewReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
		MaxWait:        time.Second,
	})
}

// Publisher is the subset of *kafka.Writer the services depend on.
type Publisher interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

func PublishJSON(ctx context.Context, writer Publisher, key string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", key, err)
	}

	return writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: body,
		Time:  time.Now().UTC(),
	})
}

// EventNotices flattens a report into one notice per event, overall
// events first, then per group in report order.
func EventNotices(report contracts.AlignmentReport, emitted time.Time) []contracts.EventNotice {
	var out []contracts.EventNotice
	add := func(group string, events []contracts.Event) {
		for _, ev := range events {
			out = append(out, contracts.EventNotice{
				DatasetID: report.DatasetID,
				GroupKey:  group,
				TimeRange: report.TimeRange,
				Detector:  report.Detector,
				Event:     ev,
				Emitted:   emitted,
			})
		}
	}
	add("", report.Events)
	for _, g := range report.Groups {
		add(g.Dimension+"="+g.Value, g.Events)
	}
	return out
}

// PublishEvents writes every event of the report in a single batch keyed
// by dataset.
func PublishEvents(ctx context.Context, writer Publisher, report contracts.AlignmentReport) (int, error) {
	notices := EventNotices(report, time.Now().UTC())
	if len(notices) == 0 {
		return 0, nil
	}
	msgs := make([]kafka.Message, 0, len(notices))
	for _, n := range notices {
		body, err := json.Marshal(n)
		if err != nil {
			return 0, fmt.Errorf("encode event notice: %w", err)
		}
		msgs = append(msgs, kafka.Message{Key: []byte(n.DatasetID), Value: body, Time: n.Emitted})
	}
	if err := writer.WriteMessages(ctx, msgs...); err != nil {
		return 0, fmt.Errorf("publish events: %w", err)
	}
	return len(msgs), nil
}

func ParseMessageJSON[T any](msg kafka.Message) (T, error) {
	var payload T
	err := json.Unmarshal(msg.Value, &payload)
	return payload, err
}
