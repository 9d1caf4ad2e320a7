// Package stream publishes every answer to a Kafka topic for downstream
// analytics.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// Record is the JSON value written per answer.
type Record struct {
	AnswerID        string    `json:"answer_id"`
	Question        string    `json:"question"`
	Mode            string    `json:"mode"`
	Refused         bool      `json:"refused"`
	Confidence      string    `json:"confidence"`
	Reason          string    `json:"reason"`
	Citations       []string  `json:"citations"`
	Periods         []string  `json:"periods"`
	Candidates      int       `json:"candidates"`
	Evidence        int       `json:"evidence"`
	FailedStage     string    `json:"failed_stage,omitempty"`
	SnapshotVersion string    `json:"snapshot_version"`
	DurationMS      int64     `json:"duration_ms"`
	AnsweredAt      time.Time `json:"answered_at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Publisher struct {
	writer messageWriter
	logger *slog.Logger
}

func NewPublisher(brokers []string, topic string, logger *slog.Logger) *Publisher {
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:     brokers,
		Topic:       topic,
		Balancer:    &kafka.Hash{},
		MaxAttempts: 3,
	})
	return &Publisher{writer: w, logger: logger}
}

// PublishAnswer writes one record keyed by answer ID, so every event for
// an answer lands on the same partition.
func (p *Publisher) PublishAnswer(ctx context.Context, rec Record) error {
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal answer record: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(rec.AnswerID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "mode", Value: []byte(rec.Mode)},
			{Key: "refused", Value: []byte(fmt.Sprintf("%t", rec.Refused))},
		},
		Time: rec.AnsweredAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write answer record: %w", err)
	}

	p.logger.Debug("answer streamed", "answer_id", rec.AnswerID)
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
