// Package events publishes finished extraction results to Kafka. When Kafka
// is disabled the publisher only logs.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/Asad19772505/MOM-Live/internal/actionitems"
)

// ResultEvent announces one completed pipeline run
type ResultEvent struct {
	SessionID   string             `json:"session_id"`
	Source      string             `json:"source"`
	OK          bool               `json:"ok"`
	Items       []actionitems.Item `json:"items,omitempty"`
	Failure     string             `json:"failure,omitempty"`
	Transcript  string             `json:"transcript_preview"`
	CompletedAt time.Time          `json:"completed_at"`
}

// MessageWriter is the part of kafka.Writer the publisher uses
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Recorder receives publish observations for metrics
type Recorder interface {
	RecordEventPublish(topic string, err error, duration time.Duration)
}

// Config holds Kafka publisher configuration
type Config struct {
	Enabled bool
	Brokers []string
	Topic   string
}

// Publisher writes result events keyed by session id
type Publisher struct {
	writer   MessageWriter
	topic    string
	enabled  bool
	recorder Recorder
	logger   zerolog.Logger
}

// New creates a publisher. Disabled config or no brokers gives a log-only
// publisher.
func New(cfg Config, recorder Recorder, logger zerolog.Logger) *Publisher {
	logger = logger.With().Str("component", "events").Logger()

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		logger.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{topic: cfg.Topic, recorder: recorder, logger: logger}
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    &kafka.Transport{Dial: dialer.DialFunc},
	}

	logger.Info().
		Strs("brokers", cfg.Brokers).
		Str("topic", cfg.Topic).
		Msg("Kafka publisher initialized")

	return NewWithWriter(writer, cfg.Topic, recorder, logger)
}

// NewWithWriter creates an enabled publisher around an existing writer
func NewWithWriter(writer MessageWriter, topic string, recorder Recorder, logger zerolog.Logger) *Publisher {
	return &Publisher{
		writer:   writer,
		topic:    topic,
		enabled:  writer != nil,
		recorder: recorder,
		logger:   logger,
	}
}

// Publish writes event to the configured topic
func (p *Publisher) Publish(ctx context.Context, event ResultEvent) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	p.logger.Debug().
		Str("topic", p.topic).
		Str("session_id", event.SessionID).
		RawJSON("payload", payload).
		Msg("Publishing result event")

	if !p.enabled {
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(event.SessionID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte("action_items.result")},
			{Key: "contentType", Value: []byte("application/json")},
		},
	}

	err = p.writer.WriteMessages(ctx, msg)
	if p.recorder != nil {
		p.recorder.RecordEventPublish(p.topic, err, time.Since(start))
	}
	if err != nil {
		p.logger.Error().
			Err(err).
			Str("topic", p.topic).
			Str("session_id", event.SessionID).
			Msg("Failed to write to Kafka")
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// Close closes the Kafka writer
func (p *Publisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
