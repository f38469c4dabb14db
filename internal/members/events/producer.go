// Package events publishes member change events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/EmpoweredVote/mp-sync/internal/members"
)

var tracer = otel.Tracer("mpsync/members/events")

// Config holds Kafka configuration
type Config struct {
	Brokers []string
	Topic   string
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer implements members.Publisher on a Kafka topic.
type Producer struct {
	writer messageWriter
	topic  string
	log    *zap.Logger
}

// New returns a Kafka producer, or a no-op publisher when no brokers are
// configured.
func New(cfg Config, log *zap.Logger) members.Publisher {
	if len(cfg.Brokers) == 0 {
		log.Info("kafka brokers not configured, member events disabled")
		return Nop{}
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		// Dev brokers may not have the topic yet.
		AllowAutoTopicCreation: true,
	}
	return newProducer(writer, cfg.Topic, log)
}

func newProducer(w messageWriter, topic string, log *zap.Logger) *Producer {
	return &Producer{writer: w, topic: topic, log: log.Named("events")}
}

// Publish writes events keyed by external id, so every event for one member
// lands on the same partition in order.
func (p *Producer) Publish(ctx context.Context, evts ...members.Event) error {
	if len(evts) == 0 {
		return nil
	}

	ctx, span := tracer.Start(ctx, "Kafka.Publish")
	defer span.End()
	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination", p.topic),
		attribute.String("messaging.operation", "publish"),
		attribute.Int("messaging.batch.message_count", len(evts)),
	)

	msgs := make([]kafka.Message, 0, len(evts))
	for _, evt := range evts {
		if evt.OccurredAt.IsZero() {
			evt.OccurredAt = time.Now().UTC()
		}
		data, err := json.Marshal(evt)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to marshal event")
			return fmt.Errorf("failed to marshal member event: %w", err)
		}

		headers := []kafka.Header{
			{Key: "event_type", Value: []byte(evt.Type)},
			{Key: "external_id", Value: []byte(evt.ExternalID)},
		}
		if tp := traceParent(ctx); tp != "" {
			headers = append(headers, kafka.Header{Key: "traceparent", Value: []byte(tp)})
		}

		msgs = append(msgs, kafka.Message{
			Key:     []byte(evt.ExternalID),
			Value:   data,
			Headers: headers,
		})
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to write messages")
		p.log.Error("failed to publish member events", zap.String("topic", p.topic), zap.Int("count", len(msgs)), zap.Error(err))
		return err
	}

	p.log.Debug("member events published", zap.String("topic", p.topic), zap.Int("count", len(msgs)))
	return nil
}

// Close flushes and closes the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

// traceParent renders the W3C traceparent header for the span in ctx.
func traceParent(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return ""
	}
	return fmt.Sprintf("00-%s-%s-%s", sc.TraceID(), sc.SpanID(), sc.TraceFlags())
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, ...members.Event) error { return nil }
