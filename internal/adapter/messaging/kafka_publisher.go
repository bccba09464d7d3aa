package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/rl1809/quote-cache/internal/config"
	"github.com/rl1809/quote-cache/internal/core/domain"
)

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewWriter builds a writer that hashes on the message key, so every event
// of a symbol lands on the same partition.
func NewWriter(cfg config.KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		MaxAttempts:            int(cfg.MaxRetries) + 1,
		WriteBackoffMin:        cfg.RetryBackoff,
	}
}

type PricePublisher struct {
	writer MessageWriter
}

func NewPricePublisher(writer MessageWriter) *PricePublisher {
	return &PricePublisher{writer: writer}
}

// Publish sends events keyed by symbol.
func (p *PricePublisher) Publish(ctx context.Context, events ...domain.PriceUpdateEvent) error {
	msgs := make([]kafka.Message, 0, len(events))
	for _, ev := range events {
		if err := ev.Validate(); err != nil {
			return err
		}
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("encode event for %s: %w", ev.Symbol, err)
		}
		msgs = append(msgs, kafka.Message{Key: []byte(ev.Symbol), Value: data})
	}
	if len(msgs) == 0 {
		return nil
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d price updates: %w", len(msgs), err)
	}
	return nil
}

func (p *PricePublisher) Close() error {
	return p.writer.Close()
}
