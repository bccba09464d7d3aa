// Package messaging connects the price update topic to the write-through
// consumer and lets tools publish onto it.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/segmentio/kafka-go"

	"github.com/rl1809/quote-cache/internal/config"
	"github.com/rl1809/quote-cache/internal/core/domain"
)

// MessageReader is the subset of *kafka.Reader the consumer drives.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type PriceUpdateHandler interface {
	OnPriceUpdate(ctx context.Context, event domain.PriceUpdateEvent) error
}

// NewReader builds a consumer group reader with manual commits.
func NewReader(cfg config.KafkaConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		SessionTimeout: cfg.SessionTimeout,
		StartOffset:    kafka.FirstOffset,
		MaxBytes:       10e6,
	})
}

type RetryPolicy struct {
	MaxRetries uint
	Backoff    time.Duration
}

// KafkaConsumer delivers price update events at least once: an offset is
// committed only after the handler accepted the event.
type KafkaConsumer struct {
	reader  MessageReader
	handler PriceUpdateHandler
	retry   RetryPolicy
	log     *slog.Logger
}

func NewKafkaConsumer(reader MessageReader, handler PriceUpdateHandler, retry RetryPolicy, log *slog.Logger) *KafkaConsumer {
	return &KafkaConsumer{reader: reader, handler: handler, retry: retry, log: log}
}

// Run consumes until ctx is cancelled, which returns nil. It returns an error
// when fetching fails or an event still fails after all retries; that event
// stays uncommitted and is redelivered on restart.
func (c *KafkaConsumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		if err := c.handle(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("handle message at %s/%d/%d: %w", msg.Topic, msg.Partition, msg.Offset, err)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit offset %d: %w", msg.Offset, err)
		}
	}
}

func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}

func (c *KafkaConsumer) handle(ctx context.Context, msg kafka.Message) error {
	var event domain.PriceUpdateEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		c.log.Warn("skipping undecodable price update", "offset", msg.Offset, "error", err)
		return nil
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := c.handler.OnPriceUpdate(ctx, event)
		if errors.Is(err, domain.ErrInvalidEvent) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, c.retryOptions()...)

	if errors.Is(err, domain.ErrInvalidEvent) {
		c.log.Warn("skipping invalid price update", "offset", msg.Offset, "error", err)
		return nil
	}
	return err
}

func (c *KafkaConsumer) retryOptions() []backoff.RetryOption {
	b := backoff.NewExponentialBackOff()
	if c.retry.Backoff > 0 {
		b.InitialInterval = c.retry.Backoff
		b.MaxInterval = 20 * c.retry.Backoff
	}
	return []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxTries(c.retry.MaxRetries + 1),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.log.Warn("price update failed, retrying", "error", err, "next", next)
		}),
	}
}
