package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/rl1809/quote-cache/internal/core/domain"
	"github.com/rl1809/quote-cache/internal/logger"
)

// fakeReader hands out queued messages, then blocks until the context ends.
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

// scriptedHandler fails the first failures calls with err.
type scriptedHandler struct {
	mu       sync.Mutex
	failures int
	err      error
	calls    int
	seen     []domain.PriceUpdateEvent
}

func (h *scriptedHandler) OnPriceUpdate(ctx context.Context, event domain.PriceUpdateEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	if h.calls <= h.failures {
		return h.err
	}
	if err := event.Validate(); err != nil {
		return err
	}
	h.seen = append(h.seen, event)
	return nil
}

func eventMessage(t *testing.T, offset int64, symbol, price string) kafka.Message {
	t.Helper()
	data, err := json.Marshal(domain.PriceUpdateEvent{
		Symbol:        symbol,
		CurrentPrice:  decimal.RequireFromString(price),
		OccurredAtUTC: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatal(err)
	}
	return kafka.Message{Topic: "stock.price.updated", Offset: offset, Key: []byte(symbol), Value: data}
}

func runUntilDrained(t *testing.T, c *KafkaConsumer) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	return c.Run(ctx)
}

func TestKafkaConsumer_CommitsAfterSuccess(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{
		eventMessage(t, 1, "ABC", "10.50"),
		eventMessage(t, 2, "XYZ", "7"),
	}}
	handler := &scriptedHandler{}
	c := NewKafkaConsumer(reader, handler, RetryPolicy{MaxRetries: 2, Backoff: time.Millisecond}, logger.Discard())

	if err := runUntilDrained(t, c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := reader.commits(); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("expected offsets 1,2 committed, got %v", got)
	}
	if len(handler.seen) != 2 || handler.seen[0].Symbol != "ABC" {
		t.Errorf("unexpected handled events %+v", handler.seen)
	}
}

func TestKafkaConsumer_RetriesTransientFailure(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{eventMessage(t, 5, "ABC", "1")}}
	handler := &scriptedHandler{failures: 2, err: errors.New("db down")}
	c := NewKafkaConsumer(reader, handler, RetryPolicy{MaxRetries: 3, Backoff: time.Millisecond}, logger.Discard())

	if err := runUntilDrained(t, c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if handler.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", handler.calls)
	}
	if got := reader.commits(); len(got) != 1 || got[0] != 5 {
		t.Errorf("expected offset 5 committed, got %v", got)
	}
}

func TestKafkaConsumer_ExhaustedRetriesLeaveOffsetUncommitted(t *testing.T) {
	dbErr := errors.New("db down")
	reader := &fakeReader{queue: []kafka.Message{
		eventMessage(t, 7, "ABC", "1"),
		eventMessage(t, 8, "ABC", "2"),
	}}
	handler := &scriptedHandler{failures: 100, err: dbErr}
	c := NewKafkaConsumer(reader, handler, RetryPolicy{MaxRetries: 2, Backoff: time.Millisecond}, logger.Discard())

	err := runUntilDrained(t, c)
	if !errors.Is(err, dbErr) {
		t.Fatalf("expected handler error, got %v", err)
	}
	if handler.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", handler.calls)
	}
	if got := reader.commits(); len(got) != 0 {
		t.Errorf("expected nothing committed, got %v", got)
	}
}

func TestKafkaConsumer_SkipsPoisonMessages(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{
		{Offset: 1, Value: []byte("not json")},
		eventMessage(t, 2, "", "1"),
		eventMessage(t, 3, "ABC", "1"),
	}}
	handler := &scriptedHandler{}
	c := NewKafkaConsumer(reader, handler, RetryPolicy{MaxRetries: 5, Backoff: time.Millisecond}, logger.Discard())

	if err := runUntilDrained(t, c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := reader.commits(); len(got) != 3 {
		t.Errorf("expected all 3 offsets committed, got %v", got)
	}
	// the invalid event is not retried
	if handler.calls != 2 {
		t.Errorf("expected 2 handler calls, got %d", handler.calls)
	}
}

func TestKafkaConsumer_Close(t *testing.T) {
	reader := &fakeReader{}
	c := NewKafkaConsumer(reader, &scriptedHandler{}, RetryPolicy{}, logger.Discard())
	if err := c.Close(); err != nil || !reader.closed {
		t.Errorf("expected reader closed, got %v", err)
	}
}
