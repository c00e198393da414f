package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Handler processes one message body. A returned error triggers a retry.
type Handler func(ctx context.Context, body []byte) error

// Queue interface
type Queue interface {
	Publish(ctx context.Context, topic string, payload any) error
	Subscribe(topic string, handler Handler) error
	Close() error
}

// InMemoryQueue delivers to subscribers in-process with retry
type InMemoryQueue struct {
	mu          sync.Mutex
	handlers    map[string][]Handler
	wg          sync.WaitGroup
	log         *zap.Logger
	MaxRetries  int
	BackoffUnit time.Duration
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue(log *zap.Logger) *InMemoryQueue {
	return &InMemoryQueue{
		handlers:    make(map[string][]Handler),
		log:         log,
		MaxRetries:  3,
		BackoffUnit: 500 * time.Millisecond,
	}
}

// Publish sends a message to all subscribers
func (q *InMemoryQueue) Publish(ctx context.Context, topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", topic, err)
	}

	q.mu.Lock()
	handlers := append([]Handler(nil), q.handlers[topic]...)
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	for _, handler := range handlers {
		q.wg.Add(1)
		go q.processJob(context.WithoutCancel(ctx), topic, handler, body)
	}
	return nil
}

// processJob handles retries and errors
func (q *InMemoryQueue) processJob(ctx context.Context, topic string, handler Handler, body []byte) {
	defer q.wg.Done()

	for attempt := 0; attempt <= q.MaxRetries; attempt++ {
		if attempt > 0 {
			// linear backoff before retry
			time.Sleep(time.Duration(attempt) * q.BackoffUnit)
		}
		err := handler(ctx, body)
		if err == nil {
			return
		}
		q.log.Warn("job failed",
			zap.String("topic", topic),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", q.MaxRetries+1),
			zap.Error(err))
	}
	q.log.Error("job permanently failed", zap.String("topic", topic), zap.ByteString("body", body))
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Close waits for in-flight jobs.
func (q *InMemoryQueue) Close() error {
	q.wg.Wait()
	return nil
}

var _ Queue = (*InMemoryQueue)(nil)
