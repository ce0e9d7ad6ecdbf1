// Package queue defines the durable queue capability the delivery engine is
// built on: enqueue/consume with per-message retry metadata, plus a
// dead-letter sink per topic. Providers own durability and redelivery
// scheduling; retry policy lives in the retry package.
package queue

import (
	"context"
	"errors"
	"time"
)

// ErrTerminal is returned when a second terminal action (Fail, DeadLetter,
// or implicit ack) is attempted on a delivery. A message is in exactly one
// state at a time: in-flight, scheduled for retry, dead-lettered, or
// acknowledged.
var ErrTerminal = errors.New("delivery already finalized")

// Message is one queued unit of work. The payload is opaque to the queue.
type Message struct {
	Payload         []byte            `json:"payload"`
	RetryCount      int               `json:"retry_count"`
	MaxRetries      int               `json:"max_retries"`
	RetryIntervalMS int64             `json:"retry_interval_ms"`
	NextRetryAtMS   int64             `json:"next_retry_at_ms,omitempty"` // epoch ms, optional
	Headers         map[string]string `json:"headers,omitempty"`          // trace propagation
}

// RetryInterval returns the message's retry interval as a duration.
func (m Message) RetryInterval() time.Duration {
	return time.Duration(m.RetryIntervalMS) * time.Millisecond
}

// EnqueueOptions carries optional retry metadata for a new message. Zero
// values mean "unset"; the retry manager stamps defaults.
type EnqueueOptions struct {
	RetryCount    int
	MaxRetries    int
	RetryInterval time.Duration
	NextRetryAt   time.Time
	Headers       map[string]string
}

// Delivery is one in-flight message handed to a consumer handler. Exactly
// one terminal action may be taken: returning nil from the handler
// acknowledges, Fail reschedules, DeadLetter quarantines.
type Delivery interface {
	// Message returns the delivered message with its retry metadata.
	Message() Message

	// Fail reschedules the message for redelivery at nextRetryAt with an
	// incremented retry count.
	Fail(nextRetryAt time.Time) error

	// DeadLetter moves the message to the topic's permanently-unprocessable
	// sink. One-way transition.
	DeadLetter() error
}

// Handler processes one delivery. A returned error with no terminal action
// taken means the provider applies its own immediate-requeue semantics;
// consumers normally go through the retry manager, which always takes a
// terminal action on failure.
type Handler func(ctx context.Context, d Delivery) error

// ConsumeOptions bounds a consumer.
type ConsumeOptions struct {
	// Concurrency caps concurrently-running handlers for the topic.
	// Defaults to 1.
	Concurrency int
}

// CancelFunc stops a consumer from pulling new deliveries. In-flight handler
// executions are allowed to finish.
type CancelFunc func()

// Provider is the durable enqueue/consume primitive.
type Provider interface {
	Enqueue(ctx context.Context, topic string, payload []byte, opts *EnqueueOptions) error
	Consume(topic string, h Handler, opts ConsumeOptions) (CancelFunc, error)
	DeadLetterDepth(ctx context.Context, topic string) (int64, error)
	Close() error
}

// DeadLetterTopic names the dead-letter sink for a topic.
func DeadLetterTopic(topic string) string {
	return topic + "_dlq"
}
