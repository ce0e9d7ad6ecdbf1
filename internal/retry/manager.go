// Package retry layers a uniform retry/backoff/dead-letter policy over any
// queue provider, so producers and consumers never re-implement it.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/Xhuk/continuitybridge/internal/logging"
	"github.com/Xhuk/continuitybridge/internal/metrics"
	"github.com/Xhuk/continuitybridge/internal/queue"
)

// Default policy values. The interval is linear and constant per message,
// not compounding.
const (
	DefaultMaxRetries    = 7
	DefaultRetryInterval = 2 * time.Minute
)

// Defaults are stamped onto enqueued messages missing retry metadata.
type Defaults struct {
	MaxRetries    int
	RetryInterval time.Duration
}

// Manager wraps a queue.Provider with the retry policy. It owns policy
// only; the provider owns durability, scheduling, and connections.
type Manager struct {
	provider queue.Provider
	defaults Defaults
	logger   *logging.Logger
	now      func() time.Time
}

// NewManager creates a retry manager over the given provider. Zero-valued
// defaults fall back to the package defaults.
func NewManager(provider queue.Provider, defaults Defaults, logger *logging.Logger) *Manager {
	if defaults.MaxRetries <= 0 {
		defaults.MaxRetries = DefaultMaxRetries
	}
	if defaults.RetryInterval <= 0 {
		defaults.RetryInterval = DefaultRetryInterval
	}
	if logger == nil {
		logger = logging.New("retry-manager")
	}
	return &Manager{
		provider: provider,
		defaults: defaults,
		logger:   logger,
		now:      time.Now,
	}
}

// Enqueue stamps default retry metadata onto the message where unset, then
// delegates to the provider.
func (m *Manager) Enqueue(ctx context.Context, topic string, payload []byte, opts *queue.EnqueueOptions) error {
	stamped := queue.EnqueueOptions{}
	if opts != nil {
		stamped = *opts
	}
	if stamped.MaxRetries <= 0 {
		stamped.MaxRetries = m.defaults.MaxRetries
	}
	if stamped.RetryInterval <= 0 {
		stamped.RetryInterval = m.defaults.RetryInterval
	}
	return m.provider.Enqueue(ctx, topic, payload, &stamped)
}

// Consume wraps the caller's handler with the retry policy:
//
//   - handler success: nothing further, the provider acknowledges;
//   - handler failure below the ceiling: Fail(now+interval), retry count +1;
//   - handler failure at or above the ceiling: DeadLetter, terminal.
//
// Errors from scheduling itself (provider unavailable) are not masked; they
// propagate into the consume loop and should stop the consumer.
func (m *Manager) Consume(topic string, h queue.Handler, opts queue.ConsumeOptions) (queue.CancelFunc, error) {
	wrapped := func(ctx context.Context, d queue.Delivery) error {
		err := h(ctx, d)
		if err == nil {
			return nil
		}

		msg := d.Message()
		maxRetries := msg.MaxRetries
		if maxRetries <= 0 {
			maxRetries = m.defaults.MaxRetries
		}

		if msg.RetryCount >= maxRetries {
			m.logger.WithContext(ctx).WithTopic(topic).WithFields(map[string]any{
				"retry_count": msg.RetryCount,
				"max_retries": maxRetries,
			}).WithError(err).Error("retries exhausted, dead-lettering message")
			metrics.RecordDLQ(topic)
			if dlErr := d.DeadLetter(); dlErr != nil {
				return fmt.Errorf("dead-letter message on %s: %w", topic, dlErr)
			}
			return nil
		}

		interval := msg.RetryInterval()
		if interval <= 0 {
			interval = m.defaults.RetryInterval
		}
		nextRetryAt := m.now().Add(interval)

		m.logger.WithContext(ctx).WithTopic(topic).WithFields(map[string]any{
			"retry_count":   msg.RetryCount,
			"next_retry":    msg.RetryCount + 1,
			"max_retries":   maxRetries,
			"next_retry_at": nextRetryAt.UTC().Format(time.RFC3339),
		}).WithError(err).Warn("handler failed, scheduling retry")
		metrics.RecordRetry(topic)

		if fErr := d.Fail(nextRetryAt); fErr != nil {
			return fmt.Errorf("schedule retry on %s: %w", topic, fErr)
		}
		return nil
	}

	return m.provider.Consume(topic, wrapped, opts)
}

// DeadLetterDepth passes through to the provider.
func (m *Manager) DeadLetterDepth(ctx context.Context, topic string) (int64, error) {
	return m.provider.DeadLetterDepth(ctx, topic)
}

// Close passes through; the provider owns connection lifecycle.
func (m *Manager) Close() error {
	return m.provider.Close()
}
