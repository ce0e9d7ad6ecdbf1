package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Xhuk/continuitybridge/internal/logging"
)

const memBufferSize = 4096

// ErrClosed is returned by operations on a closed provider.
var ErrClosed = errors.New("queue provider closed")

// MemoryProvider is an in-process Provider with the same observable
// semantics as the durable ones. It backs tests and emulation runs; nothing
// survives a process restart.
type MemoryProvider struct {
	logger *logging.Logger

	mu     sync.Mutex
	topics map[string]*memTopic
	closed bool
	stop   chan struct{}
	wg     sync.WaitGroup
}

type memTopic struct {
	ch  chan Message
	dlq []Message
}

// NewMemoryProvider creates an empty in-memory provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		logger: logging.New("memory-queue"),
		topics: make(map[string]*memTopic),
		stop:   make(chan struct{}),
	}
}

func (p *MemoryProvider) topic(name string) *memTopic {
	t, ok := p.topics[name]
	if !ok {
		t = &memTopic{ch: make(chan Message, memBufferSize)}
		p.topics[name] = t
	}
	return t
}

// Enqueue publishes a message, honoring a future NextRetryAt by delaying
// visibility until it elapses.
func (p *MemoryProvider) Enqueue(_ context.Context, topic string, payload []byte, opts *EnqueueOptions) error {
	if opts == nil {
		opts = &EnqueueOptions{}
	}
	msg := Message{
		Payload:         payload,
		RetryCount:      opts.RetryCount,
		MaxRetries:      opts.MaxRetries,
		RetryIntervalMS: opts.RetryInterval.Milliseconds(),
		Headers:         opts.Headers,
	}
	if !opts.NextRetryAt.IsZero() {
		msg.NextRetryAtMS = opts.NextRetryAt.UnixMilli()
	}
	return p.push(topic, msg)
}

func (p *MemoryProvider) push(topic string, msg Message) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	t := p.topic(topic)
	p.mu.Unlock()

	if delay := time.Until(time.UnixMilli(msg.NextRetryAtMS)); msg.NextRetryAtMS > 0 && delay > 0 {
		time.AfterFunc(delay, func() {
			p.mu.Lock()
			closed := p.closed
			p.mu.Unlock()
			if closed {
				return
			}
			select {
			case t.ch <- msg:
			default:
				// A scheduled retry must not vanish when the buffer is
				// full; park it in the dead-letter sink instead.
				p.mu.Lock()
				t.dlq = append(t.dlq, msg)
				p.mu.Unlock()
				p.logger.Plain().WithTopic(topic).
					WithField("retry_count", msg.RetryCount).
					Warn("topic buffer full, delayed redelivery dead-lettered")
			}
		})
		return nil
	}

	select {
	case t.ch <- msg:
		return nil
	default:
		return fmt.Errorf("topic %s full (%d messages buffered)", topic, memBufferSize)
	}
}

// Consume starts opts.Concurrency handler loops for the topic. The returned
// cancel stops pulling new deliveries; in-flight handlers finish.
func (p *MemoryProvider) Consume(topic string, h Handler, opts ConsumeOptions) (CancelFunc, error) {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	t := p.topic(topic)
	p.mu.Unlock()

	stop := make(chan struct{})
	for i := 0; i < concurrency; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				select {
				case <-stop:
					return
				case <-p.stop:
					return
				case msg := <-t.ch:
					p.handle(topic, t, msg, h)
				}
			}
		}()
	}

	var once sync.Once
	return func() { once.Do(func() { close(stop) }) }, nil
}

func (p *MemoryProvider) handle(topic string, t *memTopic, msg Message, h Handler) {
	d := &memDelivery{provider: p, topic: topic, t: t, msg: msg}
	err := h(context.Background(), d)
	if err != nil && !d.finalized() {
		// Unmanaged handler failure: immediate requeue, unchanged metadata.
		_ = p.push(topic, msg)
	}
}

// DeadLetterDepth reports how many messages of the topic were dead-lettered.
func (p *MemoryProvider) DeadLetterDepth(_ context.Context, topic string) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, ErrClosed
	}
	t, ok := p.topics[topic]
	if !ok {
		return 0, nil
	}
	return int64(len(t.dlq)), nil
}

// DeadLetters returns a copy of the topic's dead-letter sink, for tests and
// manual requeue tooling.
func (p *MemoryProvider) DeadLetters(topic string) []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.topics[topic]
	if !ok {
		return nil
	}
	out := make([]Message, len(t.dlq))
	copy(out, t.dlq)
	return out
}

// Close stops all consumers. Pending delayed redeliveries are dropped.
func (p *MemoryProvider) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.stop)
	p.mu.Unlock()

	p.wg.Wait()
	return nil
}

// memDelivery implements Delivery for the in-memory provider.
type memDelivery struct {
	provider *MemoryProvider
	topic    string
	t        *memTopic
	msg      Message

	mu   sync.Mutex
	done bool
}

func (d *memDelivery) Message() Message { return d.msg }

func (d *memDelivery) finalize() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done {
		return ErrTerminal
	}
	d.done = true
	return nil
}

func (d *memDelivery) finalized() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done
}

func (d *memDelivery) Fail(nextRetryAt time.Time) error {
	if err := d.finalize(); err != nil {
		return err
	}
	next := d.msg
	next.RetryCount++
	next.NextRetryAtMS = nextRetryAt.UnixMilli()
	return d.provider.push(d.topic, next)
}

func (d *memDelivery) DeadLetter() error {
	if err := d.finalize(); err != nil {
		return err
	}
	d.provider.mu.Lock()
	defer d.provider.mu.Unlock()
	d.t.dlq = append(d.t.dlq, d.msg)
	return nil
}
