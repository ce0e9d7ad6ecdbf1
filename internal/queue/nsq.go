package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/nsqio/go-nsq"

	"github.com/Xhuk/continuitybridge/internal/logging"
	"github.com/Xhuk/continuitybridge/internal/tracing"
)

// NSQOptions configures an NSQ-backed provider.
type NSQOptions struct {
	NsqdTCPAddr    string // e.g. nsqd:4150
	NsqdHTTPAddr   string // e.g. nsqd:4151, for depth queries
	LookupHTTPAddr string // optional, e.g. http://nsqlookupd:4161
	Channel        string // channel name shared by workers
	Logger         *logging.Logger
}

// NSQProvider implements Provider on top of NSQ. Retry scheduling uses
// deferred republish so the incremented retry count survives redelivery;
// dead letters go to a per-topic "<topic>_dlq" topic.
type NSQProvider struct {
	opts     NSQOptions
	producer *nsq.Producer
	logger   *logging.Logger
	client   *http.Client

	mu        sync.Mutex
	consumers []*nsq.Consumer
	closed    bool
}

// NewNSQProvider connects a producer to nsqd and returns the provider.
func NewNSQProvider(opts NSQOptions) (*NSQProvider, error) {
	if opts.Channel == "" {
		opts.Channel = "workers"
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.New("nsq-queue")
	}

	producer, err := nsq.NewProducer(opts.NsqdTCPAddr, nsq.NewConfig())
	if err != nil {
		return nil, fmt.Errorf("create nsq producer: %w", err)
	}

	return &NSQProvider{
		opts:     opts,
		producer: producer,
		logger:   logger,
		client:   &http.Client{Timeout: 5 * time.Second},
	}, nil
}

// Enqueue publishes a message envelope, deferred when NextRetryAt lies in
// the future.
func (p *NSQProvider) Enqueue(ctx context.Context, topic string, payload []byte, opts *EnqueueOptions) error {
	if opts == nil {
		opts = &EnqueueOptions{}
	}
	headers := opts.Headers
	if headers == nil {
		headers = tracing.PropagateTraceToQueue(ctx)
	}
	msg := Message{
		Payload:         payload,
		RetryCount:      opts.RetryCount,
		MaxRetries:      opts.MaxRetries,
		RetryIntervalMS: opts.RetryInterval.Milliseconds(),
		Headers:         headers,
	}
	if !opts.NextRetryAt.IsZero() {
		msg.NextRetryAtMS = opts.NextRetryAt.UnixMilli()
	}
	return p.publish(topic, msg)
}

func (p *NSQProvider) publish(topic string, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if delay := time.Until(time.UnixMilli(msg.NextRetryAtMS)); msg.NextRetryAtMS > 0 && delay > 0 {
		return p.producer.DeferredPublish(topic, delay, body)
	}
	return p.producer.Publish(topic, body)
}

// Consume attaches concurrent handlers to the topic's worker channel.
func (p *NSQProvider) Consume(topic string, h Handler, opts ConsumeOptions) (CancelFunc, error) {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	conf := nsq.NewConfig()
	conf.MaxInFlight = concurrency
	consumer, err := nsq.NewConsumer(topic, p.opts.Channel, conf)
	if err != nil {
		return nil, fmt.Errorf("create nsq consumer: %w", err)
	}

	consumer.AddConcurrentHandlers(nsq.HandlerFunc(func(m *nsq.Message) error {
		m.DisableAutoResponse() // terminal actions decide the outcome

		var msg Message
		if err := json.Unmarshal(m.Body, &msg); err != nil {
			p.logger.Plain().WithTopic(topic).WithError(err).Error("bad message envelope")
			m.Finish() // terminal: don't retry undecodable payloads
			return nil
		}

		ctx := tracing.ExtractTraceFromQueue(context.Background(), msg.Headers)
		d := &nsqDelivery{provider: p, topic: topic, msg: msg}

		err := h(ctx, d)
		switch {
		case d.finalized():
			// Fail republished deferred or DeadLetter published; the
			// original in-flight copy is done either way.
			m.Finish()
		case err != nil:
			// Unmanaged handler failure: native immediate requeue.
			m.Requeue(-1)
		default:
			m.Finish()
		}
		return nil
	}), concurrency)

	// Connecting directly to nsqd forces channel creation instead of the
	// channel being lazily created on first publish.
	if err := consumer.ConnectToNSQD(p.opts.NsqdTCPAddr); err != nil {
		consumer.Stop()
		return nil, fmt.Errorf("connect to nsqd: %w", err)
	}
	if p.opts.LookupHTTPAddr != "" {
		if err := consumer.ConnectToNSQLookupd(p.opts.LookupHTTPAddr); err != nil {
			consumer.Stop()
			return nil, fmt.Errorf("connect to lookupd: %w", err)
		}
	}

	p.mu.Lock()
	p.consumers = append(p.consumers, consumer)
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			consumer.Stop()
			<-consumer.StopChan
		})
	}, nil
}

// nsqStats mirrors the JSON returned by the nsqd stats API.
type nsqStats struct {
	Topics []struct {
		TopicName string `json:"topic_name"`
		Depth     int64  `json:"depth"`
		Channels  []struct {
			ChannelName string `json:"channel_name"`
			Depth       int64  `json:"depth"`
		} `json:"channels"`
	} `json:"topics"`
}

// DeadLetterDepth reports the dead-letter topic's backlog via the nsqd
// stats endpoint.
func (p *NSQProvider) DeadLetterDepth(ctx context.Context, topic string) (int64, error) {
	dlq := DeadLetterTopic(topic)
	url := fmt.Sprintf("http://%s/stats?format=json&topic=%s", p.opts.NsqdHTTPAddr, dlq)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("query nsqd stats: %w", err)
	}
	defer resp.Body.Close()

	var stats nsqStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return 0, fmt.Errorf("decode nsqd stats: %w", err)
	}

	for _, t := range stats.Topics {
		if t.TopicName != dlq {
			continue
		}
		depth := t.Depth
		for _, ch := range t.Channels {
			depth += ch.Depth
		}
		return depth, nil
	}
	return 0, nil
}

// Close stops consumers (waiting for in-flight handlers) and the producer.
func (p *NSQProvider) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	consumers := p.consumers
	p.mu.Unlock()

	for _, c := range consumers {
		c.Stop()
		<-c.StopChan
	}
	p.producer.Stop()
	return nil
}

// nsqDelivery implements Delivery over one in-flight NSQ message.
type nsqDelivery struct {
	provider *NSQProvider
	topic    string
	msg      Message

	mu   sync.Mutex
	done bool
}

func (d *nsqDelivery) Message() Message { return d.msg }

func (d *nsqDelivery) finalize() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done {
		return ErrTerminal
	}
	d.done = true
	return nil
}

func (d *nsqDelivery) finalized() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done
}

// Fail republishes deferred with the incremented retry count. Requeue on the
// broker side would redeliver the original body, losing the count.
func (d *nsqDelivery) Fail(nextRetryAt time.Time) error {
	if err := d.finalize(); err != nil {
		return err
	}
	next := d.msg
	next.RetryCount++
	next.NextRetryAtMS = nextRetryAt.UnixMilli()
	return d.provider.publish(d.topic, next)
}

func (d *nsqDelivery) DeadLetter() error {
	if err := d.finalize(); err != nil {
		return err
	}
	dead := d.msg
	dead.NextRetryAtMS = 0
	return d.provider.publish(DeadLetterTopic(d.topic), dead)
}
