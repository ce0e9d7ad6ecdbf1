package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Xhuk/continuitybridge/internal/canonical"
	"github.com/Xhuk/continuitybridge/internal/logging"
	"github.com/Xhuk/continuitybridge/internal/metrics"
	"github.com/Xhuk/continuitybridge/internal/origin"
	"github.com/Xhuk/continuitybridge/internal/tracing"
)

// Payload is what a receiver gets for one dispatched item.
type Payload struct {
	TraceID  string          `json:"trace_id"`
	Item     *canonical.Item `json:"item"`
	Decision *origin.Decision `json:"decision"`
}

// Result records the outcome of one receiver's delivery attempt.
type Result struct {
	Receiver  string    `json:"receiver"`
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
	Err       string    `json:"error,omitempty"`
}

// Receiver is one downstream system (ERP, 3PL, marketplace). Send must never
// panic outward; any internal error resolves to a Success:false result.
type Receiver interface {
	Name() string
	Send(ctx context.Context, p Payload) Result
}

// Dispatcher fans one item + decision out to every configured receiver
// concurrently. One receiver's failure never prevents collection of the
// others' results.
type Dispatcher struct {
	receivers []Receiver
	timeout   time.Duration
	logger    *logging.Logger
}

// New creates a Dispatcher over a fixed, configuration-defined receiver list.
func New(receivers []Receiver, timeout time.Duration, logger *logging.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = logging.New("dispatcher")
	}
	return &Dispatcher{receivers: receivers, timeout: timeout, logger: logger}
}

// Receivers returns the configured receiver names, in configuration order.
func (d *Dispatcher) Receivers() []string {
	names := make([]string, len(d.receivers))
	for i, r := range d.receivers {
		names[i] = r.Name()
	}
	return names
}

// Dispatch delivers to all receivers and returns exactly one Result per
// configured receiver, regardless of individual failures. The join waits for
// all attempts to settle; result ordering is not guaranteed to match
// configuration order.
func (d *Dispatcher) Dispatch(ctx context.Context, traceID string, item *canonical.Item, decision *origin.Decision) []Result {
	ctx, span := tracing.StartSpan(ctx, "dispatch.fanout",
		attribute.String("item_id", item.ID),
		attribute.String("origin_id", decision.OriginID),
		attribute.Int("receivers", len(d.receivers)),
	)
	defer span.End()

	payload := Payload{TraceID: traceID, Item: item, Decision: decision}

	results := make([]Result, len(d.receivers))
	var wg sync.WaitGroup
	for i, r := range d.receivers {
		wg.Add(1)
		go func(i int, r Receiver) {
			defer wg.Done()
			results[i] = d.sendGuarded(ctx, r, payload)
		}(i, r)
	}
	wg.Wait()

	failed := 0
	for _, res := range results {
		metrics.RecordDispatch(res.Receiver, res.Success)
		if !res.Success {
			failed++
			d.logger.WithContext(ctx).WithTraceID(traceID).WithItem(item.ID).
				WithReceiver(res.Receiver).WithField("error", res.Err).
				Error("receiver delivery failed")
		}
	}
	span.SetAttributes(attribute.Int("failed", failed))
	d.logger.WithContext(ctx).WithTraceID(traceID).WithItem(item.ID).
		WithFields(map[string]any{"receivers": len(results), "failed": failed}).
		Info("dispatch complete")

	return results
}

// sendGuarded runs one receiver attempt under its own timeout and panic
// guard, so a slow or panicking adapter degrades only its own result.
func (d *Dispatcher) sendGuarded(ctx context.Context, r Receiver, p Payload) (res Result) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			res = Result{
				Receiver:  r.Name(),
				Success:   false,
				Timestamp: time.Now().UTC(),
				Err:       fmt.Sprintf("receiver panicked: %v", rec),
			}
		}
	}()

	done := make(chan Result, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- Result{
					Receiver:  r.Name(),
					Success:   false,
					Timestamp: time.Now().UTC(),
					Err:       fmt.Sprintf("receiver panicked: %v", rec),
				}
			}
		}()
		done <- r.Send(ctx, p)
	}()

	select {
	case res = <-done:
	case <-ctx.Done():
		res = Result{
			Receiver:  r.Name(),
			Success:   false,
			Timestamp: time.Now().UTC(),
			Err:       fmt.Sprintf("receiver timed out after %s", d.timeout),
		}
	}
	if res.Receiver == "" {
		res.Receiver = r.Name()
	}
	if res.Timestamp.IsZero() {
		res.Timestamp = time.Now().UTC()
	}
	return res
}
