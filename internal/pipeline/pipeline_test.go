package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Xhuk/continuitybridge/internal/canonical"
	"github.com/Xhuk/continuitybridge/internal/dispatch"
	"github.com/Xhuk/continuitybridge/internal/origin"
)

// okReceiver always succeeds and counts its calls.
type okReceiver struct {
	name string

	mu    sync.Mutex
	calls int
}

func (r *okReceiver) Name() string { return r.name }

func (r *okReceiver) Send(_ context.Context, _ dispatch.Payload) dispatch.Result {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	return dispatch.Result{Receiver: r.name, Success: true, Timestamp: time.Now().UTC()}
}

func (r *okReceiver) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// failReceiver always fails.
type failReceiver struct {
	name string
}

func (r failReceiver) Name() string { return r.name }

func (r failReceiver) Send(_ context.Context, _ dispatch.Payload) dispatch.Result {
	return dispatch.Result{Receiver: r.name, Success: false, Timestamp: time.Now().UTC(), Err: "downstream unavailable"}
}

// captureRecorder keeps every recorded result.
type captureRecorder struct {
	mu      sync.Mutex
	results []*Result
	err     error
}

func (c *captureRecorder) Record(_ context.Context, res *Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, res)
	return c.err
}

func (c *captureRecorder) recorded() []*Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Result(nil), c.results...)
}

func newTestOrchestrator(receivers []dispatch.Receiver, rec Recorder) *Orchestrator {
	return New(Config{
		Engine:     origin.StaticEngine{OriginID: "wh-1", OriginName: "Primary"},
		Dispatcher: dispatch.New(receivers, time.Second, nil),
		Recorder:   rec,
	})
}

func TestRunInputConstraint(t *testing.T) {
	o := newTestOrchestrator([]dispatch.Receiver{&okReceiver{name: "A"}}, nil)

	tests := []struct {
		name string
		req  Request
	}{
		{
			name: "neither raw nor canonical",
			req:  Request{},
		},
		{
			name: "both raw and canonical",
			req: Request{
				RawInput:      []byte(`{"item_id":"X1"}`),
				CanonicalItem: &canonical.Item{ID: "X1"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := o.Run(context.Background(), tt.req)
			if res.Success {
				t.Fatal("Run() Success = true, want false")
			}
			if !strings.Contains(res.Err, "must be provided") {
				t.Errorf("Run() Err = %q, want input-constraint message", res.Err)
			}
			if res.TraceID == "" {
				t.Error("Run() TraceID is empty, want generated even on failure")
			}
			if res.LatencyMS < 0 {
				t.Errorf("Run() LatencyMS = %d, want >= 0", res.LatencyMS)
			}
		})
	}
}

func TestRunFromRawInput(t *testing.T) {
	receiver := &okReceiver{name: "SAP"}
	rec := &captureRecorder{}
	o := newTestOrchestrator([]dispatch.Receiver{receiver}, rec)

	res := o.Run(context.Background(), Request{
		RawInput:  []byte(`{"item_id":"X1","kind":"order","payload":{"total":12.5}}`),
		RawFormat: "json",
		TraceID:   "trace-raw",
	})

	if !res.Success {
		t.Fatalf("Run() Success = false (%s), want true", res.Err)
	}
	if res.TraceID != "trace-raw" {
		t.Errorf("Run() TraceID = %q, want supplied %q", res.TraceID, "trace-raw")
	}
	if res.Item == nil || res.Item.ID != "X1" {
		t.Errorf("Run() Item = %+v, want canonical item X1", res.Item)
	}
	if res.Decision == nil || res.Decision.OriginID != "wh-1" {
		t.Errorf("Run() Decision = %+v, want origin wh-1", res.Decision)
	}
	if len(res.Dispatch) != 1 {
		t.Fatalf("Run() Dispatch results = %d, want 1", len(res.Dispatch))
	}
	if receiver.callCount() != 1 {
		t.Errorf("receiver called %d times, want 1", receiver.callCount())
	}
	if got := rec.recorded(); len(got) != 1 || !got[0].Success {
		t.Errorf("Record() captured %d results, want 1 successful", len(got))
	}
}

func TestRunFromCanonicalItem(t *testing.T) {
	o := newTestOrchestrator([]dispatch.Receiver{&okReceiver{name: "A"}}, nil)

	res := o.Run(context.Background(), Request{
		CanonicalItem: &canonical.Item{ID: "X2", Kind: canonical.KindShipment},
	})

	if !res.Success {
		t.Fatalf("Run() Success = false (%s), want true", res.Err)
	}
	if res.TraceID == "" {
		t.Error("Run() TraceID is empty, want generated")
	}
	if res.Item.ID != "X2" {
		t.Errorf("Run() Item.ID = %q, want %q", res.Item.ID, "X2")
	}
}

func TestRunTransformFailureAbortsBeforeDispatch(t *testing.T) {
	receiver := &okReceiver{name: "A"}
	o := newTestOrchestrator([]dispatch.Receiver{receiver}, nil)

	res := o.Run(context.Background(), Request{RawInput: []byte(`{"kind":"order"}`)})

	if res.Success {
		t.Fatal("Run() Success = true, want false on transform failure")
	}
	if receiver.callCount() != 0 {
		t.Errorf("receiver called %d times, want 0 when transform fails", receiver.callCount())
	}
	if !strings.Contains(res.Err, "item_id") {
		t.Errorf("Run() Err = %q, want transform failure mentioning item_id", res.Err)
	}
}

func TestRunDecisionFailureAbortsBeforeDispatch(t *testing.T) {
	receiver := &okReceiver{name: "A"}
	rec := &captureRecorder{}
	o := New(Config{
		Engine:     origin.StaticEngine{}, // no origin configured
		Dispatcher: dispatch.New([]dispatch.Receiver{receiver}, time.Second, nil),
		Recorder:   rec,
	})

	res := o.Run(context.Background(), Request{CanonicalItem: &canonical.Item{ID: "X3"}})

	if res.Success {
		t.Fatal("Run() Success = true, want false when no origin is available")
	}
	if !strings.Contains(res.Err, "no origin available") {
		t.Errorf("Run() Err = %q, want no-origin failure", res.Err)
	}
	if receiver.callCount() != 0 {
		t.Errorf("receiver called %d times, want 0 when decision fails", receiver.callCount())
	}
	if got := rec.recorded(); len(got) != 1 || got[0].Success {
		t.Errorf("Record() captured %d results, want 1 failed", len(got))
	}
}

func TestRunPartialDispatchFailureStillSucceeds(t *testing.T) {
	receivers := []dispatch.Receiver{
		&okReceiver{name: "SAP"},
		failReceiver{name: "3PL"},
		&okReceiver{name: "Meli"},
		&okReceiver{name: "Amazon"},
	}
	o := newTestOrchestrator(receivers, nil)

	res := o.Run(context.Background(), Request{CanonicalItem: &canonical.Item{ID: "X1"}})

	if !res.Success {
		t.Fatalf("Run() Success = false (%s), want true despite one receiver failing", res.Err)
	}
	if len(res.Dispatch) != 4 {
		t.Fatalf("Run() Dispatch results = %d, want 4", len(res.Dispatch))
	}
	failed := 0
	for _, d := range res.Dispatch {
		if !d.Success {
			failed++
			if d.Receiver != "3PL" {
				t.Errorf("Run() failed receiver = %q, want %q", d.Receiver, "3PL")
			}
		}
	}
	if failed != 1 {
		t.Errorf("Run() failed dispatches = %d, want exactly 1", failed)
	}
}

func TestRunRecorderErrorNotEscalated(t *testing.T) {
	rec := &captureRecorder{err: errors.New("db unavailable")}
	o := newTestOrchestrator([]dispatch.Receiver{&okReceiver{name: "A"}}, rec)

	res := o.Run(context.Background(), Request{CanonicalItem: &canonical.Item{ID: "X4"}})

	if !res.Success {
		t.Fatalf("Run() Success = false (%s), want true despite recorder failure", res.Err)
	}
}
