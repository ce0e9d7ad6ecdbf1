// Package pipeline sequences one integration run: normalize the document,
// select a fulfillment origin, fan the decision out to every configured
// receiver, and record the outcome.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Xhuk/continuitybridge/internal/canonical"
	"github.com/Xhuk/continuitybridge/internal/dispatch"
	"github.com/Xhuk/continuitybridge/internal/logging"
	"github.com/Xhuk/continuitybridge/internal/metrics"
	"github.com/Xhuk/continuitybridge/internal/origin"
	"github.com/Xhuk/continuitybridge/internal/tracing"
)

// Request is the only entry point the orchestration core exposes. Exactly
// one of RawInput and CanonicalItem must be supplied.
type Request struct {
	RawInput      []byte
	RawFormat     string
	CanonicalItem *canonical.Item
	TraceID       string // optional; generated when empty
}

// DecisionSummary is the decision as surfaced in a pipeline result.
type DecisionSummary struct {
	OriginID   string `json:"origin_id"`
	OriginName string `json:"origin_name"`
	Rationale  string `json:"rationale"`
}

// Result is the structured outcome of one pipeline invocation. Callers
// always get one, success or failure, with a trace id for correlation.
type Result struct {
	TraceID   string            `json:"trace_id"`
	Success   bool              `json:"success"`
	Item      *canonical.Item   `json:"item,omitempty"`
	Decision  *DecisionSummary  `json:"decision,omitempty"`
	Dispatch  []dispatch.Result `json:"dispatch,omitempty"`
	LatencyMS int64             `json:"latency_ms"`
	Err       string            `json:"error,omitempty"`
}

// Recorder persists pipeline outcomes. Recording failures are logged, never
// escalated: the dispatch already happened.
type Recorder interface {
	Record(ctx context.Context, res *Result) error
}

// Orchestrator wires the pipeline steps together.
type Orchestrator struct {
	transformer canonical.Transformer
	engine      origin.Engine
	dispatcher  *dispatch.Dispatcher
	recorder    Recorder
	logger      *logging.Logger
}

// Config collects the orchestrator's collaborators. Transformer defaults to
// the JSON reference transformer; Recorder may be nil.
type Config struct {
	Transformer canonical.Transformer
	Engine      origin.Engine
	Dispatcher  *dispatch.Dispatcher
	Recorder    Recorder
	Logger      *logging.Logger
}

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	transformer := cfg.Transformer
	if transformer == nil {
		transformer = canonical.JSONTransformer{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.New("pipeline")
	}
	return &Orchestrator{
		transformer: transformer,
		engine:      cfg.Engine,
		dispatcher:  cfg.Dispatcher,
		recorder:    cfg.Recorder,
		logger:      logger,
	}
}

// Run executes one pipeline invocation: transform (or pass through), decide,
// dispatch, record. A failure before dispatch aborts the pipeline; dispatch
// partial failure does not fail the pipeline.
func (o *Orchestrator) Run(ctx context.Context, req Request) *Result {
	start := time.Now()
	traceID := tracing.EnsureTraceID(ctx, req.TraceID)

	ctx, span := tracing.StartSpan(ctx, "pipeline.run",
		attribute.String("pipeline.trace_id", traceID),
	)
	defer span.End()

	// Input constraint, checked before any side effect.
	hasRaw := len(req.RawInput) > 0
	hasItem := req.CanonicalItem != nil
	if hasRaw == hasItem {
		return o.fail(ctx, traceID, start, "validate",
			fmt.Errorf("%w", ErrInputRequired))
	}

	// Step 1: obtain the canonical item.
	item := req.CanonicalItem
	if hasRaw {
		transformed, err := o.transformer.Transform(ctx, req.RawInput, req.RawFormat)
		if err != nil {
			return o.fail(ctx, traceID, start, "transform", err)
		}
		item = transformed
	}
	if err := item.Validate(); err != nil {
		return o.fail(ctx, traceID, start, "validate", err)
	}
	span.SetAttributes(attribute.String("item_id", item.ID))
	o.logger.WithContext(ctx).WithTraceID(traceID).WithItem(item.ID).
		WithField("source", item.Source).Debug("canonical item ready")

	// Step 2: select the fulfillment origin. Any engine failure is pipeline
	// failure; there is no default origin.
	decision, err := o.engine.Decide(ctx, item)
	if err != nil {
		return o.fail(ctx, traceID, start, "decide", err)
	}
	o.logger.WithContext(ctx).WithTraceID(traceID).WithItem(item.ID).
		WithOrigin(decision.OriginID).WithField("rationale", decision.Rationale).
		Info("origin selected")

	// Step 3: fan out to all configured receivers.
	results := o.dispatcher.Dispatch(ctx, traceID, item, decision)

	// Step 4: record outcome.
	latency := time.Since(start)
	res := &Result{
		TraceID: traceID,
		Success: true,
		Item:    item,
		Decision: &DecisionSummary{
			OriginID:   decision.OriginID,
			OriginName: decision.OriginName,
			Rationale:  decision.Rationale,
		},
		Dispatch:  results,
		LatencyMS: latency.Milliseconds(),
	}
	o.record(ctx, res)
	metrics.RecordPipeline(latency, "")

	o.logger.WithContext(ctx).WithTraceID(traceID).WithItem(item.ID).
		WithOrigin(decision.OriginID).
		WithFields(map[string]any{
			"latency_ms": res.LatencyMS,
			"receivers":  len(results),
		}).Info("pipeline complete")

	return res
}

func (o *Orchestrator) fail(ctx context.Context, traceID string, start time.Time, stage string, err error) *Result {
	latency := time.Since(start)
	tracing.SetSpanError(ctx, err)
	metrics.RecordPipeline(latency, stage)

	res := &Result{
		TraceID:   traceID,
		Success:   false,
		LatencyMS: latency.Milliseconds(),
		Err:       err.Error(),
	}
	o.record(ctx, res)

	o.logger.WithContext(ctx).WithTraceID(traceID).
		WithField("stage", stage).WithError(err).
		Error("pipeline failed")
	return res
}

func (o *Orchestrator) record(ctx context.Context, res *Result) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.Record(ctx, res); err != nil {
		o.logger.WithContext(ctx).WithTraceID(res.TraceID).WithError(err).
			Error("outcome recording failed")
	}
}
