package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Xhuk/continuitybridge/internal/canonical"
	"github.com/Xhuk/continuitybridge/internal/config"
	"github.com/Xhuk/continuitybridge/internal/dispatch"
	"github.com/Xhuk/continuitybridge/internal/executor"
	"github.com/Xhuk/continuitybridge/internal/health"
	"github.com/Xhuk/continuitybridge/internal/logging"
	"github.com/Xhuk/continuitybridge/internal/metrics"
	"github.com/Xhuk/continuitybridge/internal/nodes"
	"github.com/Xhuk/continuitybridge/internal/origin"
	"github.com/Xhuk/continuitybridge/internal/pipeline"
	"github.com/Xhuk/continuitybridge/internal/queue"
	"github.com/Xhuk/continuitybridge/internal/retry"
	"github.com/Xhuk/continuitybridge/internal/store"
	"github.com/Xhuk/continuitybridge/internal/throttle"
	"github.com/Xhuk/continuitybridge/internal/tracing"
)

// itemMessage is the envelope carried on the items topic. Exactly one of
// raw/item is set, mirroring the pipeline input constraint.
type itemMessage struct {
	Raw       json.RawMessage `json:"raw,omitempty"`
	RawFormat string          `json:"raw_format,omitempty"`
	Item      json.RawMessage `json:"item,omitempty"`
	TraceID   string          `json:"trace_id,omitempty"`
}

// buildRequest maps an items-topic envelope onto a pipeline request. A
// pre-canonicalized item is passed through as-is so its provenance and
// receive time survive; only raw input goes through the transformer.
func buildRequest(msg itemMessage) (pipeline.Request, error) {
	req := pipeline.Request{TraceID: msg.TraceID, RawFormat: msg.RawFormat}
	switch {
	case len(msg.Raw) > 0:
		req.RawInput = msg.Raw
	case len(msg.Item) > 0:
		var item canonical.Item
		if err := json.Unmarshal(msg.Item, &item); err != nil {
			return pipeline.Request{}, fmt.Errorf("decode canonical item: %w", err)
		}
		req.CanonicalItem = &item
	}
	return req, nil
}

// nodeRunMessage is the envelope carried on the node-runs topic.
type nodeRunMessage struct {
	Node      executor.Node  `json:"node"`
	Input     map[string]any `json:"input"`
	RunID     string         `json:"run_id,omitempty"`
	Emulation bool           `json:"emulation,omitempty"`
}

func main() {
	cfg := config.FromEnv()
	ctx := context.Background()

	logger := logging.New("bridge-worker")

	shutdownTracing, err := tracing.InitTracing(ctx, "bridge-worker")
	if err != nil {
		logger.Plain().WithError(err).Fatal("failed to initialize tracing")
	}
	defer shutdownTracing()

	// Outcome store
	st, err := store.Connect(ctx, cfg.DSN())
	if err != nil {
		logger.Plain().WithError(err).Fatal("db connect failed")
	}
	defer st.Close()
	if err := st.EnsureSchema(ctx); err != nil {
		logger.Plain().WithError(err).Fatal("schema setup failed")
	}

	// Prom metrics + health HTTP
	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", health.HTTPHandler(st.Pool()))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	httpSrv := &http.Server{Addr: cfg.HTTPPort, Handler: mux}
	go func() {
		logger.Plain().WithField("addr", httpSrv.Addr).Info("worker HTTP server starting")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Plain().WithError(err).Fatal("worker HTTP server failed")
		}
	}()

	// Queue provider + retry policy
	provider, err := queue.NewNSQProvider(queue.NSQOptions{
		NsqdTCPAddr:    cfg.NSQ.NsqdTCPAddr,
		NsqdHTTPAddr:   cfg.NSQ.NsqdHTTPAddr,
		LookupHTTPAddr: cfg.NSQ.LookupHTTPAddr,
		Channel:        cfg.NSQ.WorkerChannel,
		Logger:         logger,
	})
	if err != nil {
		logger.Plain().WithError(err).Fatal("queue provider creation failed")
	}
	manager := retry.NewManager(provider, retry.Defaults{
		MaxRetries:    cfg.Throttling.MaxRetries,
		RetryInterval: cfg.Throttling.RetryInterval,
	}, logger)

	// Node catalog + executor registry
	catalog := nodes.NewCatalog(cfg.Nodes.DefinitionsDir, logger)
	if err := catalog.Load(ctx); err != nil {
		logger.Plain().WithError(err).Fatal("node catalog load failed")
	}
	pool := executor.NewConnPool(cfg.Broker.ConnectTimeout, logger)
	defer func() {
		if err := pool.DisconnectAll(); err != nil {
			logger.Plain().WithError(err).Warn("broker disconnect failed")
		}
	}()
	registry := executor.NewRegistry()
	registry.Register(executor.BrokerPublishType, executor.NewBrokerPublisher(pool, cfg.Broker.URL))
	registry.Register(executor.FileTransferType, executor.NewFileTransfer(executor.ObjectStoreConfig{
		Endpoint:      cfg.ObjectStore.Endpoint,
		AccessKey:     cfg.ObjectStore.AccessKey,
		SecretKey:     cfg.ObjectStore.SecretKey,
		UseSSL:        cfg.ObjectStore.UseSSL,
		DefaultBucket: cfg.ObjectStore.Bucket,
	}))
	registry.Register(executor.APICallType, executor.NewAPICall(nil))

	// Pipeline: receivers, decision engine, orchestrator
	receivers := make([]dispatch.Receiver, 0, len(cfg.Receivers))
	for _, r := range cfg.Receivers {
		receivers = append(receivers, dispatch.NewHTTPReceiver(r.Name, r.URL, r.Secret, nil))
	}
	dispatcher := dispatch.New(receivers, cfg.Throttling.ReceiverTimeout, logger)
	orchestrator := pipeline.New(pipeline.Config{
		Engine: origin.StaticEngine{
			OriginID:   cfg.Origin.DefaultID,
			OriginName: cfg.Origin.DefaultName,
		},
		Dispatcher: dispatcher,
		Recorder:   st,
		Logger:     logger,
	})

	// Items consumer: one pipeline run per message. A failed run is a
	// handler failure, so the retry manager schedules redelivery.
	cancelItems, err := manager.Consume(cfg.NSQ.ItemsTopic, func(ctx context.Context, d queue.Delivery) error {
		var msg itemMessage
		if err := json.Unmarshal(d.Message().Payload, &msg); err != nil {
			logger.WithContext(ctx).WithTopic(cfg.NSQ.ItemsTopic).WithError(err).
				Error("undecodable item message, dead-lettering")
			return d.DeadLetter()
		}

		req, err := buildRequest(msg)
		if err != nil {
			logger.WithContext(ctx).WithTopic(cfg.NSQ.ItemsTopic).WithError(err).
				Error("undecodable canonical item, dead-lettering")
			return d.DeadLetter()
		}

		res := orchestrator.Run(ctx, req)
		if !res.Success {
			return errors.New(res.Err)
		}
		return nil
	}, queue.ConsumeOptions{Concurrency: cfg.Throttling.WorkerConcurrency})
	if err != nil {
		logger.Plain().WithError(err).Fatal("items consumer failed to start")
	}

	// Node-runs consumer: execute one workflow node per message.
	// Configuration errors are permanent, so they dead-letter immediately
	// instead of burning the retry budget.
	cancelNodes, err := manager.Consume(cfg.NSQ.NodeRunsTopic, func(ctx context.Context, d queue.Delivery) error {
		var msg nodeRunMessage
		if err := json.Unmarshal(d.Message().Payload, &msg); err != nil {
			logger.WithContext(ctx).WithTopic(cfg.NSQ.NodeRunsTopic).WithError(err).
				Error("undecodable node run, dead-lettering")
			return d.DeadLetter()
		}
		if !catalog.Has(msg.Node.Type) {
			logger.WithContext(ctx).WithNode(msg.Node.ID).
				WithField("type", msg.Node.Type).
				Error("unknown node type, dead-lettering")
			return d.DeadLetter()
		}

		res := registry.Execute(ctx, &msg.Node, msg.Input, &executor.Context{
			EmulationMode: msg.Emulation,
			TraceID:       tracing.GetTraceID(ctx),
			RunID:         msg.RunID,
		})
		if res.Success {
			logger.WithContext(ctx).WithNode(msg.Node.ID).
				WithField("emulated", res.Emulated()).Info("node executed")
			return nil
		}
		if res.ErrKind == executor.ErrKindConfiguration {
			logger.WithContext(ctx).WithNode(msg.Node.ID).
				WithField("error", res.Err).Error("node misconfigured, dead-lettering")
			return d.DeadLetter()
		}
		return errors.New(res.Err)
	}, queue.ConsumeOptions{Concurrency: cfg.Throttling.WorkerConcurrency})
	if err != nil {
		logger.Plain().WithError(err).Fatal("node-runs consumer failed to start")
	}

	logger.Plain().WithFields(map[string]any{
		"items_topic":     cfg.NSQ.ItemsTopic,
		"node_runs_topic": cfg.NSQ.NodeRunsTopic,
		"receivers":       len(receivers),
		"node_types":      catalog.Len(),
		"concurrency":     cfg.Throttling.WorkerConcurrency,
	}).Info("worker started")

	// SIGHUP reloads the node catalog and re-reads throttling config,
	// reporting whether the change can take effect without a restart.
	current := throttle.Config{
		WorkerConcurrency: cfg.Throttling.WorkerConcurrency,
		MaxRetries:        cfg.Throttling.MaxRetries,
		RetryInterval:     cfg.Throttling.RetryInterval,
		ReceiverTimeout:   cfg.Throttling.ReceiverTimeout,
	}
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for range hup {
			if err := catalog.Reload(ctx); err != nil {
				logger.Plain().WithError(err).Error("node catalog reload failed")
			}
			next := config.FromEnv().Throttling
			outcome := throttle.Apply(current, throttle.Config{
				WorkerConcurrency: next.WorkerConcurrency,
				MaxRetries:        next.MaxRetries,
				RetryInterval:     next.RetryInterval,
				ReceiverTimeout:   next.ReceiverTimeout,
			})
			logger.Plain().WithField("outcome", outcome.String()).Info("throttling config change")
		}
	}()

	// Graceful stop: stop pulling, let in-flight work finish.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop

	logger.Plain().Info("shutting down worker")
	cancelItems()
	cancelNodes()
	if err := manager.Close(); err != nil {
		logger.Plain().WithError(err).Warn("queue close failed")
	}
	_ = httpSrv.Shutdown(context.Background())
	logger.Plain().Info("worker stopped")
}
