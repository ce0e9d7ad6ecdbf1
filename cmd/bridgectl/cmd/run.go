package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Xhuk/continuitybridge/internal/canonical"
	"github.com/Xhuk/continuitybridge/internal/config"
	"github.com/Xhuk/continuitybridge/internal/dispatch"
	"github.com/Xhuk/continuitybridge/internal/logging"
	"github.com/Xhuk/continuitybridge/internal/origin"
	"github.com/Xhuk/continuitybridge/internal/pipeline"
)

var (
	runFile    string
	runRaw     bool
	runFormat  string
	runTraceID string
	runEmulate bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline once against a document",
	Long: `Run executes a single pipeline invocation in-process: transform the
input to a canonical item, select an origin, and fan out to the configured
receivers.

With --emulate (the default) receivers are stubbed and no network calls are
made, so the command is safe against any input. Without it the receivers
configured via RECEIVERS are called for real.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(runFile)
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}

		cfg := config.FromEnv()
		logger := logging.New("bridgectl")

		receivers := buildReceivers(cfg)
		if len(receivers) == 0 {
			return fmt.Errorf("no receivers configured; set RECEIVERS")
		}

		orchestrator := pipeline.New(pipeline.Config{
			Engine: origin.StaticEngine{
				OriginID:   cfg.Origin.DefaultID,
				OriginName: cfg.Origin.DefaultName,
			},
			Dispatcher: dispatch.New(receivers, cfg.Throttling.ReceiverTimeout, logger),
			Logger:     logger,
		})

		req := pipeline.Request{TraceID: runTraceID}
		if runRaw {
			req.RawInput = data
			req.RawFormat = runFormat
		} else {
			var item canonical.Item
			if err := json.Unmarshal(data, &item); err != nil {
				return fmt.Errorf("parse canonical item: %w", err)
			}
			req.CanonicalItem = &item
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		res := orchestrator.Run(ctx, req)

		printResult(res)
		if !res.Success {
			return fmt.Errorf("pipeline failed: %s", res.Err)
		}
		return nil
	},
}

// emulatedReceiver reports success without touching the network.
type emulatedReceiver struct {
	name string
}

func (r emulatedReceiver) Name() string { return r.name }

func (r emulatedReceiver) Send(_ context.Context, _ dispatch.Payload) dispatch.Result {
	return dispatch.Result{Receiver: r.name, Success: true, Timestamp: time.Now().UTC()}
}

func buildReceivers(cfg config.Config) []dispatch.Receiver {
	receivers := make([]dispatch.Receiver, 0, len(cfg.Receivers))
	for _, r := range cfg.Receivers {
		if runEmulate {
			receivers = append(receivers, emulatedReceiver{name: r.Name})
			continue
		}
		receivers = append(receivers, dispatch.NewHTTPReceiver(r.Name, r.URL, r.Secret, nil))
	}
	return receivers
}

func printResult(res *pipeline.Result) {
	if outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(res)
		return
	}

	status := "OK"
	if !res.Success {
		status = "FAILED"
	}
	fmt.Printf("Status:   %s\n", status)
	fmt.Printf("Trace ID: %s\n", res.TraceID)
	fmt.Printf("Latency:  %dms\n", res.LatencyMS)
	if res.Decision != nil {
		fmt.Printf("Origin:   %s (%s)\n", res.Decision.OriginName, res.Decision.OriginID)
	}
	if res.Err != "" {
		fmt.Printf("Error:    %s\n", res.Err)
	}
	for _, d := range res.Dispatch {
		mark := "ok"
		if !d.Success {
			mark = "failed: " + d.Err
		}
		fmt.Printf("  %-12s %s\n", d.Receiver, mark)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFile, "file", "f", "", "input document (required)")
	runCmd.Flags().BoolVar(&runRaw, "raw", false, "treat input as a raw source document instead of a canonical item")
	runCmd.Flags().StringVar(&runFormat, "format", "json", "raw input format")
	runCmd.Flags().StringVar(&runTraceID, "trace-id", "", "trace id to correlate with (generated when empty)")
	runCmd.Flags().BoolVar(&runEmulate, "emulate", true, "stub receivers instead of calling them")
	runCmd.MarkFlagRequired("file")
}
