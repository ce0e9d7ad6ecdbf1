package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Xhuk/continuitybridge/internal/canonical"
	"github.com/Xhuk/continuitybridge/internal/config"
	"github.com/Xhuk/continuitybridge/internal/logging"
	"github.com/Xhuk/continuitybridge/internal/queue"
)

var (
	submitFile   string
	submitRaw    bool
	submitFormat string
)

// itemMessage mirrors the envelope the worker consumes from the items topic.
type itemMessage struct {
	Raw       json.RawMessage `json:"raw,omitempty"`
	RawFormat string          `json:"raw_format,omitempty"`
	Item      json.RawMessage `json:"item,omitempty"`
	TraceID   string          `json:"trace_id,omitempty"`
}

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Publish a document onto the items topic",
	Long: `Submit publishes a document onto the items topic for asynchronous
processing by the worker. The worker picks the message up, runs the pipeline,
and retries on failure per the configured retry policy.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(submitFile)
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}

		msg := itemMessage{TraceID: uuid.NewString()}
		if submitRaw {
			msg.Raw = data
			msg.RawFormat = submitFormat
		} else {
			var item canonical.Item
			if err := json.Unmarshal(data, &item); err != nil {
				return fmt.Errorf("parse canonical item: %w", err)
			}
			msg.Item = data
		}

		payload, err := json.Marshal(msg)
		if err != nil {
			return err
		}

		cfg := config.FromEnv()
		provider, err := queue.NewNSQProvider(queue.NSQOptions{
			NsqdTCPAddr:  cfg.NSQ.NsqdTCPAddr,
			NsqdHTTPAddr: cfg.NSQ.NsqdHTTPAddr,
			Logger:       logging.New("bridgectl"),
		})
		if err != nil {
			return err
		}
		defer provider.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		if err := provider.Enqueue(ctx, cfg.NSQ.ItemsTopic, payload, nil); err != nil {
			return fmt.Errorf("enqueue: %w", err)
		}

		fmt.Printf("Submitted to %s (trace id %s)\n", cfg.NSQ.ItemsTopic, msg.TraceID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(submitCmd)

	submitCmd.Flags().StringVarP(&submitFile, "file", "f", "", "input document (required)")
	submitCmd.Flags().BoolVar(&submitRaw, "raw", false, "treat input as a raw source document instead of a canonical item")
	submitCmd.Flags().StringVar(&submitFormat, "format", "json", "raw input format")
	submitCmd.MarkFlagRequired("file")
}
