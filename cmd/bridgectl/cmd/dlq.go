package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Xhuk/continuitybridge/internal/config"
	"github.com/Xhuk/continuitybridge/internal/logging"
	"github.com/Xhuk/continuitybridge/internal/queue"
)

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspect dead-letter queues",
}

var dlqDepthCmd = &cobra.Command{
	Use:   "depth <topic>",
	Short: "Report the dead-letter backlog for a topic",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
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

		depth, err := provider.DeadLetterDepth(ctx, args[0])
		if err != nil {
			return err
		}

		if outputJSON {
			fmt.Printf("{\"topic\":%q,\"depth\":%d}\n", queue.DeadLetterTopic(args[0]), depth)
			return nil
		}
		fmt.Printf("%s: %d\n", queue.DeadLetterTopic(args[0]), depth)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dlqCmd)
	dlqCmd.AddCommand(dlqDepthCmd)
}
