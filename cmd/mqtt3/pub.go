package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/vitalvas/mqtt3"
)

var (
	pubTopic   string
	pubMessage string
	pubQoS     int
	pubRetain  bool
	pubStdin   bool
	pubTimeout time.Duration
)

var pubCmd = &cobra.Command{
	Use:   "pub",
	Short: "Publish one message",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		payload := []byte(pubMessage)
		if pubStdin {
			if payload, err = io.ReadAll(cmd.InOrStdin()); err != nil {
				return fmt.Errorf("reading stdin: %w", err)
			}
		}

		qos := mqtt3.QoS(pubQoS)
		if !qos.Valid() {
			return fmt.Errorf("qos %d is out of range", pubQoS)
		}
		if err := mqtt3.ValidateTopicName(pubTopic); err != nil {
			return err
		}

		logger := cfg.Logger()
		opts, err := cfg.ClientOptions(logger)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), pubTimeout)
		defer cancel()

		client, err := mqtt3.Dial(ctx, opts...)
		if err != nil {
			return err
		}
		defer client.Close()

		id, err := client.Publish(ctx, pubTopic, payload, qos, pubRetain)
		if err != nil {
			return err
		}

		if err := waitAcknowledged(ctx, client); err != nil {
			return err
		}

		logger.Info("published", mqtt3.LogFields{
			mqtt3.LogFieldTopic:     pubTopic,
			mqtt3.LogFieldQoS:       pubQoS,
			mqtt3.LogFieldMessageID: id,
			mqtt3.LogFieldBytes:     len(payload),
		})
		return nil
	},
}

// waitAcknowledged polls until every QoS 1 and 2 publish completed.
func waitAcknowledged(ctx context.Context, client *mqtt3.Client) error {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		n, err := client.InFlight(ctx)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%d publishes not acknowledged: %w", n, ctx.Err())
		case <-ticker.C:
		}
	}
}

func init() {
	pubCmd.Flags().StringVarP(&pubTopic, "topic", "t", "", "topic to publish to")
	pubCmd.Flags().StringVarP(&pubMessage, "message", "m", "", "message payload")
	pubCmd.Flags().IntVarP(&pubQoS, "qos", "q", 0, "quality of service (0, 1 or 2)")
	pubCmd.Flags().BoolVarP(&pubRetain, "retain", "r", false, "ask the broker to retain the message")
	pubCmd.Flags().BoolVar(&pubStdin, "stdin", false, "read the payload from stdin")
	pubCmd.Flags().DurationVar(&pubTimeout, "timeout", 30*time.Second, "time allowed to connect and complete the publish")
	_ = pubCmd.MarkFlagRequired("topic")

	rootCmd.AddCommand(pubCmd)
}
