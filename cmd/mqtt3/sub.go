package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vitalvas/mqtt3"
)

var (
	subTopics  []string
	subQoS     int
	subVerbose bool
)

var subCmd = &cobra.Command{
	Use:   "sub",
	Short: "Subscribe and print messages until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		qos := mqtt3.QoS(subQoS)
		if !qos.Valid() {
			return fmt.Errorf("qos %d is out of range", subQoS)
		}
		for _, topic := range subTopics {
			if err := mqtt3.ValidateTopicFilter(topic); err != nil {
				return fmt.Errorf("topic %q: %w", topic, err)
			}
		}

		logger := cfg.Logger()
		opts, err := cfg.ClientOptions(logger)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		client, err := mqtt3.Dial(ctx, opts...)
		if err != nil {
			return err
		}
		defer client.Close()

		out := cmd.OutOrStdout()
		client.AddMessageListener(func(topic string, payload []byte) {
			printMessage(out, topic, payload, subVerbose)
		})
		client.AddStatusListener(func(ev mqtt3.Event, err error) {
			if err != nil {
				logger.Warn("connection status", mqtt3.LogFields{mqtt3.LogFieldEvent: ev.String(), mqtt3.LogFieldError: err.Error()})
				return
			}
			logger.Info("connection status", mqtt3.LogFields{mqtt3.LogFieldEvent: ev.String()})
		})

		for _, topic := range subTopics {
			if err := client.Subscribe(ctx, topic, qos); err != nil {
				return fmt.Errorf("subscribe %q: %w", topic, err)
			}
		}

		<-ctx.Done()
		logger.Debug("interrupted", nil)
		return nil
	},
}

func printMessage(w io.Writer, topic string, payload []byte, verbose bool) {
	if verbose {
		fmt.Fprintf(w, "%s %s\n", topic, payload)
		return
	}
	fmt.Fprintf(w, "%s\n", payload)
}

func init() {
	subCmd.Flags().StringArrayVarP(&subTopics, "topic", "t", nil, "topic filter to subscribe to (repeatable)")
	subCmd.Flags().IntVarP(&subQoS, "qos", "q", 0, "requested quality of service (0, 1 or 2)")
	subCmd.Flags().BoolVarP(&subVerbose, "verbose", "v", false, "print the topic before each payload")
	_ = subCmd.MarkFlagRequired("topic")

	rootCmd.AddCommand(subCmd)
}
