// Command mqtt3 publishes and subscribes to an MQTT 3.1.1 broker.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	serverURL  string
	clientID   string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "mqtt3",
	Short:         "MQTT 3.1.1 command line client",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "broker URL (tcp://, tls://, ws://, wss://, unix://, quic://)")
	rootCmd.PersistentFlags().StringVarP(&clientID, "client-id", "i", "", "client identifier (generated when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn, error or none")
}

// loadConfig reads the configuration and overlays the persistent flags.
func loadConfig(cmd *cobra.Command) (*Config, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("server") {
		cfg.Server = serverURL
	}
	if flags.Changed("client-id") {
		cfg.ClientID = clientID
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = logLevel
	}

	return cfg, cfg.Validate()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
