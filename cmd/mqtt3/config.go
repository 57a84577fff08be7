package main

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vitalvas/mqtt3"
)

// Config is the client configuration. It is loaded from YAML and can be
// overridden by MQTT3_* environment variables and command line flags.
type Config struct {
	Server       string          `yaml:"server"`
	ClientID     string          `yaml:"client_id"`
	Username     string          `yaml:"username"`
	Password     string          `yaml:"password"`
	KeepAlive    uint16          `yaml:"keep_alive"`
	CleanSession bool            `yaml:"clean_session"`
	DialTimeout  int             `yaml:"dial_timeout"`
	TLS          TLSConfig       `yaml:"tls"`
	Proxy        ProxyConfig     `yaml:"proxy"`
	Reconnect    ReconnectConfig `yaml:"reconnect"`
	Will         *WillConfig     `yaml:"will"`
	Logging      LoggingConfig   `yaml:"logging"`
}

// TLSConfig holds certificate paths for tls, wss and quic servers.
type TLSConfig struct {
	CAFile             string `yaml:"ca_file"`
	CertFile           string `yaml:"cert_file"`
	KeyFile            string `yaml:"key_file"`
	ServerName         string `yaml:"server_name"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

// ProxyConfig selects an explicit proxy or the environment.
type ProxyConfig struct {
	URL             string `yaml:"url"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	FromEnvironment bool   `yaml:"from_environment"`
}

// ReconnectConfig holds reconnect delays in seconds.
type ReconnectConfig struct {
	Enabled      bool `yaml:"enabled"`
	InitialDelay int  `yaml:"initial_delay"`
	MaxDelay     int  `yaml:"max_delay"`
}

// WillConfig is the last will message.
type WillConfig struct {
	Topic   string `yaml:"topic"`
	Payload string `yaml:"payload"`
	QoS     int    `yaml:"qos"`
	Retain  bool   `yaml:"retain"`
}

// LoggingConfig selects the log level and colored output.
type LoggingConfig struct {
	Level string `yaml:"level"`
	Color bool   `yaml:"color"`
}

// LoadConfig reads path over the defaults and applies environment
// overrides. An empty path skips the file.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server:       "tcp://localhost:1883",
		KeepAlive:    mqtt3.DefaultKeepAlive,
		CleanSession: true,
		DialTimeout:  10,
		Reconnect: ReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     60,
		},
		Logging: LoggingConfig{
			Level: "info",
			Color: true,
		},
	}
}

// applyEnvOverrides applies MQTT3_SERVER, MQTT3_CLIENT_ID, MQTT3_USERNAME,
// MQTT3_PASSWORD and MQTT3_LOG_LEVEL.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MQTT3_SERVER"); v != "" {
		cfg.Server = v
	}
	if v := os.Getenv("MQTT3_CLIENT_ID"); v != "" {
		cfg.ClientID = v
	}
	if v := os.Getenv("MQTT3_USERNAME"); v != "" {
		cfg.Username = v
	}
	if v := os.Getenv("MQTT3_PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := os.Getenv("MQTT3_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Server == "" {
		errs = append(errs, "server is required")
	}
	if c.Password != "" && c.Username == "" {
		errs = append(errs, "password requires a username")
	}
	if c.DialTimeout < 0 {
		errs = append(errs, "dial_timeout must not be negative")
	}
	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		errs = append(errs, "tls.cert_file and tls.key_file must be set together")
	}
	if c.Reconnect.InitialDelay < 0 || c.Reconnect.MaxDelay < 0 {
		errs = append(errs, "reconnect delays must not be negative")
	}
	if c.Will != nil {
		if c.Will.Topic == "" {
			errs = append(errs, "will.topic is required")
		}
		if !mqtt3.QoS(c.Will.QoS).Valid() {
			errs = append(errs, fmt.Sprintf("will.qos %d is out of range", c.Will.QoS))
		}
	}
	if _, err := mqtt3.ParseLogLevel(c.Logging.Level); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Logger builds the logger selected by the logging section.
func (c *Config) Logger() mqtt3.Logger {
	level, _ := mqtt3.ParseLogLevel(c.Logging.Level)
	if c.Logging.Color {
		return mqtt3.NewColorLogger(os.Stderr, level, false)
	}
	return mqtt3.NewStdLogger(os.Stderr, level)
}

// ClientOptions converts the configuration to client options.
func (c *Config) ClientOptions(logger mqtt3.Logger) ([]mqtt3.Option, error) {
	opts := []mqtt3.Option{
		mqtt3.WithServer(c.Server),
		mqtt3.WithClientID(c.ClientID),
		mqtt3.WithKeepAlive(c.KeepAlive),
		mqtt3.WithCleanSession(c.CleanSession),
		mqtt3.WithDialTimeout(time.Duration(c.DialTimeout) * time.Second),
		mqtt3.WithLogger(logger),
	}

	if c.Username != "" {
		opts = append(opts, mqtt3.WithCredentials(c.Username, c.Password))
	}

	tlsConfig, err := c.TLS.load()
	if err != nil {
		return nil, err
	}
	if tlsConfig != nil {
		opts = append(opts, mqtt3.WithTLS(tlsConfig))
	}

	switch {
	case c.Proxy.URL != "":
		opts = append(opts, mqtt3.WithProxy(mqtt3.ProxyConfig{
			URL:      c.Proxy.URL,
			Username: c.Proxy.Username,
			Password: c.Proxy.Password,
		}))
	case c.Proxy.FromEnvironment:
		opts = append(opts, mqtt3.WithProxyFromEnvironment())
	}

	if c.Reconnect.Enabled {
		opts = append(opts,
			mqtt3.WithAutoReconnect(true),
			mqtt3.WithReconnectBackoff(
				time.Duration(c.Reconnect.InitialDelay)*time.Second,
				time.Duration(c.Reconnect.MaxDelay)*time.Second,
			),
		)
	}

	if c.Will != nil {
		opts = append(opts, mqtt3.WithWill(c.Will.Topic, []byte(c.Will.Payload), mqtt3.QoS(c.Will.QoS), c.Will.Retain))
	}

	return opts, nil
}

// load returns nil when no TLS setting is present.
func (t TLSConfig) load() (*tls.Config, error) {
	if t == (TLSConfig{}) {
		return nil, nil
	}

	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         t.ServerName,
		InsecureSkipVerify: t.InsecureSkipVerify, //nolint:gosec // opt-in for test brokers
	}

	if t.CAFile != "" {
		pem, err := os.ReadFile(t.CAFile)
		if err != nil {
			return nil, fmt.Errorf("reading CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates in %s", t.CAFile)
		}
		cfg.RootCAs = pool
	}

	if t.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(t.CertFile, t.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	return cfg, nil
}
