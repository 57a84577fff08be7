package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalvas/mqtt3"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"MQTT3_SERVER", "MQTT3_CLIENT_ID", "MQTT3_USERNAME", "MQTT3_PASSWORD", "MQTT3_LOG_LEVEL"} {
		t.Setenv(key, "")
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "tcp://localhost:1883", cfg.Server)
	assert.Equal(t, mqtt3.DefaultKeepAlive, cfg.KeepAlive)
	assert.True(t, cfg.CleanSession)
	assert.Equal(t, 10, cfg.DialTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Reconnect.Enabled)
	assert.Nil(t, cfg.Will)
}

func TestLoadConfigFile(t *testing.T) {
	clearEnv(t)

	path := writeFile(t, "mqtt3.yaml", `
server: tls://broker.example.com:8883
client_id: sensor-1
username: user
password: pass
keep_alive: 30
clean_session: false
proxy:
  url: socks5://proxy:1080
reconnect:
  enabled: true
  initial_delay: 2
  max_delay: 30
will:
  topic: status/sensor-1
  payload: offline
  qos: 1
  retain: true
logging:
  level: debug
  color: false
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "tls://broker.example.com:8883", cfg.Server)
	assert.Equal(t, "sensor-1", cfg.ClientID)
	assert.Equal(t, uint16(30), cfg.KeepAlive)
	assert.False(t, cfg.CleanSession)
	assert.Equal(t, "socks5://proxy:1080", cfg.Proxy.URL)
	assert.Equal(t, ReconnectConfig{Enabled: true, InitialDelay: 2, MaxDelay: 30}, cfg.Reconnect)
	require.NotNil(t, cfg.Will)
	assert.Equal(t, WillConfig{Topic: "status/sensor-1", Payload: "offline", QoS: 1, Retain: true}, *cfg.Will)
	assert.Equal(t, LoggingConfig{Level: "debug", Color: false}, cfg.Logging)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("MQTT3_SERVER", "ws://env:8080/mqtt")
	t.Setenv("MQTT3_CLIENT_ID", "from-env")
	t.Setenv("MQTT3_USERNAME", "env-user")
	t.Setenv("MQTT3_PASSWORD", "env-pass")
	t.Setenv("MQTT3_LOG_LEVEL", "warn")

	path := writeFile(t, "mqtt3.yaml", "server: tcp://file:1883\nclient_id: from-file\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "ws://env:8080/mqtt", cfg.Server)
	assert.Equal(t, "from-env", cfg.ClientID)
	assert.Equal(t, "env-user", cfg.Username)
	assert.Equal(t, "env-pass", cfg.Password)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadConfigErrors(t *testing.T) {
	clearEnv(t)

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.ErrorContains(t, err, "reading config file")
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := LoadConfig(writeFile(t, "bad.yaml", "server: [unterminated"))
		assert.ErrorContains(t, err, "parsing config file")
	})

	t.Run("invalid values", func(t *testing.T) {
		_, err := LoadConfig(writeFile(t, "invalid.yaml", "server: ''\nlogging:\n  level: loud\n"))
		assert.ErrorContains(t, err, "server is required")
		assert.ErrorContains(t, err, `unknown log level "loud"`)
	})
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"password without username", func(c *Config) { c.Password = "x" }, "password requires a username"},
		{"negative dial timeout", func(c *Config) { c.DialTimeout = -1 }, "dial_timeout"},
		{"cert without key", func(c *Config) { c.TLS.CertFile = "c.pem" }, "tls.cert_file and tls.key_file"},
		{"negative reconnect delay", func(c *Config) { c.Reconnect.MaxDelay = -1 }, "reconnect delays"},
		{"will without topic", func(c *Config) { c.Will = &WillConfig{} }, "will.topic is required"},
		{"will qos out of range", func(c *Config) { c.Will = &WillConfig{Topic: "a", QoS: 3} }, "will.qos 3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestConfigLogger(t *testing.T) {
	cfg := defaultConfig()
	cfg.Logging.Level = "error"

	cfg.Logging.Color = true
	assert.IsType(t, &mqtt3.ColorLogger{}, cfg.Logger())
	assert.Equal(t, mqtt3.LogLevelError, cfg.Logger().Level())

	cfg.Logging.Color = false
	assert.IsType(t, &mqtt3.StdLogger{}, cfg.Logger())
}

func TestConfigClientOptions(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		opts, err := defaultConfig().ClientOptions(mqtt3.NewNoOpLogger())
		require.NoError(t, err)
		assert.Len(t, opts, 6)
	})

	t.Run("everything", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.Username = "user"
		cfg.Password = "pass"
		cfg.TLS.InsecureSkipVerify = true
		cfg.Proxy.URL = "http://proxy:8080"
		cfg.Reconnect.Enabled = true
		cfg.Will = &WillConfig{Topic: "will", QoS: 1}

		opts, err := cfg.ClientOptions(mqtt3.NewNoOpLogger())
		require.NoError(t, err)
		assert.Len(t, opts, 6+1+1+1+2+1)
	})

	t.Run("proxy from environment", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.Proxy.FromEnvironment = true

		opts, err := cfg.ClientOptions(mqtt3.NewNoOpLogger())
		require.NoError(t, err)
		assert.Len(t, opts, 7)
	})

	t.Run("bad CA file", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.TLS.CAFile = writeFile(t, "ca.pem", "not a certificate")

		_, err := cfg.ClientOptions(mqtt3.NewNoOpLogger())
		assert.ErrorContains(t, err, "no certificates")
	})
}

func TestTLSConfigLoad(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		cfg, err := TLSConfig{}.load()
		require.NoError(t, err)
		assert.Nil(t, cfg)
	})

	t.Run("CA file", func(t *testing.T) {
		cfg, err := TLSConfig{CAFile: writeTestCA(t), ServerName: "broker"}.load()
		require.NoError(t, err)
		require.NotNil(t, cfg)
		assert.NotNil(t, cfg.RootCAs)
		assert.Equal(t, "broker", cfg.ServerName)
	})

	t.Run("missing CA file", func(t *testing.T) {
		_, err := TLSConfig{CAFile: "/nonexistent/ca.pem"}.load()
		assert.ErrorContains(t, err, "reading CA file")
	})

	t.Run("missing key pair", func(t *testing.T) {
		_, err := TLSConfig{CertFile: "/nonexistent/c.pem", KeyFile: "/nonexistent/k.pem"}.load()
		assert.ErrorContains(t, err, "loading client certificate")
	})
}

func writeTestCA(t *testing.T) string {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "test ca"},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	require.NoError(t, err)

	return writeFile(t, "ca.pem", string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})))
}
