package mqtt3

import (
	"crypto/tls"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultOptions(t *testing.T) {
	opts := defaultOptions()

	assert.Equal(t, uint16(60), opts.keepAlive)
	assert.True(t, opts.cleanSession)
	assert.Equal(t, time.Second, opts.tickInterval)
	assert.Equal(t, MaxMessageSize, opts.maxMessageSize)
	assert.Equal(t, "tcp://localhost:1883", opts.server)
	assert.Equal(t, 10*time.Second, opts.dialTimeout)
	assert.False(t, opts.autoReconnect)
	assert.Equal(t, time.Second, opts.reconnectBackoff)
	assert.Equal(t, time.Minute, opts.maxBackoff)
	assert.Zero(t, opts.errorNotifyDelay)
	assert.Nil(t, opts.scheduler)
}

func TestApplyOptionsDefaults(t *testing.T) {
	opts := applyOptions()

	assert.Regexp(t, `^mqtt3-[0-9a-f]{17}$`, opts.clientID)
	assert.Len(t, opts.clientID, 23)
	assert.NotNil(t, opts.logger)
	assert.NotNil(t, opts.metrics)

	assert.NotEqual(t, opts.clientID, applyOptions().clientID)
}

func TestWithClientID(t *testing.T) {
	opts := applyOptions(WithClientID("test-client"))
	assert.Equal(t, "test-client", opts.clientID)
}

func TestWithCredentials(t *testing.T) {
	opts := applyOptions(WithCredentials("user", "pass"))
	assert.Equal(t, "user", opts.username)
	assert.Equal(t, "pass", opts.password)
}

func TestWithKeepAlive(t *testing.T) {
	assert.Equal(t, uint16(30), applyOptions(WithKeepAlive(30)).keepAlive)
	assert.Zero(t, applyOptions(WithKeepAlive(0)).keepAlive)
}

func TestWithCleanSession(t *testing.T) {
	assert.False(t, applyOptions(WithCleanSession(false)).cleanSession)
	assert.True(t, applyOptions(WithCleanSession(true)).cleanSession)
}

func TestWithWill(t *testing.T) {
	opts := applyOptions(WithWill("status/device", []byte("offline"), QoS1, true))
	require.NotNil(t, opts.will)
	assert.Equal(t, Will{Topic: "status/device", Payload: []byte("offline"), QoS: QoS1, Retain: true}, *opts.will)

	connect := opts.connectOptions()
	assert.Same(t, opts.will, connect.Will)
}

func TestConnectOptionsFromOptions(t *testing.T) {
	opts := applyOptions(
		WithClientID("dev-1"),
		WithCredentials("user", "pass"),
		WithKeepAlive(15),
		WithCleanSession(false),
	)

	assert.Equal(t, ConnectOptions{
		ClientID:     "dev-1",
		Username:     "user",
		Password:     "pass",
		KeepAlive:    15,
		CleanSession: false,
	}, opts.connectOptions())
}

func TestWithLoggerAndMetrics(t *testing.T) {
	logger := NewStdLogger(nil, LogLevelDebug)
	metrics := NewMemoryMetrics()

	opts := applyOptions(WithLogger(logger), WithMetrics(metrics))
	assert.Same(t, logger, opts.logger)
	assert.Same(t, metrics, opts.metrics)
}

func TestWithScheduler(t *testing.T) {
	s := &manualScheduler{}
	assert.Same(t, s, applyOptions(WithScheduler(s)).scheduler)
}

func TestWithTickInterval(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, applyOptions(WithTickInterval(100*time.Millisecond)).tickInterval)
	assert.Equal(t, DefaultTickInterval, applyOptions(WithTickInterval(0)).tickInterval)
	assert.Equal(t, DefaultTickInterval, applyOptions(WithTickInterval(-time.Second)).tickInterval)
}

func TestWithMaxMessageSize(t *testing.T) {
	assert.Equal(t, uint32(1024), applyOptions(WithMaxMessageSize(1024)).maxMessageSize)
	assert.Equal(t, MaxMessageSize, applyOptions(WithMaxMessageSize(1<<31)).maxMessageSize)
}

func TestWithErrorNotifyDelay(t *testing.T) {
	assert.Equal(t, time.Second, applyOptions(WithErrorNotifyDelay(time.Second)).errorNotifyDelay)
	assert.Zero(t, applyOptions(WithErrorNotifyDelay(-time.Second)).errorNotifyDelay)
}

func TestWithCallbacks(t *testing.T) {
	var events, messages int
	opts := applyOptions(
		OnEvent(func(*Session, Event) { events++ }),
		OnMessage(func(*Session, string, []byte) { messages++ }),
	)

	opts.onEvent(nil, EventConnected)
	opts.onMessage(nil, "a", nil)
	assert.Equal(t, 1, events)
	assert.Equal(t, 1, messages)
}

func TestWithServer(t *testing.T) {
	assert.Equal(t, "tls://broker:8883", applyOptions(WithServer("tls://broker:8883")).server)
}

func TestWithTLS(t *testing.T) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	assert.Same(t, tlsConfig, applyOptions(WithTLS(tlsConfig)).tlsConfig)
}

func TestWithProxy(t *testing.T) {
	t.Run("explicit", func(t *testing.T) {
		opts := applyOptions(WithProxy(ProxyConfig{URL: "socks5://proxy:1080", Username: "user", Password: "pass"}))
		require.NotNil(t, opts.proxy)
		assert.Equal(t, "socks5://proxy:1080", opts.proxy.URL)
		assert.Equal(t, "user", opts.proxy.Username)
		assert.Equal(t, "pass", opts.proxy.Password)
	})

	t.Run("from environment", func(t *testing.T) {
		assert.False(t, applyOptions().proxyFromEnv)
		assert.True(t, applyOptions(WithProxyFromEnvironment()).proxyFromEnv)
	})
}

func TestWithDialTimeout(t *testing.T) {
	assert.Equal(t, 3*time.Second, applyOptions(WithDialTimeout(3*time.Second)).dialTimeout)
	assert.Equal(t, 10*time.Second, applyOptions(WithDialTimeout(0)).dialTimeout)
}

func TestWithDialer(t *testing.T) {
	d := NewUnixDialer()
	assert.Same(t, d, applyOptions(WithDialer(d)).dialer)
}

func TestWithReconnect(t *testing.T) {
	assert.True(t, applyOptions(WithAutoReconnect(true)).autoReconnect)

	tests := []struct {
		name        string
		initial     time.Duration
		maxBackoff  time.Duration
		wantInitial time.Duration
		wantMax     time.Duration
	}{
		{"both set", 2 * time.Second, 30 * time.Second, 2 * time.Second, 30 * time.Second},
		{"zero keeps defaults", 0, 0, time.Second, time.Minute},
		{"max raised to initial", 2 * time.Minute, time.Minute, 2 * time.Minute, 2 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := applyOptions(WithReconnectBackoff(tt.initial, tt.maxBackoff))
			assert.Equal(t, tt.wantInitial, opts.reconnectBackoff)
			assert.Equal(t, tt.wantMax, opts.maxBackoff)
		})
	}
}
