package mqtt3

import (
	"crypto/tls"
	"time"
)

// WithServer sets the broker URL, for example "tcp://broker:1883",
// "tls://broker:8883", "ws://broker/mqtt", "wss://broker/mqtt",
// "unix:///var/run/mqtt.sock" or "quic://broker:14567".
func WithServer(url string) Option {
	return func(o *options) {
		o.server = url
	}
}

// WithTLS sets the TLS configuration for tls, wss and quic servers.
func WithTLS(config *tls.Config) Option {
	return func(o *options) {
		o.tlsConfig = config
	}
}

// WithProxy dials TCP based servers through an HTTP CONNECT or SOCKS5
// proxy.
func WithProxy(config ProxyConfig) Option {
	return func(o *options) {
		o.proxy = &config
	}
}

// WithProxyFromEnvironment uses HTTP_PROXY, HTTPS_PROXY and NO_PROXY
// unless WithProxy is also set.
func WithProxyFromEnvironment() Option {
	return func(o *options) {
		o.proxyFromEnv = true
	}
}

// WithDialTimeout bounds dialing plus the CONNECT handshake.
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.dialTimeout = d
		}
	}
}

// WithDialer replaces the dialer chosen from the server URL. The server
// string is passed to it unchanged.
func WithDialer(d Dialer) Option {
	return func(o *options) {
		o.dialer = d
	}
}

// WithAutoReconnect makes the Client start a new session after an
// established one fails.
func WithAutoReconnect(enabled bool) Option {
	return func(o *options) {
		o.autoReconnect = enabled
	}
}

// WithReconnectBackoff sets the initial and maximum delay between
// reconnect attempts. The delay doubles after each failed attempt.
func WithReconnectBackoff(initial, maxBackoff time.Duration) Option {
	return func(o *options) {
		if initial > 0 {
			o.reconnectBackoff = initial
		}
		if maxBackoff > 0 {
			o.maxBackoff = maxBackoff
		}
		o.maxBackoff = max(o.maxBackoff, o.reconnectBackoff)
	}
}
