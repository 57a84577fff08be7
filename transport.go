package mqtt3

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// Default broker ports by scheme.
const (
	DefaultTCPPort  = "1883"
	DefaultTLSPort  = "8883"
	DefaultQUICPort = "14567"
)

// ErrUnsupportedScheme is returned for a server URL with an unknown scheme.
var ErrUnsupportedScheme = errors.New("mqtt3: unsupported server scheme")

// Dialer opens the byte stream a Session runs over.
type Dialer interface {
	// Dial connects to the address with the given context.
	Dial(ctx context.Context, address string) (net.Conn, error)
}

// ContextDialer opens raw network connections. *net.Dialer and
// *ProxyDialer satisfy it.
type ContextDialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// TCPDialer connects to MQTT brokers over TCP.
type TCPDialer struct {
	// Timeout is the maximum time to wait for a connection.
	// Zero means no timeout.
	Timeout time.Duration

	// Forward dials the connection, for example through a proxy.
	// Nil dials directly.
	Forward ContextDialer
}

// Dial connects to the address.
func (d *TCPDialer) Dial(ctx context.Context, address string) (net.Conn, error) {
	return dialForward(ctx, d.Forward, d.Timeout, address)
}

// TLSDialer connects to MQTT brokers over TLS.
type TLSDialer struct {
	// Config is the TLS configuration. ServerName defaults to the host
	// being dialed.
	Config *tls.Config

	// Timeout is the maximum time to wait for the connection and handshake.
	// Zero means no timeout.
	Timeout time.Duration

	// Forward dials the underlying connection. Nil dials directly.
	Forward ContextDialer
}

// Dial connects to the address and completes the TLS handshake.
func (d *TLSDialer) Dial(ctx context.Context, address string) (net.Conn, error) {
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	raw, err := dialForward(ctx, d.Forward, 0, address)
	if err != nil {
		return nil, err
	}

	conn := tls.Client(raw, tlsConfigFor(d.Config, address, nil))
	if err := conn.HandshakeContext(ctx); err != nil {
		raw.Close()
		return nil, fmt.Errorf("tls handshake: %w", err)
	}

	return conn, nil
}

func dialForward(ctx context.Context, forward ContextDialer, timeout time.Duration, address string) (net.Conn, error) {
	if forward == nil {
		forward = &net.Dialer{Timeout: timeout}
	} else if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return forward.DialContext(ctx, "tcp", address)
}

// tlsConfigFor clones cfg, filling ServerName from address and NextProtos
// from alpn when unset.
func tlsConfigFor(cfg *tls.Config, address string, alpn []string) *tls.Config {
	if cfg == nil {
		cfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	cfg = cfg.Clone()

	if cfg.ServerName == "" {
		if host, _, err := net.SplitHostPort(address); err == nil {
			cfg.ServerName = host
		}
	}
	if len(cfg.NextProtos) == 0 && len(alpn) > 0 {
		cfg.NextProtos = alpn
	}

	return cfg
}

// newDialer picks the dialer and dial address for the server URL in o.
//
// Supported schemes: tcp and mqtt (default port 1883), tls, ssl and mqtts
// (8883), ws and wss (the URL is dialed as is), unix (the URL path) and
// quic (14567). Proxies apply to the TCP based schemes only.
func newDialer(o *options) (Dialer, string, error) {
	if o.dialer != nil {
		return o.dialer, o.server, nil
	}

	u, err := url.Parse(o.server)
	if err != nil {
		return nil, "", fmt.Errorf("invalid server URL %q: %w", o.server, err)
	}

	scheme := strings.ToLower(u.Scheme)

	var forward ContextDialer
	switch scheme {
	case "tcp", "mqtt", "tls", "ssl", "mqtts", "ws", "wss":
		if forward, err = proxyForServer(o); err != nil {
			return nil, "", err
		}
	}

	switch scheme {
	case "tcp", "mqtt":
		return &TCPDialer{Timeout: o.dialTimeout, Forward: forward}, hostPort(u, DefaultTCPPort), nil
	case "tls", "ssl", "mqtts":
		return &TLSDialer{Config: o.tlsConfig, Timeout: o.dialTimeout, Forward: forward}, hostPort(u, DefaultTLSPort), nil
	case "ws", "wss":
		d := NewWSDialer()
		d.Dialer.TLSClientConfig = o.tlsConfig
		d.Dialer.HandshakeTimeout = o.dialTimeout
		if forward != nil {
			d.Dialer.NetDialContext = forward.DialContext
		}
		return d, u.String(), nil
	case "unix":
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		return NewUnixDialer(), path, nil
	case "quic":
		return NewQUICDialer(o.tlsConfig), hostPort(u, DefaultQUICPort), nil
	default:
		return nil, "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
}

func proxyForServer(o *options) (ContextDialer, error) {
	if o.proxy != nil {
		return NewProxyDialer(o.proxy.URL, o.proxy.Username, o.proxy.Password)
	}
	if !o.proxyFromEnv {
		return nil, nil
	}

	u, err := ProxyFromEnvironment(o.server)
	if err != nil || u == nil {
		return nil, err
	}
	return NewProxyDialer(u.String(), "", "")
}

func hostPort(u *url.URL, defaultPort string) string {
	port := u.Port()
	if port == "" {
		port = defaultPort
	}
	return net.JoinHostPort(u.Hostname(), port)
}
