package mqtt3

import (
	"crypto/tls"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Session defaults.
const (
	DefaultKeepAlive    uint16 = 60
	DefaultTickInterval        = time.Second

	// MaxMessageSize is the largest remaining length the protocol allows.
	MaxMessageSize uint32 = maxVarint
)

// options holds configuration for a Session and, when dialing, the Client
// around it.
type options struct {
	// CONNECT fields
	clientID     string
	username     string
	password     string
	keepAlive    uint16
	cleanSession bool
	will         *Will

	// Session runtime
	logger           Logger
	metrics          Metrics
	scheduler        Scheduler
	tickInterval     time.Duration
	maxMessageSize   uint32
	errorNotifyDelay time.Duration
	onEvent          func(*Session, Event)
	onMessage        func(*Session, string, []byte)

	// Client transport
	server           string
	tlsConfig        *tls.Config
	proxy            *ProxyConfig
	proxyFromEnv     bool
	dialTimeout      time.Duration
	dialer           Dialer
	autoReconnect    bool
	reconnectBackoff time.Duration
	maxBackoff       time.Duration
}

func defaultOptions() *options {
	return &options{
		keepAlive:        DefaultKeepAlive,
		cleanSession:     true,
		tickInterval:     DefaultTickInterval,
		maxMessageSize:   MaxMessageSize,
		server:           "tcp://localhost:1883",
		dialTimeout:      10 * time.Second,
		reconnectBackoff: time.Second,
		maxBackoff:       time.Minute,
	}
}

// Option configures a Session or a Client.
type Option func(*options)

// WithClientID sets the client identifier. An empty id is replaced by a
// generated one.
func WithClientID(id string) Option {
	return func(o *options) {
		o.clientID = id
	}
}

// WithCredentials sets the username and password sent in CONNECT. The
// password is only sent together with a username.
func WithCredentials(username, password string) Option {
	return func(o *options) {
		o.username = username
		o.password = password
	}
}

// WithKeepAlive sets the keep-alive interval in seconds. Zero disables
// PINGREQ.
func WithKeepAlive(seconds uint16) Option {
	return func(o *options) {
		o.keepAlive = seconds
	}
}

// WithCleanSession sets the clean session flag.
func WithCleanSession(clean bool) Option {
	return func(o *options) {
		o.cleanSession = clean
	}
}

// WithWill sets the message the broker publishes if the client vanishes.
func WithWill(topic string, payload []byte, qos QoS, retain bool) Option {
	return func(o *options) {
		o.will = &Will{Topic: topic, Payload: payload, QoS: qos, Retain: retain}
	}
}

// WithLogger sets the logger.
func WithLogger(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(metrics Metrics) Option {
	return func(o *options) {
		o.metrics = metrics
	}
}

// WithScheduler sets the scheduler driving the tick timer. It must run
// callbacks on the goroutine that delivers stream events.
func WithScheduler(s Scheduler) Option {
	return func(o *options) {
		o.scheduler = s
	}
}

// WithTickInterval sets the period of the keep-alive and retry sweep.
func WithTickInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.tickInterval = d
		}
	}
}

// WithMaxMessageSize limits the remaining length of inbound frames.
// Values above the protocol maximum are clamped.
func WithMaxMessageSize(size uint32) Option {
	return func(o *options) {
		o.maxMessageSize = min(size, MaxMessageSize)
	}
}

// WithErrorNotifyDelay delays the terminal event notification. The delay
// is scheduled, never slept.
func WithErrorNotifyDelay(d time.Duration) Option {
	return func(o *options) {
		o.errorNotifyDelay = max(d, 0)
	}
}

// OnEvent sets the connection status callback of a Session.
func OnEvent(fn func(*Session, Event)) Option {
	return func(o *options) {
		o.onEvent = fn
	}
}

// OnMessage sets the inbound message callback of a Session.
func OnMessage(fn func(s *Session, topic string, payload []byte)) Option {
	return func(o *options) {
		o.onMessage = fn
	}
}

func applyOptions(opts ...Option) *options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	if o.clientID == "" {
		o.clientID = generateClientID()
	}
	if o.logger == nil {
		o.logger = NewNoOpLogger()
	}
	if o.metrics == nil {
		o.metrics = &NoOpMetrics{}
	}

	return o
}

// generateClientID returns a 23 character id, the longest every 3.1.1
// broker must accept.
func generateClientID() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "mqtt3-" + id[:17]
}

func (o *options) connectOptions() ConnectOptions {
	return ConnectOptions{
		ClientID:     o.clientID,
		Username:     o.username,
		Password:     o.password,
		KeepAlive:    o.keepAlive,
		CleanSession: o.cleanSession,
		Will:         o.will,
	}
}
