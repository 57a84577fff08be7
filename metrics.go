package mqtt3

import (
	"time"
)

// MetricLabels represents key-value pairs for metric labels.
type MetricLabels map[string]string

// Metrics is a factory for named metrics. Implementations must be safe for
// concurrent use; the same name and labels return the same metric.
type Metrics interface {
	Counter(name string, labels MetricLabels) Counter
	Gauge(name string, labels MetricLabels) Gauge
	Histogram(name string, labels MetricLabels) Histogram
}

// Counter is a monotonically increasing counter.
type Counter interface {
	Inc()
	Add(delta float64)
	Value() float64
}

// Gauge is a metric that can go up and down.
type Gauge interface {
	Set(value float64)
	Inc()
	Dec()
	Add(delta float64)
	Value() float64
}

// Histogram tracks the distribution of values.
type Histogram interface {
	Observe(value float64)

	// ObserveDuration records a duration in seconds.
	ObserveDuration(d time.Duration)

	Count() uint64
	Sum() float64
}

// NoOpMetrics discards everything.
type NoOpMetrics struct{}

func (n *NoOpMetrics) Counter(_ string, _ MetricLabels) Counter {
	return noOpMetric{}
}

func (n *NoOpMetrics) Gauge(_ string, _ MetricLabels) Gauge {
	return noOpMetric{}
}

func (n *NoOpMetrics) Histogram(_ string, _ MetricLabels) Histogram {
	return noOpMetric{}
}

type noOpMetric struct{}

func (noOpMetric) Inc()                            {}
func (noOpMetric) Dec()                            {}
func (noOpMetric) Set(_ float64)                   {}
func (noOpMetric) Add(_ float64)                   {}
func (noOpMetric) Value() float64                  { return 0 }
func (noOpMetric) Observe(_ float64)               {}
func (noOpMetric) ObserveDuration(_ time.Duration) {}
func (noOpMetric) Count() uint64                   { return 0 }
func (noOpMetric) Sum() float64                    { return 0 }

// Metric names.
const (
	MetricMessagesSent     = "mqtt3_messages_sent_total"
	MetricMessagesReceived = "mqtt3_messages_received_total"
	MetricBytesSent        = "mqtt3_bytes_sent_total"
	MetricBytesReceived    = "mqtt3_bytes_received_total"
	MetricRetransmissions  = "mqtt3_retransmissions_total"
	MetricDropped          = "mqtt3_messages_dropped_total"
	MetricInFlight         = "mqtt3_inflight_flows"
	MetricFlowLatency      = "mqtt3_flow_latency_seconds"
	MetricConnects         = "mqtt3_connects_total"
	MetricDisconnects      = "mqtt3_disconnects_total"
	MetricReconnects       = "mqtt3_reconnects_total"
)

// Metric labels.
const (
	LabelMessageType = "message_type"
	LabelQoS         = "qos"
	LabelEvent       = "event"
)

// SessionMetrics records the protocol activity of one session.
type SessionMetrics struct {
	metrics Metrics
}

// NewSessionMetrics wraps m. A nil m records nothing.
func NewSessionMetrics(m Metrics) *SessionMetrics {
	if m == nil {
		m = &NoOpMetrics{}
	}
	return &SessionMetrics{metrics: m}
}

// MessageSent records an encoded outbound frame.
func (s *SessionMetrics) MessageSent(msg *Message) {
	s.metrics.Counter(MetricMessagesSent, MetricLabels{LabelMessageType: msg.Type.String()}).Inc()
	s.metrics.Counter(MetricBytesSent, nil).Add(float64(msg.Size()))
}

// MessageReceived records a decoded inbound frame.
func (s *SessionMetrics) MessageReceived(msg *Message) {
	s.metrics.Counter(MetricMessagesReceived, MetricLabels{LabelMessageType: msg.Type.String()}).Inc()
	s.metrics.Counter(MetricBytesReceived, nil).Add(float64(msg.Size()))
}

// Retransmitted records a flow re-sent with the duplicate flag.
func (s *SessionMetrics) Retransmitted(msg *Message) {
	s.metrics.Counter(MetricRetransmissions, MetricLabels{LabelMessageType: msg.Type.String()}).Inc()
}

// Dropped records a frame that could not be handled.
func (s *SessionMetrics) Dropped(t MessageType) {
	s.metrics.Counter(MetricDropped, MetricLabels{LabelMessageType: t.String()}).Inc()
}

// InFlight sets the number of outbound flows awaiting acknowledgment.
func (s *SessionMetrics) InFlight(n int) {
	s.metrics.Gauge(MetricInFlight, nil).Set(float64(n))
}

// FlowCompleted records the time from first send to final acknowledgment.
func (s *SessionMetrics) FlowCompleted(qos QoS, d time.Duration) {
	s.metrics.Histogram(MetricFlowLatency, MetricLabels{LabelQoS: qos.String()}).ObserveDuration(d)
}

// Connected records a successful handshake.
func (s *SessionMetrics) Connected() {
	s.metrics.Counter(MetricConnects, nil).Inc()
}

// Disconnected records the terminal event of a session.
func (s *SessionMetrics) Disconnected(ev Event) {
	s.metrics.Counter(MetricDisconnects, MetricLabels{LabelEvent: ev.String()}).Inc()
}

// Reconnected records a reconnect attempt made by a Client.
func (s *SessionMetrics) Reconnected() {
	s.metrics.Counter(MetricReconnects, nil).Inc()
}
