package router

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"sync"

	"github.com/vitalvas/mqtt3"
)

// Handler processes an inbound application message.
type Handler func(topic string, payload []byte)

// Condition defines filtering criteria for message routing.
type Condition struct {
	topicFilter   *string
	topicRegexp   *regexp.Regexp
	payloadRegexp *regexp.Regexp
}

// ConditionOption configures a Condition.
type ConditionOption func(*Condition)

// WithTopic sets the topic filter for message matching.
// Supports MQTT wildcards: + (single level) and # (multi level).
func WithTopic(filter string) ConditionOption {
	return func(c *Condition) {
		c.topicFilter = &filter
	}
}

// WithTopicRegexp filters messages by a topic regexp pattern.
func WithTopicRegexp(pattern *regexp.Regexp) ConditionOption {
	return func(c *Condition) {
		c.topicRegexp = pattern
	}
}

// WithPayload filters messages by a payload regexp pattern.
func WithPayload(pattern *regexp.Regexp) ConditionOption {
	return func(c *Condition) {
		c.payloadRegexp = pattern
	}
}

type registration struct {
	handler   Handler
	condition Condition
}

// Subscriber is implemented by *mqtt3.Client.
type Subscriber interface {
	Subscribe(ctx context.Context, filter string, qos mqtt3.QoS) error
}

// Router dispatches messages to handlers based on conditions.
type Router struct {
	mu       sync.RWMutex
	handlers []registration
}

// New creates a new Router.
func New() *Router {
	return &Router{
		handlers: make([]registration, 0),
	}
}

// Handle registers a handler with optional conditions. A handler without
// conditions receives every message.
//
// Examples:
//
//	r.Handle(handler, WithTopic("sensors/#"))
//	r.Handle(handler, WithTopic("sensors/#"), WithPayload(regexp.MustCompile(`^\{`)))
func (r *Router) Handle(handler Handler, opts ...ConditionOption) {
	var cond Condition
	for _, opt := range opts {
		opt(&cond)
	}

	r.mu.Lock()
	r.handlers = append(r.handlers, registration{
		handler:   handler,
		condition: cond,
	})
	r.mu.Unlock()
}

func (c *Condition) matches(topic string, payload []byte) bool {
	if c.topicFilter != nil && !mqtt3.TopicMatch(*c.topicFilter, topic) {
		return false
	}
	if c.topicRegexp != nil && !c.topicRegexp.MatchString(topic) {
		return false
	}
	if c.payloadRegexp != nil && !c.payloadRegexp.Match(payload) {
		return false
	}
	return true
}

// Route dispatches a message to all matching handlers in registration
// order.
func (r *Router) Route(topic string, payload []byte) {
	r.mu.RLock()
	var matched []Handler
	for _, reg := range r.handlers {
		if reg.condition.matches(topic, payload) {
			matched = append(matched, reg.handler)
		}
	}
	r.mu.RUnlock()

	for _, handler := range matched {
		handler(topic, payload)
	}
}

// Filters returns the unique registered topic filters in sorted order.
func (r *Router) Filters() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, reg := range r.handlers {
		if reg.condition.topicFilter != nil {
			seen[*reg.condition.topicFilter] = struct{}{}
		}
	}

	filters := make([]string, 0, len(seen))
	for filter := range seen {
		filters = append(filters, filter)
	}
	slices.Sort(filters)
	return filters
}

// Len returns the number of registered handlers.
func (r *Router) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// Clear removes all handlers.
func (r *Router) Clear() {
	r.mu.Lock()
	r.handlers = r.handlers[:0]
	r.mu.Unlock()
}

// Listener returns a function for mqtt3.Client.AddMessageListener.
func (r *Router) Listener() mqtt3.MessageListener {
	return r.Route
}

// Subscribe subscribes s to every registered topic filter. It stops at the
// first failure.
func (r *Router) Subscribe(ctx context.Context, s Subscriber, qos mqtt3.QoS) error {
	for _, filter := range r.Filters() {
		if err := s.Subscribe(ctx, filter, qos); err != nil {
			return fmt.Errorf("subscribe %q: %w", filter, err)
		}
	}
	return nil
}
