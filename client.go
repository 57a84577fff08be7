package mqtt3

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Sentinel errors for the Client - check with errors.Is().
var (
	// ErrNotConnected is returned when no session is connected.
	ErrNotConnected = errors.New("mqtt3: not connected")

	// ErrClientClosed is returned after Close.
	ErrClientClosed = errors.New("mqtt3: client closed")
)

// ListenerID identifies a registered listener.
type ListenerID uint64

// StatusListener receives session events. err is nil for EventConnected
// and the *SessionError otherwise.
type StatusListener func(ev Event, err error)

// MessageListener receives inbound application messages.
type MessageListener func(topic string, payload []byte)

// Client dials a broker and runs a Session on its own Loop. It is safe for
// concurrent use. Listeners run in registration order on a dispatch
// goroutine and may call back into the Client.
//
// OnEvent and OnMessage options are ignored by the Client; register
// listeners instead.
type Client struct {
	opts     *options
	userOpts []Option
	logger   Logger
	metrics  *SessionMetrics

	loop    *Loop
	events  *Loop
	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc

	connected atomic.Bool
	closed    atomic.Bool

	// Confined to loop.
	session   *Session
	pending   chan error
	subs      map[string]QoS
	sessions  int
	reconnect bool

	listenersMu      sync.RWMutex
	nextListener     ListenerID
	statusListeners  []listener[StatusListener]
	messageListeners []listener[MessageListener]
}

// listener keeps a callback with its handle, in registration order.
type listener[F any] struct {
	id ListenerID
	fn F
}

func removeListener[F any](list []listener[F], id ListenerID) ([]listener[F], bool) {
	i := slices.IndexFunc(list, func(l listener[F]) bool { return l.id == id })
	if i < 0 {
		return list, false
	}
	return slices.Delete(list, i, i+1), true
}

// snapshot copies the callbacks so they run without holding the lock.
func snapshot[F any](mu *sync.RWMutex, list *[]listener[F]) []F {
	mu.RLock()
	defer mu.RUnlock()

	fns := make([]F, len(*list))
	for i, l := range *list {
		fns[i] = l.fn
	}
	return fns
}

// Dial connects to the broker and returns once the broker accepted
// CONNECT. ctx bounds the first connection only.
func Dial(ctx context.Context, opts ...Option) (*Client, error) {
	o := applyOptions(opts...)

	lifetime, cancel := context.WithCancel(context.Background())
	c := &Client{
		opts:             o,
		userOpts:         opts,
		logger:           o.logger.WithFields(LogFields{LogFieldClientID: o.clientID}),
		metrics:          NewSessionMetrics(o.metrics),
		loop:             NewLoop(),
		events:           NewLoop(),
		limiter:          rate.NewLimiter(rate.Every(o.reconnectBackoff), 1),
		ctx:              lifetime,
		cancel:           cancel,
		subs:             make(map[string]QoS),
	}

	// The first attempt spends the limiter's token so a session that
	// drops right away does not reconnect immediately.
	c.limiter.Allow()

	if err := c.connect(ctx); err != nil {
		c.shutdown()
		return nil, err
	}

	return c, nil
}

// ClientID returns the identifier sent in CONNECT.
func (c *Client) ClientID() string {
	return c.opts.clientID
}

// IsConnected reports whether a session is currently connected.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// Publish sends a message and returns its id, which is zero for QoS 0.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte, qos QoS, retain bool) (uint16, error) {
	var id uint16
	err := c.do(ctx, func(s *Session) error {
		var err error
		id, err = s.Publish(topic, payload, qos, retain)
		return err
	})
	return id, err
}

// InFlight returns the number of unacknowledged QoS 1 and 2 publishes of
// the current session.
func (c *Client) InFlight(ctx context.Context) (int, error) {
	var n int
	err := c.do(ctx, func(s *Session) error {
		n = s.InFlight()
		return nil
	})
	return n, err
}

// Subscribe subscribes to filter. With a clean session the subscription is
// renewed after every reconnect.
func (c *Client) Subscribe(ctx context.Context, filter string, qos QoS) error {
	return c.do(ctx, func(s *Session) error {
		if _, err := s.Subscribe(filter, qos); err != nil {
			return err
		}
		c.subs[filter] = qos
		return nil
	})
}

// Unsubscribe removes a subscription.
func (c *Client) Unsubscribe(ctx context.Context, filter string) error {
	return c.do(ctx, func(s *Session) error {
		if _, err := s.Unsubscribe(filter); err != nil {
			return err
		}
		delete(c.subs, filter)
		return nil
	})
}

// Close disconnects, stops reconnecting and releases the loops. Listeners
// receive EventConnectionClosed before the dispatch goroutine stops.
// Closing twice is a no-op.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), connFlushTimeout)
	defer cancel()

	err := c.loop.Do(ctx, func() error {
		if c.session != nil {
			c.session.Close()
		}
		return nil
	})
	if errors.Is(err, ErrLoopClosed) {
		err = nil
	}

	c.shutdown()
	return err
}

// AddStatusListener registers fn for session events.
func (c *Client) AddStatusListener(fn StatusListener) ListenerID {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()

	c.nextListener++
	c.statusListeners = append(c.statusListeners, listener[StatusListener]{id: c.nextListener, fn: fn})
	return c.nextListener
}

// RemoveStatusListener unregisters a status listener and reports whether
// it was registered.
func (c *Client) RemoveStatusListener(id ListenerID) bool {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()

	var ok bool
	c.statusListeners, ok = removeListener(c.statusListeners, id)
	return ok
}

// AddMessageListener registers fn for inbound messages.
func (c *Client) AddMessageListener(fn MessageListener) ListenerID {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()

	c.nextListener++
	c.messageListeners = append(c.messageListeners, listener[MessageListener]{id: c.nextListener, fn: fn})
	return c.nextListener
}

// RemoveMessageListener unregisters a message listener and reports
// whether it was registered.
func (c *Client) RemoveMessageListener(id ListenerID) bool {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()

	var ok bool
	c.messageListeners, ok = removeListener(c.messageListeners, id)
	return ok
}

func (c *Client) do(ctx context.Context, fn func(*Session) error) error {
	if c.closed.Load() {
		return ErrClientClosed
	}

	return c.loop.Do(ctx, func() error {
		if c.session == nil || c.session.Status() == StatusError {
			return ErrNotConnected
		}
		return fn(c.session)
	})
}

// connect dials, starts a session on the loop and waits for its first
// event.
func (c *Client) connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.dialTimeout)
	defer cancel()

	dialer, addr, err := newDialer(c.opts)
	if err != nil {
		return err
	}

	c.logger.Debug("dialing", LogFields{LogFieldRemoteAddr: addr})

	conn, err := dialer.Dial(ctx, addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.opts.server, err)
	}

	result := make(chan error, 1)
	var session *Session

	err = c.loop.Do(ctx, func() error {
		s, err := NewSession(c.sessionOptions()...)
		if err != nil {
			return err
		}

		in, out := NewConnStreams(conn, c.loop, c.logger)
		if err := s.Start(in, out); err != nil {
			return err
		}

		session = s
		c.session = s
		c.pending = result
		return nil
	})
	if err != nil {
		conn.Close()
		return err
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		c.loop.Post(func() {
			if session != nil {
				session.Close()
			}
		})
		return fmt.Errorf("waiting for CONNACK: %w", ctx.Err())
	}
}

func (c *Client) sessionOptions() []Option {
	opts := make([]Option, 0, len(c.userOpts)+6)
	opts = append(opts, c.userOpts...)
	return append(opts,
		WithClientID(c.opts.clientID),
		WithLogger(c.opts.logger),
		WithMetrics(c.opts.metrics),
		WithScheduler(c.loop),
		OnEvent(c.handleEvent),
		OnMessage(c.handleMessage),
	)
}

// handleEvent runs on the loop. Client state is updated before a pending
// connect is released.
func (c *Client) handleEvent(s *Session, ev Event) {
	if s != c.session {
		return
	}

	if ev == EventConnected {
		c.reconnect = false
		c.sessions++
		c.connected.Store(true)
		if c.sessions > 1 {
			c.metrics.Reconnected()
			c.restoreSubscriptions(s)
		}
	} else {
		wasConnected := c.connected.Swap(false)
		if wasConnected && c.opts.autoReconnect && !c.closed.Load() && !c.reconnect {
			c.reconnect = true
			go c.reconnectLoop()
		}
	}

	err := s.Err()
	if c.pending != nil {
		c.pending <- err
		c.pending = nil
	}

	c.dispatchStatus(ev, err)
}

// handleMessage runs on the loop.
func (c *Client) handleMessage(s *Session, topic string, payload []byte) {
	if s != c.session {
		return
	}

	c.events.Post(func() {
		for _, fn := range snapshot(&c.listenersMu, &c.messageListeners) {
			fn(topic, payload)
		}
	})
}

func (c *Client) dispatchStatus(ev Event, err error) {
	c.events.Post(func() {
		for _, fn := range snapshot(&c.listenersMu, &c.statusListeners) {
			fn(ev, err)
		}
	})
}

func (c *Client) restoreSubscriptions(s *Session) {
	if !c.opts.cleanSession {
		return
	}

	for filter, qos := range c.subs {
		if _, err := s.Subscribe(filter, qos); err != nil {
			c.logger.Warn("resubscribe failed", LogFields{LogFieldTopic: filter, LogFieldError: err.Error()})
		}
	}
}

func (c *Client) reconnectLoop() {
	backoff := c.opts.reconnectBackoff
	for attempt := 1; ; attempt++ {
		if err := c.limiter.Wait(c.ctx); err != nil {
			return
		}

		c.logger.Info("reconnecting", LogFields{"attempt": attempt})

		err := c.connect(c.ctx)
		if err == nil {
			return
		}
		if c.closed.Load() {
			return
		}

		c.logger.Warn("reconnect failed", LogFields{
			"attempt":     attempt,
			"backoff":     backoff.String(),
			LogFieldError: err.Error(),
		})

		timer := time.NewTimer(backoff)
		select {
		case <-c.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		backoff = min(backoff*2, c.opts.maxBackoff)
	}
}

func (c *Client) shutdown() {
	c.cancel()
	c.loop.Close()
	// Deliver queued notifications, then stop the dispatcher.
	c.events.Post(c.events.Close)
}
