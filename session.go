package mqtt3

import (
	"fmt"
	"time"
)

// Status is the connection state of a Session.
type Status int

// Session states. StatusError is terminal; reconnecting needs a new Session.
const (
	StatusCreated Status = iota
	StatusConnecting
	StatusConnected
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Session runs one MQTT connection over a pair of streams: the CONNECT
// handshake, the QoS 1 and 2 acknowledgment flows, retransmission and
// keep-alive.
//
// A Session is not safe for concurrent use. Stream events, scheduler
// callbacks and API calls must all arrive on the same goroutine; Loop
// provides one.
type Session struct {
	opts    *options
	logger  Logger
	metrics *SessionMetrics
	connect *Message

	status  Status
	err     error
	started bool

	decoder *StreamDecoder
	encoder *StreamEncoder
	flows   *flowTable
	queue   []*Message

	idle           uint32
	keepAliveTicks uint32
	stopTick       func()
}

// NewSession builds a session and its CONNECT message. Nothing is sent
// until Start and the first writable event.
func NewSession(opts ...Option) (*Session, error) {
	o := applyOptions(opts...)

	connect, err := NewConnectMessage(o.connectOptions())
	if err != nil {
		return nil, fmt.Errorf("build CONNECT: %w", err)
	}

	s := &Session{
		opts:    o,
		logger:  o.logger.WithFields(LogFields{LogFieldClientID: o.clientID}),
		metrics: NewSessionMetrics(o.metrics),
		connect: connect,
		flows:   newFlowTable(),
	}

	if o.keepAlive > 0 {
		ticks := (time.Duration(o.keepAlive)*time.Second + o.tickInterval - 1) / o.tickInterval
		s.keepAliveTicks = uint32(max(ticks, 1))
	}

	return s, nil
}

// Start attaches the session to its streams. The handshake begins on the
// first StreamHasSpaceAvailable event of out.
func (s *Session) Start(in InputStream, out OutputStream) error {
	if s.status == StatusError {
		return ErrSessionClosed
	}
	if s.started {
		return ErrSessionStarted
	}
	if s.opts.scheduler == nil {
		return ErrNoScheduler
	}

	s.started = true
	h := &sessionStreams{s: s}
	s.decoder = NewStreamDecoder(in, h, s.opts.maxMessageSize, s.logger)
	s.encoder = NewStreamEncoder(out, h, s.logger)

	s.logger.Debug("session started", nil)

	return nil
}

// Status returns the connection state.
func (s *Session) Status() Status {
	return s.status
}

// Err returns the *SessionError that ended the session, or nil.
func (s *Session) Err() error {
	return s.err
}

// InFlight returns the number of outbound QoS 1 and 2 flows.
func (s *Session) InFlight() int {
	return len(s.flows.tx)
}

// ClientID returns the identifier sent in CONNECT.
func (s *Session) ClientID() string {
	return s.opts.clientID
}

// Publish sends a message and returns its id, which is zero for QoS 0.
// Calls made before the handshake completes are queued.
func (s *Session) Publish(topic string, payload []byte, qos QoS, retain bool) (uint16, error) {
	if s.status == StatusError {
		return 0, ErrSessionClosed
	}
	if !qos.Valid() {
		return 0, ErrInvalidQoS
	}

	var id uint16
	if qos > QoS0 {
		var err error
		if id, err = s.flows.nextID(); err != nil {
			return 0, err
		}
	}

	msg, err := NewPublishMessage(topic, payload, qos, retain, id)
	if err != nil {
		return 0, err
	}

	if qos > QoS0 {
		s.flows.track(id, msg, time.Now())
		s.metrics.InFlight(len(s.flows.tx))
	}

	s.logger.Debug("publish", LogFields{LogFieldTopic: topic, LogFieldQoS: int(qos), LogFieldMessageID: id})

	return id, s.send(msg)
}

// PublishAtMostOnce publishes with QoS 0.
func (s *Session) PublishAtMostOnce(topic string, payload []byte, retain bool) error {
	_, err := s.Publish(topic, payload, QoS0, retain)
	return err
}

// PublishAtLeastOnce publishes with QoS 1.
func (s *Session) PublishAtLeastOnce(topic string, payload []byte, retain bool) (uint16, error) {
	return s.Publish(topic, payload, QoS1, retain)
}

// PublishExactlyOnce publishes with QoS 2.
func (s *Session) PublishExactlyOnce(topic string, payload []byte, retain bool) (uint16, error) {
	return s.Publish(topic, payload, QoS2, retain)
}

// Subscribe requests a subscription and returns the SUBSCRIBE id.
func (s *Session) Subscribe(filter string, qos QoS) (uint16, error) {
	if s.status == StatusError {
		return 0, ErrSessionClosed
	}

	id, err := s.flows.nextID()
	if err != nil {
		return 0, err
	}

	msg, err := NewSubscribeMessage(id, filter, qos)
	if err != nil {
		return 0, err
	}

	s.logger.Debug("subscribe", LogFields{LogFieldTopic: filter, LogFieldQoS: int(qos), LogFieldMessageID: id})

	return id, s.send(msg)
}

// Unsubscribe removes a subscription and returns the UNSUBSCRIBE id.
func (s *Session) Unsubscribe(filter string) (uint16, error) {
	if s.status == StatusError {
		return 0, ErrSessionClosed
	}

	id, err := s.flows.nextID()
	if err != nil {
		return 0, err
	}

	msg, err := NewUnsubscribeMessage(id, filter)
	if err != nil {
		return 0, err
	}

	s.logger.Debug("unsubscribe", LogFields{LogFieldTopic: filter, LogFieldMessageID: id})

	return id, s.send(msg)
}

// Close sends DISCONNECT when possible, tears the session down and reports
// EventConnectionClosed. Closing a session in the Error state does nothing.
func (s *Session) Close() {
	if s.status == StatusError {
		return
	}

	if s.status == StatusConnected && s.encoder.Ready() {
		if err := s.write(NewDisconnectMessage()); err != nil {
			s.logger.Debug("DISCONNECT not sent", LogFields{LogFieldError: err.Error()})
		}
	}

	s.fail(EventConnectionClosed, 0, nil)
}

// send writes msg now if the encoder is idle and nothing is queued ahead
// of it, otherwise it queues msg.
func (s *Session) send(msg *Message) error {
	if s.status == StatusConnected && len(s.queue) == 0 && s.encoder.Ready() {
		return s.write(msg)
	}

	s.queue = append(s.queue, msg)
	return nil
}

// drain writes queued messages while the encoder accepts them.
func (s *Session) drain() {
	for len(s.queue) > 0 && s.status == StatusConnected && s.encoder.Ready() {
		msg := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]

		if err := s.write(msg); err != nil {
			s.logger.Warn("queued message not sent", LogFields{
				LogFieldMessageType: msg.Type.String(),
				LogFieldError:       err.Error(),
			})
		}
	}
}

func (s *Session) write(msg *Message) error {
	if err := s.encoder.Encode(msg); err != nil {
		return err
	}

	// Any control packet counts as activity (MQTT 3.1.1 section 3.1.2.10).
	s.idle = 0
	s.metrics.MessageSent(msg)

	return nil
}

func (s *Session) encoderReady() {
	switch s.status {
	case StatusCreated:
		s.status = StatusConnecting
		s.logger.Debug("sending CONNECT", nil)
		if err := s.write(s.connect); err != nil {
			s.fail(EventConnectionError, 0, err)
		}
	case StatusConnected:
		s.drain()
	}
}

func (s *Session) handleMessage(msg *Message) {
	if s.status == StatusError {
		return
	}

	s.metrics.MessageReceived(msg)

	switch s.status {
	case StatusCreated:
		s.fail(EventProtocolError, 0, fmt.Errorf("unexpected %s before CONNECT", msg.Type))
	case StatusConnecting:
		s.handleConnack(msg)
	case StatusConnected:
		s.dispatch(msg)
	}
}

func (s *Session) handleConnack(msg *Message) {
	if msg.Type != TypeCONNACK {
		s.fail(EventProtocolError, 0, fmt.Errorf("unexpected %s while connecting", msg.Type))
		return
	}

	_, code, ok := ParseConnack(msg)
	if !ok {
		s.fail(EventProtocolError, 0, fmt.Errorf("malformed CONNACK of %d bytes", len(msg.Data)))
		return
	}
	if code != ConnackAccepted {
		s.fail(EventConnectionRefused, code, nil)
		return
	}

	s.status = StatusConnected
	s.idle = 0
	s.stopTick = s.opts.scheduler.Every(s.opts.tickInterval, s.tick)
	s.metrics.Connected()
	s.logger.Info("connected", nil)

	s.drain()
	if s.status == StatusConnected {
		s.notify(EventConnected)
	}
}

func (s *Session) dispatch(msg *Message) {
	switch msg.Type {
	case TypePUBLISH:
		s.handlePublish(msg)
	case TypePUBACK:
		s.handlePuback(msg)
	case TypePUBREC:
		s.handlePubrec(msg)
	case TypePUBREL:
		s.handlePubrel(msg)
	case TypePUBCOMP:
		s.handlePubcomp(msg)
	case TypeSUBACK:
		s.handleSuback(msg)
	case TypeUNSUBACK:
		id, _ := MessageID(msg)
		s.logger.Debug("unsubscribe acknowledged", LogFields{LogFieldMessageID: id})
	case TypePINGRESP:
		s.logger.Debug("ping response", nil)
	default:
		s.drop(msg, "unexpected message type")
	}
}

func (s *Session) handlePublish(msg *Message) {
	f, ok := ParsePublish(msg)
	if !ok {
		s.drop(msg, "malformed PUBLISH")
		return
	}

	switch msg.QoS {
	case QoS0:
		s.deliver(f.Topic, f.Payload)
	case QoS1:
		s.deliver(f.Topic, f.Payload)
		s.reply(NewPubackMessage(f.MessageID))
	case QoS2:
		s.flows.rx[f.MessageID] = &rxFlow{topic: f.Topic, payload: f.Payload}
		s.reply(NewPubrecMessage(f.MessageID))
	}
}

func (s *Session) handlePuback(msg *Message) {
	id, ok := MessageID(msg)
	if !ok {
		s.drop(msg, "malformed PUBACK")
		return
	}

	fl, ok := s.flows.tx[id]
	if !ok || fl.msg.Type != TypePUBLISH || fl.qos != QoS1 {
		return
	}

	s.flows.complete(id)
	s.flowDone(id, fl)
}

func (s *Session) handlePubrec(msg *Message) {
	id, ok := MessageID(msg)
	if !ok {
		s.drop(msg, "malformed PUBREC")
		return
	}

	fl, ok := s.flows.tx[id]
	if !ok || fl.msg.Type != TypePUBLISH || fl.qos != QoS2 {
		return
	}

	fl.msg = NewPubrelMessage(id)
	s.flows.schedule(id, fl)
	s.reply(fl.msg)
}

func (s *Session) handlePubrel(msg *Message) {
	id, ok := MessageID(msg)
	if !ok {
		s.drop(msg, "malformed PUBREL")
		return
	}

	if rx, ok := s.flows.rx[id]; ok {
		delete(s.flows.rx, id)
		s.deliver(rx.topic, rx.payload)
	}
	s.reply(NewPubcompMessage(id))
}

func (s *Session) handlePubcomp(msg *Message) {
	id, ok := MessageID(msg)
	if !ok {
		s.drop(msg, "malformed PUBCOMP")
		return
	}

	fl, ok := s.flows.tx[id]
	if !ok || fl.msg.Type != TypePUBREL {
		return
	}

	s.flows.complete(id)
	s.flowDone(id, fl)
}

func (s *Session) handleSuback(msg *Message) {
	id, codes, ok := ParseSuback(msg)
	if !ok {
		s.drop(msg, "malformed SUBACK")
		return
	}

	for _, code := range codes {
		if code == SubackFailure {
			s.logger.Warn("subscription rejected", LogFields{LogFieldMessageID: id})
			return
		}
	}
	s.logger.Debug("subscription acknowledged", LogFields{LogFieldMessageID: id, LogFieldQoS: int(codes[0])})
}

func (s *Session) flowDone(id uint16, fl *txFlow) {
	s.metrics.InFlight(len(s.flows.tx))
	s.metrics.FlowCompleted(fl.qos, time.Since(fl.started))
	s.logger.Debug("flow completed", LogFields{LogFieldMessageID: id})
}

// reply sends an acknowledgment, logging instead of failing on error.
func (s *Session) reply(msg *Message) {
	if err := s.send(msg); err != nil {
		s.logger.Warn("acknowledgment not sent", LogFields{
			LogFieldMessageType: msg.Type.String(),
			LogFieldError:       err.Error(),
		})
	}
}

func (s *Session) drop(msg *Message, reason string) {
	s.metrics.Dropped(msg.Type)
	s.logger.Debug(reason, LogFields{LogFieldMessageType: msg.Type.String(), LogFieldBytes: len(msg.Data)})
}

func (s *Session) deliver(topic string, payload []byte) {
	if s.opts.onMessage != nil {
		s.opts.onMessage(s, topic, payload)
	}
}

// tick runs once per tick interval while connected: keep-alive first, then
// the retransmission of every flow due in the current ring bucket.
func (s *Session) tick() {
	if s.status != StatusConnected {
		return
	}

	s.idle++
	if s.keepAliveTicks > 0 && s.idle >= s.keepAliveTicks && len(s.queue) == 0 && s.encoder.Ready() {
		if err := s.write(NewPingreqMessage()); err != nil {
			s.logger.Debug("PINGREQ not sent", LogFields{LogFieldError: err.Error()})
		}
	}

	for _, id := range s.flows.advance() {
		if s.status != StatusConnected {
			return
		}

		fl := s.flows.tx[id]
		// Only PUBLISH is redelivered with DUP set. PUBREL keeps its
		// reserved 0010 header flags (MQTT 3.1.1 section 3.6.1).
		if fl.msg.Type == TypePUBLISH {
			fl.msg.SetDuplicate()
		}
		s.flows.schedule(id, fl)
		s.metrics.Retransmitted(fl.msg)
		s.logger.Debug("retransmit", LogFields{LogFieldMessageID: id, LogFieldMessageType: fl.msg.Type.String()})
		s.reply(fl.msg)
	}
}

// fail tears the session down and reports ev once.
func (s *Session) fail(ev Event, code ConnackCode, cause error) {
	if s.status == StatusError {
		return
	}

	s.teardown()
	s.status = StatusError
	s.err = &SessionError{Event: ev, Code: code, Cause: cause}
	s.metrics.Disconnected(ev)

	fields := LogFields{LogFieldEvent: ev.String()}
	if cause != nil {
		fields[LogFieldError] = cause.Error()
	}
	if ev == EventConnectionClosed && cause == nil {
		s.logger.Info("session closed", fields)
	} else {
		s.logger.Warn("session failed", fields)
	}

	if d := s.opts.errorNotifyDelay; d > 0 && s.opts.scheduler != nil {
		s.opts.scheduler.After(d, func() { s.notify(ev) })
		return
	}
	s.notify(ev)
}

func (s *Session) teardown() {
	if s.stopTick != nil {
		s.stopTick()
		s.stopTick = nil
	}
	if s.encoder != nil {
		s.encoder.Close()
	}
	if s.decoder != nil {
		s.decoder.Close()
	}
	s.queue = nil
}

func (s *Session) notify(ev Event) {
	if s.opts.onEvent != nil {
		s.opts.onEvent(s, ev)
	}
}

// sessionStreams routes decoder and encoder callbacks to the session
// without exporting them on Session.
type sessionStreams struct {
	s *Session
}

func (h *sessionStreams) DecoderMessage(_ *StreamDecoder, msg *Message) {
	h.s.handleMessage(msg)
}

func (h *sessionStreams) DecoderEvent(_ *StreamDecoder, state DecoderState, err error) {
	switch state {
	case DecoderConnectionClosed:
		h.s.fail(EventConnectionClosed, 0, err)
	case DecoderProtocolError:
		h.s.fail(EventProtocolError, 0, err)
	default:
		h.s.fail(EventConnectionError, 0, err)
	}
}

func (h *sessionStreams) EncoderReady(_ *StreamEncoder) {
	h.s.encoderReady()
}

func (h *sessionStreams) EncoderError(_ *StreamEncoder, err error) {
	h.s.fail(EventConnectionError, 0, err)
}
