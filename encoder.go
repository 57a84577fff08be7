package mqtt3

// EncoderState is the state of a StreamEncoder.
type EncoderState int

// Encoder states.
const (
	EncoderInitializing EncoderState = iota
	EncoderReady
	EncoderSending
	EncoderError
)

func (s EncoderState) String() string {
	switch s {
	case EncoderInitializing:
		return "initializing"
	case EncoderReady:
		return "ready"
	case EncoderSending:
		return "sending"
	case EncoderError:
		return "error"
	default:
		return "unknown"
	}
}

// EncoderHandler receives notifications from a StreamEncoder.
type EncoderHandler interface {
	// EncoderReady is called when the encoder can accept a message.
	EncoderReady(e *StreamEncoder)

	// EncoderError is called once when writing fails.
	EncoderError(e *StreamEncoder, err error)
}

// StreamEncoder writes one frame at a time to an OutputStream, resuming
// partial writes on StreamHasSpaceAvailable. It does not queue: Encode
// only succeeds in the Ready state. It is not safe for concurrent use.
type StreamEncoder struct {
	out     OutputStream
	handler EncoderHandler
	logger  Logger

	state   EncoderState
	pending *bytesBuffer
	offset  int
	err     error
	closed  bool
}

// NewStreamEncoder attaches an encoder to out.
func NewStreamEncoder(out OutputStream, handler EncoderHandler, logger Logger) *StreamEncoder {
	if logger == nil {
		logger = NewNoOpLogger()
	}

	e := &StreamEncoder{
		out:     out,
		handler: handler,
		logger:  logger,
	}
	out.SetHandler(e.HandleEvent)

	return e
}

// State returns the current state.
func (e *StreamEncoder) State() EncoderState {
	return e.state
}

// Ready reports whether Encode would accept a message.
func (e *StreamEncoder) Ready() bool {
	return !e.closed && e.state == EncoderReady
}

// Err returns the error that moved the encoder to the Error state.
func (e *StreamEncoder) Err() error {
	return e.err
}

// HandleEvent advances the encoder for one stream event.
func (e *StreamEncoder) HandleEvent(ev StreamEvent) {
	if e.closed || e.state == EncoderError {
		return
	}

	switch ev {
	case StreamHasSpaceAvailable:
		switch e.state {
		case EncoderInitializing, EncoderReady:
			e.state = EncoderReady
			e.notifyReady()
		case EncoderSending:
			if e.flush() {
				e.notifyReady()
			}
		}
	case StreamEndEncountered:
		e.fail(ErrStreamEnded)
	case StreamErrorOccurred:
		e.fail(ErrStreamError)
	}
}

// Encode serializes msg and writes as much as the stream accepts. The rest
// is written on later space events. A message handed over while the
// encoder is not Ready is dropped.
func (e *StreamEncoder) Encode(msg *Message) error {
	if !e.Ready() {
		e.logger.Warn("encoder not ready, message dropped", LogFields{
			LogFieldMessageType: msg.Type.String(),
			LogFieldState:       e.state.String(),
		})
		return ErrEncoderNotReady
	}

	buf := getBytesBuffer()
	data, err := msg.AppendTo(buf.data)
	if err != nil {
		putBytesBuffer(buf)
		return err
	}
	buf.data = data

	e.pending = buf
	e.offset = 0
	e.state = EncoderSending
	if !e.flush() && e.state == EncoderError {
		return e.err
	}

	return nil
}

// Close releases the pending buffer and closes the stream. It is idempotent.
func (e *StreamEncoder) Close() {
	if e.closed {
		return
	}
	e.closed = true
	e.release()
	e.out.SetHandler(nil)
	if err := e.out.Close(); err != nil {
		e.logger.Debug("output stream close failed", LogFields{LogFieldError: err.Error()})
	}
}

// flush writes the pending buffer and reports whether it completed.
func (e *StreamEncoder) flush() bool {
	for e.offset < len(e.pending.data) {
		n, err := e.out.Write(e.pending.data[e.offset:])
		if err != nil {
			e.fail(err)
			return false
		}
		if n == 0 {
			return false
		}
		e.offset += n
	}

	e.release()
	e.state = EncoderReady
	return true
}

func (e *StreamEncoder) release() {
	if e.pending != nil {
		putBytesBuffer(e.pending)
		e.pending = nil
	}
	e.offset = 0
}

func (e *StreamEncoder) notifyReady() {
	if e.handler != nil {
		e.handler.EncoderReady(e)
	}
}

func (e *StreamEncoder) fail(err error) {
	if e.state == EncoderError {
		return
	}
	e.state = EncoderError
	e.err = err
	e.release()

	e.logger.Debug("encoder stopped", LogFields{LogFieldError: err.Error()})

	if e.handler != nil {
		e.handler.EncoderError(e, err)
	}
}
