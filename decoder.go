package mqtt3

import (
	"errors"
	"fmt"
	"io"
)

const maxInitialDataCap = 64 * 1024

// DecoderState is the state of a StreamDecoder.
type DecoderState int

// Decoder states.
const (
	DecoderInitializing DecoderState = iota
	DecoderDecodingHeader
	DecoderDecodingLength
	DecoderDecodingData
	DecoderConnectionClosed
	DecoderConnectionError
	DecoderProtocolError
)

func (s DecoderState) String() string {
	switch s {
	case DecoderInitializing:
		return "initializing"
	case DecoderDecodingHeader:
		return "decoding header"
	case DecoderDecodingLength:
		return "decoding length"
	case DecoderDecodingData:
		return "decoding data"
	case DecoderConnectionClosed:
		return "connection closed"
	case DecoderConnectionError:
		return "connection error"
	case DecoderProtocolError:
		return "protocol error"
	default:
		return "unknown"
	}
}

// Terminal reports whether the decoder stopped for good.
func (s DecoderState) Terminal() bool {
	return s >= DecoderConnectionClosed
}

// DecoderHandler receives the output of a StreamDecoder.
type DecoderHandler interface {
	// DecoderMessage is called for every complete frame.
	DecoderMessage(d *StreamDecoder, msg *Message)

	// DecoderEvent is called once when the decoder reaches a terminal state.
	DecoderEvent(d *StreamDecoder, state DecoderState, err error)
}

// StreamDecoder assembles frames from an InputStream. Reads may stop at
// any byte; decoding resumes on the next StreamHasBytesAvailable event.
// It is not safe for concurrent use.
type StreamDecoder struct {
	in      InputStream
	handler DecoderHandler
	maxSize uint32
	logger  Logger

	state  DecoderState
	header byte
	length varintAccumulator
	data   []byte
	err    error
	closed bool
}

// NewStreamDecoder attaches a decoder to in. A maxSize of 0 accepts any
// remaining length up to the protocol limit.
func NewStreamDecoder(in InputStream, handler DecoderHandler, maxSize uint32, logger Logger) *StreamDecoder {
	if logger == nil {
		logger = NewNoOpLogger()
	}

	d := &StreamDecoder{
		in:      in,
		handler: handler,
		maxSize: maxSize,
		logger:  logger,
	}
	in.SetHandler(d.HandleEvent)

	return d
}

// State returns the current state.
func (d *StreamDecoder) State() DecoderState {
	return d.state
}

// Err returns the error that moved the decoder to a terminal state.
func (d *StreamDecoder) Err() error {
	return d.err
}

// HandleEvent advances the decoder for one stream event.
func (d *StreamDecoder) HandleEvent(ev StreamEvent) {
	if d.closed || d.state.Terminal() {
		return
	}

	switch ev {
	case StreamOpenCompleted:
		if d.state == DecoderInitializing {
			d.state = DecoderDecodingHeader
		}
	case StreamHasBytesAvailable:
		if d.state == DecoderInitializing {
			d.state = DecoderDecodingHeader
		}
		d.readAvailable()
	case StreamEndEncountered:
		d.fail(DecoderConnectionClosed, io.EOF)
	case StreamErrorOccurred:
		d.fail(DecoderConnectionError, ErrStreamError)
	}
}

// Close detaches the decoder and closes its stream. It is idempotent.
func (d *StreamDecoder) Close() {
	if d.closed {
		return
	}
	d.closed = true
	d.data = nil
	d.in.SetHandler(nil)
	if err := d.in.Close(); err != nil {
		d.logger.Debug("input stream close failed", LogFields{LogFieldError: err.Error()})
	}
}

func (d *StreamDecoder) active() bool {
	return !d.closed && !d.state.Terminal()
}

func (d *StreamDecoder) readAvailable() {
	var one [1]byte

	for d.active() {
		switch d.state {
		case DecoderDecodingHeader:
			n, err := d.in.Read(one[:])
			if !d.readOK(n, err) {
				return
			}

			h := parseHeaderByte(one[0])
			if !h.Type.Valid() {
				d.fail(DecoderProtocolError, fmt.Errorf("%w: %d", ErrInvalidMessageType, h.Type))
				return
			}
			if q := h.QoS(); !q.Valid() {
				d.fail(DecoderProtocolError, fmt.Errorf("%w: %d", ErrInvalidQoS, q))
				return
			}
			d.header = one[0]
			d.length.reset()
			d.state = DecoderDecodingLength

		case DecoderDecodingLength:
			n, err := d.in.Read(one[:])
			if !d.readOK(n, err) {
				return
			}

			done, err := d.length.add(one[0])
			if err != nil {
				d.fail(DecoderProtocolError, err)
				return
			}
			if !done {
				continue
			}

			if d.maxSize > 0 && d.length.value > d.maxSize {
				d.fail(DecoderProtocolError, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, d.length.value))
				return
			}
			if d.length.value == 0 {
				d.emit()
				continue
			}
			// The buffer grows as bytes arrive; the declared length is untrusted.
			d.data = make([]byte, 0, min(d.length.value, maxInitialDataCap))
			d.state = DecoderDecodingData

		case DecoderDecodingData:
			if !d.readData() {
				return
			}
			if uint32(len(d.data)) == d.length.value {
				d.emit()
			}

		default:
			return
		}
	}
}

// readData reads one chunk of the payload and reports whether bytes were read.
func (d *StreamDecoder) readData() bool {
	chunk := getReadChunk()
	defer putReadChunk(chunk)

	want := min(int(d.length.value)-len(d.data), readChunkSize)
	n, err := d.in.Read((*chunk)[:want])
	if !d.readOK(n, err) {
		return false
	}

	d.data = append(d.data, (*chunk)[:n]...)
	return true
}

// readOK reports whether a read produced bytes, failing the decoder on error.
func (d *StreamDecoder) readOK(n int, err error) bool {
	if err != nil {
		if errors.Is(err, io.EOF) {
			d.fail(DecoderConnectionClosed, err)
		} else {
			d.fail(DecoderConnectionError, err)
		}
		return false
	}
	return n > 0
}

func (d *StreamDecoder) emit() {
	h := parseHeaderByte(d.header)
	h.RemainingLength = d.length.value
	msg := h.message()
	if len(d.data) > 0 {
		msg.Data = d.data
	}

	d.data = nil
	d.state = DecoderDecodingHeader

	if d.handler != nil {
		d.handler.DecoderMessage(d, msg)
	}
}

func (d *StreamDecoder) fail(state DecoderState, err error) {
	d.state = state
	d.err = err
	d.data = nil

	d.logger.Debug("decoder stopped", LogFields{LogFieldState: state.String(), LogFieldError: err.Error()})

	if d.handler != nil {
		d.handler.DecoderEvent(d, state, err)
	}
}
