package mqtt3

import (
	"errors"
	"io"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type decoderRecorder struct {
	messages []*Message
	states   []DecoderState
	errs     []error
}

func (r *decoderRecorder) DecoderMessage(_ *StreamDecoder, msg *Message) {
	r.messages = append(r.messages, msg)
}

func (r *decoderRecorder) DecoderEvent(_ *StreamDecoder, state DecoderState, err error) {
	r.states = append(r.states, state)
	r.errs = append(r.errs, err)
}

func newTestDecoder(maxSize uint32) (*StreamDecoder, *memInput, *decoderRecorder) {
	in := &memInput{}
	rec := &decoderRecorder{}
	return NewStreamDecoder(in, rec, maxSize, nil), in, rec
}

func assertSameMessage(t *testing.T, want, got *Message) {
	t.Helper()
	assert.Equal(t, want.Type, got.Type)
	assert.Equal(t, want.QoS, got.QoS)
	assert.Equal(t, want.Retain, got.Retain)
	assert.Equal(t, want.Duplicate, got.Duplicate)
	assert.Equal(t, string(want.Data), string(got.Data))
}

func decoderFixtures(t *testing.T) []*Message {
	large := make([]byte, 3000)
	for i := range large {
		large[i] = byte(i)
	}

	return []*Message{
		NewConnackMessage(false, ConnackAccepted),
		mustMessage(t)(NewPublishMessage("sensors/x", []byte("21.5"), QoS0, false, 0)),
		mustMessage(t)(NewPublishMessage("sensors/big", large, QoS1, true, 7)),
		NewPubrelMessage(9),
		{Type: TypePINGRESP},
		NewSubackMessage(3, 0x01),
	}
}

func encodeAll(t *testing.T, msgs []*Message) []byte {
	var data []byte
	for _, m := range msgs {
		var err error
		data, err = m.AppendTo(data)
		require.NoError(t, err)
	}
	return data
}

func TestStreamDecoderSplits(t *testing.T) {
	msgs := decoderFixtures(t)
	data := encodeAll(t, msgs)

	tests := []struct {
		name   string
		chunks func() [][]byte
	}{
		{"whole", func() [][]byte { return [][]byte{data} }},
		{"byte at a time", func() [][]byte {
			out := make([][]byte, len(data))
			for i := range data {
				out[i] = data[i : i+1]
			}
			return out
		}},
		{"random", func() [][]byte {
			r := rand.New(rand.NewPCG(1, 2))
			var out [][]byte
			for rest := data; len(rest) > 0; {
				n := min(len(rest), 1+r.IntN(40))
				out = append(out, rest[:n])
				rest = rest[n:]
			}
			return out
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, in, rec := newTestDecoder(0)
			in.event(StreamOpenCompleted)
			assert.Equal(t, DecoderDecodingHeader, d.State())

			for _, chunk := range tt.chunks() {
				in.feed(chunk)
			}

			require.Len(t, rec.messages, len(msgs))
			for i := range msgs {
				assertSameMessage(t, msgs[i], rec.messages[i])
			}
			assert.Empty(t, rec.states)
			assert.Equal(t, DecoderDecodingHeader, d.State())
		})
	}
}

func TestStreamDecoderShortReads(t *testing.T) {
	msgs := decoderFixtures(t)

	d, in, rec := newTestDecoder(0)
	in.maxRead = 3
	in.feed(encodeAll(t, msgs))

	require.Len(t, rec.messages, len(msgs))
	assert.Equal(t, DecoderDecodingHeader, d.State())
}

func TestStreamDecoderPartialFrameWaits(t *testing.T) {
	msg := mustMessage(t)(NewPublishMessage("a/b", []byte("payload"), QoS0, false, 0))
	data, err := msg.AppendTo(nil)
	require.NoError(t, err)

	d, in, rec := newTestDecoder(0)

	in.feed(data[:1])
	assert.Equal(t, DecoderDecodingLength, d.State())

	in.feed(data[1:4])
	assert.Equal(t, DecoderDecodingData, d.State())
	assert.Empty(t, rec.messages)

	in.feed(data[4:])
	require.Len(t, rec.messages, 1)
	assertSameMessage(t, msg, rec.messages[0])
}

func TestStreamDecoderProtocolErrors(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		maxSize uint32
		wantErr error
	}{
		{"reserved type 0", []byte{0x00, 0x00}, 0, ErrInvalidMessageType},
		{"reserved type 15", []byte{0xF0, 0x00}, 0, ErrInvalidMessageType},
		{"five byte length", []byte{0x30, 0xFF, 0xFF, 0xFF, 0xFF, 0x7F}, 0, ErrVarintMalformed},
		{"over max size", []byte{0x30, 0x0B}, 10, ErrMessageTooLarge},
		{"publish with qos 3", []byte{0x36, 0x00}, 0, ErrInvalidQoS},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, in, rec := newTestDecoder(tt.maxSize)
			in.feed(tt.data)

			assert.Equal(t, DecoderProtocolError, d.State())
			require.Len(t, rec.states, 1)
			assert.Equal(t, DecoderProtocolError, rec.states[0])
			assert.ErrorIs(t, rec.errs[0], tt.wantErr)
			assert.ErrorIs(t, d.Err(), tt.wantErr)
			assert.Empty(t, rec.messages)
		})
	}
}

func TestStreamDecoderLargeDeclaredLength(t *testing.T) {
	d, in, rec := newTestDecoder(0)

	in.feed([]byte{0x30, 0xFF, 0xFF, 0xFF, 0x7F})
	assert.Equal(t, DecoderDecodingData, d.State())
	assert.LessOrEqual(t, cap(d.data), maxInitialDataCap)

	payload := make([]byte, 3*maxInitialDataCap)
	in.feed(payload)
	assert.Equal(t, DecoderDecodingData, d.State())
	assert.Len(t, d.data, len(payload))
	assert.Empty(t, rec.messages)
}

func TestStreamDecoderTerminalEvents(t *testing.T) {
	readErr := errors.New("connection reset")

	tests := []struct {
		name      string
		setup     func(in *memInput)
		event     StreamEvent
		wantState DecoderState
	}{
		{"end event", nil, StreamEndEncountered, DecoderConnectionClosed},
		{"error event", nil, StreamErrorOccurred, DecoderConnectionError},
		{"eof on read", func(in *memInput) { in.err = io.EOF }, StreamHasBytesAvailable, DecoderConnectionClosed},
		{"read error", func(in *memInput) { in.err = readErr }, StreamHasBytesAvailable, DecoderConnectionError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, in, rec := newTestDecoder(0)
			if tt.setup != nil {
				tt.setup(in)
			}

			in.event(tt.event)
			assert.Equal(t, tt.wantState, d.State())
			assert.True(t, d.State().Terminal())

			// Later events are ignored.
			in.feed([]byte{0xD0, 0x00})
			in.event(StreamErrorOccurred)

			assert.Equal(t, []DecoderState{tt.wantState}, rec.states)
			assert.Empty(t, rec.messages)
		})
	}
}

func TestStreamDecoderEOFAfterFrames(t *testing.T) {
	d, in, rec := newTestDecoder(0)
	in.err = io.EOF
	in.feed([]byte{0xD0, 0x00, 0xD0})

	assert.Len(t, rec.messages, 1)
	assert.Equal(t, DecoderConnectionClosed, d.State())
	assert.ErrorIs(t, d.Err(), io.EOF)
}

func TestStreamDecoderClose(t *testing.T) {
	d, in, rec := newTestDecoder(0)

	d.Close()
	d.Close()

	assert.True(t, in.closed)
	assert.Nil(t, in.handler)

	d.HandleEvent(StreamEndEncountered)
	assert.Empty(t, rec.states)
}

func TestDecoderStateString(t *testing.T) {
	assert.Equal(t, "decoding length", DecoderDecodingLength.String())
	assert.Equal(t, "protocol error", DecoderProtocolError.String())
	assert.Equal(t, "unknown", DecoderState(42).String())
	assert.False(t, DecoderDecodingData.Terminal())
}
