package mqtt3

import (
	"errors"
	"io"
)

var (
	ErrMessageTooLarge = errors.New("mqtt3: message exceeds maximum size")
)

// AppendTo appends the encoded frame to dst. A frame without payload still
// carries the single zero length byte.
func (m *Message) AppendTo(dst []byte) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return dst, err
	}

	dst = append(dst, m.Header())
	dst, err := appendVarint(dst, uint32(len(m.Data)))
	if err != nil {
		return dst, err
	}
	return append(dst, m.Data...), nil
}

// Encode writes the encoded frame to w.
func (m *Message) Encode(w io.Writer) (int, error) {
	buf := getBytesBuffer()
	defer putBytesBuffer(buf)

	data, err := m.AppendTo(buf.data)
	if err != nil {
		return 0, err
	}
	buf.data = data

	return w.Write(buf.data)
}

// ReadMessage reads one complete frame from r.
// If maxSize is greater than 0, frames whose remaining length exceeds
// maxSize return ErrMessageTooLarge.
func ReadMessage(r io.Reader, maxSize uint32) (*Message, int, error) {
	var header FixedHeader
	n, err := header.Decode(r)
	if err != nil {
		return nil, n, err
	}

	if maxSize > 0 && header.RemainingLength > maxSize {
		return nil, n, ErrMessageTooLarge
	}
	if !header.QoS().Valid() {
		return nil, n, ErrInvalidQoS
	}

	msg := header.message()
	if header.RemainingLength > 0 {
		msg.Data = make([]byte, header.RemainingLength)
		rn, err := io.ReadFull(r, msg.Data)
		n += rn
		if err != nil {
			return nil, n, err
		}
	}

	return msg, n, nil
}

// message builds an empty Message from the decoded header bits.
func (h *FixedHeader) message() *Message {
	return &Message{
		Type:      h.Type,
		QoS:       h.QoS(),
		Retain:    h.Retain(),
		Duplicate: h.Duplicate(),
	}
}
