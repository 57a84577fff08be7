package mqtt3

import (
	"errors"
	"fmt"
)

// QoS is the delivery guarantee of a publish.
type QoS byte

// Quality of service levels.
const (
	// QoS0 delivers at most once.
	QoS0 QoS = 0
	// QoS1 delivers at least once.
	QoS1 QoS = 1
	// QoS2 delivers exactly once.
	QoS2 QoS = 2
)

// Valid reports whether q is 0, 1 or 2.
func (q QoS) Valid() bool {
	return q <= QoS2
}

func (q QoS) String() string {
	switch q {
	case QoS0:
		return "at-most-once"
	case QoS1:
		return "at-least-once"
	case QoS2:
		return "exactly-once"
	default:
		return fmt.Sprintf("qos(%d)", byte(q))
	}
}

// Message errors.
var (
	ErrInvalidQoS       = errors.New("invalid QoS level")
	ErrPayloadTooLarge  = errors.New("message exceeds maximum remaining length")
	ErrInvalidMessageID = errors.New("message id must be non-zero")
)

// Message is a single MQTT control packet: the fixed header bits and the
// raw variable header plus payload that follows the remaining length.
//
// A nil Data means the frame carries no bytes after the length.
// Messages are treated as immutable once built; the only exception is the
// Duplicate flag, set through SetDuplicate before a retransmission.
type Message struct {
	Type      MessageType
	QoS       QoS
	Retain    bool
	Duplicate bool
	Data      []byte
}

// SetDuplicate marks the message as a redelivery.
func (m *Message) SetDuplicate() {
	m.Duplicate = true
}

// Header returns the first byte of the encoded frame.
func (m *Message) Header() byte {
	return headerByte(m.Type, m.QoS, m.Duplicate, m.Retain)
}

// Size returns the encoded length of the whole frame.
func (m *Message) Size() int {
	n := uint32(len(m.Data))
	return 1 + varintSize(n) + len(m.Data)
}

// Validate checks the header fields and the payload length.
func (m *Message) Validate() error {
	if !m.Type.Valid() {
		return ErrInvalidMessageType
	}
	if !m.QoS.Valid() {
		return ErrInvalidQoS
	}
	if len(m.Data) > maxVarint {
		return ErrPayloadTooLarge
	}
	return nil
}

func (m *Message) String() string {
	return fmt.Sprintf("%s(qos=%d dup=%t retain=%t len=%d)",
		m.Type, m.QoS, m.Duplicate, m.Retain, len(m.Data))
}

// newIDMessage builds a frame whose payload is only a message id.
func newIDMessage(t MessageType, qos QoS, id uint16) *Message {
	return &Message{
		Type: t,
		QoS:  qos,
		Data: appendUint16(make([]byte, 0, 2), id),
	}
}

// NewPubackMessage acknowledges a QoS 1 publish.
func NewPubackMessage(id uint16) *Message {
	return newIDMessage(TypePUBACK, QoS0, id)
}

// NewPubrecMessage is the first acknowledgment of a QoS 2 publish.
func NewPubrecMessage(id uint16) *Message {
	return newIDMessage(TypePUBREC, QoS0, id)
}

// NewPubrelMessage releases a QoS 2 publish. Its header carries QoS 1 bits.
func NewPubrelMessage(id uint16) *Message {
	return newIDMessage(TypePUBREL, QoS1, id)
}

// NewPubcompMessage completes a QoS 2 exchange.
func NewPubcompMessage(id uint16) *Message {
	return newIDMessage(TypePUBCOMP, QoS0, id)
}

// NewPingreqMessage builds a keep-alive probe.
func NewPingreqMessage() *Message {
	return &Message{Type: TypePINGREQ}
}

// NewDisconnectMessage builds a clean disconnect notice.
func NewDisconnectMessage() *Message {
	return &Message{Type: TypeDISCONNECT}
}

// MessageID extracts the id from a frame whose payload is exactly the
// 2-byte id (PUBACK, PUBREC, PUBREL, PUBCOMP, UNSUBACK). A zero id is
// reported as not ok.
func MessageID(m *Message) (uint16, bool) {
	if len(m.Data) != 2 {
		return 0, false
	}
	id, _ := readUint16(m.Data)
	return id, id != 0
}
