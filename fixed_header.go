package mqtt3

import (
	"errors"
	"io"
)

// MessageType represents an MQTT 3.1.1 control packet type.
type MessageType byte

// MQTT 3.1.1 control packet types.
const (
	TypeCONNECT     MessageType = 1
	TypeCONNACK     MessageType = 2
	TypePUBLISH     MessageType = 3
	TypePUBACK      MessageType = 4
	TypePUBREC      MessageType = 5
	TypePUBREL      MessageType = 6
	TypePUBCOMP     MessageType = 7
	TypeSUBSCRIBE   MessageType = 8
	TypeSUBACK      MessageType = 9
	TypeUNSUBSCRIBE MessageType = 10
	TypeUNSUBACK    MessageType = 11
	TypePINGREQ     MessageType = 12
	TypePINGRESP    MessageType = 13
	TypeDISCONNECT  MessageType = 14
)

// String returns the string representation of the message type.
func (t MessageType) String() string {
	switch t {
	case TypeCONNECT:
		return "CONNECT"
	case TypeCONNACK:
		return "CONNACK"
	case TypePUBLISH:
		return "PUBLISH"
	case TypePUBACK:
		return "PUBACK"
	case TypePUBREC:
		return "PUBREC"
	case TypePUBREL:
		return "PUBREL"
	case TypePUBCOMP:
		return "PUBCOMP"
	case TypeSUBSCRIBE:
		return "SUBSCRIBE"
	case TypeSUBACK:
		return "SUBACK"
	case TypeUNSUBSCRIBE:
		return "UNSUBSCRIBE"
	case TypeUNSUBACK:
		return "UNSUBACK"
	case TypePINGREQ:
		return "PINGREQ"
	case TypePINGRESP:
		return "PINGRESP"
	case TypeDISCONNECT:
		return "DISCONNECT"
	default:
		return "UNKNOWN"
	}
}

// Valid returns true if the message type is one of the fourteen 3.1.1 types.
func (t MessageType) Valid() bool {
	return t >= TypeCONNECT && t <= TypeDISCONNECT
}

// Fixed header errors.
var (
	ErrInvalidMessageType      = errors.New("invalid message type")
	ErrRemainingLengthTooLarge = errors.New("remaining length too large")
)

// Fixed header flag bits.
const (
	flagRetain    byte = 0x01
	flagQoSMask   byte = 0x06
	flagDuplicate byte = 0x08
)

// FixedHeader represents the fixed header of an MQTT control packet.
type FixedHeader struct {
	Type            MessageType
	Flags           byte
	RemainingLength uint32
}

// headerByte builds the first byte of a frame.
func headerByte(t MessageType, qos QoS, dup, retain bool) byte {
	b := byte(t)<<4 | byte(qos&0x03)<<1
	if dup {
		b |= flagDuplicate
	}
	if retain {
		b |= flagRetain
	}
	return b
}

// parseHeaderByte splits the first byte of a frame into its fields.
func parseHeaderByte(b byte) FixedHeader {
	return FixedHeader{
		Type:  MessageType(b >> 4),
		Flags: b & 0x0F,
	}
}

// Encode writes the fixed header to the writer.
// Returns the number of bytes written.
func (h *FixedHeader) Encode(w io.Writer) (int, error) {
	if !h.Type.Valid() {
		return 0, ErrInvalidMessageType
	}

	n, err := w.Write([]byte{byte(h.Type)<<4 | (h.Flags & 0x0F)})
	if err != nil {
		return n, err
	}

	n2, err := encodeVarint(w, h.RemainingLength)
	return n + n2, err
}

// Decode reads the fixed header from the reader.
// Returns the number of bytes read.
func (h *FixedHeader) Decode(r io.Reader) (int, error) {
	var buf [1]byte
	n, err := io.ReadFull(r, buf[:])
	if err != nil {
		return n, err
	}

	*h = parseHeaderByte(buf[0])
	if !h.Type.Valid() {
		return n, ErrInvalidMessageType
	}

	length, n2, err := decodeVarint(r)
	n += n2
	if err != nil {
		return n, err
	}

	h.RemainingLength = length
	return n, nil
}

// Size returns the encoded size of the fixed header in bytes.
func (h *FixedHeader) Size() int {
	return 1 + varintSize(h.RemainingLength)
}

// Duplicate returns the DUP flag.
func (h *FixedHeader) Duplicate() bool {
	return h.Flags&flagDuplicate != 0
}

// QoS returns the QoS bits.
func (h *FixedHeader) QoS() QoS {
	return QoS((h.Flags & flagQoSMask) >> 1)
}

// Retain returns the RETAIN flag.
func (h *FixedHeader) Retain() bool {
	return h.Flags&flagRetain != 0
}
