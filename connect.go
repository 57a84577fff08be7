package mqtt3

import (
	"errors"
	"fmt"
)

// CONNECT constants.
const (
	protocolName  = "MQTT"
	protocolLevel = 4
)

// Connect flag bits.
const (
	connectFlagCleanSession = 0x02
	connectFlagWill         = 0x04
	connectFlagWillQoSMask  = 0x18
	connectFlagWillRetain   = 0x20
	connectFlagPassword     = 0x40
	connectFlagUsername     = 0x80
)

// CONNECT errors.
var (
	ErrInvalidProtocolName  = errors.New("invalid protocol name")
	ErrInvalidProtocolLevel = errors.New("unsupported protocol level")
	ErrInvalidConnectFlags  = errors.New("invalid connect flags")
	ErrMalformedConnect     = errors.New("malformed CONNECT payload")
)

// Will is the message the broker publishes for the client when the
// connection drops without a DISCONNECT.
type Will struct {
	Topic   string
	Payload []byte
	QoS     QoS
	Retain  bool
}

// ConnectOptions holds the fields of a CONNECT message.
type ConnectOptions struct {
	ClientID     string
	Username     string
	Password     string
	KeepAlive    uint16
	CleanSession bool
	Will         *Will
}

// flags returns the connect flags byte. The password bit is only set
// together with the username bit.
func (o *ConnectOptions) flags() byte {
	var flags byte

	if o.CleanSession {
		flags |= connectFlagCleanSession
	}

	if o.Will != nil {
		flags |= connectFlagWill
		flags |= (byte(o.Will.QoS) << 3) & connectFlagWillQoSMask
		if o.Will.Retain {
			flags |= connectFlagWillRetain
		}
	}

	if o.Username != "" {
		flags |= connectFlagUsername
		if o.Password != "" {
			flags |= connectFlagPassword
		}
	}

	return flags
}

// NewConnectMessage builds a protocol level 4 CONNECT message.
func NewConnectMessage(opts ConnectOptions) (*Message, error) {
	if opts.Will != nil {
		if err := ValidateTopicName(opts.Will.Topic); err != nil {
			return nil, fmt.Errorf("will topic: %w", err)
		}
		if !opts.Will.QoS.Valid() {
			return nil, ErrInvalidQoS
		}
	}

	data := make([]byte, 0, 12+len(opts.ClientID)+len(opts.Username)+len(opts.Password))

	var err error
	if data, err = appendString(data, protocolName); err != nil {
		return nil, err
	}
	data = append(data, protocolLevel, opts.flags())
	data = appendUint16(data, opts.KeepAlive)

	if data, err = appendString(data, opts.ClientID); err != nil {
		return nil, fmt.Errorf("client id: %w", err)
	}

	if opts.Will != nil {
		if data, err = appendString(data, opts.Will.Topic); err != nil {
			return nil, fmt.Errorf("will topic: %w", err)
		}
		if data, err = appendBinary(data, opts.Will.Payload); err != nil {
			return nil, fmt.Errorf("will payload: %w", err)
		}
	}

	if opts.Username != "" {
		if data, err = appendString(data, opts.Username); err != nil {
			return nil, fmt.Errorf("username: %w", err)
		}
		if opts.Password != "" {
			if data, err = appendBinary(data, []byte(opts.Password)); err != nil {
				return nil, fmt.Errorf("password: %w", err)
			}
		}
	}

	return &Message{Type: TypeCONNECT, Data: data}, nil
}

// ParseConnect decodes the payload of a CONNECT message.
func ParseConnect(m *Message) (ConnectOptions, error) {
	var opts ConnectOptions
	if m.Type != TypeCONNECT {
		return opts, ErrInvalidMessageType
	}

	name, rest, ok := readString(m.Data)
	if !ok {
		return opts, ErrMalformedConnect
	}
	if name != protocolName {
		return opts, ErrInvalidProtocolName
	}

	if len(rest) < 4 {
		return opts, ErrMalformedConnect
	}
	if rest[0] != protocolLevel {
		return opts, ErrInvalidProtocolLevel
	}
	flags := rest[1]
	if flags&0x01 != 0 {
		return opts, ErrInvalidConnectFlags
	}
	opts.KeepAlive, _ = readUint16(rest[2:])
	opts.CleanSession = flags&connectFlagCleanSession != 0
	rest = rest[4:]

	if opts.ClientID, rest, ok = readString(rest); !ok {
		return opts, ErrMalformedConnect
	}

	if flags&connectFlagWill != 0 {
		will := &Will{
			QoS:    QoS((flags & connectFlagWillQoSMask) >> 3),
			Retain: flags&connectFlagWillRetain != 0,
		}
		if !will.QoS.Valid() {
			return opts, ErrInvalidConnectFlags
		}

		var payload string
		if will.Topic, rest, ok = readString(rest); !ok {
			return opts, ErrMalformedConnect
		}
		if payload, rest, ok = readString(rest); !ok {
			return opts, ErrMalformedConnect
		}
		will.Payload = []byte(payload)
		opts.Will = will
	}

	if flags&connectFlagUsername != 0 {
		if opts.Username, rest, ok = readString(rest); !ok {
			return opts, ErrMalformedConnect
		}
	}

	if flags&connectFlagPassword != 0 {
		if opts.Password, rest, ok = readString(rest); !ok {
			return opts, ErrMalformedConnect
		}
	}

	if len(rest) != 0 {
		return opts, ErrMalformedConnect
	}

	return opts, nil
}

// ConnackCode is the return code of a CONNACK.
type ConnackCode byte

// CONNACK return codes.
const (
	ConnackAccepted                    ConnackCode = 0x00
	ConnackUnacceptableProtocolVersion ConnackCode = 0x01
	ConnackIdentifierRejected          ConnackCode = 0x02
	ConnackServerUnavailable           ConnackCode = 0x03
	ConnackBadUsernameOrPassword       ConnackCode = 0x04
	ConnackNotAuthorized               ConnackCode = 0x05
)

func (c ConnackCode) String() string {
	switch c {
	case ConnackAccepted:
		return "connection accepted"
	case ConnackUnacceptableProtocolVersion:
		return "unacceptable protocol version"
	case ConnackIdentifierRejected:
		return "identifier rejected"
	case ConnackServerUnavailable:
		return "server unavailable"
	case ConnackBadUsernameOrPassword:
		return "bad user name or password"
	case ConnackNotAuthorized:
		return "not authorized"
	default:
		return fmt.Sprintf("unknown return code 0x%02x", byte(c))
	}
}

// NewConnackMessage builds a CONNACK. Used by test brokers.
func NewConnackMessage(sessionPresent bool, code ConnackCode) *Message {
	var ack byte
	if sessionPresent {
		ack = 0x01
	}
	return &Message{Type: TypeCONNACK, Data: []byte{ack, byte(code)}}
}

// ParseConnack extracts the session present flag and return code. ok is
// false unless m is a CONNACK with exactly two payload bytes.
func ParseConnack(m *Message) (sessionPresent bool, code ConnackCode, ok bool) {
	if m.Type != TypeCONNACK || len(m.Data) != 2 {
		return false, 0, false
	}
	return m.Data[0]&0x01 != 0, ConnackCode(m.Data[1]), true
}
