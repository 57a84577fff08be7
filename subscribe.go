package mqtt3

// SubackFailure is the SUBACK return code for a rejected filter.
const SubackFailure byte = 0x80

// NewSubscribeMessage requests a single subscription. The header carries
// QoS 1 bits.
func NewSubscribeMessage(id uint16, filter string, qos QoS) (*Message, error) {
	if id == 0 {
		return nil, ErrInvalidMessageID
	}
	if !qos.Valid() {
		return nil, ErrInvalidQoS
	}
	if err := ValidateTopicFilter(filter); err != nil {
		return nil, err
	}

	data := appendUint16(make([]byte, 0, 5+len(filter)), id)
	data, err := appendString(data, filter)
	if err != nil {
		return nil, err
	}
	data = append(data, byte(qos))

	return &Message{Type: TypeSUBSCRIBE, QoS: QoS1, Data: data}, nil
}

// NewUnsubscribeMessage removes a single subscription. The header carries
// QoS 1 bits.
func NewUnsubscribeMessage(id uint16, filter string) (*Message, error) {
	if id == 0 {
		return nil, ErrInvalidMessageID
	}
	if err := ValidateTopicFilter(filter); err != nil {
		return nil, err
	}

	data := appendUint16(make([]byte, 0, 4+len(filter)), id)
	data, err := appendString(data, filter)
	if err != nil {
		return nil, err
	}

	return &Message{Type: TypeUNSUBSCRIBE, QoS: QoS1, Data: data}, nil
}

// Subscription is one filter of a SUBSCRIBE request.
type Subscription struct {
	Filter string
	QoS    QoS
}

// ParseSubscribe decodes a SUBSCRIBE payload into its id and filters.
func ParseSubscribe(m *Message) (uint16, []Subscription, bool) {
	if m.Type != TypeSUBSCRIBE {
		return 0, nil, false
	}

	id, ok := readUint16(m.Data)
	if !ok || id == 0 {
		return 0, nil, false
	}

	var subs []Subscription
	rest := m.Data[2:]
	for len(rest) > 0 {
		var filter string
		if filter, rest, ok = readString(rest); !ok || len(rest) < 1 {
			return 0, nil, false
		}
		subs = append(subs, Subscription{Filter: filter, QoS: QoS(rest[0])})
		rest = rest[1:]
	}

	return id, subs, len(subs) > 0
}

// ParseUnsubscribe decodes an UNSUBSCRIBE payload into its id and filters.
func ParseUnsubscribe(m *Message) (uint16, []string, bool) {
	if m.Type != TypeUNSUBSCRIBE {
		return 0, nil, false
	}

	id, ok := readUint16(m.Data)
	if !ok || id == 0 {
		return 0, nil, false
	}

	var filters []string
	rest := m.Data[2:]
	for len(rest) > 0 {
		var filter string
		if filter, rest, ok = readString(rest); !ok {
			return 0, nil, false
		}
		filters = append(filters, filter)
	}

	return id, filters, len(filters) > 0
}

// NewSubackMessage builds a SUBACK with one return code per filter. Used by
// test brokers.
func NewSubackMessage(id uint16, codes ...byte) *Message {
	data := appendUint16(make([]byte, 0, 2+len(codes)), id)
	return &Message{Type: TypeSUBACK, Data: append(data, codes...)}
}

// NewUnsubackMessage builds an UNSUBACK. Used by test brokers.
func NewUnsubackMessage(id uint16) *Message {
	return newIDMessage(TypeUNSUBACK, QoS0, id)
}

// ParseSuback returns the id and per-filter return codes of a SUBACK.
func ParseSuback(m *Message) (uint16, []byte, bool) {
	if m.Type != TypeSUBACK || len(m.Data) < 3 {
		return 0, nil, false
	}
	id, _ := readUint16(m.Data)
	return id, m.Data[2:], id != 0
}
