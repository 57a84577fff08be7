package mqtt3

// PublishFields are the variable header and payload of a PUBLISH.
type PublishFields struct {
	Topic     string
	MessageID uint16
	Payload   []byte
}

// NewPublishMessage builds a PUBLISH. The id is written only for QoS 1
// and 2, where it must be non-zero.
func NewPublishMessage(topic string, payload []byte, qos QoS, retain bool, id uint16) (*Message, error) {
	if !qos.Valid() {
		return nil, ErrInvalidQoS
	}
	if err := ValidateTopicName(topic); err != nil {
		return nil, err
	}

	size := 2 + len(topic) + len(payload)
	if qos > QoS0 {
		if id == 0 {
			return nil, ErrInvalidMessageID
		}
		size += 2
	}
	if size > maxVarint {
		return nil, ErrPayloadTooLarge
	}

	data := make([]byte, 0, size)
	data, err := appendString(data, topic)
	if err != nil {
		return nil, err
	}
	if qos > QoS0 {
		data = appendUint16(data, id)
	}
	data = append(data, payload...)

	return &Message{
		Type:   TypePUBLISH,
		QoS:    qos,
		Retain: retain,
		Data:   data,
	}, nil
}

// ParsePublish splits a PUBLISH payload according to its QoS. ok is false
// when the frame is too short or a QoS 1/2 frame carries a zero id.
// The returned payload aliases m.Data.
func ParsePublish(m *Message) (PublishFields, bool) {
	var f PublishFields
	if m.Type != TypePUBLISH || !m.QoS.Valid() {
		return f, false
	}

	topic, rest, ok := readString(m.Data)
	if !ok {
		return f, false
	}
	f.Topic = topic

	if m.QoS > QoS0 {
		id, ok := readUint16(rest)
		if !ok || id == 0 {
			return f, false
		}
		f.MessageID = id
		rest = rest[2:]
	}

	f.Payload = rest
	return f, true
}
