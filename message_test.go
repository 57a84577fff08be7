package mqtt3

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQoS(t *testing.T) {
	assert.True(t, QoS0.Valid())
	assert.True(t, QoS2.Valid())
	assert.False(t, QoS(3).Valid())

	assert.Equal(t, "at-most-once", QoS0.String())
	assert.Equal(t, "at-least-once", QoS1.String())
	assert.Equal(t, "exactly-once", QoS2.String())
	assert.Equal(t, "qos(7)", QoS(7).String())
}

func TestIDMessages(t *testing.T) {
	tests := []struct {
		name   string
		msg    *Message
		typ    MessageType
		header byte
	}{
		{"puback", NewPubackMessage(0x1234), TypePUBACK, 0x40},
		{"pubrec", NewPubrecMessage(0x1234), TypePUBREC, 0x50},
		{"pubrel", NewPubrelMessage(0x1234), TypePUBREL, 0x62},
		{"pubcomp", NewPubcompMessage(0x1234), TypePUBCOMP, 0x70},
		{"unsuback", NewUnsubackMessage(0x1234), TypeUNSUBACK, 0xB0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.typ, tt.msg.Type)
			assert.Equal(t, tt.header, tt.msg.Header())
			assert.Equal(t, []byte{0x12, 0x34}, tt.msg.Data)

			id, ok := MessageID(tt.msg)
			require.True(t, ok)
			assert.Equal(t, uint16(0x1234), id)
		})
	}
}

func TestMessageIDInvalid(t *testing.T) {
	_, ok := MessageID(&Message{Type: TypePUBACK, Data: []byte{0x00, 0x00}})
	assert.False(t, ok)

	_, ok = MessageID(&Message{Type: TypePUBACK, Data: []byte{0x01}})
	assert.False(t, ok)

	_, ok = MessageID(&Message{Type: TypePUBACK, Data: []byte{0x00, 0x01, 0x00}})
	assert.False(t, ok)
}

func TestMessageSetDuplicate(t *testing.T) {
	msg := NewPubrelMessage(1)
	assert.False(t, msg.Duplicate)
	msg.SetDuplicate()
	assert.True(t, msg.Duplicate)
	assert.Equal(t, byte(0x6A), msg.Header())
}

func TestMessageSize(t *testing.T) {
	assert.Equal(t, 2, NewPingreqMessage().Size())
	assert.Equal(t, 4, NewPubackMessage(1).Size())
	assert.Equal(t, 1+2+200, (&Message{Type: TypePUBLISH, Data: make([]byte, 200)}).Size())
}

func TestMessageString(t *testing.T) {
	assert.Equal(t, "PUBREL(qos=1 dup=false retain=false len=2)", NewPubrelMessage(1).String())
}
