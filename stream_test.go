package mqtt3

import (
	"bytes"
	"io"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memInput is a scripted InputStream. Bytes are handed out at most
// maxRead at a time when maxRead is set.
type memInput struct {
	data    []byte
	err     error
	maxRead int
	handler func(StreamEvent)
	closed  bool
}

func (m *memInput) Read(p []byte) (int, error) {
	if len(m.data) == 0 {
		return 0, m.err
	}

	n := len(p)
	if m.maxRead > 0 {
		n = min(n, m.maxRead)
	}
	n = copy(p[:n], m.data)
	m.data = m.data[n:]

	return n, nil
}

func (m *memInput) SetHandler(h func(StreamEvent)) { m.handler = h }

func (m *memInput) Close() error {
	m.closed = true
	return nil
}

func (m *memInput) event(ev StreamEvent) {
	if m.handler != nil {
		m.handler(ev)
	}
}

// feed appends b and signals it.
func (m *memInput) feed(b []byte) {
	m.data = append(m.data, b...)
	m.event(StreamHasBytesAvailable)
}

// feedMessage encodes msg and signals it.
func (m *memInput) feedMessage(t testing.TB, msg *Message) {
	t.Helper()
	data, err := msg.AppendTo(nil)
	require.NoError(t, err)
	m.feed(data)
}

// memOutput is a scripted OutputStream. With capacity set, it accepts at
// most capacity bytes between space events.
type memOutput struct {
	buf      bytes.Buffer
	capacity int
	room     int
	err      error
	handler  func(StreamEvent)
	closed   bool
}

func (m *memOutput) Write(p []byte) (int, error) {
	if m.err != nil {
		return 0, m.err
	}

	n := len(p)
	if m.capacity > 0 {
		n = min(n, m.room)
		m.room -= n
	}
	m.buf.Write(p[:n])

	return n, nil
}

func (m *memOutput) SetHandler(h func(StreamEvent)) { m.handler = h }

func (m *memOutput) Close() error {
	m.closed = true
	return nil
}

func (m *memOutput) event(ev StreamEvent) {
	if m.handler != nil {
		m.handler(ev)
	}
}

// space refills the room and signals StreamHasSpaceAvailable.
func (m *memOutput) space() {
	m.room = m.capacity
	m.event(StreamHasSpaceAvailable)
}

// messages decodes and drains everything written so far.
func (m *memOutput) messages(t testing.TB) []*Message {
	t.Helper()

	var out []*Message
	for m.buf.Len() > 0 {
		msg, _, err := ReadMessage(&m.buf, 0)
		require.NoError(t, err)
		out = append(out, msg)
	}
	return out
}

// manualScheduler fires timers only when advanced.
type manualScheduler struct {
	now    time.Duration
	timers []*manualTimer
}

type manualTimer struct {
	at      time.Duration
	every   time.Duration
	fn      func()
	stopped bool
}

func (s *manualScheduler) add(at, every time.Duration, fn func()) func() {
	t := &manualTimer{at: at, every: every, fn: fn}
	s.timers = append(s.timers, t)
	return func() { t.stopped = true }
}

func (s *manualScheduler) Every(d time.Duration, fn func()) func() {
	return s.add(s.now+d, d, fn)
}

func (s *manualScheduler) After(d time.Duration, fn func()) func() {
	return s.add(s.now+d, 0, fn)
}

// advance moves time forward by d, firing due timers in time order.
func (s *manualScheduler) advance(d time.Duration) {
	target := s.now + d

	for {
		var next *manualTimer
		for _, t := range s.timers {
			if t.stopped || t.at > target {
				continue
			}
			if next == nil || t.at < next.at {
				next = t
			}
		}
		if next == nil {
			break
		}

		s.now = next.at
		if next.every > 0 {
			next.at += next.every
		} else {
			next.stopped = true
		}
		next.fn()
	}

	s.now = target
	s.timers = slices.DeleteFunc(s.timers, func(t *manualTimer) bool { return t.stopped })
}

func (s *manualScheduler) active() int {
	n := 0
	for _, t := range s.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

func TestStreamEventString(t *testing.T) {
	tests := []struct {
		ev   StreamEvent
		want string
	}{
		{StreamOpenCompleted, "open completed"},
		{StreamHasBytesAvailable, "has bytes available"},
		{StreamHasSpaceAvailable, "has space available"},
		{StreamEndEncountered, "end encountered"},
		{StreamErrorOccurred, "error occurred"},
		{StreamEvent(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.ev.String())
		})
	}
}

func TestMemInputReadLimits(t *testing.T) {
	in := &memInput{maxRead: 2}
	in.data = []byte{1, 2, 3}

	buf := make([]byte, 8)
	n, err := in.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = in.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = in.Read(buf)
	require.NoError(t, err)
	assert.Zero(t, n)

	in.err = io.EOF
	_, err = in.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestManualSchedulerOrder(t *testing.T) {
	s := &manualScheduler{}
	var fired []string

	stop := s.Every(time.Second, func() { fired = append(fired, "tick") })
	s.After(1500*time.Millisecond, func() { fired = append(fired, "after") })

	s.advance(2 * time.Second)
	assert.Equal(t, []string{"tick", "after", "tick"}, fired)

	stop()
	s.advance(5 * time.Second)
	assert.Len(t, fired, 3)
	assert.Zero(t, s.active())
}
