package mqtt3

import (
	"errors"
	"slices"
	"time"
)

// retryTicks is both the size of the retry ring and the number of ticks
// an unacknowledged flow waits before it is re-sent.
const retryTicks = 60

// ErrNoMessageID is returned when every message id is held by a flow.
var ErrNoMessageID = errors.New("mqtt3: no free message id")

// txFlow is an outbound QoS 1 or 2 publish awaiting acknowledgment.
type txFlow struct {
	msg      *Message
	qos      QoS
	deadline uint32
	started  time.Time
}

// rxFlow is an inbound QoS 2 publish held until PUBREL.
type rxFlow struct {
	topic   string
	payload []byte
}

// flowTable holds the in-flight flows of a session and the ring of
// retransmission buckets indexed by tick % retryTicks.
type flowTable struct {
	tx     map[uint16]*txFlow
	rx     map[uint16]*rxFlow
	ring   [retryTicks]map[uint16]struct{}
	tick   uint32
	lastID uint16
}

func newFlowTable() *flowTable {
	f := &flowTable{
		tx: make(map[uint16]*txFlow),
		rx: make(map[uint16]*rxFlow),
	}
	for i := range f.ring {
		f.ring[i] = make(map[uint16]struct{})
	}
	return f
}

// nextID returns the next id after the last one issued, skipping zero and
// ids held by an outbound flow.
func (f *flowTable) nextID() (uint16, error) {
	for range 65535 {
		f.lastID++
		if f.lastID == 0 {
			f.lastID = 1
		}
		if _, busy := f.tx[f.lastID]; !busy {
			return f.lastID, nil
		}
	}
	return 0, ErrNoMessageID
}

// track registers a new outbound flow due for retransmission in retryTicks.
func (f *flowTable) track(id uint16, msg *Message, now time.Time) {
	fl := &txFlow{msg: msg, qos: msg.QoS, started: now}
	f.tx[id] = fl
	f.schedule(id, fl)
}

// schedule moves a flow to the bucket retryTicks ahead of the current tick.
func (f *flowTable) schedule(id uint16, fl *txFlow) {
	delete(f.ring[fl.deadline%retryTicks], id)
	fl.deadline = f.tick + retryTicks
	f.ring[fl.deadline%retryTicks][id] = struct{}{}
}

// complete removes a flow and its ring entry.
func (f *flowTable) complete(id uint16) (*txFlow, bool) {
	fl, ok := f.tx[id]
	if !ok {
		return nil, false
	}
	delete(f.ring[fl.deadline%retryTicks], id)
	delete(f.tx, id)
	return fl, true
}

// advance moves to the next tick and returns the ids due now, in order.
func (f *flowTable) advance() []uint16 {
	f.tick++

	bucket := f.ring[f.tick%retryTicks]
	if len(bucket) == 0 {
		return nil
	}

	due := make([]uint16, 0, len(bucket))
	for id := range bucket {
		if fl, ok := f.tx[id]; ok && fl.deadline <= f.tick {
			due = append(due, id)
		}
	}
	slices.Sort(due)

	return due
}
