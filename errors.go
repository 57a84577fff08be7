package mqtt3

import (
	"errors"
	"fmt"
)

// Event is a connection status change reported by a Session.
type Event int

// Session events. Every event except EventConnected is terminal.
const (
	EventConnected Event = iota + 1
	EventConnectionRefused
	EventConnectionClosed
	EventConnectionError
	EventProtocolError
)

func (e Event) String() string {
	switch e {
	case EventConnected:
		return "connected"
	case EventConnectionRefused:
		return "connection refused"
	case EventConnectionClosed:
		return "connection closed"
	case EventConnectionError:
		return "connection error"
	case EventProtocolError:
		return "protocol error"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// Terminal reports whether the event ends the session.
func (e Event) Terminal() bool {
	return e != EventConnected
}

// Sentinel errors for terminal events - check with errors.Is().
var (
	// ErrProtocolError is returned when the broker sent a malformed or unexpected frame.
	ErrProtocolError = errors.New("mqtt3: protocol error")

	// ErrConnectionError is returned when reading or writing the stream failed.
	ErrConnectionError = errors.New("mqtt3: connection error")

	// ErrConnectionRefused is returned when the broker rejected CONNECT.
	ErrConnectionRefused = errors.New("mqtt3: connection refused")

	// ErrConnectionClosed is returned when the stream ended or the session was closed.
	ErrConnectionClosed = errors.New("mqtt3: connection closed")
)

// Sentinel errors for operations - check with errors.Is().
var (
	// ErrSessionClosed is returned by operations on a session in the Error state.
	ErrSessionClosed = errors.New("mqtt3: session closed")

	// ErrSessionStarted is returned when Start is called twice.
	ErrSessionStarted = errors.New("mqtt3: session already started")

	// ErrNoScheduler is returned by Start when no Scheduler was configured.
	ErrNoScheduler = errors.New("mqtt3: no scheduler configured")

	// ErrEncoderNotReady is returned when a message is handed to a busy encoder.
	ErrEncoderNotReady = errors.New("mqtt3: encoder not ready")

	// ErrStreamError is the cause recorded when a stream reports an error event.
	ErrStreamError = errors.New("mqtt3: stream error")

	// ErrStreamEnded is the cause recorded when an output stream ends.
	ErrStreamEnded = errors.New("mqtt3: stream ended")
)

func eventSentinel(ev Event) error {
	switch ev {
	case EventConnectionRefused:
		return ErrConnectionRefused
	case EventConnectionClosed:
		return ErrConnectionClosed
	case EventConnectionError:
		return ErrConnectionError
	case EventProtocolError:
		return ErrProtocolError
	default:
		return nil
	}
}

// SessionError describes why a session reached the Error state.
// Extract with errors.As(); it matches the event's sentinel with errors.Is().
type SessionError struct {
	Event Event

	// Code is the CONNACK return code for EventConnectionRefused.
	Code ConnackCode

	// Cause is the underlying error, if any.
	Cause error
}

func (e *SessionError) Error() string {
	msg := "mqtt3: " + e.Event.String()
	if e.Event == EventConnectionRefused {
		msg += ": " + e.Code.String()
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *SessionError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s := eventSentinel(e.Event); s != nil {
		errs = append(errs, s)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}
