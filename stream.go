package mqtt3

// StreamEvent is a readiness notification delivered by a stream.
type StreamEvent int

// Stream events.
const (
	StreamOpenCompleted StreamEvent = iota + 1
	StreamHasBytesAvailable
	StreamHasSpaceAvailable
	StreamEndEncountered
	StreamErrorOccurred
)

func (e StreamEvent) String() string {
	switch e {
	case StreamOpenCompleted:
		return "open completed"
	case StreamHasBytesAvailable:
		return "has bytes available"
	case StreamHasSpaceAvailable:
		return "has space available"
	case StreamEndEncountered:
		return "end encountered"
	case StreamErrorOccurred:
		return "error occurred"
	default:
		return "unknown"
	}
}

// InputStream is a non-blocking byte source.
//
// Read never blocks: it returns n > 0 with a nil error, (0, nil) when no
// bytes are buffered right now, or (0, err) once the stream failed, with
// io.EOF for a clean end. Events are delivered to the handler on the
// goroutine that owns the consumer.
type InputStream interface {
	Read(p []byte) (int, error)
	SetHandler(h func(StreamEvent))
	Close() error
}

// OutputStream is a non-blocking byte sink.
//
// Write never blocks: it accepts as many bytes as fit, possibly zero, and
// the remainder is retried after the next StreamHasSpaceAvailable event.
type OutputStream interface {
	Write(p []byte) (int, error)
	SetHandler(h func(StreamEvent))
	Close() error
}
