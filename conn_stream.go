package mqtt3

import (
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"time"
)

// Output buffering limits for ConnStreams.
const (
	connWriteBufferSize = 64 * 1024
	connFlushTimeout    = 5 * time.Second
)

// NewConnStreams adapts conn to a non-blocking InputStream and OutputStream.
// A reader and a writer goroutine do the blocking I/O and post readiness
// events to loop. The connection is closed once the output side is closed
// and its buffered bytes are flushed.
func NewConnStreams(conn net.Conn, loop *Loop, logger Logger) (InputStream, OutputStream) {
	if logger == nil {
		logger = NewNoOpLogger()
	}
	logger = logger.WithFields(LogFields{LogFieldRemoteAddr: conn.RemoteAddr().String()})

	in := &connInput{conn: conn, loop: loop, logger: logger}
	out := &connOutput{conn: conn, loop: loop, logger: logger}
	out.cond = sync.NewCond(&out.mu)

	go in.readLoop()
	go out.writeLoop()

	return in, out
}

type connInput struct {
	conn   net.Conn
	loop   *Loop
	logger Logger

	mu       sync.Mutex
	buf      []byte
	err      error
	handler  func(StreamEvent)
	opened   bool
	notified bool
	closed   bool
}

func (c *connInput) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.buf) > 0 {
		n := copy(p, c.buf)
		c.buf = c.buf[n:]
		if len(c.buf) == 0 {
			c.buf = nil
		}
		return n, nil
	}
	if c.err != nil {
		return 0, c.err
	}
	return 0, nil
}

func (c *connInput) SetHandler(h func(StreamEvent)) {
	c.mu.Lock()
	c.handler = h
	open := h != nil && !c.opened
	if open {
		c.opened = true
		c.notified = true
	}
	c.mu.Unlock()

	if open {
		c.post(StreamOpenCompleted)
		c.postBytes()
	}
}

func (c *connInput) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.handler = nil
	c.buf = nil
	c.mu.Unlock()

	// Unblock the reader; the writer owns closing the connection.
	return c.conn.SetReadDeadline(time.Now())
}

func (c *connInput) readLoop() {
	chunk := make([]byte, 4096)

	for {
		n, err := c.conn.Read(chunk)

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		if n > 0 {
			c.buf = append(c.buf, chunk[:n]...)
		}
		if err != nil {
			c.err = err
		}
		notify := c.opened && !c.notified && (n > 0 || err != nil)
		if notify {
			c.notified = true
		}
		c.mu.Unlock()

		if notify {
			c.postBytes()
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				c.post(StreamEndEncountered)
			} else {
				c.logger.Debug("connection read failed", LogFields{LogFieldError: err.Error()})
				c.post(StreamErrorOccurred)
			}
			return
		}
	}
}

// postBytes delivers StreamHasBytesAvailable. The pending flag is cleared
// before the handler runs so bytes arriving during the read post again.
func (c *connInput) postBytes() {
	c.loop.Post(func() {
		c.mu.Lock()
		c.notified = false
		h := c.handler
		c.mu.Unlock()

		if h != nil {
			h(StreamHasBytesAvailable)
		}
	})
}

func (c *connInput) post(ev StreamEvent) {
	c.loop.Post(func() {
		c.mu.Lock()
		h := c.handler
		c.mu.Unlock()

		if h != nil {
			h(ev)
		}
	})
}

type connOutput struct {
	conn   net.Conn
	loop   *Loop
	logger Logger

	mu        sync.Mutex
	cond      *sync.Cond
	buf       []byte
	err       error
	handler   func(StreamEvent)
	opened    bool
	wantSpace bool
	closing   bool
}

func (c *connOutput) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return 0, c.err
	}
	if c.closing {
		return 0, net.ErrClosed
	}

	n := min(len(p), connWriteBufferSize-len(c.buf))
	if n < len(p) {
		c.wantSpace = true
	}
	if n > 0 {
		c.buf = append(c.buf, p[:n]...)
		c.cond.Signal()
	}

	return n, nil
}

func (c *connOutput) SetHandler(h func(StreamEvent)) {
	c.mu.Lock()
	c.handler = h
	open := h != nil && !c.opened
	if open {
		c.opened = true
	}
	c.mu.Unlock()

	if open {
		c.post(StreamOpenCompleted)
		c.post(StreamHasSpaceAvailable)
	}
}

// Close stops accepting writes. Buffered bytes are flushed within
// connFlushTimeout before the connection closes.
func (c *connOutput) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closing {
		return nil
	}
	c.closing = true
	c.handler = nil
	c.cond.Signal()

	return c.conn.SetWriteDeadline(time.Now().Add(connFlushTimeout))
}

func (c *connOutput) writeLoop() {
	defer func() {
		if err := c.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			c.logger.Debug("connection close failed", LogFields{LogFieldError: err.Error()})
		}
	}()

	var spare []byte
	for {
		c.mu.Lock()
		for len(c.buf) == 0 && !c.closing {
			c.cond.Wait()
		}
		if len(c.buf) == 0 {
			c.mu.Unlock()
			return
		}
		data := c.buf
		c.buf = spare[:0]
		c.mu.Unlock()

		_, err := c.conn.Write(data)
		spare = data

		c.mu.Lock()
		if err != nil {
			c.err = err
			c.buf = nil
		}
		notify := err == nil && c.wantSpace && !c.closing
		c.wantSpace = false
		c.mu.Unlock()

		if err != nil {
			if !errors.Is(err, os.ErrDeadlineExceeded) {
				c.logger.Debug("connection write failed", LogFields{LogFieldError: err.Error()})
			}
			c.post(StreamErrorOccurred)
			return
		}
		if notify {
			c.post(StreamHasSpaceAvailable)
		}
	}
}

func (c *connOutput) post(ev StreamEvent) {
	c.loop.Post(func() {
		c.mu.Lock()
		h := c.handler
		c.mu.Unlock()

		if h != nil {
			h(ev)
		}
	})
}
