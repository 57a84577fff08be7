package mqtt3

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
)

type colorSink struct {
	mu sync.Mutex
	w  io.Writer

	timeColor  *color.Color
	msgColor   *color.Color
	levelColor map[LogLevel]*color.Color
}

// ColorLogger writes "time | LEVEL | message key=value" lines with ANSI
// colors for terminals.
type ColorLogger struct {
	sink   *colorSink
	level  LogLevel
	fields LogFields
}

// NewColorLogger creates a colored logger writing to w (stderr if nil).
// Colors are disabled when noColor is set or w is not a terminal, as
// decided by fatih/color.
func NewColorLogger(w io.Writer, level LogLevel, noColor bool) *ColorLogger {
	if w == nil {
		w = os.Stderr
	}

	sink := &colorSink{
		w:         w,
		timeColor: color.New(color.FgGreen),
		msgColor:  color.New(color.FgCyan),
		levelColor: map[LogLevel]*color.Color{
			LogLevelDebug: color.New(color.FgMagenta),
			LogLevelInfo:  color.New(color.FgBlue),
			LogLevelWarn:  color.New(color.FgYellow),
			LogLevelError: color.New(color.FgRed),
		},
	}

	if noColor {
		sink.timeColor.DisableColor()
		sink.msgColor.DisableColor()
		for _, c := range sink.levelColor {
			c.DisableColor()
		}
	}

	return &ColorLogger{sink: sink, level: level}
}

func (c *ColorLogger) Debug(msg string, fields LogFields) { c.log(LogLevelDebug, msg, fields) }
func (c *ColorLogger) Info(msg string, fields LogFields)  { c.log(LogLevelInfo, msg, fields) }
func (c *ColorLogger) Warn(msg string, fields LogFields)  { c.log(LogLevelWarn, msg, fields) }
func (c *ColorLogger) Error(msg string, fields LogFields) { c.log(LogLevelError, msg, fields) }

// WithFields returns a logger sharing the same output with extra fields.
func (c *ColorLogger) WithFields(fields LogFields) Logger {
	return &ColorLogger{
		sink:   c.sink,
		level:  c.level,
		fields: mergeFields(c.fields, fields),
	}
}

func (c *ColorLogger) Level() LogLevel {
	return c.level
}

func (c *ColorLogger) SetLevel(level LogLevel) {
	c.level = level
}

func (c *ColorLogger) log(level LogLevel, msg string, fields LogFields) {
	if level < c.level {
		return
	}

	s := c.sink
	line := fmt.Sprintf("%s | %-5s | %s",
		s.timeColor.Sprint(time.Now().Format("2006-01-02T15:04:05")),
		s.levelColor[level].Sprint(level.String()),
		s.msgColor.Sprint(msg),
	)
	if f := formatFields(mergeFields(c.fields, fields)); f != "" {
		line += " " + s.msgColor.Sprint(f)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = io.WriteString(s.w, line+"\n")
}
