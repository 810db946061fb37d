package log

import (
	"bytes"
	"fmt"
	"strconv"
	"time"
)

// Event is a single in-flight log entry. Fields are appended as key=value
// pairs into an internal buffer; Msg finalizes the entry and hands it to the
// owning logger's appenders. Events are pooled by the logger, so an Event
// must not be retained after Msg returns.
type Event struct {
	buf    bytes.Buffer
	level  Level
	logger *HostLogger
}

func newEvent(logger *HostLogger) *Event {
	return &Event{logger: logger}
}

// Reset clears the event for reuse from the pool.
func (e *Event) Reset() {
	e.buf.Reset()
	e.level = DebugLevel
}

func (e *Event) appendKey(key string) {
	if e.buf.Len() > 0 {
		e.buf.WriteByte(' ')
	}
	e.buf.WriteString(key)
	e.buf.WriteByte('=')
}

// Str appends a string field.
func (e *Event) Str(key, val string) *Event {
	if e == nil {
		return nil
	}
	e.appendKey(key)
	e.buf.WriteString(val)
	return e
}

// Int appends an integer field.
func (e *Event) Int(key string, val int) *Event {
	if e == nil {
		return nil
	}
	e.appendKey(key)
	e.buf.WriteString(strconv.Itoa(val))
	return e
}

// Bool appends a boolean field.
func (e *Event) Bool(key string, val bool) *Event {
	if e == nil {
		return nil
	}
	e.appendKey(key)
	e.buf.WriteString(strconv.FormatBool(val))
	return e
}

// Err appends an error field under the key "error". A nil error appends
// nothing so call sites do not need to branch.
func (e *Event) Err(err error) *Event {
	if e == nil || err == nil {
		return e
	}
	e.appendKey("error")
	e.buf.WriteString(err.Error())
	return e
}

// Time appends a timestamp field in RFC3339 format.
func (e *Event) Time(key string, t *time.Time) *Event {
	if e == nil {
		return nil
	}
	e.appendKey(key)
	e.buf.WriteString(t.Format(time.RFC3339))
	return e
}

// Msg finalizes the event with the given message and emits it.
// After Msg returns the event is back in the pool and must not be touched.
func (e *Event) Msg(msg string) {
	if e == nil {
		return
	}
	e.appendKey("msg")
	e.buf.WriteString(msg)
	e.buf.WriteByte('\n')
	e.logger.OnEventEnd(e)
}

// Msgf finalizes the event with a preformatted message.
func (e *Event) Msgf(format string, args ...any) {
	if e == nil {
		return
	}
	e.appendKey("msg")
	fmt.Fprintf(&e.buf, format, args...)
	e.buf.WriteByte('\n')
	e.logger.OnEventEnd(e)
}
