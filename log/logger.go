// Package log provides the leveled structured logging used across the
// plugin host. Events are pooled and rendered as key=value lines, and the
// minimum level can be adjusted at runtime without recreating the logger.
package log

import (
	"sync"
	"sync/atomic"
	"time"
)

// Logger is the leveled event API. Each call returns an Event ready for
// fields, or nil when the level is below the configured threshold; Event
// methods are nil-safe so call sites never branch.
type Logger interface {
	Debug() *Event
	Info() *Event
	Warn() *Event
	Error() *Event
	Fatal() *Event
	AddAppender(appender Appender)
	OnEventEnd(e *Event)
}

// HostLogger is the standard Logger implementation. It is safe for
// concurrent use; the logging fast path is lock-free apart from the event
// pool.
type HostLogger struct {
	appenders []Appender
	minLevel  atomic.Uint32
	eventPool *sync.Pool
}

// NewLogger creates a HostLogger from cfg. A nil cfg selects the default
// configuration (debug level, console output).
func NewLogger(cfg *Cfg) *HostLogger {
	if cfg == nil {
		cfg = getDefaultCfg()
	}

	logger := &HostLogger{}
	logger.minLevel.Store(uint32(ParseLevel(cfg.Level)))
	logger.eventPool = &sync.Pool{
		New: func() any {
			return newEvent(logger)
		},
	}

	if cfg.FileAppender && cfg.Path != "" {
		logger.AddAppender(NewFileAppender(cfg.Path))
	}
	if cfg.ConsoleAppender {
		logger.AddAppender(NewConsoleAppender())
	}

	return logger
}

// SetLevel adjusts the minimum emitted level at runtime.
func (x *HostLogger) SetLevel(level Level) {
	x.minLevel.Store(uint32(level))
}

func (x *HostLogger) checkLevel(level Level) bool {
	return Level(x.minLevel.Load()) <= level
}

// AddAppender registers an additional output destination. Appenders must be
// added before the logger is shared across goroutines.
func (x *HostLogger) AddAppender(appender Appender) {
	x.appenders = append(x.appenders, appender)
}

// Refresh triggers a refresh on all registered appenders.
func (x *HostLogger) Refresh() {
	for _, appender := range x.appenders {
		appender.Refresh()
	}
}

// OnEventEnd writes the finalized event to every appender and returns it to
// the pool. Fatal events panic after emission.
func (x *HostLogger) OnEventEnd(e *Event) {
	for _, appender := range x.appenders {
		appender.Write(e.buf.Bytes())
	}

	level := e.level
	x.eventPool.Put(e)

	if level == FatalLevel {
		panic("fatal log event")
	}
}

func (x *HostLogger) log(level Level) *Event {
	if !x.checkLevel(level) {
		return nil
	}

	e := x.eventPool.Get().(*Event)
	e.Reset()
	e.level = level

	t := time.Now()
	e.Time("time", &t)
	e.Str("level", level.String())
	return e
}

func (x *HostLogger) Debug() *Event { return x.log(DebugLevel) }
func (x *HostLogger) Info() *Event  { return x.log(InfoLevel) }
func (x *HostLogger) Warn() *Event  { return x.log(WarnLevel) }
func (x *HostLogger) Error() *Event { return x.log(ErrorLevel) }
func (x *HostLogger) Fatal() *Event { return x.log(FatalLevel) }

var _defaultLogger atomic.Pointer[HostLogger]

func init() {
	_defaultLogger.Store(NewLogger(nil))
}

// SetDefaultLogger replaces the package-level default logger.
func SetDefaultLogger(logger *HostLogger) {
	_defaultLogger.Store(logger)
}

// DefaultLogger returns the package-level default logger.
func DefaultLogger() *HostLogger {
	return _defaultLogger.Load()
}

// AddAppender adds an appender to the default logger.
func AddAppender(appender Appender) {
	_defaultLogger.Load().AddAppender(appender)
}

// SetLevel adjusts the default logger's minimum level.
func SetLevel(level Level) {
	_defaultLogger.Load().SetLevel(level)
}

// Refresh refreshes all appenders of the default logger.
func Refresh() {
	_defaultLogger.Load().Refresh()
}

// Debug creates a debug-level event on the default logger.
func Debug() *Event { return _defaultLogger.Load().Debug() }

// Info creates an info-level event on the default logger.
func Info() *Event { return _defaultLogger.Load().Info() }

// Warn creates a warn-level event on the default logger.
func Warn() *Event { return _defaultLogger.Load().Warn() }

// Error creates an error-level event on the default logger.
func Error() *Event { return _defaultLogger.Load().Error() }

// Fatal creates a fatal-level event on the default logger. The event panics
// once finalized.
func Fatal() *Event { return _defaultLogger.Load().Fatal() }
