package log

import (
	"os"
	"sync"
)

// Appender receives finalized log entries. Implementations must tolerate
// concurrent Write calls.
type Appender interface {
	// Write emits one finalized entry. The slice is only valid for the
	// duration of the call.
	Write(p []byte)

	// Refresh re-opens or re-applies output state, e.g. after rotation or a
	// configuration change.
	Refresh()
}

// ConsoleAppender writes entries to stderr.
type ConsoleAppender struct {
	mu sync.Mutex
}

// NewConsoleAppender creates a console appender.
func NewConsoleAppender() *ConsoleAppender {
	return &ConsoleAppender{}
}

func (a *ConsoleAppender) Write(p []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, _ = os.Stderr.Write(p)
}

func (a *ConsoleAppender) Refresh() {}

// FileAppender writes entries to a single log file, creating it on first
// write. Rotation is delegated to external tooling; Refresh re-opens the
// file so a rotated-away handle is released.
type FileAppender struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// NewFileAppender creates a file appender for the given path.
func NewFileAppender(path string) *FileAppender {
	return &FileAppender{path: path}
}

func (a *FileAppender) Write(p []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.f == nil {
		f, err := os.OpenFile(a.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return
		}
		a.f = f
	}
	_, _ = a.f.Write(p)
}

func (a *FileAppender) Refresh() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.f != nil {
		_ = a.f.Close()
		a.f = nil
	}
}

// CaptureAppender buffers entries in memory. It exists for tests that need
// to observe emitted warnings.
type CaptureAppender struct {
	mu      sync.Mutex
	entries []string
}

// NewCaptureAppender creates an in-memory appender.
func NewCaptureAppender() *CaptureAppender {
	return &CaptureAppender{}
}

func (a *CaptureAppender) Write(p []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, string(p))
}

func (a *CaptureAppender) Refresh() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = nil
}

// Entries returns a copy of everything written so far.
func (a *CaptureAppender) Entries() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.entries))
	copy(out, a.entries)
	return out
}
