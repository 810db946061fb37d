package dylib

import (
	"plugin"
	"runtime"
	"sync"
)

// NativeLibrary is the production Library implementation backed by the Go
// runtime plugin loader. The Go runtime never physically unloads a plugin;
// Close drops the handle so the library reports closed and symbol lookups
// stop resolving, while a later Open revalidates against the runtime's
// cached module.
type NativeLibrary struct {
	mu     sync.Mutex
	path   string
	handle *plugin.Plugin
}

// Native creates a Library over the runtime plugin loader.
func Native(path string) Library {
	return &NativeLibrary{path: path}
}

func (l *NativeLibrary) Open() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.handle != nil {
		return nil
	}
	p, err := plugin.Open(l.path)
	if err != nil {
		return &LoadError{Path: l.path, Err: err}
	}
	l.handle = p
	return nil
}

func (l *NativeLibrary) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handle = nil
	return nil
}

func (l *NativeLibrary) FindSymbol(name string) (any, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.handle == nil {
		return nil, false
	}
	sym, err := l.handle.Lookup(name)
	if err != nil {
		return nil, false
	}
	return sym, true
}

func (l *NativeLibrary) IsOpen() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.handle != nil
}

func (l *NativeLibrary) Path() string { return l.path }

// Prefix returns the conventional shared library filename prefix for the
// current platform.
func Prefix() string {
	if runtime.GOOS == "windows" {
		return ""
	}
	return "lib"
}

// Suffix returns the conventional shared library filename suffix for the
// current platform.
func Suffix() string {
	switch runtime.GOOS {
	case "darwin":
		return ".dylib"
	case "windows":
		return ".dll"
	default:
		return ".so"
	}
}
