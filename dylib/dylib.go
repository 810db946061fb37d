// Package dylib wraps the platform primitive for opening dynamically
// loadable code modules. The core never touches the primitive directly: it
// consumes the Library interface, and production code injects the native
// implementation while tests inject in-memory fakes.
package dylib

import "fmt"

// Library is one dynamically loadable code module identified by a
// filesystem path.
type Library interface {
	// Open loads the module into the process. Opening an already open
	// library has no effect. Registration side effects fire synchronously
	// inside this call.
	Open() error

	// Close releases the module handle. Closing an unopened library has no
	// effect.
	Close() error

	// FindSymbol resolves an exported symbol by name. The second result is
	// false when the library is not open or the symbol does not exist.
	FindSymbol(name string) (any, bool)

	// IsOpen reports whether the module is currently loaded.
	IsOpen() bool

	// Path returns the filesystem path the library was created with.
	Path() string
}

// Opener produces a Library for a path. Loaders hold an Opener so the
// primitive can be substituted.
type Opener func(path string) Library

// LoadError reports a failed open of a library.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("could not load library %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }
