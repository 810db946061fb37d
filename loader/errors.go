package loader

import "fmt"

// CreationError reports that a requested class could not be instantiated:
// no reachable factory exists for the class under the given interface. It
// carries enough context for the caller to retry with corrected input.
type CreationError struct {
	Class       string
	Interface   string
	LibraryPath string
	Reason      string
}

func (e *CreationError) Error() string {
	if e.LibraryPath != "" {
		return fmt.Sprintf("could not create instance of class %s (interface %s, library %s): %s",
			e.Class, e.Interface, e.LibraryPath, e.Reason)
	}
	return fmt.Sprintf("could not create instance of class %s (interface %s): %s",
		e.Class, e.Interface, e.Reason)
}

// NoLoaderError reports that a MultiLoader was asked to use a library path
// it never loaded.
type NoLoaderError struct {
	LibraryPath string
}

func (e *NoLoaderError) Error() string {
	return fmt.Sprintf("no loader bound to library %s; call LoadLibrary first", e.LibraryPath)
}
