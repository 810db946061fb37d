package loader

import (
	"sync"

	"github.com/lcx/pluginhost/log"
	"github.com/lcx/pluginhost/registry"
)

// MultiLoader owns a collection of Loaders keyed by library path and
// provides a single entry point that searches across all of them. Loaders
// it creates inherit its lazy flag and registry; destroying the MultiLoader
// destroys every owned Loader.
type MultiLoader struct {
	mu      sync.Mutex
	reg     *registry.Registry
	lazy    bool
	opts    []Option
	loaders map[string]*Loader
	order   []string
}

// NewMultiLoader creates an empty MultiLoader sharing reg.
func NewMultiLoader(reg *registry.Registry, lazy bool, opts ...Option) *MultiLoader {
	return &MultiLoader{
		reg:     reg,
		lazy:    lazy,
		opts:    opts,
		loaders: make(map[string]*Loader),
	}
}

// IsLazyLoadUnload reports whether owned loaders are created in lazy mode.
func (ml *MultiLoader) IsLazyLoadUnload() bool { return ml.lazy }

// LoadLibrary binds a Loader for path, creating one if none exists yet; a
// path that is already bound is a no-op. In eager mode the module is opened
// here and an open failure is returned.
func (ml *MultiLoader) LoadLibrary(path string) error {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	return ml.loadLocked(path)
}

func (ml *MultiLoader) loadLocked(path string) error {
	if _, exists := ml.loaders[path]; exists {
		return nil
	}
	l, err := New(ml.reg, path, ml.lazy, ml.opts...)
	if err != nil {
		return err
	}
	ml.loaders[path] = l
	ml.order = append(ml.order, path)
	return nil
}

// UnloadLibrary delegates to the bound Loader's UnloadLibrary. When the
// loader reaches the fully unloaded state it is destroyed and removed from
// the collection. The return value is the number of additional calls
// required; an unbound path returns 0.
func (ml *MultiLoader) UnloadLibrary(path string) int {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	l, exists := ml.loaders[path]
	if !exists {
		return 0
	}
	remaining := l.UnloadLibrary()
	if remaining == 0 && l.LiveInstanceCount() == 0 {
		ml.removeLocked(path)
	}
	return remaining
}

func (ml *MultiLoader) removeLocked(path string) {
	delete(ml.loaders, path)
	for i, p := range ml.order {
		if p == path {
			ml.order = append(ml.order[:i], ml.order[i+1:]...)
			break
		}
	}
}

// LoaderForLibrary returns the Loader bound to path, nil if none.
func (ml *MultiLoader) LoaderForLibrary(path string) *Loader {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	return ml.loaders[path]
}

// IsLibraryAvailable reports whether a Loader is bound to path.
func (ml *MultiLoader) IsLibraryAvailable(path string) bool {
	return ml.LoaderForLibrary(path) != nil
}

// IsLibraryLoaded reports whether path is bound and physically open.
func (ml *MultiLoader) IsLibraryLoaded(path string) bool {
	l := ml.LoaderForLibrary(path)
	return l != nil && l.IsLibraryLoaded()
}

// IsLibraryLoadedByAnybody reports whether path currently has factories
// registered in the shared registry, no matter which loader opened it,
// including loaders outside this collection.
func (ml *MultiLoader) IsLibraryLoadedByAnybody(path string) bool {
	for _, p := range ml.reg.Libraries() {
		if p == path {
			return true
		}
	}
	return false
}

// GetRegisteredLibraries returns the bound library paths in binding order.
func (ml *MultiLoader) GetRegisteredLibraries() []string {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	out := make([]string, len(ml.order))
	copy(out, ml.order)
	return out
}

// allLoaders snapshots the owned loaders in binding order.
func (ml *MultiLoader) allLoaders() []*Loader {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	out := make([]*Loader, 0, len(ml.order))
	for _, path := range ml.order {
		out = append(out, ml.loaders[path])
	}
	return out
}

// Close destroys every owned Loader, forcing unload on each.
func (ml *MultiLoader) Close() {
	ml.mu.Lock()
	loaders := make([]*Loader, 0, len(ml.order))
	for _, path := range ml.order {
		loaders = append(loaders, ml.loaders[path])
	}
	ml.loaders = make(map[string]*Loader)
	ml.order = nil
	ml.mu.Unlock()

	for _, l := range loaders {
		l.Close()
	}
}

// loaderForClass returns the first owned loader, in binding order, whose
// registry view can instantiate className under Base, lazily opening each
// candidate as it is examined. Returns nil if no loader matches.
func loaderForClass[Base any](ml *MultiLoader, className string) *Loader {
	for _, l := range ml.allLoaders() {
		if !l.IsLibraryLoaded() {
			if err := l.LoadLibrary(); err != nil {
				log.Debug().Str("library", l.LibraryPath()).Err(err).
					Msg("skipping library that failed to open during class search")
				continue
			}
		}
		if IsClassAvailable[Base](l, className) {
			return l
		}
	}
	return nil
}

// CreateInstanceIn searches all owned loaders in binding order and constructs
// a managed instance of className from the first library that defines it.
func CreateInstanceIn[Base any](ml *MultiLoader, className string) (*Instance[Base], error) {
	l := loaderForClass[Base](ml, className)
	if l == nil {
		return nil, &CreationError{
			Class: className, Interface: registry.KeyOf[Base]().String(),
			Reason: "no factory exists in any loaded library; make sure the library was loaded through LoadLibrary",
		}
	}
	return CreateInstance[Base](l, className)
}

// CreateInstanceFrom constructs a managed instance of className from the
// library bound at path.
func CreateInstanceFrom[Base any](ml *MultiLoader, className, path string) (*Instance[Base], error) {
	l := ml.LoaderForLibrary(path)
	if l == nil {
		return nil, &NoLoaderError{LibraryPath: path}
	}
	return CreateInstance[Base](l, className)
}

// CreateUnmanagedInstanceIn is the unmanaged counterpart of
// CreateInstanceIn. See CreateUnmanagedInstance for the consequences.
func CreateUnmanagedInstanceIn[Base any](ml *MultiLoader, className string) (Base, error) {
	l := loaderForClass[Base](ml, className)
	if l == nil {
		var zero Base
		return zero, &CreationError{
			Class: className, Interface: registry.KeyOf[Base]().String(),
			Reason: "no factory exists in any loaded library; make sure the library was loaded through LoadLibrary",
		}
	}
	return CreateUnmanagedInstance[Base](l, className)
}

// CreateUnmanagedInstanceFrom is the unmanaged counterpart of
// CreateInstanceFrom.
func CreateUnmanagedInstanceFrom[Base any](ml *MultiLoader, className, path string) (Base, error) {
	l := ml.LoaderForLibrary(path)
	if l == nil {
		var zero Base
		return zero, &NoLoaderError{LibraryPath: path}
	}
	return CreateUnmanagedInstance[Base](l, className)
}

// GetAvailableClassesIn aggregates the available classes across every owned
// loader. Duplicates across libraries are preserved, once per owning
// library.
func GetAvailableClassesIn[Base any](ml *MultiLoader) []string {
	var out []string
	for _, l := range ml.allLoaders() {
		out = append(out, GetAvailableClasses[Base](l)...)
	}
	return out
}

// IsClassAvailableIn reports whether any owned loader can instantiate
// className under Base.
func IsClassAvailableIn[Base any](ml *MultiLoader, className string) bool {
	for _, name := range GetAvailableClassesIn[Base](ml) {
		if name == className {
			return true
		}
	}
	return false
}
