// Package loader implements the load/unload lifecycle around dynamically
// loadable plugin modules. A Loader owns exactly one module and arbitrates
// its open/close with reference counting; unloading is gated on the number
// of live instances so a module is never closed underneath its objects. A
// MultiLoader owns a collection of Loaders keyed by library path and fans
// requests out across them.
package loader

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/lcx/pluginhost/dylib"
	"github.com/lcx/pluginhost/log"
	"github.com/lcx/pluginhost/metrics"
	"github.com/lcx/pluginhost/registry"
)

// Loader owns one dynamically loadable module. The module is physically
// open iff the load count is positive; every LoadLibrary must be balanced
// by an UnloadLibrary before the module closes. In lazy mode the module is
// opened on first use and closed automatically when the last managed
// instance is released.
//
// Lock order: instMu before loadMu, never the reverse. The release hook
// holds instMu while deciding whether to auto-unload, so the unload path it
// reaches must not re-acquire it.
type Loader struct {
	reg    *registry.Registry
	path   string
	lazy   bool
	opener dylib.Opener

	loadMu    sync.Mutex // guards loadCount, lib and the open/close transition
	loadCount int
	lib       dylib.Library

	instMu        sync.Mutex // guards instanceCount
	instanceCount int

	warnLimiter *rate.Limiter
}

// Option configures a Loader or MultiLoader.
type Option func(*options)

type options struct {
	opener dylib.Opener
}

// WithOpener substitutes the library primitive. The default is the native
// runtime plugin loader; tests inject in-memory fakes.
func WithOpener(opener dylib.Opener) Option {
	return func(o *options) { o.opener = opener }
}

func applyOptions(opts []Option) *options {
	o := &options{opener: dylib.Native}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// refused-unload warnings can fire once per release on a hot path; cap the
// rate so the sink is not flooded.
const warnPerSecond = 1

// New creates a Loader for the module at path, sharing reg with every other
// loader in the host. In eager mode (lazy == false) the module is opened
// immediately and an open failure is returned from the constructor.
func New(reg *registry.Registry, path string, lazy bool, opts ...Option) (*Loader, error) {
	o := applyOptions(opts)
	l := &Loader{
		reg:         reg,
		path:        path,
		lazy:        lazy,
		opener:      o.opener,
		warnLimiter: rate.NewLimiter(rate.Limit(warnPerSecond), 1),
	}

	log.Debug().Str("library", path).Bool("lazy", lazy).Msg("loader constructed")

	if !lazy {
		if err := l.LoadLibrary(); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// LibraryPath returns the path of the module this loader is bound to.
func (l *Loader) LibraryPath() string { return l.path }

// IsLazyLoadUnload reports whether the loader opens on demand and closes
// automatically once its live instance count returns to zero.
func (l *Loader) IsLazyLoadUnload() bool { return l.lazy }

// IsLibraryLoaded reports whether the module is physically open within this
// loader's scope.
func (l *Loader) IsLibraryLoaded() bool {
	l.loadMu.Lock()
	defer l.loadMu.Unlock()
	return l.loadCount > 0
}

// LoadCount returns the number of outstanding LoadLibrary calls not yet
// balanced by UnloadLibrary.
func (l *Loader) LoadCount() int {
	l.loadMu.Lock()
	defer l.loadMu.Unlock()
	return l.loadCount
}

// LiveInstanceCount returns the number of managed instances created by this
// loader and not yet released.
func (l *Loader) LiveInstanceCount() int {
	l.instMu.Lock()
	defer l.instMu.Unlock()
	return l.instanceCount
}

// LoadLibrary opens the module if it is not already open and increments the
// load count. A second call while already open only bumps the count. The
// physical open runs under the process-wide load serialization lock with
// the loading context set, so registration side effects firing inside the
// open are attributed to this loader. On open failure the count is left
// unchanged and the error is returned.
func (l *Loader) LoadLibrary() error {
	l.loadMu.Lock()
	defer l.loadMu.Unlock()

	if l.loadCount > 0 {
		l.loadCount++
		return nil
	}

	if l.lib == nil {
		l.lib = l.opener(l.path)
	}

	registry.BeginLoad(l.reg, l, l.path)
	err := l.lib.Open()
	if err == nil {
		l.invokeRegistrationEntry()
	}
	registry.EndLoad()

	if err != nil {
		metrics.LoadsTotal.WithLabelValues("error").Inc()
		log.Error().Str("library", l.path).Err(err).Msg("library open failed")
		return err
	}

	l.loadCount++
	metrics.LoadsTotal.WithLabelValues("success").Inc()
	metrics.OpenLibraries.Inc()
	log.Debug().Str("library", l.path).Msg("library opened")
	return nil
}

// registrationEntrySymbol is the optional exported symbol a module may
// provide to register its classes explicitly instead of relying on init
// side effects. It is resolved and invoked inside the load bracket, so
// registrations it performs are attributed exactly like init-time ones.
const registrationEntrySymbol = "RegisterClasses"

func (l *Loader) invokeRegistrationEntry() {
	sym, ok := l.lib.FindSymbol(registrationEntrySymbol)
	if !ok {
		return
	}
	entry, ok := sym.(func())
	if !ok {
		log.Warn().Str("library", l.path).Str("symbol", registrationEntrySymbol).
			Msg("registration entry point has wrong type, ignoring")
		return
	}
	entry()
}

// UnloadLibrary decrements the load count and, when it reaches zero,
// removes this loader's factories from the registry and closes the module.
// While managed instances are alive the call refuses, logs a severe
// warning and returns the count unchanged; forcing the close would leave
// dangling references. Decrementing past zero clamps at zero. The returned
// value is the number of additional UnloadLibrary calls required to fully
// unload.
func (l *Loader) UnloadLibrary() int {
	l.instMu.Lock()
	defer l.instMu.Unlock()
	return l.unloadLocked()
}

// unloadLocked is UnloadLibrary with instMu already held. The release hook
// calls it directly while holding instMu.
func (l *Loader) unloadLocked() int {
	l.loadMu.Lock()
	defer l.loadMu.Unlock()

	if l.instanceCount > 0 {
		metrics.UnloadsBlockedTotal.Inc()
		if l.warnLimiter.Allow() {
			log.Warn().Str("library", l.path).Int("liveInstances", l.instanceCount).
				Msg("SEVERE: attempt to unload library while instances created by this loader are alive; release them first, the library will NOT be unloaded")
		}
		return l.loadCount
	}

	if l.loadCount == 0 {
		return 0
	}

	l.loadCount--
	if l.loadCount == 0 {
		removed := l.reg.RemoveOwned(l)
		if l.lib != nil {
			if err := l.lib.Close(); err != nil {
				log.Warn().Str("library", l.path).Err(err).Msg("library close reported an error")
			}
		}
		metrics.UnloadsTotal.Inc()
		metrics.OpenLibraries.Dec()
		log.Debug().Str("library", l.path).Int("factoriesRemoved", removed).Msg("library unloaded")
	}
	return l.loadCount
}

// onInstanceRelease is the destruction hook for managed instances.
func (l *Loader) onInstanceRelease() {
	l.instMu.Lock()
	defer l.instMu.Unlock()

	// Close zeroes the count for instances still alive at teardown; a
	// release arriving after that has nothing left to account for.
	if l.instanceCount == 0 {
		return
	}

	l.instanceCount--
	metrics.LiveInstances.Dec()

	if l.instanceCount != 0 || !l.lazy {
		return
	}
	if l.reg.UnmanagedCreated() {
		log.Warn().Str("library", l.path).
			Msg("last managed instance released but the library cannot be auto-unloaded: an unmanaged instance was created in this process")
		return
	}
	l.unloadLocked()
}

// Close tears the loader down, forcing a full unload even when live
// instances exist. The forced path logs the same severe warning as a
// refused unload but does not block teardown.
func (l *Loader) Close() {
	l.instMu.Lock()
	defer l.instMu.Unlock()

	if l.instanceCount > 0 {
		log.Warn().Str("library", l.path).Int("liveInstances", l.instanceCount).
			Msg("SEVERE: loader closing while instances are alive; the library will be unloaded anyway")
		metrics.LiveInstances.Sub(float64(l.instanceCount))
		l.instanceCount = 0
	}
	for l.unloadLocked() > 0 {
	}
}

// createRaw is the common construction path for managed and unmanaged
// creation.
func createRaw[Base any](l *Loader, className string, managed bool) (Base, error) {
	var zero Base
	key := registry.KeyOf[Base]()

	if !managed {
		l.reg.SetUnmanagedCreated()
	} else if l.lazy && l.reg.UnmanagedCreated() {
		log.Info().Str("library", l.path).
			Msg("creating a managed instance while an unmanaged instance exists in this process; the library will not be auto-unloaded on final release")
	}

	if !l.IsLibraryLoaded() {
		if err := l.LoadLibrary(); err != nil {
			return zero, err
		}
	}

	f, ok := l.reg.Lookup(key, className)
	if !ok {
		return zero, &CreationError{
			Class: className, Interface: key.String(), LibraryPath: l.path,
			Reason: "no factory registered",
		}
	}

	switch {
	case f.IsOwnedBy(l):
	case f.IsOwnedBy(nil):
		log.Warn().Str("class", className).Str("interface", key.String()).
			Msg("factory for requested class has no owner; its module was opened outside the host and cannot be safely unloaded")
	default:
		return zero, &CreationError{
			Class: className, Interface: key.String(), LibraryPath: l.path,
			Reason: "factory is owned by a different loader",
		}
	}

	obj, ok := f.New().(Base)
	if !ok {
		return zero, &CreationError{
			Class: className, Interface: key.String(), LibraryPath: f.LibraryPath(),
			Reason: "constructed object does not implement the interface",
		}
	}

	if managed {
		l.instMu.Lock()
		l.instanceCount++
		l.instMu.Unlock()
		metrics.LiveInstances.Inc()
		metrics.InstancesCreatedTotal.WithLabelValues("managed").Inc()
	} else {
		metrics.InstancesCreatedTotal.WithLabelValues("unmanaged").Inc()
	}
	return obj, nil
}

// CreateInstance constructs a managed instance of className behind the
// interface Base. The module is loaded first if necessary. Release the
// returned Instance when done; in lazy mode releasing the last instance
// unloads the module.
func CreateInstance[Base any](l *Loader, className string) (*Instance[Base], error) {
	obj, err := createRaw[Base](l, className, true)
	if err != nil {
		return nil, err
	}
	return newInstance(obj, l), nil
}

// CreateUnmanagedInstance constructs an instance with no ownership
// tracking. Its existence permanently disables automatic unload for every
// loader sharing the registry, because nothing will ever signal its
// destruction. Prefer CreateInstance.
func CreateUnmanagedInstance[Base any](l *Loader, className string) (Base, error) {
	return createRaw[Base](l, className, false)
}

// GetAvailableClasses returns the names of classes implementing Base that
// this loader can instantiate, in registration order, with orphan classes
// appended.
func GetAvailableClasses[Base any](l *Loader) []string {
	return l.reg.ListOwned(registry.KeyOf[Base](), l)
}

// IsClassAvailable reports whether className is instantiable through this
// loader under the interface Base.
func IsClassAvailable[Base any](l *Loader, className string) bool {
	for _, name := range GetAvailableClasses[Base](l) {
		if name == className {
			return true
		}
	}
	return false
}
