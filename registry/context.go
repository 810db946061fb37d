package registry

import (
	"sync"

	"github.com/lcx/pluginhost/log"
)

// The loading context records which loader, registry and module path are in
// the middle of a physical module open. Registration callbacks that fire as
// a side effect of the open read it to attribute new factories.
//
// _loadSerializationMu is held for the entire duration of every physical
// open, process-wide: concurrent opens from different loaders must not
// interleave, because a registration callback has no other way to learn
// which loader is responsible. The context fields themselves are guarded by
// the short-section _ctxMu so that RegisterPlugin never needs to touch the
// serialization lock (it may be invoked re-entrantly from inside the open
// call that already holds it).
var (
	_loadSerializationMu sync.Mutex

	_ctxMu          sync.Mutex
	_activeRegistry *Registry
	_activeOwner    Owner
	_loadingPath    string
)

var (
	_defaultMu       sync.Mutex
	_defaultRegistry *Registry
)

// Default returns the process-wide fallback registry. It receives factories
// registered while no load is in progress (non-pure module opens) and is
// created on first use.
func Default() *Registry {
	_defaultMu.Lock()
	defer _defaultMu.Unlock()
	if _defaultRegistry == nil {
		_defaultRegistry = New()
	}
	return _defaultRegistry
}

// SetDefault replaces the process-wide fallback registry. Intended for
// embedding processes that construct their own registry and for tests.
func SetDefault(r *Registry) {
	_defaultMu.Lock()
	defer _defaultMu.Unlock()
	_defaultRegistry = r
}

// BeginLoad acquires the process-wide load serialization lock and publishes
// the loading context. Every BeginLoad must be paired with EndLoad around
// exactly one module-open call.
func BeginLoad(r *Registry, owner Owner, libraryPath string) {
	_loadSerializationMu.Lock()

	_ctxMu.Lock()
	_activeRegistry = r
	_activeOwner = owner
	_loadingPath = libraryPath
	_ctxMu.Unlock()
}

// EndLoad clears the loading context and releases the serialization lock.
func EndLoad() {
	_ctxMu.Lock()
	_activeRegistry = nil
	_activeOwner = nil
	_loadingPath = ""
	_ctxMu.Unlock()

	_loadSerializationMu.Unlock()
}

func loadingContext() (*Registry, Owner, string) {
	_ctxMu.Lock()
	defer _ctxMu.Unlock()
	return _activeRegistry, _activeOwner, _loadingPath
}

// RegisterPlugin registers a factory for the concrete class className
// implementing the interface Base. It is invoked once per class as a side
// effect of opening a module, either from the module's init functions or
// from its exported registration entry point.
//
// When a load is in progress the factory is attributed to the loading
// loader and inserted into that loader's registry. When no load is in
// progress the module was opened by some means outside the host: the
// factory is registered as an orphan in the default registry and the
// non-pure sticky flag is set, because the host can no longer reason about
// when that module may be safely closed.
func RegisterPlugin[Base any](className string, construct func() Base) {
	reg, owner, libraryPath := loadingContext()

	if reg == nil {
		log.Warn().
			Str("class", className).
			Msg("plugin registered with no load in progress; the defining module was opened outside the host and can no longer be safely unloaded")
		reg = Default()
		reg.SetNonPureOpened()
	}

	f := NewFactory(className, owner, libraryPath, func() any { return construct() })
	reg.Register(KeyOf[Base](), f)

	log.Debug().
		Str("class", className).
		Str("interface", KeyOf[Base]().String()).
		Str("library", libraryPath).
		Msg("plugin factory registered")
}
