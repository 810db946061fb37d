package loader

import "sync"

// Instance is a managed plugin object bound to the Loader that created it.
// Release must be called exactly once when the object is no longer needed;
// it is idempotent, so deferring it is safe even on paths that release
// early. An unreleased Instance pins its module open forever.
type Instance[Base any] struct {
	obj    Base
	loader *Loader
	once   sync.Once
}

func newInstance[Base any](obj Base, l *Loader) *Instance[Base] {
	return &Instance[Base]{obj: obj, loader: l}
}

// Get returns the underlying object. The object must not be used after
// Release.
func (i *Instance[Base]) Get() Base { return i.obj }

// Loader returns the loader that created this instance.
func (i *Instance[Base]) Loader() *Loader { return i.loader }

// Release signals that the object is no longer in use, decrementing the
// owning loader's live instance count. In lazy mode the count reaching
// zero unloads the module, unless an unmanaged instance was ever created
// in this process. Only the first call has any effect.
func (i *Instance[Base]) Release() {
	i.once.Do(func() {
		i.loader.onInstanceRelease()
	})
}
