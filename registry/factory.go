package registry

// Owner is the identity of the Loader a factory is attributed to. Owners
// are compared by interface identity; a nil Owner marks an orphan factory
// whose defining module was opened by something other than the plugin host.
type Owner interface {
	// LibraryPath returns the path of the module the owner is bound to.
	LibraryPath() string
}

// Factory constructs one concrete class behind one abstract interface. A
// factory is created once per class per module load and removed when its
// owning module is unloaded.
type Factory struct {
	className   string
	owner       Owner
	libraryPath string
	construct   func() any
}

// NewFactory creates a factory for className. owner may be nil (orphan).
func NewFactory(className string, owner Owner, libraryPath string, construct func() any) *Factory {
	return &Factory{
		className:   className,
		owner:       owner,
		libraryPath: libraryPath,
		construct:   construct,
	}
}

// ClassName returns the concrete class name the factory builds.
func (f *Factory) ClassName() string { return f.className }

// LibraryPath returns the path of the module that registered the factory,
// or the empty string for orphans.
func (f *Factory) LibraryPath() string { return f.libraryPath }

// Owner returns the owning loader identity, nil for orphans.
func (f *Factory) Owner() Owner { return f.owner }

// IsOwnedBy reports whether the factory is attributed to owner. Passing nil
// asks whether the factory is an orphan.
func (f *Factory) IsOwnedBy(owner Owner) bool { return f.owner == owner }

// New constructs a raw instance of the concrete class.
func (f *Factory) New() any { return f.construct() }
