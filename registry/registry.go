// Package registry holds the source of truth for what the plugin host can
// build: a mapping from abstract interface identity to named concrete-class
// factories, together with the transient loading context that attributes
// load-time registrations to the loader performing the load.
package registry

import (
	"sync"

	"github.com/lcx/pluginhost/log"
	"github.com/lcx/pluginhost/metrics"
)

// Registry maps interface identity to named factories. A Registry is
// explicitly constructed and shared by reference between the loaders that
// use it; tests construct a fresh one per test. All methods are safe for
// concurrent use under a single internal mutex, which is distinct from any
// loader-level lock.
type Registry struct {
	mu        sync.Mutex
	factories map[InterfaceKey]map[string]*Factory
	order     map[InterfaceKey][]string

	// Sticky flags. Once set they stay set for the life of the registry.
	unmanagedCreated bool
	nonPureOpened    bool
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		factories: make(map[InterfaceKey]map[string]*Factory),
		order:     make(map[InterfaceKey][]string),
	}
}

// Register inserts factory under (key, class name). A prior entry with the
// same class name is overwritten, last writer wins; the overwrite is logged
// as a severe warning because it usually means two modules define the same
// class, and the earlier factory becomes unreachable.
func (r *Registry) Register(key InterfaceKey, f *Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	classMap, ok := r.factories[key]
	if !ok {
		classMap = make(map[string]*Factory)
		r.factories[key] = classMap
	}

	name := f.ClassName()
	if _, exists := classMap[name]; exists {
		log.Warn().
			Str("class", name).
			Str("interface", key.String()).
			Str("library", f.LibraryPath()).
			Msg("class name collision, new factory overwrites existing one; the previous factory is now unreachable")
	} else {
		r.order[key] = append(r.order[key], name)
		metrics.RegisteredFactories.Inc()
	}
	classMap[name] = f
}

// Lookup returns the factory registered for (key, className).
func (r *Registry) Lookup(key InterfaceKey, className string) (*Factory, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.factories[key][className]
	return f, ok
}

// ListOwned returns, in registration order, the class names under key whose
// factories are owned by owner, followed by orphan class names. Orphans are
// included so classes from modules opened outside the host remain
// discoverable.
func (r *Registry) ListOwned(key InterfaceKey, owner Owner) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var owned, orphans []string
	for _, name := range r.order[key] {
		f := r.factories[key][name]
		switch {
		case f.IsOwnedBy(owner):
			owned = append(owned, name)
		case f.IsOwnedBy(nil):
			orphans = append(orphans, name)
		}
	}
	return append(owned, orphans...)
}

// RemoveOwned drops every factory owned by owner across all interfaces and
// returns how many were removed. Called when the owning module is unloaded.
func (r *Registry) RemoveOwned(owner Owner) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, classMap := range r.factories {
		kept := r.order[key][:0]
		for _, name := range r.order[key] {
			if classMap[name].IsOwnedBy(owner) {
				delete(classMap, name)
				removed++
				continue
			}
			kept = append(kept, name)
		}
		r.order[key] = kept
	}
	if removed > 0 {
		metrics.RegisteredFactories.Sub(float64(removed))
	}
	return removed
}

// Libraries returns the distinct library paths that currently have at least
// one factory registered. Orphan factories carry no path and are skipped.
func (r *Registry) Libraries() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]struct{})
	var out []string
	for _, classMap := range r.factories {
		for _, f := range classMap {
			path := f.LibraryPath()
			if path == "" {
				continue
			}
			if _, dup := seen[path]; dup {
				continue
			}
			seen[path] = struct{}{}
			out = append(out, path)
		}
	}
	return out
}

// SetUnmanagedCreated marks that an unmanaged instance has been created.
// From then on no loader sharing this registry performs automatic
// unload-on-zero-instances, because an unmanaged instance carries no
// release hook.
func (r *Registry) SetUnmanagedCreated() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unmanagedCreated = true
}

// UnmanagedCreated reports whether any unmanaged instance was ever created.
func (r *Registry) UnmanagedCreated() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unmanagedCreated
}

// SetNonPureOpened marks that a registration fired with no active loading
// context, meaning some module was opened by a means other than the host.
func (r *Registry) SetNonPureOpened() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nonPureOpened = true
}

// NonPureOpened reports whether a non-pure module open was ever observed.
func (r *Registry) NonPureOpened() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nonPureOpened
}

// DebugDump logs every registered factory at debug level.
func (r *Registry) DebugDump() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, classMap := range r.factories {
		for name, f := range classMap {
			owner := "<orphan>"
			if f.Owner() != nil {
				owner = f.Owner().LibraryPath()
			}
			log.Debug().
				Str("interface", key.String()).
				Str("class", name).
				Str("library", f.LibraryPath()).
				Str("owner", owner).
				Msg("registered factory")
		}
	}
}
