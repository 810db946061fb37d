package registry

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcx/pluginhost/log"
)

type Greeter interface {
	Greet() string
}

type Counter interface {
	Next() int
}

type hello struct{}

func (h *hello) Greet() string { return "hello" }

type hola struct{}

func (h *hola) Greet() string { return "hola" }

// fakeOwner stands in for a loader; the registry only needs identity and a
// path for diagnostics.
type fakeOwner struct{ path string }

func (o *fakeOwner) LibraryPath() string { return o.path }

func greeterFactory(name string, owner Owner, construct func() Greeter) *Factory {
	path := ""
	if owner != nil {
		path = owner.LibraryPath()
	}
	return NewFactory(name, owner, path, func() any { return construct() })
}

func TestKeyOfIdentity(t *testing.T) {
	assert.Equal(t, KeyOf[Greeter](), KeyOf[Greeter]())
	assert.NotEqual(t, KeyOf[Greeter](), KeyOf[Counter]())
	assert.Contains(t, KeyOf[Greeter]().String(), "Greeter")
}

func TestRegisterAndLookup(t *testing.T) {
	r := New()
	owner := &fakeOwner{path: "a.so"}
	r.Register(KeyOf[Greeter](), greeterFactory("Hello", owner, func() Greeter { return &hello{} }))

	f, ok := r.Lookup(KeyOf[Greeter](), "Hello")
	require.True(t, ok)
	assert.Equal(t, "Hello", f.ClassName())
	assert.Equal(t, "a.so", f.LibraryPath())
	assert.True(t, f.IsOwnedBy(owner))

	obj, ok := f.New().(Greeter)
	require.True(t, ok)
	assert.Equal(t, "hello", obj.Greet())

	// Same class name under a different interface is a separate slot.
	_, ok = r.Lookup(KeyOf[Counter](), "Hello")
	assert.False(t, ok)
}

func TestCollisionLastWriterWins(t *testing.T) {
	r := New()
	first := &fakeOwner{path: "a.so"}
	second := &fakeOwner{path: "b.so"}

	r.Register(KeyOf[Greeter](), greeterFactory("Hello", first, func() Greeter { return &hello{} }))
	r.Register(KeyOf[Greeter](), greeterFactory("Hello", second, func() Greeter { return &hola{} }))

	f, ok := r.Lookup(KeyOf[Greeter](), "Hello")
	require.True(t, ok)
	assert.True(t, f.IsOwnedBy(second))
	assert.Equal(t, "hola", f.New().(Greeter).Greet())

	// The overwrite must not duplicate the name in the listing.
	assert.Equal(t, []string{"Hello"}, r.ListOwned(KeyOf[Greeter](), second))
	assert.Empty(t, r.ListOwned(KeyOf[Greeter](), first))
}

func TestListOwnedKeepsRegistrationOrder(t *testing.T) {
	r := New()
	owner := &fakeOwner{path: "a.so"}
	other := &fakeOwner{path: "b.so"}

	names := []string{"Zebra", "Alpha", "Mid"}
	for _, name := range names {
		r.Register(KeyOf[Greeter](), greeterFactory(name, owner, func() Greeter { return &hello{} }))
	}
	r.Register(KeyOf[Greeter](), greeterFactory("Other", other, func() Greeter { return &hola{} }))
	r.Register(KeyOf[Greeter](), greeterFactory("Stray", nil, func() Greeter { return &hola{} }))

	// Owned classes in registration order, then orphans; classes owned by a
	// different loader never show up.
	assert.Equal(t, []string{"Zebra", "Alpha", "Mid", "Stray"}, r.ListOwned(KeyOf[Greeter](), owner))
	assert.Equal(t, []string{"Other", "Stray"}, r.ListOwned(KeyOf[Greeter](), other))
	assert.Empty(t, r.ListOwned(KeyOf[Counter](), owner))
}

func TestRemoveOwnedAcrossInterfaces(t *testing.T) {
	r := New()
	owner := &fakeOwner{path: "a.so"}
	other := &fakeOwner{path: "b.so"}

	r.Register(KeyOf[Greeter](), greeterFactory("Hello", owner, func() Greeter { return &hello{} }))
	r.Register(KeyOf[Greeter](), greeterFactory("Hola", other, func() Greeter { return &hola{} }))
	r.Register(KeyOf[Counter](), NewFactory("Clock", owner, "a.so", func() any { return nil }))

	assert.Equal(t, 2, r.RemoveOwned(owner))

	_, ok := r.Lookup(KeyOf[Greeter](), "Hello")
	assert.False(t, ok)
	_, ok = r.Lookup(KeyOf[Counter](), "Clock")
	assert.False(t, ok)
	_, ok = r.Lookup(KeyOf[Greeter](), "Hola")
	assert.True(t, ok)

	// Removing again finds nothing.
	assert.Equal(t, 0, r.RemoveOwned(owner))
	assert.Equal(t, []string{"Hola"}, r.ListOwned(KeyOf[Greeter](), other))
}

func TestLibrariesListsDistinctPaths(t *testing.T) {
	r := New()
	a := &fakeOwner{path: "a.so"}
	b := &fakeOwner{path: "b.so"}

	r.Register(KeyOf[Greeter](), greeterFactory("Hello", a, func() Greeter { return &hello{} }))
	r.Register(KeyOf[Greeter](), greeterFactory("Hola", a, func() Greeter { return &hola{} }))
	r.Register(KeyOf[Counter](), NewFactory("Clock", b, "b.so", func() any { return nil }))
	r.Register(KeyOf[Greeter](), greeterFactory("Stray", nil, func() Greeter { return &hola{} }))

	assert.ElementsMatch(t, []string{"a.so", "b.so"}, r.Libraries())

	r.RemoveOwned(a)
	assert.ElementsMatch(t, []string{"b.so"}, r.Libraries())
}

func TestDebugDumpEmitsEveryFactory(t *testing.T) {
	prev := log.DefaultLogger()
	t.Cleanup(func() { log.SetDefaultLogger(prev) })
	logger := log.NewLogger(&log.Cfg{Level: "debug"})
	capture := log.NewCaptureAppender()
	logger.AddAppender(capture)
	log.SetDefaultLogger(logger)

	r := New()
	owner := &fakeOwner{path: "a.so"}
	r.Register(KeyOf[Greeter](), greeterFactory("Hello", owner, func() Greeter { return &hello{} }))
	r.Register(KeyOf[Greeter](), greeterFactory("Stray", nil, func() Greeter { return &hola{} }))
	capture.Refresh()

	r.DebugDump()

	entries := capture.Entries()
	require.Len(t, entries, 2)
	joined := strings.Join(entries, "")
	assert.Contains(t, joined, "Hello")
	assert.Contains(t, joined, "<orphan>")
}

func TestStickyFlags(t *testing.T) {
	r := New()
	assert.False(t, r.UnmanagedCreated())
	assert.False(t, r.NonPureOpened())

	r.SetUnmanagedCreated()
	r.SetNonPureOpened()
	assert.True(t, r.UnmanagedCreated())
	assert.True(t, r.NonPureOpened())

	// Flags never reset.
	r.SetUnmanagedCreated()
	assert.True(t, r.UnmanagedCreated())
}

func TestRegisterPluginAttributedToLoadingContext(t *testing.T) {
	r := New()
	owner := &fakeOwner{path: "mod.so"}

	BeginLoad(r, owner, "mod.so")
	RegisterPlugin[Greeter]("Hello", func() Greeter { return &hello{} })
	EndLoad()

	f, ok := r.Lookup(KeyOf[Greeter](), "Hello")
	require.True(t, ok)
	assert.True(t, f.IsOwnedBy(owner))
	assert.Equal(t, "mod.so", f.LibraryPath())
	assert.False(t, r.NonPureOpened())
}

func TestRegisterPluginOutsideLoadBecomesOrphan(t *testing.T) {
	r := New()
	SetDefault(r)
	t.Cleanup(func() { SetDefault(New()) })

	RegisterPlugin[Greeter]("Stray", func() Greeter { return &hola{} })

	f, ok := r.Lookup(KeyOf[Greeter](), "Stray")
	require.True(t, ok)
	assert.Nil(t, f.Owner())
	assert.Empty(t, f.LibraryPath())
	assert.True(t, r.NonPureOpened())
}

func TestConcurrentRegisterAndLookup(t *testing.T) {
	r := New()
	owner := &fakeOwner{path: "a.so"}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			name := fmt.Sprintf("Class%d", i)
			r.Register(KeyOf[Greeter](), greeterFactory(name, owner, func() Greeter { return &hello{} }))
		}
	}()
	for i := 0; i < 200; i++ {
		r.Lookup(KeyOf[Greeter](), "Class0")
		r.ListOwned(KeyOf[Greeter](), owner)
	}
	<-done

	assert.Len(t, r.ListOwned(KeyOf[Greeter](), owner), 200)
}
