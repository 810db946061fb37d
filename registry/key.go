package registry

import "reflect"

// InterfaceKey identifies one pluggable abstract interface. Two factories
// registered against the same interface type produce equal keys regardless
// of which package performed the registration. The key is only ever used as
// a map key; use String solely for diagnostics.
type InterfaceKey struct {
	t reflect.Type
}

// KeyOf derives the InterfaceKey for the interface type Base.
func KeyOf[Base any]() InterfaceKey {
	return InterfaceKey{t: reflect.TypeOf((*Base)(nil)).Elem()}
}

// String returns a human-readable form for log and error messages.
func (k InterfaceKey) String() string {
	if k.t == nil {
		return "<nil>"
	}
	return k.t.String()
}
