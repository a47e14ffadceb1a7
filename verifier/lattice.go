package verifier

import (
	"github.com/chazu/bcverify/classfile"
)

// Hierarchy is the class-hierarchy query surface the verifier consumes.
// *classfile.Repository implements it. Implementations must be safe for
// concurrent readers.
type Hierarchy interface {
	Lookup(name string) (*classfile.Class, error)
	IsSubclassOf(sub, super string) (bool, error)
	Implements(class, iface string) (bool, error)
	CommonSuperclass(a, b string) (string, error)
	ResolveField(owner, name, desc string) (*classfile.Field, *classfile.Class, error)
	ResolveMethod(owner, name, desc string) (*classfile.Method, *classfile.Class, error)
	ResolveInterfaceMethod(owner, name, desc string) (*classfile.Method, *classfile.Class, error)
}

var _ Hierarchy = (*classfile.Repository)(nil)

// lattice answers the hierarchy-dependent lattice questions: joins of
// reference types and assignment compatibility.
type lattice struct {
	h Hierarchy
}

func (l lattice) isInterface(name string) (bool, error) {
	c, err := l.h.Lookup(name)
	if err != nil {
		return false, wrapInternal(err, "cannot load %s", name)
	}
	return c.IsInterface(), nil
}

// join returns the nearest common supertype of two references.
func (l lattice) join(a, b Type) (Type, error) {
	switch {
	case a == b:
		return a, nil
	case a.Kind == KindNull:
		return b, nil
	case b.Kind == KindNull:
		return a, nil
	}

	if a.IsArray() && b.IsArray() {
		ca, _ := a.component()
		cb, _ := b.component()
		// Reference components join covariantly; [[I and [[J meet at
		// [Ljava/lang/Object;.
		if ca.IsReference() && cb.IsReference() {
			elem, err := l.join(FromFieldType(ca), FromFieldType(cb))
			if err != nil {
				return Unknown, err
			}
			return ArrayOf(elem), nil
		}
	}
	if a.IsArray() || b.IsArray() {
		return Reference(classfile.ObjectClass), nil
	}

	for _, name := range []string{a.Name, b.Name} {
		iface, err := l.isInterface(name)
		if err != nil {
			return Unknown, err
		}
		if iface {
			return Reference(classfile.ObjectClass), nil
		}
	}
	common, err := l.h.CommonSuperclass(a.Name, b.Name)
	if err != nil {
		return Unknown, wrapInternal(err, "cannot load the superclasses of %s and %s", a, b)
	}
	return Reference(common), nil
}

// assignable reports whether a value of type from may be used where to is
// expected. Interface targets accept any reference: widened types produced
// by joins cannot prove interface membership, so the check is left to run
// time.
func (l lattice) assignable(from, to Type) (bool, error) {
	if from == to {
		return true, nil
	}
	if !from.IsReference() || to.Kind != KindReference {
		return false, nil
	}
	if from.Kind == KindNull {
		return true, nil
	}

	if to.IsArray() {
		if !from.IsArray() {
			return false, nil
		}
		cf, _ := from.component()
		ct, _ := to.component()
		if cf.IsReference() && ct.IsReference() {
			return l.assignable(FromFieldType(cf), FromFieldType(ct))
		}
		return cf == ct, nil
	}

	if to.Name == classfile.ObjectClass {
		return true, nil
	}
	iface, err := l.isInterface(to.Name)
	if err != nil {
		return false, err
	}
	if iface {
		return true, nil
	}
	if from.IsArray() {
		return false, nil
	}
	ok, err := l.h.IsSubclassOf(from.Name, to.Name)
	if err != nil {
		return false, wrapInternal(err, "cannot load the superclasses of %s", from)
	}
	return ok, nil
}

// isSubclass is assignable restricted to class names.
func (l lattice) isSubclass(sub, super string) (bool, error) {
	ok, err := l.h.IsSubclassOf(sub, super)
	if err != nil {
		return false, wrapInternal(err, "cannot load the superclasses of %s", sub)
	}
	return ok, nil
}
