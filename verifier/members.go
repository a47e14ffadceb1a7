package verifier

import (
	"errors"

	"github.com/chazu/bcverify/classfile"
)

// resolvedField is a field operand after resolution.
type resolvedField struct {
	ref   classfile.MemberRef
	field *classfile.Field
	decl  *classfile.Class
	typ   Type
}

// resolvedMethod is a method operand after resolution. method and decl are
// nil for invokedynamic call sites.
type resolvedMethod struct {
	ref    classfile.MemberRef
	typ    classfile.MethodType
	method *classfile.Method
	decl   *classfile.Class
}

// loadClass looks up a class every earlier pass promised exists.
func (r *run) loadClass(name string) (*classfile.Class, error) {
	c, err := r.h.Lookup(name)
	if err != nil {
		return nil, wrapInternal(err, "cannot load %s", name)
	}
	return c, nil
}

// checkClassAccess rejects a reference to a class the current class may not
// see. Array types are checked through their element class; primitive
// arrays are always accessible.
func (r *run) checkClassAccess(ins *classfile.Instruction, name string) error {
	t, err := FromClassRef(name)
	if err != nil {
		return wrapInternal(err, "%s", ins)
	}
	elem, ok := t.elementClass()
	if !ok {
		return nil
	}
	c, err := r.loadClass(elem)
	if err != nil {
		return err
	}
	if c.Access.Has(classfile.AccPublic) || c.Package() == r.class.Package() {
		return nil
	}
	return rejectf("%s: class %s is not accessible from %s", ins, elem, r.class.Name)
}

// memberAccessible applies the access rules for a member of decl.
func (r *run) memberAccessible(decl *classfile.Class, access classfile.AccessFlags) (bool, error) {
	switch {
	case access.Has(classfile.AccPublic):
		return true, nil
	case access.Has(classfile.AccPrivate):
		return decl.Name == r.class.Name, nil
	case decl.Package() == r.class.Package():
		return true, nil
	case access.Has(classfile.AccProtected):
		return r.lat.isSubclass(r.class.Name, decl.Name)
	}
	return false, nil
}

// resolutionError turns a failed lookup into a rejection when the member is
// missing and an internal error when the class is.
func resolutionError(ins *classfile.Instruction, err error) error {
	if errors.Is(err, classfile.ErrMemberNotFound) {
		return rejectf("%s: %v", ins, err)
	}
	return wrapInternal(err, "%s", ins)
}

func (r *run) resolveField(ins *classfile.Instruction) (*resolvedField, error) {
	ref, ft, err := r.fieldRef(ins)
	if err != nil {
		return nil, err
	}
	if err := r.checkClassAccess(ins, ref.Owner); err != nil {
		return nil, err
	}
	f, decl, err := r.h.ResolveField(ref.Owner, ref.Name, ref.Descriptor)
	if err != nil {
		return nil, resolutionError(ins, err)
	}
	ok, err := r.memberAccessible(decl, f.Access)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, rejectf("%s: field %s.%s is %s and not accessible from %s",
			ins, decl.Name, f.Name, visibility(f.Access), r.class.Name)
	}
	return &resolvedField{ref: ref, field: f, decl: decl, typ: FromFieldType(ft)}, nil
}

func (r *run) resolveMethod(ins *classfile.Instruction) (*resolvedMethod, error) {
	ref, mt, err := r.methodRef(ins)
	if err != nil {
		return nil, err
	}
	rm := &resolvedMethod{ref: ref, typ: mt}
	if ins.Op == classfile.OpInvokedynamic {
		return rm, nil
	}
	owner := ref.Owner
	if owner[0] == '[' {
		// Methods invoked on arrays are the ones of Object.
		owner = classfile.ObjectClass
	} else if err := r.checkClassAccess(ins, owner); err != nil {
		return nil, err
	}

	if ref.Tag == classfile.TagInterfaceMethodref {
		rm.method, rm.decl, err = r.h.ResolveInterfaceMethod(owner, ref.Name, ref.Descriptor)
	} else {
		rm.method, rm.decl, err = r.h.ResolveMethod(owner, ref.Name, ref.Descriptor)
	}
	if err != nil {
		return nil, resolutionError(ins, err)
	}
	if ref.Name == classfile.ConstructorName && rm.decl.Name != owner {
		return nil, rejectf("%s: %s declares no constructor %s", ins, owner, ref.Descriptor)
	}
	ok, err := r.memberAccessible(rm.decl, rm.method.Access)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, rejectf("%s: method %s.%s is %s and not accessible from %s",
			ins, rm.decl.Name, rm.method, visibility(rm.method.Access), r.class.Name)
	}
	return rm, nil
}

// checkProtectedReceiver enforces the extra rule for protected members of a
// superclass in another package: the object must be the current class or a
// subclass of it. Array clones are exempt.
func (r *run) checkProtectedReceiver(ins *classfile.Instruction, decl *classfile.Class, access classfile.AccessFlags, name string, receiver Type) error {
	if !access.Has(classfile.AccProtected) || decl.Package() == r.class.Package() || decl.Name == r.class.Name {
		return nil
	}
	sub, err := r.lat.isSubclass(r.class.Name, decl.Name)
	if err != nil || !sub {
		return err
	}
	switch {
	case receiver.Kind == KindNull, receiver.IsUninitializedThis():
		return nil
	case receiver.IsArray() && name == "clone":
		return nil
	case receiver.IsClass():
		ok, err := r.lat.isSubclass(receiver.Name, r.class.Name)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return rejectf("%s: protected member %s.%s accessed through %s, which is not %s or a subclass of it",
		ins, decl.Name, name, receiver, r.class.Name)
}

func visibility(access classfile.AccessFlags) string {
	switch {
	case access.Has(classfile.AccPublic):
		return "public"
	case access.Has(classfile.AccPrivate):
		return "private"
	case access.Has(classfile.AccProtected):
		return "protected"
	}
	return "package-private"
}
