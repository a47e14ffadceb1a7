package classfile

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrClassNotFound is wrapped when a class is not registered.
	ErrClassNotFound = errors.New("class not found")
	// ErrMemberNotFound is wrapped when field or method resolution fails.
	ErrMemberNotFound = errors.New("member not found")
	// ErrCircularHierarchy is wrapped when a superclass chain loops.
	ErrCircularHierarchy = errors.New("circular class hierarchy")
)

// ---------------------------------------------------------------------------
// Repository: class registry and hierarchy queries
// ---------------------------------------------------------------------------

// Repository manages loaded classes by name and answers hierarchy queries.
// It's thread-safe; derived facts (superclass chains, common superclasses)
// are memoized until the next Register.
type Repository struct {
	mu      sync.RWMutex
	classes map[string]*Class

	memoMu sync.Mutex
	chains map[string][]string
	common map[[2]string]string
}

// NewRepository creates an empty repository. Most callers want Bootstrap.
func NewRepository() *Repository {
	return &Repository{
		classes: make(map[string]*Class),
		chains:  make(map[string][]string),
		common:  make(map[[2]string]string),
	}
}

// Register adds a class to the repository.
// Returns the previous class with this name, or nil.
func (r *Repository) Register(c *Class) *Class {
	r.mu.Lock()
	old := r.classes[c.Name]
	r.classes[c.Name] = c
	r.mu.Unlock()

	r.memoMu.Lock()
	r.chains = make(map[string][]string)
	r.common = make(map[[2]string]string)
	r.memoMu.Unlock()
	return old
}

// Lookup finds a class by name.
func (r *Repository) Lookup(name string) (*Class, error) {
	r.mu.RLock()
	c, ok := r.classes[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrClassNotFound, name)
	}
	return c, nil
}

// Has returns true if a class with this name is registered.
func (r *Repository) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.classes[name]
	return ok
}

// All returns all registered classes sorted by name.
func (r *Repository) All() []*Class {
	r.mu.RLock()
	result := make([]*Class, 0, len(r.classes))
	for _, c := range r.classes {
		result = append(result, c)
	}
	r.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Len returns the number of registered classes.
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.classes)
}

// ---------------------------------------------------------------------------
// Hierarchy
// ---------------------------------------------------------------------------

// Superclasses returns the superclass chain of name, nearest first, ending in
// java/lang/Object. The class itself is not included.
func (r *Repository) Superclasses(name string) ([]string, error) {
	r.memoMu.Lock()
	chain, ok := r.chains[name]
	r.memoMu.Unlock()
	if ok {
		return chain, nil
	}

	seen := map[string]bool{name: true}
	c, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	for c.Super != "" {
		if seen[c.Super] {
			return nil, fmt.Errorf("%w: %s", ErrCircularHierarchy, name)
		}
		seen[c.Super] = true
		chain = append(chain, c.Super)
		if c, err = r.Lookup(c.Super); err != nil {
			return nil, fmt.Errorf("superclass of %s: %w", name, err)
		}
	}

	r.memoMu.Lock()
	r.chains[name] = chain
	r.memoMu.Unlock()
	return chain, nil
}

// IsSubclassOf returns true if sub is super or has super in its superclass
// chain.
func (r *Repository) IsSubclassOf(sub, super string) (bool, error) {
	if sub == super {
		return true, nil
	}
	chain, err := r.Superclasses(sub)
	if err != nil {
		return false, err
	}
	for _, s := range chain {
		if s == super {
			return true, nil
		}
	}
	return false, nil
}

// Implements returns true if class (or any superclass) implements iface,
// directly or through superinterfaces. An interface implements itself.
func (r *Repository) Implements(class, iface string) (bool, error) {
	seen := make(map[string]bool)
	var walk func(name string) (bool, error)
	walk = func(name string) (bool, error) {
		if name == iface {
			return true, nil
		}
		if seen[name] {
			return false, nil
		}
		seen[name] = true
		c, err := r.Lookup(name)
		if err != nil {
			return false, err
		}
		for _, i := range c.Interfaces {
			if ok, err := walk(i); ok || err != nil {
				return ok, err
			}
		}
		if c.Super != "" {
			return walk(c.Super)
		}
		return false, nil
	}
	return walk(class)
}

// IsInterface reports whether name is a registered interface.
func (r *Repository) IsInterface(name string) (bool, error) {
	c, err := r.Lookup(name)
	if err != nil {
		return false, err
	}
	return c.IsInterface(), nil
}

// CommonSuperclass returns the first class shared by the superclass chains
// of a and b. Interfaces have java/lang/Object as their only superclass.
func (r *Repository) CommonSuperclass(a, b string) (string, error) {
	if a == b {
		return a, nil
	}
	key := [2]string{a, b}
	if b < a {
		key = [2]string{b, a}
	}
	r.memoMu.Lock()
	common, ok := r.common[key]
	r.memoMu.Unlock()
	if ok {
		return common, nil
	}

	chainA, err := r.Superclasses(a)
	if err != nil {
		return "", err
	}
	chainB, err := r.Superclasses(b)
	if err != nil {
		return "", err
	}
	inA := make(map[string]bool, len(chainA)+1)
	inA[a] = true
	for _, s := range chainA {
		inA[s] = true
	}
	common = ObjectClass
	for _, s := range append([]string{b}, chainB...) {
		if inA[s] {
			common = s
			break
		}
	}

	r.memoMu.Lock()
	r.common[key] = common
	r.memoMu.Unlock()
	return common, nil
}

// ---------------------------------------------------------------------------
// Member resolution
// ---------------------------------------------------------------------------

// ResolveField finds a field the way the JVM does: in owner, then in its
// superinterfaces, then up the superclass chain. It returns the field and the
// class that declares it.
func (r *Repository) ResolveField(owner, name, desc string) (*Field, *Class, error) {
	seen := make(map[string]bool)
	var walk func(cname string) (*Field, *Class, error)
	walk = func(cname string) (*Field, *Class, error) {
		if seen[cname] {
			return nil, nil, nil
		}
		seen[cname] = true
		c, err := r.Lookup(cname)
		if err != nil {
			return nil, nil, err
		}
		if f := c.Field(name, desc); f != nil {
			return f, c, nil
		}
		for _, i := range c.Interfaces {
			if f, d, err := walk(i); f != nil || err != nil {
				return f, d, err
			}
		}
		if c.Super != "" {
			return walk(c.Super)
		}
		return nil, nil, nil
	}
	f, decl, err := walk(owner)
	if err != nil {
		return nil, nil, err
	}
	if f == nil {
		return nil, nil, fmt.Errorf("%w: field %s.%s %s", ErrMemberNotFound, owner, name, desc)
	}
	return f, decl, nil
}

// ResolveMethod finds a class method: in owner and its superclasses first,
// then in the superinterfaces of all of them.
func (r *Repository) ResolveMethod(owner, name, desc string) (*Method, *Class, error) {
	c, err := r.Lookup(owner)
	if err != nil {
		return nil, nil, err
	}
	for cur := c; ; {
		if m := cur.Method(name, desc); m != nil {
			return m, cur, nil
		}
		if cur.Super == "" {
			break
		}
		if cur, err = r.Lookup(cur.Super); err != nil {
			return nil, nil, err
		}
	}
	if m, decl, err := r.searchInterfaces(c, name, desc); m != nil || err != nil {
		return m, decl, err
	}
	return nil, nil, fmt.Errorf("%w: method %s.%s%s", ErrMemberNotFound, owner, name, desc)
}

// ResolveInterfaceMethod finds an interface method: in the interface, then in
// java/lang/Object, then in its superinterfaces.
func (r *Repository) ResolveInterfaceMethod(owner, name, desc string) (*Method, *Class, error) {
	c, err := r.Lookup(owner)
	if err != nil {
		return nil, nil, err
	}
	if m := c.Method(name, desc); m != nil {
		return m, c, nil
	}
	obj, err := r.Lookup(ObjectClass)
	if err != nil {
		return nil, nil, err
	}
	if m := obj.Method(name, desc); m != nil && m.Access.Has(AccPublic) && !m.IsStatic() {
		return m, obj, nil
	}
	if m, decl, err := r.searchInterfaces(c, name, desc); m != nil || err != nil {
		return m, decl, err
	}
	return nil, nil, fmt.Errorf("%w: interface method %s.%s%s", ErrMemberNotFound, owner, name, desc)
}

func (r *Repository) searchInterfaces(c *Class, name, desc string) (*Method, *Class, error) {
	seen := make(map[string]bool)
	queue := []*Class{c}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, iname := range cur.Interfaces {
			if seen[iname] {
				continue
			}
			seen[iname] = true
			ic, err := r.Lookup(iname)
			if err != nil {
				return nil, nil, err
			}
			if m := ic.Method(name, desc); m != nil && !m.Access.Has(AccPrivate) && !m.IsStatic() {
				return m, ic, nil
			}
			queue = append(queue, ic)
		}
		if cur.Super != "" {
			sc, err := r.Lookup(cur.Super)
			if err != nil {
				return nil, nil, err
			}
			queue = append(queue, sc)
		}
	}
	return nil, nil, nil
}
