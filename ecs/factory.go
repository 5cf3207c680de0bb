package ecs

import (
	"reflect"
	"unsafe"
)

// componentTypeOps is the type-erased face of a single component type's
// {construct, destroy, clone} triple plus the pool backing its instances.
type componentTypeOps interface {
	reflectType() reflect.Type
	newInstance() unsafe.Pointer
	destroyInstance(unsafe.Pointer)
	cloneInstance(unsafe.Pointer) unsafe.Pointer
	canClone() bool
}

type componentOps[T any] struct {
	pool      *ComponentPool[T]
	construct func() T
	destroy   func(*T)
	clone     func(*T) T
	typ       reflect.Type
}

func (o *componentOps[T]) reflectType() reflect.Type { return o.typ }

func (o *componentOps[T]) newInstance() unsafe.Pointer {
	addr := o.pool.Acquire()
	if o.construct != nil {
		*addr = o.construct()
	}
	return unsafe.Pointer(addr)
}

func (o *componentOps[T]) destroyInstance(ptr unsafe.Pointer) {
	addr := (*T)(ptr)
	if o.destroy != nil {
		o.destroy(addr)
	}
	o.pool.Release(addr)
}

func (o *componentOps[T]) cloneInstance(ptr unsafe.Pointer) unsafe.Pointer {
	if o.clone == nil {
		return nil
	}
	src := (*T)(ptr)
	dst := o.pool.Acquire()
	*dst = o.clone(src)
	return unsafe.Pointer(dst)
}

func (o *componentOps[T]) canClone() bool { return o.clone != nil }

// ComponentFactory is the registry of component types: for each type it
// holds a construct/destroy/optional-clone triple and the pool that
// backs its instances. It is read-only once Build is called; registering
// a type afterward is reported as an invariant violation, and the type is
// still registered.
type ComponentFactory struct {
	byType map[reflect.Type]ComponentTypeID
	ops    []componentTypeOps
	built  bool
}

// NewComponentFactory creates an empty factory.
func NewComponentFactory() *ComponentFactory {
	return &ComponentFactory{byType: make(map[reflect.Type]ComponentTypeID)}
}

// RegisterComponent registers T with zero-value construction, a no-op
// destroy, and no clone support.
func RegisterComponent[T any](f *ComponentFactory) ComponentTypeID {
	return RegisterComponentWithHooks[T](f, nil, nil, nil)
}

// RegisterComponentWithHooks registers T with explicit construct/destroy/
// clone callables. Any of them may be nil: a nil construct leaves the
// slot zero-valued, a nil destroy runs no cleanup beyond pool reclaim,
// and a nil clone disables Clone for this type.
func RegisterComponentWithHooks[T any](f *ComponentFactory, construct func() T, destroy func(*T), clone func(*T) T) ComponentTypeID {
	if f.built {
		reportError(ErrInvariantViolation, "component type registered after factory build finished")
	}

	typ := reflect.TypeOf((*T)(nil)).Elem()
	if id, ok := f.byType[typ]; ok {
		return id
	}

	id := ComponentTypeID(len(f.ops))
	f.ops = append(f.ops, &componentOps[T]{
		pool:      NewComponentPool[T](),
		construct: construct,
		destroy:   destroy,
		clone:     clone,
		typ:       typ,
	})
	f.byType[typ] = id
	return id
}

// Build finalizes the factory. After Build, registering new types is
// undefined behavior (reported, not fatal).
func (f *ComponentFactory) Build() { f.built = true }

// TypeIDFor looks up the ComponentTypeID for T, previously registered.
func TypeIDFor[T any](f *ComponentFactory) (ComponentTypeID, bool) {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	id, ok := f.byType[typ]
	return id, ok
}

// Count returns the number of registered component types.
func (f *ComponentFactory) Count() int { return len(f.ops) }

// TypeIDs returns every registered ComponentTypeID; iteration order is
// registration order.
func (f *ComponentFactory) TypeIDs() []ComponentTypeID {
	ids := make([]ComponentTypeID, len(f.ops))
	for i := range f.ops {
		ids[i] = ComponentTypeID(i)
	}
	return ids
}

func (f *ComponentFactory) opsFor(id ComponentTypeID) componentTypeOps {
	if int(id) >= len(f.ops) {
		reportError(ErrLookupMiss, "unknown component type id")
		return nil
	}
	return f.ops[id]
}

// CreateByID constructs a new instance of the given type id and returns
// its raw address. Returns nil (and reports a lookup miss) for an
// unregistered id.
func (f *ComponentFactory) CreateByID(id ComponentTypeID) unsafe.Pointer {
	ops := f.opsFor(id)
	if ops == nil {
		return nil
	}
	return ops.newInstance()
}

// DestroyByID destroys the instance at ptr, which must have been
// constructed by CreateByID (or an equivalent typed acquire) for the
// same type id.
func (f *ComponentFactory) DestroyByID(id ComponentTypeID, ptr unsafe.Pointer) {
	ops := f.opsFor(id)
	if ops == nil {
		return
	}
	ops.destroyInstance(ptr)
}

// CloneByID clones the instance at ptr. Returns nil if the type does not
// support cloning.
func (f *ComponentFactory) CloneByID(id ComponentTypeID, ptr unsafe.Pointer) unsafe.Pointer {
	ops := f.opsFor(id)
	if ops == nil {
		return nil
	}
	return ops.cloneInstance(ptr)
}

// CanClone reports whether the given type registered a clone callable.
func (f *ComponentFactory) CanClone(id ComponentTypeID) bool {
	ops := f.opsFor(id)
	if ops == nil {
		return false
	}
	return ops.canClone()
}

// ReflectType returns the reflect.Type registered for id, for
// diagnostics and dynamic queries.
func (f *ComponentFactory) ReflectType(id ComponentTypeID) reflect.Type {
	ops := f.opsFor(id)
	if ops == nil {
		return nil
	}
	return ops.reflectType()
}
