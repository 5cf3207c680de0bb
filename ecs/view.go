package ecs

import (
	"reflect"
	"strings"
	"unsafe"
)

// View describes a query signature via a struct of pointer fields: T
// must be a struct whose fields are pointers to component types. A field
// tagged with an `ecs` struct tag naming `optional` is resolved
// per-entity but is not part of the signature that gates index
// membership; every other field is required and forms the query's
// Signature. Tag values are comma-separated (e.g. `ecs:"optional,readonly"`);
// see hasECSTag.
type View[T any] struct {
	storage     *Storage
	types       []reflect.Type
	typeIDs     []ComponentTypeID
	optional    []bool
	fieldOffset []uintptr

	signature   Signature
	sigPosOfReq []int // for required fields, position within signature
}

// NewView builds a View for storage, resolving every field's component
// type against storage's factory. Panics if T is not a struct of
// pointer fields or if a field's component type was never registered —
// both are programming errors caught at setup time.
func NewView[T any](storage *Storage) *View[T] {
	var zero T
	st := reflect.TypeOf(zero)
	if st == nil || st.Kind() != reflect.Struct {
		panic("ecs: View type parameter must be a struct")
	}

	v := &View[T]{storage: storage}
	requiredIDs := make([]ComponentTypeID, 0, st.NumField())

	for i := 0; i < st.NumField(); i++ {
		field := st.Field(i)
		if field.Type.Kind() != reflect.Ptr {
			panic("ecs: View struct fields must be pointer types")
		}
		compType := field.Type.Elem()

		id, ok := storage.factory.byType[compType]
		if !ok {
			panic("ecs: View field references unregistered component type " + compType.String())
		}

		isOptional := hasECSTag(field.Tag, "optional")

		v.types = append(v.types, compType)
		v.typeIDs = append(v.typeIDs, id)
		v.optional = append(v.optional, isOptional)
		v.fieldOffset = append(v.fieldOffset, field.Offset)

		if !isOptional {
			requiredIDs = append(requiredIDs, id)
		}
	}

	v.signature = NewSignature(requiredIDs...)

	v.sigPosOfReq = make([]int, len(v.types))
	for i, id := range v.typeIDs {
		if v.optional[i] {
			v.sigPosOfReq[i] = -1
			continue
		}
		for j, sigID := range v.signature {
			if sigID == id {
				v.sigPosOfReq[i] = j
				break
			}
		}
	}

	return v
}

func (v *View[T]) index() *Index {
	return v.storage.indexes.GetOrCreate(v.signature, v.storage.comps, v.storage.table)
}

func (v *View[T]) fill(resultPtr unsafe.Pointer, rawID uint32, cached []unsafe.Pointer) bool {
	for i := range v.types {
		fieldPtr := unsafe.Pointer(uintptr(resultPtr) + v.fieldOffset[i])
		var ptr unsafe.Pointer
		if v.optional[i] {
			ptr = v.storage.comps.Get(v.typeIDs[i], rawID)
		} else {
			ptr = cached[v.sigPosOfReq[i]]
		}
		*(*unsafe.Pointer)(fieldPtr) = ptr
	}
	return true
}

// Get populates result for entity e directly (no index lookup), failing
// if e is missing a required component.
func (v *View[T]) Get(e Entity) (T, bool) {
	var result T
	if !v.storage.table.isValid(e) {
		return result, false
	}
	resultPtr := unsafe.Pointer(&result)
	for i := range v.types {
		fieldPtr := unsafe.Pointer(uintptr(resultPtr) + v.fieldOffset[i])
		ptr := v.storage.comps.Get(v.typeIDs[i], e.RawID)
		if ptr == nil && !v.optional[i] {
			return result, false
		}
		*(*unsafe.Pointer)(fieldPtr) = ptr
	}
	return result, true
}

// ForEach invokes fn for every entity satisfying the view's required
// signature, in the index's insertion order. fn returning false stops
// iteration early.
func (v *View[T]) ForEach(fn func(Entity, T) bool) {
	ix := v.index()
	dense := ix.Dense()
	cached := ix.Cached()

	for i := range dense {
		rawID := dense[i]
		var result T
		v.fill(unsafe.Pointer(&result), rawID, cached[i])
		e := Entity{RawID: rawID, Version: v.storage.table.versions[rawID]}
		if !fn(e, result) {
			return
		}
	}
}

// Entities appends every entity currently satisfying the view into out.
func (v *View[T]) Entities(out *[]Entity) {
	ix := v.index()
	dense := ix.Dense()
	for _, rawID := range dense {
		*out = append(*out, Entity{RawID: rawID, Version: v.storage.table.versions[rawID]})
	}
}

// Components appends every component tuple currently satisfying the
// view into out.
func (v *View[T]) Components(out *[]T) {
	ix := v.index()
	dense := ix.Dense()
	cached := ix.Cached()
	for i := range dense {
		var result T
		v.fill(unsafe.Pointer(&result), dense[i], cached[i])
		*out = append(*out, result)
	}
}

// WithEntities appends (Entity, T) pairs currently satisfying the view
// into out.
type EntityComponents[T any] struct {
	Entity     Entity
	Components T
}

func (v *View[T]) WithEntities(out *[]EntityComponents[T]) {
	ix := v.index()
	dense := ix.Dense()
	cached := ix.Cached()
	for i := range dense {
		rawID := dense[i]
		var result T
		v.fill(unsafe.Pointer(&result), rawID, cached[i])
		*out = append(*out, EntityComponents[T]{
			Entity:     Entity{RawID: rawID, Version: v.storage.table.versions[rawID]},
			Components: result,
		})
	}
}

// Len returns the number of entities currently satisfying the view's
// required signature.
func (v *View[T]) Len() int {
	return v.index().Len()
}

// hasECSTag reports whether field's `ecs` struct tag names value among
// its comma-separated parts, e.g. `ecs:"optional,readonly"` has both
// "optional" and "readonly".
func hasECSTag(tag reflect.StructTag, value string) bool {
	raw := tag.Get("ecs")
	if raw == "" {
		return false
	}
	for _, part := range strings.Split(raw, ",") {
		if part == value {
			return true
		}
	}
	return false
}
