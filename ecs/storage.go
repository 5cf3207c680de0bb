package ecs

import (
	"fmt"
	"sync"
	"unsafe"
)

// Storage is the entity manager: it owns entity identity, the component
// map, and the index engine, and exposes the add/remove/transfer/query
// operations that make up the storage engine's public contract.
type Storage struct {
	factory *ComponentFactory
	table   *entityTable
	comps   *ComponentMap
	indexes *IndexEngine

	deferredMu sync.Mutex
	adds       []scheduledAdd
	removes    []scheduledRemove
}

type scheduledAdd struct {
	entity Entity
	typeID ComponentTypeID
	ptr    unsafe.Pointer
}

type scheduledRemove struct {
	entity Entity
	typeID ComponentTypeID
}

// NewStorage creates an empty entity manager backed by factory. Multiple
// Storage instances may share one factory as long as they never
// transfer entities except between each other (TransferEntityTo requires
// both sides to share the same factory).
func NewStorage(factory *ComponentFactory) *Storage {
	return &Storage{
		factory: factory,
		table:   newEntityTable(),
		comps:   newComponentMap(),
		indexes: newIndexEngine(),
	}
}

// Factory returns the component factory backing this storage.
func (s *Storage) Factory() *ComponentFactory { return s.factory }

// AddEntity creates a new entity, reusing a retired raw id if one is on
// the free list.
func (s *Storage) AddEntity() Entity {
	return s.table.allocate()
}

// HasEntity reports whether e refers to a currently live entity.
func (s *Storage) HasEntity(e Entity) bool {
	return s.table.isValid(e)
}

// RemoveEntity destroys every component of e, notifies indexes, and
// retires or recycles its raw id. A stale or missing entity is reported
// as an invariant violation and otherwise a no-op.
func (s *Storage) RemoveEntity(e Entity) {
	if !s.table.isValid(e) {
		reportError(ErrInvariantViolation, fmt.Sprintf("remove_entity called on stale entity %+v", e))
		return
	}

	for _, tid := range s.factory.TypeIDs() {
		ptr := s.comps.Get(tid, e.RawID)
		if ptr == nil {
			continue
		}
		s.factory.DestroyByID(tid, ptr)
		s.comps.Clear(tid, e.RawID)
	}

	s.indexes.OnEntityRemoved(e.RawID)
	s.table.release(e)
}

// AddComponentRaw installs ptr, taking ownership of it, as e's instance
// of typeID. The entity must not already hold that type; violating this
// leaks ptr and reports an invariant violation. A stale or missing
// entity reports a programming error and leaks ptr.
func (s *Storage) AddComponentRaw(e Entity, typeID ComponentTypeID, ptr unsafe.Pointer) {
	if !s.table.isValid(e) {
		reportError(ErrProgrammingError, fmt.Sprintf("add_component called on nonexistent entity %+v", e))
		return
	}
	if s.comps.Get(typeID, e.RawID) != nil {
		reportError(ErrInvariantViolation, fmt.Sprintf("entity %+v already holds component type %d", e, typeID))
		return
	}

	s.comps.Set(typeID, e.RawID, ptr)
	s.indexes.OnComponentAdded(typeID, e.RawID, s.comps)
}

// AddComponent factory-constructs a new T for e and installs it,
// returning its stable address.
func AddComponent[T any](s *Storage, e Entity) *T {
	typeID, ok := TypeIDFor[T](s.factory)
	if !ok {
		reportError(ErrLookupMiss, "add_component: component type not registered")
		return nil
	}
	raw := s.factory.CreateByID(typeID)
	if raw == nil {
		return nil
	}
	s.AddComponentRaw(e, typeID, raw)
	return (*T)(raw)
}

// RemoveComponent factory-destroys e's instance of typeID, if any, and
// notifies indexes. A missing entity reports an invariant violation.
func (s *Storage) RemoveComponent(e Entity, typeID ComponentTypeID) {
	if !s.table.isValid(e) {
		reportError(ErrInvariantViolation, fmt.Sprintf("remove_component called on stale entity %+v", e))
		return
	}
	ptr := s.comps.Get(typeID, e.RawID)
	if ptr == nil {
		return
	}
	s.factory.DestroyByID(typeID, ptr)
	s.comps.Clear(typeID, e.RawID)
	s.indexes.OnComponentRemoved(typeID, e.RawID)
}

// RemoveComponentT is the generic convenience form of RemoveComponent.
func RemoveComponentT[T any](s *Storage, e Entity) {
	typeID, ok := TypeIDFor[T](s.factory)
	if !ok {
		reportError(ErrLookupMiss, "remove_component: component type not registered")
		return
	}
	s.RemoveComponent(e, typeID)
}

// GetComponentRaw returns e's raw address for typeID, or nil if absent.
func (s *Storage) GetComponentRaw(e Entity, typeID ComponentTypeID) unsafe.Pointer {
	return s.comps.Get(typeID, e.RawID)
}

// GetComponent is the generic convenience form of GetComponentRaw.
func GetComponent[T any](s *Storage, e Entity) *T {
	typeID, ok := TypeIDFor[T](s.factory)
	if !ok {
		return nil
	}
	ptr := s.GetComponentRaw(e, typeID)
	if ptr == nil {
		return nil
	}
	return (*T)(ptr)
}

// GetEntityComponents resolves each requested type id for e, returning
// nil in any slot the entity does not hold.
func (s *Storage) GetEntityComponents(e Entity, typeIDs ...ComponentTypeID) []unsafe.Pointer {
	out := make([]unsafe.Pointer, len(typeIDs))
	for i, tid := range typeIDs {
		out[i] = s.comps.Get(tid, e.RawID)
	}
	return out
}

// ScheduleAddComponentRaw defers installing ptr onto e until the next
// ExecuteScheduledActions call. ptr is usable by the enqueuing goroutine
// immediately but invisible to queries until execution.
func (s *Storage) ScheduleAddComponentRaw(e Entity, typeID ComponentTypeID, ptr unsafe.Pointer) {
	s.deferredMu.Lock()
	s.adds = append(s.adds, scheduledAdd{entity: e, typeID: typeID, ptr: ptr})
	s.deferredMu.Unlock()
}

// ScheduleAddComponent factory-constructs T now (so it is immediately
// usable by the calling goroutine) and defers installation.
func ScheduleAddComponent[T any](s *Storage, e Entity) *T {
	typeID, ok := TypeIDFor[T](s.factory)
	if !ok {
		reportError(ErrLookupMiss, "schedule_add_component: component type not registered")
		return nil
	}
	raw := s.factory.CreateByID(typeID)
	if raw == nil {
		return nil
	}
	s.ScheduleAddComponentRaw(e, typeID, raw)
	return (*T)(raw)
}

// ScheduleRemoveComponent defers removing typeID from e.
func (s *Storage) ScheduleRemoveComponent(e Entity, typeID ComponentTypeID) {
	s.deferredMu.Lock()
	s.removes = append(s.removes, scheduledRemove{entity: e, typeID: typeID})
	s.deferredMu.Unlock()
}

// ExecuteScheduledActions applies every scheduled add in enqueue order,
// then every scheduled remove in enqueue order, and clears the queues.
// Callers (the scheduler) are responsible for only invoking this at a
// quiescent point where no system is running.
func (s *Storage) ExecuteScheduledActions() {
	s.deferredMu.Lock()
	adds := s.adds
	removes := s.removes
	s.adds = nil
	s.removes = nil
	s.deferredMu.Unlock()

	for _, a := range adds {
		s.AddComponentRaw(a.entity, a.typeID, a.ptr)
	}
	for _, r := range removes {
		s.RemoveComponent(r.entity, r.typeID)
	}
}

// HasPendingScheduledActions reports whether any deferred op is queued.
func (s *Storage) HasPendingScheduledActions() bool {
	s.deferredMu.Lock()
	defer s.deferredMu.Unlock()
	return len(s.adds) > 0 || len(s.removes) > 0
}

// GetEntitiesHavingComponents performs an unindexed scan over every live
// raw id and appends every entity holding all of typeIDs into out, for
// dynamic (non-compile-time) queries.
func (s *Storage) GetEntitiesHavingComponents(typeIDs []ComponentTypeID, out *[]Entity) {
	if len(typeIDs) == 0 {
		return
	}
	for rawID := uint32(0); rawID < uint32(s.table.len()); rawID++ {
		if !s.table.alive[rawID] {
			continue
		}
		hasAll := true
		for _, tid := range typeIDs {
			if s.comps.Get(tid, rawID) == nil {
				hasAll = false
				break
			}
		}
		if hasAll {
			*out = append(*out, Entity{RawID: rawID, Version: s.table.versions[rawID]})
		}
	}
}

// InitIndex forces construction of the index for sig without querying it.
func (s *Storage) InitIndex(sig Signature) {
	s.indexes.GetOrCreate(sig, s.comps, s.table)
}

// Clear destroys every component of every entity, releases every entity,
// and drops every index.
func (s *Storage) Clear() {
	for rawID := uint32(0); rawID < uint32(s.table.len()); rawID++ {
		if !s.table.alive[rawID] {
			continue
		}
		for _, tid := range s.factory.TypeIDs() {
			ptr := s.comps.Get(tid, rawID)
			if ptr == nil {
				continue
			}
			s.factory.DestroyByID(tid, ptr)
		}
	}
	s.table = newEntityTable()
	s.comps = newComponentMap()
	s.indexes.Clear()
}

// TransferEntityTo moves every component of e out of s into other
// without copying component instances: addresses are preserved, only
// the source column entry is nulled and the destination column entry is
// set. Both managers must share the same factory. Self-transfer and a
// stale source entity are reported as programming errors and no-op.
func (s *Storage) TransferEntityTo(other *Storage, e Entity) Entity {
	if other == s {
		reportError(ErrProgrammingError, "transfer_entity_to: self-transfer")
		return InvalidEntity
	}
	if other.factory != s.factory {
		reportError(ErrProgrammingError, "transfer_entity_to: managers do not share a factory")
		return InvalidEntity
	}
	if !s.table.isValid(e) {
		reportError(ErrProgrammingError, fmt.Sprintf("transfer_entity_to: stale entity %+v", e))
		return InvalidEntity
	}

	dest := other.AddEntity()
	for _, tid := range s.factory.TypeIDs() {
		ptr := s.comps.Get(tid, e.RawID)
		if ptr == nil {
			continue
		}
		s.comps.Clear(tid, e.RawID)
		other.comps.Set(tid, dest.RawID, ptr)
		other.indexes.OnComponentAdded(tid, dest.RawID, other.comps)
	}

	s.indexes.OnEntityRemoved(e.RawID)
	s.table.release(e)
	return dest
}
