package ecs

import "reflect"

// accessDescriptor is the resolved read/write footprint a system's
// declared tokens produce. The scheduler never inspects a system's
// body: every conflict, ordering, and quiescence decision is made from
// this descriptor alone, computed once at registration time.
type accessDescriptor struct {
	reads    []reflect.Type
	writes   []reflect.Type
	// touchesEntities is set by EntityAdder/EntityRemover/EntityTransferer:
	// these tokens don't name a component type but still need serializing
	// against anything that iterates entities structurally.
	touchesEntities bool
	// postSync marks a token whose effect (structural change) is only
	// visible after the scheduler's next quiescent point, i.e. Adder/
	// Remover/EntityRemover/EntityTransferer. EntityAdder also sets it,
	// although its entity creation is immediate. The scheduler does not
	// consult this flag.
	postSync bool
	// exclusive marks InnerDataAccessor: a system holding it must run with
	// no other system running at all, for debug/serialization access modes
	// that bypass normal read/write declarations.
	exclusive bool
}

func (a accessDescriptor) merge(other accessDescriptor) accessDescriptor {
	a.reads = append(a.reads, other.reads...)
	a.writes = append(a.writes, other.writes...)
	a.touchesEntities = a.touchesEntities || other.touchesEntities
	a.postSync = a.postSync || other.postSync
	a.exclusive = a.exclusive || other.exclusive
	return a
}

// accessToken is implemented by every token type a system may declare as
// a struct field. Init binds the token to the storage it will operate
// against; Access reports the token's static read/write footprint.
type accessToken interface {
	Init(s *Storage)
	Access() accessDescriptor
}

// Filter grants iteration over every entity satisfying T's field
// signature, the same declaration shape as View[T]. Filter hands out
// live, mutable *C pointers, so per the "write for every non-const C"
// rule a field is a write claim by default; tag a field
// `ecs:"readonly"` (combinable with `ecs:"optional"`, e.g.
// `ecs:"optional,readonly"`) to declare it a read only and let the
// scheduler treat two Filters over that field as reader/reader
// compatible.
type Filter[T any] struct {
	view *View[T]
}

func (f *Filter[T]) Init(s *Storage) { f.view = NewView[T](s) }

func (f *Filter[T]) Access() accessDescriptor {
	var zero T
	st := reflect.TypeOf(zero)
	d := accessDescriptor{}
	for i := 0; i < st.NumField(); i++ {
		field := st.Field(i)
		compType := field.Type.Elem()
		if hasECSTag(field.Tag, "readonly") {
			d.reads = append(d.reads, compType)
		} else {
			d.writes = append(d.writes, compType)
		}
	}
	return d
}

// ForEach delegates to the underlying view.
func (f *Filter[T]) ForEach(fn func(Entity, T) bool) { f.view.ForEach(fn) }

// Get delegates to the underlying view.
func (f *Filter[T]) Get(e Entity) (T, bool) { return f.view.Get(e) }

// Len delegates to the underlying view.
func (f *Filter[T]) Len() int { return f.view.Len() }

// Adder grants deferred insertion of component C onto arbitrary
// entities. Its effect is only visible to other systems once the
// scheduler applies deferred mutations between waves.
type Adder[C any] struct {
	storage *Storage
}

func (a *Adder[C]) Init(s *Storage) { a.storage = s }

func (a *Adder[C]) Access() accessDescriptor {
	var zero C
	return accessDescriptor{
		writes:   []reflect.Type{reflect.TypeOf(zero)},
		postSync: true,
	}
}

// Add schedules C's construction and installation on e, returning the
// address the calling system may populate immediately.
func (a *Adder[C]) Add(e Entity) *C {
	return ScheduleAddComponent[C](a.storage, e)
}

// Remover grants deferred removal of component C from arbitrary
// entities.
type Remover[C any] struct {
	storage *Storage
	typeID  ComponentTypeID
}

func (r *Remover[C]) Init(s *Storage) {
	r.storage = s
	r.typeID, _ = TypeIDFor[C](s.factory)
}

func (r *Remover[C]) Access() accessDescriptor {
	var zero C
	return accessDescriptor{
		writes:   []reflect.Type{reflect.TypeOf(zero)},
		postSync: true,
	}
}

// Remove schedules removal of C from e.
func (r *Remover[C]) Remove(e Entity) {
	r.storage.ScheduleRemoveComponent(e, r.typeID)
}

// EntityAdder grants entity creation. Creation itself is immediate (raw
// id allocation is cheap and does not perturb any index), so it declares
// touchesEntities, which serializes it against every system that reads
// or writes components, including ones that snapshot entity counts.
type EntityAdder struct {
	storage *Storage
}

func (a *EntityAdder) Init(s *Storage) { a.storage = s }

func (a *EntityAdder) Access() accessDescriptor {
	return accessDescriptor{touchesEntities: true, postSync: true}
}

// Add creates a new entity immediately.
func (a *EntityAdder) Add() Entity { return a.storage.AddEntity() }

// EntityRemover grants deferred entity destruction.
type EntityRemover struct {
	storage *Storage
	queued  []Entity
}

func (r *EntityRemover) Init(s *Storage) { r.storage = s; r.queued = nil }

func (r *EntityRemover) Access() accessDescriptor {
	return accessDescriptor{touchesEntities: true, postSync: true}
}

// Remove queues e for destruction at the next quiescent point.
func (r *EntityRemover) Remove(e Entity) {
	r.queued = append(r.queued, e)
}

// flush is invoked by the scheduler at a quiescent point, after
// ExecuteScheduledActions runs, so a queued removal also destroys
// components added earlier in the same tick.
func (r *EntityRemover) flush() {
	for _, e := range r.queued {
		r.storage.RemoveEntity(e)
	}
	r.queued = nil
}

// EntityTransferer grants deferred transfer of an entity's components
// from one Storage into another, e.g. moving an entity between a "live"
// and a "staged" world.
type EntityTransferer struct {
	from, to *Storage
	queued   []Entity
}

// BindTransferer wires an EntityTransferer between two storages sharing
// a factory; called during system setup, not part of the token
// interface itself since it needs two managers.
func BindTransferer(t *EntityTransferer, from, to *Storage) {
	t.from, t.to = from, to
}

func (t *EntityTransferer) Init(s *Storage) {
	if t.from == nil {
		t.from = s
	}
}

func (t *EntityTransferer) Access() accessDescriptor {
	return accessDescriptor{touchesEntities: true, postSync: true}
}

// Transfer queues e to move from t.from to t.to.
func (t *EntityTransferer) Transfer(e Entity) {
	t.queued = append(t.queued, e)
}

func (t *EntityTransferer) flush() {
	for _, e := range t.queued {
		t.from.TransferEntityTo(t.to, e)
	}
	t.queued = nil
}

// InnerDataAccessor grants unrestricted direct access to a Storage,
// bypassing every read/write declaration the scheduler would otherwise
// enforce. A system holding one runs exclusively: no other system may
// run concurrently with it, in either direction. Intended for debug
// tooling and serialization, not everyday gameplay systems.
type InnerDataAccessor struct {
	Storage *Storage
}

func (a *InnerDataAccessor) Init(s *Storage) { a.Storage = s }

func (a *InnerDataAccessor) Access() accessDescriptor {
	return accessDescriptor{exclusive: true}
}

// initTokens walks dst (a pointer to a system struct) via reflection and
// calls Init/collects Access on every field implementing accessToken.
func initTokens(sys any, s *Storage) accessDescriptor {
	v := reflect.ValueOf(sys)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		panic("ecs: system must be a pointer to a struct")
	}
	elem := v.Elem()
	elemType := elem.Type()

	desc := accessDescriptor{}
	tokenType := reflect.TypeOf((*accessToken)(nil)).Elem()

	for i := 0; i < elem.NumField(); i++ {
		field := elem.Field(i)
		if !field.CanAddr() || elemType.Field(i).PkgPath != "" {
			continue
		}
		fp := field.Addr()
		if !fp.Type().Implements(tokenType) {
			continue
		}
		tok := fp.Interface().(accessToken)
		tok.Init(s)
		desc = desc.merge(tok.Access())
	}
	return desc
}
