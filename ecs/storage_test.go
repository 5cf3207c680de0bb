package ecs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/talonecs/talon/ecs"
)

func TestAddAndGetComponent(t *testing.T) {
	s := ecs.NewStorage(newFactory())
	e := s.AddEntity()

	pos := ecs.AddComponent[Position](s, e)
	pos.X, pos.Y = 3, 4

	got := ecs.GetComponent[Position](s, e)
	assert.NotNil(t, got)
	assert.Equal(t, float32(3), got.X)
	assert.Equal(t, float32(4), got.Y)
}

func TestComponentAddressIsPointerStable(t *testing.T) {
	f := newFactory()
	s := ecs.NewStorage(f)

	entities := make([]ecs.Entity, 200)
	addrs := make([]*Position, 200)
	for i := range entities {
		e := s.AddEntity()
		entities[i] = e
		addrs[i] = ecs.AddComponent[Position](s, e)
		addrs[i].X = float32(i)
	}

	// Growing the pool by 200 more acquisitions must not move any
	// previously returned address.
	for i := 0; i < 200; i++ {
		e := s.AddEntity()
		ecs.AddComponent[Position](s, e)
	}

	for i, e := range entities {
		got := ecs.GetComponent[Position](s, e)
		assert.Same(t, addrs[i], got)
		assert.Equal(t, float32(i), got.X)
	}
}

func TestRemoveComponent(t *testing.T) {
	s := ecs.NewStorage(newFactory())
	e := s.AddEntity()
	ecs.AddComponent[Position](s, e)

	ecs.RemoveComponentT[Position](s, e)

	assert.Nil(t, ecs.GetComponent[Position](s, e))
}

func TestDeferredMutationsApplyOnExecute(t *testing.T) {
	s := ecs.NewStorage(newFactory())
	e := s.AddEntity()
	ecs.AddComponent[Position](s, e)

	typeID, ok := ecs.TypeIDFor[Velocity](s.Factory())
	assert.True(t, ok)

	ptr := ecs.ScheduleAddComponent[Velocity](s, e)
	assert.NotNil(t, ptr)

	// Not visible to storage lookups until ExecuteScheduledActions runs.
	assert.Nil(t, s.GetComponentRaw(e, typeID))
	assert.True(t, s.HasPendingScheduledActions())

	s.ExecuteScheduledActions()

	assert.NotNil(t, s.GetComponentRaw(e, typeID))
	assert.False(t, s.HasPendingScheduledActions())
}

func TestTransferEntityPreservesComponentAddress(t *testing.T) {
	f := newFactory()
	src := ecs.NewStorage(f)
	dst := ecs.NewStorage(f)

	e := src.AddEntity()
	pos := ecs.AddComponent[Position](src, e)
	pos.X = 42

	moved := src.TransferEntityTo(dst, e)

	assert.False(t, src.HasEntity(e))
	assert.True(t, dst.HasEntity(moved))

	got := ecs.GetComponent[Position](dst, moved)
	assert.Same(t, pos, got)
	assert.Equal(t, float32(42), got.X)
}

func TestViewForEachMatchesSignature(t *testing.T) {
	f := newFactory()
	s := ecs.NewStorage(f)

	e1 := s.AddEntity()
	ecs.AddComponent[Position](s, e1)
	ecs.AddComponent[Velocity](s, e1)

	e2 := s.AddEntity()
	ecs.AddComponent[Position](s, e2)

	view := ecs.NewView[struct {
		Position *Position
		Velocity *Velocity
	}](s)

	seen := map[ecs.Entity]bool{}
	view.ForEach(func(e ecs.Entity, item struct {
		Position *Position
		Velocity *Velocity
	}) bool {
		seen[e] = true
		assert.NotNil(t, item.Position)
		assert.NotNil(t, item.Velocity)
		return true
	})

	assert.Equal(t, 1, len(seen))
	assert.True(t, seen[e1])
}

func TestViewIndexSwapRemoveKeepsRemaining(t *testing.T) {
	f := newFactory()
	s := ecs.NewStorage(f)

	var entities []ecs.Entity
	for i := 0; i < 5; i++ {
		e := s.AddEntity()
		ecs.AddComponent[Position](s, e)
		entities = append(entities, e)
	}

	view := ecs.NewView[struct {
		Position *Position
	}](s)
	assert.Equal(t, 5, view.Len())

	// Remove a middle element and confirm the rest are still reachable.
	ecs.RemoveComponentT[Position](s, entities[2])
	assert.Equal(t, 4, view.Len())

	var remaining []ecs.Entity
	view.Entities(&remaining)
	assert.NotContains(t, remaining, entities[2])
	for _, e := range entities {
		if e == entities[2] {
			continue
		}
		assert.Contains(t, remaining, e)
	}
}
