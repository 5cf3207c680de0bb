package ecs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/talonecs/talon/ecs"
)

func newFactory() *ecs.ComponentFactory {
	f := ecs.NewComponentFactory()
	ecs.RegisterComponent[Position](f)
	ecs.RegisterComponent[Velocity](f)
	ecs.RegisterComponent[Health](f)
	ecs.RegisterComponent[Name](f)
	ecs.RegisterComponent[Tag](f)
	f.Build()
	return f
}

func TestAddEntityUniqueness(t *testing.T) {
	s := ecs.NewStorage(newFactory())

	a := s.AddEntity()
	b := s.AddEntity()

	assert.NotEqual(t, a, b)
	assert.True(t, s.HasEntity(a))
	assert.True(t, s.HasEntity(b))
}

func TestRemoveEntityInvalidatesHandle(t *testing.T) {
	s := ecs.NewStorage(newFactory())

	e := s.AddEntity()
	s.RemoveEntity(e)

	assert.False(t, s.HasEntity(e))
}

func TestStaleEntityAfterRecycle(t *testing.T) {
	s := ecs.NewStorage(newFactory())

	e1 := s.AddEntity()
	s.RemoveEntity(e1)

	e2 := s.AddEntity()

	assert.Equal(t, e1.RawID, e2.RawID)
	assert.NotEqual(t, e1.Version, e2.Version)
	assert.False(t, s.HasEntity(e1))
	assert.True(t, s.HasEntity(e2))
}

func TestEntityLess(t *testing.T) {
	a := ecs.Entity{RawID: 1, Version: 1}
	b := ecs.Entity{RawID: 2, Version: 0}
	c := ecs.Entity{RawID: 1, Version: 2}

	assert.True(t, a.Less(b))
	assert.True(t, a.Less(c))
	assert.False(t, b.Less(a))
}
