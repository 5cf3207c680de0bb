package ecs_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/talonecs/talon/ecs"
)

// Two systems both filtering Position without ecs:"readonly" both
// declare a write, so the scheduler's static conflict analysis must
// serialize them even though the mutation itself never blocks.
type positionWriterFilterSystem struct {
	Entities ecs.Filter[struct {
		Position *Position
	}]
	trace *[]string
	mu    *sync.Mutex
	name  string
}

func (s *positionWriterFilterSystem) Update(dt float64) {
	s.Entities.ForEach(func(_ ecs.Entity, item struct {
		Position *Position
	}) bool {
		s.mu.Lock()
		*s.trace = append(*s.trace, s.name+":start")
		s.mu.Unlock()

		item.Position.X++

		s.mu.Lock()
		*s.trace = append(*s.trace, s.name+":end")
		s.mu.Unlock()
		return true
	})
}

func TestSchedulerSerializesConflictingFilterWriters(t *testing.T) {
	f := newFactory()
	s := ecs.NewStorage(f)
	sched := ecs.NewScheduler(s, ecs.SchedulerConfig{MaxConcurrent: 4})

	e := s.AddEntity()
	ecs.AddComponent[Position](s, e)

	var trace []string
	var mu sync.Mutex

	a := &positionWriterFilterSystem{trace: &trace, mu: &mu, name: "a"}
	b := &positionWriterFilterSystem{trace: &trace, mu: &mu, name: "b"}
	sched.Register("a", a, ecs.SystemOptions{})
	sched.Register("b", b, ecs.SystemOptions{})

	sched.Tick(0)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, trace, 4)
	firstPairComplete := (trace[0] == "a:start" && trace[1] == "a:end") ||
		(trace[0] == "b:start" && trace[1] == "b:end")
	assert.True(t, firstPairComplete)

	pos := ecs.GetComponent[Position](s, e)
	assert.Equal(t, float32(2), pos.X)
}

// A Filter tagged ecs:"readonly" on every field must not conflict with
// another read-only Filter over the same component: both should be
// free to run in the same wave.
type positionReaderFilterSystem struct {
	Entities ecs.Filter[struct {
		Position *Position `ecs:"readonly"`
	}]
	seenLen int
}

func (s *positionReaderFilterSystem) Update(dt float64) {
	s.seenLen = s.Entities.Len()
}

func TestFilterReadonlyFieldsDoNotConflict(t *testing.T) {
	f := newFactory()
	s := ecs.NewStorage(f)
	sched := ecs.NewScheduler(s, ecs.SchedulerConfig{MaxConcurrent: 4})

	e := s.AddEntity()
	ecs.AddComponent[Position](s, e)

	a := &positionReaderFilterSystem{}
	b := &positionReaderFilterSystem{}
	sched.Register("a", a, ecs.SystemOptions{})
	sched.Register("b", b, ecs.SystemOptions{})

	sched.Tick(0)

	assert.Equal(t, 1, a.seenLen)
	assert.Equal(t, 1, b.seenLen)
}
